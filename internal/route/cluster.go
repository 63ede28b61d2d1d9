package route

import (
	"math"

	"stopplanner.sistper.org/internal/geo"
	"stopplanner.sistper.org/internal/models"
)

// DefaultClusterRadius is about 300 m in Bologna, expressed in planar degrees.
const DefaultClusterRadius = 0.003

// Cluster groups pending requests greedily. Requests are visited in input
// order; each unassigned one seeds a cluster and pulls in every unassigned
// request of the same line within radius of the seed. Only the seed is
// compared, never the running centroid.
func Cluster(requests []models.PendingRequest, radius float64) []models.Cluster {
	if radius <= 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
		radius = DefaultClusterRadius
	}

	assigned := make([]bool, len(requests))
	var clusters []models.Cluster

	for i, seed := range requests {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		members := []models.PendingRequest{seed}

		for j := i + 1; j < len(requests); j++ {
			r := requests[j]
			if assigned[j] || r.LineCode != seed.LineCode {
				continue
			}
			if geo.Distance(seed.Point, r.Point) <= radius {
				members = append(members, r)
				assigned[j] = true
			}
		}
		clusters = append(clusters, summarize(seed.LineCode, members))
	}
	return clusters
}

func summarize(lineCode string, members []models.PendingRequest) models.Cluster {
	c := models.Cluster{
		LineCode:  lineCode,
		MemberIDs: make([]int64, 0, len(members)),
		Notes:     []string{},
		Count:     len(members),
	}
	var sumLat, sumLon float64
	for _, m := range members {
		sumLat += m.Point.Lat
		sumLon += m.Point.Lon
		c.MemberIDs = append(c.MemberIDs, m.ID)
		if m.Note != "" {
			c.Notes = append(c.Notes, m.Note)
		}
	}
	c.Point = models.Point{
		Lat: sumLat / float64(len(members)),
		Lon: sumLon / float64(len(members)),
	}
	return c
}

// LineGroup holds the pending requests of one line in input order.
type LineGroup struct {
	LineCode string
	Requests []models.PendingRequest
}

// GroupByLine splits requests per line, keeping lines in first-seen order.
func GroupByLine(requests []models.PendingRequest) []LineGroup {
	index := make(map[string]int)
	var groups []LineGroup
	for _, r := range requests {
		i, ok := index[r.LineCode]
		if !ok {
			i = len(groups)
			index[r.LineCode] = i
			groups = append(groups, LineGroup{LineCode: r.LineCode})
		}
		groups[i].Requests = append(groups[i].Requests, r)
	}
	return groups
}
