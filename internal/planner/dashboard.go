package planner

import (
	"context"

	"stopplanner.sistper.org/internal/geo"
	"stopplanner.sistper.org/internal/metrics"
	"stopplanner.sistper.org/internal/models"
	"stopplanner.sistper.org/internal/route"
)

const recentLimit = 20

// Dashboard is everything the admin overview shows.
type Dashboard struct {
	Pending   []models.StopRequest        `json:"pending"`
	Approved  []models.StopRequest        `json:"approved"`
	Rejected  []models.StopRequest        `json:"rejected"`
	LineStats map[string]int              `json:"line_stats"`
	Clusters  map[string][]models.Cluster `json:"clusters"`
}

// Dashboard lists pending requests by line with their clusters, plus the
// most recent approvals and rejections.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	pending, err := s.Store.ListPending(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	approved, err := s.Store.ListRequests(ctx, models.StatusApproved, recentLimit, true)
	if err != nil {
		return Dashboard{}, err
	}
	rejected, err := s.Store.ListRequests(ctx, models.StatusRejected, recentLimit, true)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		Pending:  pending,
		Approved: approved,
		Rejected: rejected,
	}
	d.LineStats, d.Clusters = s.summarize(pending)
	return d, nil
}

// RefreshPendingMetrics recomputes the per-line pending gauges.
func (s *Service) RefreshPendingMetrics(ctx context.Context) error {
	pending, err := s.Store.ListPending(ctx)
	if err != nil {
		return err
	}
	s.summarize(pending)
	return nil
}

// summarize counts and clusters pending requests per line and publishes
// the counts as gauges.
func (s *Service) summarize(pending []models.StopRequest) (map[string]int, map[string][]models.Cluster) {
	views := make([]models.PendingRequest, len(pending))
	for i, r := range pending {
		views[i] = r.Pending()
	}

	lineStats := make(map[string]int)
	clusters := make(map[string][]models.Cluster)
	clusterCounts := make(map[string]int)
	for _, g := range route.GroupByLine(views) {
		lineStats[g.LineCode] = len(g.Requests)
		clusters[g.LineCode] = route.Cluster(g.Requests, s.ClusterRadius)
		clusterCounts[g.LineCode] = len(clusters[g.LineCode])
	}
	metrics.SetPendingStats(lineStats, clusterCounts)
	return lineStats, clusters
}

// LineClusters clusters the pending requests of one line.
func (s *Service) LineClusters(ctx context.Context, lineCode string) ([]models.Cluster, error) {
	pending, err := s.Store.ListPendingForLine(ctx, lineCode)
	if err != nil {
		return nil, err
	}
	views := make([]models.PendingRequest, len(pending))
	for i, r := range pending {
		views[i] = r.Pending()
	}
	return route.Cluster(views, s.ClusterRadius), nil
}

// PendingPoint is one pending request on the public map.
type PendingPoint struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	Line string  `json:"line"`
	Cell string  `json:"cell"`
}

// PendingPoints returns the location of every pending request.
func (s *Service) PendingPoints(ctx context.Context) ([]PendingPoint, error) {
	pending, err := s.Store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	points := make([]PendingPoint, len(pending))
	for i, r := range pending {
		points[i] = PendingPoint{
			Lat:  r.Lat,
			Lon:  r.Lon,
			Line: r.LineCode,
			Cell: geo.CellToken(r.Point()),
		}
	}
	return points, nil
}
