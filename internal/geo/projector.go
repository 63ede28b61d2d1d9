package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"stopplanner.sistper.org/internal/models"
)

var (
	// ErrNoGeometry is returned when a line has no usable path data.
	ErrNoGeometry = errors.New("no line geometry")
	// ErrProjectionFailure is returned when a point cannot be projected onto a path.
	ErrProjectionFailure = errors.New("point projection failed")
)

// Distance is the planar metric used by the route engine: Euclidean distance
// on raw (lat, lon) degrees.
func Distance(a, b models.Point) float64 {
	return planar.Distance(a.OrbPoint(), b.OrbPoint())
}

// MergePaths joins the arcs of a line into connected paths. Arcs whose
// endpoints coincide are chained (reversing them when needed); arcs that touch
// nothing stay as separate parts. Parts keep the order of their first arc.
func MergePaths(paths []orb.LineString) orb.MultiLineString {
	remaining := make([]orb.LineString, 0, len(paths))
	for _, p := range paths {
		p = dedupe(p)
		if len(p) < 2 {
			continue
		}
		remaining = append(remaining, p)
	}

	var merged orb.MultiLineString
	for len(remaining) > 0 {
		current := remaining[0].Clone()
		remaining = remaining[1:]

		for {
			next, rest, ok := attach(current, remaining)
			if !ok {
				break
			}
			current, remaining = next, rest
		}
		merged = append(merged, current)
	}
	return merged
}

// attach extends path with the first arc in candidates that shares an endpoint.
func attach(path orb.LineString, candidates []orb.LineString) (orb.LineString, []orb.LineString, bool) {
	start, end := path[0], path[len(path)-1]
	for i, c := range candidates {
		cStart, cEnd := c[0], c[len(c)-1]

		var joined orb.LineString
		switch {
		case cStart.Equal(end):
			joined = append(path, c[1:]...)
		case cEnd.Equal(end):
			r := c.Clone()
			r.Reverse()
			joined = append(path, r[1:]...)
		case cEnd.Equal(start):
			joined = append(c.Clone(), path[1:]...)
		case cStart.Equal(start):
			r := c.Clone()
			r.Reverse()
			joined = append(r, path[1:]...)
		default:
			continue
		}

		rest := make([]orb.LineString, 0, len(candidates)-1)
		rest = append(rest, candidates[:i]...)
		rest = append(rest, candidates[i+1:]...)
		return joined, rest, true
	}
	return path, candidates, false
}

func dedupe(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, 0, len(ls))
	for i, p := range ls {
		if i > 0 && p.Equal(ls[i-1]) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ProjectOrder returns, for each point, the arc-length distance from the start
// of the merged geometry to the point's nearest position on it. Parts are
// measured one after the other, so the key of a point on the second part
// includes the full length of the first. The result is aligned with points.
func ProjectOrder(merged orb.MultiLineString, points []models.Point) ([]float64, error) {
	if planar.Length(merged) == 0 {
		return nil, ErrNoGeometry
	}

	keys := make([]float64, len(points))
	for i, p := range points {
		if !p.Valid() {
			return nil, fmt.Errorf("%w: point %d (%v, %v) is not finite", ErrProjectionFailure, i, p.Lat, p.Lon)
		}
		key, ok := project(merged, p.OrbPoint())
		if !ok {
			return nil, fmt.Errorf("%w: point %d", ErrProjectionFailure, i)
		}
		keys[i] = key
	}
	return keys, nil
}

// project finds the nearest segment position of p along the geometry and
// returns its arc-length. The first segment wins when two are equally near.
func project(merged orb.MultiLineString, p orb.Point) (float64, bool) {
	best := math.Inf(1)
	key := 0.0
	offset := 0.0
	found := false

	for _, part := range merged {
		for i := 0; i+1 < len(part); i++ {
			a, b := part[i], part[i+1]
			segLen := planar.Distance(a, b)

			t := 0.0
			if segLen > 0 {
				dx, dy := b[0]-a[0], b[1]-a[1]
				t = ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / (segLen * segLen)
				t = math.Max(0, math.Min(1, t))
			}
			q := orb.Point{a[0] + t*(b[0]-a[0]), a[1] + t*(b[1]-a[1])}

			if d := planar.Distance(p, q); d < best {
				best = d
				key = offset + t*segLen
				found = true
			}
			offset += segLen
		}
	}
	if math.IsNaN(key) || math.IsInf(key, 0) {
		return 0, false
	}
	return key, found
}
