package route

import (
	"fmt"
	"sort"

	"stopplanner.sistper.org/internal/geo"
	"stopplanner.sistper.org/internal/models"
)

// StopSource provides the raw stops of a line in source order.
type StopSource interface {
	StopsForLine(lineCode string) ([]models.NativeStop, error)
}

// LineSource provides the raw path geometry of a line.
type LineSource interface {
	GeometryForLine(lineCode string) (models.LineGeometry, error)
}

// NativeStops returns the stops of a line ordered by their arc-length position
// along the line's merged geometry. Stops at the same position keep their
// source order.
//
// A line without stops yields an empty slice and ErrNoStops. Any other error
// means the stops could not be ordered; callers fall back to Unordered.
func NativeStops(lineCode string, stops StopSource, lines LineSource) ([]models.Stop, error) {
	raw, err := stops.StopsForLine(lineCode)
	if err != nil {
		return nil, fmt.Errorf("read stops of line %s: %w", lineCode, err)
	}
	if len(raw) == 0 {
		return []models.Stop{}, ErrNoStops
	}

	geometry, err := lines.GeometryForLine(lineCode)
	if err != nil {
		return nil, fmt.Errorf("read geometry of line %s: %w", lineCode, err)
	}

	points := make([]models.Point, len(raw))
	for i, s := range raw {
		points[i] = s.Point
	}

	keys, err := geo.ProjectOrder(geo.MergePaths(geometry.Paths), points)
	if err != nil {
		return nil, fmt.Errorf("order stops of line %s: %w", lineCode, err)
	}

	order := make([]int, len(raw))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return keys[order[a]] < keys[order[b]]
	})

	result := make([]models.Stop, len(raw))
	for i, idx := range order {
		result[i] = nativeStop(raw[idx])
	}
	return result, nil
}

// Unordered converts raw stops to route stops in source order. It is the
// fallback when NativeStops cannot order a line.
func Unordered(raw []models.NativeStop) []models.Stop {
	result := make([]models.Stop, len(raw))
	for i, s := range raw {
		result[i] = nativeStop(s)
	}
	return result
}

func nativeStop(s models.NativeStop) models.Stop {
	name := s.Name
	if name == "" {
		name = models.DefaultStopName
	}
	return models.Stop{Point: s.Point, Name: name}
}
