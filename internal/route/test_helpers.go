package route

import (
	"fmt"

	"github.com/paulmach/orb"
	"stopplanner.sistper.org/internal/models"
)

// fakeSource is an in-memory StopSource and LineSource for tests.
type fakeSource struct {
	stops   map[string][]models.NativeStop
	paths   map[string][]orb.LineString
	stopErr error
	lineErr error
}

func (f *fakeSource) StopsForLine(lineCode string) ([]models.NativeStop, error) {
	if f.stopErr != nil {
		return nil, f.stopErr
	}
	return f.stops[lineCode], nil
}

func (f *fakeSource) GeometryForLine(lineCode string) (models.LineGeometry, error) {
	if f.lineErr != nil {
		return models.LineGeometry{}, f.lineErr
	}
	return models.LineGeometry{LineCode: lineCode, Paths: f.paths[lineCode]}, nil
}

func nativeStops(points ...models.Point) []models.NativeStop {
	stops := make([]models.NativeStop, len(points))
	for i, p := range points {
		stops[i] = models.NativeStop{Point: p, Name: fmt.Sprintf("S%d", i)}
	}
	return stops
}

func routeOf(points ...models.Point) []models.Stop {
	stops := make([]models.Stop, len(points))
	for i, p := range points {
		stops[i] = models.Stop{Point: p, Name: fmt.Sprintf("S%d", i)}
	}
	return stops
}

func pointsOf(stops []models.Stop) []models.Point {
	points := make([]models.Point, len(stops))
	for i, s := range stops {
		points[i] = s.Point
	}
	return points
}

func intPtr(i int) *int { return &i }
