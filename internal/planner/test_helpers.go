package planner

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"
	"stopplanner.sistper.org/internal/geodata"
	"stopplanner.sistper.org/internal/models"
	"stopplanner.sistper.org/internal/store"
)

var (
	p0 = models.Point{Lat: 44.490, Lon: 11.340}
	p1 = models.Point{Lat: 44.495, Lon: 11.345}
	p2 = models.Point{Lat: 44.490, Lon: 11.350}
)

// newTestService returns a planner over a loop line "11" (p0 → p1 → p2,
// stops stored out of order), a line "30" with stops but no geometry, and a
// sqlite store in a temp dir.
func newTestService(t *testing.T) *Service {
	t.Helper()

	geo := geodata.NewStore()
	geo.Set(&geodata.Snapshot{
		Source: "test",
		Lines: map[string]*geodata.Line{
			"11": {
				Code:  "11",
				Paths: []orb.LineString{{p0.OrbPoint(), p1.OrbPoint()}, {p1.OrbPoint(), p2.OrbPoint()}},
				Stops: []models.NativeStop{
					{Point: p2, Name: "Tre"},
					{Point: p0, Name: "Uno"},
					{Point: p1, Name: "Due"},
				},
			},
			"30": {
				Code: "30",
				Stops: []models.NativeStop{
					{Point: p2, Name: "B"},
					{Point: p0, Name: "A"},
				},
			},
		},
	})

	return newTestServiceWith(t, geo)
}

// newTestServiceWith returns a planner over the given geodata and a sqlite
// store in a temp dir.
func newTestServiceWith(t *testing.T, geo *geodata.Store) *Service {
	t.Helper()

	st, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "planner.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(geo, st, logger, 0.003)
}

func f(v float64) *float64 { return &v }

func submit(t *testing.T, s *Service, line string, p models.Point) models.StopRequest {
	t.Helper()
	r, err := s.SubmitRequest(context.Background(), NewRequest{LineCode: line, Lat: f(p.Lat), Lon: f(p.Lon)})
	require.NoError(t, err)
	return r
}

func names(stops []models.Stop) []string {
	out := make([]string, len(stops))
	for i, s := range stops {
		out[i] = s.Name
	}
	return out
}

func points(stops []models.Stop) []models.Point {
	out := make([]models.Point, len(stops))
	for i, s := range stops {
		out[i] = s.Point
	}
	return out
}
