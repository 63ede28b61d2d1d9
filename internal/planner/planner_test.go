package planner

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"stopplanner.sistper.org/internal/geodata"
	"stopplanner.sistper.org/internal/metrics"
	"stopplanner.sistper.org/internal/models"
	"stopplanner.sistper.org/internal/route"
	"stopplanner.sistper.org/internal/store"
)

func TestSubmitRequest(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	created, err := s.SubmitRequest(ctx, NewRequest{
		LineCode: "  11 ",
		Lat:      f(44.4925),
		Lon:      f(11.3425),
		Note:     "  " + strings.Repeat("è", 400) + "  ",
	})
	require.NoError(t, err)
	assert.Equal(t, "11", created.LineCode)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, 300, len([]rune(created.Note)), "notes are cut to 300 characters")

	tests := []struct {
		name string
		in   NewRequest
	}{
		{"missing line", NewRequest{Lat: f(44.49), Lon: f(11.34)}},
		{"missing lat", NewRequest{LineCode: "11", Lon: f(11.34)}},
		{"missing lon", NewRequest{LineCode: "11", Lat: f(44.49)}},
		{"out of range", NewRequest{LineCode: "11", Lat: f(95), Lon: f(11.34)}},
		{"null island", NewRequest{LineCode: "11", Lat: f(0), Lon: f(0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SubmitRequest(ctx, tt.in)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}

func TestRouteOrdersStopsAlongGeometry(t *testing.T) {
	s := newTestService(t)
	submit(t, s, "11", models.Point{Lat: 44.4925, Lon: 11.3425})

	r, err := s.Route(context.Background(), "11")
	require.NoError(t, err)
	assert.Equal(t, []string{"Uno", "Due", "Tre"}, names(r.Stops))
	assert.Equal(t, 1, r.PendingCount)
}

func TestRouteFallsBackWithoutGeometry(t *testing.T) {
	s := newTestService(t)
	counter := metrics.RouteFallbacks.WithLabelValues("sequence", "no_geometry")
	before, _ := metrics.CounterValue(counter)

	r, err := s.Route(context.Background(), "30")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, names(r.Stops), "source order is kept")

	after, _ := metrics.CounterValue(counter)
	assert.Equal(t, before+1, after)
}

func TestRouteOfUnknownLineIsEmpty(t *testing.T) {
	s := newTestService(t)

	r, err := s.Route(context.Background(), "99")
	require.NoError(t, err)
	assert.NotNil(t, r.Stops)
	assert.Empty(t, r.Stops)
}

func TestPreview(t *testing.T) {
	s := newTestService(t)
	req := submit(t, s, "11", models.Point{Lat: 44.4925, Lon: 11.3425})

	p, err := s.Preview(context.Background(), req.ID)
	require.NoError(t, err)

	assert.Equal(t, "11", p.LineCode)
	assert.Equal(t, req.Point(), p.NewPoint)
	assert.Len(t, p.Before, 3)
	require.Len(t, p.After, 4)
	assert.Equal(t, 1, p.InsertIdx)
	assert.True(t, p.After[1].IsNew)
	assert.Equal(t, models.NewStopName, p.After[1].Name)
	assert.InDelta(t, 0, p.AddedMeters, 1, "a stop on the path adds almost nothing")

	_, err = s.Preview(context.Background(), 4242)
	assert.True(t, IsNotFound(err))
}

func TestPreviewOfEmptyLine(t *testing.T) {
	s := newTestService(t)
	req := submit(t, s, "99", models.Point{Lat: 44.4925, Lon: 11.3425})

	p, err := s.Preview(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Empty(t, p.Before)
	require.Len(t, p.After, 1)
	assert.Equal(t, 0, p.InsertIdx)
}

func TestPreviewBeforeGeodataLoad(t *testing.T) {
	s := newTestServiceWith(t, geodata.NewStore())
	ctx := context.Background()
	req := submit(t, s, "11", models.Point{Lat: 44.4925, Lon: 11.3425})

	p, err := s.Preview(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, p.Before)
	require.Len(t, p.After, 1)
	assert.Equal(t, req.Point(), p.After[0].Point)
	assert.Equal(t, 0, p.InsertIdx)
	assert.Zero(t, p.AddedMeters)

	r, err := s.Route(ctx, "11")
	require.NoError(t, err)
	assert.Empty(t, r.Stops)
	assert.Equal(t, 1, r.PendingCount)
}

func TestPreviewFallbackAddsNoDistance(t *testing.T) {
	geo := geodata.NewStore()
	geo.Set(&geodata.Snapshot{
		Source: "test",
		Lines: map[string]*geodata.Line{
			"40": {Code: "40", Stops: []models.NativeStop{
				{Point: models.Point{Lat: math.NaN(), Lon: 11.34}, Name: "Rotta"},
				{Point: p0, Name: "Uno"},
			}},
		},
	})
	s := newTestServiceWith(t, geo)
	req := submit(t, s, "40", models.Point{Lat: 44.4925, Lon: 11.3425})

	p, err := s.Preview(context.Background(), req.ID)
	require.NoError(t, err)
	require.Len(t, p.After, 1, "candidate-only route")
	assert.Equal(t, 0, p.InsertIdx)
	assert.Zero(t, p.AddedMeters)
}

func TestApproveStoresNativeIndex(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	first := submit(t, s, "11", models.Point{Lat: 44.4925, Lon: 11.3425})
	approval, err := s.Approve(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, approval.InsertAfter)
	assert.Equal(t, 1, *approval.InsertAfter)
	assert.Len(t, approval.OptimizedRoute, 4)

	second := submit(t, s, "11", models.Point{Lat: 44.4925, Lon: 11.3475})
	approval, err = s.Approve(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, approval.InsertAfter)
	assert.Equal(t, 2, *approval.InsertAfter, "the earlier approval is not counted")

	r, err := s.Route(ctx, "11")
	require.NoError(t, err)
	assert.Equal(t,
		[]string{"Uno", route.ApprovedStopName, "Due", route.ApprovedStopName, "Tre"},
		names(r.Stops))
	assert.Equal(t, models.Point{Lat: 44.4925, Lon: 11.3425}, r.Stops[1].Point)
	assert.Equal(t, models.Point{Lat: 44.4925, Lon: 11.3475}, r.Stops[3].Point)
	assert.Equal(t, 0, r.PendingCount)

	_, err = s.Approve(ctx, first.ID)
	assert.True(t, IsConflict(err))
	_, err = s.Approve(ctx, 4242)
	assert.True(t, IsNotFound(err))
}

func TestApprovalsInOneGapFollowThePath(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	near := models.Point{Lat: 44.4925, Lon: 11.3425}
	far := models.Point{Lat: 44.4940, Lon: 11.3440}

	first, err := s.Approve(ctx, submit(t, s, "11", near).ID)
	require.NoError(t, err)
	second, err := s.Approve(ctx, submit(t, s, "11", far).ID)
	require.NoError(t, err)
	require.NotNil(t, first.InsertAfter)
	require.NotNil(t, second.InsertAfter)
	assert.Equal(t, *first.InsertAfter, *second.InsertAfter, "both land after the first native stop")

	r, err := s.Route(ctx, "11")
	require.NoError(t, err)
	assert.Equal(t, []models.Point{p0, near, far, p1, p2}, points(r.Stops))
	assert.Equal(t, r.Stops, second.OptimizedRoute, "the approval shows the route as served")
}

func TestReject(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()
	req := submit(t, s, "11", models.Point{Lat: 44.4925, Lon: 11.3425})

	require.NoError(t, s.Reject(ctx, req.ID))
	assert.True(t, IsConflict(s.Reject(ctx, req.ID)))
	assert.True(t, IsNotFound(s.Reject(ctx, 4242)))

	_, err := s.Approve(ctx, req.ID)
	assert.ErrorIs(t, err, store.ErrNotPending)
}

func TestApproveCluster(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a := submit(t, s, "11", models.Point{Lat: 44.4920, Lon: 11.3420})
	b := submit(t, s, "11", models.Point{Lat: 44.4930, Lon: 11.3430})
	other := submit(t, s, "30", models.Point{Lat: 44.4930, Lon: 11.3430})

	t.Run("missing data", func(t *testing.T) {
		_, err := s.ApproveCluster(ctx, ClusterApproval{IDs: []int64{a.ID}, LineCode: "11"})
		assert.ErrorIs(t, err, ErrInvalidInput)
		_, err = s.ApproveCluster(ctx, ClusterApproval{Lat: f(44.4925), Lon: f(11.3425), LineCode: "11"})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("request of another line", func(t *testing.T) {
		_, err := s.ApproveCluster(ctx, ClusterApproval{
			IDs: []int64{a.ID, other.ID}, Lat: f(44.4925), Lon: f(11.3425), LineCode: "11",
		})
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("approves every member", func(t *testing.T) {
		approval, err := s.ApproveCluster(ctx, ClusterApproval{
			IDs: []int64{a.ID, b.ID, a.ID}, Lat: f(44.4925), Lon: f(11.3425), LineCode: "11",
		})
		require.NoError(t, err)
		require.NotNil(t, approval.InsertAfter)
		assert.Equal(t, 1, *approval.InsertAfter)

		for _, id := range []int64{a.ID, b.ID} {
			r, err := s.Store.GetRequest(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, models.StatusApproved, r.Status)
		}
	})

	t.Run("already approved", func(t *testing.T) {
		_, err := s.ApproveCluster(ctx, ClusterApproval{
			IDs: []int64{a.ID}, Lat: f(44.4925), Lon: f(11.3425), LineCode: "11",
		})
		assert.True(t, IsConflict(err))
	})
}

func TestDashboard(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	// line 20 scenario: A and B within the radius of A, C far away
	a := submit(t, s, "20", models.Point{Lat: 44.5000, Lon: 11.3000})
	b := submit(t, s, "20", models.Point{Lat: 44.5010, Lon: 11.3010})
	c := submit(t, s, "20", models.Point{Lat: 44.5200, Lon: 11.3200})
	d := submit(t, s, "11", models.Point{Lat: 44.4925, Lon: 11.3425})
	rejected := submit(t, s, "11", models.Point{Lat: 44.4930, Lon: 11.3430})
	require.NoError(t, s.Reject(ctx, rejected.ID))
	_, err := s.Approve(ctx, d.ID)
	require.NoError(t, err)

	dash, err := s.Dashboard(ctx)
	require.NoError(t, err)

	assert.Len(t, dash.Pending, 3)
	require.Len(t, dash.Approved, 1)
	assert.Equal(t, d.ID, dash.Approved[0].ID)
	require.Len(t, dash.Rejected, 1)
	assert.Equal(t, rejected.ID, dash.Rejected[0].ID)
	assert.Equal(t, map[string]int{"20": 3}, dash.LineStats)

	clusters := dash.Clusters["20"]
	require.Len(t, clusters, 2)
	assert.Equal(t, []int64{a.ID, b.ID}, clusters[0].MemberIDs)
	assert.Equal(t, 2, clusters[0].Count)
	assert.Equal(t, []int64{c.ID}, clusters[1].MemberIDs)

	gauge, err := metrics.CounterValue(metrics.PendingClusters.WithLabelValues("20"))
	require.NoError(t, err)
	assert.Equal(t, float64(2), gauge)
}

func TestLineClustersAndPendingMetrics(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	a := submit(t, s, "20", models.Point{Lat: 44.5000, Lon: 11.3000})
	b := submit(t, s, "20", models.Point{Lat: 44.5010, Lon: 11.3010})
	submit(t, s, "11", models.Point{Lat: 44.4925, Lon: 11.3425})

	clusters, err := s.LineClusters(ctx, "20")
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, []int64{a.ID, b.ID}, clusters[0].MemberIDs)

	clusters, err = s.LineClusters(ctx, "99")
	require.NoError(t, err)
	assert.Empty(t, clusters)

	require.NoError(t, s.RefreshPendingMetrics(ctx))
	gauge, err := metrics.CounterValue(metrics.PendingRequests.WithLabelValues("20"))
	require.NoError(t, err)
	assert.Equal(t, float64(2), gauge)
}

func TestPendingPoints(t *testing.T) {
	s := newTestService(t)
	submit(t, s, "11", models.Point{Lat: 44.4925, Lon: 11.3425})

	points, err := s.PendingPoints(context.Background())
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, "11", points[0].Line)
	assert.NotEmpty(t, points[0].Cell)
}
