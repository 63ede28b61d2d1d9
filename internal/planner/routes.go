package planner

import (
	"context"
	"errors"
	"fmt"

	"stopplanner.sistper.org/internal/geo"
	"stopplanner.sistper.org/internal/metrics"
	"stopplanner.sistper.org/internal/models"
	"stopplanner.sistper.org/internal/route"
	"stopplanner.sistper.org/internal/store"
)

// CanonicalRoute returns the native stops of a line, ordered along its
// geometry, with every approved stop merged in. Ordering failures degrade to
// source order and unreadable geodata to an empty base; only persistence
// errors are returned.
func (s *Service) CanonicalRoute(ctx context.Context, lineCode string) ([]models.Stop, error) {
	base := s.baseRoute(lineCode)
	approvals, err := s.Store.ListApproved(ctx, lineCode)
	if err != nil {
		return nil, err
	}
	return route.Merge(base, approvals), nil
}

func (s *Service) baseRoute(lineCode string) []models.Stop {
	base, err := route.NativeStops(lineCode, s.Geodata, s.Geodata)
	if err == nil {
		return base
	}
	s.fallback("sequence", lineCode, err)

	raw, rawErr := s.Geodata.StopsForLine(lineCode)
	if rawErr != nil {
		return []models.Stop{}
	}
	return route.Unordered(raw)
}

// LineRoute is the public view of one line.
type LineRoute struct {
	LineCode     string        `json:"line_code"`
	Stops        []models.Stop `json:"stops"`
	PendingCount int           `json:"pending_count"`
}

// Route returns the canonical route of a line with its pending request count.
func (s *Service) Route(ctx context.Context, lineCode string) (LineRoute, error) {
	stops, err := s.CanonicalRoute(ctx, lineCode)
	if err != nil {
		return LineRoute{}, err
	}
	pending, err := s.Store.CountPending(ctx, lineCode)
	if err != nil {
		return LineRoute{}, err
	}
	return LineRoute{LineCode: lineCode, Stops: stops, PendingCount: pending}, nil
}

// optimize places candidate into the canonical route of a line. When the
// route cannot be optimised the candidate-only route is returned with
// ok=false.
func (s *Service) optimize(ctx context.Context, lineCode string, candidate models.Point) (before []models.Stop, ins route.Insertion, ok bool, err error) {
	before, err = s.CanonicalRoute(ctx, lineCode)
	if err != nil {
		return nil, route.Insertion{}, false, err
	}
	ins, optErr := route.Optimize(before, candidate)
	if optErr != nil {
		s.fallback("optimize", lineCode, optErr)
		return before, route.CandidateOnly(candidate), false, nil
	}
	metrics.InsertionCost.Observe(ins.Cost)
	return before, ins, true, nil
}

// Preview shows an admin what approving a request would do to its line.
type Preview struct {
	NewPoint    models.Point  `json:"new_point"`
	Before      []models.Stop `json:"before"`
	After       []models.Stop `json:"after"`
	LineCode    string        `json:"line_code"`
	InsertIdx   int           `json:"insert_idx"`
	AddedMeters float64       `json:"added_meters"`
}

// Preview computes the before and after routes for a request.
func (s *Service) Preview(ctx context.Context, id int64) (Preview, error) {
	req, err := s.Store.GetRequest(ctx, id)
	if err != nil {
		return Preview{}, err
	}

	before, ins, ok, err := s.optimize(ctx, req.LineCode, req.Point())
	if err != nil {
		return Preview{}, err
	}

	p := Preview{
		NewPoint:  req.Point(),
		Before:    before,
		After:     ins.Route,
		LineCode:  req.LineCode,
		InsertIdx: ins.Index,
	}
	if ok {
		p.AddedMeters = cycleMeters(ins.Route) - cycleMeters(before)
	}
	return p, nil
}

// Approval is the outcome of approving one request or a cluster.
type Approval struct {
	OptimizedRoute []models.Stop `json:"optimized_route"`
	LineCode       string        `json:"line_code"`
	InsertAfter    *int          `json:"insert_after"`
	StopID         int64         `json:"stop_id"`
}

// Approve persists the request as an approved stop at its cheapest
// position and marks it approved.
func (s *Service) Approve(ctx context.Context, id int64) (Approval, error) {
	req, err := s.Store.GetRequest(ctx, id)
	if err != nil {
		return Approval{}, err
	}
	if req.Status != models.StatusPending {
		return Approval{}, fmt.Errorf("stop request %d: %w", id, store.ErrNotPending)
	}

	approval, err := s.approve(ctx, req.LineCode, req.Point(), []int64{req.ID}, &req.ID)
	if err != nil {
		return Approval{}, err
	}
	metrics.Approvals.WithLabelValues("single").Inc()
	metrics.StopRequests.WithLabelValues(models.StatusApproved).Inc()
	s.Logger.Info("Approved stop request", "id", id, "line_code", req.LineCode, "insert_after", derefInt(approval.InsertAfter))
	return approval, nil
}

// ClusterApproval asks to approve several requests as one stop at point.
type ClusterApproval struct {
	IDs      []int64  `json:"ids"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	LineCode string   `json:"line_code"`
}

// ApproveCluster persists one approved stop for a cluster of requests and
// marks them all approved. Every request must be pending and on the line.
func (s *Service) ApproveCluster(ctx context.Context, in ClusterApproval) (Approval, error) {
	if len(in.IDs) == 0 || in.Lat == nil || in.Lon == nil || in.LineCode == "" {
		return Approval{}, fmt.Errorf("%w: missing data", ErrInvalidInput)
	}
	point := models.Point{Lat: *in.Lat, Lon: *in.Lon}
	if !geo.IsValidLatLon(point.Lat, point.Lon) {
		return Approval{}, fmt.Errorf("%w: invalid coordinates", ErrInvalidInput)
	}

	ids := dedupeIDs(in.IDs)
	for _, id := range ids {
		req, err := s.Store.GetRequest(ctx, id)
		if err != nil {
			return Approval{}, err
		}
		if req.LineCode != in.LineCode {
			return Approval{}, fmt.Errorf("%w: request %d belongs to line %s", ErrInvalidInput, id, req.LineCode)
		}
	}

	approval, err := s.approve(ctx, in.LineCode, point, ids, nil)
	if err != nil {
		return Approval{}, err
	}
	metrics.Approvals.WithLabelValues("cluster").Inc()
	metrics.StopRequests.WithLabelValues(models.StatusApproved).Add(float64(len(ids)))
	s.Logger.Info("Approved request cluster", "ids", ids, "line_code", in.LineCode, "insert_after", derefInt(approval.InsertAfter))
	return approval, nil
}

func (s *Service) approve(ctx context.Context, lineCode string, point models.Point, ids []int64, requestID *int64) (Approval, error) {
	unlock := s.lockLine(lineCode)
	defer unlock()

	_, ins, ok, err := s.optimize(ctx, lineCode, point)
	if err != nil {
		return Approval{}, err
	}

	// a fallback insertion carries no usable position, so the stop is appended
	var insertAfter *int
	if ok {
		idx := route.NativeIndex(ins.Route, ins.Index)
		insertAfter = &idx
	}

	stop, err := s.Store.ApproveRequests(ctx, models.ApprovedStop{
		LineCode:    lineCode,
		Lat:         point.Lat,
		Lon:         point.Lon,
		InsertAfter: insertAfter,
		RequestID:   requestID,
	}, ids)
	if err != nil {
		return Approval{}, err
	}

	// the response shows the route exactly as it will be served from now on;
	// the approval is already committed, so a failed reread only degrades it
	canonical, err := s.CanonicalRoute(ctx, lineCode)
	if err != nil {
		s.Logger.Error("Failed to reread route after approval", "line_code", lineCode, "error", err)
		canonical = ins.Route
	}

	return Approval{
		OptimizedRoute: canonical,
		LineCode:       lineCode,
		InsertAfter:    insertAfter,
		StopID:         stop.ID,
	}, nil
}

// cycleMeters is the geodesic length of a route closed back to its first stop.
func cycleMeters(stops []models.Stop) float64 {
	if len(stops) < 2 {
		return 0
	}
	total := 0.0
	for i := range stops {
		total += geo.HaversineDistance(stops[i].Point, stops[(i+1)%len(stops)].Point)
	}
	return total
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func derefInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// IsNotFound reports whether err means the request does not exist.
func IsNotFound(err error) bool { return errors.Is(err, store.ErrNotFound) }

// IsConflict reports whether err means the request was already processed.
func IsConflict(err error) bool { return errors.Is(err, store.ErrNotPending) }
