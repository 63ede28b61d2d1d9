package planner

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"stopplanner.sistper.org/internal/metrics"
	"stopplanner.sistper.org/internal/models"
	"stopplanner.sistper.org/internal/report"
	"stopplanner.sistper.org/internal/route"
)

// ErrInvalidInput marks a request the caller must fix before retrying.
var ErrInvalidInput = errors.New("invalid input")

// RequestStore is the persistence the planner needs.
type RequestStore interface {
	CreateRequest(ctx context.Context, r models.StopRequest) (models.StopRequest, error)
	GetRequest(ctx context.Context, id int64) (models.StopRequest, error)
	ListRequests(ctx context.Context, status string, limit int, newestFirst bool) ([]models.StopRequest, error)
	ListPending(ctx context.Context) ([]models.StopRequest, error)
	ListPendingForLine(ctx context.Context, lineCode string) ([]models.StopRequest, error)
	CountPending(ctx context.Context, lineCode string) (int, error)
	ListApproved(ctx context.Context, lineCode string) ([]models.ApprovedStop, error)
	ApproveRequests(ctx context.Context, stop models.ApprovedStop, ids []int64) (models.ApprovedStop, error)
	RejectRequest(ctx context.Context, id int64) error
}

// Geodata is the read side of the loaded line geometry and stops.
type Geodata interface {
	route.StopSource
	route.LineSource
}

// Service runs the stop planning workflow: citizen requests, canonical
// routes, admin previews and approvals.
type Service struct {
	Geodata       Geodata
	Store         RequestStore
	Logger        *slog.Logger
	ClusterRadius float64

	mu        sync.Mutex
	lineLocks map[string]*sync.Mutex
}

func NewService(geodata Geodata, store RequestStore, logger *slog.Logger, clusterRadius float64) *Service {
	return &Service{
		Geodata:       geodata,
		Store:         store,
		Logger:        logger,
		ClusterRadius: clusterRadius,
		lineLocks:     make(map[string]*sync.Mutex),
	}
}

// lockLine serialises approvals on one line, so two approvals never
// optimise against the same stale route.
func (s *Service) lockLine(lineCode string) func() {
	s.mu.Lock()
	l, ok := s.lineLocks[lineCode]
	if !ok {
		l = &sync.Mutex{}
		s.lineLocks[lineCode] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// fallback records a route computation that degraded to its fallback value.
func (s *Service) fallback(operation, lineCode string, err error) {
	kind := route.FailureKind(err)
	metrics.RecordFallback(operation, kind)

	if errors.Is(err, route.ErrNoStops) {
		s.Logger.Info("Line has no native stops", "operation", operation, "line_code", lineCode)
		return
	}
	s.Logger.Warn("Route computation fell back", "operation", operation, "line_code", lineCode, "kind", kind, "error", err)
	report.ReportFallback(err, operation, lineCode, kind)
}
