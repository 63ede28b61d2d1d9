package planner

import (
	"context"
	"fmt"
	"strings"

	"stopplanner.sistper.org/internal/geo"
	"stopplanner.sistper.org/internal/metrics"
	"stopplanner.sistper.org/internal/models"
)

const maxNoteLength = 300

// NewRequest is a citizen submission as received over the wire.
type NewRequest struct {
	LineCode      string   `json:"line_code"`
	Lat           *float64 `json:"lat"`
	Lon           *float64 `json:"lon"`
	Note          string   `json:"note"`
	PreferredDays string   `json:"preferred_days"`
	PreferredTime string   `json:"preferred_time"`
}

// SubmitRequest validates and stores a citizen request.
func (s *Service) SubmitRequest(ctx context.Context, in NewRequest) (models.StopRequest, error) {
	lineCode := strings.TrimSpace(in.LineCode)
	if lineCode == "" || in.Lat == nil || in.Lon == nil {
		return models.StopRequest{}, fmt.Errorf("%w: missing data", ErrInvalidInput)
	}
	if !geo.IsValidLatLon(*in.Lat, *in.Lon) {
		return models.StopRequest{}, fmt.Errorf("%w: invalid coordinates", ErrInvalidInput)
	}

	created, err := s.Store.CreateRequest(ctx, models.StopRequest{
		LineCode:      lineCode,
		Lat:           *in.Lat,
		Lon:           *in.Lon,
		Note:          truncate(strings.TrimSpace(in.Note), maxNoteLength),
		PreferredDays: strings.TrimSpace(in.PreferredDays),
		PreferredTime: strings.TrimSpace(in.PreferredTime),
	})
	if err != nil {
		return models.StopRequest{}, err
	}

	metrics.StopRequests.WithLabelValues("created").Inc()
	s.Logger.Info("Stored stop request", "id", created.ID, "line_code", created.LineCode)
	return created, nil
}

// Reject marks a pending request as rejected.
func (s *Service) Reject(ctx context.Context, id int64) error {
	if err := s.Store.RejectRequest(ctx, id); err != nil {
		return err
	}
	metrics.StopRequests.WithLabelValues(models.StatusRejected).Inc()
	s.Logger.Info("Rejected stop request", "id", id)
	return nil
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
