package route

import (
	"errors"

	"stopplanner.sistper.org/internal/geo"
)

// Failure kinds of the route engine. Every operation returns one of these
// (possibly wrapped) and leaves the fallback value to the caller.
var (
	ErrNoGeometry        = geo.ErrNoGeometry
	ErrProjectionFailure = geo.ErrProjectionFailure
	ErrNoStops           = errors.New("line has no native stops")
	ErrInvalidPoint      = errors.New("point has non-finite coordinates")
)

// FailureKind maps an engine error to a short label for logs and metrics.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoGeometry):
		return "no_geometry"
	case errors.Is(err, ErrNoStops):
		return "no_stops"
	case errors.Is(err, ErrProjectionFailure):
		return "projection_failure"
	case errors.Is(err, ErrInvalidPoint):
		return "invalid_point"
	default:
		return "unknown"
	}
}
