package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"stopplanner.sistper.org/internal/geodata"
	"stopplanner.sistper.org/internal/middleware"
	"stopplanner.sistper.org/internal/planner"
	"stopplanner.sistper.org/internal/report"
	"stopplanner.sistper.org/internal/utils"
)

const maxBodyBytes = 1 << 20

var errBadID = errors.New("invalid id")

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// readJSON decodes a single JSON value from the request body into dst.
func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: body: %v", planner.ErrInvalidInput, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: body must hold a single JSON value", planner.ErrInvalidInput)
	}
	return nil
}

func idParam(r *http.Request) (int64, error) {
	raw := httprouter.ParamsFromContext(r.Context()).ByName("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: %q", errBadID, raw)
	}
	return id, nil
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{"ok": false, "error": message})
}

func (app *Application) serverError(w http.ResponseWriter, r *http.Request, err error) {
	app.Logger.Error("Request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.RequestIDFromContext(r.Context()),
		"error", err,
	)
	report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
		Tags: utils.MakeMap("path", r.URL.Path, "request_id", middleware.RequestIDFromContext(r.Context())),
	})
	errorResponse(w, http.StatusInternalServerError, "internal error")
}

// handleError maps planner and persistence errors to HTTP statuses.
func (app *Application) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, planner.ErrInvalidInput), errors.Is(err, errBadID):
		errorResponse(w, http.StatusBadRequest, err.Error())
	case planner.IsNotFound(err):
		errorResponse(w, http.StatusNotFound, "not found")
	case planner.IsConflict(err):
		errorResponse(w, http.StatusConflict, "already processed")
	case errors.Is(err, geodata.ErrNotLoaded):
		errorResponse(w, http.StatusServiceUnavailable, "geodata not loaded")
	default:
		app.serverError(w, r, err)
	}
}
