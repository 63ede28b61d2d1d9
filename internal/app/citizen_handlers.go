package app

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"stopplanner.sistper.org/internal/geo"
	"stopplanner.sistper.org/internal/planner"
)

func (app *Application) requestStopHandler(w http.ResponseWriter, r *http.Request) {
	var in planner.NewRequest
	if err := readJSON(w, r, &in); err != nil {
		app.handleError(w, r, err)
		return
	}

	created, err := app.Planner.SubmitRequest(r.Context(), in)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	if bbox, ok := app.BoundingBoxStore.Get(created.LineCode); ok && !bbox.Contains(created.Lat, created.Lon) {
		app.Logger.Info("Stop request outside line area", "id", created.ID, "line_code", created.LineCode)
	}
	writeJSON(w, http.StatusCreated, envelope{"ok": true, "id": created.ID})
}

func (app *Application) lineRouteHandler(w http.ResponseWriter, r *http.Request) {
	line := httprouter.ParamsFromContext(r.Context()).ByName("line")
	if _, loaded := app.GeodataService.Store.Get(); !loaded {
		errorResponse(w, http.StatusServiceUnavailable, "geodata not loaded")
		return
	}
	if !app.knownLine(line) {
		errorResponse(w, http.StatusNotFound, "unknown line")
		return
	}

	lr, err := app.Planner.Route(r.Context(), line)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"ok":            true,
		"line_code":     lr.LineCode,
		"stops":         lr.Stops,
		"pending_count": lr.PendingCount,
	})
}

func (app *Application) pendingPointsHandler(w http.ResponseWriter, r *http.Request) {
	points, err := app.Planner.PendingPoints(r.Context())
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"ok": true, "points": points})
}

// knownLine reports false only for a line missing from loaded geodata, so
// requests made before the first load still reach the planner.
func (app *Application) knownLine(line string) bool {
	if _, loaded := app.GeodataService.Store.Get(); !loaded {
		return true
	}
	return app.GeodataService.Store.HasLine(line)
}

type lineSummary struct {
	LineCode string           `json:"line_code"`
	BBox     *geo.BoundingBox `json:"bbox"`
}

func (app *Application) linesHandler(w http.ResponseWriter, r *http.Request) {
	codes := app.GeodataService.Store.Lines()
	lines := make([]lineSummary, len(codes))
	for i, code := range codes {
		lines[i] = lineSummary{LineCode: code}
		if bbox, ok := app.BoundingBoxStore.Get(code); ok {
			lines[i].BBox = &bbox
		}
	}
	writeJSON(w, http.StatusOK, envelope{"ok": true, "lines": lines})
}
