package app

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus is the body of GET /v1/healthcheck.
type HealthStatus struct {
	Status      string `json:"status"`
	Environment string `json:"environment"`
	Version     string `json:"version"`
	Lines       int    `json:"lines"`
	Database    bool   `json:"database"`
	Ready       bool   `json:"ready"`
}

// healthcheckHandler reports ready once geodata is loaded and the database
// answers; otherwise it responds 500 so load balancers hold traffic back.
func (app *Application) healthcheckHandler(w http.ResponseWriter, r *http.Request) {
	_, loaded := app.GeodataService.Store.Get()

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	dbOK := app.Store.HealthCheck(ctx) == nil

	status := HealthStatus{
		Status:      "available",
		Environment: app.Config.Env,
		Version:     app.Version,
		Lines:       len(app.GeodataService.Store.Lines()),
		Database:    dbOK,
		Ready:       loaded && dbOK,
	}

	code := http.StatusOK
	if !status.Ready {
		code = http.StatusInternalServerError
	}
	writeJSON(w, code, status)
}
