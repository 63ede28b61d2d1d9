package app

import (
	"log/slog"
	"net/http"

	"stopplanner.sistper.org/internal/auth"
	"stopplanner.sistper.org/internal/config"
	"stopplanner.sistper.org/internal/geo"
	"stopplanner.sistper.org/internal/geodata"
	"stopplanner.sistper.org/internal/planner"
	"stopplanner.sistper.org/internal/store"
)

// Application wires the configuration, geodata, persistence and planner
// together behind the HTTP API.
type Application struct {
	Config           *config.Config
	GeodataService   *geodata.Service
	BoundingBoxStore *geo.BoundingBoxStore
	Planner          *planner.Service
	Auth             *auth.Authenticator
	Store            *store.Store
	Logger           *slog.Logger
	Version          string
}

// New creates and wires all dependencies for the Application. The geodata
// store starts empty; call GeodataService.Load before serving traffic.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, client *http.Client, version string) *Application {
	geodataStore := geodata.NewStore()
	boundingBoxStore := geo.NewBoundingBoxStore()

	geodataService := geodata.NewService(geodataStore, boundingBoxStore, cfg, logger, client)
	plannerService := planner.NewService(geodataStore, st, logger, cfg.ClusterRadius)
	authenticator := auth.NewAuthenticator(cfg.AdminPasswordHash, cfg.JWTSecret, auth.DefaultTTL)

	return &Application{
		Config:           cfg,
		GeodataService:   geodataService,
		BoundingBoxStore: boundingBoxStore,
		Planner:          plannerService,
		Auth:             authenticator,
		Store:            st,
		Logger:           logger,
		Version:          version,
	}
}

// secureCookies reports whether session cookies must be sent over HTTPS only.
func (app *Application) secureCookies() bool {
	return app.Config.Env == "production"
}
