package app

import (
	"context"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"stopplanner.sistper.org/internal/middleware"
)

// Routes registers every endpoint and wraps the router with the middleware
// chain: security headers, Sentry, request id, then the access log.
//
// The metrics exposition is cached for 10s; its refresh goroutine stops with ctx.
func (app *Application) Routes(ctx context.Context) http.Handler {
	router := httprouter.New()

	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errorResponse(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	router.HandlerFunc(http.MethodPost, "/request-stop", app.requestStopHandler)
	router.HandlerFunc(http.MethodGet, "/api/route/:line", app.lineRouteHandler)
	router.HandlerFunc(http.MethodGet, "/api/pending-points", app.pendingPointsHandler)
	router.HandlerFunc(http.MethodGet, "/api/lines", app.linesHandler)

	router.HandlerFunc(http.MethodPost, "/admin/login", app.loginHandler)
	router.HandlerFunc(http.MethodPost, "/admin/logout", app.logoutHandler)
	router.HandlerFunc(http.MethodGet, "/admin/dashboard", app.requireAdmin(app.dashboardHandler))
	router.HandlerFunc(http.MethodGet, "/admin/clusters/:line", app.requireAdmin(app.lineClustersHandler))
	router.HandlerFunc(http.MethodGet, "/admin/preview/:id", app.requireAdmin(app.previewHandler))
	router.HandlerFunc(http.MethodPost, "/admin/approve/:id", app.requireAdmin(app.approveHandler))
	router.HandlerFunc(http.MethodPost, "/admin/reject/:id", app.requireAdmin(app.rejectHandler))
	router.HandlerFunc(http.MethodPost, "/admin/approve-cluster", app.requireAdmin(app.approveClusterHandler))

	router.HandlerFunc(http.MethodGet, "/v1/healthcheck", app.healthcheckHandler)
	router.Handler(http.MethodGet, "/metrics", middleware.NewCachedPromHandler(ctx, prometheus.DefaultGatherer, 10*time.Second))

	handler := middleware.AccessLog(app.Logger)(router)
	handler = middleware.RequestID(handler)
	handler = middleware.SentryMiddleware(handler)
	return middleware.SecurityHeaders(handler)
}
