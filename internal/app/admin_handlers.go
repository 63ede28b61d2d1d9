package app

import (
	"errors"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"stopplanner.sistper.org/internal/auth"
	"stopplanner.sistper.org/internal/planner"
)

// requireAdmin rejects requests without a valid admin session with 403.
func (app *Application) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, err := app.Auth.Authorize(r)
		if err != nil {
			app.Logger.Debug("Admin authorization failed", "path", r.URL.Path, "error", err)
			errorResponse(w, http.StatusForbidden, "forbidden")
			return
		}
		next(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
	}
}

// audit logs an admin action with the id of the session that made it.
func (app *Application) audit(r *http.Request, action string, args ...any) {
	session := ""
	if c, ok := auth.ClaimsFromContext(r.Context()); ok {
		session = c.ID
	}
	app.Logger.Info("Admin action", append([]any{"action", action, "session", session}, args...)...)
}

func (app *Application) loginHandler(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := readJSON(w, r, &in); err != nil {
		app.handleError(w, r, err)
		return
	}

	if err := app.Auth.CheckPassword(in.Password); err != nil {
		app.Logger.Warn("Admin login failed", "remote_addr", r.RemoteAddr)
		errorResponse(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, expires, err := app.Auth.IssueToken()
	if err != nil {
		app.serverError(w, r, err)
		return
	}
	http.SetCookie(w, auth.SessionCookie(token, expires, app.secureCookies()))
	app.Logger.Info("Admin logged in", "remote_addr", r.RemoteAddr)
	writeJSON(w, http.StatusOK, envelope{"ok": true, "token": token, "expires_at": expires})
}

func (app *Application) logoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, auth.ClearedCookie(app.secureCookies()))
	writeJSON(w, http.StatusOK, envelope{"ok": true})
}

func (app *Application) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	d, err := app.Planner.Dashboard(r.Context())
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		planner.Dashboard
	}{true, d})
}

func (app *Application) previewHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		app.handleError(w, r, err)
		return
	}

	p, err := app.Planner.Preview(r.Context(), id)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		planner.Preview
	}{true, p})
}

func (app *Application) approveHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		app.handleError(w, r, err)
		return
	}

	a, err := app.Planner.Approve(r.Context(), id)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	app.audit(r, "approve", "id", id, "line_code", a.LineCode)
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		planner.Approval
	}{true, a})
}

func (app *Application) rejectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		app.handleError(w, r, err)
		return
	}

	if err := app.Planner.Reject(r.Context(), id); err != nil {
		app.handleError(w, r, err)
		return
	}
	app.audit(r, "reject", "id", id)
	writeJSON(w, http.StatusOK, envelope{"ok": true})
}

func (app *Application) approveClusterHandler(w http.ResponseWriter, r *http.Request) {
	var in planner.ClusterApproval
	if err := readJSON(w, r, &in); err != nil {
		app.handleError(w, r, err)
		return
	}

	a, err := app.Planner.ApproveCluster(r.Context(), in)
	if err != nil {
		if errors.Is(err, planner.ErrInvalidInput) {
			app.Logger.Info("Rejected cluster approval", "error", err)
		}
		app.handleError(w, r, err)
		return
	}
	app.audit(r, "approve_cluster", "ids", in.IDs, "line_code", a.LineCode)
	writeJSON(w, http.StatusOK, struct {
		OK bool `json:"ok"`
		planner.Approval
	}{true, a})
}

func (app *Application) lineClustersHandler(w http.ResponseWriter, r *http.Request) {
	line := httprouter.ParamsFromContext(r.Context()).ByName("line")

	clusters, err := app.Planner.LineClusters(r.Context(), line)
	if err != nil {
		app.handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"ok": true, "line_code": line, "clusters": clusters})
}
