package app

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"stopplanner.sistper.org/internal/middleware"
)

func TestHealthcheckHandler(t *testing.T) {
	tests := []struct {
		name       string
		load       bool
		wantStatus int
		wantReady  bool
	}{
		{"ready once geodata is loaded", true, http.StatusOK, true},
		{"not ready before the first load", false, http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApplication(t, tt.load)

			rr := httptest.NewRecorder()
			request, err := http.NewRequest(http.MethodGet, "/v1/healthcheck", nil)
			if err != nil {
				t.Fatal(err)
			}
			app.healthcheckHandler(rr, request)

			if rr.Code != tt.wantStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, tt.wantStatus)
			}

			var resp HealthStatus
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Ready != tt.wantReady {
				t.Errorf("expected ready %v, got %v", tt.wantReady, resp.Ready)
			}
			if !resp.Database {
				t.Error("expected the database to be reachable")
			}
			if resp.Environment != "testing" || resp.Version != "test-version" {
				t.Errorf("unexpected environment/version: %q %q", resp.Environment, resp.Version)
			}
		})
	}
}

func TestRequestStop(t *testing.T) {
	srv := newTestServer(t, newTestApplication(t, true))

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"valid request", map[string]any{"line_code": "11", "lat": 44.4925, "lon": 11.3425, "note": "school"}, http.StatusCreated},
		{"missing coordinates", map[string]any{"line_code": "11"}, http.StatusBadRequest},
		{"missing line", map[string]any{"lat": 44.4925, "lon": 11.3425}, http.StatusBadRequest},
		{"latitude out of range", map[string]any{"line_code": "11", "lat": 91.0, "lon": 11.3425}, http.StatusBadRequest},
		{"malformed body", `{"line_code": "11",`, http.StatusBadRequest},
		{"coordinates as text", `{"line_code": "11", "lat": "x", "lon": "y"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, srv, http.MethodPost, "/request-stop", tt.body, "")
			if status != tt.wantStatus {
				t.Fatalf("got status %d want %d, body %v", status, tt.wantStatus, body)
			}
			ok, _ := body["ok"].(bool)
			if ok != (tt.wantStatus == http.StatusCreated) {
				t.Errorf("unexpected ok flag %v", body["ok"])
			}
			if ok {
				if id, _ := body["id"].(float64); id < 1 {
					t.Errorf("expected a positive id, got %v", body["id"])
				}
			}
		})
	}
}

func TestLineRoute(t *testing.T) {
	srv := newTestServer(t, newTestApplication(t, true))
	do(t, srv, http.MethodPost, "/request-stop", map[string]any{"line_code": "11", "lat": 44.4925, "lon": 11.3425}, "")

	status, body := do(t, srv, http.MethodGet, "/api/route/11", nil, "")
	if status != http.StatusOK {
		t.Fatalf("got status %d", status)
	}
	if got, want := stopNames(t, body["stops"]), []string{"Uno", "Due", "Tre"}; !reflect.DeepEqual(got, want) {
		t.Errorf("stops not ordered along the line: got %v want %v", got, want)
	}
	if body["pending_count"] != float64(1) {
		t.Errorf("expected 1 pending request, got %v", body["pending_count"])
	}

	status, _ = do(t, srv, http.MethodGet, "/api/route/99", nil, "")
	if status != http.StatusNotFound {
		t.Errorf("unknown line: got status %d want %d", status, http.StatusNotFound)
	}
}

func TestLineRouteBeforeGeodataLoad(t *testing.T) {
	srv := newTestServer(t, newTestApplication(t, false))

	status, _ := do(t, srv, http.MethodGet, "/api/route/11", nil, "")
	if status != http.StatusServiceUnavailable {
		t.Errorf("got status %d want %d", status, http.StatusServiceUnavailable)
	}
}

func TestPreviewBeforeGeodataLoad(t *testing.T) {
	srv := newTestServer(t, newTestApplication(t, false))
	token := login(t, srv)

	status, created := do(t, srv, http.MethodPost, "/request-stop", map[string]any{"line_code": "11", "lat": 44.4925, "lon": 11.3425}, "")
	if status != http.StatusCreated {
		t.Fatalf("request-stop: got %d %v", status, created)
	}
	id := int64(created["id"].(float64))

	status, preview := do(t, srv, http.MethodGet, fmt.Sprintf("/admin/preview/%d", id), nil, token)
	if status != http.StatusOK {
		t.Fatalf("preview: got %d %v", status, preview)
	}
	if preview["insert_idx"] != float64(0) {
		t.Errorf("expected insert_idx 0, got %v", preview["insert_idx"])
	}
	if after, _ := preview["after"].([]any); len(after) != 1 {
		t.Errorf("expected a candidate-only route, got %v", preview["after"])
	}
}

func TestLinesAndPendingPoints(t *testing.T) {
	srv := newTestServer(t, newTestApplication(t, true))
	do(t, srv, http.MethodPost, "/request-stop", map[string]any{"line_code": "11", "lat": 44.4925, "lon": 11.3425}, "")

	_, body := do(t, srv, http.MethodGet, "/api/lines", nil, "")
	lines, _ := body["lines"].([]any)
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %v", body["lines"])
	}
	line := lines[0].(map[string]any)
	bbox, _ := line["bbox"].(map[string]any)
	if line["line_code"] != "11" || bbox["min_lat"] != 44.49 || bbox["max_lon"] != 11.35 {
		t.Errorf("unexpected line summary %v", line)
	}

	_, body = do(t, srv, http.MethodGet, "/api/pending-points", nil, "")
	points, _ := body["points"].([]any)
	if len(points) != 1 {
		t.Fatalf("expected one pending point, got %v", body["points"])
	}
	point := points[0].(map[string]any)
	if point["line"] != "11" || point["lat"] != 44.4925 || point["cell"] == "" {
		t.Errorf("unexpected pending point %v", point)
	}
}

func TestAdminRoutesRequireSession(t *testing.T) {
	srv := newTestServer(t, newTestApplication(t, true))

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/admin/dashboard"},
		{http.MethodGet, "/admin/clusters/11"},
		{http.MethodGet, "/admin/preview/1"},
		{http.MethodPost, "/admin/approve/1"},
		{http.MethodPost, "/admin/reject/1"},
		{http.MethodPost, "/admin/approve-cluster"},
	} {
		status, body := do(t, srv, route.method, route.path, nil, "")
		if status != http.StatusForbidden || body["ok"] != false {
			t.Errorf("%s %s: got %d %v", route.method, route.path, status, body)
		}
		status, _ = do(t, srv, route.method, route.path, nil, "not-a-token")
		if status != http.StatusForbidden {
			t.Errorf("%s %s with a bad token: got %d", route.method, route.path, status)
		}
	}
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t, newTestApplication(t, true))

	status, _ := do(t, srv, http.MethodPost, "/admin/login", map[string]string{"password": "wrong"}, "")
	if status != http.StatusUnauthorized {
		t.Errorf("wrong password: got %d want %d", status, http.StatusUnauthorized)
	}

	resp, err := srv.Client().Post(srv.URL+"/admin/login", "application/json",
		strings.NewReader(fmt.Sprintf(`{"password": %q}`, testPassword)))
	if err != nil {
		t.Fatal(err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	var session *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "stopplanner_admin" {
			session = c
		}
	}
	if session == nil || !session.HttpOnly {
		t.Fatalf("expected an http-only session cookie, got %v", resp.Cookies())
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/admin/dashboard", nil)
	req.AddCookie(session)
	resp, err = srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("dashboard with session cookie: got %d", resp.StatusCode)
	}
}

func TestPreviewApproveReject(t *testing.T) {
	srv := newTestServer(t, newTestApplication(t, true))
	token := login(t, srv)

	_, created := do(t, srv, http.MethodPost, "/request-stop", map[string]any{"line_code": "11", "lat": 44.4925, "lon": 11.3425}, "")
	id := int64(created["id"].(float64))

	status, preview := do(t, srv, http.MethodGet, fmt.Sprintf("/admin/preview/%d", id), nil, token)
	if status != http.StatusOK {
		t.Fatalf("preview: got %d %v", status, preview)
	}
	if preview["insert_idx"] != float64(1) {
		t.Errorf("expected insert_idx 1, got %v", preview["insert_idx"])
	}
	if got, want := stopNames(t, preview["after"]), []string{"Uno", "Nuova fermata", "Due", "Tre"}; !reflect.DeepEqual(got, want) {
		t.Errorf("preview after: got %v want %v", got, want)
	}
	if added, _ := preview["added_meters"].(float64); added <= 0 {
		t.Errorf("expected a positive detour, got %v", preview["added_meters"])
	}

	status, approval := do(t, srv, http.MethodPost, fmt.Sprintf("/admin/approve/%d", id), nil, token)
	if status != http.StatusOK {
		t.Fatalf("approve: got %d %v", status, approval)
	}
	if approval["insert_after"] != float64(1) || approval["line_code"] != "11" {
		t.Errorf("unexpected approval %v", approval)
	}

	_, body := do(t, srv, http.MethodGet, "/api/route/11", nil, "")
	if got, want := stopNames(t, body["stops"]), []string{"Uno", "Nuova fermata ✓", "Due", "Tre"}; !reflect.DeepEqual(got, want) {
		t.Errorf("canonical route after approval: got %v want %v", got, want)
	}

	status, _ = do(t, srv, http.MethodPost, fmt.Sprintf("/admin/approve/%d", id), nil, token)
	if status != http.StatusConflict {
		t.Errorf("second approval: got %d want %d", status, http.StatusConflict)
	}
	status, _ = do(t, srv, http.MethodPost, fmt.Sprintf("/admin/reject/%d", id), nil, token)
	if status != http.StatusConflict {
		t.Errorf("rejecting an approved request: got %d want %d", status, http.StatusConflict)
	}

	status, _ = do(t, srv, http.MethodPost, "/admin/reject/9999", nil, token)
	if status != http.StatusNotFound {
		t.Errorf("unknown request: got %d want %d", status, http.StatusNotFound)
	}
	status, _ = do(t, srv, http.MethodGet, "/admin/preview/abc", nil, token)
	if status != http.StatusBadRequest {
		t.Errorf("malformed id: got %d want %d", status, http.StatusBadRequest)
	}

	_, rejected := do(t, srv, http.MethodPost, "/request-stop", map[string]any{"line_code": "11", "lat": 44.491, "lon": 11.349}, "")
	status, _ = do(t, srv, http.MethodPost, fmt.Sprintf("/admin/reject/%d", int64(rejected["id"].(float64))), nil, token)
	if status != http.StatusOK {
		t.Errorf("reject: got %d", status)
	}
}

func TestApproveCluster(t *testing.T) {
	srv := newTestServer(t, newTestApplication(t, true))
	token := login(t, srv)

	var ids []int64
	for _, p := range [][2]float64{{44.4925, 11.3425}, {44.4926, 11.3426}} {
		_, created := do(t, srv, http.MethodPost, "/request-stop", map[string]any{"line_code": "11", "lat": p[0], "lon": p[1]}, "")
		ids = append(ids, int64(created["id"].(float64)))
	}

	_, dashboard := do(t, srv, http.MethodGet, "/admin/dashboard", nil, token)
	clusters, _ := dashboard["clusters"].(map[string]any)["11"].([]any)
	if len(clusters) != 1 {
		t.Fatalf("expected the two requests in one cluster, got %v", dashboard["clusters"])
	}
	cluster := clusters[0].(map[string]any)

	_, byLine := do(t, srv, http.MethodGet, "/admin/clusters/11", nil, token)
	if lineClusters, _ := byLine["clusters"].([]any); len(lineClusters) != 1 {
		t.Errorf("expected one cluster for line 11, got %v", byLine["clusters"])
	}

	status, _ := do(t, srv, http.MethodPost, "/admin/approve-cluster", map[string]any{"ids": ids, "line_code": "11"}, token)
	if status != http.StatusBadRequest {
		t.Errorf("missing coordinates: got %d want %d", status, http.StatusBadRequest)
	}

	status, approval := do(t, srv, http.MethodPost, "/admin/approve-cluster", map[string]any{
		"ids":       ids,
		"lat":       cluster["lat"],
		"lon":       cluster["lon"],
		"line_code": "11",
	}, token)
	if status != http.StatusOK {
		t.Fatalf("approve cluster: got %d %v", status, approval)
	}
	if got := stopNames(t, approval["optimized_route"]); len(got) != 4 {
		t.Errorf("expected one stop added to the route, got %v", got)
	}

	_, dashboard = do(t, srv, http.MethodGet, "/admin/dashboard", nil, token)
	if pending, _ := dashboard["pending"].([]any); len(pending) != 0 {
		t.Errorf("expected no pending requests left, got %v", pending)
	}
	if approved, _ := dashboard["approved"].([]any); len(approved) != 2 {
		t.Errorf("expected both requests approved, got %v", approved)
	}
}

func TestMiddlewareChain(t *testing.T) {
	srv := newTestServer(t, newTestApplication(t, true))

	resp, err := srv.Client().Get(srv.URL + "/api/lines")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers missing")
	}
	if resp.Header.Get(middleware.RequestIDHeader) == "" {
		t.Error("request id missing")
	}

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(data), "stopplanner_") {
		t.Errorf("metrics endpoint: got %d", resp.StatusCode)
	}

	status, body := do(t, srv, http.MethodGet, "/nowhere", nil, "")
	if status != http.StatusNotFound || body["ok"] != false {
		t.Errorf("unknown path: got %d %v", status, body)
	}
}
