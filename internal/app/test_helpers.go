package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/bcrypt"
	"stopplanner.sistper.org/internal/config"
	"stopplanner.sistper.org/internal/store"
)

const testPassword = "correct horse battery"

// Line "11" is a triangle loop; its stops are listed out of route order.
const testLines = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "properties": {"codLinea": "11"},
   "geometry": {"type": "LineString", "coordinates": [[11.340, 44.490], [11.345, 44.495], [11.350, 44.490]]}}
]}`

const testStops = `{"type": "FeatureCollection", "features": [
  {"type": "Feature", "properties": {"codLinea": "11", "nomeFermat": "Tre"},
   "geometry": {"type": "Point", "coordinates": [11.350, 44.490]}},
  {"type": "Feature", "properties": {"codLinea": "11", "nomeFermat": "Uno"},
   "geometry": {"type": "Point", "coordinates": [11.340, 44.490]}},
  {"type": "Feature", "properties": {"codLinea": "11", "nomeFermat": "Due"},
   "geometry": {"type": "Point", "coordinates": [11.345, 44.495]}}
]}`

// newTestApplication returns an Application backed by a sqlite database and
// GeoJSON files in a temp dir. Geodata is loaded when loadGeodata is true.
func newTestApplication(t *testing.T, loadGeodata bool) *Application {
	t.Helper()

	dir := t.TempDir()
	for name, content := range map[string]string{
		config.DefaultLinesFile: testLines,
		config.DefaultStopsFile: testStops,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.NewConfig()
	cfg.Env = "testing"
	cfg.DataDir = dir
	cfg.AdminPasswordHash = string(hash)
	cfg.JWTSecret = "test-secret-0123456789"

	st, err := store.Open(context.Background(), filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	app := New(cfg, st, logger, http.DefaultClient, "test-version")

	if loadGeodata {
		if err := app.GeodataService.Load(context.Background()); err != nil {
			t.Fatalf("failed to load geodata: %v", err)
		}
	}
	return app
}

// newTestServer serves the full route table of app.
func newTestServer(t *testing.T, app *Application) *httptest.Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(app.Routes(ctx))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return srv
}

// do sends a request with an optional JSON body and bearer token and
// decodes the JSON response into a map.
func do(t *testing.T, srv *httptest.Server, method, path string, body any, token string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("%s %s: failed to decode response: %v", method, path, err)
	}
	return resp.StatusCode, out
}

// login returns an admin session token.
func login(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	status, body := do(t, srv, http.MethodPost, "/admin/login", map[string]string{"password": testPassword}, "")
	if status != http.StatusOK {
		t.Fatalf("login: got status %d, body %v", status, body)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login: no token in response")
	}
	return token
}

// stopNames extracts the stop names from a decoded route array.
func stopNames(t *testing.T, v any) []string {
	t.Helper()
	stops, ok := v.([]any)
	if !ok {
		t.Fatalf("expected a stop array, got %T", v)
	}
	names := make([]string, len(stops))
	for i, s := range stops {
		names[i], _ = s.(map[string]any)["name"].(string)
	}
	return names
}
