package geodata

import (
	"archive/zip"
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

const testLinesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"codLinea": "11"},
     "geometry": {"type": "LineString", "coordinates": [[11.340, 44.490], [11.345, 44.495]]}},
    {"type": "Feature", "properties": {"codLinea": "11"},
     "geometry": {"type": "LineString", "coordinates": [[11.345, 44.495], [11.350, 44.490]]}},
    {"type": "Feature", "properties": {"codLinea": 20},
     "geometry": {"type": "MultiLineString", "coordinates": [[[11.300, 44.500], [11.310, 44.500]], [[11.310, 44.500], [11.320, 44.500]]]}}
  ]
}`

const testStopsGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"codLinea": "11", "nomeFermat": "Stazione"},
     "geometry": {"type": "Point", "coordinates": [11.350, 44.490]}},
    {"type": "Feature", "properties": {"codLinea": "11", "nomeFermat": ""},
     "geometry": {"type": "Point", "coordinates": [11.340, 44.490]}},
    {"type": "Feature", "properties": {"codLinea": 20},
     "geometry": {"type": "Point", "coordinates": [11.305, 44.500]}}
  ]
}`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeGeoJSON writes the test lines and stops files into a temp dir and
// returns the dir.
func writeGeoJSON(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "linee_bus.geojson"), testLinesGeoJSON)
	writeFile(t, filepath.Join(dir, "fermate_bus.geojson"), testStopsGeoJSON)
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// buildGTFSZip returns a minimal static GTFS bundle with one route whose
// short name is "11", a two segment shape and three stops.
func buildGTFSZip(t *testing.T) []byte {
	t.Helper()
	files := map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"TPER,TPER,https://example.com,Europe/Rome\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"R11,TPER,11,Linea 11,3\n",
		"stops.txt": "stop_id,stop_name,stop_lat,stop_lon\n" +
			"S1,Uno,44.490,11.340\n" +
			"S2,Due,44.495,11.345\n" +
			"S3,Tre,44.490,11.350\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"WK,1,1,1,1,1,0,0,20250101,20261231\n",
		"shapes.txt": "shape_id,shape_pt_lat,shape_pt_lon,shape_pt_sequence\n" +
			"SH11,44.490,11.340,1\n" +
			"SH11,44.495,11.345,2\n" +
			"SH11,44.490,11.350,3\n",
		"trips.txt": "route_id,service_id,trip_id,shape_id\n" +
			"R11,WK,T1,SH11\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"T1,08:00:00,08:00:00,S1,1\n" +
			"T1,08:05:00,08:05:00,S2,2\n" +
			"T1,08:10:00,08:10:00,S3,3\n",
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}
	return buf.Bytes()
}
