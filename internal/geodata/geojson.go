package geodata

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"stopplanner.sistper.org/internal/models"
)

const (
	lineCodeProperty = "codLinea"
	stopNameProperty = "nomeFermat"
)

// loadGeoJSON builds a snapshot from a lines file (LineString or
// MultiLineString features) and a stops file (Point features). Both carry
// the line code in the codLinea property.
func loadGeoJSON(linesPath, stopsPath string) (*Snapshot, error) {
	lines, err := readFeatureCollection(linesPath)
	if err != nil {
		return nil, err
	}
	stops, err := readFeatureCollection(stopsPath)
	if err != nil {
		return nil, err
	}

	snap := newSnapshot(linesPath)

	for i, f := range lines.Features {
		code, ok := lineCode(f.Properties)
		if !ok {
			return nil, fmt.Errorf("%s: feature %d has no %s", linesPath, i, lineCodeProperty)
		}
		l := snap.line(code)
		switch g := f.Geometry.(type) {
		case orb.LineString:
			l.Paths = append(l.Paths, g)
		case orb.MultiLineString:
			for _, ls := range g {
				l.Paths = append(l.Paths, ls)
			}
		default:
			return nil, fmt.Errorf("%s: feature %d has unsupported geometry %T", linesPath, i, f.Geometry)
		}
	}

	for i, f := range stops.Features {
		code, ok := lineCode(f.Properties)
		if !ok {
			return nil, fmt.Errorf("%s: feature %d has no %s", stopsPath, i, lineCodeProperty)
		}
		p, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("%s: feature %d has unsupported geometry %T", stopsPath, i, f.Geometry)
		}
		name := strings.TrimSpace(f.Properties.MustString(stopNameProperty, ""))
		if name == "" {
			name = models.DefaultStopName
		}
		l := snap.line(code)
		l.Stops = append(l.Stops, models.NativeStop{Point: models.PointFromOrb(p), Name: name})
	}

	return snap, nil
}

func readFeatureCollection(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return fc, nil
}

// lineCode reads codLinea, which some exports store as a number.
func lineCode(props geojson.Properties) (string, bool) {
	switch v := props[lineCodeProperty].(type) {
	case string:
		v = strings.TrimSpace(v)
		return v, v != ""
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", false
	}
}
