package geodata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	remoteGtfs "github.com/jamespfennell/gtfs"
	"github.com/paulmach/orb"
	"stopplanner.sistper.org/internal/config"
	"stopplanner.sistper.org/internal/models"
	"stopplanner.sistper.org/internal/utils"
)

const gtfsCachePrefix = "gtfs"

// fetchGTFSBundle returns the raw bytes of a GTFS static bundle. Remote
// bundles are downloaded with backoff and cached in cacheDir; when the
// download fails the last cached copy is used instead.
func fetchGTFSBundle(ctx context.Context, client *http.Client, source, cacheDir string, maxRetries int) ([]byte, error) {
	if !strings.HasPrefix(source, "http://") && !strings.HasPrefix(source, "https://") {
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("failed to read GTFS bundle %s: %w", source, err)
		}
		return data, nil
	}

	data, err := downloadGTFSBundle(ctx, client, source, maxRetries)
	if err != nil {
		if cacheDir == "" {
			return nil, err
		}
		cached, cacheErr := utils.GetLastCachedFile(cacheDir, utils.CacheFileName(gtfsCachePrefix, source, ""))
		if cacheErr != nil {
			return nil, err
		}
		data, cacheErr = os.ReadFile(cached)
		if cacheErr != nil {
			return nil, err
		}
		return data, nil
	}

	if cacheDir != "" {
		if err := utils.EnsureDirectory(cacheDir); err == nil {
			path := filepath.Join(cacheDir, utils.CacheFileName(gtfsCachePrefix, source, ".zip"))
			_ = os.WriteFile(path, data, 0o644)
		}
	}
	return data, nil
}

func downloadGTFSBundle(ctx context.Context, client *http.Client, url string, maxRetries int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}

	resp, err := config.DoWithBackoff(ctx, client, req, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("failed to make GET request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected response status %d when downloading GTFS bundle from %s", resp.StatusCode, url)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read GTFS bundle response body from %s: %w", url, err)
	}
	return data, nil
}

// parseGTFS turns a static bundle into a snapshot. Each route becomes a line
// coded by its short name (falling back to its id). The line's paths are the
// distinct shapes of its trips, and its stops are those of its longest trip
// in stop sequence order.
func parseGTFS(data []byte, source string) (*Snapshot, error) {
	static, err := remoteGtfs.ParseStatic(data, remoteGtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse GTFS static data from %s: %w", source, err)
	}
	return snapshotFromStatic(static, source), nil
}

func snapshotFromStatic(static *remoteGtfs.Static, source string) *Snapshot {
	snap := newSnapshot(source)

	seenShapes := make(map[string]map[string]bool)
	longest := make(map[string]*remoteGtfs.ScheduledTrip)

	for i := range static.Trips {
		trip := &static.Trips[i]
		if trip.Route == nil {
			continue
		}
		code := routeLineCode(trip.Route)
		l := snap.line(code)

		if trip.Shape != nil && len(trip.Shape.Points) >= 2 {
			if seenShapes[code] == nil {
				seenShapes[code] = make(map[string]bool)
			}
			if !seenShapes[code][trip.Shape.ID] {
				seenShapes[code][trip.Shape.ID] = true
				ls := make(orb.LineString, 0, len(trip.Shape.Points))
				for _, p := range trip.Shape.Points {
					ls = append(ls, orb.Point{p.Longitude, p.Latitude})
				}
				l.Paths = append(l.Paths, ls)
			}
		}

		if best, ok := longest[code]; !ok || len(trip.StopTimes) > len(best.StopTimes) {
			longest[code] = trip
		}
	}

	for code, trip := range longest {
		stopTimes := append([]remoteGtfs.ScheduledStopTime(nil), trip.StopTimes...)
		sort.SliceStable(stopTimes, func(a, b int) bool {
			return stopTimes[a].StopSequence < stopTimes[b].StopSequence
		})
		l := snap.line(code)
		for _, st := range stopTimes {
			if st.Stop == nil || st.Stop.Latitude == nil || st.Stop.Longitude == nil {
				continue
			}
			name := strings.TrimSpace(st.Stop.Name)
			if name == "" {
				name = models.DefaultStopName
			}
			l.Stops = append(l.Stops, models.NativeStop{
				Point: models.Point{Lat: *st.Stop.Latitude, Lon: *st.Stop.Longitude},
				Name:  name,
			})
		}
	}

	return snap
}

func routeLineCode(r *remoteGtfs.Route) string {
	if code := strings.TrimSpace(r.ShortName); code != "" {
		return code
	}
	return r.Id
}
