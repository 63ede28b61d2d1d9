package geodata

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/getsentry/sentry-go"
	"stopplanner.sistper.org/internal/config"
	"stopplanner.sistper.org/internal/geo"
	"stopplanner.sistper.org/internal/metrics"
	"stopplanner.sistper.org/internal/models"
	"stopplanner.sistper.org/internal/report"
	"stopplanner.sistper.org/internal/utils"
)

const defaultMaxRetries = 3

// Service loads the configured geodata source into a Store and keeps it fresh.
type Service struct {
	Store            *Store
	BoundingBoxStore *geo.BoundingBoxStore
	Config           *config.Config
	Logger           *slog.Logger
	Client           *http.Client
	Backoff          *config.BackoffStore
	CacheDir         string
	MaxRetries       int
}

func NewService(store *Store, boundingBoxStore *geo.BoundingBoxStore, cfg *config.Config, logger *slog.Logger, client *http.Client) *Service {
	return &Service{
		Store:            store,
		BoundingBoxStore: boundingBoxStore,
		Config:           cfg,
		Logger:           logger,
		Client:           client,
		Backoff:          config.NewBackoffStore(),
		CacheDir:         filepath.Join(cfg.DataDir, "cache"),
		MaxRetries:       defaultMaxRetries,
	}
}

// Load reads the current geodata source and swaps in the new snapshot. On
// failure the previous snapshot stays in place and the error is returned.
func (gs *Service) Load(ctx context.Context) error {
	src := gs.Config.GetGeodataSource()
	source := sourceName(src, gs.Config.DataDir)

	snap, err := gs.read(ctx, src)
	if err != nil {
		gs.Backoff.UpdateBackoff(source)
		metrics.GeodataLoadFailures.Inc()
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("geodata_source", source),
			Level: sentry.LevelError,
		})
		gs.Logger.Error("Failed to load geodata", "source", source, "error", err)
		return err
	}
	gs.Backoff.ResetBackoff(source)

	snap.LoadedAt = time.Now()
	gs.Store.Set(snap)
	gs.BoundingBoxStore.Replace(boundingBoxes(snap))
	metrics.SetGeodataLoaded(len(snap.Lines), snap.LoadedAt)

	gs.Logger.Info("Loaded geodata", "source", source, "lines", len(snap.Lines))
	return nil
}

func (gs *Service) read(ctx context.Context, src config.GeodataSource) (*Snapshot, error) {
	if src.GTFSURL != "" {
		data, err := fetchGTFSBundle(ctx, gs.Client, src.GTFSURL, gs.CacheDir, gs.MaxRetries)
		if err != nil {
			return nil, err
		}
		return parseGTFS(data, src.GTFSURL)
	}
	return loadGeoJSON(
		resolve(gs.Config.DataDir, src.LinesFile),
		resolve(gs.Config.DataDir, src.StopsFile),
	)
}

// Refresh reloads the geodata every interval until ctx is cancelled. A
// source that keeps failing is skipped until its backoff window passes.
func (gs *Service) Refresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			gs.Logger.Info("Stopping geodata refresh routine")
			return
		case now := <-ticker.C:
			source := sourceName(gs.Config.GetGeodataSource(), gs.Config.DataDir)
			if gs.Backoff.ShouldSkip(source, now) {
				gs.Logger.Debug("Skipping geodata refresh during backoff", "source", source)
				continue
			}
			gs.Logger.Info("Refreshing geodata", "source", source)
			_ = gs.Load(ctx)
		}
	}
}

func boundingBoxes(snap *Snapshot) map[string]geo.BoundingBox {
	boxes := make(map[string]geo.BoundingBox, len(snap.Lines))
	for code, l := range snap.Lines {
		var points []models.Point
		for _, p := range l.Paths {
			for _, pt := range p {
				points = append(points, models.PointFromOrb(pt))
			}
		}
		for _, s := range l.Stops {
			points = append(points, s.Point)
		}
		if bbox, err := geo.ComputeBoundingBox(points); err == nil {
			boxes[code] = bbox
		}
	}
	return boxes
}

func sourceName(src config.GeodataSource, dataDir string) string {
	if src.GTFSURL != "" {
		return src.GTFSURL
	}
	return fmt.Sprintf("%s+%s", resolve(dataDir, src.LinesFile), resolve(dataDir, src.StopsFile))
}

func resolve(dir, file string) string {
	if filepath.IsAbs(file) || dir == "" {
		return file
	}
	return filepath.Join(dir, file)
}
