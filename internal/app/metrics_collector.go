package app

import (
	"context"
	"time"

	"stopplanner.sistper.org/internal/report"
)

// StartMetricsCollection refreshes the pending request gauges every
// interval, so they stay current without anyone opening the dashboard.
func (app *Application) StartMetricsCollection(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				app.Logger.Info("Stopping metrics collection")
				return
			case <-ticker.C:
				app.collectPendingMetrics(ctx)
			}
		}
	}()
}

func (app *Application) collectPendingMetrics(ctx context.Context) {
	if err := app.Planner.RefreshPendingMetrics(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		app.Logger.Error("Failed to refresh pending request metrics", "error", err)
		report.ReportError(err)
	}
}
