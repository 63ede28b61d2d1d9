package report

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

// SetupSentry initialises the global Sentry client from SENTRY_DSN.
// An empty DSN leaves Sentry disabled; every capture becomes a no-op.
func SetupSentry(env, release string) error {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              os.Getenv("SENTRY_DSN"),
		Environment:      env,
		Release:          release,
		EnableTracing:    true,
		TracesSampleRate: 0.2,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("sentry.Init: %w", err)
	}
	sentry.CaptureMessage("Stop planner started")
	return nil
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
