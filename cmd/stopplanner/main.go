package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"stopplanner.sistper.org/internal/app"
	"stopplanner.sistper.org/internal/config"
	"stopplanner.sistper.org/internal/report"
	"stopplanner.sistper.org/internal/store"
)

const version = "1.0.0"

const pendingMetricsInterval = time.Minute

func main() {
	var (
		port       = flag.Int("port", config.DefaultPort, "API server port")
		env        = flag.String("env", config.DefaultEnv, "Environment (development|staging|production)")
		dataDir    = flag.String("data-dir", config.DefaultDataDir, "Directory holding geodata files and the download cache")
		configFile = flag.String("config-file", "", "Path to a local JSON configuration file")
		logLevel   = flag.String("log-level", "info", "Log level (debug|info|warn|error)")
	)
	flag.Parse()

	if err := config.LoadEnv(".env"); err != nil {
		fmt.Println("Error loading .env:", err)
		os.Exit(1)
	}

	cfg := config.NewConfig()
	if err := config.ApplyEnv(cfg, os.Getenv); err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	if *configFile != "" {
		if err := config.LoadConfigFromFile(cfg, *configFile); err != nil {
			fmt.Printf("Error loading configuration: %v\n", err)
			os.Exit(1)
		}
	}

	// explicit flags win over the environment and the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "port":
			cfg.Port = *port
		case "env":
			cfg.Env = *env
		case "data-dir":
			cfg.DataDir = *dataDir
		}
	})

	if err := cfg.Validate(); err != nil {
		fmt.Println("Error:", err)
		flag.Usage()
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Println("Error: invalid log level", *logLevel)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	if err := report.SetupSentry(cfg.Env, version); err != nil {
		logger.Warn("Sentry disabled", "error", err)
	}
	defer report.FlushSentry()
	report.ConfigureScope(cfg.Env, version)

	if err := run(cfg, logger); err != nil {
		report.ReportError(err, sentry.LevelFatal)
		report.FlushSentry()
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	application := app.New(cfg, st, logger, app.NewPooledClient(), version)

	// a failed first load is not fatal: the server reports not ready and
	// the refresh loop keeps retrying
	if err := application.GeodataService.Load(ctx); err != nil {
		logger.Warn("Starting without geodata", "error", err)
	}
	if cfg.GeodataRefresh > 0 {
		go application.GeodataService.Refresh(ctx, cfg.GeodataRefresh)
	}
	application.StartMetricsCollection(ctx, pendingMetricsInterval)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      application.Routes(ctx),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
