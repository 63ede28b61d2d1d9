package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"stopplanner.sistper.org/internal/report"
	"stopplanner.sistper.org/internal/utils"
)

// LoadEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are ignored.
func LoadEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// ApplyEnv overlays environment variables onto cfg. getenv is usually os.Getenv.
func ApplyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := getenv("ENV"); v != "" {
		cfg.Env = v
	}
	if v := getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := getenv("CLUSTER_RADIUS"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid CLUSTER_RADIUS %q: %w", v, err)
		}
		cfg.ClusterRadius = r
	}
	if v := getenv("GEODATA_REFRESH"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid GEODATA_REFRESH %q: %w", v, err)
		}
		cfg.GeodataRefresh = d
	}
	if v := getenv("GTFS_URL"); v != "" {
		src := cfg.GetGeodataSource()
		src.GTFSURL = v
		cfg.UpdateGeodataSource(src)
	}

	if v := getenv("ADMIN_PASSWORD_HASH"); v != "" {
		cfg.AdminPasswordHash = v
	} else if v := getenv("ADMIN_PASSWORD"); v != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(v), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash ADMIN_PASSWORD: %w", err)
		}
		cfg.AdminPasswordHash = string(hash)
	}
	return nil
}

// fileConfig is the JSON layout accepted by --config-file. Zero values keep
// whatever the environment set.
type fileConfig struct {
	Port           int           `json:"port"`
	Env            string        `json:"env"`
	DataDir        string        `json:"data_dir"`
	DatabaseURL    string        `json:"database_url"`
	ClusterRadius  float64       `json:"cluster_radius"`
	GeodataRefresh string        `json:"geodata_refresh"`
	Geodata        GeodataSource `json:"geodata"`
}

// LoadConfigFromFile reads a JSON configuration file and overlays it onto cfg.
func LoadConfigFromFile(cfg *Config, filePath string) error {
	if err := loadConfigFromFile(cfg, filePath); err != nil {
		err = fmt.Errorf("failed to load config from file %s: %w", filePath, err)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("file_path", filePath),
			Level: sentry.LevelError,
		})
		return err
	}
	return nil
}

func loadConfigFromFile(cfg *Config, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.Env != "" {
		cfg.Env = fc.Env
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.DatabaseURL != "" {
		cfg.DatabaseURL = fc.DatabaseURL
	}
	if fc.ClusterRadius != 0 {
		cfg.ClusterRadius = fc.ClusterRadius
	}
	if fc.GeodataRefresh != "" {
		d, err := time.ParseDuration(fc.GeodataRefresh)
		if err != nil {
			return fmt.Errorf("invalid geodata_refresh %q: %w", fc.GeodataRefresh, err)
		}
		cfg.GeodataRefresh = d
	}

	src := cfg.GetGeodataSource()
	if fc.Geodata.LinesFile != "" {
		src.LinesFile = fc.Geodata.LinesFile
	}
	if fc.Geodata.StopsFile != "" {
		src.StopsFile = fc.Geodata.StopsFile
	}
	if fc.Geodata.GTFSURL != "" {
		src.GTFSURL = fc.Geodata.GTFSURL
	}
	cfg.UpdateGeodataSource(src)
	return nil
}
