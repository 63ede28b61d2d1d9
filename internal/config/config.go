package config

import (
	"fmt"
	"sync"
	"time"
)

const (
	DefaultPort           = 4000
	DefaultEnv            = "development"
	DefaultDataDir        = "data"
	DefaultLinesFile      = "linee_bus.geojson"
	DefaultStopsFile      = "fermate_bus.geojson"
	DefaultDatabaseURL    = "sqlite://data/stopplanner.db"
	DefaultGeodataRefresh = 24 * time.Hour
	DefaultClusterRadius  = 0.003
)

// GeodataSource names where line geometry and stops are read from. When
// GTFSURL is set it takes precedence over the GeoJSON files.
type GeodataSource struct {
	LinesFile string `json:"lines_file"`
	StopsFile string `json:"stops_file"`
	GTFSURL   string `json:"gtfs_url"`
}

// Config holds all the configuration settings for our application.
type Config struct {
	Port              int
	Env               string
	DataDir           string
	DatabaseURL       string
	AdminPasswordHash string
	JWTSecret         string
	ClusterRadius     float64
	GeodataRefresh    time.Duration

	Mu      sync.RWMutex
	geodata GeodataSource
}

// NewConfig returns a Config filled with defaults.
func NewConfig() *Config {
	return &Config{
		Port:           DefaultPort,
		Env:            DefaultEnv,
		DataDir:        DefaultDataDir,
		DatabaseURL:    DefaultDatabaseURL,
		ClusterRadius:  DefaultClusterRadius,
		GeodataRefresh: DefaultGeodataRefresh,
		geodata: GeodataSource{
			LinesFile: DefaultLinesFile,
			StopsFile: DefaultStopsFile,
		},
	}
}

// UpdateGeodataSource safely replaces the geodata source. The next refresh
// picks it up.
func (cfg *Config) UpdateGeodataSource(src GeodataSource) {
	cfg.Mu.Lock()
	defer cfg.Mu.Unlock()
	cfg.geodata = src
}

// GetGeodataSource returns a copy of the current geodata source.
func (cfg *Config) GetGeodataSource() GeodataSource {
	cfg.Mu.RLock()
	defer cfg.Mu.RUnlock()
	return cfg.geodata
}

// Validate checks the settings the server cannot start without.
func (cfg *Config) Validate() error {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.AdminPasswordHash == "" {
		return fmt.Errorf("admin credentials missing: set ADMIN_PASSWORD_HASH or ADMIN_PASSWORD")
	}
	if len(cfg.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	if !(cfg.ClusterRadius > 0) {
		return fmt.Errorf("invalid cluster radius %v", cfg.ClusterRadius)
	}
	if cfg.GeodataRefresh < 0 {
		return fmt.Errorf("invalid geodata refresh interval %s", cfg.GeodataRefresh)
	}
	src := cfg.GetGeodataSource()
	if src.GTFSURL == "" && (src.LinesFile == "" || src.StopsFile == "") {
		return fmt.Errorf("no geodata source: set gtfs_url or both lines_file and stops_file")
	}
	return nil
}
