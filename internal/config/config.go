// Package config loads the daemon's TOML configuration file, falling back to
// production defaults for anything the file omits.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// APIConfig controls the HTTP surface.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// EngineConfig holds the bandit hyperparameters an operator can tune without
// a rebuild. The MDM calibration constants are not configurable here; the
// engine always uses memory.DefaultConfig.
type EngineConfig struct {
	BanditAlpha  float64 `toml:"bandit_alpha"`
	BanditLambda float64 `toml:"bandit_lambda"`
}

// StoreConfig controls persistence.
type StoreConfig struct {
	Driver string `toml:"driver"` // "sqlite" or "memory"
	DSN    string `toml:"dsn"`
}

// ColdStartConfig holds the classify/explore thresholds. They are decoded
// and validated but not passed to the engine, whose phase boundaries are
// fixed at 5 and 8 events.
type ColdStartConfig struct {
	ClassifyThreshold int `toml:"classify_threshold"`
	ExploreThreshold  int `toml:"explore_threshold"`
}

// Config is the full daemon configuration.
type Config struct {
	API       APIConfig        `toml:"api"`
	Engine    EngineConfig     `toml:"engine"`
	Store     StoreConfig      `toml:"store"`
	ColdStart ColdStartConfig  `toml:"cold_start"`
	Log       LogConfig        `toml:"log"`
}

// LogConfig holds the logging level and format. They are decoded but not
// read by the daemon or the CLI.
type LogConfig struct {
	Level  string `toml:"level"`  // debug, info, warn, error
	Format string `toml:"format"` // "json" or "console"
}

// DefaultConfig returns the configuration used when no file is supplied.
func DefaultConfig() Config {
	return Config{
		API: APIConfig{Host: "127.0.0.1", Port: 8077},
		Engine: EngineConfig{
			BanditAlpha:  0.3,
			BanditLambda: 1.0,
		},
		Store: StoreConfig{Driver: "memory", DSN: ""},
		ColdStart: ColdStartConfig{
			ClassifyThreshold: 5,
			ExploreThreshold:  8,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads and decodes a TOML file at path, overlaying it on top of
// DefaultConfig. Unknown keys in the file are rejected rather than silently
// ignored, so a typo in an operator's config surfaces immediately.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s has unknown keys: %v", path, undecoded)
	}
	return cfg, cfg.Validate()
}

// Validate applies the same self-correcting bounds the teacher's config
// layer used: rather than reject an out-of-range value outright, it replaces
// it with the default (or, for the explore threshold, classify threshold + 3)
// and only fails on an out-of-range port or an unknown store driver.
func (c *Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range [1,65535]", c.API.Port)
	}
	if c.Engine.BanditAlpha < 0 {
		c.Engine.BanditAlpha = DefaultConfig().Engine.BanditAlpha
	}
	if c.Engine.BanditLambda <= 0 {
		c.Engine.BanditLambda = DefaultConfig().Engine.BanditLambda
	}
	if c.ColdStart.ClassifyThreshold <= 0 {
		c.ColdStart.ClassifyThreshold = DefaultConfig().ColdStart.ClassifyThreshold
	}
	if c.ColdStart.ExploreThreshold <= c.ColdStart.ClassifyThreshold {
		c.ColdStart.ExploreThreshold = c.ColdStart.ClassifyThreshold + 3
	}
	switch c.Store.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("store.driver %q must be \"sqlite\" or \"memory\"", c.Store.Driver)
	}
	return nil
}

// shutdownGracePeriod is how long the daemon waits for in-flight requests to
// drain before a forced exit.
const shutdownGracePeriod = 10 * time.Second

// ShutdownGracePeriod returns the fixed grace period used by cmd/amasd.
func ShutdownGracePeriod() time.Duration { return shutdownGracePeriod }
