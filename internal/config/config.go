// ABOUTME: Environment-driven configuration for the refeed pipeline
// ABOUTME: Defaults follow XDG conventions for the database location

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config holds the knobs of the refresh pipeline.
type Config struct {
	// DBPath is the sqlite database location. Empty means the XDG default.
	DBPath string `env:"REFEED_DB"`

	// HTTPTimeout bounds each fetch; the pipeline has no timeout above it.
	HTTPTimeout time.Duration `env:"REFEED_HTTP_TIMEOUT, default=30s"`

	// UserAgent identifies refeed to feed servers.
	UserAgent string `env:"REFEED_USER_AGENT, default=refeed/1.0 (feed refresher)"`

	// Concurrency bounds how many source cycles run at once in a batch.
	Concurrency int `env:"REFEED_CONCURRENCY, default=8"`

	// PollFloor is the minimum delay between background batch refreshes.
	PollFloor time.Duration `env:"REFEED_POLL_FLOOR, default=1m"`
}

// Load reads configuration from the environment and fills in defaults.
func Load(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = DefaultDBPath()
	}
	return &cfg, nil
}

// DefaultDBPath returns the XDG data location for the database.
func DefaultDBPath() string {
	return filepath.Join(dataDir(), "refeed", "refeed.db")
}

func dataDir() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(homeDir, ".local", "share")
}
