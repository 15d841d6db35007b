// ABOUTME: Tests for environment configuration loading
// ABOUTME: Covers defaults, overrides, and the XDG database path

package config_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refeed/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Equal(t, time.Minute, cfg.PollFloor)
	assert.NotEmpty(t, cfg.DBPath)
	assert.NotEmpty(t, cfg.UserAgent)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("REFEED_DB", "/tmp/custom.db")
	t.Setenv("REFEED_HTTP_TIMEOUT", "5s")
	t.Setenv("REFEED_CONCURRENCY", "2")

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "/tmp/custom.db", cfg.DBPath)
	assert.Equal(t, 5*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 2, cfg.Concurrency)
}

func TestDefaultDBPath_HonorsXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "refeed", "refeed.db"), config.DefaultDBPath())
}
