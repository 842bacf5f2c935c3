package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"feedscout/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedscout.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
categories = ["Tech", "Music"]

[server]
listen = ":8080"
cache_ttl = "1m"

[discovery]
timeout = "2s"
extra_paths = ["/blog/feed"]
disabled_platforms = ["youtube"]

[store]
database = "test.db"
max_read_ids = 50
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, time.Minute, cfg.Server.CacheTTL.Duration)
	assert.Equal(t, 2*time.Second, cfg.Discovery.Timeout.Duration)
	assert.Equal(t, []string{"/blog/feed"}, cfg.Discovery.ExtraPaths)
	assert.Equal(t, []string{"youtube"}, cfg.Discovery.DisabledPlatforms)
	assert.Equal(t, "test.db", cfg.Store.Database)
	assert.Equal(t, 50, cfg.Store.MaxReadIds)
	assert.Equal(t, []string{"Tech", "Music"}, cfg.Categories)

	// Unset values fall back to defaults
	assert.Empty(t, cfg.Discovery.UserAgent)
	assert.Equal(t, 10*time.Second, cfg.Parser.Timeout.Duration)
	assert.Equal(t, 90, cfg.Store.RetentionDays)
	assert.Equal(t, 4, cfg.Refresh.Workers)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.toml") },
		},
		{
			name: "invalid toml",
			path: func(t *testing.T) string { return writeConfig(t, "[server\nlisten=") },
		},
		{
			name: "invalid duration",
			path: func(t *testing.T) string { return writeConfig(t, "[discovery]\ntimeout = \"soon\"\n") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.LoadConfig(tt.path(t))
			assert.Error(t, err)
		})
	}
}

func TestDefaults(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, ":3000", cfg.Server.Listen)
	assert.Equal(t, 5*time.Minute, cfg.Server.CacheTTL.Duration)
	assert.Equal(t, 8*time.Second, cfg.Discovery.Timeout.Duration)
	assert.Equal(t, 10_000, cfg.Store.MaxReadIds)
	assert.Equal(t, []string{"Uncategorized", "Tech", "News", "Blog", "Podcast"}, cfg.Categories)
}

func TestExampleConfig(t *testing.T) {
	cfg, err := config.LoadConfig("feedscout.toml")
	require.NoError(t, err)

	assert.Equal(t, config.Defaults(), cfg)
}
