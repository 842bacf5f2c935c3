package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration wraps time.Duration so it can be written as "8s" in TOML
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = parsed
	return nil
}

// TomlServer holds HTTP server settings
type TomlServer struct {
	Listen      string   `toml:"listen"`
	CorsOrigins string   `toml:"cors_origins"`
	CacheTTL    Duration `toml:"cache_ttl"`
}

// TomlDiscovery holds feed discovery settings
type TomlDiscovery struct {
	Timeout           Duration `toml:"timeout"`
	UserAgent         string   `toml:"user_agent,omitempty"` // empty keeps the built-in identity
	ExtraPaths        []string `toml:"extra_paths,omitempty"`
	DisabledPlatforms []string `toml:"disabled_platforms,omitempty"`
	MaxPageBytes      int64    `toml:"max_page_bytes"`
}

// TomlParser holds feed normalization settings
type TomlParser struct {
	Timeout        Duration `toml:"timeout"`
	DetectLanguage bool     `toml:"detect_language"`
	Languages      []string `toml:"languages,omitempty"` // ISO 639-1 codes, empty means all
}

// TomlStore holds subscription store settings
type TomlStore struct {
	Database      string `toml:"database"`
	MaxReadIds    int    `toml:"max_read_ids"`
	RetentionDays int    `toml:"retention_days"`
}

// TomlRefresh holds periodic refresh settings
type TomlRefresh struct {
	Interval   Duration `toml:"interval"`
	Workers    int      `toml:"workers"`
	MaxRetries uint64   `toml:"max_retries"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Server     TomlServer    `toml:"server"`
	Discovery  TomlDiscovery `toml:"discovery"`
	Parser     TomlParser    `toml:"parser"`
	Store      TomlStore     `toml:"store"`
	Refresh    TomlRefresh   `toml:"refresh"`
	Categories []string      `toml:"categories"`
}

// Defaults returns the configuration used when no file is given
func Defaults() *TomlConfig {
	cfg := &TomlConfig{}
	cfg.applyDefaults()
	return cfg
}

func (c *TomlConfig) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = ":3000"
	}
	if c.Server.CacheTTL.Duration == 0 {
		c.Server.CacheTTL.Duration = 5 * time.Minute
	}
	if c.Discovery.Timeout.Duration == 0 {
		c.Discovery.Timeout.Duration = 8 * time.Second
	}
	if c.Discovery.MaxPageBytes == 0 {
		c.Discovery.MaxPageBytes = 5 << 20
	}
	if c.Parser.Timeout.Duration == 0 {
		c.Parser.Timeout.Duration = 10 * time.Second
	}
	if c.Store.Database == "" {
		c.Store.Database = "feedscout.db"
	}
	if c.Store.MaxReadIds == 0 {
		c.Store.MaxReadIds = 10_000
	}
	if c.Store.RetentionDays == 0 {
		c.Store.RetentionDays = 90
	}
	if c.Refresh.Interval.Duration == 0 {
		c.Refresh.Interval.Duration = 15 * time.Minute
	}
	if c.Refresh.Workers == 0 {
		c.Refresh.Workers = 4
	}
	if c.Refresh.MaxRetries == 0 {
		c.Refresh.MaxRetries = 3
	}
	if len(c.Categories) == 0 {
		c.Categories = []string{"Uncategorized", "Tech", "News", "Blog", "Podcast"}
	}
}

func LoadConfig(path string) (*TomlConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config TomlConfig
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	config.applyDefaults()

	return &config, nil
}
