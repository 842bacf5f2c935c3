/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"feedscout/config"
	"feedscout/db"
	"feedscout/discovery"
	"feedscout/feeds"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const defaultConfigPath = "config/feedscout.toml"

func databaseFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "database",
		Aliases: []string{"d"},
		Usage:   "SQLite database file location, overrides [store] database",
		EnvVars: []string{"FEEDSCOUT_DATABASE"},
	}
}

// loadConfig reads the file named by --config. A missing default file falls
// back to the built-in defaults; a missing explicit file is an error.
func loadConfig(ctx *cli.Context) (*config.TomlConfig, error) {
	path := ctx.String("config")

	cfg, err := config.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) && !ctx.IsSet("config") {
		log.WithFields(log.Fields{
			"path": path,
		}).Debug("No config file, using defaults")
		cfg = config.Defaults()
	} else if err != nil {
		return nil, err
	}

	if ctx.IsSet("database") {
		cfg.Store.Database = ctx.String("database")
	}
	return cfg, nil
}

func newDiscoverer(cfg *config.TomlConfig) *discovery.Discoverer {
	return discovery.New(&http.Client{}, discovery.Config{
		Timeout:           cfg.Discovery.Timeout.Duration,
		UserAgent:         cfg.Discovery.UserAgent,
		ExtraPaths:        cfg.Discovery.ExtraPaths,
		DisabledPlatforms: cfg.Discovery.DisabledPlatforms,
		MaxPageBytes:      cfg.Discovery.MaxPageBytes,
	})
}

func newParser(cfg *config.TomlConfig) *feeds.Parser {
	var detector *feeds.LanguageDetector
	if cfg.Parser.DetectLanguage {
		log.WithFields(log.Fields{
			"languages": cfg.Parser.Languages,
		}).Info("Building language detector")
		detector = feeds.NewLanguageDetector(cfg.Parser.Languages)
	}

	return feeds.NewParser(&http.Client{}, feeds.ParserConfig{
		Timeout:   cfg.Parser.Timeout.Duration,
		UserAgent: cfg.Discovery.UserAgent,
		Detector:  detector,
	})
}

// openStore migrates and opens the configured database
func openStore(cfg *config.TomlConfig) (*db.DB, error) {
	if err := db.Migrate(cfg.Store.Database); err != nil {
		return nil, err
	}
	return db.Open(cfg.Store.Database, cfg.Store.MaxReadIds)
}

func retention(cfg *config.TomlConfig) time.Duration {
	return time.Duration(cfg.Store.RetentionDays) * 24 * time.Hour
}

func splitList(value string) []string {
	parts := []string{}
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}
