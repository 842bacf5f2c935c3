/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func RootApp() *cli.App {
	return &cli.App{
		Name:  "feedscout",
		Usage: "Find, read and follow RSS and Atom feeds",
		Description: `Finds the syndication feeds behind any web address and keeps a
		small SQLite-backed reader of the ones you subscribe to.

		Discovery checks whether the address is itself a feed, and otherwise
		looks at the page's <link> tags, a catalogue of conventional feed
		paths and known publishing platforms, confirming every candidate with
		a HEAD request.

		Flags can generally be set via environment variables, e.g.:

		--database => FEEDSCOUT_DATABASE=feedscout.db
		--listen => FEEDSCOUT_LISTEN=:8080
		`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   defaultConfigPath,
				Usage:   "Path to the TOML configuration file",
				EnvVars: []string{"FEEDSCOUT_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level: trace, debug, info, warn, error",
				EnvVars: []string{"FEEDSCOUT_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Usage:   "Log format: text or json",
				EnvVars: []string{"FEEDSCOUT_LOG_FORMAT"},
			},
		},
		Before: func(ctx *cli.Context) error {
			return setupLogging(ctx.String("log-level"), ctx.String("log-format"))
		},
		Commands: []*cli.Command{
			serveCmd(),
			discoverCmd(),
			fetchCmd(),
			subscribeCmd(),
			unsubscribeCmd(),
			listCmd(),
			refreshCmd(),
			migrateCmd(),
			rollbackCmd(),
			tidyCmd(),
		},
		Action: func(ctx *cli.Context) error {
			// Show help if no command is specified
			return ctx.App.Run([]string{"", "help"})
		},
	}
}

func setupLogging(level, format string) error {
	parsed, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(parsed)

	// Logs go to stderr so command output can be piped
	log.SetOutput(os.Stderr)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	return nil
}
