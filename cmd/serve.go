/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"feedscout/cache"
	"feedscout/db"
	"feedscout/refresh"
	"feedscout/server"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func serveCmd() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the feedscout HTTP API",
		Description: `Starts the feedscout HTTP server and the feed refresher.

		Serves feed discovery and feed parsing under /api, the subscription
		reader backed by the SQLite database, and a server-sent event stream
		of refresh results under /api/events.

		Subscribed feeds are refreshed in the background on the configured
		interval. Pass --no-refresh to only serve the API.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "Address to listen on, overrides [server] listen",
				EnvVars: []string{"FEEDSCOUT_LISTEN"},
			},
			&cli.BoolFlag{
				Name:    "no-refresh",
				Usage:   "Disable the background feed refresher",
				EnvVars: []string{"FEEDSCOUT_NO_REFRESH"},
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			listen := cfg.Server.Listen
			if ctx.IsSet("listen") {
				listen = ctx.String("listen")
			}

			log.WithFields(log.Fields{
				"database": cfg.Store.Database,
				"listen":   listen,
			}).Info("Starting feedscout")

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			parser := newParser(cfg)
			results := cache.New(cfg.Server.CacheTTL.Duration)
			broadcaster := server.NewBroadcaster()

			var wg sync.WaitGroup
			run := func(fn func(context.Context)) {
				wg.Add(1)
				go func() {
					defer wg.Done()
					fn(runCtx)
				}()
			}

			run(func(c context.Context) { results.Run(c, time.Minute) })

			// The refresher publishes each event to both the writer and the
			// SSE broadcaster
			writerChan := make(chan interface{}, 64)
			broadcastChan := make(chan interface{}, 64)

			writer := db.NewWriter(store, writerChan, 5*time.Minute, retention(cfg))
			run(writer.Run)
			run(func(c context.Context) { broadcaster.Run(c, broadcastChan) })

			if !ctx.Bool("no-refresh") {
				refresher := refresh.New(parser, store, refresh.Config{
					Workers:    cfg.Refresh.Workers,
					MaxRetries: cfg.Refresh.MaxRetries,
					Interval:   cfg.Refresh.Interval.Duration,
				}, writerChan, broadcastChan)
				run(refresher.Run)
			}

			app := server.Server(&server.ServerConfig{
				Discoverer:  newDiscoverer(cfg),
				Fetcher:     parser,
				Store:       store,
				Cache:       results,
				Broadcaster: broadcaster,
				CorsOrigins: splitList(cfg.Server.CorsOrigins),
				Categories:  cfg.Categories,
			})

			// Graceful shutdown
			go func() {
				<-runCtx.Done()
				log.Info("Gracefully shutting down...")
				broadcaster.Shutdown()
				if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
					log.WithError(err).Error("Error shutting down server")
				}
			}()

			err = app.Listen(listen)
			stop()
			wg.Wait()

			log.Info("Done!")
			return err
		},
	}
}
