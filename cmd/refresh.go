/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"

	"feedscout/db"
	"feedscout/refresh"

	"github.com/labstack/gommon/color"
	"github.com/urfave/cli/v2"
)

func refreshCmd() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Refresh every subscription once",
		Description: `Fetches every subscribed feed once and stores new articles.

		Failing feeds are retried with exponential backoff and reported, but
		never stop the others from being refreshed.`,
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			events := make(chan interface{}, 64)
			writer := db.NewWriter(store, events, 0, retention(cfg))

			done := make(chan struct{})
			go func() {
				defer close(done)
				// The writer stops when events is closed
				writer.Run(context.WithoutCancel(ctx.Context))
			}()

			refresher := refresh.New(newParser(cfg), store, refresh.Config{
				Workers:    cfg.Refresh.Workers,
				MaxRetries: cfg.Refresh.MaxRetries,
			}, events)

			summary, err := refresher.RefreshAll(ctx.Context)
			close(events)
			<-done
			if err != nil {
				return err
			}

			fmt.Printf("Refreshed %s feeds, %s failed, %s articles in %s\n",
				color.Green(summary.Feeds),
				color.Red(summary.Failed),
				color.Cyan(summary.Articles),
				summary.Duration,
			)
			return nil
		},
	}
}
