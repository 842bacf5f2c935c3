/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"feedscout/models"

	"github.com/labstack/gommon/color"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
)

func listCmd() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List subscriptions",
		Flags: []cli.Flag{
			databaseFlag(),
			outputFlag(),
			&cli.StringFlag{
				Name:  "category",
				Usage: "Only list subscriptions in this category",
			},
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

			subscriptions, err := store.ListFeeds(ctx.Context, ctx.String("category"))
			if err != nil {
				return err
			}

			if ctx.String("output") == "json" {
				return printJson(os.Stdout, subscriptions)
			}
			printFeeds(os.Stdout, subscriptions)
			return nil
		},
	}
}

// printFeeds prints subscriptions grouped by category
func printFeeds(w io.Writer, subscriptions []models.Feed) {
	if len(subscriptions) == 0 {
		fmt.Fprintln(w, color.Yellow("No subscriptions"))
		return
	}

	byCategory := lo.GroupBy(subscriptions, func(f models.Feed) string {
		return f.Category
	})
	categories := lo.Uniq(lo.Map(subscriptions, func(f models.Feed, _ int) string {
		return f.Category
	}))

	for _, category := range categories {
		fmt.Fprintln(w, color.Bold(category))
		for _, feed := range byCategory[category] {
			fetched := "never"
			if feed.LastFetched > 0 {
				fetched = time.UnixMilli(feed.LastFetched).Format(time.RFC3339)
			}
			fmt.Fprintf(w, "  %s %s\n", color.Green(feed.Title), color.Grey(feed.Id))
			fmt.Fprintf(w, "    %s %s\n", feed.Url, color.Grey("fetched "+fetched))
		}
	}
}
