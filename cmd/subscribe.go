/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"net/url"
	"strings"

	"feedscout/feeds"
	"feedscout/models"

	"github.com/cqroot/prompt"
	"github.com/labstack/gommon/color"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func subscribeCmd() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to the feed behind a web page",
		ArgsUsage: "<url>",
		Description: `Discovers the feeds behind a web address and subscribes to one.

		When the page publishes several feeds you are asked which one to
		follow, and when no --category is given you are asked for one.
		Pass --first to pick the first feed without asking.

		The feed is fetched once and its articles stored right away.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.StringFlag{
				Name:  "category",
				Usage: "Category to file the subscription under",
			},
			&cli.StringFlag{
				Name:  "title",
				Usage: "Custom title, defaults to the feed's own title",
			},
			&cli.BoolFlag{
				Name:  "first",
				Usage: "Subscribe to the first discovered feed without prompting",
			},
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return cli.Exit("subscribe takes exactly one url", 1)
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			result, err := newDiscoverer(cfg).Discover(ctx.Context, ctx.Args().First())
			if err != nil {
				return err
			}
			if len(result.Feeds) == 0 {
				return cli.Exit("No feeds found", 1)
			}

			feedURL := result.Feeds[0].URL
			if len(result.Feeds) > 1 && !ctx.Bool("first") {
				choice, err := prompt.New().Ask("Feed:").Choose(lo.Map(result.Feeds, func(f models.DiscoveredFeed, _ int) string {
					return f.URL
				}))
				if err != nil {
					return err
				}
				feedURL = choice
			}

			category := ctx.String("category")
			if category == "" && !ctx.Bool("first") {
				category, err = prompt.New().Ask("Category:").Choose(cfg.Categories)
				if err != nil {
					return err
				}
			}
			if category == "" {
				category = "Uncategorized"
			}

			fetched, err := newParser(cfg).Fetch(ctx.Context, feedURL)
			if err != nil {
				return err
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			subscription := fetched.Feed
			subscription.Id = feeds.ID(feedURL, feedURL)
			subscription.Url = feedURL
			subscription.Category = category
			if title := strings.TrimSpace(ctx.String("title")); title != "" {
				subscription.Title = title
			}

			stored, created, err := store.AddFeed(ctx.Context, subscription)
			if err != nil {
				return err
			}
			if !created {
				fmt.Println(color.Yellow("Already subscribed to " + stored.Title))
				return nil
			}

			fetched.Feed = stored
			count, err := store.StoreFeedResponse(ctx.Context, fetched)
			if err != nil {
				return err
			}

			log.WithFields(log.Fields{
				"id":       stored.Id,
				"url":      stored.Url,
				"articles": count,
			}).Debug("Subscribed")

			fmt.Printf("Subscribed to %s %s\n", color.Green(stored.Title), color.Grey("("+stored.Category+")"))
			return nil
		},
	}
}

func unsubscribeCmd() *cli.Command {
	return &cli.Command{
		Name:      "unsubscribe",
		Usage:     "Remove a subscription and its articles",
		ArgsUsage: "<feed id or url>",
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return cli.Exit("unsubscribe takes exactly one feed id or url", 1)
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			id := ctx.Args().First()
			if _, err := url.ParseRequestURI(id); err == nil {
				id = feeds.ID(id, id)
			}

			if err := store.RemoveFeed(ctx.Context, id); err != nil {
				return err
			}
			fmt.Println("Unsubscribed", id)
			return nil
		},
	}
}
