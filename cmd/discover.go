/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"feedscout/models"

	"github.com/labstack/gommon/color"
	"github.com/urfave/cli/v2"
)

func outputFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "output",
		Aliases: []string{"o"},
		Value:   "text",
		Usage:   "Output format: text or json",
	}
}

func discoverCmd() *cli.Command {
	return &cli.Command{
		Name:      "discover",
		Usage:     "Find the feeds published by a web page",
		ArgsUsage: "<url>",
		Description: `Finds the RSS and Atom feeds behind a web address.

		The address is first checked for being a feed itself. Otherwise the
		page's <link> tags, common feed paths and known platforms (YouTube,
		Reddit, GitHub, Medium and others) are searched, and every candidate
		is confirmed before it is listed.

		Pass --output json to get the raw result for use with jq.`,
		Flags: []cli.Flag{
			outputFlag(),
		},
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return cli.Exit("discover takes exactly one url", 1)
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			target := ctx.Args().First()
			result, err := newDiscoverer(cfg).Discover(ctx.Context, target)
			if err != nil {
				return err
			}

			if ctx.String("output") == "json" {
				return printJson(os.Stdout, result)
			}
			printDiscovered(os.Stdout, target, result)
			return nil
		},
	}
}

func printDiscovered(w io.Writer, target string, result *models.DiscoverResult) {
	if len(result.Feeds) == 0 {
		fmt.Fprintln(w, color.Yellow("No feeds found for "+target))
		return
	}

	if result.IsDirectFeed {
		fmt.Fprintf(w, "%s is a feed\n", color.Bold(target))
	} else {
		fmt.Fprintf(w, "%s %s\n", color.Bold(target), color.Grey(fmt.Sprintf("(%d found)", len(result.Feeds))))
	}
	for _, feed := range result.Feeds {
		fmt.Fprintf(w, "  %s %s\n", color.Green(feed.URL), color.Cyan("["+string(feed.Type)+"]"))
		if feed.Title != "" {
			fmt.Fprintf(w, "    %s\n", feed.Title)
		}
	}
}

func printJson(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
