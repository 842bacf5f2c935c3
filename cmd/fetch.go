/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"
)

func fetchCmd() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Fetch and normalize a feed",
		ArgsUsage: "<feed url>",
		Description: `Downloads an RSS, Atom or JSON feed and prints the normalized feed
		and its articles as JSON, the same shape /api/feed returns.

		Prints all log messages to stderr.`,
		Action: func(ctx *cli.Context) error {
			if ctx.NArg() != 1 {
				return cli.Exit("fetch takes exactly one url", 1)
			}

			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}

			resp, err := newParser(cfg).Fetch(ctx.Context, ctx.Args().First())
			if err != nil {
				return err
			}
			return printJson(os.Stdout, resp)
		},
	}
}
