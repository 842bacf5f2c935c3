/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"
	"time"

	"feedscout/db"

	"github.com/urfave/cli/v2"
)

func tidyCmd() *cli.Command {
	return &cli.Command{
		Name:  "tidy",
		Usage: "Tidy up the database",
		Description: `Tidy up the database by removing articles that are old.

		Removes articles older than the retention period, 90 days unless
		configured otherwise. Bookmarked articles are always kept.
		This is to keep the database size down.`,
		Flags: []cli.Flag{
			databaseFlag(),
			&cli.IntFlag{
				Name:  "retention-days",
				Usage: "Keep articles newer than this many days, overrides [store] retention_days",
			},
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			if ctx.IsSet("retention-days") {
				cfg.Store.RetentionDays = ctx.Int("retention-days")
			}
			if cfg.Store.RetentionDays <= 0 {
				return cli.Exit("retention-days must be positive", 1)
			}

			fmt.Println("Database configured:", cfg.Store.Database)
			removed, err := db.Tidy(cfg.Store.Database, time.Duration(cfg.Store.RetentionDays)*24*time.Hour)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d articles\n", removed)
			return nil
		},
	}
}
