/*
Copyright © 2023 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"feedscout/db"

	"github.com/urfave/cli/v2"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:        "migrate",
		Usage:       "Run database migrations",
		Description: `Runs database migrations on the configured database. Will create the database if it does not exist.`,
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			fmt.Println("Database configured:", cfg.Store.Database)
			return db.Migrate(cfg.Store.Database)
		},
	}
}

func rollbackCmd() *cli.Command {
	return &cli.Command{
		Name:        "rollback",
		Usage:       "Rollback database migration",
		Description: `Rolls back every database migration. All subscriptions and articles are dropped.`,
		Flags: []cli.Flag{
			databaseFlag(),
		},
		Action: func(ctx *cli.Context) error {
			cfg, err := loadConfig(ctx)
			if err != nil {
				return err
			}
			fmt.Println("Database configured:", cfg.Store.Database)
			return db.Rollback(cfg.Store.Database)
		},
	}
}
