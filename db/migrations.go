package db

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	log "github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var fs embed.FS

func newMigrate(dbPath string) (*migrate.Migrate, error) {
	d, err := iofs.New(fs, "migrations")
	if err != nil {
		return nil, err
	}
	return migrate.NewWithSourceInstance("iofs", d, "sqlite://"+dbPath)
}

// Migrate runs the SQLite database migrations using golang-migrate
func Migrate(dbPath string) error {
	log.WithFields(log.Fields{
		"database": dbPath,
	}).Info("Running migrations")

	m, err := newMigrate(dbPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

// Rollback reverts every migration, dropping all subscription data
func Rollback(dbPath string) error {
	log.WithFields(log.Fields{
		"database": dbPath,
	}).Warn("Rolling back migrations")

	m, err := newMigrate(dbPath)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
