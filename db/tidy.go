package db

import (
	"context"
	"fmt"
	"time"

	sb "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// Tidy opens database and removes articles older than retention
func Tidy(database string, retention time.Duration) (int64, error) {
	db, err := Open(database, 0)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	return db.Tidy(context.Background(), retention)
}

// Tidy removes articles published before now minus retention. Bookmarked
// articles are kept regardless of age.
func (db *DB) Tidy(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := db.now().Add(-retention).UnixMilli()

	deleteArticles := sb.SQLite.NewDeleteBuilder()
	deleteArticles.DeleteFrom("articles").Where(
		deleteArticles.LessThan("pub_date", cutoff),
		"id NOT IN (SELECT article_id FROM bookmarks)",
	)
	q, args := deleteArticles.Build()

	res, err := db.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("error tidying articles: %w", err)
	}
	removed, _ := res.RowsAffected()

	if _, err := db.db.ExecContext(ctx,
		"DELETE FROM read_articles WHERE article_id NOT IN (SELECT id FROM articles)",
	); err != nil {
		return removed, fmt.Errorf("error tidying read marks: %w", err)
	}

	log.WithFields(log.Fields{
		"cutoff":  time.UnixMilli(cutoff).UTC(),
		"removed": removed,
	}).Info("Tidied database")

	return removed, nil
}
