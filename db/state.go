package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

func (db *DB) articleExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM articles WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// MarkRead records article id as read. Only the most recent maxReadIds
// marks are kept; older ones are evicted first.
func (db *DB) MarkRead(ctx context.Context, id string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := db.articleExists(ctx, tx, id); err != nil {
		return err
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.ReplaceInto("read_articles").Cols("article_id", "read_at").Values(id, db.now().UnixMilli())
	q, args := ib.Build()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("error marking read: %w", err)
	}

	// REPLACE gives a re-marked article a fresh rowid, so rowid breaks
	// read_at ties in insertion order
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM read_articles WHERE article_id NOT IN (
			SELECT article_id FROM read_articles ORDER BY read_at DESC, rowid DESC LIMIT ?
		)`, db.maxReadIds,
	); err != nil {
		return fmt.Errorf("error evicting read marks: %w", err)
	}

	return tx.Commit()
}

// MarkUnread clears the read mark of article id
func (db *DB) MarkUnread(ctx context.Context, id string) error {
	return db.clearState(ctx, "read_articles", id)
}

// ToggleRead flips the read mark and returns the new state
func (db *DB) ToggleRead(ctx context.Context, id string) (bool, error) {
	article, err := db.GetArticle(ctx, id)
	if err != nil {
		return false, err
	}
	if article.Read {
		return false, db.MarkUnread(ctx, id)
	}
	return true, db.MarkRead(ctx, id)
}

// ReadCount is the number of read marks currently kept
func (db *DB) ReadCount(ctx context.Context) (int, error) {
	var count int
	err := db.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM read_articles").Scan(&count)
	return count, err
}

func (db *DB) AddBookmark(ctx context.Context, id string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := db.articleExists(ctx, tx, id); err != nil {
		return err
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertIgnoreInto("bookmarks").Cols("article_id", "created_at").Values(id, db.now().UnixMilli())
	q, args := ib.Build()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("error adding bookmark: %w", err)
	}

	return tx.Commit()
}

func (db *DB) RemoveBookmark(ctx context.Context, id string) error {
	return db.clearState(ctx, "bookmarks", id)
}

// ToggleBookmark flips the bookmark and returns the new state
func (db *DB) ToggleBookmark(ctx context.Context, id string) (bool, error) {
	article, err := db.GetArticle(ctx, id)
	if err != nil {
		return false, err
	}
	if article.Bookmarked {
		return false, db.RemoveBookmark(ctx, id)
	}
	return true, db.AddBookmark(ctx, id)
}

// clearState is idempotent: clearing an unset mark is not an error
func (db *DB) clearState(ctx context.Context, table, id string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := db.articleExists(ctx, tx, id); err != nil {
		return err
	}

	dlb := sqlbuilder.SQLite.NewDeleteBuilder()
	dlb.DeleteFrom(table).Where(dlb.Equal("article_id", id))
	q, args := dlb.Build()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("error clearing %s: %w", table, err)
	}

	return tx.Commit()
}
