// Package db is the SQLite subscription store: subscribed feeds, their
// articles, and per-article read and bookmark state
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"feedscout/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	log "github.com/sirupsen/logrus"
)

// ErrNotFound is returned when a feed or article id does not exist
var ErrNotFound = errors.New("not found")

const DefaultMaxReadIds = 10000

var feedColumns = []string{"id", "title", "url", "site_url", "description", "category", "last_fetched"}

// DB handles all database operations over a single SQLite connection
type DB struct {
	db         *sql.DB
	maxReadIds int
	now        func() time.Time
}

// Open connects to an already migrated database
func Open(database string, maxReadIds int) (*DB, error) {
	conn, err := connection(database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if maxReadIds <= 0 {
		maxReadIds = DefaultMaxReadIds
	}

	return &DB{
		db:         conn,
		maxReadIds: maxReadIds,
		now:        time.Now,
	}, nil
}

func (db *DB) Close() error {
	return db.db.Close()
}

// AddFeed subscribes to feed. When its URL is already subscribed the existing
// subscription is returned unchanged and created is false.
func (db *DB) AddFeed(ctx context.Context, feed models.Feed) (stored models.Feed, created bool, err error) {
	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertIgnoreInto("feeds").Cols(feedColumns...).Values(
		feed.Id, feed.Title, feed.Url, feed.SiteUrl, feed.Description, feed.Category, feed.LastFetched,
	)
	query, args := ib.Build()

	res, err := db.db.ExecContext(ctx, query, args...)
	if err != nil {
		return models.Feed{}, false, fmt.Errorf("error inserting feed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Feed{}, false, err
	}

	stored, err = db.feedBy(ctx, "url", feed.Url)
	if err != nil {
		return models.Feed{}, false, err
	}

	if affected > 0 {
		log.WithFields(log.Fields{
			"id":       stored.Id,
			"url":      stored.Url,
			"category": stored.Category,
		}).Info("Subscribed to feed")
	}

	return stored, affected > 0, nil
}

// ListFeeds returns subscriptions ordered by title. An empty category lists all.
func (db *DB) ListFeeds(ctx context.Context, category string) ([]models.Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds")
	if category != "" {
		sb.Where(sb.Equal("category", category))
	}
	sb.OrderBy("title COLLATE NOCASE", "id")
	query, args := sb.Build()

	rows, err := db.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing feeds: %w", err)
	}
	defer rows.Close()

	feeds := []models.Feed{}
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, feed)
	}
	return feeds, rows.Err()
}

func (db *DB) GetFeed(ctx context.Context, id string) (models.Feed, error) {
	return db.feedBy(ctx, "id", id)
}

func (db *DB) feedBy(ctx context.Context, column, value string) (models.Feed, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(feedColumns...).From("feeds").Where(sb.Equal(column, value))
	query, args := sb.Build()

	feed, err := scanFeed(db.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Feed{}, ErrNotFound
	}
	return feed, err
}

// FeedUpdate holds the user-editable fields of a subscription; nil leaves a
// field as is
type FeedUpdate struct {
	Title    *string `json:"title"`
	Category *string `json:"category"`
}

// UpdateFeed applies update to feed id. A new title is copied onto the
// feed's stored articles.
func (db *DB) UpdateFeed(ctx context.Context, id string, update FeedUpdate) (models.Feed, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Feed{}, err
	}
	defer tx.Rollback()

	if update.Title != nil || update.Category != nil {
		ub := sqlbuilder.SQLite.NewUpdateBuilder()
		ub.Update("feeds")
		if update.Title != nil {
			ub.SetMore(ub.Assign("title", *update.Title))
		}
		if update.Category != nil {
			ub.SetMore(ub.Assign("category", *update.Category))
		}
		ub.Where(ub.Equal("id", id))
		query, args := ub.Build()

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return models.Feed{}, fmt.Errorf("error updating feed: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return models.Feed{}, ErrNotFound
		}
	}

	if update.Title != nil {
		ub := sqlbuilder.SQLite.NewUpdateBuilder()
		ub.Update("articles").Set(ub.Assign("feed_title", *update.Title)).Where(ub.Equal("feed_id", id))
		query, args := ub.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return models.Feed{}, fmt.Errorf("error updating article feed titles: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return models.Feed{}, err
	}

	return db.GetFeed(ctx, id)
}

// RemoveFeed unsubscribes from feed id, dropping its articles and their
// read and bookmark state
func (db *DB) RemoveFeed(ctx context.Context, id string) error {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"read_articles", "bookmarks"} {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM "+table+" WHERE article_id IN (SELECT id FROM articles WHERE feed_id = ?)", id,
		); err != nil {
			return fmt.Errorf("error clearing %s: %w", table, err)
		}
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM articles WHERE feed_id = ?", id); err != nil {
		return fmt.Errorf("error deleting articles: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM feeds WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("error deleting feed: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"id": id,
	}).Info("Unsubscribed from feed")

	return nil
}

// Categories returns the distinct non-empty categories in use
func (db *DB) Categories(ctx context.Context) ([]string, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT DISTINCT category FROM feeds WHERE category != '' ORDER BY category")
	if err != nil {
		return nil, fmt.Errorf("error listing categories: %w", err)
	}
	defer rows.Close()

	categories := []string{}
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		categories = append(categories, category)
	}
	return categories, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanFeed(row scanner) (models.Feed, error) {
	var feed models.Feed
	err := row.Scan(
		&feed.Id, &feed.Title, &feed.Url, &feed.SiteUrl,
		&feed.Description, &feed.Category, &feed.LastFetched,
	)
	return feed, err
}
