package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"feedscout/models"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"
)

// SQLite caps bound variables per statement; ten columns per article row
const articleBatchSize = 500

// StoreFeedResponse saves a fetched feed for an existing subscription. Feed
// metadata is refreshed but the user's title and category are kept, and
// articles are upserted without touching their read or bookmark state.
// It returns the number of articles written.
func (db *DB) StoreFeedResponse(ctx context.Context, resp *models.FeedResponse) (int, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var title string
	err = tx.QueryRowContext(ctx, "SELECT title FROM feeds WHERE id = ?", resp.Feed.Id).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("feeds").Set(
		ub.Assign("site_url", resp.Feed.SiteUrl),
		ub.Assign("description", resp.Feed.Description),
		ub.Assign("last_fetched", resp.Feed.LastFetched),
	).Where(ub.Equal("id", resp.Feed.Id))
	q, args := ub.Build()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return 0, fmt.Errorf("error updating feed: %w", err)
	}

	// One statement may not upsert the same row twice
	articles := lo.UniqBy(resp.Articles, func(a models.Article) string { return a.Id })

	for _, batch := range lo.Chunk(articles, articleBatchSize) {
		ib := sqlbuilder.SQLite.NewInsertBuilder()
		ib.InsertInto("articles").Cols(
			"id", "feed_id", "title", "link", "description", "content",
			"author", "pub_date", "feed_title", "language",
		)
		for _, a := range batch {
			ib.Values(a.Id, resp.Feed.Id, a.Title, a.Link, a.Description, a.Content,
				a.Author, a.PubDate, title, a.Language)
		}
		// pub_date is left alone so undated items do not jump to the top on
		// every refresh
		ib.SQL(`ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			link = excluded.link,
			description = excluded.description,
			content = excluded.content,
			author = excluded.author,
			feed_title = excluded.feed_title,
			language = excluded.language`)
		q, args := ib.Build()
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return 0, fmt.Errorf("error upserting articles: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(articles), nil
}

// Writer applies refresh events to the store and tidies it periodically
type Writer struct {
	db        *DB
	events    <-chan interface{}
	tidyEvery time.Duration
	retention time.Duration
}

func NewWriter(db *DB, events <-chan interface{}, tidyEvery, retention time.Duration) *Writer {
	if tidyEvery <= 0 {
		tidyEvery = 5 * time.Minute
	}
	return &Writer{
		db:        db,
		events:    events,
		tidyEvery: tidyEvery,
		retention: retention,
	}
}

// Run consumes events until ctx is done or the channel is closed
func (writer *Writer) Run(ctx context.Context) {
	ticker := time.NewTicker(writer.tidyEvery)
	defer ticker.Stop()

	// Tidy database immediately
	if _, err := writer.db.Tidy(ctx, writer.retention); err != nil {
		log.WithError(err).Error("Error tidying database")
	}

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			if _, err := writer.db.Tidy(ctx, writer.retention); err != nil {
				log.WithError(err).Error("Error tidying database")
			}

		case evt, ok := <-writer.events:
			if !ok {
				return
			}
			writer.handle(ctx, evt)
		}
	}
}

func (writer *Writer) handle(ctx context.Context, evt interface{}) {
	switch event := evt.(type) {
	case models.FeedRefreshedEvent:
		count, err := writer.db.StoreFeedResponse(ctx, &models.FeedResponse{
			Feed:     event.Feed,
			Articles: event.Articles,
		})
		if err != nil {
			log.WithFields(log.Fields{
				"feed":  event.Feed.Url,
				"error": err,
			}).Error("Error storing refreshed feed")
			return
		}
		log.WithFields(log.Fields{
			"feed":     event.Feed.Url,
			"articles": count,
		}).Debug("Stored refreshed feed")
	case models.FeedFailedEvent:
		log.WithFields(log.Fields{
			"feed":  event.Url,
			"error": event.Error,
		}).Warn("Feed refresh failed")
	case models.RefreshSummaryEvent:
		log.WithFields(log.Fields{
			"feeds":    event.Feeds,
			"failed":   event.Failed,
			"articles": event.Articles,
			"duration": event.Duration,
		}).Info("Refresh finished")
	default:
		log.Info("Unknown event type")
	}
}
