package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"feedscout/models"
	"feedscout/query"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
)

// ArticleColumns is the column order every article query selects, matching
// scanArticle
var ArticleColumns = []string{
	"articles.id",
	"articles.feed_id",
	"articles.title",
	"articles.link",
	"articles.description",
	"articles.content",
	"articles.author",
	"articles.pub_date",
	"articles.feed_title",
	"articles.language",
	"read_articles.article_id IS NOT NULL",
	"bookmarks.article_id IS NOT NULL",
}

// QueryArticles runs an article listing built by builder. The returned cursor
// is the pub_date of the last article, set only when more results exist.
func (db *DB) QueryArticles(ctx context.Context, builder query.Builder, limit int, cursor string) (*models.ArticlePage, error) {
	q, args := builder.Build(limit+1, safeParseCursor(cursor))

	rows, err := db.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying articles: %w", err)
	}
	defer rows.Close()

	articles := []models.Article{}
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, article)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var nextCursor *string

	// Only set cursor if we have more results
	if len(articles) > limit {
		articles = articles[:limit]
		if limit > 0 {
			parsed := strconv.FormatInt(articles[len(articles)-1].PubDate, 10)
			nextCursor = &parsed
		}
	}

	return &models.ArticlePage{
		Articles: articles,
		Cursor:   nextCursor,
	}, nil
}

// GetArticle returns a stored article with its read and bookmark state
func (db *DB) GetArticle(ctx context.Context, id string) (models.Article, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(ArticleColumns...)
	sb.From("articles")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "read_articles", "read_articles.article_id = articles.id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "bookmarks", "bookmarks.article_id = articles.id")
	sb.Where(sb.Equal("articles.id", id))
	q, args := sb.Build()

	article, err := scanArticle(db.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Article{}, ErrNotFound
	}
	return article, err
}

func scanArticle(row scanner) (models.Article, error) {
	var a models.Article
	err := row.Scan(
		&a.Id, &a.FeedId, &a.Title, &a.Link, &a.Description, &a.Content,
		&a.Author, &a.PubDate, &a.FeedTitle, &a.Language, &a.Read, &a.Bookmarked,
	)
	return a, err
}

// safeParseCursor parses the cursor string into a pub_date
// If the cursor is invalid, it returns 0
func safeParseCursor(cursor string) int64 {
	pubDate, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil {
		return 0
	}
	return pubDate
}
