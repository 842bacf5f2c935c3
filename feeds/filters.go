package feeds

import (
	"fmt"
	"strings"

	"feedscout/query"

	"github.com/huandu/go-sqlbuilder"
	"github.com/samber/lo"
)

// SearchFilter matches the term against title and description, ignoring case
type SearchFilter struct {
	Term string
}

func (f *SearchFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	term := strings.TrimSpace(f.Term)
	if term == "" {
		return
	}
	pattern := "%" + strings.ToLower(term) + "%"
	sb.Where(sb.Or(
		sb.Like("LOWER(articles.title)", pattern),
		sb.Like("LOWER(articles.description)", pattern),
	))
}

// UnreadFilter keeps articles that have not been marked read
type UnreadFilter struct{}

func (f *UnreadFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	sb.Where(sb.IsNull("read_articles.article_id"))
}

// BookmarkedFilter keeps bookmarked articles
type BookmarkedFilter struct{}

func (f *BookmarkedFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	sb.Where(sb.IsNotNull("bookmarks.article_id"))
}

// FeedFilter keeps articles of a single subscription
type FeedFilter struct {
	FeedId string
}

func (f *FeedFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	if f.FeedId != "" {
		sb.Where(sb.Equal("articles.feed_id", f.FeedId))
	}
}

// CategoryFilter keeps articles whose feed is filed under Category
type CategoryFilter struct {
	Category string
}

func (f *CategoryFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	if f.Category != "" {
		sb.Where(fmt.Sprintf(
			"articles.feed_id IN (SELECT feeds.id FROM feeds WHERE feeds.category = %s)",
			sb.Var(f.Category),
		))
	}
}

// LanguageFilter keeps articles detected as one of Languages
type LanguageFilter struct {
	Languages []string
}

func (f *LanguageFilter) ApplyFilter(sb *sqlbuilder.SelectBuilder) {
	if len(f.Languages) > 0 {
		sb.Where(sb.In("articles.language", lo.ToAnySlice(f.Languages)...))
	}
}

var _ query.FilterStrategy = (*SearchFilter)(nil)
var _ query.FilterStrategy = (*UnreadFilter)(nil)
var _ query.FilterStrategy = (*BookmarkedFilter)(nil)
var _ query.FilterStrategy = (*FeedFilter)(nil)
var _ query.FilterStrategy = (*CategoryFilter)(nil)
var _ query.FilterStrategy = (*LanguageFilter)(nil)
