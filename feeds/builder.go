package feeds

import (
	"feedscout/db"
	"feedscout/query"

	"github.com/huandu/go-sqlbuilder"
)

// ArticleQueryBuilder builds newest-first article listings with filters
type ArticleQueryBuilder struct {
	filters []query.FilterStrategy
}

func NewArticleQueryBuilder() *ArticleQueryBuilder {
	return &ArticleQueryBuilder{
		filters: make([]query.FilterStrategy, 0),
	}
}

func (b *ArticleQueryBuilder) AddFilter(filter query.FilterStrategy) *ArticleQueryBuilder {
	b.filters = append(b.filters, filter)
	return b
}

// Build selects up to limit articles published strictly before cursor, a
// unix-millisecond pub_date. A zero cursor starts at the newest article.
func (b *ArticleQueryBuilder) Build(limit int, cursor int64) (string, []interface{}) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()

	sb.Select(db.ArticleColumns...)
	sb.From("articles")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "read_articles", "read_articles.article_id = articles.id")
	sb.JoinWithOption(sqlbuilder.LeftJoin, "bookmarks", "bookmarks.article_id = articles.id")

	for _, filter := range b.filters {
		filter.ApplyFilter(sb)
	}

	if cursor != 0 {
		sb.Where(sb.LessThan("articles.pub_date", cursor))
	}

	sb.OrderBy("articles.pub_date DESC", "articles.id DESC")
	sb.Limit(limit)

	return sb.Build()
}

var _ query.Builder = (*ArticleQueryBuilder)(nil)
