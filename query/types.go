package query

import (
	"github.com/huandu/go-sqlbuilder"
)

// Builder builds SQL queries for article listing
type Builder interface {
	Build(limit int, cursor int64) (string, []interface{})
}

// FilterStrategy adds WHERE conditions to the query
type FilterStrategy interface {
	// ApplyFilter adds filter conditions to the query builder
	ApplyFilter(sb *sqlbuilder.SelectBuilder)
}
