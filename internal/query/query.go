// Package query narrows a partition listing: field filters, date range
// filters, expenditure membership filters and offset/length pagination.
//
// The engine never sorts. Results keep the order of the input slice, which
// the resource layer fixes to ascending creation time.
package query

import (
	"strings"

	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

// EssentialMarker is the only value of withEssential that enables the filter.
const EssentialMarker = "true"

// Query is the raw listing request. Every field is optional.
type Query struct {
	ByType        string   `form:"byType" json:"byType"`
	ByCategory    string   `form:"byCategory" json:"byCategory"`
	InDateRange   []string `form:"inDateRange" json:"inDateRange"`
	WithCommodity string   `form:"withCommodity" json:"withCommodity"`
	WithEssential string   `form:"withEssential" json:"withEssential"`
	Offset        *int     `form:"offset" json:"offset"`
	Length        *int     `form:"length" json:"length"`
}

// DateRange returns the two bounds of InDateRange. A single "from,to" value
// is split on the comma; missing bounds are empty.
func (q Query) DateRange() (from, to string) {
	parts := q.InDateRange
	if len(parts) == 1 && strings.Contains(parts[0], ",") {
		parts = strings.SplitN(parts[0], ",", 2)
	}
	if len(parts) > 0 {
		from = strings.TrimSpace(parts[0])
	}
	if len(parts) > 1 {
		to = strings.TrimSpace(parts[1])
	}
	return from, to
}

// Paginated reports whether offset or length was supplied.
func (q Query) Paginated() bool {
	return q.Offset != nil || q.Length != nil
}

// Predicate reports whether a record passes one filter.
type Predicate[T any] func(rec schema.Record[T]) bool

// Selector narrows a record set.
type Selector[T any] func(recs []schema.Record[T]) []schema.Record[T]

// Builder turns a raw query into a selector for one resource type.
type Builder[T any] func(q Query) Selector[T]

// Filter keeps the records that pass every predicate. With no predicates the
// input is returned as is.
func Filter[T any](recs []schema.Record[T], preds ...Predicate[T]) []schema.Record[T] {
	if len(preds) == 0 {
		return recs
	}
	out := make([]schema.Record[T], 0, len(recs))
next:
	for _, rec := range recs {
		for _, p := range preds {
			if !p(rec) {
				continue next
			}
		}
		out = append(out, rec)
	}
	return out
}

// Paginate slices recs[offset : offset+length]. A nil offset means 0, a nil
// length means "everything after offset"; negative values count as 0.
func Paginate[T any](recs []T, offset, length *int) []T {
	if offset == nil && length == nil {
		return recs
	}
	start := 0
	if offset != nil && *offset > 0 {
		start = *offset
	}
	if start >= len(recs) {
		return recs[:0]
	}
	end := len(recs)
	if length != nil {
		n := *length
		if n < 0 {
			n = 0
		}
		if n < end-start {
			end = start + n
		}
	}
	return recs[start:end]
}

// Select builds a selector from predicates plus the query's pagination.
func Select[T any](q Query, preds ...Predicate[T]) Selector[T] {
	return func(recs []schema.Record[T]) []schema.Record[T] {
		if len(preds) == 0 && !q.Paginated() {
			return recs
		}
		return Paginate(Filter(recs, preds...), q.Offset, q.Length)
	}
}

// Paged is the builder for resources without filter dimensions: only
// offset and length apply.
func Paged[T any](q Query) Selector[T] {
	return Select[T](q)
}
