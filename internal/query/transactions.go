package query

import (
	"time"

	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

// Transactions is the builder for the TRANSACTIONS partition.
func Transactions(q Query) Selector[schema.Transaction] {
	var preds []Predicate[schema.Transaction]

	if schema.FlowType(q.ByType).Valid() {
		preds = append(preds, func(rec schema.Record[schema.Transaction]) bool {
			return string(rec.Data.Type) == q.ByType
		})
	}
	if q.ByCategory != "" {
		preds = append(preds, func(rec schema.Record[schema.Transaction]) bool {
			return rec.Data.CategoryID == q.ByCategory
		})
	}
	if p := DatePredicate[schema.Transaction](q, func(t schema.Transaction) string { return t.Date }); p != nil {
		preds = append(preds, p)
	}
	if q.WithCommodity != "" {
		preds = append(preds, func(rec schema.Record[schema.Transaction]) bool {
			for _, e := range rec.Data.Expenditures {
				if e.CommodityID == q.WithCommodity {
					return true
				}
			}
			return false
		})
	}
	if q.WithEssential == EssentialMarker {
		preds = append(preds, func(rec schema.Record[schema.Transaction]) bool {
			for _, e := range rec.Data.Expenditures {
				if e.Essential {
					return true
				}
			}
			return false
		})
	}

	return Select(q, preds...)
}

// Expenditures is the builder for the EXPENDITURES partition.
func Expenditures(q Query) Selector[schema.Expenditure] {
	var preds []Predicate[schema.Expenditure]

	if q.WithCommodity != "" {
		preds = append(preds, func(rec schema.Record[schema.Expenditure]) bool {
			return rec.Data.CommodityID == q.WithCommodity
		})
	}
	if q.WithEssential == EssentialMarker {
		preds = append(preds, func(rec schema.Record[schema.Expenditure]) bool {
			return rec.Data.Essential
		})
	}

	return Select(q, preds...)
}

// Categories is the builder for the CATEGORIES partition.
func Categories(q Query) Selector[schema.Category] {
	var preds []Predicate[schema.Category]
	if schema.FlowType(q.ByType).Valid() {
		preds = append(preds, func(rec schema.Record[schema.Category]) bool {
			return string(rec.Data.Type) == q.ByType
		})
	}
	return Select(q, preds...)
}

// Commodities is the builder for the COMMODITIES partition.
func Commodities(q Query) Selector[schema.Commodity] {
	var preds []Predicate[schema.Commodity]
	if q.ByCategory != "" {
		preds = append(preds, func(rec schema.Record[schema.Commodity]) bool {
			return rec.Data.CategoryID == q.ByCategory
		})
	}
	return Select(q, preds...)
}

// DatePredicate matches records whose date falls inside
// [StartOfDay(from), EndOfDay(to)]. It returns nil when the query has no
// range. A bound that does not parse leaves that side open; when no supplied
// bound parses, or the record date does not parse, the record is excluded.
func DatePredicate[T any](q Query, date func(T) string) Predicate[T] {
	rawFrom, rawTo := q.DateRange()
	if rawFrom == "" && rawTo == "" {
		return nil
	}

	from, fromOK := ParseDate(rawFrom)
	to, toOK := ParseDate(rawTo)
	if !fromOK && !toOK {
		return func(schema.Record[T]) bool { return false }
	}

	var lo, hi time.Time
	if fromOK {
		lo = StartOfDay(from)
	}
	if toOK {
		hi = EndOfDay(to)
	}

	return func(rec schema.Record[T]) bool {
		at, ok := ParseDate(date(rec.Data))
		if !ok {
			return false
		}
		if fromOK && at.Before(lo) {
			return false
		}
		if toOK && at.After(hi) {
			return false
		}
		return true
	}
}
