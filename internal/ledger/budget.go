package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/celerix-dev/celerix-ledger/internal/audit"
	"github.com/celerix-dev/celerix-ledger/internal/query"
	"github.com/celerix-dev/celerix-ledger/internal/resource"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FixedBudgetID is the id of the single BUDGET record.
const FixedBudgetID = "FIXED"

// Budget derives spending averages from transactions and keeps the fixed
// monthly plan.
type Budget struct {
	audit        *audit.Auditor
	categories   *resource.Operations[schema.Category, schema.CategoryPatch, schema.CategoryPublic]
	transactions *resource.Operations[schema.Transaction, schema.TransactionPatch, schema.TransactionPublic]
	log          *zap.Logger
}

// Average returns, per category, the mean sum of active expense
// transactions, rounded to cents and ordered by category id.
func (b *Budget) Average() schema.Result[[]schema.BudgetItem] {
	expenses, err := b.transactions.List(query.Query{ByType: string(schema.Expense)})
	if err != nil {
		return schema.Fail(err, []schema.BudgetItem{})
	}

	type acc struct {
		total decimal.Decimal
		count int64
	}
	byCategory := make(map[string]*acc)
	for _, rec := range expenses {
		a, ok := byCategory[rec.Data.CategoryID]
		if !ok {
			a = &acc{}
			byCategory[rec.Data.CategoryID] = a
		}
		a.total = a.total.Add(rec.Data.Sum)
		a.count++
	}

	items := make([]schema.BudgetItem, 0, len(byCategory))
	for id, a := range byCategory {
		items = append(items, schema.BudgetItem{
			CategoryID: id,
			Value:      a.total.Div(decimal.NewFromInt(a.count)).Round(2),
		})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CategoryID < items[j].CategoryID })
	return schema.Ok(items)
}

// Fixed returns the stored plan. Before the first Fix it is an empty plan.
func (b *Budget) Fixed() schema.Result[schema.BudgetPlan] {
	empty := schema.BudgetPlan{Items: []schema.BudgetItem{}, Income: decimal.Zero}

	raw, err := b.audit.Load(schema.Budget, FixedBudgetID)
	if errors.Is(err, audit.ErrNotFound) {
		return schema.Ok(empty)
	}
	if err != nil {
		return schema.Fail(err, empty)
	}
	var plan schema.BudgetPlan
	if err := json.Unmarshal(raw.Data, &plan); err != nil {
		return schema.Fail(err, empty)
	}
	if plan.Items == nil {
		plan.Items = []schema.BudgetItem{}
	}
	return schema.Ok(plan)
}

// Fix replaces the stored plan.
func (b *Budget) Fix(plan *schema.BudgetPlan, actor *schema.Identity) schema.Result[schema.BudgetPlan] {
	empty := schema.BudgetPlan{Items: []schema.BudgetItem{}, Income: decimal.Zero}

	if plan == nil {
		return schema.Fail(resource.ErrInvalidParams, empty)
	}
	if actor == nil || actor.ID == "" {
		return schema.Fail(resource.ErrUnknownUser, empty)
	}
	if err := resource.Struct(*plan); err != nil {
		return schema.Fail(err, empty)
	}
	for i, item := range plan.Items {
		if !b.categories.Exist(item.CategoryID) {
			return schema.Fail(resource.Invalid(fmt.Sprintf("items[%d].categoryId", i), ErrInvalidCategory), empty)
		}
	}
	if plan.Items == nil {
		plan.Items = []schema.BudgetItem{}
	}

	if _, err := b.audit.Create(schema.Budget, FixedBudgetID, plan, actor.ID); err != nil {
		b.log.Warn("budget not stored", zap.Error(err))
		return schema.Fail(err, empty)
	}
	b.log.Info("budget fixed", zap.String("actor", actor.ID), zap.Int("items", len(plan.Items)))
	return schema.Ok(*plan)
}
