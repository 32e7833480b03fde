package ledger

import (
	"fmt"

	"github.com/celerix-dev/celerix-ledger/internal/query"
	"github.com/celerix-dev/celerix-ledger/internal/resource"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

func (l *Ledger) userDefinition() resource.Definition[schema.User, schema.UserPatch, schema.UserPublic] {
	return resource.Definition[schema.User, schema.UserPatch, schema.UserPublic]{
		Partition: schema.Users,
		Public: func(id string, u schema.User) schema.UserPublic {
			return schema.UserPublic{ID: id, Name: u.Name, AvatarID: u.AvatarID}
		},
		Select: query.Paged[schema.User],
		ValidateCreate: func(u schema.User) error {
			return validatePin(u.Pin)
		},
		Prepare: func(u schema.User) (schema.User, error) {
			hash, err := HashPin(u.Pin)
			if err != nil {
				return u, err
			}
			u.Pin = hash
			return u, nil
		},
	}
}

func (l *Ledger) categoryDefinition() resource.Definition[schema.Category, schema.CategoryPatch, schema.CategoryPublic] {
	return resource.Definition[schema.Category, schema.CategoryPatch, schema.CategoryPublic]{
		Partition: schema.Categories,
		Public: func(id string, c schema.Category) schema.CategoryPublic {
			return schema.CategoryPublic{ID: id, Title: c.Title, Type: c.Type}
		},
		Select: query.Categories,
	}
}

func (l *Ledger) commodityDefinition() resource.Definition[schema.Commodity, schema.CommodityPatch, schema.CommodityPublic] {
	return resource.Definition[schema.Commodity, schema.CommodityPatch, schema.CommodityPublic]{
		Partition: schema.Commodities,
		Public: func(id string, c schema.Commodity) schema.CommodityPublic {
			return schema.CommodityPublic{ID: id, Title: c.Title, CategoryID: c.CategoryID}
		},
		Select: query.Commodities,
		ValidateCreate: func(c schema.Commodity) error {
			return l.requireCategory("categoryId", c.CategoryID)
		},
		ValidateUpdate: func(p schema.CommodityPatch) error {
			if p.CategoryID != nil {
				return l.requireCategory("categoryId", *p.CategoryID)
			}
			return nil
		},
	}
}

func (l *Ledger) transactionDefinition() resource.Definition[schema.Transaction, schema.TransactionPatch, schema.TransactionPublic] {
	return resource.Definition[schema.Transaction, schema.TransactionPatch, schema.TransactionPublic]{
		Partition: schema.Transactions,
		Public: func(id string, t schema.Transaction) schema.TransactionPublic {
			return schema.TransactionPublic{ID: id, Transaction: t}
		},
		Select:         query.Transactions,
		ValidateCreate: l.validateTransaction,
		ValidateUpdate: l.validateTransactionPatch,
	}
}

func (l *Ledger) expenditureDefinition() resource.Definition[schema.Expenditure, schema.ExpenditurePatch, schema.ExpenditurePublic] {
	return resource.Definition[schema.Expenditure, schema.ExpenditurePatch, schema.ExpenditurePublic]{
		Partition: schema.Expenditures,
		Public: func(id string, e schema.Expenditure) schema.ExpenditurePublic {
			return schema.ExpenditurePublic{ID: id, Expenditure: e}
		},
		Select: query.Expenditures,
		ValidateCreate: func(e schema.Expenditure) error {
			if !l.Transactions.Operations().Exist(e.TransactionID) {
				return resource.Invalid("transactionId", ErrInvalidTransaction)
			}
			return l.validateExpenditure("", e)
		},
		ValidateUpdate: func(p schema.ExpenditurePatch) error {
			if p.TransactionID != nil && !l.Transactions.Operations().Exist(*p.TransactionID) {
				return resource.Invalid("transactionId", ErrInvalidTransaction)
			}
			if p.CommodityID != nil && !l.Commodities.Operations().Exist(*p.CommodityID) {
				return resource.Invalid("commodityId", ErrInvalidCommodity)
			}
			if p.Amount != nil && p.Amount.IsZero() {
				return resource.Invalid("amount", ErrInvalidSum)
			}
			return nil
		},
	}
}

func (l *Ledger) validateTransaction(t schema.Transaction) error {
	if !l.Users.Operations().Exist(t.UserID) {
		return resource.Invalid("userId", ErrInvalidUser)
	}
	if err := l.requireCategory("categoryId", t.CategoryID); err != nil {
		return err
	}
	if !query.ValidDate(t.Date) {
		return resource.Invalid("date", ErrInvalidDate)
	}
	if t.Sum.IsZero() {
		return resource.Invalid("sum", ErrInvalidSum)
	}
	return l.validateExpenditures(t.Expenditures)
}

// validateTransactionPatch only looks at the fields the patch carries.
func (l *Ledger) validateTransactionPatch(p schema.TransactionPatch) error {
	if p.UserID != nil && !l.Users.Operations().Exist(*p.UserID) {
		return resource.Invalid("userId", ErrInvalidUser)
	}
	if p.CategoryID != nil {
		if err := l.requireCategory("categoryId", *p.CategoryID); err != nil {
			return err
		}
	}
	if p.Date != nil && !query.ValidDate(*p.Date) {
		return resource.Invalid("date", ErrInvalidDate)
	}
	if p.Sum != nil && p.Sum.IsZero() {
		return resource.Invalid("sum", ErrInvalidSum)
	}
	if p.Expenditures != nil {
		return l.validateExpenditures(*p.Expenditures)
	}
	return nil
}

func (l *Ledger) validateExpenditures(items []schema.Expenditure) error {
	for i, e := range items {
		if err := l.validateExpenditure(fmt.Sprintf("expenditures[%d].", i), e); err != nil {
			return err
		}
	}
	return nil
}

func (l *Ledger) validateExpenditure(prefix string, e schema.Expenditure) error {
	if !l.Commodities.Operations().Exist(e.CommodityID) {
		return resource.Invalid(prefix+"commodityId", ErrInvalidCommodity)
	}
	if e.Amount.IsZero() {
		return resource.Invalid(prefix+"amount", ErrInvalidSum)
	}
	return nil
}

func (l *Ledger) requireCategory(field, id string) error {
	if !l.Categories.Operations().Exist(id) {
		return resource.Invalid(field, ErrInvalidCategory)
	}
	return nil
}
