package schema

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money goes over the wire as a JSON number; quoted strings still decode.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// FlowType tells money coming in from money going out. Categories and
// transactions share it.
type FlowType string

const (
	Income  FlowType = "income"
	Expense FlowType = "expense"
)

// Valid reports whether t is a known flow type.
func (t FlowType) Valid() bool {
	return t == Income || t == Expense
}

// Draft is a create payload: the record id next to the resource fields,
// flattened into one JSON object.
type Draft[T any] struct {
	ID   string
	Data T
}

func (d *Draft[T]) UnmarshalJSON(b []byte) error {
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return err
	}
	if err := json.Unmarshal(b, &d.Data); err != nil {
		return err
	}
	d.ID = head.ID
	return nil
}

// --- Users ---

// User is a household member. Pin holds a bcrypt hash, never the raw PIN.
type User struct {
	Name     string `json:"name" validate:"required"`
	AvatarID string `json:"avatarId"`
	Pin      string `json:"pin" validate:"required"`
}

type UserPatch struct {
	Name     *string `json:"name" validate:"omitnil,min=1"`
	AvatarID *string `json:"avatarId"`
}

func (p UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.AvatarID != nil {
		u.AvatarID = *p.AvatarID
	}
}

type UserPublic struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	AvatarID string `json:"avatarId"`
}

// Session stores the last token issued to a user; the record id is the user id.
type Session struct {
	Token string `json:"token"`
}

// --- Categories ---

type Category struct {
	Title string   `json:"title" validate:"required"`
	Type  FlowType `json:"type" validate:"required,oneof=income expense"`
}

type CategoryPatch struct {
	Title *string   `json:"title" validate:"omitnil,min=1"`
	Type  *FlowType `json:"type" validate:"omitnil,oneof=income expense"`
}

func (p CategoryPatch) Apply(c *Category) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Type != nil {
		c.Type = *p.Type
	}
}

type CategoryPublic struct {
	ID    string   `json:"id"`
	Title string   `json:"title"`
	Type  FlowType `json:"type"`
}

// --- Commodities ---

type Commodity struct {
	Title      string `json:"title" validate:"required"`
	CategoryID string `json:"categoryId" validate:"required"`
}

type CommodityPatch struct {
	Title      *string `json:"title" validate:"omitnil,min=1"`
	CategoryID *string `json:"categoryId" validate:"omitnil,min=1"`
}

func (p CommodityPatch) Apply(c *Commodity) {
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.CategoryID != nil {
		c.CategoryID = *p.CategoryID
	}
}

type CommodityPublic struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	CategoryID string `json:"categoryId"`
}

// --- Transactions ---

// Expenditure itemises part of a transaction. Embedded in a transaction the
// TransactionID is left empty; as a standalone record it points back to one.
type Expenditure struct {
	TransactionID string          `json:"transactionId,omitempty"`
	CommodityID   string          `json:"commodityId" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Essential     bool            `json:"essential"`
}

type ExpenditurePatch struct {
	TransactionID *string          `json:"transactionId" validate:"omitnil,min=1"`
	CommodityID   *string          `json:"commodityId" validate:"omitnil,min=1"`
	Amount        *decimal.Decimal `json:"amount"`
	Essential     *bool            `json:"essential"`
}

func (p ExpenditurePatch) Apply(e *Expenditure) {
	if p.TransactionID != nil {
		e.TransactionID = *p.TransactionID
	}
	if p.CommodityID != nil {
		e.CommodityID = *p.CommodityID
	}
	if p.Amount != nil {
		e.Amount = *p.Amount
	}
	if p.Essential != nil {
		e.Essential = *p.Essential
	}
}

type ExpenditurePublic struct {
	ID string `json:"id"`
	Expenditure
}

type Transaction struct {
	Type         FlowType        `json:"type" validate:"required,oneof=income expense"`
	UserID       string          `json:"userId" validate:"required"`
	CategoryID   string          `json:"categoryId" validate:"required"`
	Date         string          `json:"date" validate:"required"`
	Sum          decimal.Decimal `json:"sum"`
	Comment      string          `json:"comment"`
	Expenditures []Expenditure   `json:"expenditures" validate:"dive"`
}

type TransactionPatch struct {
	Type         *FlowType        `json:"type" validate:"omitnil,oneof=income expense"`
	UserID       *string          `json:"userId" validate:"omitnil,min=1"`
	CategoryID   *string          `json:"categoryId" validate:"omitnil,min=1"`
	Date         *string          `json:"date" validate:"omitnil,min=1"`
	Sum          *decimal.Decimal `json:"sum"`
	Comment      *string          `json:"comment"`
	Expenditures *[]Expenditure   `json:"expenditures" validate:"omitnil,dive"`
}

func (p TransactionPatch) Apply(t *Transaction) {
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.UserID != nil {
		t.UserID = *p.UserID
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.Sum != nil {
		t.Sum = *p.Sum
	}
	if p.Comment != nil {
		t.Comment = *p.Comment
	}
	if p.Expenditures != nil {
		t.Expenditures = *p.Expenditures
	}
}

type TransactionPublic struct {
	ID string `json:"id"`
	Transaction
}

// --- Budget ---

type BudgetItem struct {
	CategoryID string          `json:"categoryId" validate:"required"`
	Value      decimal.Decimal `json:"value"`
}

// BudgetPlan is the fixed monthly plan, kept as a single record.
type BudgetPlan struct {
	Items  []BudgetItem    `json:"items" validate:"dive"`
	Income decimal.Decimal `json:"income"`
}
