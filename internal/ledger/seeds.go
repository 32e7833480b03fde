package ledger

import (
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"go.uber.org/zap"
)

// SeedUser is a household member planted on first start.
type SeedUser struct {
	ID   string
	Name string
	Pin  string
}

// SeedCategory is a category planted on first start.
type SeedCategory struct {
	ID    string
	Title string
	Type  schema.FlowType
}

var DefaultUsers = []SeedUser{
	{ID: "al4str", Name: "Nyanto", Pin: "1234"},
	{ID: "nava", Name: "Lisya", Pin: "4321"},
}

var DefaultCategories = []SeedCategory{
	{ID: "salary", Title: "Salary", Type: schema.Income},
	{ID: "tips", Title: "Tips", Type: schema.Income},
	{ID: "tinkoff-income", Title: "Tinkoff", Type: schema.Income},
	{ID: "debts-income", Title: "Debts repaid", Type: schema.Income},
	{ID: "debts-costs", Title: "Lent out", Type: schema.Expense},
	{ID: "health", Title: "Health", Type: schema.Expense},
	{ID: "home", Title: "Home", Type: schema.Expense},
	{ID: "clothes", Title: "Clothes", Type: schema.Expense},
	{ID: "animals", Title: "Pets", Type: schema.Expense},
	{ID: "fastfood", Title: "Fast food", Type: schema.Expense},
	{ID: "entertainment", Title: "Entertainment", Type: schema.Expense},
	{ID: "education", Title: "Education", Type: schema.Expense},
	{ID: "transport", Title: "Transport", Type: schema.Expense},
	{ID: "communications", Title: "Communications", Type: schema.Expense},
	{ID: "money-box", Title: "Money box", Type: schema.Expense},
	{ID: "grocery", Title: "Groceries", Type: schema.Expense},
	{ID: "unexpected", Title: "Unexpected", Type: schema.Expense},
}

// Seed plants the default users and categories as the seed identity.
// Records that are already active are left alone, so seeding twice is
// harmless. It returns the number of records written.
func (l *Ledger) Seed() (int, error) {
	planted := 0

	for _, u := range DefaultUsers {
		if l.Users.Operations().Exist(u.ID) {
			continue
		}
		hash, err := HashPin(u.Pin)
		if err != nil {
			return planted, err
		}
		user := schema.User{Name: u.Name, Pin: hash}
		if _, err := l.Users.Operations().Create(u.ID, user, schema.SeedIdentity); err != nil {
			return planted, err
		}
		planted++
	}

	for _, c := range DefaultCategories {
		if l.Categories.Operations().Exist(c.ID) {
			continue
		}
		cat := schema.Category{Title: c.Title, Type: c.Type}
		if _, err := l.Categories.Operations().Create(c.ID, cat, schema.SeedIdentity); err != nil {
			return planted, err
		}
		planted++
	}

	l.log.Info("seeds planted", zap.Int("records", planted))
	return planted, nil
}
