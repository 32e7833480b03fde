// Package ledger wires the finance resources on top of the generic resource
// layer: users, categories, commodities, transactions and expenditures, plus
// sessions, the budget views, seed data and backups.
package ledger

import (
	"time"

	"github.com/celerix-dev/celerix-ledger/internal/audit"
	"github.com/celerix-dev/celerix-ledger/internal/resource"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"go.uber.org/zap"
)

type (
	Users        = resource.Controller[schema.User, schema.UserPatch, schema.UserPublic]
	Categories   = resource.Controller[schema.Category, schema.CategoryPatch, schema.CategoryPublic]
	Commodities  = resource.Controller[schema.Commodity, schema.CommodityPatch, schema.CommodityPublic]
	Transactions = resource.Controller[schema.Transaction, schema.TransactionPatch, schema.TransactionPublic]
	Expenditures = resource.Controller[schema.Expenditure, schema.ExpenditurePatch, schema.ExpenditurePublic]
)

// Options tune the session layer.
type Options struct {
	JWTSecret string
	JWTTTL    time.Duration
}

// Ledger holds one controller per resource, all sharing an auditor.
type Ledger struct {
	Users        *Users
	Categories   *Categories
	Commodities  *Commodities
	Transactions *Transactions
	Expenditures *Expenditures
	Sessions     *Sessions
	Budget       *Budget

	audit *audit.Auditor
	log   *zap.Logger
}

func New(a *audit.Auditor, opts Options, log *zap.Logger) *Ledger {
	if log == nil {
		log = zap.NewNop()
	}
	l := &Ledger{audit: a, log: log}

	l.Users = resource.NewController(resource.NewOperations(a, l.userDefinition()), log)
	l.Categories = resource.NewController(resource.NewOperations(a, l.categoryDefinition()), log)
	l.Commodities = resource.NewController(resource.NewOperations(a, l.commodityDefinition()), log)
	l.Transactions = resource.NewController(resource.NewOperations(a, l.transactionDefinition()), log)
	l.Expenditures = resource.NewController(resource.NewOperations(a, l.expenditureDefinition()), log)

	l.Sessions = &Sessions{
		audit:  a,
		users:  l.Users.Operations(),
		secret: []byte(opts.JWTSecret),
		ttl:    opts.JWTTTL,
		log:    log.Named("sessions"),
	}
	l.Budget = &Budget{
		audit:        a,
		categories:   l.Categories.Operations(),
		transactions: l.Transactions.Operations(),
		log:          log.Named("budget"),
	}
	return l
}

// Auditor returns the shared audit layer.
func (l *Ledger) Auditor() *audit.Auditor {
	return l.audit
}
