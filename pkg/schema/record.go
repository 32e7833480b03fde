// Package schema defines the data structures persisted by the Celerix Ledger.
package schema

import "time"

// Partition names a top-level section of the document. Each resource type
// lives in its own partition, keyed by record id.
type Partition string

const (
	Users        Partition = "USERS"
	Sessions     Partition = "SESSIONS"
	Categories   Partition = "CATEGORIES"
	Commodities  Partition = "COMMODITIES"
	Transactions Partition = "TRANSACTIONS"
	Expenditures Partition = "EXPENDITURES"
	Budget       Partition = "BUDGET"
)

// Partitions lists every known partition in a stable order.
var Partitions = []Partition{
	Users,
	Sessions,
	Categories,
	Commodities,
	Transactions,
	Expenditures,
	Budget,
}

// Valid reports whether p is one of the known partitions.
func (p Partition) Valid() bool {
	for _, known := range Partitions {
		if p == known {
			return true
		}
	}
	return false
}

// SeedIdentity is the reserved actor used while planting initial data.
// It is accepted by the audit layer without a matching USERS record.
const SeedIdentity = "SEED"

// Meta is the audit envelope attached to every record.
type Meta struct {
	ResourceName Partition `json:"resourceName"`
	Deleted      bool      `json:"deleted"`
	CreatedBy    string    `json:"createdBy"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedBy    string    `json:"updatedBy"`
	UpdatedAt    time.Time `json:"updatedAt"`
	DeletedBy    string    `json:"deletedBy"`
	DeletedAt    time.Time `json:"deletedAt"`
}

// Record is the atomic persisted unit.
type Record[T any] struct {
	ID   string `json:"id"`
	Data T      `json:"data"`
	Meta Meta   `json:"meta"`
}

// Identity is the acting user as resolved by the session layer.
// Only the ID is relied upon by the resource layer.
type Identity struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	AvatarID string `json:"avatarId,omitempty"`
}

// Result is the uniform envelope returned to the request layer.
type Result[D any] struct {
	OK     bool   `json:"ok"`
	Reason string `json:"reason"`
	Data   D      `json:"data"`
}

// Ok wraps data in a successful Result.
func Ok[D any](data D) Result[D] {
	return Result[D]{OK: true, Data: data}
}

// Fail builds a failed Result carrying the error text and fallback data.
func Fail[D any](err error, fallback D) Result[D] {
	reason := ""
	if err != nil {
		reason = err.Error()
	}
	return Result[D]{OK: false, Reason: reason, Data: fallback}
}
