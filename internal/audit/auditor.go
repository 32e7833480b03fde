// Package audit is the only writer of record metadata. It checks that the
// acting user exists, stamps creation, update and deletion fields, and
// persists records through the engine document.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"go.uber.org/zap"
)

var (
	ErrInvalidPartition = errors.New("invalid partition")
	ErrInvalidActor     = errors.New("invalid actor")
	ErrInvalidID        = errors.New("invalid record id")
	ErrExists           = errors.New("record already exists")
	// ErrNotFound is the engine sentinel, re-exported so callers of this
	// package need not import the engine.
	ErrNotFound = engine.ErrNotFound
)

// RawRecord is a record whose data has not been decoded into a resource type.
type RawRecord = schema.Record[json.RawMessage]

// MergeFunc receives the current data of a record and returns the data to
// store in its place.
type MergeFunc func(current json.RawMessage) (any, error)

// Auditor serialises its writes: every load, merge and store sequence runs
// under mu, so concurrent writers never see each other's half-done state.
type Auditor struct {
	doc   *engine.Document
	clock Clock
	log   *zap.Logger
	mu    sync.Mutex
}

func New(doc *engine.Document, clock Clock, log *zap.Logger) *Auditor {
	if clock == nil {
		clock = SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{doc: doc, clock: clock, log: log}
}

// Document exposes the underlying store for read-only projections.
func (a *Auditor) Document() *engine.Document {
	return a.doc
}

func (a *Auditor) Clock() Clock {
	return a.clock
}

// IsActiveUser reports whether id names a USERS record that is not tombstoned.
func (a *Auditor) IsActiveUser(id string) bool {
	if validateID(id) != nil {
		return false
	}
	var meta struct {
		Meta schema.Meta `json:"meta"`
	}
	if err := a.doc.Decode(engine.Join(string(schema.Users), id), &meta); err != nil {
		return false
	}
	return !meta.Meta.Deleted
}

// Create writes a brand new record at partition/id. Whatever was stored at
// that path before (a tombstone included) is replaced.
func (a *Auditor) Create(p schema.Partition, id string, data any, actor string) (RawRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.create(p, id, data, actor)
}

// Insert is Create for a path without an active record. An active record
// yields ErrExists; a tombstone is replaced.
func (a *Auditor) Insert(p schema.Partition, id string, data any, actor string) (RawRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if rec, err := a.Load(p, id); err == nil && !rec.Meta.Deleted {
		return RawRecord{}, ErrExists
	}
	return a.create(p, id, data, actor)
}

func (a *Auditor) create(p schema.Partition, id string, data any, actor string) (RawRecord, error) {
	if err := a.check(p, id, actor); err != nil {
		return RawRecord{}, err
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return RawRecord{}, err
	}
	rec := RawRecord{
		ID:   id,
		Data: raw,
		Meta: schema.Meta{
			ResourceName: p,
			CreatedBy:    actor,
			CreatedAt:    a.clock.Now(),
		},
	}
	if err := a.doc.Set(engine.Join(string(p), id), rec); err != nil {
		return RawRecord{}, err
	}

	a.log.Debug("record created", zap.String("partition", string(p)), zap.String("id", id), zap.String("actor", actor))
	return rec, nil
}

// Update applies merge to the data of an active record and re-stamps the
// update fields. Tombstoned records are reported as not found rather than
// silently resurrected.
func (a *Auditor) Update(p schema.Partition, id string, merge MergeFunc, actor string) (RawRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check(p, id, actor); err != nil {
		return RawRecord{}, err
	}

	rec, err := a.Load(p, id)
	if err != nil {
		return RawRecord{}, err
	}
	if rec.Meta.Deleted {
		return RawRecord{}, ErrNotFound
	}

	next, err := merge(rec.Data)
	if err != nil {
		return RawRecord{}, err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return RawRecord{}, err
	}
	rec.Data = raw
	rec.Meta.UpdatedBy = actor
	rec.Meta.UpdatedAt = a.clock.Now()

	if err := a.doc.Set(engine.Join(string(p), id), rec); err != nil {
		return RawRecord{}, err
	}

	a.log.Debug("record updated", zap.String("partition", string(p)), zap.String("id", id), zap.String("actor", actor))
	return rec, nil
}

// SoftDelete flags a record as deleted and stamps the deletion fields. The
// data and earlier stamps are kept.
func (a *Auditor) SoftDelete(p schema.Partition, id string, actor string) (RawRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check(p, id, actor); err != nil {
		return RawRecord{}, err
	}

	rec, err := a.Load(p, id)
	if err != nil {
		return RawRecord{}, err
	}
	if rec.Meta.Deleted {
		return RawRecord{}, ErrNotFound
	}
	rec.Meta.Deleted = true
	rec.Meta.DeletedBy = actor
	rec.Meta.DeletedAt = a.clock.Now()

	if err := a.doc.Set(engine.Join(string(p), id), rec); err != nil {
		return RawRecord{}, err
	}

	a.log.Debug("record deleted", zap.String("partition", string(p)), zap.String("id", id), zap.String("actor", actor))
	return rec, nil
}

// Wipe physically removes a record without any audit trail. It exists for
// session invalidation only.
func (a *Auditor) Wipe(p schema.Partition, id string) error {
	if !p.Valid() {
		return ErrInvalidPartition
	}
	if err := validateID(id); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.doc.Delete(engine.Join(string(p), id))
}

// Load returns the stored record, tombstones included.
func (a *Auditor) Load(p schema.Partition, id string) (RawRecord, error) {
	if !p.Valid() {
		return RawRecord{}, ErrInvalidPartition
	}
	if err := validateID(id); err != nil {
		return RawRecord{}, err
	}
	var rec RawRecord
	if err := a.doc.Decode(engine.Join(string(p), id), &rec); err != nil {
		return RawRecord{}, err
	}
	return rec, nil
}

// Scan returns every stored record of a partition, tombstones included, in no
// particular order. A partition that was never written is empty.
func (a *Auditor) Scan(p schema.Partition) ([]RawRecord, error) {
	if !p.Valid() {
		return nil, ErrInvalidPartition
	}
	var all map[string]RawRecord
	if err := a.doc.Decode(engine.Join(string(p)), &all); err != nil {
		if engine.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]RawRecord, 0, len(all))
	for _, rec := range all {
		out = append(out, rec)
	}
	return out, nil
}

func (a *Auditor) check(p schema.Partition, id, actor string) error {
	if !p.Valid() {
		return ErrInvalidPartition
	}
	if err := validateID(id); err != nil {
		return err
	}
	if actor == schema.SeedIdentity {
		return nil
	}
	if !a.IsActiveUser(actor) {
		return fmt.Errorf("%w: %q", ErrInvalidActor, actor)
	}
	return nil
}

func validateID(id string) error {
	if id == "" || strings.Contains(id, "/") {
		return ErrInvalidID
	}
	return nil
}
