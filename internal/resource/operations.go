package resource

import (
	"cmp"
	"encoding/json"
	"errors"
	"slices"

	"github.com/celerix-dev/celerix-ledger/internal/audit"
	"github.com/celerix-dev/celerix-ledger/internal/query"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
)

// Patch is a partial update for T. Fields left nil are kept.
type Patch[T any] interface {
	Apply(*T)
}

// Definition describes one resource: where it lives, how it is shown to
// callers, how listings are filtered and which domain rules apply.
type Definition[T any, U Patch[T], P any] struct {
	Partition schema.Partition
	Public    func(id string, data T) P
	// Select is optional; without it List returns every active record.
	Select query.Builder[T]
	// ValidateCreate and ValidateUpdate run after the struct tags pass.
	ValidateCreate func(data T) error
	ValidateUpdate func(patch U) error
	// Prepare rewrites validated data right before it is stored.
	Prepare func(data T) (T, error)
}

// Operations is the typed CRUD surface of one partition.
type Operations[T any, U Patch[T], P any] struct {
	def   Definition[T, U, P]
	audit *audit.Auditor
}

func NewOperations[T any, U Patch[T], P any](a *audit.Auditor, def Definition[T, U, P]) *Operations[T, U, P] {
	return &Operations[T, U, P]{def: def, audit: a}
}

func (o *Operations[T, U, P]) Partition() schema.Partition {
	return o.def.Partition
}

// Public maps a record to the shape callers see.
func (o *Operations[T, U, P]) Public(rec schema.Record[T]) P {
	return o.def.Public(rec.ID, rec.Data)
}

// Create stores data under id. An active record under id is ErrAlreadyExist;
// a tombstone is replaced.
func (o *Operations[T, U, P]) Create(id string, data T, actor string) (schema.Record[T], error) {
	raw, err := o.audit.Insert(o.def.Partition, id, data, actor)
	if err != nil {
		if errors.Is(err, audit.ErrExists) {
			return schema.Record[T]{}, ErrAlreadyExist
		}
		return schema.Record[T]{}, err
	}
	return decode[T](raw)
}

// Read returns an active record. Missing and deleted records are ErrNotExist.
func (o *Operations[T, U, P]) Read(id string) (schema.Record[T], error) {
	raw, err := o.audit.Load(o.def.Partition, id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			return schema.Record[T]{}, ErrNotExist
		}
		return schema.Record[T]{}, err
	}
	if raw.Meta.Deleted {
		return schema.Record[T]{}, ErrNotExist
	}
	return decode[T](raw)
}

// Update merges patch into the stored data. Fields absent from the patch keep
// their stored value.
func (o *Operations[T, U, P]) Update(id string, patch U, actor string) (schema.Record[T], error) {
	raw, err := o.audit.Update(o.def.Partition, id, func(current json.RawMessage) (any, error) {
		var data T
		if err := json.Unmarshal(current, &data); err != nil {
			return nil, err
		}
		patch.Apply(&data)
		return data, nil
	}, actor)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			return schema.Record[T]{}, ErrNotExist
		}
		return schema.Record[T]{}, err
	}
	return decode[T](raw)
}

// Remove soft deletes a record.
func (o *Operations[T, U, P]) Remove(id string, actor string) (schema.Record[T], error) {
	raw, err := o.audit.SoftDelete(o.def.Partition, id, actor)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			return schema.Record[T]{}, ErrNotExist
		}
		return schema.Record[T]{}, err
	}
	return decode[T](raw)
}

// List returns the active records ordered by creation time (ties by id),
// narrowed by the resource selector when one is defined.
func (o *Operations[T, U, P]) List(q query.Query) ([]schema.Record[T], error) {
	raws, err := o.audit.Scan(o.def.Partition)
	if err != nil {
		return nil, err
	}

	recs := make([]schema.Record[T], 0, len(raws))
	for _, raw := range raws {
		if raw.Meta.Deleted {
			continue
		}
		rec, err := decode[T](raw)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	slices.SortFunc(recs, func(a, b schema.Record[T]) int {
		if c := a.Meta.CreatedAt.Compare(b.Meta.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	if o.def.Select != nil {
		recs = o.def.Select(q)(recs)
	}
	return recs, nil
}

// Exist reports whether an active record is stored under id. Malformed ids
// and store errors count as absent.
func (o *Operations[T, U, P]) Exist(id string) bool {
	raw, err := o.audit.Load(o.def.Partition, id)
	if err != nil {
		return false
	}
	return !raw.Meta.Deleted
}

func decode[T any](raw audit.RawRecord) (schema.Record[T], error) {
	rec := schema.Record[T]{ID: raw.ID, Meta: raw.Meta}
	if len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, &rec.Data); err != nil {
			return schema.Record[T]{}, err
		}
	}
	return rec, nil
}
