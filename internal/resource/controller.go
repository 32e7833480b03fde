package resource

import (
	"errors"

	"github.com/celerix-dev/celerix-ledger/internal/audit"
	"github.com/celerix-dev/celerix-ledger/internal/engine"
	"github.com/celerix-dev/celerix-ledger/internal/query"
	"github.com/celerix-dev/celerix-ledger/pkg/schema"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Controller answers resource requests with a schema.Result. It never
// returns an error: every failure is folded into the result reason.
type Controller[T any, U Patch[T], P any] struct {
	ops   *Operations[T, U, P]
	log   *zap.Logger
	newID func() string
}

func NewController[T any, U Patch[T], P any](ops *Operations[T, U, P], log *zap.Logger) *Controller[T, U, P] {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller[T, U, P]{
		ops:   ops,
		log:   log.With(zap.String("resource", string(ops.Partition()))),
		newID: uuid.NewString,
	}
}

// Operations exposes the typed CRUD layer for callers that need records
// rather than results.
func (c *Controller[T, U, P]) Operations() *Operations[T, U, P] {
	return c.ops
}

func (c *Controller[T, U, P]) List(q query.Query) schema.Result[[]P] {
	recs, err := c.ops.List(q)
	if err != nil {
		return fail(c, err, []P{})
	}
	out := make([]P, 0, len(recs))
	for _, rec := range recs {
		out = append(out, c.ops.Public(rec))
	}
	return schema.Ok(out)
}

func (c *Controller[T, U, P]) Read(id string) schema.Result[*P] {
	if id == "" {
		return fail[*P](c, ErrInvalidParams, nil)
	}
	if !c.ops.Exist(id) {
		return fail[*P](c, ErrNotExist, nil)
	}
	rec, err := c.ops.Read(id)
	if err != nil {
		return fail[*P](c, err, nil)
	}
	return c.public(rec)
}

// Create stores a new record. A draft without id gets a fresh UUID.
func (c *Controller[T, U, P]) Create(draft *schema.Draft[T], actor *schema.Identity) schema.Result[*P] {
	if draft == nil {
		return fail[*P](c, ErrInvalidParams, nil)
	}
	if actor == nil || actor.ID == "" {
		return fail[*P](c, ErrUnknownUser, nil)
	}
	id := draft.ID
	if id == "" {
		id = c.newID()
	}
	if c.ops.Exist(id) {
		return fail[*P](c, ErrAlreadyExist, nil)
	}
	if err := Struct(draft.Data); err != nil {
		return fail[*P](c, err, nil)
	}
	if v := c.ops.def.ValidateCreate; v != nil {
		if err := v(draft.Data); err != nil {
			return fail[*P](c, err, nil)
		}
	}

	data := draft.Data
	if prep := c.ops.def.Prepare; prep != nil {
		var err error
		if data, err = prep(data); err != nil {
			return fail[*P](c, err, nil)
		}
	}

	rec, err := c.ops.Create(id, data, actor.ID)
	if err != nil {
		return fail[*P](c, err, nil)
	}
	c.log.Info("record created", zap.String("id", id), zap.String("actor", actor.ID))
	return c.public(rec)
}

// Update merges patch into an active record. Only fields present in the
// patch are validated.
func (c *Controller[T, U, P]) Update(id string, patch *U, actor *schema.Identity) schema.Result[*P] {
	if id == "" || patch == nil {
		return fail[*P](c, ErrInvalidParams, nil)
	}
	if actor == nil || actor.ID == "" {
		return fail[*P](c, ErrUnknownUser, nil)
	}
	if !c.ops.Exist(id) {
		return fail[*P](c, ErrNotExist, nil)
	}
	if err := Struct(*patch); err != nil {
		return fail[*P](c, err, nil)
	}
	if v := c.ops.def.ValidateUpdate; v != nil {
		if err := v(*patch); err != nil {
			return fail[*P](c, err, nil)
		}
	}

	rec, err := c.ops.Update(id, *patch, actor.ID)
	if err != nil {
		return fail[*P](c, err, nil)
	}
	c.log.Info("record updated", zap.String("id", id), zap.String("actor", actor.ID))
	return c.public(rec)
}

func (c *Controller[T, U, P]) Remove(id string, actor *schema.Identity) schema.Result[*P] {
	if id == "" {
		return fail[*P](c, ErrInvalidParams, nil)
	}
	if actor == nil || actor.ID == "" {
		return fail[*P](c, ErrUnknownUser, nil)
	}
	if !c.ops.Exist(id) {
		return fail[*P](c, ErrNotExist, nil)
	}

	rec, err := c.ops.Remove(id, actor.ID)
	if err != nil {
		return fail[*P](c, err, nil)
	}
	c.log.Info("record deleted", zap.String("id", id), zap.String("actor", actor.ID))
	return c.public(rec)
}

// Exist reports whether id names an active record. An empty id is a failed
// result whose data is false.
func (c *Controller[T, U, P]) Exist(id string) schema.Result[bool] {
	if id == "" {
		return fail(c, ErrInvalidParams, false)
	}
	return schema.Ok(c.ops.Exist(id))
}

func (c *Controller[T, U, P]) public(rec schema.Record[T]) schema.Result[*P] {
	p := c.ops.Public(rec)
	return schema.Ok(&p)
}

func fail[D any, T any, U Patch[T], P any](c *Controller[T, U, P], err error, fallback D) schema.Result[D] {
	switch {
	case errors.Is(err, engine.ErrStoreFailure):
		c.log.Error("store failure", zap.Error(err))
	case errors.Is(err, audit.ErrInvalidActor):
		c.log.Warn("rejected actor", zap.Error(err))
	default:
		c.log.Debug("request rejected", zap.Error(err))
	}
	return schema.Fail(err, fallback)
}
