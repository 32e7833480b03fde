package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"
)

// Document is the single source of truth: a JSON object tree guarded by a
// RWMutex. Reads return deep copies; writes are flushed to the persister
// before they return.
type Document struct {
	mu        sync.RWMutex
	root      map[string]any
	persister *Persistence
	log       *zap.Logger
}

// NewDocument wraps an already loaded root. A nil persister keeps the
// document in memory only.
func NewDocument(initial map[string]any, p *Persistence, log *zap.Logger) *Document {
	if initial == nil {
		initial = make(map[string]any)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Document{
		root:      initial,
		persister: p,
		log:       log,
	}
}

// Open loads the document at file (or starts an empty one) and reports
// whether the file existed before.
func Open(file string, log *zap.Logger) (*Document, bool, error) {
	p, err := NewPersistence(file)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	existed := p.Exists()
	root, err := p.Load()
	if err != nil {
		return nil, existed, fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	d := NewDocument(root, p, log)
	if !existed {
		// Materialise the file so a crash before the first write still
		// leaves a valid document behind.
		if err := d.flush(); err != nil {
			return nil, false, err
		}
	}
	return d, existed, nil
}

// Get returns a copy of the value stored at path.
func (d *Document) Get(path string) (any, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	metrics.GetOrCreateCounter(`ledger_store_ops_total{op="get"}`).Inc()

	val, ok := lookup(d.root, segments)
	if !ok {
		return nil, ErrNotFound
	}
	return deepCopy(val), nil
}

// Exists reports whether a value is stored at path.
func (d *Document) Exists(path string) bool {
	segments, err := splitPath(path)
	if err != nil {
		return false
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := lookup(d.root, segments)
	return ok
}

// Decode unmarshals the value at path into out.
func (d *Document) Decode(path string, out any) error {
	val, err := d.Get(path)
	if err != nil {
		return err
	}
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// Set replaces the value at path, creating intermediate objects as needed.
// The value is normalised through JSON so the tree only holds JSON types.
func (d *Document) Set(path string, value any) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	normalized, err := normalize(value)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	metrics.GetOrCreateCounter(`ledger_store_ops_total{op="set"}`).Inc()

	if len(segments) == 0 {
		obj, ok := normalized.(map[string]any)
		if !ok {
			return ErrNotContainer
		}
		prev := d.root
		d.root = obj
		if err := d.flush(); err != nil {
			d.root = prev
			return err
		}
		return nil
	}

	parent, err := ensureParent(d.root, segments)
	if err != nil {
		return err
	}
	key := segments[len(segments)-1]
	prev, existed := parent[key]
	parent[key] = normalized

	if err := d.flush(); err != nil {
		if existed {
			parent[key] = prev
		} else {
			delete(parent, key)
		}
		return err
	}
	return nil
}

// Delete physically removes the value at path. Removing a missing path is a
// no-op; removing the root empties the document.
func (d *Document) Delete(path string) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	metrics.GetOrCreateCounter(`ledger_store_ops_total{op="delete"}`).Inc()

	if len(segments) == 0 {
		prev := d.root
		d.root = make(map[string]any)
		if err := d.flush(); err != nil {
			d.root = prev
			return err
		}
		return nil
	}

	parentVal, ok := lookup(d.root, segments[:len(segments)-1])
	if !ok {
		return nil
	}
	parent, ok := parentVal.(map[string]any)
	if !ok {
		return nil
	}
	key := segments[len(segments)-1]
	prev, existed := parent[key]
	if !existed {
		return nil
	}
	delete(parent, key)

	if err := d.flush(); err != nil {
		parent[key] = prev
		return err
	}
	return nil
}

// Select applies a read-only projection to a copy of the whole root.
func Select[T any](d *Document, fn func(root map[string]any) T) T {
	d.mu.RLock()
	snapshot := deepCopy(d.root).(map[string]any)
	d.mu.RUnlock()
	return fn(snapshot)
}

// flush persists the current root. It MUST be called while holding d.mu.
func (d *Document) flush() error {
	if d.persister == nil {
		return nil
	}
	start := time.Now()
	defer metrics.GetOrCreateHistogram(`ledger_store_flush_duration_seconds`).UpdateDuration(start)

	if err := d.persister.Save(d.root); err != nil {
		metrics.GetOrCreateCounter(`ledger_store_flush_errors_total`).Inc()
		d.log.Error("document flush failed", zap.String("file", d.persister.Path), zap.Error(err))
		return fmt.Errorf("%w: %v", ErrStoreFailure, err)
	}
	return nil
}

func lookup(root map[string]any, segments []string) (any, bool) {
	var cur any = root
	for _, s := range segments {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[s]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func ensureParent(root map[string]any, segments []string) (map[string]any, error) {
	cur := root
	for _, s := range segments[:len(segments)-1] {
		next, ok := cur[s]
		if !ok || next == nil {
			child := make(map[string]any)
			cur[s] = child
			cur = child
			continue
		}
		child, ok := next.(map[string]any)
		if !ok {
			return nil, ErrNotContainer
		}
		cur = child
	}
	return cur, nil
}

func normalize(value any) (any, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	v, err := decodeTree(b)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// IsNotFound reports whether err means the path held nothing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
