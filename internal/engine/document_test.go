package engine

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_GetSetDelete(t *testing.T) {
	d := NewDocument(nil, nil, nil)

	require.NoError(t, d.Set("/CATEGORIES/food", map[string]any{"title": "Food"}))

	got, err := d.Get("/CATEGORIES/food")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "Food"}, got)

	assert.True(t, d.Exists("/CATEGORIES"))
	assert.True(t, d.Exists("CATEGORIES/food"))
	assert.False(t, d.Exists("/CATEGORIES/drinks"))

	_, err = d.Get("/CATEGORIES/drinks")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, d.Delete("/CATEGORIES/food"))
	assert.False(t, d.Exists("/CATEGORIES/food"))
	assert.True(t, d.Exists("/CATEGORIES"))

	// deleting something absent is not an error
	assert.NoError(t, d.Delete("/CATEGORIES/food"))
	assert.NoError(t, d.Delete("/NOPE/x"))
}

func TestDocument_SetCreatesIntermediateContainers(t *testing.T) {
	d := NewDocument(nil, nil, nil)

	require.NoError(t, d.Set("/a/b/c", "leaf"))
	got, err := d.Get("/a")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"b": map[string]any{"c": "leaf"}}, got)

	err = d.Set("/a/b/c/d", 1)
	assert.ErrorIs(t, err, ErrNotContainer)
}

func TestDocument_InvalidPath(t *testing.T) {
	d := NewDocument(nil, nil, nil)

	_, err := d.Get("/a//b")
	assert.ErrorIs(t, err, ErrInvalidPath)
	assert.ErrorIs(t, d.Set("/a//b", 1), ErrInvalidPath)
	assert.False(t, d.Exists("/a//b"))
}

func TestDocument_GetReturnsCopy(t *testing.T) {
	d := NewDocument(nil, nil, nil)
	require.NoError(t, d.Set("/P/x", map[string]any{"n": "1"}))

	got, err := d.Get("/P/x")
	require.NoError(t, err)
	got.(map[string]any)["n"] = "mutated"

	again, err := d.Get("/P/x")
	require.NoError(t, err)
	assert.Equal(t, "1", again.(map[string]any)["n"])
}

func TestDocument_Decode(t *testing.T) {
	type item struct {
		Title string `json:"title"`
		Count int    `json:"count"`
	}
	d := NewDocument(nil, nil, nil)
	require.NoError(t, d.Set("/P/x", item{Title: "t", Count: 3}))

	var out item
	require.NoError(t, d.Decode("/P/x", &out))
	assert.Equal(t, item{Title: "t", Count: 3}, out)

	assert.ErrorIs(t, d.Decode("/P/y", &out), ErrNotFound)
}

func TestDocument_RootOperations(t *testing.T) {
	d := NewDocument(nil, nil, nil)
	require.NoError(t, d.Set("/", map[string]any{"USERS": map[string]any{}}))
	assert.True(t, d.Exists("/USERS"))

	assert.ErrorIs(t, d.Set("/", []string{"x"}), ErrNotContainer)

	require.NoError(t, d.Delete("/"))
	assert.False(t, d.Exists("/USERS"))
}

func TestSelect(t *testing.T) {
	d := NewDocument(nil, nil, nil)
	require.NoError(t, d.Set("/USERS/u1", map[string]any{"id": "u1"}))
	require.NoError(t, d.Set("/CATEGORIES/c1", map[string]any{"id": "c1"}))

	names := Select(d, func(root map[string]any) int { return len(root) })
	assert.Equal(t, 2, names)

	// the projection works on a copy
	Select(d, func(root map[string]any) struct{} {
		delete(root, "USERS")
		return struct{}{}
	})
	assert.True(t, d.Exists("/USERS/u1"))
}

func TestPersistence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "db", "ledger.json")

	p, err := NewPersistence(file)
	require.NoError(t, err)
	assert.False(t, p.Exists())

	root, err := p.Load()
	require.NoError(t, err)
	assert.Empty(t, root)

	require.NoError(t, p.Save(map[string]any{"USERS": map[string]any{"u1": map[string]any{"id": "u1"}}}))
	assert.True(t, p.Exists())

	_, err = os.Stat(file + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")

	root, err = p.Load()
	require.NoError(t, err)
	assert.Equal(t, "u1", root["USERS"].(map[string]any)["u1"].(map[string]any)["id"])
}

func TestPersistence_CorruptFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ledger.json")
	require.NoError(t, os.WriteFile(file, []byte("{not json"), 0644))

	p, err := NewPersistence(file)
	require.NoError(t, err)
	_, err = p.Load()
	assert.Error(t, err)

	_, _, err = Open(file, nil)
	assert.ErrorIs(t, err, ErrStoreFailure)
}

func TestDocument_FlushesEveryWrite(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ledger.json")

	d, existed, err := Open(file, nil)
	require.NoError(t, err)
	assert.False(t, existed)
	assert.FileExists(t, file)

	require.NoError(t, d.Set("/CATEGORIES/food", map[string]any{"sum": json.Number("12.50")}))

	// a second handle sees the write without any explicit sync
	d2, existed, err := Open(file, nil)
	require.NoError(t, err)
	assert.True(t, existed)
	got, err := d2.Get("/CATEGORIES/food")
	require.NoError(t, err)
	assert.Equal(t, json.Number("12.50"), got.(map[string]any)["sum"])

	require.NoError(t, d.Delete("/CATEGORIES/food"))
	d3, _, err := Open(file, nil)
	require.NoError(t, err)
	assert.False(t, d3.Exists("/CATEGORIES/food"))
}

func TestDocument_FailedFlushRollsBack(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPersistence(filepath.Join(dir, "missing", "ledger.json"))
	require.NoError(t, err)
	d := NewDocument(nil, p, nil)
	require.NoError(t, d.Set("/P/a", "kept"))

	// remove the directory so the next flush cannot create its temp file
	require.NoError(t, os.RemoveAll(filepath.Join(dir, "missing")))

	err = d.Set("/P/b", "lost")
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.False(t, d.Exists("/P/b"))

	err = d.Delete("/P/a")
	assert.ErrorIs(t, err, ErrStoreFailure)
	assert.True(t, d.Exists("/P/a"))
}

func TestDocument_Concurrent(t *testing.T) {
	d := NewDocument(nil, nil, nil)
	const (
		numGoroutines = 10
		numOps        = 50
	)
	var wg sync.WaitGroup

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				path := Join("P", string(rune('a'+id)), string(rune('a'+j%26)))
				_ = d.Set(path, j)
				_, _ = d.Get(path)
			}
		}(i)
	}
	wg.Wait()

	got, err := d.Get("/P")
	require.NoError(t, err)
	assert.Len(t, got.(map[string]any), numGoroutines)
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "/USERS/u1", Join("USERS", "u1"))
	assert.Equal(t, "/USERS", Join("USERS"))
}
