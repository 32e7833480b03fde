package engine

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Persistence handles the disk I/O for a Document.
type Persistence struct {
	Path string
	mu   sync.Mutex // Protects concurrent writes to the filesystem
}

// NewPersistence prepares a persistence handler for the given file,
// creating its parent directory if needed.
func NewPersistence(file string) (*Persistence, error) {
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return nil, err
	}
	return &Persistence{Path: file}, nil
}

// Exists reports whether the document file is already on disk.
func (p *Persistence) Exists() bool {
	_, err := os.Stat(p.Path)
	return err == nil
}

// Save writes the whole root atomically: temp file, fsync, rename.
// Either the old or the new document survives a crash, never a torn one.
func (p *Persistence) Save(root map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return err
	}

	tempPath := p.Path + ".tmp"
	f, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tempPath, p.Path)
}

// Load reads the document. A missing file yields an empty root.
func (p *Persistence) Load() (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	content, err := os.ReadFile(p.Path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return map[string]any{}, nil
	}

	root, err := decodeTree(content)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.Path, err)
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode %s: root is not an object", p.Path)
	}
	return obj, nil
}

// decodeTree parses JSON keeping numbers as json.Number so values survive a
// save/load cycle unchanged.
func decodeTree(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
