// Package store persists retained messages as a single JSON document.
//
// Every operation reloads the whole file, mutates it in memory and writes it
// back. File serializes those cycles so two pipelines never interleave a
// load with another pipeline's save.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"angelbot/internal/domain"
)

// formatVersion is written into every store file.
const formatVersion = 1

type document struct {
	Version  int                    `json:"version"`
	Messages []domain.StoredMessage `json:"messages"`
}

// Load reads the store at path. A missing file is first created empty.
func Load(path string) ([]domain.StoredMessage, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(path, nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat store %s: %w: %w", path, domain.ErrIO, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read store %s: %w: %w", path, domain.ErrIO, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse store %s: %w: %w", path, domain.ErrSerialization, err)
	}
	if doc.Version > formatVersion {
		return nil, fmt.Errorf("parse store %s: %w: unsupported version %d", path, domain.ErrSerialization, doc.Version)
	}
	if doc.Messages == nil {
		doc.Messages = []domain.StoredMessage{}
	}
	return doc.Messages, nil
}

// Save replaces the file at path with msgs. The new content is written to a
// temporary file in the same directory and renamed into place, so readers
// see either the old or the new store, never a partial one.
func Save(path string, msgs []domain.StoredMessage) error {
	if msgs == nil {
		msgs = []domain.StoredMessage{}
	}
	data, err := json.Marshal(document{Version: formatVersion, Messages: msgs})
	if err != nil {
		return fmt.Errorf("encode store: %w: %w", domain.ErrSerialization, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create store directory %s: %w: %w", dir, domain.ErrIO, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp store: %w: %w", domain.ErrIO, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp store: %w: %w", domain.ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp store: %w: %w", domain.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp store: %w: %w", domain.ErrIO, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replace store %s: %w: %w", path, domain.ErrIO, err)
	}
	return nil
}

// File is a store file guarded by a single-slot lock.
type File struct {
	path string
	sem  chan struct{}
}

func NewFile(path string) *File {
	return &File{path: path, sem: make(chan struct{}, 1)}
}

func (f *File) Path() string { return f.path }

func (f *File) lock(ctx context.Context) error {
	select {
	case f.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *File) unlock() { <-f.sem }

// Update runs one load -> fn -> save cycle while holding the lock.
// Nothing is written when fn returns an error.
func (f *File) Update(ctx context.Context, fn func([]domain.StoredMessage) ([]domain.StoredMessage, error)) error {
	if err := f.lock(ctx); err != nil {
		return err
	}
	defer f.unlock()

	msgs, err := Load(f.path)
	if err != nil {
		return err
	}
	msgs, err = fn(msgs)
	if err != nil {
		return err
	}
	return Save(f.path, msgs)
}

// View runs fn on a freshly loaded store while holding the lock.
func (f *File) View(ctx context.Context, fn func([]domain.StoredMessage) error) error {
	if err := f.lock(ctx); err != nil {
		return err
	}
	defer f.unlock()

	msgs, err := Load(f.path)
	if err != nil {
		return err
	}
	return fn(msgs)
}

// Find returns the first entry whose message ID matches id.
func Find(msgs []domain.StoredMessage, id string) (domain.StoredMessage, bool) {
	for _, m := range msgs {
		if m.Message.ID == id {
			return m, true
		}
	}
	return domain.StoredMessage{}, false
}
