// Package file persists the account as a JSON document on local disk.
//
// Writes are atomic (temp file, fsync, rename). Update is serialized by an
// in-process mutex only: two processes sharing one file are last-writer-wins.
package file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"market-terminal/internal/model"
	"market-terminal/internal/store"
)

// Store is a JSON-file state store.
type Store struct {
	mu   sync.Mutex
	path string
}

// New returns a store at path, creating the parent directory.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("file store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file store: mkdir: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the state file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Load(ctx context.Context) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) Save(ctx context.Context, acct *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(acct)
}

func (s *Store) Update(ctx context.Context, fn func(*model.Account) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	acct, err := s.load()
	if err != nil {
		return err
	}
	next, err := store.Apply(acct, fn)
	if err != nil {
		return err
	}
	return s.save(next)
}

func (s *Store) Close() error { return nil }

func (s *Store) load() (*model.Account, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return model.NewAccount(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read %s: %w", s.path, err)
	}
	return store.Decode(data)
}

func (s *Store) save(acct *model.Account) error {
	data, err := store.Encode(acct)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("file store: write %s: %w", s.path, err)
	}
	return nil
}

// writeFileAtomic writes data to path atomically (tmp file + fsync + rename)
// and fsyncs the parent directory so the rename survives a crash.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		_ = d.Close()
	}
	return nil
}
