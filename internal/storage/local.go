package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore stores transcripts on the local filesystem.
type LocalStore struct {
	dir string
}

// NewLocalStore creates a local filesystem transcript store.
func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// Save writes data atomically: a reader never sees a half-written transcript.
func (s *LocalStore) Save(ctx context.Context, key string, data []byte, contentType string) error {
	path := s.path(key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	// Atomic write: temp file + rename
	tmp, err := os.CreateTemp(dir, ".transcript-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("chmod: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (s *LocalStore) LocalPath(key string) string {
	full := s.path(key)
	if _, err := os.Stat(full); err == nil {
		return full
	}
	return ""
}

func (s *LocalStore) Exists(ctx context.Context, key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

func (s *LocalStore) Type() string { return "local" }

// Dir returns the store root.
func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}
