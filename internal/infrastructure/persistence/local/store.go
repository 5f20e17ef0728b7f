// Package local implements the anonymous progress store on the device:
// a JSON file for the CLI and an in-memory variant for tests and previews.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/beanwise/learning-engine/internal/domain/anonymous"
)

// FileStore keeps anonymous progress in a single JSON file.
// Writes go to a temp file that is renamed over the target.
type FileStore struct {
	mu   sync.Mutex
	path string
}

// NewFileStore creates a store at path. The directory is created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load implements anonymous.Store. A missing file yields empty progress.
func (s *FileStore) Load(ctx context.Context) (*anonymous.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return &anonymous.Progress{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("local: read %s: %w", s.path, err)
	}

	var p anonymous.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("local: decode %s: %w", s.path, err)
	}
	return &p, nil
}

// Save implements anonymous.Store.
func (s *FileStore) Save(ctx context.Context, p *anonymous.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("local: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("local: mkdir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("local: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("local: rename: %w", err)
	}
	return nil
}

// Clear implements anonymous.Store.
func (s *FileStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("local: remove %s: %w", s.path, err)
	}
	return nil
}

// MemoryStore keeps anonymous progress in memory.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Load implements anonymous.Store.
func (s *MemoryStore) Load(ctx context.Context) (*anonymous.Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var p anonymous.Progress
	if s.data == nil {
		return &p, nil
	}
	if err := json.Unmarshal(s.data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save implements anonymous.Store.
func (s *MemoryStore) Save(ctx context.Context, p *anonymous.Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

// Clear implements anonymous.Store.
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = nil
	return nil
}

// IsEmpty reports whether nothing is stored.
func (s *MemoryStore) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data == nil
}
