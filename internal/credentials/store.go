package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNotInitialized is returned when the store is used before Init.
var ErrNotInitialized = errors.New("credentials store not initialized")

// Store reads and writes the cached token file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store bound to path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Init (re)binds the store to a token file path.
func (s *Store) Init(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.path = path
}

// Path returns the bound token file path.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// LoadToken returns the cached token, or "" when none is stored.
// A missing file is not an error.
func (s *Store) LoadToken() (string, error) {
	path := s.Path()
	if path == "" {
		return "", ErrNotInitialized
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	return strings.TrimSpace(string(data)), nil
}

// SaveToken atomically replaces the cached token.
func (s *Store) SaveToken(token string) error {
	path := s.Path()
	if path == "" {
		return ErrNotInitialized
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".token-*")
	if err != nil {
		return fmt.Errorf("create temp token file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		return fmt.Errorf("write token: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod token file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close token file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace token file: %w", err)
	}
	return nil
}

// Clear removes the cached token. Clearing a missing file is not an error.
func (s *Store) Clear() error {
	path := s.Path()
	if path == "" {
		return ErrNotInitialized
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}
