package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileStore keeps both slots in one JSON document. Writes go to a temp file
// in the same directory followed by a rename.
type FileStore struct {
	path string
	keys Keys
	mu   sync.RWMutex
}

type fileDocument struct {
	Slots     map[string]string `json:"slots"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// NewFileStore creates a store backed by path. The parent directory is
// created if needed.
func NewFileStore(path string, keys Keys) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &FileStore{path: path, keys: keys.withDefaults()}, nil
}

// Path returns the document location.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Load(context.Context) (Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// #nosec G304 -- path comes from configuration
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read cache file: %w", err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return Entry{}, false, fmt.Errorf("decode cache file: %w", err)
	}
	e := Entry{
		Content:     doc.Slots[s.keys.Content],
		Fingerprint: doc.Slots[s.keys.Fingerprint],
		UpdatedAt:   doc.UpdatedAt,
	}
	if !e.Usable() {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (s *FileStore) Save(_ context.Context, e Entry) error {
	if err := validateEntry(e); err != nil {
		return err
	}
	doc := fileDocument{
		Slots: map[string]string{
			s.keys.Content:     e.Content,
			s.keys.Fingerprint: e.Fingerprint,
		},
		UpdatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode cache file: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return writeFileAtomic(s.path, data)
}

func (s *FileStore) Clear(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

// writeFileAtomic replaces path with data via a temp file and rename.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
