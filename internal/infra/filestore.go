package infra

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/eliteGoblin/focusd/web_mon/internal/domain"
)

// FileStore implements domain.Store as a single JSON file holding a flat
// key-value map. Used for the synchronized namespace (blocks, schedules,
// settings): the file is small and a sync agent can ship it across
// devices.
//
// Writes take an advisory flock and land via temp-file-plus-rename. That
// keeps the file itself consistent under concurrent writers, but it is not
// a cross-process read-modify-write guarantee; the in-process lock table
// in StoreGateway covers contention within one process only.
type FileStore struct {
	path string
}

// NewFileStore creates a file store at the given path. The file is created
// lazily on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path (for tests and status output).
func (s *FileStore) Path() string {
	return s.path
}

// Get reads a key. Returns (false, nil) when the file or key is absent.
func (s *FileStore) Get(ctx context.Context, key string, out any) (bool, error) {
	m, err := s.load()
	if err != nil {
		return false, err
	}
	raw, ok := m[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("decode value for %q: %w", key, err)
	}
	return true, nil
}

// Set writes a key.
func (s *FileStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %q: %w", key, err)
	}
	return s.update(func(m map[string]json.RawMessage) {
		m[key] = raw
	})
}

// Delete removes a key.
func (s *FileStore) Delete(ctx context.Context, key string) error {
	return s.update(func(m map[string]json.RawMessage) {
		delete(m, key)
	})
}

// Close is a no-op for a file store.
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) load() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]json.RawMessage{}, nil
		}
		return nil, err
	}
	m := map[string]json.RawMessage{}
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode store file %s: %w", s.path, err)
	}
	return m, nil
}

// update applies a mutation under a file lock and writes atomically.
func (s *FileStore) update(mutate func(map[string]json.RawMessage)) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return err
	}

	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	m, err := s.load()
	if err != nil {
		return err
	}
	mutate(m)
	return s.atomicWrite(m)
}

// atomicWrite persists the map via write + rename.
func (s *FileStore) atomicWrite(m map[string]json.RawMessage) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	// Temp file is unique per process to avoid clobbering a concurrent writer.
	tmpPath := fmt.Sprintf("%s.%d.tmp", s.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Ensure FileStore implements domain.Store.
var _ domain.Store = (*FileStore)(nil)
