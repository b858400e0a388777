// Package objectstore abstracts the named-blob storage holding backup
// archives. Backends implement put/get/list/delete by object name; archives
// are moved as local files since every producer and consumer works on a
// temp path.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// ErrNotFound indicates the named object does not exist in the bucket.
var ErrNotFound = errors.New("object not found")

// Backend is the object store contract.
type Backend interface {
	// Put uploads the local file at path under the given object name,
	// overwriting any existing object.
	Put(ctx context.Context, name, path string) error

	// Get downloads the named object to the local path, or ErrNotFound.
	Get(ctx context.Context, name, path string) error

	// Exists reports whether the named object exists.
	Exists(ctx context.Context, name string) (bool, error)

	// List returns the names of all objects with the given name prefix,
	// sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the named object. Deleting a missing object is not
	// an error.
	Delete(ctx context.Context, name string) error

	// Close releases backend resources.
	Close() error
}

// LocalBackend stores objects as files under a directory. Used for tests
// and for keeping an on-host archive mirror.
type LocalBackend struct {
	dir string
}

// NewLocalBackend creates a directory-backed object store.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create object directory: %w", err)
	}
	return &LocalBackend{dir: dir}, nil
}

func (l *LocalBackend) objectPath(name string) string {
	return filepath.Join(l.dir, filepath.Base(name))
}

// Put copies the local file into the object directory.
func (l *LocalBackend) Put(ctx context.Context, name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read upload source: %w", err)
	}
	if err := os.WriteFile(l.objectPath(name), data, 0o600); err != nil {
		return fmt.Errorf("write object %s: %w", name, err)
	}
	return nil
}

// Get copies the named object out of the object directory.
func (l *LocalBackend) Get(ctx context.Context, name, path string) error {
	data, err := os.ReadFile(l.objectPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("read object %s: %w", name, err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write download target: %w", err)
	}
	return nil
}

// Exists reports whether the named object exists.
func (l *LocalBackend) Exists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(l.objectPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat object %s: %w", name, err)
	}
	return true, nil
}

// List returns the sorted names of objects matching the prefix.
func (l *LocalBackend) List(ctx context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if prefix == "" || len(e.Name()) >= len(prefix) && e.Name()[:len(prefix)] == prefix {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named object if present.
func (l *LocalBackend) Delete(ctx context.Context, name string) error {
	if err := os.Remove(l.objectPath(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}

// Close is a no-op for the local backend.
func (l *LocalBackend) Close() error { return nil }

// MemoryBackend is an in-memory Backend for tests. FailPuts and FailDeletes
// force the corresponding operations to fail.
type MemoryBackend struct {
	mu      sync.Mutex
	objects map[string][]byte

	FailPuts    bool
	FailDeletes map[string]bool
}

// NewMemoryBackend creates an empty in-memory object store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

// Put stores the file contents under name.
func (m *MemoryBackend) Put(ctx context.Context, name, path string) error {
	if m.FailPuts {
		return fmt.Errorf("object store unreachable")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read upload source: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = append([]byte(nil), data...)
	return nil
}

// Get writes the named object contents to path.
func (m *MemoryBackend) Get(ctx context.Context, name, path string) error {
	m.mu.Lock()
	data, ok := m.objects[name]
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write download target: %w", err)
	}
	return nil
}

// Exists reports whether the named object exists.
func (m *MemoryBackend) Exists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[name]
	return ok, nil
}

// List returns sorted object names matching the prefix.
func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.objects {
		if prefix == "" || len(name) >= len(prefix) && name[:len(prefix)] == prefix {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes the named object.
func (m *MemoryBackend) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDeletes[name] {
		return fmt.Errorf("delete rejected by backend")
	}
	delete(m.objects, name)
	return nil
}

// Close is a no-op for the memory backend.
func (m *MemoryBackend) Close() error { return nil }

// Object returns the stored bytes for name. Test hook.
func (m *MemoryBackend) Object(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	return data, ok
}
