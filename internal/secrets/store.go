// Package secrets abstracts the namespaced, versioned key-value secret
// backend used for API credentials and the backup encryption key pair.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNotFound indicates the named secret does not exist in the backend.
// Callers must treat an empty value and an absent secret identically.
var ErrNotFound = errors.New("secret not found")

// Store is the secret backend contract. Implementations namespace every
// logical name under a configured prefix, so Store("x", v) persists under
// "{prefix}-x". Writes append a new version; Get returns the most recent.
type Store interface {
	// Store writes a new version of the named secret.
	Store(ctx context.Context, name, value string) error

	// Get returns the latest version of the named secret, or ErrNotFound.
	Get(ctx context.Context, name string) (string, error)

	// Delete removes the named secret and all its versions.
	Delete(ctx context.Context, name string) error

	// List returns the logical (prefix-stripped) names of all secrets in
	// the namespace, sorted.
	List(ctx context.Context) ([]string, error)
}

// scopedName applies the namespace prefix to a logical secret name.
func scopedName(prefix, name string) string {
	return prefix + "-" + name
}

// logicalName strips the namespace prefix from a backend secret name.
// ok is false when the name is outside the namespace.
func logicalName(prefix, scoped string) (string, bool) {
	if !strings.HasPrefix(scoped, prefix+"-") {
		return "", false
	}
	return strings.TrimPrefix(scoped, prefix+"-"), true
}

// GetOptional looks up a secret for a best-effort feature such as archive
// encryption. Any failure, backend outage included, is reported as absent
// so the caller can degrade instead of aborting.
func GetOptional(ctx context.Context, s Store, name string, logger zerolog.Logger) (string, bool) {
	value, err := s.Get(ctx, name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn().Err(err).Str("secret", name).Msg("secret lookup failed, treating as absent")
		}
		return "", false
	}
	if value == "" {
		return "", false
	}
	return value, true
}

// MemoryStore is an in-memory Store used in tests and dry runs. It mimics
// backend versioning: stores append, reads return the latest version.
type MemoryStore struct {
	mu     sync.Mutex
	prefix string
	data   map[string][]string

	// FailGets forces every Get to fail, simulating a backend outage.
	FailGets bool
}

// NewMemoryStore creates an empty in-memory secret store.
func NewMemoryStore(prefix string) *MemoryStore {
	return &MemoryStore{
		prefix: prefix,
		data:   make(map[string][]string),
	}
}

// Store appends a new version of the named secret.
func (m *MemoryStore) Store(ctx context.Context, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scopedName(m.prefix, name)
	m.data[key] = append(m.data[key], value)
	return nil
}

// Get returns the latest version of the named secret.
func (m *MemoryStore) Get(ctx context.Context, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailGets {
		return "", fmt.Errorf("secret backend unreachable")
	}
	versions, ok := m.data[scopedName(m.prefix, name)]
	if !ok || len(versions) == 0 {
		return "", ErrNotFound
	}
	return versions[len(versions)-1], nil
}

// Delete removes the named secret and all its versions.
func (m *MemoryStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scopedName(m.prefix, name)
	if _, ok := m.data[key]; !ok {
		return ErrNotFound
	}
	delete(m.data, key)
	return nil
}

// List returns the sorted logical names of all stored secrets.
func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.data))
	for key := range m.data {
		if name, ok := logicalName(m.prefix, key); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Versions returns how many versions of the named secret exist. Test hook.
func (m *MemoryStore) Versions(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data[scopedName(m.prefix, name)])
}
