package template

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a template does not exist.
var ErrNotFound = errors.New("template not found")

// Storage persists template images per script. Upload chooses the name.
type Storage interface {
	Upload(ctx context.Context, script string, data []byte) (string, error)
	List(ctx context.Context, script string) ([]string, error)
	Delete(ctx context.Context, script, name string) error
	Fetch(ctx context.Context, script, name string) ([]byte, error)
}

// BaseName is the stem of generated template names.
const BaseName = "template"

// NextName returns the first free name in the sequence template.png,
// template_1.png, template_2.png, ...
func NextName(taken func(name string) bool) string {
	name := BaseName + ".png"
	for i := 1; taken(name); i++ {
		name = fmt.Sprintf("%s_%d.png", BaseName, i)
	}
	return name
}

// MemoryStorage is an in-process Storage.
//
// Thread-safety: All methods are safe for concurrent use.
type MemoryStorage struct {
	mu      sync.Mutex
	scripts map[string]map[string][]byte
}

// NewMemoryStorage creates an empty store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{scripts: make(map[string]map[string][]byte)}
}

// Upload implements Storage.
func (m *MemoryStorage) Upload(ctx context.Context, script string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	byName, ok := m.scripts[script]
	if !ok {
		byName = make(map[string][]byte)
		m.scripts[script] = byName
	}
	name := NextName(func(n string) bool {
		_, exists := byName[n]
		return exists
	})
	byName[name] = append([]byte(nil), data...)
	return name, nil
}

// List implements Storage. Names are sorted.
func (m *MemoryStorage) List(ctx context.Context, script string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.scripts[script]))
	for n := range m.scripts[script] {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

// Delete implements Storage.
func (m *MemoryStorage) Delete(ctx context.Context, script, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.scripts[script][name]; !ok {
		return fmt.Errorf("delete %s/%s: %w", script, name, ErrNotFound)
	}
	delete(m.scripts[script], name)
	return nil
}

// Fetch implements Storage.
func (m *MemoryStorage) Fetch(ctx context.Context, script, name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.scripts[script][name]
	if !ok {
		return nil, fmt.Errorf("fetch %s/%s: %w", script, name, ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}
