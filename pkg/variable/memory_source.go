package variable

import (
	"context"
	"sync"
)

// MemorySource is an in-memory collection of Variables, the trivial base
// case of a PropertySource: no external I/O, so no library earns its keep
// here beyond the standard library's sync primitives.
type MemorySource struct {
	mu   sync.RWMutex
	vars map[string]Variable
	prev map[string]Variable
}

// NewMemorySource builds a MemorySource seeded with the given variables.
func NewMemorySource(seed ...Variable) *MemorySource {
	m := &MemorySource{vars: make(map[string]Variable), prev: make(map[string]Variable)}
	for _, v := range seed {
		m.vars[v.Name] = v
		m.prev[v.Name] = v
	}
	return m
}

func (m *MemorySource) Name() string { return "memory" }

func (m *MemorySource) Lookup(_ context.Context, name string) (Variable, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[name]
	if !ok {
		return Variable{}, ErrNotFound
	}
	return v, nil
}

// Set updates or inserts a variable. Intended for tests and in-process
// callers simulating an external config change between Refresh calls.
func (m *MemorySource) Set(v Variable) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vars[v.Name] = v
}

func (m *MemorySource) Synchronize(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var changed []string
	for name, v := range m.vars {
		if old, ok := m.prev[name]; !ok || old.Value != v.Value || old.Kind != v.Kind {
			changed = append(changed, name)
		}
	}
	for name := range m.prev {
		if _, ok := m.vars[name]; !ok {
			changed = append(changed, name)
		}
	}
	m.prev = make(map[string]Variable, len(m.vars))
	for k, v := range m.vars {
		m.prev[k] = v
	}
	return changed, nil
}
