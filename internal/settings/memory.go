package settings

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of [Store].
//
// Panel message ids set at runtime are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[string]Settings
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a store seeded with entities.
func NewMemoryStore(entities ...Settings) *MemoryStore {
	m := &MemoryStore{entities: make(map[string]Settings, len(entities))}
	for _, s := range entities {
		m.entities[s.ID] = clone(s)
	}
	return m
}

// Put adds or replaces an entity.
func (m *MemoryStore) Put(s Settings) {
	m.mu.Lock()
	m.entities[s.ID] = clone(s)
	m.mu.Unlock()
}

// Delete removes an entity. Unknown ids are ignored.
func (m *MemoryStore) Delete(id string) {
	m.mu.Lock()
	delete(m.entities, id)
	m.mu.Unlock()
}

// List implements [Store].
func (m *MemoryStore) List(ctx context.Context) ([]Settings, error) {
	m.mu.RLock()
	out := make([]Settings, 0, len(m.entities))
	for _, s := range m.entities {
		out = append(out, clone(s))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Get implements [Store].
func (m *MemoryStore) Get(ctx context.Context, id string) (Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.entities[id]
	if !ok {
		return Settings{}, ErrNotFound
	}
	return clone(s), nil
}

// SetPanelMessageID implements [Store].
func (m *MemoryStore) SetPanelMessageID(ctx context.Context, id, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.entities[id]
	if !ok {
		return ErrNotFound
	}
	s.PanelMessageID = messageID
	m.entities[id] = s
	return nil
}
