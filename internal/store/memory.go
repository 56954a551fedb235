package store

import (
	"sort"
	"sync"
)

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]EntitySnapshot

	subMu       sync.RWMutex
	subscribers map[chan EntitySnapshot]struct{}
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:   make(map[string]EntitySnapshot),
		subscribers: make(map[chan EntitySnapshot]struct{}),
	}
}

// Update implements [Store].
func (m *MemoryStore) Update(snap EntitySnapshot) {
	m.mu.Lock()
	m.snapshots[snap.EntityID] = snap
	m.mu.Unlock()

	m.publish(snap)
}

// Remove implements [Store]. Unknown ids are ignored.
func (m *MemoryStore) Remove(entityID string) {
	m.mu.Lock()
	snap, ok := m.snapshots[entityID]
	delete(m.snapshots, entityID)
	m.mu.Unlock()

	if !ok {
		return
	}
	snap.Removed = true
	m.publish(snap)
}

// GetAll implements [Store].
func (m *MemoryStore) GetAll() []EntitySnapshot {
	m.mu.RLock()
	out := make([]EntitySnapshot, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out
}

// Subscribe implements [Store]. The channel buffers 100 updates.
func (m *MemoryStore) Subscribe() <-chan EntitySnapshot {
	ch := make(chan EntitySnapshot, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe implements [Store]. Safe to call twice or with an unknown
// channel.
func (m *MemoryStore) Unsubscribe(ch <-chan EntitySnapshot) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			return
		}
	}
}

// publish never blocks; a full subscriber drops the update.
func (m *MemoryStore) publish(snap EntitySnapshot) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
