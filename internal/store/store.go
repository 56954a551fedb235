package store

import "time"

// EntitySnapshot is what an entity's panel currently shows.
type EntitySnapshot struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`

	// Status is the canonical status, or "unknown".
	Status string `json:"status"`

	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
	Hostname   string `json:"hostname"`

	// EventType is the raw vendor name of the last lifecycle event.
	EventType string `json:"event_type,omitempty"`
	TxState   string `json:"tx_state,omitempty"`

	PanelMessageID string    `json:"panel_message_id,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`

	// Removed marks the final snapshot of an entity that is no longer tracked.
	Removed bool `json:"removed,omitempty"`
}

// Store holds snapshots and publishes changes.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Update replaces the snapshot for snap.EntityID and notifies subscribers.
	Update(snap EntitySnapshot)

	// Remove drops an entity and notifies subscribers with a Removed snapshot.
	Remove(entityID string)

	// GetAll returns a copy of every snapshot, ordered by entity id.
	GetAll() []EntitySnapshot

	// Subscribe returns a buffered channel of snapshot updates.
	// Caller must call Unsubscribe when done.
	Subscribe() <-chan EntitySnapshot

	// Unsubscribe removes a subscription and closes the channel.
	Unsubscribe(ch <-chan EntitySnapshot)
}
