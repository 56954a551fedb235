package pulsewatch

import (
	"time"

	"github.com/jpalmerr/pulsewatch/internal/store"
)

// Status is the canonical lifecycle status shown on an entity's panel.
type Status string

const (
	StatusOnline     Status = "online"
	StatusOffline    Status = "offline"
	StatusStarting   Status = "starting"
	StatusStopping   Status = "stopping"
	StatusRestarting Status = "restarting"

	// StatusUnknown means no probe or push has offered an opinion yet.
	StatusUnknown Status = "unknown"
)

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// Snapshot is what an entity's panel showed after a write.
type Snapshot struct {
	EntityID   string
	Name       string
	Status     Status
	Players    int
	MaxPlayers int
	Hostname   string

	// EventType is the raw vendor name of the last lifecycle event.
	EventType string

	PanelMessageID string
	UpdatedAt      time.Time

	// Removed is set once, when the entity stops being tracked.
	Removed bool
}

func snapshotFromStore(s store.EntitySnapshot) Snapshot {
	return Snapshot{
		EntityID:       s.EntityID,
		Name:           s.Name,
		Status:         Status(s.Status),
		Players:        s.Players,
		MaxPlayers:     s.MaxPlayers,
		Hostname:       s.Hostname,
		EventType:      s.EventType,
		PanelMessageID: s.PanelMessageID,
		UpdatedAt:      s.UpdatedAt,
		Removed:        s.Removed,
	}
}
