// Package settings stores the per-entity configuration the engine reads
// every tick: probe URLs, notification channel, alert roles and the id of
// the entity's panel message.
//
// [MemoryStore] is seeded from the config file. [PostgresStore] keeps the
// same data in a table so panel message ids survive restarts.
package settings

import (
	"context"
	"errors"

	"github.com/jpalmerr/pulsewatch/internal/registry"
)

// ErrNotFound is returned for an unknown entity id.
var ErrNotFound = errors.New("entity settings not found")

// Settings is the stored configuration of one entity.
type Settings struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	PollURLA        string   `json:"poll_url_a"`
	PollURLB        string   `json:"poll_url_b"`
	SidecarURL      string   `json:"sidecar_url"`
	NotifyChannelID string   `json:"notify_channel_id"`
	AlertRoleIDs    []string `json:"alert_role_ids"`
	DMRoleIDs       []string `json:"dm_role_ids"`
	PanelMessageID  string   `json:"panel_message_id"`
}

// TrackingConfig converts s into the registry's view of the entity.
func (s Settings) TrackingConfig() registry.Config {
	return registry.Config{
		EntityID:       s.ID,
		Name:           s.Name,
		PollURLA:       s.PollURLA,
		PollURLB:       s.PollURLB,
		SidecarURL:     s.SidecarURL,
		NotifyChannel:  s.NotifyChannelID,
		AlertRoleIDs:   s.AlertRoleIDs,
		DMRoleIDs:      s.DMRoleIDs,
		PanelMessageID: s.PanelMessageID,
	}
}

// Store reads entity settings and records panel message ids.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// List returns every configured entity, ordered by id.
	List(ctx context.Context) ([]Settings, error)

	// Get returns one entity or ErrNotFound.
	Get(ctx context.Context, id string) (Settings, error)

	// SetPanelMessageID records the message that displays the entity's panel.
	SetPanelMessageID(ctx context.Context, id, messageID string) error
}

func clone(s Settings) Settings {
	s.AlertRoleIDs = append([]string(nil), s.AlertRoleIDs...)
	s.DMRoleIDs = append([]string(nil), s.DMRoleIDs...)
	return s
}
