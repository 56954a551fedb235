package pulsewatch

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/jpalmerr/pulsewatch/internal/settings"
)

// Entity is a monitored game server.
//
// Entity is immutable after creation via [NewEntity]. Getters return copies
// of slices so the entity cannot be modified after construction.
type Entity struct {
	id             string
	name           string
	pollURLA       string
	pollURLB       string
	sidecarURL     string
	notifyChannel  string
	alertRoles     []string
	dmRoles        []string
	panelMessageID string
}

// ID returns the entity's stable identifier.
func (e Entity) ID() string {
	return e.id
}

// Name returns the display name. Defaults to the id.
func (e Entity) Name() string {
	return e.name
}

// PollURLs returns the server info and player list URLs. Either may be empty.
func (e Entity) PollURLs() (info, players string) {
	return e.pollURLA, e.pollURLB
}

// SidecarURL returns where the sidecar status is read from, if anywhere.
func (e Entity) SidecarURL() string {
	return e.sidecarURL
}

// NotifyChannel returns the channel that receives notifications and the
// panel. An entity without one is skipped by the scheduler.
func (e Entity) NotifyChannel() string {
	return e.notifyChannel
}

// AlertRoles returns a copy of the roles mentioned on escalated alerts.
func (e Entity) AlertRoles() []string {
	return copyStrings(e.alertRoles)
}

// DMRoles returns a copy of the roles whose members get direct alerts.
func (e Entity) DMRoles() []string {
	return copyStrings(e.dmRoles)
}

// PanelMessageID returns the seeded panel message id.
func (e Entity) PanelMessageID() string {
	return e.panelMessageID
}

// NewEntity creates an [Entity] with the given id and options.
//
// Poll URLs must be http or https. The sidecar may also be a file:// URL or
// a plain path. An entity with no probe at all is valid: it is driven by
// pushes only.
//
// Example:
//
//	e, err := pulsewatch.NewEntity("main",
//	    pulsewatch.WithName("Main City"),
//	    pulsewatch.WithPollURLs("http://203.0.113.5:30120/dynamic.json", "http://203.0.113.5:30120/players.json"),
//	    pulsewatch.WithNotifyChannel("1200000000000000001"),
//	)
func NewEntity(id string, opts ...EntityOption) (Entity, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Entity{}, errors.New("entity id cannot be empty")
	}

	cfg := &entityConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Entity{}, fmt.Errorf("entity %s: %w", id, err)
		}
	}

	name := cfg.name
	if name == "" {
		name = id
	}

	return Entity{
		id:             id,
		name:           name,
		pollURLA:       cfg.pollURLA,
		pollURLB:       cfg.pollURLB,
		sidecarURL:     cfg.sidecarURL,
		notifyChannel:  cfg.notifyChannel,
		alertRoles:     cfg.alertRoles,
		dmRoles:        cfg.dmRoles,
		panelMessageID: cfg.panelMessageID,
	}, nil
}

func (e Entity) settings() settings.Settings {
	return settings.Settings{
		ID:              e.id,
		Name:            e.name,
		PollURLA:        e.pollURLA,
		PollURLB:        e.pollURLB,
		SidecarURL:      e.sidecarURL,
		NotifyChannelID: e.notifyChannel,
		AlertRoleIDs:    copyStrings(e.alertRoles),
		DMRoleIDs:       copyStrings(e.dmRoles),
		PanelMessageID:  e.panelMessageID,
	}
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL must have a host")
	}
	return nil
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}
