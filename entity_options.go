package pulsewatch

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// entityConfig holds mutable state during entity construction.
type entityConfig struct {
	name           string
	pollURLA       string
	pollURLB       string
	sidecarURL     string
	notifyChannel  string
	alertRoles     []string
	dmRoles        []string
	panelMessageID string
}

// EntityOption configures an [Entity] during construction.
//
// Built-in options: [WithName], [WithPollURLs], [WithSidecar],
// [WithNotifyChannel], [WithAlertRoles], [WithDMRoles], [WithPanelMessageID].
type EntityOption func(*entityConfig) error

// WithName sets the display name used in notifications and on the panel.
func WithName(name string) EntityOption {
	return func(cfg *entityConfig) error {
		cfg.name = strings.TrimSpace(name)
		return nil
	}
}

// WithPollURLs sets the server info URL and the player list URL polled on
// every tick. Pass an empty string to skip one of them.
//
// Returns an error if both are empty or either is not an http(s) URL.
func WithPollURLs(info, players string) EntityOption {
	return func(cfg *entityConfig) error {
		if info == "" && players == "" {
			return errors.New("WithPollURLs requires at least one URL")
		}
		for _, raw := range []string{info, players} {
			if raw == "" {
				continue
			}
			if err := validateHTTPURL(raw); err != nil {
				return fmt.Errorf("poll url %q: %w", raw, err)
			}
		}
		cfg.pollURLA, cfg.pollURLB = info, players
		return nil
	}
}

// WithSidecar sets where the sidecar status blob is read: an http(s) URL,
// a file:// URL or a plain filesystem path.
func WithSidecar(location string) EntityOption {
	return func(cfg *entityConfig) error {
		location = strings.TrimSpace(location)
		if location == "" {
			return errors.New("sidecar location cannot be empty")
		}
		if strings.Contains(location, "://") {
			u, err := url.Parse(location)
			if err != nil {
				return fmt.Errorf("invalid sidecar URL: %w", err)
			}
			switch u.Scheme {
			case "http", "https", "file":
			default:
				return fmt.Errorf("sidecar scheme must be http, https or file, got %q", u.Scheme)
			}
		}
		cfg.sidecarURL = location
		return nil
	}
}

// WithNotifyChannel sets the channel receiving notifications and the panel.
func WithNotifyChannel(channelID string) EntityOption {
	return func(cfg *entityConfig) error {
		cfg.notifyChannel = strings.TrimSpace(channelID)
		return nil
	}
}

// WithAlertRoles sets the roles mentioned on offline and crash alerts.
func WithAlertRoles(roleIDs ...string) EntityOption {
	return func(cfg *entityConfig) error {
		cfg.alertRoles = compact(roleIDs)
		return nil
	}
}

// WithDMRoles sets the roles whose members are alerted directly.
func WithDMRoles(roleIDs ...string) EntityOption {
	return func(cfg *entityConfig) error {
		cfg.dmRoles = compact(roleIDs)
		return nil
	}
}

// WithPanelMessageID seeds the id of an existing panel message, so a
// restart edits it instead of posting a new one.
func WithPanelMessageID(id string) EntityOption {
	return func(cfg *entityConfig) error {
		cfg.panelMessageID = strings.TrimSpace(id)
		return nil
	}
}

// compact trims ids and drops blanks and duplicates, keeping order.
func compact(ids []string) []string {
	var out []string
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
