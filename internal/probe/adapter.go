package probe

import (
	"context"
	"errors"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/normalize"
)

var (
	// ErrRetriesExhausted marks a sidecar read that failed on every attempt
	// of the adapter's retry budget. The engine classifies it as a crash.
	ErrRetriesExhausted = errors.New("sidecar read retries exhausted")

	// ErrMalformedSidecar marks a sidecar blob that was read but did not decode.
	ErrMalformedSidecar = errors.New("malformed sidecar status")

	// ErrStaleSidecar marks a sidecar blob whose updated_at is too old.
	ErrStaleSidecar = errors.New("stale sidecar status")

	// ErrNoSidecar is returned when the adapter has no sidecar source configured.
	ErrNoSidecar = errors.New("no sidecar configured")
)

// Observation is the result of one direct poll of a server.
type Observation struct {
	// Status is online, offline or unknown.
	Status normalize.Status `json:"status"`

	Players    int    `json:"players"`
	MaxPlayers int    `json:"max_players"`
	Hostname   string `json:"hostname"`

	// InfoOK is true when the server info endpoint answered and decoded.
	InfoOK bool `json:"info_ok"`

	// PlayersOK is true when the player list endpoint answered and decoded.
	PlayersOK bool `json:"players_ok"`

	CheckedAt time.Time `json:"checked_at"`
}

// SidecarEvent is the event block of a sidecar status blob.
type SidecarEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// SidecarStatus is the structured status written by software running next
// to the game server.
type SidecarStatus struct {
	State     string       `json:"state"`
	Event     SidecarEvent `json:"event"`
	UpdatedAt string       `json:"updated_at"`
}

// ReadStatus describes the outcome of the most recent sidecar read.
type ReadStatus struct {
	// Err is nil after a successful read.
	Err error

	// Attempts is the number of tries the last read used.
	Attempts int

	At time.Time
}

// Reason returns the failure text, or "" after a successful read.
func (r ReadStatus) Reason() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// RetriesExhausted reports whether the last read spent the whole retry budget.
func (r ReadStatus) RetriesExhausted() bool {
	return errors.Is(r.Err, ErrRetriesExhausted)
}

// StatusPoller polls a server directly.
type StatusPoller interface {
	// HasPollProbe reports whether a direct poll is configured at all.
	HasPollProbe() bool

	// PollStatus performs one poll. Failures are folded into the returned
	// Observation (offline or unknown), never returned as errors.
	PollStatus(ctx context.Context) Observation
}

// SidecarReader reads the sidecar status out of band.
type SidecarReader interface {
	// HasSidecar reports whether a sidecar source is configured.
	HasSidecar() bool

	// ReadSidecarStatus reads the current sidecar blob. On failure it
	// returns nil and an error; the same error is kept in LastReadStatus.
	ReadSidecarStatus(ctx context.Context) (*SidecarStatus, error)

	// LastReadStatus describes the most recent read.
	LastReadStatus() ReadStatus

	// IsConnected reports whether the most recent read or poll succeeded.
	IsConnected() bool
}

// Classifier interprets sidecar reads.
type Classifier interface {
	// ShouldAnnounce reports whether st carries an event that has not been
	// announced yet. Repeated identical reads return false.
	ShouldAnnounce(st *SidecarStatus) bool

	// EventTypeOf returns the raw vendor event name carried by st.
	EventTypeOf(st *SidecarStatus) string

	// FormatMessage renders obs as a one-line human status.
	FormatMessage(obs Observation) string
}

// Adapter is everything the engine needs from a probe for one entity.
type Adapter interface {
	StatusPoller
	SidecarReader
	Classifier

	// Close releases connections held by the adapter.
	Close() error
}
