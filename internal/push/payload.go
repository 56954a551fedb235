package push

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// maxPayloadSize caps a decoded push body.
const maxPayloadSize = 64 << 10

// Timestamp is a push updated_at value. It accepts a JSON string or number
// and keeps its textual form.
type Timestamp string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || string(data) == "null":
		*t = ""
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*t = Timestamp(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("updated_at: %w", err)
		}
		*t = Timestamp(n.String())
	}
	return nil
}

// Payload is the body of a push, as sent by a helper running next to the
// game server.
type Payload struct {
	EntityID string `json:"entity_id"`

	// Event is a vendor lifecycle event name. TxAdminEvent is accepted as
	// an alias and used when Event is empty.
	Event        string `json:"event,omitempty" validate:"max=128"`
	TxAdminEvent string `json:"txadmin_event,omitempty" validate:"max=128"`

	// EventID makes event notifications idempotent across retries.
	EventID string `json:"event_id,omitempty" validate:"max=128"`

	Status     string    `json:"status,omitempty" validate:"max=64"`
	Players    *int      `json:"players,omitempty" validate:"omitempty,min=0,max=100000"`
	MaxPlayers *int      `json:"max_players,omitempty" validate:"omitempty,min=0,max=100000"`
	Hostname   string    `json:"hostname,omitempty" validate:"max=256"`
	UpdatedAt  Timestamp `json:"updated_at,omitempty" validate:"max=64"`
}

// RawEvent returns the event name carried by p, if any.
func (p Payload) RawEvent() string {
	if e := strings.TrimSpace(p.Event); e != "" {
		return e
	}
	return strings.TrimSpace(p.TxAdminEvent)
}

// DecodePayload reads one JSON payload from r. Unknown fields are ignored.
func DecodePayload(r io.Reader) (Payload, error) {
	var p Payload
	dec := json.NewDecoder(io.LimitReader(r, maxPayloadSize))
	if err := dec.Decode(&p); err != nil {
		return Payload{}, fmt.Errorf("invalid push payload: %w", err)
	}
	return p, nil
}

// Result is the answer to a push.
type Result struct {
	OK bool `json:"ok"`

	// Sent lists the notification kinds dispatched for this push.
	Sent []string `json:"sent"`

	Error string `json:"error,omitempty"`
}

// Error codes returned in Result.Error.
const (
	ErrCodeEntityRequired       = "entity_required"
	ErrCodeChannelNotConfigured = "channel_not_configured"
	ErrCodeInvalidPayload       = "invalid_payload"
	ErrCodeInternal             = "internal_error"
)

func rejected(code string) Result {
	return Result{OK: false, Sent: []string{}, Error: code}
}
