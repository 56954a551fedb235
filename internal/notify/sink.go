package notify

import (
	"context"
	"errors"
	"time"
)

// ErrMessageNotFound is returned by [Sink.FetchMessage] when the message no
// longer exists.
var ErrMessageNotFound = errors.New("message not found")

// EmbedField is one name/value row of an [Embed].
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Embed is the rich part of a message.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      string       `json:"-"`
	Timestamp   time.Time    `json:"-"`
}

// Outgoing is a message to send.
type Outgoing struct {
	Content string
	Embed   *Embed

	// MentionRoles lists the role ids the message may ping. Any other
	// mention in Content is suppressed.
	MentionRoles []string
}

// Message is a message that exists on the chat platform.
type Message struct {
	ID        string
	ChannelID string
	Content   string
	Embed     *Embed
}

// Sink is the chat platform as seen by pulsewatch.
type Sink interface {
	// Send posts a message to a channel.
	Send(ctx context.Context, channelID string, msg Outgoing) (Message, error)

	// FetchMessage returns a previously sent message, or ErrMessageNotFound.
	FetchMessage(ctx context.Context, channelID, messageID string) (Message, error)

	// Edit replaces the embed of an existing message.
	Edit(ctx context.Context, msg Message, embed Embed) (Message, error)
}

// Directory resolves roles to their members.
type Directory interface {
	Members(ctx context.Context, roleID string) ([]string, error)
}

// DirectSender delivers a private alert to one member.
type DirectSender interface {
	SendDirect(ctx context.Context, memberID, title, message string) error
}

// StaticDirectory is a [Directory] backed by a fixed role → members map.
type StaticDirectory map[string][]string

// Members implements [Directory]. Unknown roles have no members.
func (d StaticDirectory) Members(ctx context.Context, roleID string) ([]string, error) {
	return append([]string(nil), d[roleID]...), nil
}
