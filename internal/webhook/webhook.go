// Package webhook implements notify.Sink and notify.DirectSender on top of
// Discord-compatible execute-webhook endpoints.
//
// Every channel and every direct alert recipient is addressed through its
// own webhook URL. Messages are sent with ?wait=true so the created message
// id is returned and panels can later be fetched and edited through
// {webhook}/messages/{id}.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/notify"
)

const (
	defaultTimeout  = 10 * time.Second
	maxResponseBody = 1 << 20
)

// Option configures a [Sink].
type Option func(*Sink)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets the sink logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Sink posts to webhooks.
type Sink struct {
	channels map[string]string
	members  map[string]string
	client   *http.Client
	logger   *slog.Logger
}

var (
	_ notify.Sink         = (*Sink)(nil)
	_ notify.DirectSender = (*Sink)(nil)
)

// New creates a Sink. channels maps channel ids to webhook URLs, members
// maps member ids to the webhook URL of their direct alert channel.
func New(channels, members map[string]string, opts ...Option) *Sink {
	s := &Sink{
		channels: channels,
		members:  members,
		client:   &http.Client{Timeout: defaultTimeout},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "webhook")
	return s
}

type wireFooter struct {
	Text string `json:"text"`
}

type wireEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []notify.EmbedField `json:"fields,omitempty"`
	Footer      *wireFooter         `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

type allowedMentions struct {
	Parse []string `json:"parse"`
	Roles []string `json:"roles,omitempty"`
}

type executeRequest struct {
	Content         string          `json:"content,omitempty"`
	Embeds          []wireEmbed     `json:"embeds,omitempty"`
	AllowedMentions allowedMentions `json:"allowed_mentions"`
}

type editRequest struct {
	Embeds []wireEmbed `json:"embeds"`
}

type wireMessage struct {
	ID        string      `json:"id"`
	ChannelID string      `json:"channel_id"`
	Content   string      `json:"content"`
	Embeds    []wireEmbed `json:"embeds"`
}

// Send implements [notify.Sink].
func (s *Sink) Send(ctx context.Context, channelID string, msg notify.Outgoing) (notify.Message, error) {
	hook, err := s.channelURL(channelID)
	if err != nil {
		return notify.Message{}, err
	}

	body := executeRequest{
		Content:         msg.Content,
		AllowedMentions: allowedMentions{Parse: []string{}, Roles: msg.MentionRoles},
	}
	if msg.Embed != nil {
		body.Embeds = []wireEmbed{toWire(*msg.Embed)}
	}

	var out wireMessage
	if err := s.do(ctx, http.MethodPost, hook, nil, map[string]string{"wait": "true"}, body, &out); err != nil {
		return notify.Message{}, fmt.Errorf("send to channel %s: %w", channelID, err)
	}
	return fromWire(channelID, out), nil
}

// FetchMessage implements [notify.Sink].
func (s *Sink) FetchMessage(ctx context.Context, channelID, messageID string) (notify.Message, error) {
	hook, err := s.channelURL(channelID)
	if err != nil {
		return notify.Message{}, err
	}

	var out wireMessage
	if err := s.do(ctx, http.MethodGet, hook, []string{"messages", messageID}, nil, nil, &out); err != nil {
		return notify.Message{}, err
	}
	return fromWire(channelID, out), nil
}

// Edit implements [notify.Sink].
func (s *Sink) Edit(ctx context.Context, msg notify.Message, embed notify.Embed) (notify.Message, error) {
	hook, err := s.channelURL(msg.ChannelID)
	if err != nil {
		return notify.Message{}, err
	}

	var out wireMessage
	body := editRequest{Embeds: []wireEmbed{toWire(embed)}}
	if err := s.do(ctx, http.MethodPatch, hook, []string{"messages", msg.ID}, nil, body, &out); err != nil {
		return notify.Message{}, fmt.Errorf("edit message %s: %w", msg.ID, err)
	}
	return fromWire(msg.ChannelID, out), nil
}

// SendDirect implements [notify.DirectSender].
func (s *Sink) SendDirect(ctx context.Context, memberID, title, message string) error {
	hook, ok := s.members[memberID]
	if !ok || hook == "" {
		return fmt.Errorf("no direct webhook for member %s", memberID)
	}
	body := executeRequest{
		Embeds:          []wireEmbed{{Title: title, Description: message}},
		AllowedMentions: allowedMentions{Parse: []string{}},
	}
	return s.do(ctx, http.MethodPost, hook, nil, nil, body, nil)
}

func (s *Sink) channelURL(channelID string) (string, error) {
	hook, ok := s.channels[channelID]
	if !ok || hook == "" {
		return "", fmt.Errorf("no webhook configured for channel %s", channelID)
	}
	return hook, nil
}

// do issues one webhook request. A 404 maps to notify.ErrMessageNotFound.
func (s *Sink) do(ctx context.Context, method, hook string, path []string, query map[string]string, body, out any) error {
	u, err := url.Parse(hook)
	if err != nil {
		return fmt.Errorf("invalid webhook url: %w", err)
	}
	if len(path) > 0 {
		u = u.JoinPath(path...)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notify.ErrMessageNotFound
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		s.logger.Debug("webhook error response", "method", method, "status", resp.StatusCode, "body", string(data))
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func toWire(e notify.Embed) wireEmbed {
	w := wireEmbed{
		Title:       e.Title,
		Description: e.Description,
		Color:       e.Color,
		Fields:      e.Fields,
	}
	if e.Footer != "" {
		w.Footer = &wireFooter{Text: e.Footer}
	}
	if !e.Timestamp.IsZero() {
		w.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	return w
}

func fromWire(channelID string, m wireMessage) notify.Message {
	msg := notify.Message{ID: m.ID, ChannelID: channelID, Content: m.Content}
	if len(m.Embeds) > 0 {
		w := m.Embeds[0]
		e := notify.Embed{Title: w.Title, Description: w.Description, Color: w.Color, Fields: w.Fields}
		if w.Footer != nil {
			e.Footer = w.Footer.Text
		}
		if t, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
			e.Timestamp = t
		}
		msg.Embed = &e
	}
	return msg
}
