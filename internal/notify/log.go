package notify

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"sync"
)

// LogSink writes every message to a logger and remembers it, so panels can
// be fetched and edited without a chat platform.
type LogSink struct {
	logger *slog.Logger

	mu       sync.Mutex
	nextID   int
	messages map[string]Message
	directs  int
}

var (
	_ Sink         = (*LogSink)(nil)
	_ DirectSender = (*LogSink)(nil)
)

// NewLogSink creates a LogSink. A nil logger discards output.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LogSink{
		logger:   logger.With("component", "log-sink"),
		messages: make(map[string]Message),
	}
}

// Send implements [Sink].
func (s *LogSink) Send(ctx context.Context, channelID string, msg Outgoing) (Message, error) {
	s.mu.Lock()
	s.nextID++
	m := Message{
		ID:        strconv.Itoa(s.nextID),
		ChannelID: channelID,
		Content:   msg.Content,
		Embed:     msg.Embed,
	}
	s.messages[m.ID] = m
	s.mu.Unlock()

	s.logger.Info("message sent", "channel", channelID, "id", m.ID, "content", msg.Content, "title", embedTitle(msg.Embed))
	return m, nil
}

// FetchMessage implements [Sink].
func (s *LogSink) FetchMessage(ctx context.Context, channelID, messageID string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || m.ChannelID != channelID {
		return Message{}, ErrMessageNotFound
	}
	return m, nil
}

// Edit implements [Sink].
func (s *LogSink) Edit(ctx context.Context, msg Message, embed Embed) (Message, error) {
	s.mu.Lock()
	m, ok := s.messages[msg.ID]
	if !ok {
		s.mu.Unlock()
		return Message{}, ErrMessageNotFound
	}
	m.Embed = &embed
	s.messages[m.ID] = m
	s.mu.Unlock()

	s.logger.Info("message edited", "channel", m.ChannelID, "id", m.ID, "title", embed.Title)
	return m, nil
}

// SendDirect implements [DirectSender].
func (s *LogSink) SendDirect(ctx context.Context, memberID, title, message string) error {
	s.mu.Lock()
	s.directs++
	s.mu.Unlock()
	s.logger.Info("direct alert", "member", memberID, "title", title, "message", message)
	return nil
}

// Messages returns the number of messages sent so far.
func (s *LogSink) Messages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

func embedTitle(e *Embed) string {
	if e == nil {
		return ""
	}
	return e.Title
}
