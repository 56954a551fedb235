package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig locates the push subject on a NATS server.
type NATSConfig struct {
	URL     string
	Subject string
	Queue   string
}

// NATSSubscriber feeds payloads published on a NATS subject into a
// [Handler]. Members of the same queue group share the load.
type NATSSubscriber struct {
	cfg     NATSConfig
	handler Handler
	logger  *slog.Logger

	mu  sync.Mutex
	nc  *nats.Conn
	sub *nats.Subscription
}

// NewNATSSubscriber creates a subscriber. It connects on Start.
func NewNATSSubscriber(cfg NATSConfig, handler Handler, logger *slog.Logger) *NATSSubscriber {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &NATSSubscriber{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "push-nats", "subject", cfg.Subject),
	}
}

// Start connects and subscribes. Messages are handled with ctx until Stop.
func (s *NATSSubscriber) Start(ctx context.Context) error {
	nc, err := nats.Connect(s.cfg.URL,
		nats.Name("pulsewatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				s.logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			s.logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	sub, err := nc.QueueSubscribe(s.cfg.Subject, s.cfg.Queue, func(msg *nats.Msg) {
		reply := s.handleMessage(ctx, msg.Data)
		if msg.Reply == "" {
			return
		}
		if err := msg.Respond(reply); err != nil {
			s.logger.Warn("failed to reply to push", "error", err)
		}
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", s.cfg.Subject, err)
	}

	s.mu.Lock()
	s.nc, s.sub = nc, sub
	s.mu.Unlock()

	s.logger.Info("listening for pushes", "queue", s.cfg.Queue)
	return nil
}

// Stop drains the subscription and closes the connection. Safe to call
// more than once.
func (s *NATSSubscriber) Stop() {
	s.mu.Lock()
	nc := s.nc
	s.nc, s.sub = nil, nil
	s.mu.Unlock()

	if nc == nil {
		return
	}
	if err := nc.Drain(); err != nil {
		s.logger.Warn("nats drain failed", "error", err)
		nc.Close()
	}
}

// handleMessage decodes one message and returns the JSON Result.
func (s *NATSSubscriber) handleMessage(ctx context.Context, data []byte) []byte {
	var res Result
	p, err := DecodePayload(bytes.NewReader(data))
	if err != nil {
		s.logger.Info("malformed push message", "error", err)
		res = rejected(ErrCodeInvalidPayload)
	} else {
		res = s.handler.HandlePush(ctx, p)
	}

	out, err := json.Marshal(res)
	if err != nil {
		return []byte(`{"ok":false,"sent":[],"error":"internal_error"}`)
	}
	return out
}
