package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/pulsewatch/internal/metrics"
)

// DefaultDMConcurrency bounds concurrent direct alerts.
const DefaultDMConcurrency = 5

// Target is where notifications about one entity go.
type Target struct {
	EntityID     string
	Name         string
	Channel      string
	AlertRoleIDs []string
	DMRoleIDs    []string
}

// Option configures a [Dispatcher].
type Option func(*Dispatcher)

// WithDirectory sets the role resolver used for direct alerts.
func WithDirectory(d Directory) Option {
	return func(disp *Dispatcher) {
		disp.directory = d
	}
}

// WithDirectSender sets the transport for direct alerts. Without one,
// direct alerts are skipped.
func WithDirectSender(s DirectSender) Option {
	return func(disp *Dispatcher) {
		disp.direct = s
	}
}

// WithDMConcurrency sets how many direct alerts may be in flight at once.
func WithDMConcurrency(n int) Option {
	return func(disp *Dispatcher) {
		if n > 0 {
			disp.dmConcurrency = n
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(disp *Dispatcher) {
		if logger != nil {
			disp.logger = logger
		}
	}
}

// WithClock overrides time.Now for embed timestamps.
func WithClock(now func() time.Time) Option {
	return func(disp *Dispatcher) {
		if now != nil {
			disp.now = now
		}
	}
}

// Dispatcher sends channel notifications and direct alerts.
type Dispatcher struct {
	sink          Sink
	directory     Directory
	direct        DirectSender
	dmConcurrency int
	logger        *slog.Logger
	now           func() time.Time
}

// NewDispatcher creates a Dispatcher that posts to sink.
func NewDispatcher(sink Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sink:          sink,
		directory:     StaticDirectory(nil),
		dmConcurrency: DefaultDMConcurrency,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "dispatcher")
	return d
}

// Sink returns the sink the dispatcher posts to.
func (d *Dispatcher) Sink() Sink {
	return d.sink
}

// Notify posts message to channel. mentionRoles are pinged in the message
// content. Failures are logged and counted.
func (d *Dispatcher) Notify(ctx context.Context, channel string, kind Kind, message string, mentionRoles []string) {
	out := Outgoing{
		Content:      mentionContent(mentionRoles),
		MentionRoles: mentionRoles,
		Embed: &Embed{
			Title:       kind.Title(),
			Description: message,
			Color:       kind.Color(),
			Timestamp:   d.now(),
		},
	}

	err := d.safely("notify", func() error {
		_, err := d.sink.Send(ctx, channel, out)
		return err
	})
	if err != nil {
		metrics.Notifications.WithLabelValues(kind.String(), metrics.ResultFailed).Inc()
		d.logger.Warn("notification delivery failed", "channel", channel, "kind", kind, "error", err)
		return
	}
	metrics.Notifications.WithLabelValues(kind.String(), metrics.ResultSent).Inc()
	d.logger.Debug("notification sent", "channel", channel, "kind", kind)
}

// AlertRoles sends a direct alert to every member of roleIDs, each member
// once, with at most the configured number of sends in flight. A failed
// send does not stop the others. It returns how many alerts were delivered.
func (d *Dispatcher) AlertRoles(ctx context.Context, roleIDs []string, title, message string) int {
	if d.direct == nil || len(roleIDs) == 0 {
		return 0
	}

	members := d.resolve(ctx, roleIDs)
	if len(members) == 0 {
		return 0
	}

	results := make([]bool, len(members))
	var g errgroup.Group
	g.SetLimit(d.dmConcurrency)
	for i, member := range members {
		i, member := i, member
		g.Go(func() error {
			err := d.safely("direct alert", func() error {
				return d.direct.SendDirect(ctx, member, title, message)
			})
			if err != nil {
				metrics.DirectAlerts.WithLabelValues(metrics.ResultFailed).Inc()
				d.logger.Info("direct alert not delivered", "member", member, "error", err)
				return nil
			}
			metrics.DirectAlerts.WithLabelValues(metrics.ResultSent).Inc()
			results[i] = true
			return nil
		})
	}
	_ = g.Wait()

	delivered := 0
	for _, ok := range results {
		if ok {
			delivered++
		}
	}
	return delivered
}

// Announce notifies target's channel about kind and, for escalating kinds,
// pings the alert roles and direct-alerts the DM roles.
func (d *Dispatcher) Announce(ctx context.Context, target Target, kind Kind, message string) {
	var mentions []string
	if kind.Escalates() {
		mentions = target.AlertRoleIDs
	}
	d.Notify(ctx, target.Channel, kind, message, mentions)

	if !kind.Escalates() || len(target.DMRoleIDs) == 0 {
		return
	}
	name := target.Name
	if name == "" {
		name = target.EntityID
	}
	d.AlertRoles(ctx, target.DMRoleIDs, fmt.Sprintf("%s: %s", name, kind.Title()), message)
}

// resolve expands roles into a de-duplicated member list.
func (d *Dispatcher) resolve(ctx context.Context, roleIDs []string) []string {
	seen := make(map[string]struct{})
	var members []string
	for _, role := range roleIDs {
		ids, err := d.directory.Members(ctx, role)
		if err != nil {
			d.logger.Warn("failed to resolve role members", "role", role, "error", err)
			continue
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			members = append(members, id)
		}
	}
	return members
}

// safely runs fn, converting a panic into an error carrying a correlation id.
func (d *Dispatcher) safely(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			d.logger.Error(op+" panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("%s panic (correlation_id: %s)", op, correlationID)
		}
	}()
	return fn()
}

func mentionContent(roles []string) string {
	if len(roles) == 0 {
		return ""
	}
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = "<@&" + r + ">"
	}
	return strings.Join(parts, " ")
}
