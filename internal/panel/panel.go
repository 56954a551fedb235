// Package panel maintains the single status message each entity has in its
// notification channel.
//
// Every render merges the freshest values into the entity's last known
// panel fields and computes a signature over them. A write (edit or create)
// only happens when the signature changed or the caller forces it, and the
// stored signature only moves after a write succeeded. At most one write
// per entity is in flight; concurrent renders coalesce into it.
package panel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/metrics"
	"github.com/jpalmerr/pulsewatch/internal/normalize"
	"github.com/jpalmerr/pulsewatch/internal/notify"
	"github.com/jpalmerr/pulsewatch/internal/probe"
	"github.com/jpalmerr/pulsewatch/internal/registry"
	"github.com/jpalmerr/pulsewatch/internal/settings"
	"github.com/jpalmerr/pulsewatch/internal/store"
)

// Update carries whatever one source learned this cycle. Zero values mean
// "not supplied" and keep the previous panel value.
type Update struct {
	Observation *probe.Observation

	EventType      string
	EventUpdatedAt string
	TxState        string

	Status     normalize.Status
	Players    *int
	MaxPlayers *int
	Hostname   string
}

// Signature is the diff key of a panel. Equal fields give equal signatures.
func Signature(f registry.PanelFields) string {
	return strings.Join([]string{
		f.EventType,
		f.EventUpdatedAt,
		f.TxState,
		strconv.Itoa(f.Players),
		strconv.Itoa(f.MaxPlayers),
		f.Hostname,
		string(f.Status),
	}, "\x1f")
}

// Merge overlays u onto prior.
func Merge(prior registry.PanelFields, u Update) registry.PanelFields {
	f := prior
	if obs := u.Observation; obs != nil {
		switch {
		case obs.Status == normalize.StatusOffline:
			f.Status = normalize.StatusOffline
			f.Players = 0
		case obs.InfoOK || obs.PlayersOK:
			f.Status = obs.Status
			f.Players = obs.Players
			if obs.MaxPlayers > 0 {
				f.MaxPlayers = obs.MaxPlayers
			}
			if obs.Hostname != "" {
				f.Hostname = obs.Hostname
			}
		}
	}
	if u.EventType != "" {
		f.EventType = u.EventType
		f.EventUpdatedAt = u.EventUpdatedAt
	}
	if u.TxState != "" {
		f.TxState = u.TxState
	}
	if u.Status != "" {
		f.Status = u.Status
	}
	if u.Players != nil {
		f.Players = *u.Players
	}
	if u.MaxPlayers != nil {
		f.MaxPlayers = *u.MaxPlayers
	}
	if u.Hostname != "" {
		f.Hostname = u.Hostname
	}
	return f
}

// Option configures a [Renderer].
type Option func(*Renderer)

// WithSnapshots publishes every written panel to s.
func WithSnapshots(s store.Store) Option {
	return func(r *Renderer) {
		r.snapshots = s
	}
}

// WithLogger sets the renderer logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock overrides time.Now for panel timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Renderer) {
		if now != nil {
			r.now = now
		}
	}
}

// Renderer writes panels through a notify.Sink.
type Renderer struct {
	sink      notify.Sink
	settings  settings.Store
	snapshots store.Store
	logger    *slog.Logger
	now       func() time.Time
}

// NewRenderer creates a Renderer. New panel message ids are persisted to
// settingsStore when it is not nil.
func NewRenderer(sink notify.Sink, settingsStore settings.Store, opts ...Option) *Renderer {
	r := &Renderer{
		sink:     sink,
		settings: settingsStore,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "panel")
	return r
}

// Render refreshes e's panel with u. It reports whether a write happened.
//
// Without force, an unchanged signature skips the write. Otherwise the
// stored panel message is edited, or a new one is created and its id
// persisted when the old one no longer exists. Any other failure leaves
// the stored signature untouched so the next render retries.
//
// The panel lock is not held during sink I/O. A render arriving while
// another one is writing merges its values, marks the panel dirty and
// returns at once; the writer then writes again with the newest fields.
func (r *Renderer) Render(ctx context.Context, e *registry.TrackedEntity, u Update, force bool) (bool, error) {
	e.Panel.Lock()
	fields := Merge(e.Panel.Fields, u)
	e.Panel.Fields = fields
	sig := Signature(fields)

	if !force && sig == e.Panel.Signature {
		e.Panel.Unlock()
		metrics.PanelWrites.WithLabelValues(metrics.PanelSkipped).Inc()
		return false, nil
	}
	if e.Panel.InFlight {
		e.Panel.Dirty = true
		e.Panel.Unlock()
		metrics.PanelWrites.WithLabelValues(metrics.PanelCoalesced).Inc()
		return false, nil
	}
	e.Panel.InFlight = true

	wrote := false
	for {
		messageID := e.Panel.MessageID
		e.Panel.Unlock()

		cfg := e.Config()
		newID, err := r.write(ctx, e.ID, cfg, messageID, fields)

		e.Panel.Lock()
		if err != nil {
			e.Panel.InFlight, e.Panel.Dirty = false, false
			e.Panel.Unlock()
			return wrote, err
		}
		e.Panel.MessageID = newID
		r.commit(e, cfg, fields, sig)
		wrote = true

		if !e.Panel.Dirty {
			break
		}
		e.Panel.Dirty = false
		fields = e.Panel.Fields
		sig = Signature(fields)
		if sig == e.Panel.Signature {
			break
		}
	}
	e.Panel.InFlight = false
	e.Panel.Unlock()
	return true, nil
}

// write shows fields in the panel message messageID, or in a new message
// when messageID is empty or gone. It returns the id now holding the panel.
func (r *Renderer) write(ctx context.Context, entityID string, cfg registry.Config, messageID string, fields registry.PanelFields) (string, error) {
	embed := r.buildEmbed(cfg, fields)

	if messageID != "" {
		msg, err := r.sink.FetchMessage(ctx, cfg.NotifyChannel, messageID)
		switch {
		case err == nil:
			if _, err := r.sink.Edit(ctx, msg, embed); err != nil {
				metrics.PanelWrites.WithLabelValues(metrics.PanelFailed).Inc()
				return "", fmt.Errorf("failed to edit panel %s: %w", messageID, err)
			}
			metrics.PanelWrites.WithLabelValues(metrics.PanelEdited).Inc()
			return messageID, nil
		case errors.Is(err, notify.ErrMessageNotFound):
			r.logger.Info("panel message gone, creating a new one", "entity", entityID, "message_id", messageID)
		default:
			metrics.PanelWrites.WithLabelValues(metrics.PanelFailed).Inc()
			return "", fmt.Errorf("failed to fetch panel %s: %w", messageID, err)
		}
	}

	msg, err := r.sink.Send(ctx, cfg.NotifyChannel, notify.Outgoing{Embed: &embed})
	if err != nil {
		metrics.PanelWrites.WithLabelValues(metrics.PanelFailed).Inc()
		return "", fmt.Errorf("failed to create panel: %w", err)
	}
	metrics.PanelWrites.WithLabelValues(metrics.PanelCreated).Inc()

	if r.settings != nil {
		if err := r.settings.SetPanelMessageID(ctx, entityID, msg.ID); err != nil {
			r.logger.Warn("failed to persist panel message id", "entity", entityID, "message_id", msg.ID, "error", err)
		}
	}
	return msg.ID, nil
}

// commit runs with the panel lock held, after a successful write.
func (r *Renderer) commit(e *registry.TrackedEntity, cfg registry.Config, f registry.PanelFields, sig string) {
	e.Panel.Signature = sig
	if r.snapshots == nil {
		return
	}
	status := f.Status
	if status == "" {
		status = normalize.StatusUnknown
	}
	r.snapshots.Update(store.EntitySnapshot{
		EntityID:       e.ID,
		Name:           displayName(cfg),
		Status:         status.String(),
		Players:        f.Players,
		MaxPlayers:     f.MaxPlayers,
		Hostname:       f.Hostname,
		EventType:      f.EventType,
		TxState:        f.TxState,
		PanelMessageID: e.Panel.MessageID,
		UpdatedAt:      r.now(),
	})
}

func (r *Renderer) buildEmbed(cfg registry.Config, f registry.PanelFields) notify.Embed {
	status := f.Status
	if status == "" {
		status = normalize.StatusUnknown
	}

	players := strconv.Itoa(f.Players)
	if f.MaxPlayers > 0 {
		players += "/" + strconv.Itoa(f.MaxPlayers)
	}

	fields := []notify.EmbedField{
		{Name: "Status", Value: statusEmoji(status) + " " + status.String(), Inline: true},
		{Name: "Players", Value: players, Inline: true},
	}
	if f.Hostname != "" {
		fields = append(fields, notify.EmbedField{Name: "Server", Value: f.Hostname})
	}
	if f.EventType != "" {
		value := f.EventType
		if f.EventUpdatedAt != "" {
			value += " (" + f.EventUpdatedAt + ")"
		}
		fields = append(fields, notify.EmbedField{Name: "Last event", Value: value})
	}
	if f.TxState != "" {
		fields = append(fields, notify.EmbedField{Name: "Sidecar state", Value: f.TxState, Inline: true})
	}

	return notify.Embed{
		Title:     displayName(cfg),
		Color:     statusColor(status),
		Fields:    fields,
		Footer:    "pulsewatch",
		Timestamp: r.now(),
	}
}

func displayName(cfg registry.Config) string {
	if cfg.Name != "" {
		return cfg.Name
	}
	return cfg.EntityID
}

func statusEmoji(st normalize.Status) string {
	switch st {
	case normalize.StatusOnline:
		return "🟢"
	case normalize.StatusOffline:
		return "🔴"
	case normalize.StatusStarting, normalize.StatusRestarting:
		return "🟡"
	case normalize.StatusStopping:
		return "🟠"
	default:
		return "⚪"
	}
}

func statusColor(st normalize.Status) int {
	switch st {
	case normalize.StatusOnline:
		return 0x2ecc71
	case normalize.StatusOffline:
		return 0xe74c3c
	case normalize.StatusStarting, normalize.StatusRestarting:
		return 0xf1c40f
	case normalize.StatusStopping:
		return 0xe67e22
	default:
		return 0x95a5a6
	}
}
