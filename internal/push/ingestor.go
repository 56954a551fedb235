// Package push ingests status and event payloads pushed by helpers that run
// next to game servers which cannot be polled.
//
// Pushes are reconciled under the entity's push lock, independently of the
// poll path. An event id seen twice in a row is announced once.
package push

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jpalmerr/pulsewatch/internal/metrics"
	"github.com/jpalmerr/pulsewatch/internal/normalize"
	"github.com/jpalmerr/pulsewatch/internal/notify"
	"github.com/jpalmerr/pulsewatch/internal/panel"
	"github.com/jpalmerr/pulsewatch/internal/registry"
	"github.com/jpalmerr/pulsewatch/internal/settings"
)

// Handler processes a push.
type Handler interface {
	HandlePush(ctx context.Context, p Payload) Result
}

// Ingestor is the push path of the engine.
type Ingestor struct {
	settings   settings.Store
	registry   *registry.Registry
	dispatcher *notify.Dispatcher
	renderer   *panel.Renderer
	validate   *validator.Validate
	logger     *slog.Logger
}

var _ Handler = (*Ingestor)(nil)

// NewIngestor creates an Ingestor. A nil logger discards output.
func NewIngestor(settingsStore settings.Store, reg *registry.Registry, dispatcher *notify.Dispatcher, renderer *panel.Renderer, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ingestor{
		settings:   settingsStore,
		registry:   reg,
		dispatcher: dispatcher,
		renderer:   renderer,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		logger:     logger.With("component", "push"),
	}
}

// HandlePush reconciles one payload and reports the notification kinds it
// dispatched. Rejected payloads mutate no state.
func (i *Ingestor) HandlePush(ctx context.Context, p Payload) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			i.logger.Error("push panic",
				"entity", p.EntityID,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			res = rejected(ErrCodeInternal)
		}
		if res.OK {
			metrics.PushRequests.WithLabelValues(metrics.PushOK).Inc()
		} else {
			metrics.PushRequests.WithLabelValues(metrics.PushRejected).Inc()
		}
	}()

	p.EntityID = strings.TrimSpace(p.EntityID)
	if p.EntityID == "" {
		return rejected(ErrCodeEntityRequired)
	}
	if err := i.validate.Struct(p); err != nil {
		i.logger.Info("push rejected", "entity", p.EntityID, "error", err)
		return rejected(ErrCodeInvalidPayload)
	}

	st, err := i.settings.Get(ctx, p.EntityID)
	switch {
	case errors.Is(err, settings.ErrNotFound):
		return rejected(ErrCodeChannelNotConfigured)
	case err != nil:
		i.logger.Error("failed to load entity settings", "entity", p.EntityID, "error", err)
		return rejected(ErrCodeInternal)
	case st.NotifyChannelID == "":
		return rejected(ErrCodeChannelNotConfigured)
	}

	e, err := i.registry.GetOrCreate(st.TrackingConfig())
	if err != nil {
		if errors.Is(err, registry.ErrChannelNotConfigured) {
			return rejected(ErrCodeChannelNotConfigured)
		}
		return rejected(ErrCodeInternal)
	}

	return i.reconcile(ctx, e, p)
}

func (i *Ingestor) reconcile(ctx context.Context, e *registry.TrackedEntity, p Payload) Result {
	e.Push.Lock()
	defer e.Push.Unlock()

	target := e.Config().Target()
	name := target.Name
	if name == "" {
		name = target.EntityID
	}

	sent := []string{}
	update := panel.Update{
		Players:    p.Players,
		MaxPlayers: p.MaxPlayers,
		Hostname:   p.Hostname,
	}

	eventSent := false
	if raw := p.RawEvent(); raw != "" {
		ev, known := normalize.NormalizeEvent(raw)
		update.EventType = raw
		update.EventUpdatedAt = string(p.UpdatedAt)
		if known {
			update.Status = normalize.StatusForEvent(ev)
		}

		switch {
		case p.EventID != "" && p.EventID == e.Push.LastEventID:
			i.logger.Debug("duplicate push event", "entity", e.ID, "event_id", p.EventID)
		case !known:
			i.logger.Debug("unrecognized push event", "entity", e.ID, "event", raw)
		default:
			kind := notify.KindForEvent(ev)
			i.dispatcher.Announce(ctx, target, kind, fmt.Sprintf("%s reported %s (%s)", name, ev, raw))
			sent = append(sent, kind.String())
			e.Push.LastStatus = normalize.StatusForEvent(ev)
			if p.EventID != "" {
				e.Push.LastEventID = p.EventID
			}
			eventSent = true
		}
	}

	if raw := strings.TrimSpace(p.Status); raw != "" {
		status, ok := normalize.NormalizeStatus(raw)
		switch {
		case !ok || status == normalize.StatusUnknown:
			i.logger.Debug("push status carries no opinion", "entity", e.ID, "status", raw)
		default:
			if update.Status == "" {
				update.Status = status
			}
			if !eventSent && status != e.Push.LastStatus {
				kind := notify.KindForStatus(status)
				i.dispatcher.Announce(ctx, target, kind, fmt.Sprintf("%s is %s", name, status))
				sent = append(sent, kind.String())
				e.Push.LastStatus = status
			}
		}
	}

	if _, err := i.renderer.Render(ctx, e, update, true); err != nil {
		i.logger.Warn("panel update failed", "entity", e.ID, "error", err)
	}

	i.logger.Debug("push processed", "entity", e.ID, "sent", sent)
	return Result{OK: true, Sent: sent}
}
