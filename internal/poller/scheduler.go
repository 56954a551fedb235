package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsewatch/internal/metrics"
	"github.com/jpalmerr/pulsewatch/internal/normalize"
	"github.com/jpalmerr/pulsewatch/internal/notify"
	"github.com/jpalmerr/pulsewatch/internal/panel"
	"github.com/jpalmerr/pulsewatch/internal/probe"
	"github.com/jpalmerr/pulsewatch/internal/registry"
	"github.com/jpalmerr/pulsewatch/internal/settings"
	"github.com/jpalmerr/pulsewatch/internal/store"
)

// DefaultInterval is the tick interval when none is configured.
const DefaultInterval = 30 * time.Second

// warn-once reasons
const (
	reasonConfigMissing    = "config_missing"
	reasonProbeUnavailable = "probe_unavailable"
)

// Option configures a [Scheduler].
type Option func(*Scheduler)

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides time.Now for cooldown decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSnapshots removes pruned entities from the live status feed.
func WithSnapshots(st store.Store) Option {
	return func(s *Scheduler) {
		s.snapshots = st
	}
}

// Scheduler ticks at a fixed interval and reconciles every entity.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	settings   settings.Store
	registry   *registry.Registry
	dispatcher *notify.Dispatcher
	renderer   *panel.Renderer
	snapshots  store.Store
	interval   time.Duration
	logger     *slog.Logger
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	warnMu sync.Mutex
	warned map[string]string
}

// NewScheduler creates a [Scheduler]. It must be started with
// [Scheduler.Start] and stopped with [Scheduler.Stop].
func NewScheduler(settingsStore settings.Store, reg *registry.Registry, dispatcher *notify.Dispatcher, renderer *panel.Renderer, opts ...Option) *Scheduler {
	s := &Scheduler{
		settings:   settingsStore,
		registry:   reg,
		dispatcher: dispatcher,
		renderer:   renderer,
		interval:   DefaultInterval,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
		warned:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "poller")
	return s
}

// Start runs one tick immediately, then one per interval, in a background
// goroutine.
//
// If ctx is nil, context.Background() is used as the parent context.
// Start is idempotent; subsequent calls after the first are no-ops.
// If Stop was called before Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	tickCtx := s.ctx // capture under lock to avoid race
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		s.Tick(tickCtx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-tickCtx.Done():
				return
			case <-ticker.C:
				s.Tick(tickCtx)
			}
		}
	}()
}

// Stop halts the ticker and waits for the running tick to finish its
// current entity.
//
// Stop is idempotent and safe to call multiple times. Calling Stop before
// Start is a safe no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Tick runs one reconciliation pass over every configured entity.
//
// Cancelling ctx stops the tick between entities; the entity in progress
// always completes.
func (s *Scheduler) Tick(ctx context.Context) {
	all, err := s.settings.List(ctx)
	if err != nil {
		s.logger.Error("failed to list entity settings", "error", err)
		return
	}

	s.prune(all)

	passCtx := context.WithoutCancel(ctx)
	for _, st := range all {
		if ctx.Err() != nil {
			return
		}
		s.safeReconcile(passCtx, st)
	}
}

// ReconcileEntity runs one pass for a single entity. It is exported so the
// pass can be driven directly; Tick calls it behind a panic boundary.
func (s *Scheduler) ReconcileEntity(ctx context.Context, st settings.Settings) error {
	cfg := st.TrackingConfig()

	if cfg.NotifyChannel == "" {
		s.registry.Discard(cfg.EntityID)
		s.warnOnce(cfg.EntityID, reasonConfigMissing, "entity has no notification channel, skipping")
		return nil
	}
	if cfg.PollURLA == "" && cfg.PollURLB == "" && cfg.SidecarURL == "" {
		s.warnOnce(cfg.EntityID, reasonProbeUnavailable, "entity has neither poll URLs nor sidecar, waiting for pushes")
		return nil
	}
	s.clearWarning(cfg.EntityID)

	e, err := s.registry.GetOrCreate(cfg)
	if err != nil {
		return fmt.Errorf("failed to track entity %s: %w", cfg.EntityID, err)
	}

	start := time.Now()
	defer func() { metrics.PollPassSeconds.Observe(time.Since(start).Seconds()) }()

	e.LockPoll()
	defer e.UnlockPoll()

	cfg = e.Config()
	target := cfg.Target()
	var update panel.Update

	if e.HasPollProbe() {
		obs := e.Adapter.PollStatus(ctx)
		update.Observation = &obs
		s.observe(ctx, e, target, obs)
	}

	if e.Adapter.HasSidecar() {
		sidecar, err := e.Adapter.ReadSidecarStatus(ctx)
		if err != nil {
			s.sidecarFailed(ctx, e, target, err)
		} else {
			s.sidecarRead(ctx, e, target, sidecar, &update)
		}
	}

	if _, err := s.renderer.Render(ctx, e, update, false); err != nil {
		s.logger.Warn("panel update failed", "entity", e.ID, "error", err)
	}
	return nil
}

// observe announces a poll transition. Unknown observations carry no
// opinion and leave LastStatus alone.
func (s *Scheduler) observe(ctx context.Context, e *registry.TrackedEntity, target notify.Target, obs probe.Observation) {
	if obs.Status == normalize.StatusUnknown || obs.Status == e.LastStatus {
		return
	}
	kind := notify.KindForStatus(obs.Status)
	if kind == "" {
		return
	}

	s.logger.Info("status transition", "entity", e.ID, "from", e.LastStatus, "to", obs.Status)
	s.dispatcher.Announce(ctx, target, kind, e.Adapter.FormatMessage(obs))
	e.LastStatus = obs.Status
}

func (s *Scheduler) sidecarRead(ctx context.Context, e *registry.TrackedEntity, target notify.Target, st *probe.SidecarStatus, update *panel.Update) {
	e.ConsecutiveSidecarFailures = 0

	eventType := e.Adapter.EventTypeOf(st)
	update.TxState = st.State
	update.EventType = eventType
	update.EventUpdatedAt = st.UpdatedAt

	ev, known := normalize.NormalizeEvent(eventType)
	if !e.HasPollProbe() {
		if known {
			update.Status = normalize.StatusForEvent(ev)
		} else if status, ok := normalize.NormalizeStatus(st.State); ok {
			update.Status = status
		}
	}

	if !e.Adapter.ShouldAnnounce(st) {
		return
	}
	if !known {
		s.logger.Debug("unrecognized sidecar event", "entity", e.ID, "event", eventType)
		return
	}

	kind := notify.KindForEvent(ev)
	s.logger.Info("sidecar event", "entity", e.ID, "event", ev, "raw", eventType)
	s.dispatcher.Announce(ctx, target, kind, fmt.Sprintf("%s reported %s (%s)", displayName(target), ev, eventType))
}

// sidecarFailed counts and classifies a failed read. Failures only matter
// when the sidecar is the entity's sole signal.
func (s *Scheduler) sidecarFailed(ctx context.Context, e *registry.TrackedEntity, target notify.Target, err error) {
	if e.HasPollProbe() {
		s.logger.Debug("sidecar read failed", "entity", e.ID, "error", err)
		return
	}

	e.ConsecutiveSidecarFailures++

	kind := notify.KindAnomaly
	if errors.Is(err, probe.ErrRetriesExhausted) || e.Adapter.LastReadStatus().RetriesExhausted() {
		kind = notify.KindCrashInferred
	}
	metrics.SidecarFailures.WithLabelValues(kind.String()).Inc()

	if !e.Cooldown.Allow(s.now()) {
		s.logger.Debug("sidecar failure within cooldown",
			"entity", e.ID,
			"class", kind,
			"consecutive_failures", e.ConsecutiveSidecarFailures,
			"last_alert", e.LastCrashAlertAt(),
		)
		return
	}

	s.logger.Warn("sidecar failure alert",
		"entity", e.ID,
		"class", kind,
		"consecutive_failures", e.ConsecutiveSidecarFailures,
		"error", err,
	)
	msg := fmt.Sprintf("%s: sidecar status unreadable (%d consecutive failures): %v",
		displayName(target), e.ConsecutiveSidecarFailures, err)
	s.dispatcher.Announce(ctx, target, kind, msg)
}

// prune discards tracked entities that are no longer configured.
func (s *Scheduler) prune(all []settings.Settings) {
	configured := make(map[string]struct{}, len(all))
	for _, st := range all {
		configured[st.ID] = struct{}{}
	}
	for _, id := range s.registry.List() {
		if _, ok := configured[id]; ok {
			continue
		}
		s.logger.Info("entity no longer configured", "entity", id)
		s.registry.Discard(id)
		if s.snapshots != nil {
			s.snapshots.Remove(id)
		}
	}

	s.warnMu.Lock()
	for id := range s.warned {
		if _, ok := configured[id]; !ok {
			delete(s.warned, id)
		}
	}
	s.warnMu.Unlock()
}

// safeReconcile runs ReconcileEntity with panic recovery. A panic is logged
// with a correlation id and the tick moves on.
func (s *Scheduler) safeReconcile(ctx context.Context, st settings.Settings) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("entity pass panic",
				"entity", st.ID,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := s.ReconcileEntity(ctx, st); err != nil {
		s.logger.Error("entity pass failed", "entity", st.ID, "error", err)
	}
}

// warnOnce logs msg the first time id enters reason.
func (s *Scheduler) warnOnce(id, reason, msg string) {
	s.warnMu.Lock()
	prev := s.warned[id]
	s.warned[id] = reason
	s.warnMu.Unlock()

	if prev != reason {
		s.logger.Warn(msg, "entity", id, "reason", reason)
	}
}

func (s *Scheduler) clearWarning(id string) {
	s.warnMu.Lock()
	delete(s.warned, id)
	s.warnMu.Unlock()
}

func displayName(t notify.Target) string {
	if t.Name != "" {
		return t.Name
	}
	return t.EntityID
}
