package pulsewatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/cooldown"
	"github.com/jpalmerr/pulsewatch/internal/notify"
	"github.com/jpalmerr/pulsewatch/internal/panel"
	"github.com/jpalmerr/pulsewatch/internal/poller"
	"github.com/jpalmerr/pulsewatch/internal/probe"
	"github.com/jpalmerr/pulsewatch/internal/push"
	"github.com/jpalmerr/pulsewatch/internal/registry"
	"github.com/jpalmerr/pulsewatch/internal/server"
	"github.com/jpalmerr/pulsewatch/internal/settings"
	"github.com/jpalmerr/pulsewatch/internal/store"
	"github.com/jpalmerr/pulsewatch/internal/webhook"
)

const (
	defaultPollInterval  = 30 * time.Second
	defaultPort          = 8080
	defaultDMConcurrency = 5
)

// Engine is the main orchestrator: it polls entities on a ticker, accepts
// pushes over HTTP and NATS, and keeps every entity's notifications and
// panel in line with what it observes.
//
// The typical lifecycle is:
//
//	eng, err := pulsewatch.New(pulsewatch.WithEntity(e))
//	if err != nil {
//	    slog.Error("failed to create engine", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	eng.Start(ctx) // blocks until context cancelled
type Engine struct {
	entities          []Entity
	pollInterval      time.Duration
	port              int
	crashCooldown     time.Duration
	dmConcurrency     int
	logger            *slog.Logger
	pushToken         string
	nats              *NATSConfig
	probe             ProbeSettings
	webhookChannels   map[string]string
	webhookMembers    map[string]string
	roles             map[string][]string
	postgresDSN       string
	snapshotCallbacks []func(Snapshot)
}

// New creates an [Engine] with the given options.
//
// At least one entity is required unless settings live in PostgreSQL
// ([WithPostgres]), where previously stored entities are used. Entity ids
// must be unique.
//
// Defaults:
//   - Poll interval: 30 seconds
//   - Port: 8080
//   - Crash cooldown: 10 minutes
//   - Direct alert concurrency: 5
func New(opts ...Option) (*Engine, error) {
	cfg := &engineConfig{
		pollInterval:  defaultPollInterval,
		port:          defaultPort,
		crashCooldown: cooldown.DefaultWindow,
		dmConcurrency: defaultDMConcurrency,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if len(cfg.entities) == 0 && cfg.postgresDSN == "" {
		return nil, errors.New("at least one entity is required")
	}

	seen := make(map[string]bool, len(cfg.entities))
	for _, e := range cfg.entities {
		if seen[e.id] {
			return nil, fmt.Errorf("duplicate entity id: %q", e.id)
		}
		seen[e.id] = true
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		entities:          cfg.entities,
		pollInterval:      cfg.pollInterval,
		port:              cfg.port,
		crashCooldown:     cfg.crashCooldown,
		dmConcurrency:     cfg.dmConcurrency,
		logger:            logger,
		pushToken:         cfg.pushToken,
		nats:              cfg.nats,
		probe:             cfg.probe,
		webhookChannels:   cfg.webhookChannels,
		webhookMembers:    cfg.webhookMembers,
		roles:             cfg.roles,
		postgresDSN:       cfg.postgresDSN,
		snapshotCallbacks: cfg.snapshotCallbacks,
	}, nil
}

// Start runs the engine until ctx is cancelled.
//
// Every entity is reconciled immediately, then on each tick. The HTTP server
// serves the push API, /api/entities, /api/sse and /metrics on the
// configured port. On cancellation the ticker stops, the NATS subscription
// drains and every probe adapter is closed.
//
// Returns nil on graceful shutdown, or an error if a dependency (settings
// database, HTTP listener, NATS) cannot be reached at startup.
func (e *Engine) Start(ctx context.Context) error {
	if ctx.Err() != nil {
		return nil
	}

	e.logger.Info("pulsewatch starting",
		"entity_count", len(e.entities),
		"poll_interval", e.pollInterval.String(),
		"port", e.port,
	)

	settingsStore, closeSettings, err := e.openSettings(ctx)
	if err != nil {
		return err
	}
	defer closeSettings()

	snapshots := store.NewMemoryStore()

	client := probe.NewClient()
	defer client.Close()

	reg := registry.New(e.adapterFactory(client),
		registry.WithCooldown(e.crashCooldown),
		registry.WithLogger(e.logger),
	)
	defer reg.Close()

	sink, direct := e.sinks()
	dispatcher := notify.NewDispatcher(sink,
		notify.WithDirectory(notify.StaticDirectory(e.roles)),
		notify.WithDirectSender(direct),
		notify.WithDMConcurrency(e.dmConcurrency),
		notify.WithLogger(e.logger),
	)
	renderer := panel.NewRenderer(sink, settingsStore,
		panel.WithSnapshots(snapshots),
		panel.WithLogger(e.logger),
	)
	ingestor := push.NewIngestor(settingsStore, reg, dispatcher, renderer, e.logger)
	scheduler := poller.NewScheduler(settingsStore, reg, dispatcher, renderer,
		poller.WithInterval(e.pollInterval),
		poller.WithLogger(e.logger),
		poller.WithSnapshots(snapshots),
	)

	if len(e.snapshotCallbacks) > 0 {
		stopCallbacks := e.runCallbacks(snapshots)
		defer stopCallbacks()
	}

	// cancelled on every return, startup failures below included
	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()

	httpServer := server.NewServer(snapshots, ingestor, e.port, e.logger, server.WithPushToken(e.pushToken))
	if err := httpServer.Start(serverCtx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	defer func() {
		stopServer()
		<-httpServer.Done()
	}()

	if e.nats != nil {
		sub := push.NewNATSSubscriber(push.NATSConfig{
			URL:     e.nats.URL,
			Subject: e.nats.Subject,
			Queue:   e.nats.Queue,
		}, ingestor, e.logger)
		if err := sub.Start(ctx); err != nil {
			return fmt.Errorf("failed to start NATS subscriber: %w", err)
		}
		defer sub.Stop()
	}

	scheduler.Start(ctx)
	defer scheduler.Stop()

	<-ctx.Done()
	e.logger.Info("pulsewatch stopping")
	return nil
}

// openSettings returns the settings store and a function releasing it.
func (e *Engine) openSettings(ctx context.Context) (settings.Store, func(), error) {
	seed := make([]settings.Settings, len(e.entities))
	for i, ent := range e.entities {
		seed[i] = ent.settings()
	}

	if e.postgresDSN == "" {
		return settings.NewMemoryStore(seed...), func() {}, nil
	}

	pg, err := settings.OpenPostgres(ctx, e.postgresDSN, e.logger)
	if err != nil {
		return nil, nil, err
	}
	if len(seed) > 0 {
		if err := pg.Sync(ctx, seed); err != nil {
			pg.Close()
			return nil, nil, err
		}
	}
	return pg, pg.Close, nil
}

// adapterFactory builds a probe per entity, sharing one HTTP client.
func (e *Engine) adapterFactory(client *probe.Client) registry.AdapterFactory {
	return func(cfg registry.Config) probe.Adapter {
		return probe.New(probe.Config{
			Name:              cfg.Name,
			PollURLA:          cfg.PollURLA,
			PollURLB:          cfg.PollURLB,
			SidecarURL:        cfg.SidecarURL,
			Timeout:           e.probe.Timeout,
			SidecarRetries:    e.probe.SidecarRetries,
			SidecarRetryDelay: e.probe.SidecarRetryDelay,
			StaleAfter:        e.probe.StaleAfter,
		}, probe.WithClient(client))
	}
}

// sinks returns the channel sink and the direct alert sender.
func (e *Engine) sinks() (notify.Sink, notify.DirectSender) {
	if len(e.webhookChannels) > 0 {
		s := webhook.New(e.webhookChannels, e.webhookMembers, webhook.WithLogger(e.logger))
		return s, s
	}
	s := notify.NewLogSink(e.logger)
	return s, s
}

// runCallbacks feeds snapshots to the registered callbacks until the
// returned function is called.
func (e *Engine) runCallbacks(snapshots store.Store) func() {
	ch := snapshots.Subscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for snap := range ch {
			pub := snapshotFromStore(snap)
			for _, cb := range e.snapshotCallbacks {
				invokeCallbackSafe(cb, pub, e.logger)
			}
		}
	}()

	return func() {
		snapshots.Unsubscribe(ch)
		wg.Wait()
	}
}

// Entities returns a copy of the configured entities.
func (e *Engine) Entities() []Entity {
	cp := make([]Entity, len(e.entities))
	copy(cp, e.entities)
	return cp
}

// Port returns the configured HTTP port.
func (e *Engine) Port() int {
	return e.port
}

// PollInterval returns the configured interval between ticks.
func (e *Engine) PollInterval() time.Duration {
	return e.pollInterval
}

// CrashCooldown returns the configured crash alert cooldown.
func (e *Engine) CrashCooldown() time.Duration {
	return e.crashCooldown
}

// invokeCallbackSafe calls a snapshot callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Snapshot), snap Snapshot, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("snapshot callback panicked",
				"panic", r,
				"entity", snap.EntityID,
			)
		}
	}()
	cb(snap)
}
