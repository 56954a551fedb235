package registry

import (
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/cooldown"
	"github.com/jpalmerr/pulsewatch/internal/probe"
)

var (
	// ErrEntityRequired is returned for a config without an entity id.
	ErrEntityRequired = errors.New("entity id is required")

	// ErrChannelNotConfigured is returned for an entity without a
	// notification channel. Such entities are never tracked.
	ErrChannelNotConfigured = errors.New("notification channel not configured")
)

// AdapterFactory builds the probe adapter for an entity.
type AdapterFactory func(cfg Config) probe.Adapter

// Option configures a [Registry].
type Option func(*Registry)

// WithCooldown sets the crash/anomaly alert window of new entities.
func WithCooldown(d time.Duration) Option {
	return func(r *Registry) {
		r.cooldown = d
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry maps entity ids to their [TrackedEntity].
type Registry struct {
	factory  AdapterFactory
	cooldown time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	entities map[string]*TrackedEntity
}

// New creates an empty registry that builds adapters with factory.
func New(factory AdapterFactory, opts ...Option) *Registry {
	r := &Registry{
		factory:  factory,
		cooldown: cooldown.DefaultWindow,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		entities: make(map[string]*TrackedEntity),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// GetOrCreate returns the entity for cfg, creating it on first use.
//
// When the probe URLs or notification channel differ from the ones the
// entity was built with, the old adapter is closed and the entity is
// replaced with a fresh one; no runtime state survives. Other fields
// (names, roles) are refreshed in place.
//
// An entity without a channel is discarded and ErrChannelNotConfigured
// returned.
func (r *Registry) GetOrCreate(cfg Config) (*TrackedEntity, error) {
	if cfg.EntityID == "" {
		return nil, ErrEntityRequired
	}
	if cfg.NotifyChannel == "" {
		r.Discard(cfg.EntityID)
		return nil, ErrChannelNotConfigured
	}

	key := cfg.cacheKey()

	r.mu.Lock()
	existing, ok := r.entities[cfg.EntityID]
	if ok && existing.key == key {
		existing.storeConfig(cfg)
		r.mu.Unlock()
		return existing, nil
	}
	entity := newTrackedEntity(cfg, r.factory(cfg), r.cooldown)
	r.entities[cfg.EntityID] = entity
	r.mu.Unlock()

	if ok {
		r.logger.Info("entity configuration changed, state reset", "entity", cfg.EntityID)
		r.closeAdapter(existing)
	} else {
		r.logger.Debug("tracking entity", "entity", cfg.EntityID)
	}
	return entity, nil
}

// Get returns the tracked entity for id, if any.
func (r *Registry) Get(id string) (*TrackedEntity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	return e, ok
}

// Discard stops tracking id and closes its adapter. Unknown ids are ignored.
func (r *Registry) Discard(id string) {
	r.mu.Lock()
	e, ok := r.entities[id]
	delete(r.entities, id)
	r.mu.Unlock()

	if ok {
		r.logger.Debug("entity discarded", "entity", id)
		r.closeAdapter(e)
	}
}

// List returns the tracked entity ids in sorted order.
func (r *Registry) List() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Close discards every entity.
func (r *Registry) Close() {
	r.mu.Lock()
	entities := r.entities
	r.entities = make(map[string]*TrackedEntity)
	r.mu.Unlock()

	for _, e := range entities {
		r.closeAdapter(e)
	}
}

func (r *Registry) closeAdapter(e *TrackedEntity) {
	if e.Adapter == nil {
		return
	}
	if err := e.Adapter.Close(); err != nil {
		r.logger.Warn("failed to close probe adapter", "entity", e.ID, "error", err)
	}
}
