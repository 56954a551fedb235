package registry

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpalmerr/pulsewatch/internal/cooldown"
	"github.com/jpalmerr/pulsewatch/internal/normalize"
	"github.com/jpalmerr/pulsewatch/internal/notify"
	"github.com/jpalmerr/pulsewatch/internal/probe"
)

// Config is the configuration an entity is tracked under.
type Config struct {
	EntityID string
	Name     string

	PollURLA   string
	PollURLB   string
	SidecarURL string

	NotifyChannel  string
	AlertRoleIDs   []string
	DMRoleIDs      []string
	PanelMessageID string
}

// cacheKey covers every field whose change must rebuild the entity.
func (c Config) cacheKey() string {
	return strings.Join([]string{c.PollURLA, c.PollURLB, c.SidecarURL, c.NotifyChannel}, "|")
}

// Target is where notifications about the entity go.
func (c Config) Target() notify.Target {
	return notify.Target{
		EntityID:     c.EntityID,
		Name:         c.Name,
		Channel:      c.NotifyChannel,
		AlertRoleIDs: c.AlertRoleIDs,
		DMRoleIDs:    c.DMRoleIDs,
	}
}

// PanelFields are the last values shown on an entity's panel.
type PanelFields struct {
	EventType      string
	EventUpdatedAt string
	TxState        string
	Players        int
	MaxPlayers     int
	Hostname       string
	Status         normalize.Status
}

// PanelState is the panel bookkeeping of one entity. Lock it before reading
// or writing any field.
type PanelState struct {
	sync.Mutex

	// Signature is the signature of the last panel write that succeeded.
	Signature string

	MessageID string
	Fields    PanelFields

	// InFlight is set while one renderer is writing the panel. Dirty asks
	// that writer to write once more with the newest Fields when it is done.
	InFlight bool
	Dirty    bool
}

// PushState is the push path's view of one entity. Lock it before reading
// or writing any field.
type PushState struct {
	sync.Mutex

	LastStatus  normalize.Status
	LastEventID string
}

// TrackedEntity is the runtime state of one monitored entity.
type TrackedEntity struct {
	ID      string
	Adapter probe.Adapter

	// Cooldown gates crash and anomaly alerts.
	Cooldown *cooldown.Gate

	Panel PanelState
	Push  PushState

	pollMu sync.Mutex

	// LastStatus is the last status the poll path notified about.
	// Guarded by the poll lock. Empty means no status seen yet.
	LastStatus normalize.Status

	// ConsecutiveSidecarFailures is guarded by the poll lock.
	ConsecutiveSidecarFailures int

	key string
	cfg atomic.Pointer[Config]
}

func newTrackedEntity(cfg Config, adapter probe.Adapter, window time.Duration) *TrackedEntity {
	e := &TrackedEntity{
		ID:       cfg.EntityID,
		Adapter:  adapter,
		Cooldown: cooldown.New(window),
		key:      cfg.cacheKey(),
	}
	e.Panel.MessageID = cfg.PanelMessageID
	e.storeConfig(cfg)
	return e
}

// LockPoll acquires the poll lock.
func (e *TrackedEntity) LockPoll() { e.pollMu.Lock() }

// UnlockPoll releases the poll lock.
func (e *TrackedEntity) UnlockPoll() { e.pollMu.Unlock() }

// Config returns the configuration the entity was last refreshed with.
func (e *TrackedEntity) Config() Config {
	return *e.cfg.Load()
}

// HasPollProbe reports whether the entity has a direct HTTP poll.
func (e *TrackedEntity) HasPollProbe() bool {
	return e.Adapter != nil && e.Adapter.HasPollProbe()
}

// LastCrashAlertAt returns when the last crash or anomaly alert went out.
func (e *TrackedEntity) LastCrashAlertAt() time.Time {
	return e.Cooldown.Last()
}

func (e *TrackedEntity) storeConfig(cfg Config) {
	cfg.AlertRoleIDs = append([]string(nil), cfg.AlertRoleIDs...)
	cfg.DMRoleIDs = append([]string(nil), cfg.DMRoleIDs...)
	e.cfg.Store(&cfg)
}
