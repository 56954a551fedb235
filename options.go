package pulsewatch

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

// engineConfig holds mutable state during Engine construction.
type engineConfig struct {
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

// NATSConfig locates the NATS subject pushes are also accepted on.
type NATSConfig struct {
	URL     string
	Subject string

	// Queue is the queue group shared by every pulsewatch instance.
	Queue string
}

// ProbeSettings tunes the built-in HTTP and sidecar probe.
type ProbeSettings struct {
	// Timeout bounds each HTTP request. Defaults to 5s.
	Timeout time.Duration

	// SidecarRetries is the attempt budget of one sidecar read. Defaults to 3.
	SidecarRetries int

	// SidecarRetryDelay is the pause between attempts. Defaults to 500ms.
	SidecarRetryDelay time.Duration

	// StaleAfter flags sidecar blobs whose updated_at is older. Zero disables it.
	StaleAfter time.Duration
}

// Option configures an [Engine] during construction.
//
// Options return an error if validation fails.
type Option func(*engineConfig) error

// WithEntity adds one monitored [Entity].
func WithEntity(e Entity) Option {
	return func(cfg *engineConfig) error {
		cfg.entities = append(cfg.entities, e)
		return nil
	}
}

// WithEntities adds several monitored entities.
func WithEntities(entities ...Entity) Option {
	return func(cfg *engineConfig) error {
		cfg.entities = append(cfg.entities, entities...)
		return nil
	}
}

// WithPollInterval sets the time between scheduler ticks. Defaults to 30s.
//
// Returns an error if the interval is shorter than one second.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d < time.Second {
			return errors.New("poll interval must be at least 1s")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithPort sets the HTTP port of the push API and status feed. Defaults to 8080.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *engineConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithCrashCooldown sets the minimum time between two crash or anomaly
// alerts for one entity. Defaults to 10 minutes.
func WithCrashCooldown(d time.Duration) Option {
	return func(cfg *engineConfig) error {
		if d <= 0 {
			return errors.New("crash cooldown must be positive")
		}
		cfg.crashCooldown = d
		return nil
	}
}

// WithDMConcurrency caps concurrent direct alert deliveries. Defaults to 5.
func WithDMConcurrency(n int) Option {
	return func(cfg *engineConfig) error {
		if n <= 0 {
			return errors.New("dm concurrency must be positive")
		}
		cfg.dmConcurrency = n
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *engineConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithPushToken requires a bearer token on POST /api/push.
func WithPushToken(token string) Option {
	return func(cfg *engineConfig) error {
		cfg.pushToken = strings.TrimSpace(token)
		return nil
	}
}

// WithNATS also accepts pushes published on a NATS subject.
func WithNATS(nc NATSConfig) Option {
	return func(cfg *engineConfig) error {
		if nc.URL == "" || nc.Subject == "" {
			return errors.New("nats url and subject are required")
		}
		cfg.nats = &nc
		return nil
	}
}

// WithProbeSettings tunes the built-in probe. Zero fields keep their defaults.
func WithProbeSettings(ps ProbeSettings) Option {
	return func(cfg *engineConfig) error {
		if ps.Timeout < 0 || ps.SidecarRetries < 0 || ps.SidecarRetryDelay < 0 || ps.StaleAfter < 0 {
			return errors.New("probe settings cannot be negative")
		}
		cfg.probe = ps
		return nil
	}
}

// WithWebhooks delivers notifications through chat webhooks instead of the
// log. channels maps channel ids to webhook URLs; members maps member ids
// to the webhook URL used for their direct alerts.
func WithWebhooks(channels, members map[string]string) Option {
	return func(cfg *engineConfig) error {
		if len(channels) == 0 {
			return errors.New("at least one channel webhook is required")
		}
		cfg.webhookChannels = copyMap(channels)
		cfg.webhookMembers = copyMap(members)
		return nil
	}
}

// WithRoles sets role membership used to resolve direct alert recipients.
func WithRoles(roles map[string][]string) Option {
	return func(cfg *engineConfig) error {
		cfg.roles = make(map[string][]string, len(roles))
		for role, members := range roles {
			cfg.roles[role] = copyStrings(members)
		}
		return nil
	}
}

// WithPostgres keeps entity settings in PostgreSQL. Configured entities are
// synced into the table on start, preserving stored panel message ids.
func WithPostgres(dsn string) Option {
	return func(cfg *engineConfig) error {
		if strings.TrimSpace(dsn) == "" {
			return errors.New("postgres dsn cannot be empty")
		}
		cfg.postgresDSN = dsn
		return nil
	}
}

// WithSnapshotCallback registers a function called after every panel write.
//
// Callbacks run on a single goroutine, in registration order, and must not
// block. Panics are recovered and logged. Nil callbacks are ignored.
func WithSnapshotCallback(cb func(Snapshot)) Option {
	return func(cfg *engineConfig) error {
		if cb == nil {
			return nil
		}
		cfg.snapshotCallbacks = append(cfg.snapshotCallbacks, cb)
		return nil
	}
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
