// Package config provides YAML configuration parsing for pulsewatch.
//
// Example configuration:
//
//	port: 8080
//	poll_interval: 30s
//	crash_cooldown: 10m
//
//	sink:
//	  type: webhook
//	  channels:
//	    "1200000000000000001": ${STATUS_WEBHOOK}
//
//	entities:
//	  - id: main
//	    name: Main City
//	    poll_url_a: http://203.0.113.5:30120/dynamic.json
//	    poll_url_b: http://203.0.113.5:30120/players.json
//	    notify_channel: "1200000000000000001"
//	    alert_roles: ["1200000000000000002"]
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// minPollInterval is the minimum allowed polling interval.
// This prevents accidental DoS of game servers with overly aggressive polling.
const minPollInterval = 1 * time.Second

const (
	defaultPort              = 8080
	defaultPollInterval      = 30 * time.Second
	defaultCrashCooldown     = 10 * time.Minute
	defaultDMConcurrency     = 5
	defaultProbeTimeout      = 5 * time.Second
	defaultSidecarRetries    = 3
	defaultSidecarRetryDelay = 500 * time.Millisecond
	defaultNATSSubject       = "pulsewatch.push"
	defaultNATSQueue         = "pulsewatch"
)

// Config is the root configuration structure for pulsewatch.
//
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP port of the push API and status feed. Defaults to 8080.
	Port int `yaml:"port" validate:"min=1,max=65535"`

	// PollInterval is the time between scheduler ticks. Defaults to 30s.
	PollInterval Duration `yaml:"poll_interval"`

	// CrashCooldown is the minimum gap between two crash or anomaly alerts
	// for one entity. Defaults to 10m.
	CrashCooldown Duration `yaml:"crash_cooldown"`

	// DMConcurrency caps concurrent direct alerts. Defaults to 5.
	DMConcurrency int `yaml:"dm_concurrency" validate:"min=1,max=100"`

	// LogLevel is one of debug, info, warn, error. Defaults to info.
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	Probe    ProbeConfig    `yaml:"probe"`
	Push     PushConfig     `yaml:"push"`
	Settings SettingsConfig `yaml:"settings"`
	Sink     SinkConfig     `yaml:"sink"`

	Entities []EntityConfig `yaml:"entities" validate:"dive"`
}

// ProbeConfig tunes the built-in probe.
type ProbeConfig struct {
	Timeout           Duration `yaml:"timeout"`
	SidecarRetries    int      `yaml:"sidecar_retries" validate:"min=0,max=20"`
	SidecarRetryDelay Duration `yaml:"sidecar_retry_delay"`

	// StaleAfter flags old sidecar blobs. Zero disables the check.
	StaleAfter Duration `yaml:"stale_after"`
}

// PushConfig configures push ingestion.
type PushConfig struct {
	// Token, when set, is required as a bearer token on POST /api/push.
	Token string     `yaml:"token"`
	NATS  NATSConfig `yaml:"nats"`
}

// NATSConfig enables the NATS push subject when URL is set.
type NATSConfig struct {
	URL     string `yaml:"url" validate:"omitempty,url"`
	Subject string `yaml:"subject"`
	Queue   string `yaml:"queue"`
}

// SettingsConfig selects where entity settings live.
type SettingsConfig struct {
	// Driver is memory or postgres. Defaults to memory.
	Driver string `yaml:"driver" validate:"oneof=memory postgres"`
	DSN    string `yaml:"dsn" validate:"required_if=Driver postgres"`
}

// SinkConfig selects where notifications go.
type SinkConfig struct {
	// Type is log or webhook. Defaults to log.
	Type string `yaml:"type" validate:"oneof=log webhook"`

	// Channels maps channel ids to webhook URLs.
	Channels map[string]string `yaml:"channels" validate:"required_if=Type webhook,dive,url"`

	// Members maps member ids to the webhook URL for their direct alerts.
	Members map[string]string `yaml:"members" validate:"dive,url"`

	// Roles maps role ids to member ids.
	Roles map[string][]string `yaml:"roles"`
}

// EntityConfig defines one monitored game server.
type EntityConfig struct {
	ID   string `yaml:"id" validate:"required,max=64"`
	Name string `yaml:"name" validate:"max=100"`

	// PollURLA and PollURLB are the server info and player list URLs.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	PollURLA string `yaml:"poll_url_a" validate:"omitempty,http_url"`
	PollURLB string `yaml:"poll_url_b" validate:"omitempty,http_url"`

	// SidecarURL is an http(s) URL, a file:// URL or a plain path.
	SidecarURL string `yaml:"sidecar_url"`

	// NotifyChannel receives notifications and the panel. An entity without
	// one is skipped with a warning.
	NotifyChannel  string   `yaml:"notify_channel"`
	AlertRoles     []string `yaml:"alert_roles"`
	DMRoles        []string `yaml:"dm_roles"`
	PanelMessageID string   `yaml:"panel_message_id"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// SlogLevel maps LogLevel onto a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in the file are expanded before validation.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data, applies defaults, expands
// environment variables and validates the result.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expand(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.PollInterval == 0 {
		c.PollInterval = Duration(defaultPollInterval)
	}
	if c.CrashCooldown == 0 {
		c.CrashCooldown = Duration(defaultCrashCooldown)
	}
	if c.DMConcurrency == 0 {
		c.DMConcurrency = defaultDMConcurrency
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	c.LogLevel = strings.ToLower(c.LogLevel)

	if c.Probe.Timeout == 0 {
		c.Probe.Timeout = Duration(defaultProbeTimeout)
	}
	if c.Probe.SidecarRetries == 0 {
		c.Probe.SidecarRetries = defaultSidecarRetries
	}
	if c.Probe.SidecarRetryDelay == 0 {
		c.Probe.SidecarRetryDelay = Duration(defaultSidecarRetryDelay)
	}

	if c.Push.NATS.URL != "" {
		if c.Push.NATS.Subject == "" {
			c.Push.NATS.Subject = defaultNATSSubject
		}
		if c.Push.NATS.Queue == "" {
			c.Push.NATS.Queue = defaultNATSQueue
		}
	}

	if c.Settings.Driver == "" {
		c.Settings.Driver = "memory"
	}
	if c.Sink.Type == "" {
		c.Sink.Type = "log"
	}
}

// expand substitutes environment variables in every field that may carry
// secrets or deployment-specific addresses.
func (c *Config) expand() error {
	var err error
	expandField := func(field string, s *string) {
		if err != nil {
			return
		}
		v, e := expandEnvVars(*s)
		if e != nil {
			err = fmt.Errorf("%s: %w", field, e)
			return
		}
		*s = v
	}

	expandField("push.token", &c.Push.Token)
	expandField("push.nats.url", &c.Push.NATS.URL)
	expandField("settings.dsn", &c.Settings.DSN)
	for k, v := range c.Sink.Channels {
		expandField(fmt.Sprintf("sink.channels[%s]", k), &v)
		c.Sink.Channels[k] = v
	}
	for k, v := range c.Sink.Members {
		expandField(fmt.Sprintf("sink.members[%s]", k), &v)
		c.Sink.Members[k] = v
	}
	for i := range c.Entities {
		ent := &c.Entities[i]
		prefix := fmt.Sprintf("entities[%d]", i)
		expandField(prefix+".poll_url_a", &ent.PollURLA)
		expandField(prefix+".poll_url_b", &ent.PollURLB)
		expandField(prefix+".sidecar_url", &ent.SidecarURL)
		expandField(prefix+".notify_channel", &ent.NotifyChannel)
	}
	return err
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report YAML keys rather than Go field names
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return errors.New(describe(verrs[0]))
		}
		return err
	}

	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.CrashCooldown.Duration() < 0 {
		return fmt.Errorf("crash_cooldown cannot be negative, got %s", c.CrashCooldown.Duration())
	}
	if c.Probe.Timeout.Duration() < 0 || c.Probe.SidecarRetryDelay.Duration() < 0 || c.Probe.StaleAfter.Duration() < 0 {
		return errors.New("probe durations cannot be negative")
	}

	if len(c.Entities) == 0 && c.Settings.Driver != "postgres" {
		return errors.New("at least one entity must be defined")
	}

	seen := make(map[string]int, len(c.Entities))
	for i, ent := range c.Entities {
		if j, ok := seen[ent.ID]; ok {
			return fmt.Errorf("entities[%d]: id %q already used by entities[%d]", i, ent.ID, j)
		}
		seen[ent.ID] = i

		if ent.SidecarURL != "" && strings.Contains(ent.SidecarURL, "://") {
			scheme, _, _ := strings.Cut(ent.SidecarURL, "://")
			switch scheme {
			case "http", "https", "file":
			default:
				return fmt.Errorf("entities[%d] (%s): sidecar_url scheme must be http, https or file, got %q", i, ent.ID, scheme)
			}
		}
	}

	for role, members := range c.Sink.Roles {
		if len(members) == 0 {
			return fmt.Errorf("sink.roles[%s]: at least one member is required", role)
		}
	}
	return nil
}

// describe renders a validation error as "entities[0]: id is required".
func describe(fe validator.FieldError) string {
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}

	parent, field := "", path
	if i := strings.LastIndex(path, "."); i >= 0 {
		parent, field = path[:i], path[i+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required", "required_if":
		msg = "is required"
	case "min":
		msg = "must be at least " + fe.Param()
	case "max":
		if fe.Kind() == reflect.String {
			msg = "must be at most " + fe.Param() + " characters"
		} else {
			msg = "must be at most " + fe.Param()
		}
	case "oneof":
		msg = "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "url":
		msg = "must be a valid URL"
	case "http_url":
		msg = "must be an http or https URL"
	default:
		msg = "failed " + fe.Tag() + " validation"
	}

	if parent == "" {
		return field + " " + msg
	}
	return parent + ": " + field + " " + msg
}
