package config

import (
	"log/slog"

	"github.com/jpalmerr/pulsewatch"
)

// BuildEntities converts the entities section into SDK Entity values.
func BuildEntities(cfg *Config) ([]pulsewatch.Entity, error) {
	entities := make([]pulsewatch.Entity, 0, len(cfg.Entities))
	for _, ec := range cfg.Entities {
		e, err := buildEntity(ec)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// buildEntity converts a single EntityConfig to an SDK Entity.
func buildEntity(ec EntityConfig) (pulsewatch.Entity, error) {
	var opts []pulsewatch.EntityOption

	if ec.Name != "" {
		opts = append(opts, pulsewatch.WithName(ec.Name))
	}
	if ec.PollURLA != "" || ec.PollURLB != "" {
		opts = append(opts, pulsewatch.WithPollURLs(ec.PollURLA, ec.PollURLB))
	}
	if ec.SidecarURL != "" {
		opts = append(opts, pulsewatch.WithSidecar(ec.SidecarURL))
	}
	if ec.NotifyChannel != "" {
		opts = append(opts, pulsewatch.WithNotifyChannel(ec.NotifyChannel))
	}
	if len(ec.AlertRoles) > 0 {
		opts = append(opts, pulsewatch.WithAlertRoles(ec.AlertRoles...))
	}
	if len(ec.DMRoles) > 0 {
		opts = append(opts, pulsewatch.WithDMRoles(ec.DMRoles...))
	}
	if ec.PanelMessageID != "" {
		opts = append(opts, pulsewatch.WithPanelMessageID(ec.PanelMessageID))
	}

	return pulsewatch.NewEntity(ec.ID, opts...)
}

// BuildOptions converts a parsed configuration into Engine options.
func BuildOptions(cfg *Config, logger *slog.Logger) ([]pulsewatch.Option, error) {
	entities, err := BuildEntities(cfg)
	if err != nil {
		return nil, err
	}

	opts := []pulsewatch.Option{
		pulsewatch.WithEntities(entities...),
		pulsewatch.WithPort(cfg.Port),
		pulsewatch.WithPollInterval(cfg.PollInterval.Duration()),
		pulsewatch.WithDMConcurrency(cfg.DMConcurrency),
		pulsewatch.WithProbeSettings(pulsewatch.ProbeSettings{
			Timeout:           cfg.Probe.Timeout.Duration(),
			SidecarRetries:    cfg.Probe.SidecarRetries,
			SidecarRetryDelay: cfg.Probe.SidecarRetryDelay.Duration(),
			StaleAfter:        cfg.Probe.StaleAfter.Duration(),
		}),
	}

	if cfg.CrashCooldown > 0 {
		opts = append(opts, pulsewatch.WithCrashCooldown(cfg.CrashCooldown.Duration()))
	}
	if logger != nil {
		opts = append(opts, pulsewatch.WithLogger(logger))
	}
	if cfg.Push.Token != "" {
		opts = append(opts, pulsewatch.WithPushToken(cfg.Push.Token))
	}
	if cfg.Push.NATS.URL != "" {
		opts = append(opts, pulsewatch.WithNATS(pulsewatch.NATSConfig{
			URL:     cfg.Push.NATS.URL,
			Subject: cfg.Push.NATS.Subject,
			Queue:   cfg.Push.NATS.Queue,
		}))
	}
	if cfg.Settings.Driver == "postgres" {
		opts = append(opts, pulsewatch.WithPostgres(cfg.Settings.DSN))
	}
	if cfg.Sink.Type == "webhook" {
		opts = append(opts, pulsewatch.WithWebhooks(cfg.Sink.Channels, cfg.Sink.Members))
	}
	if len(cfg.Sink.Roles) > 0 {
		opts = append(opts, pulsewatch.WithRoles(cfg.Sink.Roles))
	}

	return opts, nil
}
