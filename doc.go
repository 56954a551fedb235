// Package pulsewatch watches game servers and keeps a chat channel in step
// with them.
//
// Each monitored [Entity] may be polled over HTTP, read through a sidecar
// status blob, or driven entirely by pushes. The [Engine] reconciles what it
// observes against what it last announced, so operators see one
// notification per real transition, at most one crash alert per cooldown
// window, and a single panel message per entity that is edited in place.
//
// # Quick Start
//
//	e, _ := pulsewatch.NewEntity("main",
//	    pulsewatch.WithPollURLs("http://203.0.113.5:30120/dynamic.json", "http://203.0.113.5:30120/players.json"),
//	    pulsewatch.WithNotifyChannel("1200000000000000001"),
//	)
//	eng, _ := pulsewatch.New(pulsewatch.WithEntity(e))
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	eng.Start(ctx) // blocks until context is cancelled
//
// # Architecture
//
//   - internal/normalize: vendor status and event vocabularies
//   - internal/probe: HTTP and sidecar probing behind the Adapter interface
//   - internal/registry: per-entity runtime state
//   - internal/poller: the ticker-driven scheduler
//   - internal/push: push ingestion over HTTP and NATS
//   - internal/notify, internal/webhook: notification delivery
//   - internal/panel: the per-entity status panel
//   - internal/settings: entity settings in memory or PostgreSQL
//   - internal/server: HTTP API, live feed and metrics
package pulsewatch
