// Package poller runs the periodic reconciliation of every configured
// entity.
//
// On each tick the [Scheduler] reads the entity settings, prunes entities
// that are no longer configured and then runs one pass per entity, one
// entity after another. A pass polls the server, reads the sidecar status,
// announces transitions and events, classifies sidecar failures as inferred
// crashes or anomalies under a per-entity cooldown, and finally refreshes
// the entity's panel. Each pass runs behind its own panic boundary so a
// misbehaving entity never aborts the tick.
package poller
