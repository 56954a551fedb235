// Package registry holds the per-entity runtime state shared by the poll
// and push paths.
//
// A [TrackedEntity] exists only for entities with a notification channel.
// It is rebuilt, with a fresh probe adapter and zeroed state, whenever the
// entity's probe URLs or channel change. The registry lock is held only to
// look up or replace map entries; all runtime fields are guarded by locks
// on the entity itself:
//
//   - the poll lock ([TrackedEntity.LockPoll]) for LastStatus and the
//     sidecar failure counter
//   - [PushState] for the push path's status and event id
//   - [PanelState] for the panel signature, message id and last values
package registry
