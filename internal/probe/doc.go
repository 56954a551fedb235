// Package probe defines the capability interface pulsewatch uses to observe a
// game server, and ships the reference HTTP/sidecar implementation.
//
// An [Adapter] combines three capabilities:
//
//   - [StatusPoller]: a direct HTTP poll producing an [Observation]
//   - [SidecarReader]: an out-of-band read of the sidecar status blob
//   - [Classifier]: debounce and vocabulary helpers over sidecar reads
//
// The engine only depends on the interfaces, so tests drive it with fakes.
// [Probe] is the production adapter: it polls the server's info and player
// endpoints and reads the sidecar JSON from a file or an HTTP URL.
package probe
