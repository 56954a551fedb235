// Package server provides the HTTP surface of pulsewatch.
//
//   - POST /api/push: the push API, optionally guarded by a bearer token
//   - GET /api/entities: latest panel snapshot of every tracked entity
//   - GET /api/sse: Server-Sent Events stream of snapshot updates
//   - GET /metrics: Prometheus exposition
//   - GET /healthz: liveness
//
// The server shuts down gracefully when the context passed to
// [Server.Start] is cancelled, with a 5-second timeout for in-flight
// requests.
package server
