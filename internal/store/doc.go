// Package store keeps the latest panel snapshot of every entity and fans
// snapshot updates out to live subscribers.
//
// The panel renderer publishes a snapshot after each panel write; the HTTP
// server reads them for GET /api/entities and streams them over SSE.
// Subscribers receive updates on buffered channels and a slow subscriber
// misses updates rather than blocking the publisher.
package store
