// Package status serves a small read-only HTTP endpoint for a running client.
//
// Routes:
//   - GET /healthz       overall health: session, service probe, journal database
//   - GET /status        the latest session snapshot
//   - GET /debug/journal journal writer counters, when a journal is attached
//
// Handlers only read snapshots that are safe from any goroutine; they never
// touch the session's frame loop.
package status
