// Package api is a client for the database service's HTTP control plane.
//
// It covers what the CLI needs outside a websocket session: health checks,
// minting a new identity and token, and looking up a database by name.
// Requests that fail with 5xx or 429 are retried with jittered exponential
// backoff.
package api
