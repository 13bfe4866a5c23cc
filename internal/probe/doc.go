// Package probe periodically checks the service's HTTP control plane.
//
// Each cycle pings the service and looks up the configured module
// concurrently, then publishes one Result. The status endpoint reports the
// latest Result so an operator can tell a dead service apart from a client
// that is merely disconnected.
package probe
