// Package credentials persists the auth token issued by the database service.
//
// The token file holds a single opaque string. It is read when a connection is
// built and rewritten whenever the service hands back a (possibly refreshed)
// token on connect. Tokens are JWTs; Inspect decodes their claims for logging
// without verifying the signature, which only the service can do.
package credentials
