package api

import (
	"context"
	"fmt"
	"net/url"
	"time"
)

// Ping checks that the service is reachable and returns the round trip time.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := c.get(ctx, "/v1/ping", nil); err != nil {
		return 0, fmt.Errorf("ping: %w", err)
	}
	return time.Since(start), nil
}

// CreateIdentity mints a new identity and its token.
func (c *Client) CreateIdentity(ctx context.Context) (*IdentityResponse, error) {
	var resp IdentityResponse
	if err := c.post(ctx, "/v1/identity", nil, &resp); err != nil {
		return nil, fmt.Errorf("create identity: %w", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("create identity: response has no token")
	}
	return &resp, nil
}

// DatabaseInfo looks up a database by name.
func (c *Client) DatabaseInfo(ctx context.Context, name string) (*DatabaseInfo, error) {
	var info DatabaseInfo
	if err := c.get(ctx, "/v1/database/"+url.PathEscape(name), &info); err != nil {
		return nil, fmt.Errorf("get database %s: %w", name, err)
	}
	return &info, nil
}
