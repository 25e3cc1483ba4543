// Package client is the HTTP client the CLI uses to talk to the running
// daemon.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/eliteGoblin/focusd/web_mon/internal/bus"
)

// Client posts actions to the daemon's control API.
type Client struct {
	http *resty.Client
}

// New creates a client for the daemon at baseURL.
func New(baseURL string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(baseURL).
			SetTimeout(10 * time.Second),
	}
}

// Do executes one action and returns the protocol response. A transport
// failure (daemon not running, network error) is returned as a plain
// error distinct from a protocol-level failure response.
func (c *Client) Do(ctx context.Context, req bus.Request) (bus.Response, error) {
	var resp bus.Response
	r, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post("/v1/actions")
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable: %w", err)
	}
	if r.IsError() {
		return nil, fmt.Errorf("daemon returned HTTP %d", r.StatusCode())
	}
	return resp, nil
}

// Healthy reports whether the daemon answers its health endpoint.
func (c *Client) Healthy(ctx context.Context) bool {
	r, err := c.http.R().SetContext(ctx).Get("/healthz")
	return err == nil && r.IsSuccess()
}
