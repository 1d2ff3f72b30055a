// Package agentclient provides the handle bound to a running agent server.
//
// The chat/completion protocol itself lives in the HTTP layer above this
// module; the handle only fixes the base URL and transport so a workspace in
// running status always carries a ready-to-use client.
package agentclient

import (
	"fmt"
	"net/http"
	"time"
)

// Client is an opaque handle to one agent server instance.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client bound to the agent server on the given local port.
func New(port int) *Client {
	return &Client{
		baseURL: fmt.Sprintf("http://localhost:%d", port),
		http: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// BaseURL returns the agent server's base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the underlying HTTP client for protocol layers built on
// top of this handle.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}
