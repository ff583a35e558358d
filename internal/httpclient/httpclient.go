// Package httpclient builds HTTP clients with shared defaults.
package httpclient

import (
	"net/http"
	"time"
)

const (
	TimeoutShort   = 10 * time.Second
	TimeoutDefault = 30 * time.Second
)

type Option func(*http.Client)

func WithTimeout(d time.Duration) Option {
	return func(c *http.Client) {
		c.Timeout = d
	}
}

// WithTransport sets a custom transport (e.g., for OTEL tracing).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *http.Client) {
		c.Transport = rt
	}
}

func New(opts ...Option) *http.Client {
	c := &http.Client{
		Timeout:   TimeoutDefault,
		Transport: http.DefaultTransport,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
