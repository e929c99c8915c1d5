package rmap

import (
	"log/slog"
)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. Conflicts and retries are logged at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRetryPolicy sets the retry policy for conditional operations.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithMetrics records operation metrics into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}
