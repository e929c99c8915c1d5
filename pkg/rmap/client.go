package rmap

import (
	"errors"
	"log/slog"
	"sync"
)

// Client opens hash handles over a shared connection pool.
// A Client is safe for concurrent use.
type Client struct {
	pool    Pool
	logger  *slog.Logger
	retry   RetryPolicy
	metrics *Metrics

	mu     sync.Mutex
	hashes map[string]*Hash
	closed bool
}

// New creates a client over pool.
func New(pool Pool, opts ...Option) (*Client, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	c := &Client{
		pool:   pool,
		logger: slog.Default(),
		hashes: make(map[string]*Hash),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "rmap")
	return c, nil
}

// Hash returns the handle for the hash stored under name. Calls with the same
// name return the same handle until it is closed, so closing it affects every
// holder, including typed maps opened on that name. A call after the close
// returns a new handle.
func (c *Client) Hash(name string) *Hash {
	c.mu.Lock()
	defer c.mu.Unlock()

	if h, ok := c.hashes[name]; ok {
		return h
	}
	h := newHash(c, name)
	if c.closed {
		h.closed = true
		return h
	}
	c.hashes[name] = h
	return h
}

func (c *Client) forget(h *Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hashes[h.name] == h {
		delete(c.hashes, h.name)
	}
}

// Close closes every open handle. The pool is owned by the caller and is not
// closed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	hashes := make([]*Hash, 0, len(c.hashes))
	for _, h := range c.hashes {
		hashes = append(hashes, h)
	}
	c.mu.Unlock()

	var errs []error
	for _, h := range hashes {
		if err := h.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
