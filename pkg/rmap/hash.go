package rmap

import (
	"context"
	"log/slog"
	"sync"

	"github.com/yndnr/rmap-go/pkg/resp"
)

// Hash is a handle to one hash in the store. It holds no cached data; the
// store is the only source of truth.
//
// A Hash is safe for concurrent use. Pass-through operations and PutIfAbsent
// are serialized on the handle's ambient connection; conditional operations
// each run on their own pooled connection.
type Hash struct {
	client *Client
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	ambient *leased
	closed  bool
}

func newHash(c *Client, name string) *Hash {
	return &Hash{
		client: c,
		name:   name,
		logger: c.logger.With("hash", name),
	}
}

// Name returns the key of the hash in the store.
func (h *Hash) Name() string {
	return h.name
}

// Close releases the ambient connection. Every later call returns ErrClosed.
// The hash itself is left in the store; use Clear to delete it.
func (h *Hash) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	if h.ambient != nil {
		h.client.pool.Release(h.ambient.Conn, h.ambient.broken)
		h.ambient = nil
	}
	h.mu.Unlock()

	h.client.forget(h)
	return nil
}

func (h *Hash) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// withAmbient runs fn on the ambient connection, acquiring it on first use.
// A connection that faults is released as broken and replaced on the next call.
func (h *Hash) withAmbient(ctx context.Context, fn func(c Conn) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrClosed
	}
	if h.ambient == nil {
		c, err := h.client.pool.Acquire(ctx)
		if err != nil {
			return err
		}
		h.ambient = &leased{Conn: c}
	}

	err := fn(h.ambient)
	if h.ambient.broken {
		h.logger.Debug("dropping faulted ambient connection", "error", err)
		h.client.pool.Release(h.ambient.Conn, true)
		h.ambient = nil
	}
	return err
}

// leased wraps an acquired connection and records transport faults.
type leased struct {
	Conn
	broken bool
}

func (l *leased) Do(ctx context.Context, args ...any) (resp.Value, error) {
	v, err := l.Conn.Do(ctx, args...)
	if err != nil && !isReplyError(err) {
		l.broken = true
	}
	return v, err
}

// Remote hash commands. Each issues exactly one command on c.

func (h *Hash) exists(ctx context.Context, c Conn, field []byte) (bool, error) {
	v, err := c.Do(ctx, "HEXISTS", h.name, field)
	if err != nil {
		return false, err
	}
	return v.Bool()
}

func (h *Hash) get(ctx context.Context, c Conn, field []byte) ([]byte, error) {
	v, err := c.Do(ctx, "HGET", h.name, field)
	if err != nil {
		return nil, err
	}
	return v.Bytes()
}

func (h *Hash) set(ctx context.Context, c Conn, field, value []byte) error {
	_, err := c.Do(ctx, "HSET", h.name, field, value)
	return err
}

func (h *Hash) del(ctx context.Context, c Conn, field []byte) error {
	_, err := c.Do(ctx, "HDEL", h.name, field)
	return err
}

func (h *Hash) setIfAbsent(ctx context.Context, c Conn, field, value []byte) (bool, error) {
	v, err := c.Do(ctx, "HSETNX", h.name, field, value)
	if err != nil {
		return false, err
	}
	return v.Bool()
}
