package rmap

import (
	"context"
	"fmt"
	"time"

	"github.com/yndnr/rmap-go/pkg/resp"
)

// cleanupTimeout bounds UNWATCH/DISCARD when a scope is released.
const cleanupTimeout = 2 * time.Second

// scope owns one pooled connection for the duration of a conditional
// operation. Connection state (watch, open MULTI) is tracked so the
// connection can be reset before it goes back to the pool.
type scope struct {
	hash     *Hash
	conn     *leased
	watching bool
	inMulti  bool
}

// withScope acquires a dedicated connection, runs fn, and releases the
// connection exactly once on every return path.
func (h *Hash) withScope(ctx context.Context, fn func(s *scope) error) error {
	if h.isClosed() {
		return ErrClosed
	}

	c, err := h.client.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	s := &scope{hash: h, conn: &leased{Conn: c}}
	defer s.release(ctx)

	return fn(s)
}

func (s *scope) release(ctx context.Context) {
	broken := s.conn.broken
	if !broken && (s.watching || s.inMulti) {
		broken = !s.reset(ctx)
	}
	s.hash.client.pool.Release(s.conn.Conn, broken)
}

// reset clears connection state left by an unfinished attempt. DISCARD also
// drops the watch.
func (s *scope) reset(ctx context.Context) bool {
	cmd := "UNWATCH"
	if s.inMulti {
		cmd = "DISCARD"
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if _, err := s.conn.Do(ctx, cmd); err != nil {
		s.hash.logger.Warn("connection reset failed", "command", cmd, "error", err)
		return false
	}
	s.watching, s.inMulti = false, false
	return true
}

// watch starts a watch on the hash and returns the window in which reads are
// covered by the next commit's conflict check.
func (s *scope) watch(ctx context.Context) (*window, error) {
	v, err := s.conn.Do(ctx, "WATCH", s.hash.name)
	if err != nil {
		return nil, err
	}
	if err := v.Status("OK"); err != nil {
		return nil, err
	}
	s.watching = true
	return &window{scope: s}, nil
}

// window is a live watch on one connection. It can be read from until begin
// is called, and begin succeeds at most once.
type window struct {
	scope *scope
	used  bool
}

func (w *window) exists(ctx context.Context, field []byte) (bool, error) {
	if w.used {
		return false, errWindowClosed
	}
	return w.scope.hash.exists(ctx, w.scope.conn, field)
}

func (w *window) get(ctx context.Context, field []byte) ([]byte, error) {
	if w.used {
		return nil, errWindowClosed
	}
	return w.scope.hash.get(ctx, w.scope.conn, field)
}

// begin opens a transaction under the watch.
func (w *window) begin(ctx context.Context) (*txn, error) {
	if w.used {
		return nil, errWindowClosed
	}
	w.used = true

	v, err := w.scope.conn.Do(ctx, "MULTI")
	if err != nil {
		return nil, err
	}
	if err := v.Status("OK"); err != nil {
		return nil, err
	}
	w.scope.inMulti = true
	return &txn{scope: w.scope}, nil
}

// txn queues commands between MULTI and EXEC.
type txn struct {
	scope  *scope
	queued int
	done   bool
}

func (t *txn) set(ctx context.Context, field, value []byte) error {
	return t.queue(ctx, "HSET", t.scope.hash.name, field, value)
}

func (t *txn) del(ctx context.Context, field []byte) error {
	return t.queue(ctx, "HDEL", t.scope.hash.name, field)
}

func (t *txn) queue(ctx context.Context, args ...any) error {
	if t.done {
		return errTxnDone
	}
	v, err := t.scope.conn.Do(ctx, args...)
	if err != nil {
		return err
	}
	if err := v.Status("QUEUED"); err != nil {
		return err
	}
	t.queued++
	return nil
}

// commit sends EXEC. It returns the per-command results when the transaction
// applied, or an empty slice when a watched key changed and nothing applied.
// A result list shorter than the queue is treated as an abort.
func (t *txn) commit(ctx context.Context) ([]resp.Value, error) {
	if t.done {
		return nil, errTxnDone
	}
	t.done = true

	v, err := t.scope.conn.Do(ctx, "EXEC")
	if err == nil || isReplyError(err) {
		// Any EXEC reply ends both the transaction and the watch.
		t.scope.inMulti, t.scope.watching = false, false
	}
	if err != nil {
		return nil, err
	}

	if v.IsNull() {
		return nil, nil
	}
	if v.Kind != resp.KindArray {
		return nil, fmt.Errorf("%w: EXEC returned %s", resp.ErrProtocol, v.Kind)
	}
	if len(v.Array) > t.queued {
		return nil, fmt.Errorf("%w: EXEC returned %d results for %d commands", resp.ErrProtocol, len(v.Array), t.queued)
	}
	if len(v.Array) < t.queued {
		return nil, nil
	}
	for _, r := range v.Array {
		if err := r.Err(); err != nil {
			return nil, err
		}
	}
	return v.Array, nil
}
