package rmap

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Operation names used in logs, metrics and error messages.
const (
	opRemoveIf    = "remove-if"
	opReplaceIf   = "replace-if"
	opReplace     = "replace"
	opPutIfAbsent = "put-if-absent"
)

// RemoveIf deletes field only if its current value equals expected.
// It reports whether the delete was applied.
//
// A nil expected never matches a present field, so RemoveIf(ctx, f, nil)
// always returns false.
func (h *Hash) RemoveIf(ctx context.Context, field, expected []byte) (bool, error) {
	return h.conditional(ctx, opRemoveIf, field,
		func(ctx context.Context, w *window) (bool, error) {
			return h.precondition(ctx, w, field, expected)
		},
		func(ctx context.Context, t *txn) error {
			return t.del(ctx, field)
		})
}

// ReplaceIf sets field to value only if its current value equals oldValue.
// It reports whether the write was applied.
func (h *Hash) ReplaceIf(ctx context.Context, field, oldValue, value []byte) (bool, error) {
	return h.conditional(ctx, opReplaceIf, field,
		func(ctx context.Context, w *window) (bool, error) {
			return h.precondition(ctx, w, field, oldValue)
		},
		func(ctx context.Context, t *txn) error {
			return t.set(ctx, field, value)
		})
}

// Replace sets field to value only if the field exists, returning the value
// it replaced. It returns nil, without writing, when the field is absent.
//
// A commit conflict is retried like RemoveIf and ReplaceIf, so nil always
// means the field was absent.
func (h *Hash) Replace(ctx context.Context, field, value []byte) ([]byte, error) {
	var prev []byte
	_, err := h.conditional(ctx, opReplace, field,
		func(ctx context.Context, w *window) (bool, error) {
			ok, err := w.exists(ctx, field)
			if err != nil || !ok {
				prev = nil
				return false, err
			}
			prev, err = w.get(ctx, field)
			if err != nil {
				return false, err
			}
			return prev != nil, nil
		},
		func(ctx context.Context, t *txn) error {
			return t.set(ctx, field, value)
		})
	if err != nil {
		return nil, err
	}
	return prev, nil
}

// precondition is the shared RemoveIf/ReplaceIf check: the field exists and
// holds expected.
func (h *Hash) precondition(ctx context.Context, w *window, field, expected []byte) (bool, error) {
	ok, err := w.exists(ctx, field)
	if err != nil || !ok {
		return false, err
	}
	return valueEquals(ctx, w, field, expected)
}

// conditional runs the watch/check/transact/commit cycle on a dedicated
// connection until the commit applies or the check fails. A failed check
// returns false without retrying; a conflicting commit starts a new cycle.
// Transport faults end the loop and are never retried.
func (h *Hash) conditional(
	ctx context.Context,
	op string,
	field []byte,
	check func(ctx context.Context, w *window) (bool, error),
	queue func(ctx context.Context, t *txn) error,
) (bool, error) {
	start := time.Now()
	opID := ulid.Make().String()
	metrics := h.client.metrics

	var applied bool
	err := h.withScope(ctx, func(s *scope) error {
		return h.client.retry.run(ctx, func(attempt int) (bool, error) {
			metrics.attempt(op)

			w, err := s.watch(ctx)
			if err != nil {
				return false, err
			}
			ok, err := check(ctx, w)
			if err != nil {
				return false, err
			}
			if !ok {
				return true, nil
			}

			t, err := w.begin(ctx)
			if err != nil {
				return false, err
			}
			if err := queue(ctx, t); err != nil {
				return false, err
			}
			res, err := t.commit(ctx)
			if err != nil {
				return false, err
			}
			if len(res) == 1 {
				applied = true
				return true, nil
			}

			metrics.conflict(op)
			h.logger.Debug("commit conflict, retrying", "op", op, "op_id", opID, "attempt", attempt)
			return false, nil
		})
	})

	metrics.finish(op, err == nil && applied, err, start)
	if err != nil {
		h.logger.Debug("conditional operation failed", "op", op, "op_id", opID, "error", err)
		return false, fmt.Errorf("rmap: %s %q: %w", op, field, err)
	}
	return applied, nil
}
