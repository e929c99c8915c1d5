package rmap

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// PutIfAbsent sets field to value if the field does not exist. It returns nil
// when the value was stored, or the existing value otherwise.
//
// If the field is deleted between the failed HSETNX and the follow-up read,
// the set is attempted again.
func (h *Hash) PutIfAbsent(ctx context.Context, field, value []byte) ([]byte, error) {
	start := time.Now()
	opID := ulid.Make().String()
	metrics := h.client.metrics

	var prev []byte
	err := h.withAmbient(ctx, func(c Conn) error {
		return h.client.retry.run(ctx, func(attempt int) (bool, error) {
			metrics.attempt(opPutIfAbsent)

			set, err := h.setIfAbsent(ctx, c, field, value)
			if err != nil {
				return false, err
			}
			if set {
				prev = nil
				return true, nil
			}

			prev, err = h.get(ctx, c, field)
			if err != nil {
				return false, err
			}
			if prev != nil {
				return true, nil
			}

			metrics.conflict(opPutIfAbsent)
			h.logger.Debug("field vanished after HSETNX, retrying", "op_id", opID, "attempt", attempt)
			return false, nil
		})
	})

	metrics.finish(opPutIfAbsent, err == nil && prev == nil, err, start)
	if err != nil {
		return nil, fmt.Errorf("rmap: %s %q: %w", opPutIfAbsent, field, err)
	}
	return prev, nil
}
