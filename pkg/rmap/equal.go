package rmap

import (
	"bytes"
	"context"
)

// valueEquals reads field inside the watch window and compares it with
// expected by value. A nil expected matches only an absent field; an empty
// non-nil expected matches a present empty value.
func valueEquals(ctx context.Context, w *window, field, expected []byte) (bool, error) {
	cur, err := w.get(ctx, field)
	if err != nil {
		return false, err
	}
	if expected == nil || cur == nil {
		return expected == nil && cur == nil, nil
	}
	return bytes.Equal(cur, expected), nil
}
