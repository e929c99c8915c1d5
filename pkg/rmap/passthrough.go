package rmap

import (
	"bytes"
	"context"
	"fmt"

	"github.com/yndnr/rmap-go/pkg/resp"
)

// Entry is one field of a hash.
type Entry struct {
	Field []byte
	Value []byte
}

// Get returns the value of field, or nil if it is absent.
func (h *Hash) Get(ctx context.Context, field []byte) ([]byte, error) {
	var v []byte
	err := h.withAmbient(ctx, func(c Conn) (err error) {
		v, err = h.get(ctx, c, field)
		return err
	})
	return v, wrap("get", err)
}

// Put sets field to value and returns the previous value, or nil.
// The read and the write are separate commands and are not atomic together.
func (h *Hash) Put(ctx context.Context, field, value []byte) ([]byte, error) {
	var prev []byte
	err := h.withAmbient(ctx, func(c Conn) (err error) {
		if prev, err = h.get(ctx, c, field); err != nil {
			return err
		}
		return h.set(ctx, c, field, value)
	})
	if err != nil {
		return nil, wrap("put", err)
	}
	return prev, nil
}

// Remove deletes field and returns the value it held, or nil.
// The read and the delete are separate commands and are not atomic together.
func (h *Hash) Remove(ctx context.Context, field []byte) ([]byte, error) {
	var prev []byte
	err := h.withAmbient(ctx, func(c Conn) (err error) {
		if prev, err = h.get(ctx, c, field); err != nil {
			return err
		}
		return h.del(ctx, c, field)
	})
	if err != nil {
		return nil, wrap("remove", err)
	}
	return prev, nil
}

// ContainsKey reports whether field exists.
func (h *Hash) ContainsKey(ctx context.Context, field []byte) (bool, error) {
	var ok bool
	err := h.withAmbient(ctx, func(c Conn) (err error) {
		ok, err = h.exists(ctx, c, field)
		return err
	})
	return ok, wrap("contains-key", err)
}

// ContainsValue reports whether any field holds value. It fetches all values.
func (h *Hash) ContainsValue(ctx context.Context, value []byte) (bool, error) {
	vals, err := h.Values(ctx)
	if err != nil {
		return false, err
	}
	for _, v := range vals {
		if bytes.Equal(v, value) {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of fields.
func (h *Hash) Len(ctx context.Context) (int, error) {
	var n int64
	err := h.withAmbient(ctx, func(c Conn) error {
		v, err := c.Do(ctx, "HLEN", h.name)
		if err != nil {
			return err
		}
		n, err = v.Integer()
		return err
	})
	return int(n), wrap("len", err)
}

// IsEmpty reports whether the hash has no fields.
func (h *Hash) IsEmpty(ctx context.Context) (bool, error) {
	n, err := h.Len(ctx)
	return n == 0, err
}

// Keys returns all field names.
func (h *Hash) Keys(ctx context.Context) ([][]byte, error) {
	keys, err := h.list(ctx, "HKEYS")
	return keys, wrap("keys", err)
}

// Values returns all values.
func (h *Hash) Values(ctx context.Context) ([][]byte, error) {
	vals, err := h.list(ctx, "HVALS")
	return vals, wrap("values", err)
}

// Entries returns all fields with their values.
func (h *Hash) Entries(ctx context.Context) ([]Entry, error) {
	flat, err := h.list(ctx, "HGETALL")
	if err != nil {
		return nil, wrap("entries", err)
	}
	if len(flat)%2 != 0 {
		return nil, wrap("entries", fmt.Errorf("%w: HGETALL returned %d elements", resp.ErrProtocol, len(flat)))
	}
	entries := make([]Entry, 0, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		entries = append(entries, Entry{Field: flat[i], Value: flat[i+1]})
	}
	return entries, nil
}

func (h *Hash) list(ctx context.Context, cmd string) ([][]byte, error) {
	var out [][]byte
	err := h.withAmbient(ctx, func(c Conn) error {
		v, err := c.Do(ctx, cmd, h.name)
		if err != nil {
			return err
		}
		out, err = v.BytesSlice()
		return err
	})
	return out, err
}

// PutAll sets every entry with a single HSET.
func (h *Hash) PutAll(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	args := make([]any, 0, 2+2*len(entries))
	args = append(args, "HSET", h.name)
	for _, e := range entries {
		args = append(args, e.Field, e.Value)
	}
	err := h.withAmbient(ctx, func(c Conn) error {
		_, err := c.Do(ctx, args...)
		return err
	})
	return wrap("put-all", err)
}

// Clear deletes the whole hash.
func (h *Hash) Clear(ctx context.Context) error {
	err := h.withAmbient(ctx, func(c Conn) error {
		_, err := c.Do(ctx, "DEL", h.name)
		return err
	})
	return wrap("clear", err)
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("rmap: %s: %w", op, err)
}
