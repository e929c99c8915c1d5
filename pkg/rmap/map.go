package rmap

import (
	"context"
)

// Map is a typed view of a Hash. Keys and values pass through codecs, and
// conditional operations compare values by their encoded bytes.
//
// Operations that may return a previous value report its presence with a
// bool, since the zero V cannot signal absence.
type Map[K comparable, V any] struct {
	hash *Hash
	keys Codec[K]
	vals Codec[V]
}

// Open returns a typed map over the hash stored under name. Maps opened on
// the same name share one Hash handle; see Client.Hash.
func Open[K comparable, V any](c *Client, name string, keys Codec[K], vals Codec[V]) *Map[K, V] {
	return &Map[K, V]{hash: c.Hash(name), keys: keys, vals: vals}
}

// Hash returns the underlying byte-level handle.
func (m *Map[K, V]) Hash() *Hash {
	return m.hash
}

// Close closes the underlying handle. Other maps and Hash values sharing it
// return ErrClosed afterwards.
func (m *Map[K, V]) Close() error {
	return m.hash.Close()
}

func (m *Map[K, V]) decodeOpt(b []byte, err error) (V, bool, error) {
	var zero V
	if err != nil || b == nil {
		return zero, false, err
	}
	v, err := m.vals.Decode(b)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Get returns the value for key and whether it was present.
func (m *Map[K, V]) Get(ctx context.Context, key K) (V, bool, error) {
	kb, err := m.keys.Encode(key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return m.decodeOpt(m.hash.Get(ctx, kb))
}

// Put stores value under key and returns the previous value, if any.
func (m *Map[K, V]) Put(ctx context.Context, key K, value V) (V, bool, error) {
	kb, vb, err := m.encodePair(key, value)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return m.decodeOpt(m.hash.Put(ctx, kb, vb))
}

// Remove deletes key and returns the value it held, if any.
func (m *Map[K, V]) Remove(ctx context.Context, key K) (V, bool, error) {
	kb, err := m.keys.Encode(key)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return m.decodeOpt(m.hash.Remove(ctx, kb))
}

// RemoveIf deletes key only if it currently maps to expected.
func (m *Map[K, V]) RemoveIf(ctx context.Context, key K, expected V) (bool, error) {
	kb, vb, err := m.encodePair(key, expected)
	if err != nil {
		return false, err
	}
	return m.hash.RemoveIf(ctx, kb, vb)
}

// ReplaceIf sets key to value only if it currently maps to oldValue.
func (m *Map[K, V]) ReplaceIf(ctx context.Context, key K, oldValue, value V) (bool, error) {
	kb, ob, err := m.encodePair(key, oldValue)
	if err != nil {
		return false, err
	}
	vb, err := m.vals.Encode(value)
	if err != nil {
		return false, err
	}
	return m.hash.ReplaceIf(ctx, kb, ob, vb)
}

// Replace sets key to value only if key is present, returning the replaced
// value.
func (m *Map[K, V]) Replace(ctx context.Context, key K, value V) (V, bool, error) {
	kb, vb, err := m.encodePair(key, value)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return m.decodeOpt(m.hash.Replace(ctx, kb, vb))
}

// PutIfAbsent stores value under key if key is absent. It returns the existing
// value and true when nothing was stored.
func (m *Map[K, V]) PutIfAbsent(ctx context.Context, key K, value V) (V, bool, error) {
	kb, vb, err := m.encodePair(key, value)
	if err != nil {
		var zero V
		return zero, false, err
	}
	return m.decodeOpt(m.hash.PutIfAbsent(ctx, kb, vb))
}

// ContainsKey reports whether key is present.
func (m *Map[K, V]) ContainsKey(ctx context.Context, key K) (bool, error) {
	kb, err := m.keys.Encode(key)
	if err != nil {
		return false, err
	}
	return m.hash.ContainsKey(ctx, kb)
}

// ContainsValue reports whether any key maps to value.
func (m *Map[K, V]) ContainsValue(ctx context.Context, value V) (bool, error) {
	vb, err := m.vals.Encode(value)
	if err != nil {
		return false, err
	}
	return m.hash.ContainsValue(ctx, vb)
}

// Len returns the number of entries.
func (m *Map[K, V]) Len(ctx context.Context) (int, error) {
	return m.hash.Len(ctx)
}

// IsEmpty reports whether the map has no entries.
func (m *Map[K, V]) IsEmpty(ctx context.Context) (bool, error) {
	return m.hash.IsEmpty(ctx)
}

// Keys returns all keys.
func (m *Map[K, V]) Keys(ctx context.Context) ([]K, error) {
	raw, err := m.hash.Keys(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]K, 0, len(raw))
	for _, b := range raw {
		k, err := m.keys.Decode(b)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Values returns all values.
func (m *Map[K, V]) Values(ctx context.Context) ([]V, error) {
	raw, err := m.hash.Values(ctx)
	if err != nil {
		return nil, err
	}
	vals := make([]V, 0, len(raw))
	for _, b := range raw {
		v, err := m.vals.Decode(b)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v)
	}
	return vals, nil
}

// Entries returns a snapshot of the whole map.
func (m *Map[K, V]) Entries(ctx context.Context) (map[K]V, error) {
	raw, err := m.hash.Entries(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, len(raw))
	for _, e := range raw {
		k, err := m.keys.Decode(e.Field)
		if err != nil {
			return nil, err
		}
		v, err := m.vals.Decode(e.Value)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

// PutAll stores every entry of entries in one command.
func (m *Map[K, V]) PutAll(ctx context.Context, entries map[K]V) error {
	raw := make([]Entry, 0, len(entries))
	for k, v := range entries {
		kb, vb, err := m.encodePair(k, v)
		if err != nil {
			return err
		}
		raw = append(raw, Entry{Field: kb, Value: vb})
	}
	return m.hash.PutAll(ctx, raw)
}

// Clear deletes every entry.
func (m *Map[K, V]) Clear(ctx context.Context) error {
	return m.hash.Clear(ctx)
}

func (m *Map[K, V]) encodePair(key K, value V) ([]byte, []byte, error) {
	kb, err := m.keys.Encode(key)
	if err != nil {
		return nil, nil, err
	}
	vb, err := m.vals.Encode(value)
	if err != nil {
		return nil, nil, err
	}
	return kb, vb, nil
}
