package storage

import (
	"bytes"
	"context"
	"errors"
	"sort"
)

// Common errors
var (
	ErrClosed = errors.New("storage: closed")
)

// Pair is one field of a hash.
type Pair struct {
	Field []byte
	Value []byte
}

// HashStore stores named hashes of binary fields.
//
// Missing hashes behave as empty ones. Returned slices are owned by the caller.
type HashStore interface {
	// HGet returns the value of field, or nil if absent.
	HGet(ctx context.Context, key string, field []byte) ([]byte, error)

	// HExists reports whether field is present.
	HExists(ctx context.Context, key string, field []byte) (bool, error)

	// HSet stores the pairs and returns how many fields were newly created.
	HSet(ctx context.Context, key string, pairs ...Pair) (int, error)

	// HSetNX stores field only if it is absent and reports whether it did.
	HSetNX(ctx context.Context, key string, field, value []byte) (bool, error)

	// HDel removes fields and returns how many existed.
	HDel(ctx context.Context, key string, fields ...[]byte) (int, error)

	// HLen returns the number of fields.
	HLen(ctx context.Context, key string) (int, error)

	// HGetAll returns every field, ordered by field bytes.
	HGetAll(ctx context.Context, key string) ([]Pair, error)

	// Del removes whole hashes and returns how many existed.
	Del(ctx context.Context, keys ...string) (int, error)

	// Exists reports whether the hash has at least one field.
	Exists(ctx context.Context, key string) (bool, error)

	// Close releases resources.
	Close() error
}

// SortPairs orders pairs by field bytes.
func SortPairs(pairs []Pair) {
	sort.Slice(pairs, func(i, j int) bool {
		return bytes.Compare(pairs[i].Field, pairs[j].Field) < 0
	})
}
