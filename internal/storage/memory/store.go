package memory

import (
	"context"
	"sync/atomic"

	"github.com/yndnr/rmap-go/internal/storage"
	"github.com/yndnr/rmap-go/pkg/cmap"
)

type fields map[string][]byte

// HashStore is an in-memory storage.HashStore.
type HashStore struct {
	hashes *cmap.Map[string, fields]
	closed atomic.Bool
}

var _ storage.HashStore = (*HashStore)(nil)

// New creates an empty store. shardCount must be a power of 2; other values
// select the default.
func New(shardCount int) *HashStore {
	return &HashStore{hashes: cmap.NewWithShards[string, fields](shardCount)}
}

func (s *HashStore) check(ctx context.Context) error {
	if s.closed.Load() {
		return storage.ErrClosed
	}
	return ctx.Err()
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// HGet returns the value of field, or nil if absent.
func (s *HashStore) HGet(ctx context.Context, key string, field []byte) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var out []byte
	s.hashes.View(key, func(f fields, ok bool) {
		if v, found := f[string(field)]; ok && found {
			out = clone(v)
		}
	})
	return out, nil
}

// HExists reports whether field is present.
func (s *HashStore) HExists(ctx context.Context, key string, field []byte) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	var found bool
	s.hashes.View(key, func(f fields, ok bool) {
		_, found = f[string(field)]
	})
	return found, nil
}

// HSet stores the pairs and returns how many fields were newly created.
func (s *HashStore) HSet(ctx context.Context, key string, pairs ...storage.Pair) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	if len(pairs) == 0 {
		return 0, nil
	}
	added := 0
	s.hashes.Compute(key, func(f fields, ok bool) (fields, bool) {
		if !ok {
			f = make(fields, len(pairs))
		}
		for _, p := range pairs {
			if _, found := f[string(p.Field)]; !found {
				added++
			}
			f[string(p.Field)] = clone(p.Value)
		}
		return f, true
	})
	return added, nil
}

// HSetNX stores field only if it is absent.
func (s *HashStore) HSetNX(ctx context.Context, key string, field, value []byte) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	set := false
	s.hashes.Compute(key, func(f fields, ok bool) (fields, bool) {
		if !ok {
			f = make(fields, 1)
		}
		if _, found := f[string(field)]; !found {
			f[string(field)] = clone(value)
			set = true
		}
		return f, true
	})
	return set, nil
}

// HDel removes fields and returns how many existed.
func (s *HashStore) HDel(ctx context.Context, key string, fieldNames ...[]byte) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	removed := 0
	s.hashes.Compute(key, func(f fields, ok bool) (fields, bool) {
		if !ok {
			return nil, false
		}
		for _, name := range fieldNames {
			if _, found := f[string(name)]; found {
				delete(f, string(name))
				removed++
			}
		}
		return f, len(f) > 0
	})
	return removed, nil
}

// HLen returns the number of fields.
func (s *HashStore) HLen(ctx context.Context, key string) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	s.hashes.View(key, func(f fields, _ bool) {
		n = len(f)
	})
	return n, nil
}

// HGetAll returns every field ordered by field bytes.
func (s *HashStore) HGetAll(ctx context.Context, key string) ([]storage.Pair, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var pairs []storage.Pair
	s.hashes.View(key, func(f fields, _ bool) {
		pairs = make([]storage.Pair, 0, len(f))
		for k, v := range f {
			pairs = append(pairs, storage.Pair{Field: []byte(k), Value: clone(v)})
		}
	})
	storage.SortPairs(pairs)
	return pairs, nil
}

// Del removes whole hashes.
func (s *HashStore) Del(ctx context.Context, keys ...string) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if s.hashes.Delete(k) {
			n++
		}
	}
	return n, nil
}

// Exists reports whether the hash has at least one field.
func (s *HashStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	return s.hashes.Has(key), nil
}

// Len returns the number of hashes.
func (s *HashStore) Len() int {
	return s.hashes.Count()
}

// Close drops all data. Later calls return storage.ErrClosed.
func (s *HashStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.hashes.Clear()
	}
	return nil
}
