package cmap

// Compute runs fn under the key's shard write lock. fn receives the current
// value and whether it exists; it returns the new value and whether to keep
// it. Returning keep=false deletes the key.
//
// The value passed to fn may be mutated in place: no other goroutine can
// observe it until Compute returns.
func (m *Map[K, V]) Compute(key K, fn func(value V, exists bool) (V, bool)) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	existing, exists := shard.items[key]
	value, keep := fn(existing, exists)
	if keep {
		shard.items[key] = value
	} else if exists {
		delete(shard.items, key)
	}
}

// View runs fn under the key's shard read lock. fn must not retain or modify
// reference-typed values.
func (m *Map[K, V]) View(key K, fn func(value V, exists bool)) {
	shard := m.getShard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	v, ok := shard.items[key]
	fn(v, ok)
}

// Range iterates over all key-value pairs.
//
// The callback returns false to stop iteration.
// Note: This acquires locks shard by shard, so the view may not be consistent.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for _, shard := range m.shards {
		shard.mu.RLock()
		for k, v := range shard.items {
			if !fn(k, v) {
				shard.mu.RUnlock()
				return
			}
		}
		shard.mu.RUnlock()
	}
}

// Keys returns all keys.
func (m *Map[K, V]) Keys() []K {
	keys := make([]K, 0, m.Count())
	m.Range(func(key K, _ V) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}
