// Package cmap provides a concurrent map sharded by key hash.
//
// Features:
//
//   - Sharding: power-of-two shard count, murmur3 shard selection
//   - Fine-grained Locking: per-shard RWMutex
//   - Compute/View: read-modify-write and read callbacks run under the shard lock
//
// Usage:
//
//	m := cmap.New[string, fields]()
//	m.Compute("inventory", func(f fields, ok bool) (fields, bool) {
//		...
//	})
//
// Thread Safety:
//
// All operations are thread-safe. Callbacks passed to Compute and View must
// not call back into the same map.
package cmap
