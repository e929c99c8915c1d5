// Package rmap provides a hash map backed by a remote Redis-compatible store.
//
// The store offers no field-level compare-and-swap. Conditional operations
// (RemoveIf, ReplaceIf, Replace) are built on optimistic transactions:
//
//	WATCH name -> read field -> MULTI -> HDEL/HSET -> EXEC
//
// A nil EXEC reply means another client modified the hash after WATCH; the
// attempt is discarded and the cycle repeats on the same connection. A false
// precondition observed under the watch is returned immediately.
//
// PutIfAbsent uses the native HSETNX and retries only when the existing field
// disappears between HSETNX and the follow-up HGET.
//
// Every conditional operation runs on a dedicated pooled connection, because
// WATCH state belongs to the connection. The connection is released exactly
// once; a live watch or open MULTI is cleared before it returns to the pool.
// Pass-through operations share one ambient connection per Hash.
//
// Hash works on raw bytes. Map[K, V] adds typed keys and values through
// codecs; values are compared by their encoded bytes.
//
// Retries are unbounded by default. WithRetryPolicy bounds them and adds
// backoff; the context is checked before every attempt.
package rmap
