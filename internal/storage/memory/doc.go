// Package memory provides the in-memory hash store.
//
// Each hash is a field map held in a sharded concurrent map (pkg/cmap).
// Mutations run under the owning shard's write lock, so every HashStore
// method is atomic on its own. Data is lost when the process exits.
package memory
