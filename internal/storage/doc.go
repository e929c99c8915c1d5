// Package storage defines the hash storage used by the rmap server.
//
// Two backends implement HashStore:
//
//   - memory.HashStore: sharded in-memory maps (internal/storage/memory)
//   - BadgerStore: durable storage on Badger v3, one key per field
//
// Backends are safe for concurrent use, but multi-command atomicity
// (MULTI/EXEC) is provided by the server, which serializes command execution.
// Hashes never exist empty: removing the last field removes the hash.
package storage
