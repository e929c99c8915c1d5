// Package main provides the entry point for rmap-server.
//
// rmap-server is a Redis-protocol hash store. It serves the hash commands
// plus WATCH/MULTI/EXEC, which is everything the rmap client needs for its
// atomic map operations, and nothing else.
//
// Usage:
//
//	rmap-server [flags]
//	rmap-server --config /etc/rmap/server.yaml --backend badger
//	rmap-server hash-password s3cret
//
// hash-password prints an Argon2id hash for server.redis.password_hash.
//
// Configuration is read from the file, then RMAP_* environment variables,
// then flags. SIGHUP or an edit to the config file reloads the log level.
package main
