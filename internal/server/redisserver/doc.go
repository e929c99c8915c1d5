// Package redisserver implements a Redis-protocol hash store server.
//
// It speaks RESP2 (pkg/resp) and serves the command subset used by rmap
// clients:
//
//   - connection: PING, AUTH, QUIT
//   - hashes: HGET, HSET, HMSET, HSETNX, HDEL, HEXISTS, HLEN, HKEYS, HVALS, HGETALL
//   - keys: DEL, EXISTS
//   - transactions: WATCH, UNWATCH, MULTI, EXEC, DISCARD
//
// Command execution is serialized by a server-wide lock, so every command and
// every EXEC batch is atomic. A write to a watched key marks each watching
// connection dirty; EXEC on a dirty connection replies with a null array and
// applies nothing.
//
// Each connection runs a small state machine (idle, multi). Commands sent in
// the multi state are queued; a queue-time error (unknown command, wrong
// arity) makes EXEC fail with EXECABORT.
package redisserver
