// Package redisconn provides client connections to a Redis-compatible store.
//
// It contains two pieces:
//
//   - conn.go: a single connection speaking RESP2, honoring context deadlines
//   - pool.go: a bounded pool handing out dedicated connections
//
// A Conn carries connection-scoped server state (WATCH, MULTI), so it is not
// safe for concurrent use: exactly one goroutine may own it between Get and Put.
//
// Transport faults are sticky. Once Do fails on the wire the Conn reports the
// fault from Err and every later Do; the pool closes such connections on Put
// instead of handing them out again. Server error replies (resp.Error) are not
// transport faults and leave the connection usable.
package redisconn
