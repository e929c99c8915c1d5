// Package resp implements the RESP2 wire format used by Redis-compatible stores.
//
// The package is shared by both ends of the wire:
//
//   - command.go: reading client commands (array and inline forms) on the server
//   - reply.go: writing replies on the server, reading them on the client
//   - value.go: the decoded reply model
//
// Only the Go standard library is used. Frames are bounded by MaxArrayLen,
// MaxBulkLen and MaxInlineLen to keep a misbehaving peer from exhausting memory.
package resp
