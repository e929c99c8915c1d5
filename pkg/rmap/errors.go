package rmap

import (
	"errors"

	"github.com/yndnr/rmap-go/pkg/resp"
)

// Common errors
var (
	// ErrClosed is returned by every operation on a closed Hash, Map or Client.
	ErrClosed = errors.New("rmap: closed")

	// ErrRetriesExhausted is returned when a bounded RetryPolicy runs out of
	// attempts while transactions keep conflicting.
	ErrRetriesExhausted = errors.New("rmap: retries exhausted")

	// ErrNilPool is returned by New when no pool is supplied.
	ErrNilPool = errors.New("rmap: nil pool")

	errBrokenConn   = errors.New("rmap: connection state could not be reset")
	errWindowClosed = errors.New("rmap: watch window already used")
	errTxnDone      = errors.New("rmap: transaction already committed")
)

// isReplyError reports whether err is a server error reply. Anything else
// coming out of Conn.Do is treated as a transport fault.
func isReplyError(err error) bool {
	var re *resp.Error
	return errors.As(err, &re)
}
