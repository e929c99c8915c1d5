package redisconn

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/rmap-go/pkg/resp"
)

// afterFunc is context.AfterFunc, replaceable in tests.
var afterFunc = context.AfterFunc

// ErrUnsupportedArg is returned by Do for argument types it cannot encode.
var ErrUnsupportedArg = errors.New("redisconn: unsupported argument type")

// Conn is a single connection to the store.
type Conn struct {
	id      string
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer

	// readTimeout applies when the caller's context carries no deadline.
	readTimeout time.Duration

	err       error
	createdAt time.Time
	usedAt    time.Time
	inUse     bool
}

// Dial opens a connection to addr.
func Dial(ctx context.Context, addr string, dialTimeout, readTimeout time.Duration) (*Conn, error) {
	d := net.Dialer{Timeout: dialTimeout}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("redisconn: dial %s: %w", addr, err)
	}
	return newConn(nc, readTimeout), nil
}

// DialTLS opens a TLS connection to addr and completes the handshake before
// returning.
func DialTLS(ctx context.Context, addr string, cfg *tls.Config, dialTimeout, readTimeout time.Duration) (*Conn, error) {
	d := tls.Dialer{NetDialer: &net.Dialer{Timeout: dialTimeout}, Config: cfg}
	nc, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("redisconn: dial tls %s: %w", addr, err)
	}
	return newConn(nc, readTimeout), nil
}

func newConn(nc net.Conn, readTimeout time.Duration) *Conn {
	now := time.Now()
	return &Conn{
		id:          ulid.Make().String(),
		netConn:     nc,
		br:          bufio.NewReader(nc),
		bw:          bufio.NewWriter(nc),
		readTimeout: readTimeout,
		createdAt:   now,
		usedAt:      now,
	}
}

// ID returns a unique identifier for log correlation.
func (c *Conn) ID() string {
	return c.id
}

// Err returns the sticky transport fault, if any.
func (c *Conn) Err() error {
	return c.err
}

// Discard marks the connection unusable with err so the pool closes it on Put.
// It is used when connection-scoped server state could not be cleaned up.
func (c *Conn) Discard(err error) {
	if c.err == nil {
		c.fail(err)
	}
}

// Close closes the underlying network connection.
func (c *Conn) Close() error {
	return c.netConn.Close()
}

// Do sends one command and reads its reply.
//
// Arguments may be string, []byte, int, int64 or uint64. An error reply from
// the server is returned both as the Value and as a *resp.Error.
func (c *Conn) Do(ctx context.Context, args ...any) (resp.Value, error) {
	if c.err != nil {
		return resp.Value{}, c.err
	}
	if err := ctx.Err(); err != nil {
		return resp.Value{}, err
	}

	encoded, err := encodeArgs(args)
	if err != nil {
		return resp.Value{}, err
	}

	if dl, ok := ctx.Deadline(); ok {
		err = c.netConn.SetDeadline(dl)
	} else if c.readTimeout > 0 {
		err = c.netConn.SetDeadline(time.Now().Add(c.readTimeout))
	} else {
		err = c.netConn.SetDeadline(time.Time{})
	}
	if err != nil {
		return resp.Value{}, c.fail(err)
	}

	// Cancellation without a deadline interrupts blocked I/O.
	fired := make(chan struct{})
	stop := afterFunc(ctx, func() {
		defer close(fired)
		_ = c.netConn.SetDeadline(time.Now())
	})
	defer func() {
		if !stop() {
			// The callback already started. Its deadline must not reach
			// the next command on this connection.
			<-fired
			_ = c.netConn.SetDeadline(time.Time{})
		}
	}()

	if err := resp.WriteCommand(c.bw, encoded); err != nil {
		return resp.Value{}, c.fail(err)
	}
	if err := c.bw.Flush(); err != nil {
		return resp.Value{}, c.fail(err)
	}

	v, err := resp.ReadReply(c.br)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		return resp.Value{}, c.fail(err)
	}
	c.usedAt = time.Now()

	if rerr := v.Err(); rerr != nil {
		return v, rerr
	}
	return v, nil
}

func (c *Conn) fail(err error) error {
	c.err = fmt.Errorf("redisconn: conn %s: %w", c.id, err)
	return c.err
}

func encodeArgs(args []any) ([][]byte, error) {
	out := make([][]byte, 0, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case string:
			out = append(out, []byte(v))
		case []byte:
			out = append(out, v)
		case int:
			out = append(out, strconv.AppendInt(nil, int64(v), 10))
		case int64:
			out = append(out, strconv.AppendInt(nil, v, 10))
		case uint64:
			out = append(out, strconv.AppendUint(nil, v, 10))
		default:
			return nil, fmt.Errorf("%w: arg %d is %T", ErrUnsupportedArg, i, a)
		}
	}
	return out, nil
}
