package redisserver

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/looplab/fsm"
	"github.com/oklog/ulid/v2"
)

// Transaction states and events of a connection.
const (
	stateIdle  = "idle"
	stateMulti = "multi"

	eventMulti   = "multi"
	eventExec    = "exec"
	eventDiscard = "discard"
)

// Conn is a single client connection.
//
// Fields below netConn are only touched by the connection's own goroutine,
// except watched, watchDirty and queue which are guarded by Server.mu.
type Conn struct {
	id      string
	netConn net.Conn
	br      *bufio.Reader
	bw      *bufio.Writer
	closed  atomic.Bool

	authed bool
	quit   bool

	tx         *fsm.FSM
	queue      [][][]byte
	queueErr   bool
	watched    map[string]struct{}
	watchDirty bool
}

func newConn(nc net.Conn, logger *slog.Logger) *Conn {
	c := &Conn{
		id:      ulid.Make().String(),
		netConn: nc,
		br:      bufio.NewReader(nc),
		bw:      bufio.NewWriter(nc),
		watched: make(map[string]struct{}),
	}
	c.tx = fsm.NewFSM(
		stateIdle,
		fsm.Events{
			{Name: eventMulti, Src: []string{stateIdle}, Dst: stateMulti},
			{Name: eventExec, Src: []string{stateMulti}, Dst: stateIdle},
			{Name: eventDiscard, Src: []string{stateMulti}, Dst: stateIdle},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				logger.Debug("transaction state", "conn", c.id, "event", e.Event, "from", e.Src, "to", e.Dst)
			},
		},
	)
	return c
}

// Close closes the network connection once.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.netConn.Close()
}

// RemoteAddr returns the client address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.netConn.RemoteAddr()
}

func (c *Conn) inMulti() bool {
	return c.tx.Is(stateMulti)
}

// endMulti leaves the multi state and drops the queue.
func (c *Conn) endMulti(ctx context.Context, event string) {
	c.queue = nil
	c.queueErr = false
	_ = c.tx.Event(ctx, event)
}
