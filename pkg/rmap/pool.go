package rmap

import (
	"context"

	"github.com/yndnr/rmap-go/pkg/redisconn"
	"github.com/yndnr/rmap-go/pkg/resp"
)

// Conn issues commands on one connection to the store.
// A Conn is used by a single goroutine between Acquire and Release.
type Conn interface {
	Do(ctx context.Context, args ...any) (resp.Value, error)
}

// Pool hands out dedicated connections.
//
// Release is called exactly once per acquired Conn. broken reports that the
// connection may carry stale server state or a transport fault and must not
// be reused.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
	Release(c Conn, broken bool)
}

// PoolOf adapts a redisconn.Pool.
func PoolOf(p *redisconn.Pool) Pool {
	return connPool{p: p}
}

type connPool struct {
	p *redisconn.Pool
}

func (cp connPool) Acquire(ctx context.Context) (Conn, error) {
	c, err := cp.p.Get(ctx)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (cp connPool) Release(c Conn, broken bool) {
	rc, ok := c.(*redisconn.Conn)
	if !ok {
		return
	}
	if broken {
		rc.Discard(errBrokenConn)
	}
	cp.p.Put(rc)
}
