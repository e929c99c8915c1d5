package redisserver

import (
	"context"

	"github.com/yndnr/rmap-go/pkg/resp"
)

func (s *Server) cmdWatch(_ context.Context, c *Conn, args [][]byte) resp.Value {
	if c.inMulti() {
		return resp.ErrorValue("ERR WATCH inside MULTI is not allowed")
	}
	for _, k := range args[1:] {
		key := string(k)
		if _, ok := c.watched[key]; ok {
			continue
		}
		c.watched[key] = struct{}{}
		set, ok := s.watchers[key]
		if !ok {
			set = make(map[*Conn]struct{})
			s.watchers[key] = set
		}
		set[c] = struct{}{}
	}
	return resp.Simple("OK")
}

func (s *Server) cmdUnwatch(_ context.Context, c *Conn, _ [][]byte) resp.Value {
	s.unwatchAll(c)
	return resp.Simple("OK")
}

// unwatchAll drops every watch of c and clears its dirty flag.
// The caller holds s.mu.
func (s *Server) unwatchAll(c *Conn) {
	for key := range c.watched {
		if set, ok := s.watchers[key]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(s.watchers, key)
			}
		}
	}
	clear(c.watched)
	c.watchDirty = false
}

func (s *Server) cmdMulti(ctx context.Context, c *Conn, _ [][]byte) resp.Value {
	if c.inMulti() {
		return resp.ErrorValue("ERR MULTI calls can not be nested")
	}
	if err := c.tx.Event(ctx, eventMulti); err != nil {
		return resp.ErrorValue("ERR " + err.Error())
	}
	return resp.Simple("OK")
}

func (s *Server) cmdDiscard(ctx context.Context, c *Conn, _ [][]byte) resp.Value {
	if !c.inMulti() {
		return resp.ErrorValue("ERR DISCARD without MULTI")
	}
	c.endMulti(ctx, eventDiscard)
	s.unwatchAll(c)
	return resp.Simple("OK")
}

// cmdExec runs the queued commands back to back under s.mu. A dirty watch
// yields a null array and nothing runs.
func (s *Server) cmdExec(ctx context.Context, c *Conn, _ [][]byte) resp.Value {
	if !c.inMulti() {
		return resp.ErrorValue("ERR EXEC without MULTI")
	}

	queue, queueErr, dirty := c.queue, c.queueErr, c.watchDirty
	c.endMulti(ctx, eventExec)
	s.unwatchAll(c)

	if queueErr {
		s.metrics.execAborted(abortQueueError)
		return resp.ErrorValue("EXECABORT Transaction discarded because of previous errors.")
	}
	if dirty {
		s.metrics.execAborted(abortWatch)
		s.logger.Debug("exec aborted by watch", "conn", c.id, "queued", len(queue))
		return resp.NullArray()
	}

	results := make([]resp.Value, 0, len(queue))
	for _, args := range queue {
		name := resp.NormalizeCommandName(args[0])
		cmd := commands[name]
		results = append(results, cmd.handler(s, ctx, c, args))
	}
	return resp.Array(results...)
}
