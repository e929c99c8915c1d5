package redisserver

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/yndnr/rmap-go/internal/storage"
	"github.com/yndnr/rmap-go/pkg/resp"
)

type handlerFunc func(s *Server, ctx context.Context, c *Conn, args [][]byte) resp.Value

// command describes one supported command.
//
// arity counts the command name: a positive value is exact, a negative one
// is a minimum.
type command struct {
	arity   int
	noAuth  bool
	control bool // runs immediately inside MULTI
	handler handlerFunc
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"PING": {arity: -1, noAuth: true, handler: (*Server).cmdPing},
		"AUTH": {arity: -2, noAuth: true, control: true, handler: (*Server).cmdAuth},
		"QUIT": {arity: 1, noAuth: true, control: true, handler: (*Server).cmdQuit},

		"HGET":    {arity: 3, handler: (*Server).cmdHGet},
		"HSET":    {arity: -4, handler: (*Server).cmdHSet},
		"HMSET":   {arity: -4, handler: (*Server).cmdHMSet},
		"HSETNX":  {arity: 4, handler: (*Server).cmdHSetNX},
		"HDEL":    {arity: -3, handler: (*Server).cmdHDel},
		"HEXISTS": {arity: 3, handler: (*Server).cmdHExists},
		"HLEN":    {arity: 2, handler: (*Server).cmdHLen},
		"HKEYS":   {arity: 2, handler: (*Server).cmdHKeys},
		"HVALS":   {arity: 2, handler: (*Server).cmdHVals},
		"HGETALL": {arity: 2, handler: (*Server).cmdHGetAll},
		"DEL":     {arity: -2, handler: (*Server).cmdDel},
		"EXISTS":  {arity: -2, handler: (*Server).cmdExists},

		"WATCH":   {arity: -2, control: true, handler: (*Server).cmdWatch},
		"UNWATCH": {arity: 1, handler: (*Server).cmdUnwatch},
		"MULTI":   {arity: 1, control: true, handler: (*Server).cmdMulti},
		"EXEC":    {arity: 1, control: true, handler: (*Server).cmdExec},
		"DISCARD": {arity: 1, control: true, handler: (*Server).cmdDiscard},
	}
}

func (cmd command) arityOK(n int) bool {
	if cmd.arity >= 0 {
		return n == cmd.arity
	}
	return n >= -cmd.arity
}

// dispatch validates and runs (or queues) one command.
func (s *Server) dispatch(ctx context.Context, c *Conn, args [][]byte) resp.Value {
	name := resp.NormalizeCommandName(args[0])
	cmd, ok := commands[name]
	if !ok {
		s.metrics.command(name, resultError)
		return s.rejectQueued(c, fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(name)))
	}
	if !cmd.noAuth && !c.authed {
		s.metrics.command(name, resultError)
		return s.rejectQueued(c, "NOAUTH Authentication required.")
	}
	if !cmd.arityOK(len(args)) {
		s.metrics.command(name, resultError)
		return s.rejectQueued(c, wrongArgs(name))
	}
	if s.limiter != nil && !s.limiter.allow(c.RemoteAddr()) {
		s.metrics.command(name, resultLimited)
		return resp.ErrorValue("ERR rate limit exceeded")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.inMulti() && !cmd.control {
		c.queue = append(c.queue, args)
		s.metrics.command(name, resultQueued)
		return resp.Simple("QUEUED")
	}

	reply := cmd.handler(s, ctx, c, args)
	s.metrics.command(name, resultOf(reply))
	return reply
}

// rejectQueued returns an error reply and, inside MULTI, poisons the
// transaction so EXEC aborts.
func (s *Server) rejectQueued(c *Conn, msg string) resp.Value {
	s.mu.Lock()
	if c.inMulti() {
		c.queueErr = true
	}
	s.mu.Unlock()
	return resp.ErrorValue(msg)
}

func wrongArgs(name string) string {
	return fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name))
}

func storeError(err error) resp.Value {
	return resp.ErrorValue("ERR storage: " + err.Error())
}

// touch marks every connection watching key as dirty.
func (s *Server) touch(key string) {
	for w := range s.watchers[key] {
		w.watchDirty = true
	}
}

func (s *Server) cmdPing(_ context.Context, _ *Conn, args [][]byte) resp.Value {
	switch len(args) {
	case 1:
		return resp.Simple("PONG")
	case 2:
		return resp.Bulk(args[1])
	default:
		return resp.ErrorValue(wrongArgs("PING"))
	}
}

func (s *Server) cmdAuth(_ context.Context, c *Conn, args [][]byte) resp.Value {
	if len(args) > 3 {
		return resp.ErrorValue("ERR syntax error")
	}
	if !s.authRequired() {
		return resp.ErrorValue("ERR AUTH <password> called without any password configured for the default user. Are you sure your configuration is correct?")
	}

	password := args[len(args)-1]
	userOK := len(args) == 2 || string(args[1]) == "default"
	if !userOK || !s.checkPassword(password) {
		s.logger.Warn("authentication failed", "conn", c.id, "remote", c.RemoteAddr())
		return resp.ErrorValue("WRONGPASS invalid username-password pair or user is disabled.")
	}
	c.authed = true
	return resp.Simple("OK")
}

func (s *Server) authRequired() bool {
	return s.pwHash != nil || s.cfg.Password != ""
}

func (s *Server) checkPassword(password []byte) bool {
	if s.pwHash != nil {
		return s.pwHash.Verify(password)
	}
	return subtle.ConstantTimeCompare(password, []byte(s.cfg.Password)) == 1
}

func (s *Server) cmdQuit(_ context.Context, c *Conn, _ [][]byte) resp.Value {
	c.quit = true
	return resp.Simple("OK")
}

func (s *Server) cmdHGet(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	v, err := s.store.HGet(ctx, string(args[1]), args[2])
	if err != nil {
		return storeError(err)
	}
	return resp.Bulk(v)
}

func (s *Server) hset(ctx context.Context, args [][]byte) (int, resp.Value, bool) {
	if len(args)%2 != 0 {
		return 0, resp.ErrorValue(wrongArgs(string(args[0]))), false
	}
	key := string(args[1])
	pairs := make([]storage.Pair, 0, (len(args)-2)/2)
	for i := 2; i < len(args); i += 2 {
		pairs = append(pairs, storage.Pair{Field: args[i], Value: args[i+1]})
	}
	n, err := s.store.HSet(ctx, key, pairs...)
	if err != nil {
		return 0, storeError(err), false
	}
	s.touch(key)
	return n, resp.Value{}, true
}

func (s *Server) cmdHSet(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	n, errReply, ok := s.hset(ctx, args)
	if !ok {
		return errReply
	}
	return resp.Integer(int64(n))
}

func (s *Server) cmdHMSet(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	if _, errReply, ok := s.hset(ctx, args); !ok {
		return errReply
	}
	return resp.Simple("OK")
}

func (s *Server) cmdHSetNX(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	key := string(args[1])
	set, err := s.store.HSetNX(ctx, key, args[2], args[3])
	if err != nil {
		return storeError(err)
	}
	if !set {
		return resp.Integer(0)
	}
	s.touch(key)
	return resp.Integer(1)
}

func (s *Server) cmdHDel(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	key := string(args[1])
	n, err := s.store.HDel(ctx, key, args[2:]...)
	if err != nil {
		return storeError(err)
	}
	if n > 0 {
		s.touch(key)
	}
	return resp.Integer(int64(n))
}

func (s *Server) cmdHExists(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	ok, err := s.store.HExists(ctx, string(args[1]), args[2])
	if err != nil {
		return storeError(err)
	}
	if ok {
		return resp.Integer(1)
	}
	return resp.Integer(0)
}

func (s *Server) cmdHLen(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	n, err := s.store.HLen(ctx, string(args[1]))
	if err != nil {
		return storeError(err)
	}
	return resp.Integer(int64(n))
}

func (s *Server) hgetall(ctx context.Context, key []byte, keys, vals bool) resp.Value {
	pairs, err := s.store.HGetAll(ctx, string(key))
	if err != nil {
		return storeError(err)
	}
	out := make([]resp.Value, 0, 2*len(pairs))
	for _, p := range pairs {
		if keys {
			out = append(out, resp.Bulk(p.Field))
		}
		if vals {
			out = append(out, resp.Bulk(p.Value))
		}
	}
	return resp.Array(out...)
}

func (s *Server) cmdHKeys(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	return s.hgetall(ctx, args[1], true, false)
}

func (s *Server) cmdHVals(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	return s.hgetall(ctx, args[1], false, true)
}

func (s *Server) cmdHGetAll(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	return s.hgetall(ctx, args[1], true, true)
}

func (s *Server) cmdDel(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	var total int64
	for _, k := range args[1:] {
		key := string(k)
		n, err := s.store.Del(ctx, key)
		if err != nil {
			return storeError(err)
		}
		if n > 0 {
			s.touch(key)
			total += int64(n)
		}
	}
	return resp.Integer(total)
}

func (s *Server) cmdExists(ctx context.Context, _ *Conn, args [][]byte) resp.Value {
	var total int64
	for _, k := range args[1:] {
		ok, err := s.store.Exists(ctx, string(k))
		if err != nil {
			return storeError(err)
		}
		if ok {
			total++
		}
	}
	return resp.Integer(total)
}
