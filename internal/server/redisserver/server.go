package redisserver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yndnr/rmap-go/internal/storage"
	"github.com/yndnr/rmap-go/pkg/passwd"
	"github.com/yndnr/rmap-go/pkg/resp"
)

var (
	ErrAlreadyStarted = errors.New("redisserver: already started")
	ErrNilStore       = errors.New("redisserver: store is required")
)

// Config holds the Redis server configuration.
type Config struct {
	// Address to listen on. Port 0 picks a free port.
	Address string
	// Password enables AUTH. Empty means every connection is authenticated.
	Password string
	// PasswordHash enables AUTH against an Argon2id hash instead of a
	// plaintext password. It takes precedence over Password.
	PasswordHash string
	// TLSConfig serves TLS instead of plaintext when set.
	TLSConfig *tls.Config
	// ReadTimeout is the timeout for reading a command once its first byte arrived.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing a response.
	WriteTimeout time.Duration
	// IdleTimeout closes connections that send nothing for this long.
	IdleTimeout time.Duration
	// RateLimit is the maximum number of commands per second per IP.
	// Set to 0 to disable rate limiting.
	RateLimit int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:      "127.0.0.1:6379",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  5 * time.Minute,
		RateLimit:    0,
	}
}

// Server serves hash commands over RESP.
type Server struct {
	cfg     *Config
	store   storage.HashStore
	logger  *slog.Logger
	limiter *rateLimiterRegistry
	metrics *metrics
	pwHash  *passwd.Hash

	// mu serializes command execution. watchers and every Conn's
	// transaction state are guarded by it as well.
	mu       sync.Mutex
	watchers map[string]map[*Conn]struct{}

	ln      net.Listener
	running atomic.Bool
	wg      sync.WaitGroup

	connMu sync.Mutex
	conns  map[*Conn]struct{}
}

// New creates a server over store.
func New(cfg *Config, store storage.HashStore, logger *slog.Logger) (*Server, error) {
	if store == nil {
		return nil, ErrNilStore
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		logger:   logger.With("component", "redisserver"),
		watchers: make(map[string]map[*Conn]struct{}),
		conns:    make(map[*Conn]struct{}),
	}
	if cfg.PasswordHash != "" {
		h, err := passwd.Parse(cfg.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("redisserver: password_hash: %w", err)
		}
		s.pwHash = h
	}
	if cfg.RateLimit > 0 {
		s.limiter = newRateLimiterRegistry(cfg.RateLimit)
	}
	return s, nil
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	var (
		ln  net.Listener
		err error
	)
	if s.cfg.TLSConfig != nil {
		ln, err = tls.Listen("tcp", s.cfg.Address, s.cfg.TLSConfig)
	} else {
		ln, err = net.Listen("tcp", s.cfg.Address)
	}
	if err != nil {
		s.running.Store(false)
		return fmt.Errorf("redisserver: listen %s: %w", s.cfg.Address, err)
	}
	s.ln = ln
	s.logger.Info("redis server listening", "address", ln.Addr().String(), "tls", s.cfg.TLSConfig != nil)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.acceptLoop(ctx, ln); err != nil && s.running.Load() {
			s.logger.Error("redis server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown stops accepting, closes open connections and waits for their
// goroutines to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	var firstErr error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			firstErr = err
		}
	}

	s.connMu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return firstErr
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			if !s.running.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		c := newConn(nc, s.logger)
		if !s.track(c) {
			_ = c.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(c)
			s.serveConn(ctx, c)
		}()
	}
}

func (s *Server) track(c *Conn) bool {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if !s.running.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	s.metrics.connOpened()
	return true
}

func (s *Server) untrack(c *Conn) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
	s.metrics.connClosed()

	s.mu.Lock()
	s.unwatchAll(c)
	s.mu.Unlock()
}

func (s *Server) serveConn(ctx context.Context, c *Conn) {
	defer c.Close()

	readTimeout := s.cfg.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	writeTimeout := s.cfg.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}
	idleTimeout := s.cfg.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 5 * time.Minute
	}

	c.authed = !s.authRequired()
	s.logger.Debug("connection opened", "conn", c.id, "remote", c.RemoteAddr())

	for {
		// The first byte may take up to the idle timeout.
		if err := c.netConn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return
		}
		if _, err := c.br.Peek(1); err != nil {
			s.logReadError(c, err)
			return
		}

		// The rest of the command must arrive within the read timeout.
		if err := c.netConn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return
		}

		args, err := resp.ReadCommand(c.br)
		if err != nil {
			if errors.Is(err, io.EOF) || isTimeout(err) {
				s.logReadError(c, err)
				return
			}
			msg := "ERR protocol error: " + err.Error()
			if errors.Is(err, resp.ErrLimitExceeded) {
				s.logger.Warn("protocol limit exceeded", "conn", c.id, "remote", c.RemoteAddr(), "error", err)
				msg = "ERR protocol limit exceeded"
			}
			_ = c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = resp.WriteError(c.bw, msg)
			_ = c.bw.Flush()
			return
		}
		if len(args) == 0 {
			continue
		}

		reply := s.dispatch(ctx, c, args)

		if err := c.netConn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			return
		}
		if err := resp.WriteValue(c.bw, reply); err != nil {
			return
		}
		if err := c.bw.Flush(); err != nil {
			return
		}
		if c.quit {
			return
		}
	}
}

func (s *Server) logReadError(c *Conn, err error) {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		s.logger.Debug("connection closed", "conn", c.id, "remote", c.RemoteAddr())
	case isTimeout(err):
		s.logger.Debug("connection timed out", "conn", c.id, "remote", c.RemoteAddr())
	default:
		s.logger.Debug("connection read error", "conn", c.id, "remote", c.RemoteAddr(), "error", err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
