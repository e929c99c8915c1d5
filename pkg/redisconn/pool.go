package redisconn

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Common errors
var (
	ErrPoolClosed   = errors.New("redisconn: pool closed")
	ErrAddrRequired = errors.New("redisconn: addr is required")
)

// Options configures a Pool.
type Options struct {
	// Addr is the store address (host:port).
	Addr string

	// TLSConfig enables TLS when set.
	TLSConfig *tls.Config

	// Password is sent with AUTH on every new connection when set.
	Password string

	// DialTimeout bounds connection establishment (default: 5s).
	DialTimeout time.Duration

	// ReadTimeout bounds each command when the caller's context has no deadline
	// (default: 0, no timeout).
	ReadTimeout time.Duration

	// MaxActive caps connections checked out at once; idle connections do not
	// count (default: 0, unlimited).
	MaxActive int

	// MaxIdle caps idle connections kept for reuse (default: 8).
	MaxIdle int

	// IdleTimeout closes idle connections older than this on checkout (default: 5m).
	IdleTimeout time.Duration

	// Logger is the structured logger (default: slog.Default()).
	Logger *slog.Logger
}

// DefaultOptions returns the default pool options for addr.
func DefaultOptions(addr string) Options {
	return Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
		MaxIdle:     8,
		IdleTimeout: 5 * time.Minute,
	}
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Active    int
	Idle      int
	Dials     uint64
	Discarded uint64
}

// Pool hands out dedicated connections. Get and Put must be paired.
type Pool struct {
	opts   Options
	logger *slog.Logger

	// sem holds one token per checked-out connection when MaxActive > 0.
	sem chan struct{}

	mu     sync.Mutex
	idle   []*Conn
	active int
	closed bool

	dials     atomic.Uint64
	discarded atomic.Uint64

	metricsDials     prometheus.Counter
	metricsDiscarded prometheus.Counter
}

// NewPool creates a pool. No connection is opened until the first Get.
func NewPool(opts Options) (*Pool, error) {
	if opts.Addr == "" {
		return nil, ErrAddrRequired
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 8
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Pool{
		opts:   opts,
		logger: opts.Logger.With("component", "redisconn.pool", "addr", opts.Addr),
	}
	if opts.MaxActive > 0 {
		p.sem = make(chan struct{}, opts.MaxActive)
	}
	return p, nil
}

// Get returns a dedicated connection, dialing a new one if no idle connection
// is available. It blocks while MaxActive connections are out.
func (p *Pool) Get(ctx context.Context) (*Conn, error) {
	if p.sem != nil {
		select {
		case p.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("redisconn: wait for connection: %w", ctx.Err())
		}
	}

	c, err := p.get(ctx)
	if err != nil {
		p.releaseToken()
		return nil, err
	}
	c.inUse = true
	return c, nil
}

func (p *Pool) get(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	for len(p.idle) > 0 {
		n := len(p.idle) - 1
		c := p.idle[n]
		p.idle[n] = nil
		p.idle = p.idle[:n]

		if time.Since(c.usedAt) > p.opts.IdleTimeout {
			p.mu.Unlock()
			p.discard(c, "idle timeout")
			p.mu.Lock()
			continue
		}
		p.active++
		p.mu.Unlock()
		return c, nil
	}
	p.active++
	p.mu.Unlock()

	c, err := p.dial(ctx)
	if err != nil {
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
		return nil, err
	}
	return c, nil
}

func (p *Pool) dial(ctx context.Context) (*Conn, error) {
	var (
		c   *Conn
		err error
	)
	if p.opts.TLSConfig != nil {
		c, err = DialTLS(ctx, p.opts.Addr, p.opts.TLSConfig, p.opts.DialTimeout, p.opts.ReadTimeout)
	} else {
		c, err = Dial(ctx, p.opts.Addr, p.opts.DialTimeout, p.opts.ReadTimeout)
	}
	if err != nil {
		return nil, err
	}
	p.dials.Add(1)
	if p.metricsDials != nil {
		p.metricsDials.Inc()
	}

	if p.opts.Password != "" {
		if _, err := c.Do(ctx, "AUTH", p.opts.Password); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("redisconn: auth: %w", err)
		}
	}

	p.logger.Debug("connection opened", "conn_id", c.ID())
	return c, nil
}

// Put returns a connection obtained from Get. Faulted connections are closed.
func (p *Pool) Put(c *Conn) {
	if c == nil {
		return
	}
	if !c.inUse {
		p.logger.Warn("connection returned twice", "conn_id", c.ID())
		return
	}
	c.inUse = false
	defer p.releaseToken()

	p.mu.Lock()
	p.active--
	if c.Err() != nil || p.closed || len(p.idle) >= p.opts.MaxIdle {
		p.mu.Unlock()
		reason := "idle pool full"
		switch {
		case c.Err() != nil:
			reason = "transport fault"
		case p.closed:
			reason = "pool closed"
		}
		p.discard(c, reason)
		return
	}
	p.idle = append(p.idle, c)
	p.mu.Unlock()
}

func (p *Pool) discard(c *Conn, reason string) {
	p.discarded.Add(1)
	if p.metricsDiscarded != nil {
		p.metricsDiscarded.Inc()
	}
	p.logger.Debug("connection closed", "conn_id", c.ID(), "reason", reason, "error", c.Err())
	_ = c.Close()
}

func (p *Pool) releaseToken() {
	if p.sem != nil {
		<-p.sem
	}
}

// Stats returns current pool statistics.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Active:    p.active,
		Idle:      len(p.idle),
		Dials:     p.dials.Load(),
		Discarded: p.discarded.Load(),
	}
}

// Close closes idle connections. Connections still checked out are closed
// when they are returned.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, c := range idle {
		p.discarded.Add(1)
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RegisterMetrics registers pool metrics with Prometheus.
//
// This should be called once during initialization.
// Returns the pool for method chaining.
func (p *Pool) RegisterMetrics(reg prometheus.Registerer) *Pool {
	p.metricsDials = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rmap",
		Subsystem: "pool",
		Name:      "dials_total",
		Help:      "Connections opened to the store",
	})
	p.metricsDiscarded = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "rmap",
		Subsystem: "pool",
		Name:      "discarded_total",
		Help:      "Connections closed instead of reused (faults, idle timeout, overflow)",
	})
	active := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "rmap",
		Subsystem: "pool",
		Name:      "active_connections",
		Help:      "Connections currently checked out",
	}, func() float64 { return float64(p.Stats().Active) })
	idle := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "rmap",
		Subsystem: "pool",
		Name:      "idle_connections",
		Help:      "Connections waiting for reuse",
	}, func() float64 { return float64(p.Stats().Idle) })

	reg.MustRegister(p.metricsDials, p.metricsDiscarded, active, idle)
	return p
}
