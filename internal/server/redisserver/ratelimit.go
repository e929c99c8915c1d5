package redisserver

import (
	"net"
	"sync"

	"golang.org/x/time/rate"
)

// rateLimiterRegistry keeps one token bucket per client IP.
type rateLimiterRegistry struct {
	limit    int
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
}

func newRateLimiterRegistry(perSecond int) *rateLimiterRegistry {
	return &rateLimiterRegistry{
		limit:    perSecond,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (r *rateLimiterRegistry) getOrCreate(ip string) *rate.Limiter {
	r.mu.RLock()
	l, ok := r.limiters[ip]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[ip]; ok {
		return l
	}
	l = rate.NewLimiter(rate.Limit(r.limit), r.limit)
	r.limiters[ip] = l
	return l
}

// allow reports whether a command from addr may run now.
func (r *rateLimiterRegistry) allow(addr net.Addr) bool {
	ip := addr.String()
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return r.getOrCreate(ip).Allow()
}
