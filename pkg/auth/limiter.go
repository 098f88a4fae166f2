package auth

import (
	"sync"

	"golang.org/x/time/rate"
)

// LimiterPool keeps one token bucket per key (user id). Zero or negative
// config values fall back to conservative defaults.
type LimiterPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   float64
	burst int
}

// NewLimiterPool creates a pool issuing limiters at rps with the given burst.
func NewLimiterPool(rps float64, burst int) *LimiterPool {
	return &LimiterPool{m: make(map[string]*rate.Limiter), rps: rps, burst: burst}
}

func (p *LimiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	rps := p.rps
	if rps <= 0 {
		rps = 20
	}
	burst := p.burst
	if burst <= 0 {
		burst = 40
	}
	l := rate.NewLimiter(rate.Limit(rps), burst)
	p.m[key] = l
	return l
}

// Allow reports whether one event from key may proceed now.
func (p *LimiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}
