// Package ratelimit bounds how fast a single session can push frames onto
// the browser queue, so one noisy client cannot starve the others sharing
// the process. Built on golang.org/x/time/rate rather than a hand-rolled
// bucket: the router already pulls in enough bespoke concurrency machinery
// without reinventing a well-tested limiter.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// PerSession hands out an independent token-bucket limiter per session key,
// created lazily on first use.
type PerSession struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewPerSession creates a limiter factory allowing rps sustained requests
// per second per session, with burst allowed above that rate.
func NewPerSession(rps float64, burst int) *PerSession {
	return &PerSession{
		rps:      rate.Limit(rps),
		burst:    burst,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a request for key is permitted right now. It never
// blocks: a rejected request should surface as 429 to the caller, not stall
// the HTTP handler.
func (p *PerSession) Allow(key string) bool {
	return p.limiterFor(key).Allow()
}

func (p *PerSession) limiterFor(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(p.rps, p.burst)
		p.limiters[key] = l
	}
	return l
}
