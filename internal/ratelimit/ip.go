package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter hands out one token bucket per client IP. Buckets idle
// for longer than staleAfter are dropped by a periodic sweep.
type IPLimiter struct {
	mu         sync.Mutex
	limiters   map[string]*ipEntry
	limit      rate.Limit
	burst      int
	staleAfter time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewIPLimiter(perMinute int) *IPLimiter {
	l := &IPLimiter{
		limiters:   make(map[string]*ipEntry),
		limit:      rate.Limit(float64(perMinute) / 60.0),
		burst:      perMinute,
		staleAfter: 10 * time.Minute,
		stop:       make(chan struct{}),
	}
	go l.sweep()
	return l
}

// Allow reports whether ip may proceed.
func (l *IPLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = time.Now()
	return entry.limiter.Allow()
}

// Close stops the background sweep.
func (l *IPLimiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *IPLimiter) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-l.staleAfter)
		l.mu.Lock()
		for ip, entry := range l.limiters {
			if entry.lastSeen.Before(cutoff) {
				delete(l.limiters, ip)
			}
		}
		l.mu.Unlock()
	}
}
