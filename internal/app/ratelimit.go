package app

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter guards admission per source address: a token bucket bounds the
// request rate, and an independent counter caps simultaneous live sockets
// from one address. Both are consulted before any room involvement.
type RateLimiter struct {
	ratePerSec rate.Limit
	burst      int
	maxConns   int

	mu      sync.Mutex
	buckets map[string]*addrBucket
}

type addrBucket struct {
	limiter  *rate.Limiter
	conns    int
	lastSeen time.Time
}

// NewRateLimiter allows up to burst admissions at once, refilled at
// ratePerSec, and at most maxConns simultaneous connections per address.
func NewRateLimiter(ratePerSec float64, burst, maxConns int) *RateLimiter {
	return &RateLimiter{
		ratePerSec: rate.Limit(ratePerSec),
		burst:      burst,
		maxConns:   maxConns,
		buckets:    make(map[string]*addrBucket),
	}
}

// Admit consumes one token for addr, reporting whether the attempt is
// within the rate budget.
func (l *RateLimiter) Admit(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bucketLocked(addr).limiter.Allow()
}

// Acquire registers a live connection for addr, failing when the address
// already holds its maximum of simultaneous sockets.
func (l *RateLimiter) Acquire(addr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	b := l.bucketLocked(addr)
	if b.conns >= l.maxConns {
		return false
	}
	b.conns++
	return true
}

// Release drops a live connection for addr. Safe to call after Prune.
func (l *RateLimiter) Release(addr string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[addr]; ok && b.conns > 0 {
		b.conns--
	}
}

// Connections reports the live connection count for addr.
func (l *RateLimiter) Connections(addr string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[addr]; ok {
		return b.conns
	}
	return 0
}

// Prune forgets buckets with no live connections that have been idle longer
// than maxIdle, so one-off addresses do not accumulate forever.
func (l *RateLimiter) Prune(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for addr, b := range l.buckets {
		if b.conns == 0 && b.lastSeen.Before(cutoff) {
			delete(l.buckets, addr)
			removed++
		}
	}
	return removed
}

func (l *RateLimiter) bucketLocked(addr string) *addrBucket {
	b, ok := l.buckets[addr]
	if !ok {
		b = &addrBucket{limiter: rate.NewLimiter(l.ratePerSec, l.burst)}
		l.buckets[addr] = b
	}
	b.lastSeen = time.Now()
	return b
}
