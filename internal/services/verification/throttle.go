package verification

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiters hands out one token bucket per user. Buckets idle for longer than
// idleAfter are dropped on the next sweep.
type limiters struct {
	mu        sync.Mutex
	rate      rate.Limit
	burst     int
	idleAfter time.Duration
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func newLimiters(perSecond float64, burst int) *limiters {
	if burst <= 0 {
		burst = 1
	}
	return &limiters{
		rate:      rate.Limit(perSecond),
		burst:     burst,
		idleAfter: 30 * time.Minute,
		buckets:   make(map[string]*bucket),
		now:       time.Now,
	}
}

func (l *limiters) allow(userID string) bool {
	if l == nil || l.rate <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > l.idleAfter {
		for k, b := range l.buckets {
			if now.Sub(b.lastSeen) > l.idleAfter {
				delete(l.buckets, k)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.rate, l.burst)}
		l.buckets[userID] = b
	}
	b.lastSeen = now
	return b.lim.AllowN(now, 1)
}
