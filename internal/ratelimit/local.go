package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter keeps one bucket per key in process memory.
type LocalLimiter struct {
	mu      sync.Mutex
	rate    rate.Limit
	burst   int
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

func NewLocalLimiter(perSecond float64, burst int) *LocalLimiter {
	return &LocalLimiter{
		rate:    rate.Limit(perSecond),
		burst:   burst,
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (*Result, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}

	l.mu.Lock()
	bucket, ok := l.buckets[key]
	if !ok {
		bucket = rate.NewLimiter(l.rate, l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	now := l.now()
	allowed := bucket.AllowN(now, 1)
	return newResult(allowed, l.burst, bucket.TokensAt(now), float64(l.rate)), nil
}
