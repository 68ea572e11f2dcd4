package ratelimit

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	ErrKeyEmpty    = errors.New("rate_limit_key_empty")
	ErrRateLimited = errors.New("rate_limited")
)

// Limiter hands out request tokens per key, usually an API key id.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func newResult(allowed bool, burst int, remaining, rate float64) *Result {
	r := &Result{
		Allowed:   allowed,
		Limit:     burst,
		Remaining: int(math.Floor(remaining)),
	}
	if !allowed && rate > 0 {
		needed := 1 - remaining
		if needed > 0 {
			r.RetryAfter = time.Duration(needed / rate * float64(time.Second))
		}
	}
	return r
}
