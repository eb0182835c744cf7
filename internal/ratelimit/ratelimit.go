// Package ratelimit implements the Rate Limiter (spec §4.11): a
// per-principal token bucket, with anonymous reads bucketed by source
// address instead of identity. Built on golang.org/x/time/rate, the
// same family of golang.org/x/* modules the teacher's stack already
// draws auth and fetch concerns from.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"islandregistry/internal/regerr"
)

// Cost is the token cost of one request; publish operations draw more
// from the bucket than reads, per spec §4.11.
type Cost int

const (
	CostRead    Cost = 1
	CostPublish Cost = 5
)

// Config is the bucket shape for one class of principal.
type Config struct {
	RatePerSecond float64
	Burst         int
}

// DefaultAuthenticatedConfig is generous enough for a normal publish
// workflow (a handful of distributions per release) without allowing a
// single token to flood the fetch fan-out.
func DefaultAuthenticatedConfig() Config { return Config{RatePerSecond: 2, Burst: 20} }

// DefaultAnonymousConfig governs unauthenticated reads, bucketed by
// source address.
func DefaultAnonymousConfig() Config { return Config{RatePerSecond: 5, Burst: 30} }

type bucket struct {
	limiter *rate.Limiter
	burst   int
}

// Limiter tracks one token bucket per principal (or per source address
// for anonymous traffic). A bucket, once created, is kept for the
// Limiter's lifetime; idle buckets are not evicted.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     Config
}

// New creates a Limiter with the given per-bucket configuration.
func New(cfg Config) *Limiter {
	return &Limiter{buckets: map[string]*bucket{}, cfg: cfg}
}

func (l *Limiter) bucketFor(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(l.cfg.RatePerSecond), l.cfg.Burst), burst: l.cfg.Burst}
		l.buckets[key] = b
	}
	return b
}

// Decision reports the state of a bucket at the moment of a check, for
// the rate-limited error's response fields (spec §4.11).
type Decision struct {
	Allowed           bool
	Limit             int
	Remaining         int
	ResetEpochSeconds int64
}

// Allow draws cost tokens from the bucket keyed by key. On denial it
// returns a rate-limited *regerr.Error carrying limit/remaining/reset
// fields in its Details.
func (l *Limiter) Allow(key string, cost Cost) (*Decision, error) {
	b := l.bucketFor(key)
	now := time.Now()

	reservation := b.limiter.ReserveN(now, int(cost))
	if !reservation.OK() {
		reservation.Cancel()
		return nil, rateLimitedError(b.burst, 0, now)
	}
	delay := reservation.DelayFrom(now)
	if delay > 0 {
		reservation.Cancel()
		remaining := int(b.limiter.TokensAt(now))
		return nil, rateLimitedError(b.burst, remaining, now.Add(delay))
	}

	remaining := int(b.limiter.TokensAt(now))
	return &Decision{
		Allowed:           true,
		Limit:             b.burst,
		Remaining:         remaining,
		ResetEpochSeconds: now.Unix(),
	}, nil
}

func rateLimitedError(limit, remaining int, resetAt time.Time) error {
	return regerr.New(regerr.KindRateLimited, "rate limit exceeded").WithDetails(map[string]any{
		"limit":               limit,
		"remaining":           remaining,
		"reset_epoch_seconds": resetAt.Unix(),
	})
}
