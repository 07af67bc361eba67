// Package ratelimit paces requests against the target site. The scrape
// loop sleeps a randomized interval between pages and between image
// downloads so traffic does not look like a burst crawler.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Delayer blocks between consecutive requests
type Delayer interface {
	// Wait sleeps for the next delay interval. It returns early with the
	// context error when cancelled.
	Wait(ctx context.Context) error
}

// JitteredDelay sleeps a uniformly random duration between Min and Max
type JitteredDelay struct {
	min time.Duration
	max time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewJitteredDelay creates a delayer sleeping uniformly in [min, max]
func NewJitteredDelay(min, max time.Duration) *JitteredDelay {
	if max < min {
		max = min
	}
	return &JitteredDelay{
		min: min,
		max: max,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait sleeps for a random interval or until the context is cancelled
func (d *JitteredDelay) Wait(ctx context.Context) error {
	delay := d.next()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *JitteredDelay) next() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	spread := d.max - d.min
	if spread <= 0 {
		return d.min
	}
	return d.min + time.Duration(d.rng.Int63n(int64(spread)+1))
}

// TokenBucket caps the number of requests per refill period. The scraper
// gates every AJAX listing call through one, since that endpoint tolerates
// far fewer calls than static pages.
type TokenBucket struct {
	capacity     int
	tokens       int
	refillPeriod time.Duration
	lastRefill   time.Time
	mu           sync.Mutex
}

// NewTokenBucket creates a token bucket allowing capacity requests per
// refill period.
func NewTokenBucket(capacity int, refillPeriod time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillPeriod: refillPeriod,
		lastRefill:   time.Now(),
	}
}

// Allow reports whether a request may proceed right now
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()

	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Wait blocks until a token is available or the context is cancelled
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		tb.mu.Lock()
		untilRefill := tb.refillPeriod - time.Since(tb.lastRefill)
		tb.mu.Unlock()

		if untilRefill <= 0 {
			untilRefill = 100 * time.Millisecond
		}

		timer := time.NewTimer(untilRefill)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Reset refills the bucket to capacity
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.capacity
	tb.lastRefill = time.Now()
}

func (tb *TokenBucket) refill() {
	now := time.Now()
	if now.Sub(tb.lastRefill) >= tb.refillPeriod {
		tb.tokens = tb.capacity
		tb.lastRefill = now
	}
}
