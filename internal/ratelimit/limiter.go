// Package ratelimit implements the token bucket + daily quota limiter that
// protects quota-constrained upstream APIs (NOAA CDO allows 5 req/s and
// 10,000 req/day per token).
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// ErrDailyLimitExceeded is returned by Acquire when the effective daily
// quota is exhausted. The failure is immediate and consumes nothing; the
// caller should degrade rather than retry before the next UTC midnight.
var ErrDailyLimitExceeded = errors.New("daily request quota exhausted")

// DefaultBufferFactor keeps usage safely below the nominal upstream limits
// so that clock skew or concurrent clients never trip the real quota.
const DefaultBufferFactor = 0.8

// Limiter is a token bucket with an overlaid daily quota. Tokens refill
// continuously at the effective per-second rate; the daily counter resets
// lazily at UTC midnight.
type Limiter struct {
	clock clockwork.Clock

	refillRate float64 // effective tokens per second
	burst      float64

	// bucket state, guarded by mu.
	mu     sync.Mutex
	tokens float64
	last   time.Time

	// daily state, guarded by dailyMu. Separate lock so a long token wait
	// never blocks Status or the midnight reset.
	dailyMu    sync.Mutex
	dailyLimit int
	dailyUsed  int
	resetAt    time.Time // next UTC midnight
}

// Status is a point-in-time snapshot for observability.
type Status struct {
	TokensRemaining float64   `json:"tokens_remaining"`
	DailyUsed       int       `json:"daily_requests_used"`
	DailyRemaining  int       `json:"daily_requests_remaining"`
	DailyResetDate  time.Time `json:"daily_reset_date"`
}

// New builds a limiter from the nominal upstream limits. bufferFactor scales
// both limits down (pass DefaultBufferFactor unless testing); values outside
// (0, 1] fall back to the default.
func New(requestsPerSec float64, requestsPerDay int, bufferFactor float64, clock clockwork.Clock) *Limiter {
	if bufferFactor <= 0 || bufferFactor > 1 {
		bufferFactor = DefaultBufferFactor
	}
	rate := requestsPerSec * bufferFactor
	if rate <= 0 {
		rate = 1
	}
	burst := rate
	if burst < 1 {
		burst = 1
	}
	now := clock.Now()
	return &Limiter{
		clock:      clock,
		refillRate: rate,
		burst:      burst,
		tokens:     burst, // start full
		last:       now,
		dailyLimit: int(float64(requestsPerDay) * bufferFactor),
		resetAt:    nextUTCMidnight(now),
	}
}

// Acquire blocks until a token is available or the context ends. It fails
// fast with ErrDailyLimitExceeded when the daily quota is exhausted; the
// daily slot is reserved before any token wait so concurrent callers can
// never overshoot the quota.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.reserveDaily(); err != nil {
		return err
	}
	if err := l.waitForToken(ctx); err != nil {
		l.releaseDaily()
		return err
	}
	return nil
}

func (l *Limiter) reserveDaily() error {
	l.dailyMu.Lock()
	defer l.dailyMu.Unlock()

	l.maybeResetDailyLocked()
	if l.dailyUsed >= l.dailyLimit {
		return ErrDailyLimitExceeded
	}
	l.dailyUsed++
	return nil
}

func (l *Limiter) releaseDaily() {
	l.dailyMu.Lock()
	defer l.dailyMu.Unlock()
	if l.dailyUsed > 0 {
		l.dailyUsed--
	}
}

// maybeResetDailyLocked rolls the counter over at UTC midnight.
// Caller holds dailyMu.
func (l *Limiter) maybeResetDailyLocked() {
	now := l.clock.Now()
	if now.Before(l.resetAt) {
		return
	}
	l.dailyUsed = 0
	l.resetAt = nextUTCMidnight(now)
}

func (l *Limiter) waitForToken(ctx context.Context) error {
	for {
		l.mu.Lock()
		l.refillLocked()
		if l.tokens >= 1 {
			l.tokens--
			l.mu.Unlock()
			return nil
		}
		// Sleep exactly long enough for one whole token to accumulate.
		wait := time.Duration((1 - l.tokens) / l.refillRate * float64(time.Second))
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(wait):
		}
	}
}

// refillLocked adds fractional tokens for elapsed time, capped at burst.
// Caller holds mu.
func (l *Limiter) refillLocked() {
	now := l.clock.Now()
	elapsed := now.Sub(l.last).Seconds()
	if elapsed <= 0 {
		return
	}
	l.tokens += elapsed * l.refillRate
	if l.tokens > l.burst {
		l.tokens = l.burst
	}
	l.last = now
}

// Status reports current token and quota levels.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	l.refillLocked()
	tokens := l.tokens
	l.mu.Unlock()

	l.dailyMu.Lock()
	l.maybeResetDailyLocked()
	used := l.dailyUsed
	remaining := l.dailyLimit - used
	resetAt := l.resetAt
	l.dailyMu.Unlock()

	if remaining < 0 {
		remaining = 0
	}
	return Status{
		TokensRemaining: tokens,
		DailyUsed:       used,
		DailyRemaining:  remaining,
		DailyResetDate:  resetAt,
	}
}

func nextUTCMidnight(now time.Time) time.Time {
	d := now.UTC().AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}
