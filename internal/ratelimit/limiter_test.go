package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_BurstThenWait(t *testing.T) {
	fc := clockwork.NewFakeClock()
	// 2 req/s, burst 2, no buffer scaling for clean numbers.
	l := New(2, 100, 1.0, fc)
	ctx := context.Background()

	// The first two acquisitions drain the initial burst without waiting.
	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	// The third must wait for one token: (1 - 0) / 2 = 500ms.
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx) }()

	fc.BlockUntil(1)
	select {
	case err := <-done:
		t.Fatalf("acquire completed before refill: %v", err)
	case <-time.After(20 * time.Millisecond):
	}

	fc.Advance(500 * time.Millisecond)
	require.NoError(t, <-done)
}

func TestAcquire_FractionalRefill(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := New(2, 100, 1.0, fc)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	// 250ms refills half a token.
	fc.Advance(250 * time.Millisecond)
	st := l.Status()
	assert.InDelta(t, 0.5, st.TokensRemaining, 1e-9)
}

func TestAcquire_TokensCapAtBurst(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := New(2, 100, 1.0, fc)

	fc.Advance(time.Hour)
	st := l.Status()
	assert.InDelta(t, 2.0, st.TokensRemaining, 1e-9)
}

func TestAcquire_DailyQuotaFailsFast(t *testing.T) {
	fc := clockwork.NewFakeClock()
	// Daily quota of 2, generous token rate so only the quota gates.
	l := New(1000, 2, 1.0, fc)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))

	start := time.Now()
	err := l.Acquire(ctx)
	require.ErrorIs(t, err, ErrDailyLimitExceeded)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "quota failure must not wait")

	// Failed acquisition consumed nothing.
	st := l.Status()
	assert.Equal(t, 2, st.DailyUsed)
	assert.Equal(t, 0, st.DailyRemaining)
}

func TestAcquire_DailyResetAtUTCMidnight(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 23, 0, 0, 0, time.UTC))
	l := New(1000, 2, 1.0, fc)
	ctx := context.Background()

	require.NoError(t, l.Acquire(ctx))
	require.NoError(t, l.Acquire(ctx))
	require.ErrorIs(t, l.Acquire(ctx), ErrDailyLimitExceeded)

	fc.Advance(2 * time.Hour) // past midnight
	require.NoError(t, l.Acquire(ctx))

	st := l.Status()
	assert.Equal(t, 1, st.DailyUsed)
	assert.Equal(t, time.Date(2024, 4, 28, 0, 0, 0, 0, time.UTC), st.DailyResetDate)
}

func TestAcquire_BufferFactorScalesLimits(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := New(5, 10000, 0.8, fc)

	assert.InDelta(t, 4.0, l.refillRate, 1e-9)
	assert.Equal(t, 8000, l.dailyLimit)
}

func TestAcquire_InvalidBufferFactorUsesDefault(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := New(5, 10000, 0, fc)
	assert.InDelta(t, 4.0, l.refillRate, 1e-9)

	l = New(5, 10000, 1.5, fc)
	assert.InDelta(t, 4.0, l.refillRate, 1e-9)
}

func TestAcquire_ContextCancelReleasesDailySlot(t *testing.T) {
	fc := clockwork.NewFakeClock()
	l := New(1, 10, 1.0, fc)

	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Acquire(ctx) }()
	fc.BlockUntil(1)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	// The cancelled request released its daily reservation.
	st := l.Status()
	assert.Equal(t, 1, st.DailyUsed)
}

func TestStatus_Snapshot(t *testing.T) {
	fc := clockwork.NewFakeClockAt(time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC))
	l := New(5, 10000, 0.8, fc)

	st := l.Status()
	assert.InDelta(t, 4.0, st.TokensRemaining, 1e-9)
	assert.Equal(t, 0, st.DailyUsed)
	assert.Equal(t, 8000, st.DailyRemaining)
	assert.Equal(t, time.Date(2024, 4, 27, 0, 0, 0, 0, time.UTC), st.DailyResetDate)
}
