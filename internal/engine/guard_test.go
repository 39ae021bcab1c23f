package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/domain"
)

// guardRequest is a valid 6-month analysis window.
func guardRequest() Request {
	return Request{
		Lat: 32.75, Lon: -97.15, RadiusKm: 50,
		Start: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestGuard(timeout time.Duration) (*Guard, *fakeWindowSource) {
	verified := &fakeWindowSource{}
	e := newTestEngine(verified, &fakeWindowSource{}, &fakeLiveSource{}, nil, nil)
	return NewGuard(e, timeout, discardLogger()), verified
}

func TestGuard_RejectsInvalidCoordinates(t *testing.T) {
	g, verified := newTestGuard(time.Second)

	for _, tc := range []struct {
		name     string
		lat, lon float64
	}{
		{"lat too high", 91, 0},
		{"lat too low", -91, 0},
		{"lon too high", 0, 181},
		{"lon too low", 0, -181},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := guardRequest()
			req.Lat, req.Lon = tc.lat, tc.lon
			_, err := g.Fetch(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidCoordinates)
		})
	}
	assert.Zero(t, verified.callCount(), "no source contacted on validation failure")
}

func TestGuard_RejectsInvertedWindow(t *testing.T) {
	g, _ := newTestGuard(time.Second)
	req := guardRequest()
	req.Start, req.End = req.End, req.Start

	_, err := g.Fetch(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestGuard_PeriodBands(t *testing.T) {
	g, _ := newTestGuard(time.Second)
	end := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)

	for _, tc := range []struct {
		name string
		days int
		ok   bool
	}{
		{"six months lower edge", 180, true},
		{"six months upper edge", 185, true},
		{"just under six months", 179, false},
		{"nine months", 272, true},
		{"twenty-four months", 730, true},
		{"too short", 90, false},
		{"between bands", 200, false},
		{"too long", 800, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			req := guardRequest()
			req.End = end
			req.Start = end.AddDate(0, 0, -tc.days)

			_, err := g.Fetch(context.Background(), req)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUnsupportedPeriod)
			}
		})
	}
}

func TestGuard_TimeoutReturnsEmptyDegradedResult(t *testing.T) {
	slow := &blockingSource{}
	e := newTestEngine(&fakeWindowSource{}, &fakeWindowSource{}, &fakeLiveSource{}, nil, nil)
	e.verified = slow
	g := NewGuard(e, 50*time.Millisecond, discardLogger())

	result, err := g.Fetch(context.Background(), guardRequest())
	require.NoError(t, err, "timeout degrades, never errors")
	assert.Empty(t, result.Events)
	assert.Equal(t, []string{"timeout"}, result.Degraded)
}

func TestGuard_DefaultTimeout(t *testing.T) {
	g, _ := newTestGuard(0)
	assert.Equal(t, DefaultFetchTimeout, g.timeout)
}

// blockingSource holds until the context expires.
type blockingSource struct{}

func (b *blockingSource) Events(ctx context.Context, lat, lon, radiusKm float64, start, end time.Time) ([]domain.WeatherEvent, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
