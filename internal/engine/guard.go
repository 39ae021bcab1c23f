package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/domain"
)

// Validation errors returned synchronously by the guard, before any source
// is contacted.
var (
	ErrInvalidCoordinates = errors.New("coordinates out of range")
	ErrInvalidWindow      = errors.New("window start is after end")
	ErrUnsupportedPeriod  = errors.New("analysis period length not supported")
)

// DefaultFetchTimeout bounds a guarded fetch end to end.
const DefaultFetchTimeout = 60 * time.Second

// periodBand is an accepted analysis-period length range in days. The bands
// allow a few days of slack around the nominal 6, 9, and 24 month periods
// so callers can align windows to month boundaries.
type periodBand struct {
	minDays int
	maxDays int
}

var supportedPeriods = []periodBand{
	{180, 185},
	{270, 275},
	{720, 735},
}

// Guard validates requests and bounds fetch time around an Engine. On
// timeout it returns an empty, degraded result instead of an error so
// callers always get an answer shape they can render.
type Guard struct {
	engine  *Engine
	timeout time.Duration
	logger  *slog.Logger
}

// NewGuard wraps an engine. A non-positive timeout uses the default.
func NewGuard(engine *Engine, timeout time.Duration, logger *slog.Logger) *Guard {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Guard{engine: engine, timeout: timeout, logger: logger}
}

// Fetch validates the request and delegates to the engine under a timeout.
func (g *Guard) Fetch(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	result, err := g.engine.Fetch(ctx, req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			g.logger.Warn("fetch timed out, returning empty result",
				"lat", req.Lat, "lon", req.Lon, "timeout", g.timeout)
			return &Result{
				Freshness: domain.ComputeFreshness(req.Start, req.End, g.engine.clock.Now().UTC(), g.engine.lagDays),
				Degraded:  []string{"timeout"},
			}, nil
		}
		return nil, err
	}
	return result, nil
}

// CheckReadiness delegates to the wrapped engine.
func (g *Guard) CheckReadiness(ctx context.Context) error {
	return g.engine.CheckReadiness(ctx)
}

func validate(req Request) error {
	if !domain.ValidCoordinates(req.Lat, req.Lon) {
		return fmt.Errorf("%w: lat=%.4f lon=%.4f", ErrInvalidCoordinates, req.Lat, req.Lon)
	}
	if req.Start.After(req.End) {
		return fmt.Errorf("%w: %s > %s", ErrInvalidWindow,
			req.Start.Format("2006-01-02"), req.End.Format("2006-01-02"))
	}

	// Period length is the difference in days between the endpoints.
	days := int(req.End.Sub(req.Start).Hours() / 24)
	for _, band := range supportedPeriods {
		if days >= band.minDays && days <= band.maxDays {
			return nil
		}
	}
	return fmt.Errorf("%w: %d days (supported: 6, 9, or 24 months)", ErrUnsupportedPeriod, days)
}
