// Package engine reconciles severe-weather events from the verified bulk
// archive, preliminary storm reports, and live alerts into one consistent
// answer for a location and time window.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/domain"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/observability"
)

// minVerifiedEvents is the archive yield below which the supplemental
// climate source is consulted for the verified window.
const minVerifiedEvents = 10

var errNotReady = errors.New("no successful query served yet")

// WindowSource fetches events within a radius of a point for a time window.
// The bulk archive, SPC reports, and the CDO client all satisfy it.
type WindowSource interface {
	Events(ctx context.Context, lat, lon, radiusKm float64, start, end time.Time) ([]domain.WeatherEvent, error)
}

// LiveSource fetches currently active events for a point.
type LiveSource interface {
	Events(ctx context.Context, lat, lon float64) ([]domain.WeatherEvent, error)
}

// Exporter publishes consolidated results downstream.
type Exporter interface {
	ExportBatch(ctx context.Context, events []domain.WeatherEvent) error
}

// Request is one reconciliation query.
type Request struct {
	Lat      float64
	Lon      float64
	RadiusKm float64
	Start    time.Time
	End      time.Time
}

// Result carries the reconciled events plus data-quality context.
type Result struct {
	Events    []domain.WeatherEvent `json:"events"`
	Freshness domain.Freshness      `json:"freshness"`
	// Degraded names sources that failed and contributed nothing.
	Degraded []string `json:"degraded_sources,omitempty"`
}

// Engine orchestrates the three-source fetch, reconciliation, and optional
// export. Supplemental and exporter are optional; pass nil to disable.
type Engine struct {
	verified     WindowSource
	preliminary  WindowSource
	live         LiveSource
	supplemental WindowSource
	exporter     Exporter

	lagDays int
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	ready atomic.Bool
}

// New creates an Engine.
func New(verified, preliminary WindowSource, live LiveSource, supplemental WindowSource, exporter Exporter,
	lagDays int, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Engine {
	if lagDays <= 0 {
		lagDays = domain.DefaultLagDays
	}
	return &Engine{
		verified:     verified,
		preliminary:  preliminary,
		live:         live,
		supplemental: supplemental,
		exporter:     exporter,
		lagDays:      lagDays,
		clock:        clock,
		logger:       logger,
		metrics:      metrics,
	}
}

// sourceFetch is one concurrent source invocation.
type sourceFetch struct {
	name string
	run  func(ctx context.Context) ([]domain.WeatherEvent, error)
}

// Fetch partitions the window at the verification gap cutoff, queries the
// responsible sources concurrently, and reconciles their contributions.
// A failing source degrades to an empty contribution; Fetch itself fails
// only on context errors.
func (e *Engine) Fetch(ctx context.Context, req Request) (*Result, error) {
	started := e.clock.Now()
	now := started.UTC()
	cutoff := domain.GapCutoff(now, e.lagDays)

	var fetches []sourceFetch

	// Verified coverage ends just before the cutoff; events dated on the
	// cutoff day or later belong to the preliminary side.
	verifiedEnd := minTime(req.End, cutoff.Add(-time.Second))
	hasVerified := !req.Start.After(verifiedEnd)
	if hasVerified {
		fetches = append(fetches, sourceFetch{name: "archive", run: func(ctx context.Context) ([]domain.WeatherEvent, error) {
			return e.verified.Events(ctx, req.Lat, req.Lon, req.RadiusKm, req.Start, verifiedEnd)
		}})
	}

	if !req.End.Before(cutoff) {
		prelimStart := maxTime(req.Start, cutoff)
		fetches = append(fetches, sourceFetch{name: "spc", run: func(ctx context.Context) ([]domain.WeatherEvent, error) {
			return e.preliminary.Events(ctx, req.Lat, req.Lon, req.RadiusKm, prelimStart, req.End)
		}})
	}

	// Active alerts are consulted on every query, independent of the
	// requested window; a warning in effect right now is always relevant.
	fetches = append(fetches, sourceFetch{name: "alerts", run: func(ctx context.Context) ([]domain.WeatherEvent, error) {
		return e.live.Events(ctx, req.Lat, req.Lon)
	}})

	contributions := make([][]domain.WeatherEvent, len(fetches))
	degraded := make([]string, len(fetches))
	var wg sync.WaitGroup
	for i, f := range fetches {
		wg.Add(1)
		go func(i int, f sourceFetch) {
			defer wg.Done()
			fetchStart := time.Now()
			events, err := f.run(ctx)
			e.metrics.SourceDuration.WithLabelValues(f.name).Observe(time.Since(fetchStart).Seconds())
			if err != nil {
				e.logger.Warn("source degraded", "source", f.name, "error", err)
				degraded[i] = f.name
				return
			}
			contributions[i] = events
		}(i, f)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raw []domain.WeatherEvent
	var degradedNames []string
	var verifiedCount int
	for i := range fetches {
		raw = append(raw, contributions[i]...)
		if fetches[i].name == "archive" {
			verifiedCount = len(contributions[i])
		}
		if degraded[i] != "" {
			degradedNames = append(degradedNames, degraded[i])
		}
	}

	// A thin archive yield gets a second opinion from daily climate
	// summaries. Sequential because it depends on the archive count, and
	// failure here degrades like any other source.
	if e.supplemental != nil && hasVerified && verifiedCount < minVerifiedEvents {
		extra, err := e.supplemental.Events(ctx, req.Lat, req.Lon, req.RadiusKm, req.Start, verifiedEnd)
		if err != nil {
			e.logger.Warn("source degraded", "source", "cdo", "error", err)
			degradedNames = append(degradedNames, "cdo")
		} else {
			raw = append(raw, extra...)
		}
	}

	deduped := domain.Deduplicate(raw)
	consolidated := domain.Consolidate(deduped)
	if merged := len(deduped) - len(consolidated); merged > 0 {
		e.metrics.EventsConsolidated.Add(float64(merged))
	}
	domain.SortByTimestampDesc(consolidated)

	if e.exporter != nil && len(consolidated) > 0 {
		if err := e.exporter.ExportBatch(ctx, consolidated); err != nil {
			e.logger.Warn("export failed", "error", err)
		}
	}

	e.metrics.QueriesTotal.Inc()
	e.metrics.QueryDuration.Observe(e.clock.Since(started).Seconds())
	e.ready.Store(true)

	return &Result{
		Events:    consolidated,
		Freshness: domain.ComputeFreshness(req.Start, req.End, now, e.lagDays),
		Degraded:  degradedNames,
	}, nil
}

// CheckReadiness reports ready once the engine has served a query.
func (e *Engine) CheckReadiness(_ context.Context) error {
	if !e.ready.Load() {
		return errNotReady
	}
	return nil
}

// MarkReady forces the readiness state, used at startup once the cache has
// been warmed.
func (e *Engine) MarkReady() { e.ready.Store(true) }

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
