// Package refresher keeps the bulk archive cache warm in the background so
// interactive queries rarely pay the multi-hundred-megabyte download cost.
package refresher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/jonboulle/clockwork"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/adapter/archive"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/observability"
)

const (
	// warmAt and cleanupAt are UTC schedule times. Warming runs in the
	// overnight lull; cleanup weekly on Sunday shortly after.
	warmAt    = "02:00"
	cleanupAt = "03:00"

	// warmYearSpan warms the current year and this many preceding years.
	warmYearSpan = 2

	// cleanupMaxAge is the age past which cached bulk files are deleted.
	cleanupMaxAge = 60 * 24 * time.Hour

	// jobTimeout bounds a single warm run; a full three-year download fits
	// comfortably, a hung transfer does not.
	jobTimeout = 30 * time.Minute
)

// BulkCache is the slice of the archive cache the refresher drives.
type BulkCache interface {
	State(year int) archive.CacheState
	Fetch(ctx context.Context, year int) (string, error)
	Cleanup(maxAge time.Duration) (int, error)
}

// JobStatus describes one scheduled job for observability.
type JobStatus struct {
	LastRun     time.Time `json:"last_run,omitzero"`
	NextRun     time.Time `json:"next_run,omitzero"`
	LastOutcome string    `json:"last_outcome,omitempty"`
}

// Status is a point-in-time snapshot of the refresher.
type Status struct {
	Running bool                 `json:"running"`
	Jobs    map[string]JobStatus `json:"jobs"`
}

// Refresher schedules cache warming and cleanup. Job failures are logged
// and counted, never propagated; the scheduler keeps running.
type Refresher struct {
	cache     BulkCache
	scheduler *gocron.Scheduler
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	mu       sync.Mutex
	running  bool
	outcomes map[string]string
	lastRuns map[string]time.Time

	warmJob    *gocron.Job
	cleanupJob *gocron.Job
}

// New creates a Refresher.
func New(cache BulkCache, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Refresher {
	return &Refresher{
		cache:     cache,
		scheduler: gocron.NewScheduler(time.UTC),
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		outcomes:  map[string]string{},
		lastRuns:  map[string]time.Time{},
	}
}

// Start registers the schedules and starts the scheduler asynchronously.
func (r *Refresher) Start() error {
	warmJob, err := r.scheduler.Every(1).Day().At(warmAt).Do(func() { r.runJob("warm", r.warm) })
	if err != nil {
		return err
	}
	cleanupJob, err := r.scheduler.Every(1).Week().Sunday().At(cleanupAt).Do(func() { r.runJob("cleanup", r.cleanup) })
	if err != nil {
		return err
	}
	r.warmJob = warmJob
	r.cleanupJob = cleanupJob

	r.scheduler.StartAsync()
	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	r.logger.Info("refresher started", "warm_at", warmAt, "cleanup_at", cleanupAt)
	return nil
}

// Stop stops the scheduler and cancels future jobs.
func (r *Refresher) Stop() {
	r.scheduler.Stop()
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// runJob records the outcome of a job run. Errors are terminal for the run
// only; the schedule stays intact.
func (r *Refresher) runJob(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	outcome := "success"
	if err := fn(ctx); err != nil {
		outcome = "error"
		r.logger.Error("refresher job failed", "job", name, "error", err)
	}
	r.metrics.RefreshRuns.WithLabelValues(name, outcome).Inc()

	r.mu.Lock()
	r.outcomes[name] = outcome
	r.lastRuns[name] = r.clock.Now().UTC()
	r.mu.Unlock()
}

// warm fetches the current year and the preceding years, skipping any year
// whose cache is still within its validity window.
func (r *Refresher) warm(ctx context.Context) error {
	current := r.clock.Now().UTC().Year()

	var lastErr error
	for year := current - warmYearSpan; year <= current; year++ {
		if r.cache.State(year) == archive.StateValid {
			r.logger.Debug("cache still valid, skipping warm", "year", year)
			continue
		}
		if _, err := r.cache.Fetch(ctx, year); err != nil {
			r.logger.Warn("cache warm failed", "year", year, "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// cleanup deletes cached bulk files past the retention age.
func (r *Refresher) cleanup(_ context.Context) error {
	removed, err := r.cache.Cleanup(cleanupMaxAge)
	if err != nil {
		return err
	}
	if removed > 0 {
		r.logger.Info("cache cleanup removed files", "count", removed)
	}
	return nil
}

// Status reports the scheduler state and per-job run history.
func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	jobs := map[string]JobStatus{}
	for name, job := range map[string]*gocron.Job{"warm": r.warmJob, "cleanup": r.cleanupJob} {
		if job == nil {
			continue
		}
		jobs[name] = JobStatus{
			LastRun:     r.lastRuns[name],
			NextRun:     job.NextRun(),
			LastOutcome: r.outcomes[name],
		}
	}
	return Status{Running: r.running, Jobs: jobs}
}
