package archive

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/observability"
)

// ErrNoCacheAvailable means the download chain was exhausted and no cached
// file of any age exists for the year.
var ErrNoCacheAvailable = errors.New("no cached archive file available")

// CacheState classifies a cached file's age against its year's validity
// window. The three states are mutually exclusive and exhaustive; Expired
// files are cleanup-eligible but still usable as a last resort.
type CacheState int

const (
	StateMissing CacheState = iota
	StateValid
	StateStale
	StateExpired
)

func (s CacheState) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateStale:
		return "stale"
	case StateExpired:
		return "expired"
	default:
		return "missing"
	}
}

// ValidityWindow bounds how long a year's cached file is trusted. Normal is
// the fully-trusted age; files between Normal and Stale are served with a
// degraded-data signal; older files are expired.
type ValidityWindow struct {
	Normal time.Duration
	Stale  time.Duration
}

// validityForAge returns the window for a year, keyed by the year's age
// relative to the current year. Historical years barely change between
// compilations, so they keep much longer windows than the volatile current
// year.
func validityForAge(age int) ValidityWindow {
	switch {
	case age >= 2:
		return ValidityWindow{Normal: 30 * 24 * time.Hour, Stale: 60 * 24 * time.Hour}
	case age == 1:
		return ValidityWindow{Normal: 7 * 24 * time.Hour, Stale: 14 * 24 * time.Hour}
	default:
		return ValidityWindow{Normal: 24 * time.Hour, Stale: 72 * time.Hour}
	}
}

// compilationTokenRe finds the compilation date inside a bulk file URL.
var compilationTokenRe = regexp.MustCompile(`_c(\d{8})`)

// Cache is the tiered local store of bulk archive files, one CSV per year.
type Cache struct {
	dir       string
	client    *http.Client
	discovery *Discovery
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics

	// Per-year download locks so concurrent fetches of one year download once.
	mu        sync.Mutex
	yearLocks map[int]*sync.Mutex
}

// NewCache creates a Cache rooted at dir, creating it if needed.
func NewCache(dir string, timeout time.Duration, discovery *Discovery, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{
		dir:       dir,
		client:    &http.Client{Timeout: timeout},
		discovery: discovery,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
		yearLocks: map[int]*sync.Mutex{},
	}, nil
}

// Path returns the cache location for a year's CSV.
func (c *Cache) Path(year int) string {
	return filepath.Join(c.dir, fmt.Sprintf("storm_events_%d.csv", year))
}

// State classifies the cached file for a year.
func (c *Cache) State(year int) CacheState {
	fi, err := os.Stat(c.Path(year))
	if err != nil {
		return StateMissing
	}
	age := c.clock.Now().Sub(fi.ModTime())
	window := validityForAge(c.clock.Now().UTC().Year() - year)
	switch {
	case age < window.Normal:
		return StateValid
	case age < window.Stale:
		return StateStale
	default:
		return StateExpired
	}
}

// Fetch returns the path of a usable CSV for the year, downloading or
// degrading as needed:
//
//	valid   -> returned as-is
//	stale   -> returned immediately, with a warning and a metric
//	expired/missing -> fresh download; on failure try the previous-month
//	        compilation URL; on failure fall back to any cached file of any
//	        age; only then fail.
func (c *Cache) Fetch(ctx context.Context, year int) (string, error) {
	lock := c.yearLock(year)
	lock.Lock()
	defer lock.Unlock()

	path := c.Path(year)
	switch c.State(year) {
	case StateValid:
		c.metrics.CacheLookups.WithLabelValues("fresh").Inc()
		return path, nil
	case StateStale:
		c.metrics.CacheLookups.WithLabelValues("stale").Inc()
		c.logger.Warn("serving stale archive cache", "year", year, "path", path)
		return path, nil
	}
	c.metrics.CacheLookups.WithLabelValues("miss").Inc()

	url := c.discovery.FileURL(ctx, year)
	err := c.download(ctx, url, path)
	if err == nil {
		c.metrics.CacheDownloads.WithLabelValues("success").Inc()
		return path, nil
	}
	c.logger.Warn("archive download failed", "year", year, "url", url, "error", err)

	// The latest compilation sometimes 404s right after NOAA rotates files;
	// the previous month's compilation usually still exists.
	if prev, ok := previousMonthURL(url); ok {
		err = c.download(ctx, prev, path)
		if err == nil {
			c.metrics.CacheDownloads.WithLabelValues("fallback").Inc()
			c.logger.Info("downloaded previous compilation", "year", year, "url", prev)
			return path, nil
		}
		c.logger.Warn("previous compilation download failed", "year", year, "url", prev, "error", err)
	}
	c.metrics.CacheDownloads.WithLabelValues("error").Inc()

	// Last resort: any cached file, however old.
	if _, err := os.Stat(path); err == nil {
		c.metrics.CacheLookups.WithLabelValues("last_resort").Inc()
		c.logger.Warn("serving expired archive cache after download failure", "year", year, "path", path)
		return path, nil
	}
	return "", fmt.Errorf("year %d: %w", year, ErrNoCacheAvailable)
}

// download streams the gzipped remote file into the cache, decompressing on
// the fly and renaming atomically so readers never see a partial file.
func (c *Cache) download(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if strings.HasSuffix(url, ".gz") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		body = gz
	}

	tmp, err := os.CreateTemp(c.dir, filepath.Base(dest)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close()
		return fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// previousMonthURL rewrites the compilation token one month back, keeping the
// day part untouched. The rewrite is textual, matching how NOAA rotates
// compilation names, so the result is not necessarily a real calendar date.
func previousMonthURL(url string) (string, bool) {
	m := compilationTokenRe.FindStringSubmatch(url)
	if m == nil {
		return "", false
	}
	token := m[1]
	year := token[:4]
	month := token[4:6]
	day := token[6:]

	y := atoiOrZero(year)
	mo := atoiOrZero(month)
	if y == 0 || mo == 0 {
		return "", false
	}
	mo--
	if mo == 0 {
		mo = 12
		y--
	}
	prev := fmt.Sprintf("_c%04d%02d%s", y, mo, day)
	return strings.Replace(url, m[0], prev, 1), true
}

func atoiOrZero(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}

// Cleanup deletes cached bulk files older than maxAge and returns how many
// were removed. Used by the weekly retention job.
func (c *Cache) Cleanup(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("read cache dir: %w", err)
	}

	removed := 0
	var totalBytes int64
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "storm_events_") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if c.clock.Now().Sub(fi.ModTime()) > maxAge {
			if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
				c.logger.Warn("cache cleanup failed", "file", entry.Name(), "error", err)
				continue
			}
			removed++
			continue
		}
		totalBytes += fi.Size()
	}
	c.metrics.CacheFilesBytes.Set(float64(totalBytes))
	return removed, nil
}

func (c *Cache) yearLock(year int) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	lock, ok := c.yearLocks[year]
	if !ok {
		lock = &sync.Mutex{}
		c.yearLocks[year] = lock
	}
	return lock
}
