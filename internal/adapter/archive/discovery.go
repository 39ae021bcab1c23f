// Package archive acquires and queries the NOAA Storm Events bulk archive:
// directory-listing discovery, a tiered local file cache, and pluggable
// CSV scan strategies over the cached files.
package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultBaseURL is the public Storm Events CSV archive.
const DefaultBaseURL = "https://www.ncei.noaa.gov/pub/data/swdi/stormevents/csvfiles/"

var (
	// fileRe matches bulk detail files, capturing data year and compilation date:
	// StormEvents_details-ftp_v1.0_d2024_c20250818.csv.gz
	fileRe = regexp.MustCompile(`StormEvents_details-ftp_v1\.0_d(\d{4})_c(\d{8})\.csv\.gz`)

	// hrefRe extracts link targets from the HTML directory listing.
	hrefRe = regexp.MustCompile(`href="([^"]+)"`)
)

// fallbackCompilations are known-good compilation dates used when the
// directory listing is unreachable or does not mention a year. Kept current
// by hand; the default covers years not listed.
var fallbackCompilations = map[int]string{
	2023: "20250731",
	2024: "20250818",
}

const fallbackCompilationDefault = "20250520"

// listingTTL bounds how long a scraped listing is reused before re-scraping.
const listingTTL = 6 * time.Hour

// Discovery resolves the download URL for a year's bulk file by scraping the
// archive directory listing, with a static fallback table. Listings are
// memoized so one scrape serves many lookups.
type Discovery struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	clock   clockwork.Clock

	mu        sync.Mutex
	listing   map[int]string // year -> filename, newest compilation wins
	listingAt time.Time
}

// NewDiscovery creates a Discovery against baseURL (pass DefaultBaseURL in
// production).
func NewDiscovery(baseURL string, timeout time.Duration, logger *slog.Logger, clock clockwork.Clock) *Discovery {
	return &Discovery{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		clock:   clock,
	}
}

// FileURL returns the download URL for a year's bulk file. Discovery never
// fails outright: when the listing is unreachable or lacks the year, a URL
// is synthesized from the fallback compilation table.
func (d *Discovery) FileURL(ctx context.Context, year int) string {
	listing, err := d.cachedListing(ctx)
	if err != nil {
		d.logger.Warn("archive listing unavailable, using fallback URL", "year", year, "error", err)
		return d.fallbackURL(year)
	}
	name, ok := listing[year]
	if !ok {
		d.logger.Warn("year missing from archive listing, using fallback URL", "year", year)
		return d.fallbackURL(year)
	}
	return d.baseURL + name
}

// FileInfo describes a remote bulk file, from a HEAD probe.
type FileInfo struct {
	URL          string
	SizeBytes    int64
	LastModified time.Time
	Year         int
	CompiledOn   time.Time
	Exists       bool
}

// FileInfo probes the remote file for a year without downloading it.
func (d *Discovery) FileInfo(ctx context.Context, year int) (FileInfo, error) {
	url := d.FileURL(ctx, year)
	info := FileInfo{URL: url, Year: year}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return info, fmt.Errorf("build head request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return info, fmt.Errorf("head %s: %w", url, err)
	}
	defer resp.Body.Close()

	info.Exists = resp.StatusCode == http.StatusOK
	info.SizeBytes = resp.ContentLength
	if lm := resp.Header.Get("Last-Modified"); lm != "" {
		if t, err := http.ParseTime(lm); err == nil {
			info.LastModified = t
		}
	}
	if _, compiled, ok := ParseFilename(url); ok {
		info.CompiledOn = compiled
	}
	return info, nil
}

// cachedListing returns the memoized listing, re-scraping after listingTTL.
func (d *Discovery) cachedListing(ctx context.Context) (map[int]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.listing != nil && d.clock.Now().Sub(d.listingAt) < listingTTL {
		return d.listing, nil
	}

	listing, err := d.scrapeListing(ctx)
	if err != nil {
		// Serve the previous listing past its TTL rather than nothing.
		if d.listing != nil {
			return d.listing, nil
		}
		return nil, err
	}
	d.listing = listing
	d.listingAt = d.clock.Now()
	return listing, nil
}

func (d *Discovery) scrapeListing(ctx context.Context) (map[int]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build listing request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch listing: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}

	listing := parseListing(string(body))
	if len(listing) == 0 {
		return nil, fmt.Errorf("no bulk detail files in listing")
	}
	return listing, nil
}

// parseListing extracts bulk detail filenames from a directory listing and
// keeps the newest compilation per year.
func parseListing(html string) map[int]string {
	newest := map[int]string{} // year -> compilation date string
	files := map[int]string{}

	for _, href := range hrefRe.FindAllStringSubmatch(html, -1) {
		m := fileRe.FindStringSubmatch(href[1])
		if m == nil {
			continue
		}
		year, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if m[2] > newest[year] {
			newest[year] = m[2]
			files[year] = m[0]
		}
	}
	return files
}

func (d *Discovery) fallbackURL(year int) string {
	compiled, ok := fallbackCompilations[year]
	if !ok {
		compiled = fallbackCompilationDefault
	}
	return fmt.Sprintf("%sStormEvents_details-ftp_v1.0_d%d_c%s.csv.gz", d.baseURL, year, compiled)
}

// ParseFilename extracts the data year and compilation date from a bulk
// filename or URL.
func ParseFilename(name string) (year int, compiled time.Time, ok bool) {
	m := fileRe.FindStringSubmatch(name)
	if m == nil {
		return 0, time.Time{}, false
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, time.Time{}, false
	}
	compiled, err = time.Parse("20060102", m[2])
	if err != nil {
		return year, time.Time{}, true
	}
	return year, compiled, true
}
