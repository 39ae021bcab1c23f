// Package spc fetches preliminary local storm reports from the NOAA Storm
// Prediction Center daily climatology archive. Reports are near-real-time
// and unreviewed; they fill the window the verified bulk archive has not
// reached yet.
package spc

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/domain"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/observability"
)

// SourceName tags events from SPC preliminary reports.
const SourceName = "NWS SPC Preliminary Reports"

// DefaultBaseURL is the SPC daily climatology archive.
const DefaultBaseURL = "https://www.spc.noaa.gov/climo/reports/"

// cacheValidity is how long a cached daily file is reused. Filtered daily
// reports settle within a couple of days; a week is comfortably safe.
const cacheValidity = 7 * 24 * time.Hour

// politenessRPS caps outbound requests to the SPC archive. The archive has
// no published quota; this is plain good citizenship for multi-day windows.
const politenessRPS = 5

// Client fetches and caches SPC daily filtered report CSVs.
type Client struct {
	baseURL  string
	cacheDir string
	client   *http.Client
	limiter  *rate.Limiter
	clock    clockwork.Clock
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewClient creates a Client caching daily files under cacheDir.
func NewClient(baseURL, cacheDir string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) (*Client, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create spc cache dir: %w", err)
	}
	return &Client{
		baseURL:  baseURL,
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(politenessRPS, politenessRPS),
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}, nil
}

// Events returns preliminary reports within radiusKm of (lat, lon) for days
// in [start, end]. A day whose fetch fails is skipped with a warning; the
// rest of the window still contributes.
func (c *Client) Events(ctx context.Context, lat, lon, radiusKm float64, start, end time.Time) ([]domain.WeatherEvent, error) {
	today := c.clock.Now().UTC().Truncate(24 * time.Hour)
	if end.After(today) {
		end = today
	}

	var out []domain.WeatherEvent
	for day := startOfDay(start); !day.After(end); day = day.AddDate(0, 0, 1) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		reports, err := c.reportsForDay(ctx, day)
		if err != nil {
			c.logger.Warn("skipping spc day", "day", day.Format("2006-01-02"), "error", err)
			c.metrics.SourceFailures.WithLabelValues("spc").Inc()
			continue
		}
		for _, r := range reports {
			event, ok := convertReport(r, day, lat, lon, radiusKm)
			if !ok {
				continue
			}
			out = append(out, event)
		}
	}
	c.metrics.SourceEvents.WithLabelValues("spc").Add(float64(len(out)))
	return out, nil
}

// report is one parsed row of a filtered daily file.
type report struct {
	eventType string // canonical: hail, wind, tornado
	timeHHMM  string
	magnitude string // raw Size / Speed / F_Scale column
	location  string
	county    string
	state     string
	lat       float64
	lon       float64
	comments  string
}

// reportsForDay returns the parsed reports for one UTC day, from cache when
// fresh enough.
func (c *Client) reportsForDay(ctx context.Context, day time.Time) ([]report, error) {
	path := filepath.Join(c.cacheDir, "spc_reports_"+day.Format("20060102")+".csv")
	if fi, err := os.Stat(path); err == nil && c.clock.Now().Sub(fi.ModTime()) < cacheValidity {
		data, err := os.ReadFile(path)
		if err == nil {
			return parseFiltered(data), nil
		}
	}

	data, err := c.fetchDay(ctx, day)
	if err != nil {
		// A stale cached day beats no day at all.
		if cached, readErr := os.ReadFile(path); readErr == nil {
			c.logger.Warn("serving stale spc cache", "day", day.Format("2006-01-02"), "error", err)
			return parseFiltered(cached), nil
		}
		return nil, err
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		c.logger.Warn("spc cache write failed", "path", path, "error", err)
	}
	return parseFiltered(data), nil
}

func (c *Client) fetchDay(ctx context.Context, day time.Time) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s%s_rpts_filtered.csv", c.baseURL, day.Format("060102"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get %s: unexpected status %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}

// parseFiltered handles the filtered daily format: three concatenated CSV
// sections (tornado, hail, wind) each with its own header row. The second
// column of the header names the magnitude kind and identifies the section:
// F_Scale, Size, or Speed.
func parseFiltered(data []byte) []report {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var reports []report
	section := ""
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if len(row) < 8 {
			continue
		}
		if strings.EqualFold(row[0], "Time") {
			section = sectionFor(row[1])
			continue
		}
		if section == "" {
			continue
		}

		lat, err1 := strconv.ParseFloat(strings.TrimSpace(row[5]), 64)
		lon, err2 := strconv.ParseFloat(strings.TrimSpace(row[6]), 64)
		if err1 != nil || err2 != nil {
			continue
		}

		// Unquoted commas in comments spill into extra fields.
		comments := strings.TrimSpace(strings.Join(row[7:], ","))

		reports = append(reports, report{
			eventType: section,
			timeHHMM:  strings.TrimSpace(row[0]),
			magnitude: strings.TrimSpace(row[1]),
			location:  strings.TrimSpace(row[2]),
			county:    strings.TrimSpace(row[3]),
			state:     strings.TrimSpace(row[4]),
			lat:       lat,
			lon:       lon,
			comments:  comments,
		})
	}
	return reports
}

func sectionFor(magHeader string) string {
	switch strings.ToLower(strings.TrimSpace(magHeader)) {
	case "f_scale":
		return domain.TypeTornado
	case "size":
		return domain.TypeHail
	case "speed":
		return domain.TypeWind
	default:
		return ""
	}
}

func convertReport(r report, day time.Time, lat, lon, radiusKm float64) (domain.WeatherEvent, bool) {
	distance := domain.HaversineKm(lat, lon, r.lat, r.lon)
	if distance > radiusKm {
		return domain.WeatherEvent{}, false
	}

	ts := combineHHMM(day, r.timeHHMM)
	magnitude := reportMagnitude(r)

	event := domain.WeatherEvent{
		ID:          domain.EventID(r.eventType, SourceName, r.lat, r.lon, ts),
		Timestamp:   ts,
		EventType:   r.eventType,
		Magnitude:   magnitude,
		Severity:    domain.Classify(r.eventType, magnitude),
		Location:    reportLocation(r),
		Lat:         r.lat,
		Lon:         r.lon,
		Description: describeReport(r, magnitude),
		Source:      SourceName,
		Quality:     domain.QualityPreliminary,
		DistanceKm:  math.Round(distance*10) / 10,
	}
	return event, true
}

// reportMagnitude parses the section's magnitude column. Tornado rows carry
// no numeric magnitude; hail sizes arrive in hundredths of inches.
func reportMagnitude(r report) *float64 {
	if r.eventType == domain.TypeTornado {
		return nil
	}
	return domain.ParseMagnitude(r.eventType, r.magnitude)
}

func reportLocation(r report) string {
	parts := []string{}
	if r.location != "" {
		parts = append(parts, r.location)
	}
	if r.state != "" {
		parts = append(parts, r.state)
	}
	return strings.Join(parts, ", ")
}

func describeReport(r report, magnitude *float64) string {
	var desc string
	switch {
	case r.eventType == domain.TypeTornado:
		desc = "Tornado"
		if r.magnitude != "" && !strings.EqualFold(r.magnitude, "UNK") {
			desc = "Tornado (" + strings.ToUpper(r.magnitude) + ")"
		}
	case magnitude != nil && r.eventType == domain.TypeHail:
		desc = fmt.Sprintf("Hail (%.2f\")", *magnitude)
	case magnitude != nil && r.eventType == domain.TypeWind:
		desc = fmt.Sprintf("Wind (%.0f mph)", *magnitude)
	default:
		desc = strings.ToUpper(r.eventType[:1]) + r.eventType[1:]
	}
	if r.comments != "" {
		desc += ": " + r.comments
	}
	return desc
}

// combineHHMM merges a report's HHMM time with its UTC day, the same
// convention the SPC files use. Bad times fall back to midnight.
func combineHHMM(day time.Time, hhmm string) time.Time {
	hhmm = strings.TrimSpace(hhmm)
	if len(hhmm) == 3 {
		hhmm = "0" + hhmm
	}
	if len(hhmm) != 4 {
		return day
	}
	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || hour > 23 || mins > 59 {
		return day
	}
	return time.Date(day.Year(), day.Month(), day.Day(), hour, mins, 0, 0, time.UTC)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
