// Package cdo queries the NOAA Climate Data Online v2 API for daily station
// extremes. CDO is token-authenticated and quota-constrained (5 req/s,
// 10,000 req/day), so every request goes through the shared rate limiter.
// The engine uses it as a supplemental source when the bulk archive comes
// back thin for a verified window.
package cdo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/domain"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/observability"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/ratelimit"
)

// SourceName tags events derived from CDO daily summaries.
const SourceName = "NOAA Climate Data Online"

// DefaultBaseURL is the CDO v2 API root.
const DefaultBaseURL = "https://www.ncei.noaa.gov/cdo-web/api/v2"

// pageLimit is the maximum CDO page size.
const pageLimit = 1000

// Daily extreme thresholds for deriving events from GHCND observations.
// Metric units: mm for precipitation and snow, Celsius for temperature.
const (
	heavyRainMm   = 50.0
	extremeRainMm = 100.0
	heavySnowMm   = 100.0
	extremeSnowMm = 250.0
	heatC         = 37.8  // 100 F
	coldC         = -17.8 // 0 F

	mpsToMph = 2.23694
)

// requested GHCND datatypes: precipitation, fastest 2-minute wind, peak
// gust, max/min temperature, snowfall.
const datatypes = "PRCP,WSF2,WSF5,TMAX,TMIN,SNOW"

// Client queries CDO daily summaries.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewClient creates a Client. The token is the CDO API token tied to the
// quota the limiter enforces.
func NewClient(baseURL, token string, timeout time.Duration, limiter *ratelimit.Limiter, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
		logger:  logger,
		metrics: metrics,
	}
}

// observation is one GHCND daily value.
type observation struct {
	Date     string  `json:"date"`
	Datatype string  `json:"datatype"`
	Station  string  `json:"station"`
	Value    float64 `json:"value"`
}

type dataResponse struct {
	Metadata struct {
		Resultset struct {
			Count  int `json:"count"`
			Limit  int `json:"limit"`
			Offset int `json:"offset"`
		} `json:"resultset"`
	} `json:"metadata"`
	Results []observation `json:"results"`
}

// Events returns daily-extreme events near (lat, lon) for [start, end].
// Requests are chunked by calendar year; within a year the result set is
// paginated. A daily-quota failure aborts the whole call so the engine can
// degrade this source without burning the remaining quota.
func (c *Client) Events(ctx context.Context, lat, lon, radiusKm float64, start, end time.Time) ([]domain.WeatherEvent, error) {
	box := domain.NewBoundingBox(lat, lon, radiusKm)

	var out []domain.WeatherEvent
	for year := start.Year(); year <= end.Year(); year++ {
		chunkStart := maxTime(start, time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC))
		chunkEnd := minTime(end, time.Date(year, 12, 31, 23, 59, 59, 0, time.UTC))

		obs, err := c.fetchChunk(ctx, box, chunkStart, chunkEnd)
		if err != nil {
			c.metrics.SourceFailures.WithLabelValues("cdo").Inc()
			return nil, fmt.Errorf("cdo year %d: %w", year, err)
		}
		out = append(out, convertObservations(obs, lat, lon)...)
	}
	c.metrics.SourceEvents.WithLabelValues("cdo").Add(float64(len(out)))
	return out, nil
}

func (c *Client) fetchChunk(ctx context.Context, box domain.BoundingBox, start, end time.Time) ([]observation, error) {
	var all []observation
	offset := 1
	for {
		page, err := c.fetchPage(ctx, box, start, end, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, page.Results...)

		rs := page.Metadata.Resultset
		if rs.Offset+len(page.Results) > rs.Count || len(page.Results) == 0 {
			return all, nil
		}
		offset = rs.Offset + rs.Limit
	}
}

func (c *Client) fetchPage(ctx context.Context, box domain.BoundingBox, start, end time.Time, offset int) (*dataResponse, error) {
	waitStart := time.Now()
	if err := c.limiter.Acquire(ctx); err != nil {
		if errors.Is(err, ratelimit.ErrDailyLimitExceeded) {
			c.metrics.LimiterQuotaHits.Inc()
		}
		return nil, err
	}
	c.metrics.LimiterWaits.Observe(time.Since(waitStart).Seconds())

	params := url.Values{}
	params.Set("datasetid", "GHCND")
	params.Set("datatypeid", datatypes)
	params.Set("startdate", start.Format("2006-01-02"))
	params.Set("enddate", end.Format("2006-01-02"))
	params.Set("extent", fmt.Sprintf("%.4f,%.4f,%.4f,%.4f", box.MinLat, box.MinLon, box.MaxLat, box.MaxLon))
	params.Set("units", "metric")
	params.Set("limit", strconv.Itoa(pageLimit))
	params.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/data?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("token", c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get cdo data: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get cdo data: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read cdo response: %w", err)
	}
	var parsed dataResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode cdo response: %w", err)
	}
	return &parsed, nil
}

// convertObservations derives events from observations crossing the daily
// extreme thresholds. Sub-threshold observations are dropped; GHCND records
// every day, extreme or not.
func convertObservations(obs []observation, lat, lon float64) []domain.WeatherEvent {
	var out []domain.WeatherEvent
	for _, o := range obs {
		event, ok := convertObservation(o, lat, lon)
		if !ok {
			continue
		}
		out = append(out, event)
	}
	return out
}

func convertObservation(o observation, lat, lon float64) (domain.WeatherEvent, bool) {
	ts, err := time.Parse("2006-01-02T15:04:05", o.Date)
	if err != nil {
		return domain.WeatherEvent{}, false
	}

	var (
		eventType   string
		severity    domain.Severity
		magnitude   *float64
		description string
	)

	switch o.Datatype {
	case "PRCP":
		if o.Value < heavyRainMm {
			return domain.WeatherEvent{}, false
		}
		eventType = domain.TypeFlood
		severity = domain.SeverityModerate
		if o.Value >= extremeRainMm {
			severity = domain.SeveritySevere
		}
		description = fmt.Sprintf("Heavy rain (%.0f mm)", o.Value)
	case "WSF2", "WSF5":
		mph := o.Value * mpsToMph
		if mph < domain.WindModerateMph {
			return domain.WeatherEvent{}, false
		}
		eventType = domain.TypeWind
		magnitude = domain.Float(mph)
		severity = domain.ClassifyWind(mph)
		description = fmt.Sprintf("Wind gust (%.0f mph)", mph)
	case "TMAX":
		if o.Value < heatC {
			return domain.WeatherEvent{}, false
		}
		eventType = domain.TypeHeat
		severity = domain.SeverityModerate
		description = fmt.Sprintf("Extreme heat (%.1f C)", o.Value)
	case "TMIN":
		if o.Value > coldC {
			return domain.WeatherEvent{}, false
		}
		eventType = domain.TypeCold
		severity = domain.SeverityModerate
		description = fmt.Sprintf("Extreme cold (%.1f C)", o.Value)
	case "SNOW":
		if o.Value < heavySnowMm {
			return domain.WeatherEvent{}, false
		}
		eventType = domain.TypeWinter
		severity = domain.SeverityModerate
		if o.Value >= extremeSnowMm {
			severity = domain.SeveritySevere
		}
		description = fmt.Sprintf("Heavy snow (%.0f mm)", o.Value)
	default:
		return domain.WeatherEvent{}, false
	}

	return domain.WeatherEvent{
		ID:          domain.EventID(eventType, o.Station, lat, lon, ts),
		Timestamp:   ts,
		EventType:   eventType,
		Magnitude:   magnitude,
		Severity:    severity,
		Location:    o.Station,
		Lat:         lat,
		Lon:         lon,
		Description: description,
		Source:      SourceName,
		Quality:     domain.QualityVerified,
	}, true
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
