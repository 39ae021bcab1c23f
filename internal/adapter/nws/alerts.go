// Package nws fetches active alerts from the National Weather Service API.
// Alerts are live warnings rather than observations; they cover the "right
// now" end of a query window that neither archive has reached.
package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/domain"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/observability"
)

// SourceName tags events from NWS active alerts.
const SourceName = "NWS Active Alerts"

// DefaultBaseURL is the public NWS API root.
const DefaultBaseURL = "https://api.weather.gov"

// userAgent identifies us to the NWS API, which rejects anonymous clients.
const userAgent = "apexos-reports-service (weather-data@apexos.example)"

// AlertClient fetches active alerts for a point, behind a circuit breaker so
// a flapping upstream degrades fast instead of stalling every query.
type AlertClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewAlertClient creates an AlertClient.
func NewAlertClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *AlertClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "nws-alerts",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &AlertClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
		logger:  logger,
		metrics: metrics,
	}
}

// alertsResponse mirrors the GeoJSON feature collection the API returns.
type alertsResponse struct {
	Features []struct {
		Properties alertProperties `json:"properties"`
	} `json:"features"`
}

type alertProperties struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	Severity    string    `json:"severity"`
	Headline    string    `json:"headline"`
	Description string    `json:"description"`
	AreaDesc    string    `json:"areaDesc"`
	Sent        time.Time `json:"sent"`
	Effective   time.Time `json:"effective"`
}

// Events returns active alerts at (lat, lon) as current-quality events.
func (c *AlertClient) Events(ctx context.Context, lat, lon float64) ([]domain.WeatherEvent, error) {
	result, err := c.breaker.Execute(func() (any, error) {
		return c.fetchAlerts(ctx, lat, lon)
	})
	if err != nil {
		c.metrics.SourceFailures.WithLabelValues("alerts").Inc()
		return nil, err
	}
	alerts := result.([]alertProperties)

	events := make([]domain.WeatherEvent, 0, len(alerts))
	for _, a := range alerts {
		events = append(events, convertAlert(a, lat, lon))
	}
	c.metrics.SourceEvents.WithLabelValues("alerts").Add(float64(len(events)))
	return events, nil
}

func (c *AlertClient) fetchAlerts(ctx context.Context, lat, lon float64) ([]alertProperties, error) {
	url := fmt.Sprintf("%s/alerts/active?point=%.4f,%.4f&status=actual&message_type=alert", c.baseURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/geo+json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get active alerts: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get active alerts: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read alerts response: %w", err)
	}
	var parsed alertsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode alerts response: %w", err)
	}

	alerts := make([]alertProperties, 0, len(parsed.Features))
	for _, f := range parsed.Features {
		alerts = append(alerts, f.Properties)
	}
	return alerts, nil
}

// convertAlert maps an alert to the canonical event shape. Alerts carry no
// measurements, but wind and hail figures often appear in the description
// text and are recovered when present.
func convertAlert(a alertProperties, lat, lon float64) domain.WeatherEvent {
	eventType := domain.NormalizeEventType(a.Event)
	magnitude := magnitudeFromText(eventType, a.Description+" "+a.Headline)

	ts := a.Sent
	if ts.IsZero() {
		ts = a.Effective
	}

	id := a.ID
	if id == "" {
		id = domain.EventID(eventType, SourceName, lat, lon, ts)
	}

	description := a.Headline
	if description == "" {
		description = a.Event
	}

	return domain.WeatherEvent{
		ID:          id,
		Timestamp:   ts,
		EventType:   eventType,
		Magnitude:   magnitude,
		Severity:    alertSeverity(a.Severity, eventType, magnitude),
		Location:    a.AreaDesc,
		Lat:         lat,
		Lon:         lon,
		Description: description,
		Source:      SourceName,
		Quality:     domain.QualityCurrent,
	}
}

func magnitudeFromText(eventType, text string) *float64 {
	switch eventType {
	case domain.TypeHail:
		return domain.ParseHailSizeFromText(text)
	case domain.TypeWind, domain.TypeThunderstorm, domain.TypeHurricane:
		return domain.ParseWindSpeedFromText(text)
	default:
		return nil
	}
}

// alertSeverity prefers a magnitude-derived label, falling back to the NWS
// severity field when nothing measurable is in the text.
func alertSeverity(nwsSeverity, eventType string, magnitude *float64) domain.Severity {
	if magnitude != nil || eventType == domain.TypeTornado || eventType == domain.TypeHurricane {
		return domain.Classify(eventType, magnitude)
	}
	switch nwsSeverity {
	case "Extreme":
		return domain.SeverityExtreme
	case "Severe":
		return domain.SeveritySevere
	case "Moderate":
		return domain.SeverityModerate
	case "Minor":
		return domain.SeverityMinor
	default:
		return domain.Classify(eventType, magnitude)
	}
}
