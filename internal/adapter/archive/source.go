package archive

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/domain"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/observability"
)

// SourceName tags events from the bulk archive.
const SourceName = "NOAA Storm Events Archive"

// narrativeLimit truncates very long event narratives in descriptions.
const narrativeLimit = 200

// Source is the verified-data source: cached bulk files queried through a
// scan strategy, yielding quality-controlled events.
type Source struct {
	cache   *Cache
	scanner Scanner
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewSource wires a Source from its parts.
func NewSource(cache *Cache, scanner Scanner, logger *slog.Logger, metrics *observability.Metrics) *Source {
	return &Source{cache: cache, scanner: scanner, logger: logger, metrics: metrics}
}

// Events returns verified events within radiusKm of (lat, lon) during
// [start, end]. Years whose cache cannot be materialized are skipped with a
// warning; the remaining years still contribute.
func (s *Source) Events(ctx context.Context, lat, lon, radiusKm float64, start, end time.Time) ([]domain.WeatherEvent, error) {
	q := Query{
		Box:   domain.NewBoundingBox(lat, lon, radiusKm),
		Start: start,
		End:   end,
	}

	var out []domain.WeatherEvent
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		path, err := s.cache.Fetch(ctx, year)
		if err != nil {
			s.logger.Warn("skipping archive year", "year", year, "error", err)
			s.metrics.SourceFailures.WithLabelValues("archive").Inc()
			continue
		}
		records, err := s.scanner.Scan(ctx, path, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("archive scan failed", "year", year, "path", path, "error", err)
			s.metrics.SourceFailures.WithLabelValues("archive").Inc()
			continue
		}
		for _, rec := range records {
			event, ok := convertRecord(rec, lat, lon, radiusKm)
			if !ok {
				continue
			}
			out = append(out, event)
		}
	}
	s.metrics.SourceEvents.WithLabelValues("archive").Add(float64(len(out)))
	return out, nil
}

// convertRecord maps a scanned record to the domain model, refining the
// coarse bounding-box match with an exact haversine check.
func convertRecord(rec Record, lat, lon, radiusKm float64) (domain.WeatherEvent, bool) {
	distance := domain.HaversineKm(lat, lon, rec.Lat, rec.Lon)
	if distance > radiusKm {
		return domain.WeatherEvent{}, false
	}

	eventType := domain.NormalizeEventType(rec.EventType)
	magnitude := domain.ParseMagnitude(eventType, rec.Magnitude)
	damage := domain.ParseDamage(rec.DamageProperty)

	var severity domain.Severity
	if eventType == domain.TypeTornado {
		// EF ratings are ordinal, not physical magnitudes. They drive the
		// severity label but the event carries no numeric magnitude.
		severity = domain.ClassifyTornado(domain.ParseMagnitude(eventType, rec.TorFScale))
		magnitude = nil
	} else {
		severity = domain.Classify(eventType, magnitude)
		if magnitude == nil && damage > 0 && severityFromDamage(eventType) {
			severity = domain.ClassifyByDamage(damage / 1000)
		}
	}

	id := rec.EventID
	if id != "" {
		id = "se-" + id
	} else {
		id = domain.EventID(eventType, SourceName, rec.Lat, rec.Lon, rec.BeginTime)
	}

	return domain.WeatherEvent{
		ID:            id,
		Timestamp:     rec.BeginTime,
		EventType:     eventType,
		Magnitude:     magnitude,
		Severity:      severity,
		Location:      formatLocation(rec.CZName, rec.State),
		Lat:           rec.Lat,
		Lon:           rec.Lon,
		Description:   describeRecord(rec, eventType, magnitude),
		Source:        SourceName,
		Quality:       domain.QualityVerified,
		DamageDollars: damage,
		Injuries:      rec.InjuriesDirect,
		Deaths:        rec.DeathsDirect,
		DistanceKm:    math.Round(distance*10) / 10,
	}, true
}

// severityFromDamage is true for types whose severity comes from property
// damage rather than a measured magnitude.
func severityFromDamage(eventType string) bool {
	switch eventType {
	case domain.TypeFlood, domain.TypeWinter, domain.TypeFire:
		return true
	}
	return false
}

func formatLocation(czName, state string) string {
	czName = strings.TrimSpace(czName)
	state = strings.TrimSpace(state)
	switch {
	case czName == "":
		return state
	case state == "":
		return czName
	default:
		return czName + ", " + state
	}
}

func describeRecord(rec Record, eventType string, magnitude *float64) string {
	if n := strings.TrimSpace(rec.Narrative); n != "" {
		if len(n) > narrativeLimit {
			return n[:narrativeLimit] + "..."
		}
		return n
	}
	if magnitude != nil {
		return fmt.Sprintf("%s (%s)", titleType(eventType), domain.FormatMagnitude(eventType, *magnitude))
	}
	return titleType(eventType) + " event"
}

func titleType(eventType string) string {
	if eventType == "" {
		return "Weather"
	}
	return strings.ToUpper(eventType[:1]) + eventType[1:]
}
