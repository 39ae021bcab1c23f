package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Canonical event types. Raw NOAA names are folded into this set by
// NormalizeEventType.
const (
	TypeHail         = "hail"
	TypeWind         = "wind"
	TypeTornado      = "tornado"
	TypeFlood        = "flood"
	TypeWinter       = "winter"
	TypeFire         = "fire"
	TypeHeat         = "heat"
	TypeCold         = "cold"
	TypeHurricane    = "hurricane"
	TypeThunderstorm = "thunderstorm"
	TypeOther        = "other"
)

// Severity is the four-level classification derived from magnitude.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	SeverityExtreme  Severity = "extreme"
)

// rank orders severities for comparisons; higher is worse.
func (s Severity) rank() int {
	switch s {
	case SeverityMinor:
		return 0
	case SeverityModerate:
		return 1
	case SeveritySevere:
		return 2
	case SeverityExtreme:
		return 3
	}
	return -1
}

// AtLeast reports whether s is at least as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// DataQuality tags which pipeline stage an event came from.
type DataQuality string

const (
	QualityVerified    DataQuality = "verified"    // bulk archive, quality-controlled
	QualityPreliminary DataQuality = "preliminary" // SPC local storm reports
	QualityCurrent     DataQuality = "current"     // NWS active alerts
)

// WeatherEvent is the unified event model across all sources.
type WeatherEvent struct {
	ID          string      `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	EventType   string      `json:"event_type"`
	Magnitude   *float64    `json:"magnitude,omitempty"`
	Severity    Severity    `json:"severity"`
	Location    string      `json:"location,omitempty"`
	Lat         float64     `json:"lat,omitempty"`
	Lon         float64     `json:"lon,omitempty"`
	Description string      `json:"description,omitempty"`
	Source      string      `json:"source"`
	Quality     DataQuality `json:"data_quality"`

	// Consolidation fields. Count is 0 on raw events and >= 1 once an event
	// has passed through Consolidate.
	Count         int      `json:"count,omitempty"`
	MaxMagnitude  *float64 `json:"max_magnitude,omitempty"`
	DamageDollars float64  `json:"damage_dollars,omitempty"`

	// Casualty counts, populated only by the bulk archive.
	Injuries int `json:"injuries,omitempty"`
	Deaths   int `json:"deaths,omitempty"`

	// DistanceKm from the query point, when a radius filter was applied.
	DistanceKm float64 `json:"distance_km,omitempty"`
}

// Actionable reports whether the event meets the thresholds that typically
// produce insurance-relevant property damage.
func (e *WeatherEvent) Actionable() bool {
	return IsActionable(e.EventType, e.Magnitude)
}

// EventID produces a deterministic ID from the event's key fields.
// Re-fetching the same window yields the same IDs, keeping merges idempotent.
func EventID(eventType, source string, lat, lon float64, ts time.Time) string {
	input := fmt.Sprintf("%s|%s|%.4f|%.4f|%s", eventType, source, lat, lon, ts.UTC().Format(time.RFC3339))
	hash := sha256.Sum256([]byte(input))
	short := hex.EncodeToString(hash[:8])
	if eventType == "" {
		return short
	}
	return eventType + "-" + short
}

// Float returns a pointer to v. Convenience for optional magnitudes.
func Float(v float64) *float64 { return &v }
