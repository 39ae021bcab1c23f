package domain

import (
	"fmt"
	"time"
)

// DefaultLagDays is the worst-case publication lag of the verified bulk
// archive behind real time. NOAA documents 75-120 days; we assume the worst
// case so "verified" never overpromises.
const DefaultLagDays = 120

// Freshness describes how much of a query window is covered by verified data.
type Freshness struct {
	// FreshnessDate is the most recent date with verified coverage.
	FreshnessDate time.Time `json:"freshness_date"`
	// IsComplete is true when the whole window is verified.
	IsComplete bool `json:"is_complete"`
	// MissingDays counts window days past the freshness date.
	MissingDays int `json:"missing_days"`
	// CoveragePercent is the verified share of the window, 0-100.
	CoveragePercent float64 `json:"coverage_percent"`
	// Warning is a human-readable caveat, empty when complete.
	Warning string `json:"warning,omitempty"`
}

// GapCutoff returns the boundary between verified and preliminary data:
// midnight UTC of now minus lagDays.
func GapCutoff(now time.Time, lagDays int) time.Time {
	d := now.UTC().AddDate(0, 0, -lagDays)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// ComputeFreshness evaluates verified coverage of [start, end] as of now.
func ComputeFreshness(start, end, now time.Time, lagDays int) Freshness {
	cutoff := GapCutoff(now, lagDays)
	f := Freshness{FreshnessDate: cutoff}

	if !end.After(cutoff) {
		f.IsComplete = true
		f.CoveragePercent = 100
		return f
	}

	totalDays := int(end.Sub(start).Hours()/24) + 1
	if totalDays < 1 {
		totalDays = 1
	}
	missing := int(end.Sub(cutoff).Hours() / 24)
	if missing > totalDays {
		missing = totalDays
	}
	f.MissingDays = missing
	f.CoveragePercent = 100 * float64(totalDays-missing) / float64(totalDays)
	f.Warning = freshnessWarning(missing)
	return f
}

func freshnessWarning(missingDays int) string {
	switch {
	case missingDays <= 0:
		return ""
	case missingDays <= 30:
		return fmt.Sprintf("The most recent %d days are covered by preliminary reports only.", missingDays)
	case missingDays <= 90:
		return fmt.Sprintf("Verified data lags by %d days; recent months rely on preliminary storm reports.", missingDays)
	default:
		return fmt.Sprintf("Verified data lags by %d days; a substantial part of this period is preliminary and may change after quality control.", missingDays)
	}
}

// Disclaimer renders the user-facing data quality note for a report window.
func (f Freshness) Disclaimer() string {
	if f.IsComplete {
		return "All events in this period come from the quality-controlled NOAA Storm Events archive."
	}
	return fmt.Sprintf(
		"Events through %s come from the quality-controlled NOAA Storm Events archive; later events are preliminary NWS storm reports and live alerts subject to revision.",
		f.FreshnessDate.Format("January 2, 2006"),
	)
}
