package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Deduplicate removes events sharing the same (timestamp, type, source) key,
// keeping the first occurrence. Overlapping fetch windows can deliver the
// same observation twice.
func Deduplicate(events []WeatherEvent) []WeatherEvent {
	seen := make(map[string]bool, len(events))
	out := events[:0:0]
	for _, e := range events {
		key := e.Timestamp.UTC().Format(time.RFC3339) + "|" + e.EventType + "|" + e.Source
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, e)
	}
	return out
}

// consolidationKey groups same-day events of the same type and severity.
type consolidationKey struct {
	date      string
	eventType string
	severity  Severity
}

// Consolidate merges same-day events of the same type and severity into a
// single event carrying a count, the maximum magnitude, the union of
// locations, and aggregate damage. The operation is idempotent: consolidating
// an already consolidated list returns it unchanged (up to ordering).
func Consolidate(events []WeatherEvent) []WeatherEvent {
	groups := make(map[consolidationKey][]WeatherEvent)
	var order []consolidationKey
	for _, e := range events {
		key := consolidationKey{
			date:      e.Timestamp.UTC().Format("2006-01-02"),
			eventType: e.EventType,
			severity:  e.Severity,
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	out := make([]WeatherEvent, 0, len(order))
	for _, key := range order {
		out = append(out, mergeGroup(key, groups[key]))
	}
	return out
}

func mergeGroup(key consolidationKey, group []WeatherEvent) WeatherEvent {
	// Earliest first so the merged event anchors deterministically.
	sort.Slice(group, func(i, j int) bool {
		if !group[i].Timestamp.Equal(group[j].Timestamp) {
			return group[i].Timestamp.Before(group[j].Timestamp)
		}
		return group[i].ID < group[j].ID
	})

	if len(group) == 1 {
		e := group[0]
		if e.Count == 0 {
			e.Count = 1
		}
		return e
	}

	merged := group[0]
	merged.Count = 0
	var maxMag *float64
	var locations []string
	seenLoc := map[string]bool{}
	sources := map[string]bool{}
	merged.DamageDollars = 0
	merged.Injuries = 0
	merged.Deaths = 0

	for _, e := range group {
		n := e.Count
		if n == 0 {
			n = 1
		}
		merged.Count += n

		maxMag = maxPtr(maxMag, e.Magnitude)
		maxMag = maxPtr(maxMag, e.MaxMagnitude)

		if loc := strings.TrimSpace(e.Location); loc != "" && !seenLoc[loc] {
			seenLoc[loc] = true
			locations = append(locations, loc)
		}
		sources[e.Source] = true
		merged.DamageDollars += e.DamageDollars
		merged.Injuries += e.Injuries
		merged.Deaths += e.Deaths
	}

	merged.Magnitude = maxMag
	merged.MaxMagnitude = maxMag
	merged.Location = joinLocations(locations)
	if len(sources) > 1 {
		merged.Source = "multiple"
	}
	merged.Description = describeGroup(key.eventType, merged.Count, maxMag)
	merged.ID = EventID(key.eventType, "consolidated:"+string(key.severity), merged.Lat, merged.Lon, merged.Timestamp)
	return merged
}

// maxPtr returns the larger of two optional magnitudes.
func maxPtr(a, b *float64) *float64 {
	if b == nil {
		return a
	}
	if a == nil || *b > *a {
		v := *b
		return &v
	}
	return a
}

// joinLocations renders up to three distinct locations, summarizing the rest.
func joinLocations(locations []string) string {
	if len(locations) == 0 {
		return ""
	}
	if len(locations) <= 3 {
		return strings.Join(locations, "; ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(locations[:3], "; "), len(locations)-3)
}

func describeGroup(eventType string, count int, maxMag *float64) string {
	desc := fmt.Sprintf("%d %s events", count, eventType)
	if maxMag != nil {
		desc += fmt.Sprintf(" (max %s)", FormatMagnitude(eventType, *maxMag))
	}
	return desc
}

// SortByTimestampDesc orders events newest first, tie-broken by ID for
// deterministic output.
func SortByTimestampDesc(events []WeatherEvent) {
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.After(events[j].Timestamp)
		}
		return events[i].ID < events[j].ID
	})
}
