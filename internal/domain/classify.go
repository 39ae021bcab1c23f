package domain

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Severity thresholds aligned with NWS severe weather criteria.
// Hail in inches, wind in mph.
const (
	HailModerateIn = 0.5
	HailSevereIn   = 1.0
	HailExtremeIn  = 2.0

	WindModerateMph = 40.0
	WindSevereMph   = 60.0
	WindExtremeMph  = 80.0

	// Actionability thresholds: the sizes that typically produce
	// insurance-relevant roof and siding damage.
	HailActionableIn  = 1.0
	WindActionableMph = 60.0

	// KnotsToMph converts marine wind reports to mph.
	KnotsToMph = 1.15078
)

var (
	// hailSizeRe matches hail diameters in free text, e.g. `1.75"`,
	// "1.75 inch hail", "hail up to 2 in".
	hailSizeRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:"|''|inch(?:es)?\b|in\b)`)

	// windSpeedRe matches wind speeds in free text, e.g. "65 mph",
	// "wind gusts to 70mph", "50 knots", "55 kt".
	windSpeedRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(mph|knots?|kts?)\b`)
)

// ClassifyHail maps hail diameter in inches to a severity label.
func ClassifyHail(sizeIn float64) Severity {
	switch {
	case sizeIn >= HailExtremeIn:
		return SeverityExtreme
	case sizeIn >= HailSevereIn:
		return SeveritySevere
	case sizeIn >= HailModerateIn:
		return SeverityModerate
	default:
		return SeverityMinor
	}
}

// ClassifyWind maps wind speed in mph to a severity label.
func ClassifyWind(mph float64) Severity {
	switch {
	case mph >= WindExtremeMph:
		return SeverityExtreme
	case mph >= WindSevereMph:
		return SeveritySevere
	case mph >= WindModerateMph:
		return SeverityModerate
	default:
		return SeverityMinor
	}
}

// ClassifyTornado maps an EF rating to a severity label. Any confirmed
// tornado is at least severe; EF4 and EF5 are extreme. Pass a nil rating
// for tornadoes without a published EF scale.
func ClassifyTornado(efScale *float64) Severity {
	if efScale != nil && *efScale >= 4 {
		return SeverityExtreme
	}
	return SeveritySevere
}

// ClassifyByDamage maps property damage in thousands of dollars to a severity
// label, for event types without a measurable magnitude.
func ClassifyByDamage(damageThousands float64) Severity {
	switch {
	case damageThousands > 50:
		return SeveritySevere
	case damageThousands > 25:
		return SeverityModerate
	default:
		return SeverityMinor
	}
}

// Classify derives a severity label for an event type and optional magnitude.
// Tornadoes and hurricanes are always at least severe regardless of magnitude;
// hail and wind fall back to moderate when the magnitude is unmeasured.
func Classify(eventType string, magnitude *float64) Severity {
	switch eventType {
	case TypeTornado:
		return ClassifyTornado(magnitude)
	case TypeHurricane:
		return SeveritySevere
	case TypeHail:
		if magnitude == nil {
			return SeverityModerate
		}
		return ClassifyHail(*magnitude)
	case TypeWind, TypeThunderstorm:
		if magnitude == nil {
			return SeverityModerate
		}
		return ClassifyWind(*magnitude)
	default:
		return SeverityModerate
	}
}

// IsActionable reports whether an event type and magnitude cross the
// damage-producing thresholds: hail >= 1.0", wind >= 60 mph, or any
// tornado or hurricane.
func IsActionable(eventType string, magnitude *float64) bool {
	switch eventType {
	case TypeTornado, TypeHurricane:
		return true
	case TypeHail:
		return magnitude != nil && *magnitude >= HailActionableIn
	case TypeWind, TypeThunderstorm:
		return magnitude != nil && *magnitude >= WindActionableMph
	default:
		return false
	}
}

// hailDescriptors maps common reference objects to diameters in inches,
// largest first so HailSizeDescriptor picks the tightest fit.
var hailDescriptors = []struct {
	name string
	size float64
}{
	{"grapefruit", 4.5},
	{"softball", 4.0},
	{"baseball", 2.75},
	{"tennis ball", 2.5},
	{"golf ball", 1.75},
	{"ping pong ball", 1.5},
	{"quarter", 1.0},
	{"nickel", 0.88},
	{"penny", 0.75},
	{"pea", 0.25},
}

// HailSizeDescriptor returns the conventional NWS reference object for a hail
// diameter, e.g. 1.75 -> "golf ball". Empty for sizes below pea size.
func HailSizeDescriptor(sizeIn float64) string {
	for _, d := range hailDescriptors {
		if sizeIn >= d.size {
			return d.name
		}
	}
	return ""
}

// ParseHailSizeFromText extracts a hail diameter in inches from free text,
// e.g. alert descriptions like `quarter size hail (1.00")`. Returns nil when
// no size is found.
func ParseHailSizeFromText(text string) *float64 {
	m := hailSizeRe.FindStringSubmatch(strings.ToLower(text))
	if len(m) != 2 {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// ParseWindSpeedFromText extracts a wind speed in mph from free text.
// Knot values are converted to mph. Returns nil when no speed is found.
func ParseWindSpeedFromText(text string) *float64 {
	m := windSpeedRe.FindStringSubmatch(strings.ToLower(text))
	if len(m) != 3 {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	if strings.HasPrefix(m[2], "k") {
		v *= KnotsToMph
	}
	return &v
}

// severityMultipliers scale the base business impact score.
var severityMultipliers = map[Severity]float64{
	SeverityExtreme:  1.5,
	SeveritySevere:   1.3,
	SeverityModerate: 1.1,
	SeverityMinor:    0.8,
}

// baseImpactScores are per-type starting points for business impact scoring.
var baseImpactScores = map[string]float64{
	TypeTornado:      90,
	TypeHurricane:    85,
	TypeHail:         70,
	TypeWind:         60,
	TypeFire:         55,
	TypeFlood:        50,
	TypeWinter:       40,
	TypeThunderstorm: 35,
	TypeHeat:         20,
	TypeCold:         20,
	TypeOther:        10,
}

// BusinessImpactScore estimates the property damage relevance of an event on
// a 0-100 scale: a per-type base score scaled by a severity multiplier.
func BusinessImpactScore(eventType string, severity Severity) float64 {
	base, ok := baseImpactScores[eventType]
	if !ok {
		base = baseImpactScores[TypeOther]
	}
	mult, ok := severityMultipliers[severity]
	if !ok {
		mult = 1.0
	}
	return math.Min(100, math.Max(0, base*mult))
}

// eventTypeAliases folds raw NOAA event names into the canonical type set.
// Keys are lowercase.
var eventTypeAliases = map[string]string{
	"hail":                     TypeHail,
	"marine hail":              TypeHail,
	"thunderstorm wind":        TypeWind,
	"marine thunderstorm wind": TypeWind,
	"high wind":                TypeWind,
	"strong wind":              TypeWind,
	"marine high wind":         TypeWind,
	"tornado":                  TypeTornado,
	"funnel cloud":             TypeTornado,
	"waterspout":               TypeTornado,
	"flash flood":              TypeFlood,
	"flood":                    TypeFlood,
	"coastal flood":            TypeFlood,
	"lakeshore flood":          TypeFlood,
	"heavy rain":               TypeFlood,
	"winter storm":             TypeWinter,
	"winter weather":           TypeWinter,
	"heavy snow":               TypeWinter,
	"ice storm":                TypeWinter,
	"blizzard":                 TypeWinter,
	"sleet":                    TypeWinter,
	"wildfire":                 TypeFire,
	"excessive heat":           TypeHeat,
	"heat":                     TypeHeat,
	"extreme cold/wind chill":  TypeCold,
	"cold/wind chill":          TypeCold,
	"frost/freeze":             TypeCold,
	"hurricane":                TypeHurricane,
	"hurricane (typhoon)":      TypeHurricane,
	"tropical storm":           TypeHurricane,
	"tropical depression":      TypeHurricane,
	"lightning":                TypeThunderstorm,
}

// NormalizeEventType folds a raw NOAA event name into the canonical type set.
// Unrecognized names become TypeOther; substring fallbacks catch regional
// variants like "Tornado Warning" or "Damaging Wind".
func NormalizeEventType(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return TypeOther
	}
	if t, ok := eventTypeAliases[name]; ok {
		return t
	}
	switch {
	case strings.Contains(name, "tornado"):
		return TypeTornado
	case strings.Contains(name, "hurricane"), strings.Contains(name, "tropical"):
		return TypeHurricane
	case strings.Contains(name, "hail"):
		return TypeHail
	case strings.Contains(name, "wind"):
		return TypeWind
	case strings.Contains(name, "flood"):
		return TypeFlood
	case strings.Contains(name, "winter"), strings.Contains(name, "snow"), strings.Contains(name, "ice"):
		return TypeWinter
	case strings.Contains(name, "fire"):
		return TypeFire
	case strings.Contains(name, "heat"):
		return TypeHeat
	case strings.Contains(name, "cold"), strings.Contains(name, "freeze"), strings.Contains(name, "chill"):
		return TypeCold
	case strings.Contains(name, "thunderstorm"):
		return TypeThunderstorm
	default:
		return TypeOther
	}
}

// ParseMagnitude parses a raw magnitude string, treating the NOAA "UNK"
// sentinel and empty strings as unmeasured. Hail values >= 10 inches are
// assumed to be hundredths of inches and divided by 100.
func ParseMagnitude(eventType, raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "UNK") {
		return nil
	}
	raw = strings.TrimPrefix(raw, "EF")
	raw = strings.TrimPrefix(raw, "F")

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	if eventType == TypeHail && v >= 10 {
		v /= 100.0
	}
	return &v
}

// ParseDamage converts a NOAA damage string like "10.00K", "2.5M" or "1B"
// into dollars. Returns 0 for empty or malformed values.
func ParseDamage(raw string) float64 {
	raw = strings.TrimSpace(strings.ToUpper(raw))
	if raw == "" {
		return 0
	}
	mult := 1.0
	switch raw[len(raw)-1] {
	case 'K':
		mult = 1e3
		raw = raw[:len(raw)-1]
	case 'M':
		mult = 1e6
		raw = raw[:len(raw)-1]
	case 'B':
		mult = 1e9
		raw = raw[:len(raw)-1]
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return v * mult
}

// FormatMagnitude renders a magnitude for human-readable descriptions,
// e.g. hail -> `1.75"`, wind -> "65 mph".
func FormatMagnitude(eventType string, magnitude float64) string {
	switch eventType {
	case TypeHail:
		return fmt.Sprintf("%.2f\"", magnitude)
	case TypeWind, TypeThunderstorm:
		return fmt.Sprintf("%.0f mph", magnitude)
	default:
		return fmt.Sprintf("%g", magnitude)
	}
}
