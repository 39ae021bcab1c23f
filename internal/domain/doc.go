// Package domain models severe weather events reconciled from NOAA sources.
//
// # Data Sources
//
// Three sources feed the same event model, distinguished by data quality:
//
//	verified     NOAA Storm Events bulk archive (annual CSV compilations at
//	             https://www.ncei.noaa.gov/pub/data/swdi/stormevents/csvfiles/).
//	             Quality-controlled, but published with a lag of roughly 75-120
//	             days behind real time.
//	preliminary  NOAA Storm Prediction Center (SPC) daily filtered reports at
//	             https://www.spc.noaa.gov/climo/reports/. Near-real-time local
//	             storm reports that have not yet been quality-controlled.
//	current      NWS active alerts (api.weather.gov). Live warnings and
//	             advisories, not observations.
//
// # Magnitude Conventions
//
// Magnitude is a pointer because not every event has a measurable magnitude:
//
//	Hail:    diameter in inches. SPC encodes hundredths of inches (125 = 1.25");
//	         values >= 10 are assumed to use that encoding because the largest
//	         hail ever recorded in the US was ~8 inches (Vivian, SD, 2010).
//	Wind:    speed in mph. Alert text may report knots, converted at 1.15078.
//	Tornado: no numeric magnitude. The EF scale is an ordinal damage rating,
//	         not comparable to physical measurements, so tornado events carry
//	         a nil magnitude and classify by EF rating separately.
//
// "UNK" is the NOAA sentinel for unknown magnitude.
//
// # Severity Classification
//
// The four-level scale (minor, moderate, severe, extreme) is derived from
// magnitude thresholds aligned with NWS severe weather criteria:
//
//	Hail:    <0.5" minor | <1.0" moderate | <2.0" severe | >=2.0" extreme
//	Wind:    <40 mph minor | <60 mph moderate | <80 mph severe | >=80 mph extreme
//	Tornado: always at least severe; EF4+ extreme
//
// Actionability is stricter: hail >= 1.0" or wind >= 60 mph (the sizes that
// produce insurance-relevant property damage), plus any tornado or hurricane.
//
// # ID Generation
//
// Event IDs are deterministic SHA-256 hashes of type|source|lat|lon|time.
// Re-fetching the same window produces the same IDs, which keeps merges and
// downstream upserts idempotent.
package domain
