package archive

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/domain"
)

// Record is one projected row from a bulk detail file. Strings are kept raw;
// interpretation (magnitude normalization, severity) happens in the source
// layer.
type Record struct {
	EventID        string
	EventType      string
	BeginTime      time.Time
	Lat            float64
	Lon            float64
	Magnitude      string
	MagnitudeType  string
	TorFScale      string
	CZName         string
	State          string
	DamageProperty string
	InjuriesDirect int
	DeathsDirect   int
	Narrative      string
}

// Query filters a scan by bounding box and time window (inclusive).
type Query struct {
	Box   domain.BoundingBox
	Start time.Time
	End   time.Time
}

// Scanner extracts matching records from a cached bulk CSV. Implementations
// must return identical record sets for the same file and query.
type Scanner interface {
	Scan(ctx context.Context, path string, q Query) ([]Record, error)
}

// projectedColumns are the bulk file columns the scanners read. The files
// carry 50+ columns; everything else is skipped at parse time.
var projectedColumns = []string{
	"EVENT_ID", "EVENT_TYPE", "BEGIN_DATE_TIME", "BEGIN_LAT", "BEGIN_LON",
	"MAGNITUDE", "MAGNITUDE_TYPE", "CZ_NAME", "STATE", "DAMAGE_PROPERTY",
	"INJURIES_DIRECT", "DEATHS_DIRECT", "EVENT_NARRATIVE", "TOR_F_SCALE",
}

// beginTimeLayouts are the date formats observed across compilation vintages.
var beginTimeLayouts = []string{
	"02-Jan-06 15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// NewScanner selects a scan strategy. mode is "columnar", "rows", or "auto";
// auto uses the columnar scanner for files within maxInMemoryBytes and
// streams larger ones.
func NewScanner(mode string, maxInMemoryBytes int64, logger *slog.Logger) Scanner {
	switch mode {
	case "rows":
		return &rowScanner{}
	case "columnar":
		return &columnarScanner{fallback: &rowScanner{}, maxBytes: 0, logger: logger}
	default:
		return &columnarScanner{fallback: &rowScanner{}, maxBytes: maxInMemoryBytes, logger: logger}
	}
}

// ── Columnar strategy ──

// columnarScanner loads the projected columns into typed arrays and filters
// them in bulk. Fastest for repeated in-memory predicates; falls back to row
// streaming when a file exceeds the memory budget.
type columnarScanner struct {
	fallback *rowScanner
	maxBytes int64 // 0 disables the size check
	logger   *slog.Logger
}

// columns is the loaded columnar representation of one file.
type columns struct {
	times    []time.Time
	timeOK   []bool
	lats     []float64
	lons     []float64
	coordOK  []bool
	raw      [][]string // projected string columns, indexed as projectedColumns
	rowCount int
}

func (s *columnarScanner) Scan(ctx context.Context, path string, q Query) ([]Record, error) {
	if s.maxBytes > 0 {
		fi, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if fi.Size() > s.maxBytes {
			s.logger.Debug("file exceeds columnar memory budget, streaming",
				"path", path, "size", fi.Size(), "budget", s.maxBytes)
			return s.fallback.Scan(ctx, path, q)
		}
	}

	cols, err := loadColumns(ctx, path)
	if err != nil {
		return nil, err
	}

	// Vectorized filter pass over the typed arrays.
	var matched []int
	for i := 0; i < cols.rowCount; i++ {
		if !cols.timeOK[i] || !cols.coordOK[i] {
			continue
		}
		if cols.times[i].Before(q.Start) || cols.times[i].After(q.End) {
			continue
		}
		if !q.Box.Contains(cols.lats[i], cols.lons[i]) {
			continue
		}
		matched = append(matched, i)
	}

	out := make([]Record, 0, len(matched))
	for _, i := range matched {
		out = append(out, materialize(cols, i))
	}
	return out, nil
}

func loadColumns(ctx context.Context, path string) (*columns, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := newCSVReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := columnIndexes(header)
	if err != nil {
		return nil, err
	}

	cols := &columns{raw: make([][]string, len(projectedColumns))}
	for {
		if cols.rowCount%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Malformed row: skip, never fatal.
			continue
		}

		projected := make([]string, len(projectedColumns))
		for ci, col := range projectedColumns {
			if j, ok := idx[col]; ok && j < len(row) {
				projected[ci] = strings.TrimSpace(row[j])
			}
		}

		t, tok := parseBeginTime(projected[2])
		lat, lon, cok := parseCoords(projected[3], projected[4])

		cols.times = append(cols.times, t)
		cols.timeOK = append(cols.timeOK, tok)
		cols.lats = append(cols.lats, lat)
		cols.lons = append(cols.lons, lon)
		cols.coordOK = append(cols.coordOK, cok)
		for ci := range projectedColumns {
			cols.raw[ci] = append(cols.raw[ci], projected[ci])
		}
		cols.rowCount++
	}
	return cols, nil
}

func materialize(cols *columns, i int) Record {
	return Record{
		EventID:        cols.raw[0][i],
		EventType:      cols.raw[1][i],
		BeginTime:      cols.times[i],
		Lat:            cols.lats[i],
		Lon:            cols.lons[i],
		Magnitude:      cols.raw[5][i],
		MagnitudeType:  cols.raw[6][i],
		TorFScale:      cols.raw[13][i],
		CZName:         cols.raw[7][i],
		State:          cols.raw[8][i],
		DamageProperty: cols.raw[9][i],
		InjuriesDirect: atoiSafe(cols.raw[10][i]),
		DeathsDirect:   atoiSafe(cols.raw[11][i]),
		Narrative:      cols.raw[12][i],
	}
}

// ── Row streaming strategy ──

// rowScanner streams the file row by row, filtering as it goes. Constant
// memory regardless of file size.
type rowScanner struct{}

func (s *rowScanner) Scan(ctx context.Context, path string, q Query) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := newCSVReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx, err := columnIndexes(header)
	if err != nil {
		return nil, err
	}

	get := func(row []string, col string) string {
		if j, ok := idx[col]; ok && j < len(row) {
			return strings.TrimSpace(row[j])
		}
		return ""
	}

	var out []Record
	rows := 0
	for {
		rows++
		if rows%4096 == 0 && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}

		t, ok := parseBeginTime(get(row, "BEGIN_DATE_TIME"))
		if !ok || t.Before(q.Start) || t.After(q.End) {
			continue
		}
		lat, lon, ok := parseCoords(get(row, "BEGIN_LAT"), get(row, "BEGIN_LON"))
		if !ok || !q.Box.Contains(lat, lon) {
			continue
		}

		out = append(out, Record{
			EventID:        get(row, "EVENT_ID"),
			EventType:      get(row, "EVENT_TYPE"),
			BeginTime:      t,
			Lat:            lat,
			Lon:            lon,
			Magnitude:      get(row, "MAGNITUDE"),
			MagnitudeType:  get(row, "MAGNITUDE_TYPE"),
			TorFScale:      get(row, "TOR_F_SCALE"),
			CZName:         get(row, "CZ_NAME"),
			State:          get(row, "STATE"),
			DamageProperty: get(row, "DAMAGE_PROPERTY"),
			InjuriesDirect: atoiSafe(get(row, "INJURIES_DIRECT")),
			DeathsDirect:   atoiSafe(get(row, "DEATHS_DIRECT")),
			Narrative:      get(row, "EVENT_NARRATIVE"),
		})
	}
	return out, nil
}

// ── Shared helpers ──

func newCSVReader(f *os.File) *csv.Reader {
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // bulk files occasionally have ragged rows
	r.LazyQuotes = true
	return r
}

func columnIndexes(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToUpper(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"EVENT_TYPE", "BEGIN_DATE_TIME", "BEGIN_LAT", "BEGIN_LON"} {
		if _, ok := idx[required]; !ok {
			return nil, fmt.Errorf("bulk file missing required column %s", required)
		}
	}
	return idx, nil
}

func parseBeginTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range beginTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseCoords(latStr, lonStr string) (float64, float64, bool) {
	lat, err1 := strconv.ParseFloat(latStr, 64)
	lon, err2 := strconv.ParseFloat(lonStr, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func atoiSafe(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
