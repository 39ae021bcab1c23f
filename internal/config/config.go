// Package config loads service settings from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// CacheDir is the root for cached bulk archive and SPC daily files.
	CacheDir string

	// Upstream endpoints. Defaults point at the public NOAA/NWS services;
	// tests and air-gapped setups override them.
	ArchiveBaseURL string
	SPCBaseURL     string
	NWSBaseURL     string
	CDOBaseURL     string

	// CDOToken enables the supplemental climate source when set.
	CDOToken          string
	CDORequestsPerSec float64
	CDORequestsPerDay int
	CDOBufferFactor   float64

	// LagDays is the assumed publication lag of the verified archive.
	LagDays int

	// Bulk file scanning strategy: auto, columnar, or rows.
	ScanMode        string
	ScanMemoryBytes int64

	// RequestTimeout bounds each upstream HTTP request; FetchTimeout bounds
	// a whole reconciliation query.
	RequestTimeout time.Duration
	FetchTimeout   time.Duration

	// Kafka export is enabled when brokers are configured.
	KafkaBrokers     []string
	KafkaExportTopic string

	RefresherEnabled bool
}

// ExportEnabled reports whether consolidated results should be published.
func (c *Config) ExportEnabled() bool { return len(c.KafkaBrokers) > 0 }

// CDOEnabled reports whether the supplemental climate source is configured.
func (c *Config) CDOEnabled() bool { return c.CDOToken != "" }

// Load reads configuration from environment variables, applying defaults
// where unset. Validation errors name the offending variable.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	requestTimeout, err := parseDuration("REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	fetchTimeout, err := parseDuration("FETCH_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, err
	}

	lagDays, err := parseInt("LAG_DAYS", 120, 1, 365)
	if err != nil {
		return nil, err
	}
	cdoPerDay, err := parseInt("CDO_REQUESTS_PER_DAY", 10000, 1, 1_000_000)
	if err != nil {
		return nil, err
	}
	cdoPerSec, err := parseFloat("CDO_REQUESTS_PER_SEC", 5)
	if err != nil {
		return nil, err
	}
	cdoBuffer, err := parseFloat("CDO_BUFFER_FACTOR", 0.8)
	if err != nil {
		return nil, err
	}
	if cdoBuffer <= 0 || cdoBuffer > 1 {
		return nil, fmt.Errorf("CDO_BUFFER_FACTOR must be in (0, 1], got %v", cdoBuffer)
	}

	scanMemory, err := parseInt("SCAN_MEMORY_BUDGET_MB", 256, 1, 16384)
	if err != nil {
		return nil, err
	}

	scanMode := envOrDefault("SCAN_MODE", "auto")
	switch scanMode {
	case "auto", "columnar", "rows":
	default:
		return nil, fmt.Errorf("SCAN_MODE must be auto, columnar, or rows, got %q", scanMode)
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		CacheDir: envOrDefault("CACHE_DIR", "./cache"),

		ArchiveBaseURL: envOrDefault("ARCHIVE_BASE_URL", "https://www.ncei.noaa.gov/pub/data/swdi/stormevents/csvfiles/"),
		SPCBaseURL:     envOrDefault("SPC_BASE_URL", "https://www.spc.noaa.gov/climo/reports/"),
		NWSBaseURL:     envOrDefault("NWS_BASE_URL", "https://api.weather.gov"),
		CDOBaseURL:     envOrDefault("CDO_BASE_URL", "https://www.ncei.noaa.gov/cdo-web/api/v2"),

		CDOToken:          os.Getenv("CDO_TOKEN"),
		CDORequestsPerSec: cdoPerSec,
		CDORequestsPerDay: cdoPerDay,
		CDOBufferFactor:   cdoBuffer,

		LagDays:         lagDays,
		ScanMode:        scanMode,
		ScanMemoryBytes: int64(scanMemory) << 20,

		RequestTimeout: requestTimeout,
		FetchTimeout:   fetchTimeout,

		KafkaBrokers:     parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaExportTopic: envOrDefault("KAFKA_EXPORT_TOPIC", "consolidated-weather-events"),

		RefresherEnabled: envOrDefault("REFRESHER_ENABLED", "true") == "true",
	}

	if cfg.ExportEnabled() && cfg.KafkaExportTopic == "" {
		return nil, fmt.Errorf("KAFKA_EXPORT_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration, got %q", key, s)
	}
	return d, nil
}

func parseInt(key string, def, min, max int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < min || n > max {
		return 0, fmt.Errorf("%s must be an integer in [%d, %d], got %q", key, min, max, s)
	}
	return n, nil
}

func parseFloat(key string, def float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", key, s)
	}
	return f, nil
}
