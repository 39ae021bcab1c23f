package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "./cache", cfg.CacheDir)
	assert.Equal(t, 120, cfg.LagDays)
	assert.Equal(t, "auto", cfg.ScanMode)
	assert.Equal(t, int64(256<<20), cfg.ScanMemoryBytes)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 60*time.Second, cfg.FetchTimeout)
	assert.Equal(t, 5.0, cfg.CDORequestsPerSec)
	assert.Equal(t, 10000, cfg.CDORequestsPerDay)
	assert.Equal(t, 0.8, cfg.CDOBufferFactor)
	assert.False(t, cfg.CDOEnabled())
	assert.False(t, cfg.ExportEnabled())
	assert.True(t, cfg.RefresherEnabled)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("CACHE_DIR", "/var/cache/weather")
	t.Setenv("LAG_DAYS", "90")
	t.Setenv("SCAN_MODE", "rows")
	t.Setenv("SCAN_MEMORY_BUDGET_MB", "512")
	t.Setenv("CDO_TOKEN", "abc123")
	t.Setenv("CDO_REQUESTS_PER_DAY", "5000")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_EXPORT_TOPIC", "weather-out")
	t.Setenv("REFRESHER_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/var/cache/weather", cfg.CacheDir)
	assert.Equal(t, 90, cfg.LagDays)
	assert.Equal(t, "rows", cfg.ScanMode)
	assert.Equal(t, int64(512<<20), cfg.ScanMemoryBytes)
	assert.True(t, cfg.CDOEnabled())
	assert.Equal(t, 5000, cfg.CDORequestsPerDay)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.ExportEnabled())
	assert.Equal(t, "weather-out", cfg.KafkaExportTopic)
	assert.False(t, cfg.RefresherEnabled)
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidLagDays(t *testing.T) {
	t.Setenv("LAG_DAYS", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LAG_DAYS")
}

func TestLoad_InvalidScanMode(t *testing.T) {
	t.Setenv("SCAN_MODE", "vectorized")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SCAN_MODE")
}

func TestLoad_InvalidBufferFactor(t *testing.T) {
	t.Setenv("CDO_BUFFER_FACTOR", "1.5")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CDO_BUFFER_FACTOR")
}

func TestLoad_InvalidRequestsPerDay(t *testing.T) {
	t.Setenv("CDO_REQUESTS_PER_DAY", "-5")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CDO_REQUESTS_PER_DAY")
}
