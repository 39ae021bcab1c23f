package cdo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/domain"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/observability"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLimiter(perDay int) *ratelimit.Limiter {
	// Generous rate so tests never wait; bufferFactor 1.0 keeps the daily
	// quota exactly perDay.
	return ratelimit.New(1000, perDay, 1.0, clockwork.NewRealClock())
}

func newTestClient(srv *httptest.Server, limiter *ratelimit.Limiter) *Client {
	return NewClient(srv.URL, "test-token", time.Second, limiter, discardLogger(), observability.NewMetricsForTesting())
}

func dataBody(count, limit, offset int, obs []observation) string {
	resp := dataResponse{Results: obs}
	resp.Metadata.Resultset.Count = count
	resp.Metadata.Resultset.Limit = limit
	resp.Metadata.Resultset.Offset = offset
	b, _ := json.Marshal(resp)
	return string(b)
}

func TestEvents_ThresholdsAndConversion(t *testing.T) {
	obs := []observation{
		{Date: "2024-04-26T00:00:00", Datatype: "PRCP", Station: "GHCND:USW00003927", Value: 120},
		{Date: "2024-04-26T00:00:00", Datatype: "PRCP", Station: "GHCND:USW00003928", Value: 10},
		{Date: "2024-04-26T00:00:00", Datatype: "WSF5", Station: "GHCND:USW00003927", Value: 30},
		{Date: "2024-04-26T00:00:00", Datatype: "WSF2", Station: "GHCND:USW00003927", Value: 5},
		{Date: "2024-01-15T00:00:00", Datatype: "TMIN", Station: "GHCND:USW00003927", Value: -20},
		{Date: "2024-07-20T00:00:00", Datatype: "TMAX", Station: "GHCND:USW00003927", Value: 39},
		{Date: "2024-01-15T00:00:00", Datatype: "SNOW", Station: "GHCND:USW00003927", Value: 150},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-token", r.Header.Get("token"))
		assert.Equal(t, "GHCND", r.URL.Query().Get("datasetid"))
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		fmt.Fprint(w, dataBody(len(obs), pageLimit, 1, obs))
	}))
	defer srv.Close()

	c := newTestClient(srv, testLimiter(100))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	events, err := c.Events(context.Background(), 32.75, -97.15, 50, start, end)
	require.NoError(t, err)

	// Sub-threshold rain and the 11 mph 2-minute wind are dropped.
	require.Len(t, events, 5)
	byType := map[string]domain.WeatherEvent{}
	for _, e := range events {
		byType[e.EventType] = e
	}

	t.Run("extreme rain is a severe flood event", func(t *testing.T) {
		e := byType[domain.TypeFlood]
		assert.Equal(t, domain.SeveritySevere, e.Severity)
		assert.Equal(t, domain.QualityVerified, e.Quality)
		assert.Equal(t, SourceName, e.Source)
	})

	t.Run("gust converted to mph and classified", func(t *testing.T) {
		e := byType[domain.TypeWind]
		require.NotNil(t, e.Magnitude)
		assert.InDelta(t, 67.1, *e.Magnitude, 0.1)
		assert.Equal(t, domain.SeveritySevere, e.Severity)
	})

	t.Run("temperature extremes", func(t *testing.T) {
		assert.Equal(t, domain.SeverityModerate, byType[domain.TypeHeat].Severity)
		assert.Equal(t, domain.SeverityModerate, byType[domain.TypeCold].Severity)
	})

	t.Run("heavy snow", func(t *testing.T) {
		assert.Equal(t, domain.SeverityModerate, byType[domain.TypeWinter].Severity)
	})
}

func TestEvents_Pagination(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
		obs := []observation{{
			Date:     "2024-04-26T00:00:00",
			Datatype: "PRCP",
			Station:  fmt.Sprintf("GHCND:PAGE%d", offset),
			Value:    80,
		}}
		fmt.Fprint(w, dataBody(2, 1, offset, obs))
	}))
	defer srv.Close()

	c := newTestClient(srv, testLimiter(100))
	day := time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC)
	events, err := c.Events(context.Background(), 32.75, -97.15, 50, day, day)
	require.NoError(t, err)

	assert.Equal(t, int32(2), requests.Load())
	assert.Len(t, events, 2)
}

func TestEvents_ChunkedByYear(t *testing.T) {
	var years []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		years = append(years, r.URL.Query().Get("startdate")[:4])
		fmt.Fprint(w, dataBody(0, pageLimit, 1, nil))
	}))
	defer srv.Close()

	c := newTestClient(srv, testLimiter(100))
	start := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)
	_, err := c.Events(context.Background(), 32.75, -97.15, 50, start, end)
	require.NoError(t, err)

	assert.Equal(t, []string{"2023", "2024", "2025"}, years)
}

func TestEvents_QuotaExhaustedAborts(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, dataBody(0, pageLimit, 1, nil))
	}))
	defer srv.Close()

	c := newTestClient(srv, testLimiter(1))
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)

	_, err := c.Events(context.Background(), 32.75, -97.15, 50, start, end)
	require.ErrorIs(t, err, ratelimit.ErrDailyLimitExceeded)
	assert.Equal(t, int32(1), requests.Load(), "no request after the quota is spent")
}

func TestEvents_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(srv, testLimiter(100))
	day := time.Date(2024, 4, 26, 0, 0, 0, 0, time.UTC)
	_, err := c.Events(context.Background(), 32.75, -97.15, 50, day, day)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
