package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const listingHTML = `<html><body>
<a href="StormEvents_details-ftp_v1.0_d2023_c20250415.csv.gz">d2023 old</a>
<a href="StormEvents_details-ftp_v1.0_d2023_c20250731.csv.gz">d2023 new</a>
<a href="StormEvents_details-ftp_v1.0_d2024_c20250818.csv.gz">d2024</a>
<a href="StormEvents_fatalities-ftp_v1.0_d2024_c20250818.csv.gz">not a detail file</a>
</body></html>`

func TestParseListing(t *testing.T) {
	listing := parseListing(listingHTML)

	require.Len(t, listing, 2)
	// Newest compilation wins for 2023.
	assert.Equal(t, "StormEvents_details-ftp_v1.0_d2023_c20250731.csv.gz", listing[2023])
	assert.Equal(t, "StormEvents_details-ftp_v1.0_d2024_c20250818.csv.gz", listing[2024])
}

func TestFileURL_FromListing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, listingHTML)
	}))
	defer srv.Close()

	d := NewDiscovery(srv.URL+"/", time.Second, discardLogger(), clockwork.NewFakeClock())
	url := d.FileURL(context.Background(), 2024)

	assert.Equal(t, srv.URL+"/StormEvents_details-ftp_v1.0_d2024_c20250818.csv.gz", url)
}

func TestFileURL_FallbackWhenListingUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := NewDiscovery(srv.URL+"/", time.Second, discardLogger(), clockwork.NewFakeClock())

	// Known year uses its pinned compilation date.
	assert.Equal(t,
		srv.URL+"/StormEvents_details-ftp_v1.0_d2023_c20250731.csv.gz",
		d.FileURL(context.Background(), 2023))

	// Unknown year uses the default compilation date; never empty.
	assert.Equal(t,
		srv.URL+"/StormEvents_details-ftp_v1.0_d2019_c20250520.csv.gz",
		d.FileURL(context.Background(), 2019))
}

func TestFileURL_FallbackWhenYearMissingFromListing(t *testing.T) {
	// Listing mentions only 2023; 2024 must still resolve (from fallback).
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<a href="StormEvents_details-ftp_v1.0_d2023_c20250731.csv.gz">x</a>`)
	}))
	defer srv.Close()

	d := NewDiscovery(srv.URL+"/", time.Second, discardLogger(), clockwork.NewFakeClock())

	for _, year := range []int{2023, 2024} {
		url := d.FileURL(context.Background(), year)
		assert.NotEmpty(t, url, "year %d", year)
		assert.Contains(t, url, fmt.Sprintf("d%d_", year))
	}
}

func TestFileURL_ListingMemoized(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		fmt.Fprint(w, listingHTML)
	}))
	defer srv.Close()

	fc := clockwork.NewFakeClock()
	d := NewDiscovery(srv.URL+"/", time.Second, discardLogger(), fc)

	d.FileURL(context.Background(), 2023)
	d.FileURL(context.Background(), 2024)
	d.FileURL(context.Background(), 2023)
	assert.Equal(t, int32(1), hits.Load())

	// Past the TTL the listing is scraped again.
	fc.Advance(listingTTL + time.Minute)
	d.FileURL(context.Background(), 2023)
	assert.Equal(t, int32(2), hits.Load())
}

func TestFileInfo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Last-Modified", "Mon, 18 Aug 2025 10:00:00 GMT")
			w.Header().Set("Content-Length", "12345")
			w.WriteHeader(http.StatusOK)
			return
		}
		fmt.Fprint(w, listingHTML)
	}))
	defer srv.Close()

	d := NewDiscovery(srv.URL+"/", time.Second, discardLogger(), clockwork.NewFakeClock())
	info, err := d.FileInfo(context.Background(), 2024)

	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, int64(12345), info.SizeBytes)
	assert.Equal(t, 2024, info.Year)
	assert.Equal(t, time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC), info.CompiledOn)
	assert.False(t, info.LastModified.IsZero())
}

func TestParseFilename(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		year, compiled, ok := ParseFilename("StormEvents_details-ftp_v1.0_d2024_c20250818.csv.gz")
		require.True(t, ok)
		assert.Equal(t, 2024, year)
		assert.Equal(t, time.Date(2025, 8, 18, 0, 0, 0, 0, time.UTC), compiled)
	})
	t.Run("not a detail file", func(t *testing.T) {
		_, _, ok := ParseFilename("StormEvents_locations-ftp_v1.0_d2024_c20250818.csv.gz")
		assert.False(t, ok)
	})
}
