// Command warmcache downloads bulk archive files for a set of years ahead
// of time, so a freshly deployed service starts with a hot cache.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/adapter/archive"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/config"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/observability"
)

func main() {
	years := flag.String("years", "", "comma-separated years to warm (default: current and two prior)")
	force := flag.Bool("force", false, "re-download even when the cached file is still valid")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, "text")
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	discovery := archive.NewDiscovery(cfg.ArchiveBaseURL, cfg.RequestTimeout, logger, clock)
	cache, err := archive.NewCache(filepath.Join(cfg.CacheDir, "bulk"), cfg.RequestTimeout, discovery, clock, logger, metrics)
	if err != nil {
		logger.Error("failed to initialize bulk cache", "error", err)
		os.Exit(1)
	}

	targets, err := parseYears(*years, clock.Now().UTC().Year())
	if err != nil {
		logger.Error("invalid -years", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	failed := 0
	for _, year := range targets {
		if !*force && cache.State(year) == archive.StateValid {
			fmt.Printf("%d: cache valid, skipping\n", year)
			continue
		}
		path, err := cache.Fetch(ctx, year)
		if err != nil {
			fmt.Printf("%d: FAILED: %v\n", year, err)
			failed++
			continue
		}
		fmt.Printf("%d: %s\n", year, path)
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func parseYears(raw string, current int) ([]int, error) {
	if raw == "" {
		return []int{current - 2, current - 1, current}, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		year, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || year < 1950 || year > current {
			return nil, fmt.Errorf("bad year %q", part)
		}
		out = append(out, year)
	}
	return out, nil
}
