package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/ridezono1/apexos-reports-service-sub000/internal/adapter/archive"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/adapter/cdo"
	httpadapter "github.com/ridezono1/apexos-reports-service-sub000/internal/adapter/http"
	kafkaadapter "github.com/ridezono1/apexos-reports-service-sub000/internal/adapter/kafka"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/adapter/nws"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/adapter/spc"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/config"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/engine"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/observability"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/ratelimit"
	"github.com/ridezono1/apexos-reports-service-sub000/internal/refresher"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	discovery := archive.NewDiscovery(cfg.ArchiveBaseURL, cfg.RequestTimeout, logger, clock)
	cache, err := archive.NewCache(filepath.Join(cfg.CacheDir, "bulk"), cfg.RequestTimeout, discovery, clock, logger, metrics)
	if err != nil {
		logger.Error("failed to initialize bulk cache", "error", err)
		os.Exit(1)
	}
	scanner := archive.NewScanner(cfg.ScanMode, cfg.ScanMemoryBytes, logger)
	verified := archive.NewSource(cache, scanner, logger, metrics)

	preliminary, err := spc.NewClient(cfg.SPCBaseURL, filepath.Join(cfg.CacheDir, "spc"), cfg.RequestTimeout, clock, logger, metrics)
	if err != nil {
		logger.Error("failed to initialize spc client", "error", err)
		os.Exit(1)
	}

	live := nws.NewAlertClient(cfg.NWSBaseURL, cfg.RequestTimeout, logger, metrics)

	// The supplemental climate source is feature-flagged via CDO_TOKEN.
	limiter := ratelimit.New(cfg.CDORequestsPerSec, cfg.CDORequestsPerDay, cfg.CDOBufferFactor, clock)
	var supplemental engine.WindowSource
	if cfg.CDOEnabled() {
		supplemental = cdo.NewClient(cfg.CDOBaseURL, cfg.CDOToken, cfg.RequestTimeout, limiter, logger, metrics)
		logger.Info("cdo supplemental source enabled",
			"requests_per_day", cfg.CDORequestsPerDay, "buffer_factor", cfg.CDOBufferFactor)
	} else {
		logger.Info("cdo supplemental source disabled")
	}

	var exporter engine.Exporter
	var kafkaExporter *kafkaadapter.Exporter
	if cfg.ExportEnabled() {
		kafkaExporter = kafkaadapter.NewExporter(cfg.KafkaBrokers, cfg.KafkaExportTopic, logger)
		exporter = kafkaExporter
		logger.Info("kafka export enabled", "topic", cfg.KafkaExportTopic)
	}

	eng := engine.New(verified, preliminary, live, supplemental, exporter,
		cfg.LagDays, clock, logger, metrics)
	guard := engine.NewGuard(eng, cfg.FetchTimeout, logger)

	refr := refresher.New(cache, clock, logger, metrics)
	if cfg.RefresherEnabled {
		if err := refr.Start(); err != nil {
			logger.Error("failed to start refresher", "error", err)
			os.Exit(1)
		}
	}

	status := func() map[string]any {
		return map[string]any{
			"rate_limiter": limiter.Status(),
			"refresher":    refr.Status(),
		}
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, guard, status, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Warm the cache for the current year so the first query is fast, then
	// report ready.
	go func() {
		year := clock.Now().UTC().Year()
		if _, err := cache.Fetch(ctx, year); err != nil {
			logger.Warn("initial cache warm failed", "year", year, "error", err)
		}
		eng.MarkReady()
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if cfg.RefresherEnabled {
		refr.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if kafkaExporter != nil {
		if err := kafkaExporter.Close(); err != nil {
			logger.Error("kafka exporter close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
