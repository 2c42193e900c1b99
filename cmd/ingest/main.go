package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"

	httpadapter "github.com/meshwx/station-ingest/internal/adapter/http"
	kafkaadapter "github.com/meshwx/station-ingest/internal/adapter/kafka"
	"github.com/meshwx/station-ingest/internal/blob"
	"github.com/meshwx/station-ingest/internal/config"
	"github.com/meshwx/station-ingest/internal/observability"
	"github.com/meshwx/station-ingest/internal/provider"
	"github.com/meshwx/station-ingest/internal/rawcache"
	"github.com/meshwx/station-ingest/internal/runner"
	"github.com/meshwx/station-ingest/internal/secrets"
	"github.com/meshwx/station-ingest/internal/validate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := blob.NewMinioStore(ctx, blob.MinioOptions{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		UseSSL:    cfg.BlobUseSSL,
	})
	if err != nil {
		logger.Error("failed to connect to blob store", "error", err)
		os.Exit(1)
	}

	cache := rawcache.New(store, rawcache.Mode(cfg.RawCacheMode), cfg.RawCachePrefix, clock, logger)
	client := provider.NewClient(cfg.ProviderBaseURL, cfg.LookupURL, cfg.BoundsURL, cfg.ProviderTimeout, logger)
	forwarder := kafkaadapter.NewForwarder(cfg, logger)

	// Range validation is feature-flagged via BOUNDS_URL.
	var bounds validate.BoundsProvider
	if cfg.BoundsURL != "" {
		bounds = client
		logger.Info("range validation enabled", "bounds_url", cfg.BoundsURL)
	} else {
		logger.Info("range validation disabled")
	}

	r := runner.New(store, cache, client, provider.NewParser(logger), forwarder,
		secrets.EnvProvider{}, bounds, cfg, clock, logger, metrics)

	if cfg.RunOnce {
		err := r.Run(ctx)
		if closeErr := forwarder.Close(); closeErr != nil {
			logger.Error("kafka writer close error", "error", closeErr)
		}
		if err != nil {
			logger.Error("run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, r, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := r.RunLoop(ctx); err != nil {
			logger.Error("runner error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := forwarder.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}
