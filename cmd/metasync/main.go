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
	"github.com/meshwx/station-ingest/internal/blob"
	"github.com/meshwx/station-ingest/internal/config"
	"github.com/meshwx/station-ingest/internal/observability"
	"github.com/meshwx/station-ingest/internal/provider"
	"github.com/meshwx/station-ingest/internal/runner"
	"github.com/meshwx/station-ingest/internal/secrets"
	"github.com/meshwx/station-ingest/internal/stationmeta"
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

	client := provider.NewClient(cfg.ProviderBaseURL, cfg.LookupURL, cfg.BoundsURL, cfg.ProviderTimeout, logger)
	reconciler := stationmeta.New(cfg.MnetID, cfg.ElevationUnit, cfg.RestrictedData, cfg.RestrictedMetadata, logger)

	m := runner.NewMetaRunner(store, client, reconciler, client,
		secrets.EnvProvider{}, cfg, clock, logger, metrics)

	if cfg.RunOnce {
		if err := m.Run(ctx); err != nil {
			logger.Error("metadata run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, m, logger)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		if err := m.RunLoop(ctx); err != nil {
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

	logger.Info("shutdown complete")
}
