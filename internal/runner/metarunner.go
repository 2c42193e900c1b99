package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/jonboulle/clockwork"

	"github.com/meshwx/station-ingest/internal/blob"
	"github.com/meshwx/station-ingest/internal/config"
	"github.com/meshwx/station-ingest/internal/observability"
	"github.com/meshwx/station-ingest/internal/secrets"
	"github.com/meshwx/station-ingest/internal/stationmeta"
)

// MetaFetcher retrieves candidate station metadata rows from the provider,
// keyed by the provider's station id.
type MetaFetcher interface {
	FetchMetadata(ctx context.Context, creds secrets.Credentials) (map[string]stationmeta.Row, error)
}

// MetadataSender delivers the assembled lookup payload to the station lookup
// service. The wire protocol is its concern, not this core's.
type MetadataSender interface {
	UpdateStations(ctx context.Context, payload stationmeta.LookupPayload) error
}

// MetaRunner executes station metadata reconciliation runs.
type MetaRunner struct {
	store      blob.Store
	fetcher    MetaFetcher
	reconciler *stationmeta.Reconciler
	sender     MetadataSender
	secrets    secrets.Provider

	cfg     *config.Config
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	ready atomic.Bool
}

// NewMetaRunner creates a MetaRunner.
func NewMetaRunner(store blob.Store, fetcher MetaFetcher, reconciler *stationmeta.Reconciler, sender MetadataSender,
	secretProvider secrets.Provider, cfg *config.Config, clock clockwork.Clock, logger *slog.Logger,
	metrics *observability.Metrics) *MetaRunner {
	return &MetaRunner{
		store:      store,
		fetcher:    fetcher,
		reconciler: reconciler,
		sender:     sender,
		secrets:    secretProvider,
		cfg:        cfg,
		clock:      clock,
		logger:     logger,
		metrics:    metrics,
	}
}

// CheckReadiness returns nil once at least one run has completed successfully.
func (m *MetaRunner) CheckReadiness(_ context.Context) error {
	if !m.ready.Load() {
		return errors.New("no run has completed yet")
	}
	return nil
}

// RunLoop executes runs on the configured interval until the context is
// cancelled, never overlapping.
func (m *MetaRunner) RunLoop(ctx context.Context) error {
	for {
		if err := m.Run(ctx); err != nil && ctx.Err() == nil {
			m.logger.Error("metadata run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			m.logger.Info("runner stopping", "reason", ctx.Err())
			return nil
		case <-m.clock.After(m.cfg.RunInterval):
		}
	}
}

// Run performs one metadata reconciliation invocation: load the persisted
// records, fetch candidates, reconcile, deliver the lookup payload, persist
// the merged records.
func (m *MetaRunner) Run(ctx context.Context) (err error) {
	start := m.clock.Now()
	m.metrics.RunActive.Set(1)
	defer m.metrics.RunActive.Set(0)
	defer func() { emitCompletion(m.logger, m.metrics, m.clock.Now().Sub(start).Seconds(), err) }()

	existing := stationmeta.LoadRecords(ctx, m.store, m.cfg.StationMetaKey(), m.logger)

	creds := secrets.Credentials{}
	if m.cfg.SecretName != "" {
		raw, err := m.secrets.Retrieve(ctx, m.cfg.SecretName)
		if err != nil {
			return err
		}
		if creds, err = secrets.ParseCredentials(raw); err != nil {
			return err
		}
	}

	candidates, err := m.fetcher.FetchMetadata(ctx, creds)
	if err != nil {
		return fmt.Errorf("fetch station metadata: %w", err)
	}

	merged, result, err := m.reconciler.Reconcile(existing, candidates, stationmeta.PayloadLookup, nil)
	if err != nil {
		return err
	}

	m.metrics.StationsReconciled.Add(float64(len(result.Stations)))
	for reason, ids := range result.Skipped {
		m.metrics.StationsSkipped.WithLabelValues(reason).Add(float64(len(ids)))
	}

	if err := m.sender.UpdateStations(ctx, *result.Lookup); err != nil {
		return fmt.Errorf("station lookup update: %w", err)
	}

	// Persist only after a successful send so a delivery failure retries the
	// same candidate set next run.
	if err := stationmeta.PersistRecords(ctx, m.store, m.cfg.StationMetaKey(), merged); err != nil {
		return err
	}

	m.logger.Info("station metadata reconciled",
		"stations", len(result.Stations), "total_known", len(merged))
	m.ready.Store(true)
	return nil
}
