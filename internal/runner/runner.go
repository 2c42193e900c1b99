// Package runner orchestrates one ingest invocation: load prior state from
// the blob store, fetch provider data, cache the raw payload, transform,
// deduplicate and forward observations, then persist the updated state. A run
// is single-threaded and run-to-completion; the only suspension points are
// the external load/store calls.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/meshwx/station-ingest/internal/blob"
	"github.com/meshwx/station-ingest/internal/config"
	"github.com/meshwx/station-ingest/internal/observability"
	"github.com/meshwx/station-ingest/internal/rawcache"
	"github.com/meshwx/station-ingest/internal/secrets"
	"github.com/meshwx/station-ingest/internal/seenset"
	"github.com/meshwx/station-ingest/internal/stationmeta"
	"github.com/meshwx/station-ingest/internal/validate"
)

// Fetcher retrieves the provider's raw observation payload. Implementations
// are provider-specific and live outside this core.
type Fetcher interface {
	Fetch(ctx context.Context, creds secrets.Credentials) ([]byte, error)
}

// Parser turns a raw payload into grouped observation fingerprints plus any
// station metadata rows embedded in the feed.
type Parser interface {
	Parse(payload []byte) ([]string, map[string]stationmeta.Row, error)
}

// Forwarder hands one pre-chunked batch of fingerprints to the downstream
// sender.
type Forwarder interface {
	Forward(ctx context.Context, chunk []string) error
}

// Runner executes observation runs.
type Runner struct {
	store     blob.Store
	rawCache  *rawcache.Cache
	fetcher   Fetcher
	parser    Parser
	forwarder Forwarder
	secrets   secrets.Provider
	bounds    validate.BoundsProvider // nil disables range checks

	cfg     *config.Config
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics

	ready atomic.Bool
}

// New creates a Runner. bounds may be nil; range validation is then skipped.
func New(store blob.Store, rawCache *rawcache.Cache, fetcher Fetcher, parser Parser, forwarder Forwarder,
	secretProvider secrets.Provider, bounds validate.BoundsProvider,
	cfg *config.Config, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Runner {
	return &Runner{
		store:     store,
		rawCache:  rawCache,
		fetcher:   fetcher,
		parser:    parser,
		forwarder: forwarder,
		secrets:   secretProvider,
		bounds:    bounds,
		cfg:       cfg,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once at least one run has completed successfully.
func (r *Runner) CheckReadiness(_ context.Context) error {
	if !r.ready.Load() {
		return errors.New("no run has completed yet")
	}
	return nil
}

// RunLoop executes runs on the configured interval until the context is
// cancelled. Runs never overlap: the next tick waits for the previous run to
// finish, which keeps the single-writer rule over persisted state.
func (r *Runner) RunLoop(ctx context.Context) error {
	for {
		if err := r.Run(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("run failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("runner stopping", "reason", ctx.Err())
			return nil
		case <-r.clock.After(r.cfg.RunInterval):
		}
	}
}

// Run performs one observation invocation.
func (r *Runner) Run(ctx context.Context) (err error) {
	start := r.clock.Now()
	r.metrics.RunActive.Set(1)
	defer r.metrics.RunActive.Set(0)
	defer func() { emitCompletion(r.logger, r.metrics, r.clock.Now().Sub(start).Seconds(), err) }()

	// Load prior state. Both loads tolerate absence and transient failure;
	// the cost of an empty seen set is duplicate forwarding inside the
	// retention window, which downstream accepts.
	seen := seenset.Load(ctx, r.store, r.cfg.SeenObsKey(), r.logger)
	meta := stationmeta.LoadRecords(ctx, r.store, r.cfg.StationMetaKey(), r.logger)

	creds, err := r.resolveCredentials(ctx)
	if err != nil {
		return err
	}

	payload, err := r.fetcher.Fetch(ctx, creds)
	if err != nil {
		return fmt.Errorf("fetch incoming data: %w", err)
	}
	if len(payload) == 0 {
		r.logger.Error("incoming data empty")
		return errors.New("incoming data empty")
	}

	// Raw caching is best-effort and never the source of truth for dedup.
	if cacheErr := r.rawCache.Store(ctx, payload, ""); cacheErr != nil {
		r.logger.Error("raw cache failed", "error", cacheErr)
		r.metrics.RawCacheWrites.WithLabelValues(r.cfg.RawCacheMode, "failure").Inc()
	} else {
		r.metrics.RawCacheWrites.WithLabelValues(r.cfg.RawCacheMode, "success").Inc()
	}

	fingerprints, stationRows, err := r.parser.Parse(payload)
	if err != nil {
		return fmt.Errorf("parse incoming data: %w", err)
	}

	mergeStationRows(meta, stationRows)

	r.runValidations(ctx, fingerprints)

	fresh, duplicate := seen.Partition(fingerprints)
	r.metrics.ObservationsDeduped.Add(float64(len(duplicate)))
	r.logger.Info("partitioned candidate observations",
		"candidates", len(fingerprints), "new", len(fresh), "duplicate", len(duplicate))

	if err := r.forwardChunks(ctx, fresh); err != nil {
		return err
	}
	seen.Add(fresh...)
	r.metrics.ObservationsForwarded.Add(float64(len(fresh)))

	trimmed := seen.Trim(r.clock.Now().UTC(), r.cfg.Retention, r.logger)
	r.metrics.SeenSetTrimmed.Add(float64(trimmed))
	r.metrics.SeenSetSize.Set(float64(seen.Len()))

	if err := seen.Persist(ctx, r.store, r.cfg.SeenObsKey()); err != nil {
		return err
	}
	if err := stationmeta.PersistRecords(ctx, r.store, r.cfg.StationMetaKey(), meta); err != nil {
		return err
	}

	r.ready.Store(true)
	return nil
}

func (r *Runner) resolveCredentials(ctx context.Context) (secrets.Credentials, error) {
	if r.cfg.SecretName == "" {
		return secrets.Credentials{}, nil
	}
	raw, err := r.secrets.Retrieve(ctx, r.cfg.SecretName)
	if err != nil {
		return secrets.Credentials{}, err
	}
	return secrets.ParseCredentials(raw)
}

// runValidations checks the candidate batch and logs grouped findings. The
// bounds table is optional enrichment: a failed fetch narrows validation
// scope and nothing more.
func (r *Runner) runValidations(ctx context.Context, fingerprints []string) {
	end := r.clock.Now().UTC()
	windowStart := end.Add(-24 * time.Hour)

	msgs := validate.CheckDattim(fingerprints, windowStart, end)
	msgs = append(msgs, validate.CheckStationIDLength(fingerprints)...)

	if r.bounds != nil {
		table, err := r.bounds.VariableBounds(ctx)
		if err != nil {
			r.logger.Warn("skipping variable-table-based checks", "error", err)
		} else {
			msgs = append(msgs, validate.CheckRanges(fingerprints, table)...)
		}
	}

	for category, found := range validate.Report(r.logger, msgs) {
		r.metrics.ValidationMessages.WithLabelValues(category).Add(float64(len(found)))
	}
}

// forwardChunks hands the fresh fingerprints downstream in fixed-size chunks,
// pausing between chunks to bound burst size.
func (r *Runner) forwardChunks(ctx context.Context, fresh []string) error {
	chunks := seenset.Chunk(fresh, r.cfg.ChunkSize)
	for i, chunk := range chunks {
		if err := r.forwarder.Forward(ctx, chunk); err != nil {
			return fmt.Errorf("forward chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if i < len(chunks)-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.clock.After(r.cfg.ChunkPause):
			}
		}
	}
	return nil
}

// mergeStationRows folds rows sighted during observation parsing into the
// persisted metadata map. A previously assigned STID always survives.
func mergeStationRows(meta map[string]stationmeta.Row, rows map[string]stationmeta.Row) {
	for id, row := range rows {
		if prior, ok := meta[id]; ok && prior.STID != "" {
			row.STID = prior.STID
		}
		meta[id] = row
	}
}

// emitCompletion writes the structured completion record every invocation
// must produce, success or not.
func emitCompletion(logger *slog.Logger, metrics *observability.Metrics, elapsed float64, err error) {
	completion := 1
	outcome := "success"
	if err != nil {
		completion = 0
		outcome = "failure"
	}
	logger.Info("run finished", "completion", completion, "time", elapsed)
	metrics.RunsTotal.WithLabelValues(outcome).Inc()
	metrics.RunDuration.Observe(elapsed)
}
