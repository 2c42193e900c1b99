package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwx/station-ingest/internal/blob"
	"github.com/meshwx/station-ingest/internal/config"
	"github.com/meshwx/station-ingest/internal/observability"
	"github.com/meshwx/station-ingest/internal/rawcache"
	"github.com/meshwx/station-ingest/internal/secrets"
	"github.com/meshwx/station-ingest/internal/stationmeta"
	"github.com/meshwx/station-ingest/internal/validate"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		IngestName:     "hillwx",
		RawCacheMode:   "merge",
		RawCachePrefix: "hillwx",
		Retention:      12 * time.Hour,
		ChunkSize:      100,
		ChunkPause:     time.Millisecond,
		RunInterval:    10 * time.Minute,
	}
}

type stubFetcher struct {
	payload []byte
	err     error
	calls   int
}

func (f *stubFetcher) Fetch(_ context.Context, _ secrets.Credentials) ([]byte, error) {
	f.calls++
	return f.payload, f.err
}

type stubParser struct {
	fps  []string
	rows map[string]stationmeta.Row
	err  error
}

func (p *stubParser) Parse(_ []byte) ([]string, map[string]stationmeta.Row, error) {
	return p.fps, p.rows, p.err
}

type recordingForwarder struct {
	chunks [][]string
	err    error
}

func (f *recordingForwarder) Forward(_ context.Context, chunk []string) error {
	if f.err != nil {
		return f.err
	}
	f.chunks = append(f.chunks, chunk)
	return nil
}

func newTestRunner(store blob.Store, fetcher Fetcher, parser Parser, forwarder Forwarder,
	cfg *config.Config, clock clockwork.Clock) *Runner {
	logger := discardLogger()
	cache := rawcache.New(store, rawcache.Mode(cfg.RawCacheMode), cfg.RawCachePrefix, clock, logger)
	return New(store, cache, fetcher, parser, forwarder,
		secrets.EnvProvider{}, nil, cfg, clock, logger, observability.NewMetricsForTesting())
}

func TestRun_ForwardsAndPersists(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	cfg := testConfig()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	fetcher := &stubFetcher{payload: []byte(`{"dattim": "202401151130"}`)}
	parser := &stubParser{
		fps: []string{
			`SMI1|202401151130|{"temp":12.5}`,
			`KABC|202401151145|{"temp":9}`,
		},
		rows: map[string]stationmeta.Row{"prov-1": {STID: "SMI1", Name: "Summit Ridge"}},
	}
	forwarder := &recordingForwarder{}

	r := newTestRunner(store, fetcher, parser, forwarder, cfg, clock)
	require.NoError(t, r.Run(ctx))

	// Both fresh observations went out in one chunk.
	require.Len(t, forwarder.chunks, 1)
	assert.Len(t, forwarder.chunks[0], 2)

	// Raw payload was cached under its inferred partition date.
	_, err := store.Get(ctx, "hillwx/2024/01/2024-01-15.json")
	assert.NoError(t, err)

	// Seen set and metadata were persisted.
	seen, err := store.Get(ctx, cfg.SeenObsKey())
	require.NoError(t, err)
	assert.Contains(t, string(seen), `SMI1|202401151130|{"temp":12.5}`)

	meta := stationmeta.LoadRecords(ctx, store, cfg.StationMetaKey(), discardLogger())
	assert.Equal(t, "SMI1", meta["prov-1"].STID)

	assert.NoError(t, r.CheckReadiness(ctx))
}

func TestRun_DeduplicatesAcrossRuns(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	cfg := testConfig()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	fetcher := &stubFetcher{payload: []byte(`{"dattim": "202401151130"}`)}
	parser := &stubParser{fps: []string{`SMI1|202401151130|{"temp":12.5}`}}
	forwarder := &recordingForwarder{}

	r := newTestRunner(store, fetcher, parser, forwarder, cfg, clock)
	require.NoError(t, r.Run(ctx))
	require.NoError(t, r.Run(ctx))

	// The second run saw an identical candidate and forwarded nothing.
	require.Len(t, forwarder.chunks, 1)
}

func TestRun_RetentionReopensWindow(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	cfg := testConfig()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	fetcher := &stubFetcher{payload: []byte(`{}`)}
	parser := &stubParser{fps: []string{`SMI1|202401151130|{"temp":12.5}`}}
	forwarder := &recordingForwarder{}

	r := newTestRunner(store, fetcher, parser, forwarder, cfg, clock)
	require.NoError(t, r.Run(ctx))

	// Move past the retention horizon. The next run still sees the persisted
	// fingerprint (trim happens at run end), then drops it; the run after that
	// forwards it again.
	clock.Advance(13 * time.Hour)
	require.NoError(t, r.Run(ctx))
	require.Len(t, forwarder.chunks, 1)

	require.NoError(t, r.Run(ctx))
	assert.Len(t, forwarder.chunks, 2)
}

func TestRun_ChunksWithPauses(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	cfg := testConfig()
	cfg.ChunkSize = 2

	fetcher := &stubFetcher{payload: []byte(`{}`)}
	parser := &stubParser{fps: []string{
		`A|202401151100|{}`, `B|202401151101|{}`, `C|202401151102|{}`,
		`D|202401151103|{}`, `E|202401151104|{}`,
	}}
	forwarder := &recordingForwarder{}

	// Real clock so the inter-chunk pause elapses on its own.
	r := newTestRunner(store, fetcher, parser, forwarder, cfg, clockwork.NewRealClock())
	require.NoError(t, r.Run(ctx))

	require.Len(t, forwarder.chunks, 3)
	assert.Len(t, forwarder.chunks[0], 2)
	assert.Len(t, forwarder.chunks[2], 1)
}

func TestRun_FetchFailure(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	fetcher := &stubFetcher{err: errors.New("connection refused")}
	r := newTestRunner(store, fetcher, &stubParser{}, &recordingForwarder{}, testConfig(), clock)

	err := r.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch incoming data")
	assert.Error(t, r.CheckReadiness(ctx))
}

func TestRun_EmptyPayload(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	fetcher := &stubFetcher{payload: nil}
	r := newTestRunner(blob.NewMemoryStore(), fetcher, &stubParser{}, &recordingForwarder{}, testConfig(), clock)

	err := r.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incoming data empty")
}

func TestRun_RawCacheFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	// Payload is not valid JSON, so the raw cache scan fails, but parsing and
	// forwarding proceed.
	fetcher := &stubFetcher{payload: []byte("not json")}
	parser := &stubParser{fps: []string{`SMI1|202401151130|{}`}}
	forwarder := &recordingForwarder{}

	r := newTestRunner(blob.NewMemoryStore(), fetcher, parser, forwarder, testConfig(), clock)
	require.NoError(t, r.Run(ctx))
	require.Len(t, forwarder.chunks, 1)
}

func TestRun_ForwardFailure(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	cfg := testConfig()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	fetcher := &stubFetcher{payload: []byte(`{}`)}
	parser := &stubParser{fps: []string{`SMI1|202401151130|{}`}}
	forwarder := &recordingForwarder{err: errors.New("broker unavailable")}

	r := newTestRunner(store, fetcher, parser, forwarder, cfg, clock)
	err := r.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forward chunk")

	// Nothing was recorded as seen, so the batch retries next run.
	_, getErr := store.Get(ctx, cfg.SeenObsKey())
	assert.True(t, errors.Is(getErr, blob.ErrNotFound))
}

func TestRun_MissingSecretAborts(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.SecretName = "ABSENT_TEST_SECRET"
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))

	fetcher := &stubFetcher{payload: []byte(`{}`)}
	r := newTestRunner(blob.NewMemoryStore(), fetcher, &stubParser{}, &recordingForwarder{}, cfg, clock)

	require.Error(t, r.Run(ctx))
	assert.Zero(t, fetcher.calls)
}

func TestMergeStationRows(t *testing.T) {
	meta := map[string]stationmeta.Row{
		"prov-1": {STID: "ORIG", Name: "Old Name"},
		"prov-2": {STID: "", Name: "Never Assigned"},
	}
	rows := map[string]stationmeta.Row{
		"prov-1": {STID: "CHANGED", Name: "New Name"},
		"prov-2": {STID: "FRESH", Name: "Now Assigned"},
		"prov-3": {STID: "NEW", Name: "Brand New"},
	}

	mergeStationRows(meta, rows)

	want := map[string]stationmeta.Row{
		"prov-1": {STID: "ORIG", Name: "New Name"},
		"prov-2": {STID: "FRESH", Name: "Now Assigned"},
		"prov-3": {STID: "NEW", Name: "Brand New"},
	}
	if diff := cmp.Diff(want, meta); diff != "" {
		t.Errorf("merged metadata mismatch (-want +got):\n%s", diff)
	}
}

type stubBounds struct {
	table map[string]validate.Bounds
	err   error
}

func (b *stubBounds) VariableBounds(_ context.Context) (map[string]validate.Bounds, error) {
	return b.table, b.err
}

func TestRun_BoundsFetchFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemoryStore()
	cfg := testConfig()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	logger := discardLogger()

	cache := rawcache.New(store, rawcache.ModeMerge, cfg.RawCachePrefix, clock, logger)
	fetcher := &stubFetcher{payload: []byte(`{}`)}
	parser := &stubParser{fps: []string{`SMI1|202401151130|{"temp":-900}`}}
	forwarder := &recordingForwarder{}
	bounds := &stubBounds{err: errors.New("bounds service down")}

	r := New(store, cache, fetcher, parser, forwarder,
		secrets.EnvProvider{}, bounds, cfg, clock, logger, observability.NewMetricsForTesting())

	require.NoError(t, r.Run(ctx))
	require.Len(t, forwarder.chunks, 1)
}
