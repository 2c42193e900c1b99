package stationmeta

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwx/station-ingest/internal/blob"
)

func TestLoadRecords(t *testing.T) {
	ctx := context.Background()
	logger := discardLogger()
	key := "metadata/test_stations_metadata.json"

	t.Run("missing document yields empty map", func(t *testing.T) {
		records := LoadRecords(ctx, blob.NewMemoryStore(), key, logger)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("corrupt document yields empty map", func(t *testing.T) {
		store := blob.NewMemoryStore()
		require.NoError(t, store.Put(ctx, key, []byte("{broken"), "application/json"))

		records := LoadRecords(ctx, store, key, logger)
		assert.Empty(t, records)
	})

	t.Run("round trip", func(t *testing.T) {
		store := blob.NewMemoryStore()
		in := map[string]Row{"prov-1": validRow()}
		require.NoError(t, PersistRecords(ctx, store, key, in))

		out := LoadRecords(ctx, store, key, logger)
		require.Contains(t, out, "prov-1")
		assert.Equal(t, "SMI1", out["prov-1"].STID)
		assert.Equal(t, "Summit Ridge", out["prov-1"].Name)
	})
}
