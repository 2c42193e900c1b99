package stationmeta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/meshwx/station-ingest/internal/blob"
)

// LoadRecords reads the persisted metadata document: a single JSON object
// keyed by provider station id. A missing object yields an empty map; any
// other failure is reported but still yields an empty map, the run proceeding
// with an empty prior-state assumption.
func LoadRecords(ctx context.Context, store blob.Store, key string, logger *slog.Logger) map[string]Row {
	data, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			logger.Warn("failed to load station metadata, assuming empty", "key", key, "error", err)
		}
		return map[string]Row{}
	}

	var records map[string]Row
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Warn("failed to decode station metadata, assuming empty", "key", key, "error", err)
		return map[string]Row{}
	}
	if records == nil {
		records = map[string]Row{}
	}

	logger.Info("loaded existing stations", "count", len(records))
	return records
}

// PersistRecords fully rewrites the metadata document.
func PersistRecords(ctx context.Context, store blob.Store, key string, records map[string]Row) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode station metadata: %w", err)
	}
	if err := store.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("persist station metadata %q: %w", key, err)
	}
	return nil
}
