// Package rawcache persists every incoming provider payload verbatim, keyed
// by a heuristically inferred partition date. The cache is append-only:
// entries are never edited or deleted, and the raw payload bytes are stored
// untouched. It is best-effort storage, not the source of truth for dedup;
// callers log failures and continue.
package rawcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/meshwx/station-ingest/internal/blob"
	"github.com/meshwx/station-ingest/internal/domain"
)

// Mode selects the write policy.
type Mode string

const (
	// ModeMerge appends each payload into one object per partition date,
	// read-modify-write. The partition object is the superset of every entry
	// ever written to it.
	ModeMerge Mode = "merge"

	// ModeSimple writes one immutable object per invocation under a
	// run-timestamp key. No read-merge-write, so no merge races, at the cost
	// of losing single-file aggregation.
	ModeSimple Mode = "simple"
)

// Entry is the stored envelope around one raw payload. Immutable once written.
type Entry struct {
	CachedAt   time.Time       `json:"cached_at"`
	DataSource string          `json:"data_source"`
	FoundDates int             `json:"found_dates"`
	DateUsed   string          `json:"date_used"`
	RawData    json.RawMessage `json:"raw_data"`
}

// Cache writes raw payload entries to the blob store.
type Cache struct {
	store  blob.Store
	mode   Mode
	prefix string
	clock  clockwork.Clock
	logger *slog.Logger
}

// New creates a Cache. The prefix is both the leading key segment and the
// data_source tag recorded in every entry.
func New(store blob.Store, mode Mode, prefix string, clock clockwork.Clock, logger *slog.Logger) *Cache {
	return &Cache{store: store, mode: mode, prefix: prefix, clock: clock, logger: logger}
}

// Store caches one raw payload. The payload bytes must be valid JSON; they
// are scanned for timestamp-shaped values to pick the partition date and then
// stored byte-identical. fallbackDate (YYYY-MM-DD, may be empty) is used when
// the scan finds nothing.
func (c *Cache) Store(ctx context.Context, payload []byte, fallbackDate string) error {
	if len(payload) == 0 {
		return errors.New("no incoming data to cache")
	}

	value, err := domain.ValueFromJSON(payload)
	if err != nil {
		return fmt.Errorf("scan payload for dates: %w", err)
	}

	dates := domain.ExtractDates(value)
	dateUsed := domain.PartitionDate(dates, fallbackDate, c.clock)
	c.logger.Debug("raw cache partition selected",
		"found_dates", len(dates), "date_used", dateUsed, "mode", string(c.mode))

	entry := Entry{
		CachedAt:   c.clock.Now().UTC(),
		DataSource: c.prefix,
		FoundDates: len(dates),
		DateUsed:   dateUsed,
		RawData:    json.RawMessage(payload),
	}

	if c.mode == ModeSimple {
		return c.storeSimple(ctx, entry, dateUsed)
	}
	return c.storeMerge(ctx, entry, dateUsed)
}

// storeMerge appends the entry to the partition object, creating it when
// absent. Existing entries are carried through unmodified, insertion order
// preserved.
func (c *Cache) storeMerge(ctx context.Context, entry Entry, dateUsed string) error {
	key, err := partitionKey(c.prefix, dateUsed, dateUsed+".json")
	if err != nil {
		return err
	}

	var entries []Entry
	existing, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, blob.ErrNotFound):
		// First payload for this partition.
	case err != nil:
		return fmt.Errorf("load partition %q: %w", key, err)
	default:
		if err := json.Unmarshal(existing, &entries); err != nil {
			// A partition holding a single bare entry (written before merge
			// mode) is wrapped rather than discarded.
			var single Entry
			if err2 := json.Unmarshal(existing, &single); err2 != nil {
				return fmt.Errorf("decode partition %q: %w", key, err)
			}
			entries = []Entry{single}
		}
	}

	entries = append(entries, entry)

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode partition %q: %w", key, err)
	}
	if err := c.store.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("upload partition %q: %w", key, err)
	}

	c.logger.Debug("cached raw data", "key", key, "total_entries", len(entries))
	return nil
}

func (c *Cache) storeSimple(ctx context.Context, entry Entry, dateUsed string) error {
	stamp := c.clock.Now().UTC().Format("20060102_150405")
	key, err := partitionKey(c.prefix, dateUsed, stamp+".json")
	if err != nil {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry %q: %w", key, err)
	}
	if err := c.store.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("upload entry %q: %w", key, err)
	}

	c.logger.Debug("cached raw data", "key", key)
	return nil
}

// partitionKey builds <prefix>/<year>/<month>/<object> from a YYYY-MM-DD
// partition date.
func partitionKey(prefix, dateUsed, object string) (string, error) {
	if len(dateUsed) != 10 || dateUsed[4] != '-' || dateUsed[7] != '-' {
		return "", fmt.Errorf("malformed partition date %q", dateUsed)
	}
	year, month := dateUsed[0:4], dateUsed[5:7]
	return prefix + "/" + year + "/" + month + "/" + object, nil
}
