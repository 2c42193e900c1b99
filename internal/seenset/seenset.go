// Package seenset tracks the fingerprints of observations already handed to
// the downstream sender, so repeated runs never re-submit a record that is
// still inside the retention window. The set is loaded from the blob store at
// run start and fully rewritten at run end; a missed load degrades to an
// empty set (at-least-once delivery, duplicates accepted).
package seenset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/meshwx/station-ingest/internal/blob"
	"github.com/meshwx/station-ingest/internal/domain"
)

// Set is the in-memory seen-observation window for one run.
type Set struct {
	entries map[string]struct{}
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{entries: make(map[string]struct{})}
}

// Load reads the persisted fingerprint file from the store. A missing object
// is not an error; any other load failure is reported but still yields an
// empty set so the run can proceed.
func Load(ctx context.Context, store blob.Store, key string, logger *slog.Logger) *Set {
	s := NewSet()

	data, err := store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, blob.ErrNotFound) {
			logger.Warn("failed to load seen observations, assuming empty", "key", key, "error", err)
		}
		return s
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			s.entries[line] = struct{}{}
		}
	}
	return s
}

// Len reports the number of tracked fingerprints.
func (s *Set) Len() int { return len(s.entries) }

// Contains reports whether fp has already been forwarded.
func (s *Set) Contains(fp string) bool {
	_, ok := s.entries[fp]
	return ok
}

// Partition splits candidates into those not yet seen (to forward, in input
// order) and those already in the set (to discard). Dedup operates over the
// whole candidate slice against the full set; any later chunking is purely
// transmission pacing.
func (s *Set) Partition(candidates []string) (fresh, duplicate []string) {
	for _, fp := range candidates {
		if s.Contains(fp) {
			duplicate = append(duplicate, fp)
		} else {
			fresh = append(fresh, fp)
		}
	}
	return fresh, duplicate
}

// Add records fingerprints as forwarded.
func (s *Set) Add(fps ...string) {
	for _, fp := range fps {
		s.entries[fp] = struct{}{}
	}
}

// Trim drops every fingerprint whose embedded dattim is older than
// now−retention, returning the number removed. Fingerprints whose dattim
// cannot be parsed have no determinable age and are dropped as well, keeping
// the set growth-bounded.
func (s *Set) Trim(now time.Time, retention time.Duration, logger *slog.Logger) int {
	horizon := now.Add(-retention)
	removed := 0
	unparseable := 0

	for fp := range s.entries {
		ts, err := domain.FingerprintTime(fp)
		if err != nil {
			delete(s.entries, fp)
			removed++
			unparseable++
			continue
		}
		if ts.Before(horizon) {
			delete(s.entries, fp)
			removed++
		}
	}

	if unparseable > 0 {
		logger.Debug("dropped fingerprints without parseable dattim", "count", unparseable)
	}
	return removed
}

// Persist fully rewrites the fingerprint file. Lines are sorted for a stable
// on-disk form; the set itself has no ordering requirement.
func (s *Set) Persist(ctx context.Context, store blob.Store, key string) error {
	lines := make([]string, 0, len(s.entries))
	for fp := range s.entries {
		lines = append(lines, fp)
	}
	sort.Strings(lines)

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}

	if err := store.Put(ctx, key, []byte(b.String()), "text/plain"); err != nil {
		return fmt.Errorf("persist seen observations %q: %w", key, err)
	}
	return nil
}

// Chunk slices fps into consecutive batches of at most size elements. Chunk
// boundaries bound burst size against the downstream sender and are invisible
// to dedup correctness.
func Chunk(fps []string, size int) [][]string {
	if size <= 0 || len(fps) == 0 {
		if len(fps) == 0 {
			return nil
		}
		return [][]string{fps}
	}
	var chunks [][]string
	for start := 0; start < len(fps); start += size {
		end := min(start+size, len(fps))
		chunks = append(chunks, fps[start:end])
	}
	return chunks
}
