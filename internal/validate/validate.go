// Package validate runs sanity checks over a run's candidate observations
// before forwarding. Findings never abort the run: they accumulate into
// grouped, categorized log output so a single bad station cannot hide the
// rest of the batch.
package validate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/meshwx/station-ingest/internal/domain"
)

// Bounds is the allowed numeric range for one variable.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// BoundsProvider fetches the remote variable-bounds table. Its absence
// degrades validation scope; it never aborts the run.
type BoundsProvider interface {
	VariableBounds(ctx context.Context) (map[string]Bounds, error)
}

// maxStationIDLen is the downstream limit on station identifiers.
const maxStationIDLen = 10

// CheckDattim flags observations whose embedded dattim falls outside
// [start, end], and ones whose dattim cannot be parsed at all.
func CheckDattim(fps []string, start, end time.Time) []string {
	var msgs []string
	for _, fp := range fps {
		ts, err := domain.FingerprintTime(fp)
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("DATTIM: unparseable timestamp in %q", fp))
			continue
		}
		if ts.Before(start) || ts.After(end) {
			msgs = append(msgs, fmt.Sprintf("DATTIM: station %s observation at %s outside window %s..%s",
				domain.FingerprintStation(fp), ts.UTC().Format(time.RFC3339),
				start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)))
		}
	}
	return msgs
}

// CheckStationIDLength flags station ids longer than the downstream limit.
func CheckStationIDLength(fps []string) []string {
	var msgs []string
	for _, fp := range fps {
		stid := domain.FingerprintStation(fp)
		if stid == "" {
			msgs = append(msgs, fmt.Sprintf("STID: missing station id in %q", fp))
			continue
		}
		if len(stid) > maxStationIDLen {
			msgs = append(msgs, fmt.Sprintf("STID: station id %q exceeds %d characters", stid, maxStationIDLen))
		}
	}
	return msgs
}

// CheckRanges flags observation values outside the variable-bounds table.
// Payloads are JSON objects of variable name to value; non-numeric values and
// variables absent from the table are ignored.
func CheckRanges(fps []string, bounds map[string]Bounds) []string {
	if len(bounds) == 0 {
		return nil
	}

	var msgs []string
	for _, fp := range fps {
		payload := domain.FingerprintPayload(fp)
		if payload == "" {
			continue
		}
		var values map[string]json.Number
		if err := json.Unmarshal([]byte(payload), &values); err != nil {
			continue
		}
		for _, name := range sortedNames(values) {
			b, ok := bounds[name]
			if !ok {
				continue
			}
			v, err := values[name].Float64()
			if err != nil {
				continue
			}
			if v < b.Min || v > b.Max {
				msgs = append(msgs, fmt.Sprintf("RANGE: station %s %s=%g outside [%g, %g]",
					domain.FingerprintStation(fp), name, v, b.Min, b.Max))
			}
		}
	}
	return msgs
}

// Report groups messages by their category prefix (the text before the first
// colon) and logs one summary line per category followed by each finding at
// debug. Returns the grouped messages for metric accounting.
func Report(logger *slog.Logger, msgs []string) map[string][]string {
	if len(msgs) == 0 {
		logger.Debug("all observation validations clean")
		return nil
	}

	grouped := make(map[string][]string)
	for _, msg := range msgs {
		category, _, _ := strings.Cut(msg, ":")
		grouped[category] = append(grouped[category], msg)
	}

	categories := make([]string, 0, len(grouped))
	for c := range grouped {
		categories = append(categories, c)
	}
	sort.Strings(categories)

	for _, category := range categories {
		logger.Info("validation findings", "category", category, "count", len(grouped[category]))
		for _, msg := range grouped[category] {
			logger.Debug(msg)
		}
	}
	return grouped
}

func sortedNames(values map[string]json.Number) []string {
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
