// Package stationmeta validates, normalizes, and assembles station metadata
// records into the two downstream payload shapes, while guaranteeing that a
// station's STID never changes once persisted.
package stationmeta

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/meshwx/station-ingest/internal/domain"
)

// metersToFeet converts elevation into the feet the downstream store expects.
const metersToFeet = 3.28084

// PayloadType selects the downstream payload shape.
type PayloadType string

const (
	// PayloadLookup produces the {MNET_ID, STNS} structure consumed by the
	// station lookup service.
	PayloadLookup PayloadType = "lookup"

	// PayloadReconciliation produces the {source, metadata} document sent to
	// the metadata manager, serialized to compact JSON.
	PayloadReconciliation PayloadType = "reconciliation"
)

// Row is one station's metadata as parsed from the provider, keyed in the
// persisted store by the provider's station id.
type Row struct {
	STID               string   `json:"SYNOPTIC_STID"`
	Name               string   `json:"NAME"`
	Lat                *float64 `json:"LAT"`
	Lon                *float64 `json:"LON"`
	OtherID            *string  `json:"OTID"`
	Elevation          *float64 `json:"ELEVATION"`
	RestrictedData     *bool    `json:"RESTRICTED_DATA,omitempty"`
	RestrictedMetadata *bool    `json:"RESTRICTED_METADATA,omitempty"`
}

// Station is one assembled output record.
type Station struct {
	STID               string   `json:"STID"`
	Name               string   `json:"NAME"`
	Latitude           float64  `json:"LATITUDE"`
	Longitude          float64  `json:"LONGITUDE"`
	OtherID            *string  `json:"OTHER_ID"`
	MnetID             int      `json:"MNET_ID"`
	Elevation          *float64 `json:"ELEVATION"`
	RestrictedData     bool     `json:"RESTRICTED_DATA"`
	RestrictedMetadata bool     `json:"RESTRICTED_METADATA"`
}

// LookupPayload is the structured (not serialized) lookup shape.
type LookupPayload struct {
	MnetID int       `json:"MNET_ID"`
	Stns   []Station `json:"STNS"`
}

// SourceInfo identifies the origin of a reconciliation payload.
type SourceInfo struct {
	Name        string `json:"name"`
	Environment string `json:"environment"`
}

// Result carries the reconciler outputs: the updated store content to
// persist, and whichever payload shape was requested.
type Result struct {
	Stations []Station

	Lookup         *LookupPayload
	Reconciliation []byte // compact JSON, set for PayloadReconciliation

	Skipped map[string][]string // skip reason -> provider station ids
}

// Reconciler assembles metadata payloads under a fixed network identity.
type Reconciler struct {
	mnetID             int
	elevationUnit      string
	restrictedData     bool
	restrictedMetadata bool
	logger             *slog.Logger
}

// New creates a Reconciler. elevationUnit names the unit of the provider's
// elevation values; it is validated during Reconcile, not here, so that a bad
// tag surfaces as the run-level configuration error the caller expects.
func New(mnetID int, elevationUnit string, restrictedData, restrictedMetadata bool, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		mnetID:             mnetID,
		elevationUnit:      elevationUnit,
		restrictedData:     restrictedData,
		restrictedMetadata: restrictedMetadata,
		logger:             logger,
	}
}

// Reconcile merges candidate rows into the existing persisted records and
// assembles the requested payload.
//
// Identifier immutability: when a provider station id already has a persisted
// STID, that STID is carried through unchanged regardless of the candidate's
// value. Non-identity fields (name, coordinates, elevation, other id) take
// the candidate's values.
//
// Per-record problems skip that record and continue; an unknown payload type
// or elevation unit aborts before any record is processed.
func (r *Reconciler) Reconcile(existing, candidates map[string]Row, payloadType PayloadType, source *SourceInfo) (map[string]Row, *Result, error) {
	if payloadType != PayloadLookup && payloadType != PayloadReconciliation {
		return nil, nil, fmt.Errorf("%w: invalid payload type %q", domain.ErrConfiguration, payloadType)
	}
	unit := strings.ToLower(r.elevationUnit)
	if unit != "meters" && unit != "feet" {
		return nil, nil, fmt.Errorf("%w: elevation unit must be \"meters\" or \"feet\", got %q", domain.ErrConfiguration, r.elevationUnit)
	}

	merged := make(map[string]Row, len(existing)+len(candidates))
	for id, row := range existing {
		merged[id] = row
	}

	result := &Result{Skipped: make(map[string][]string)}

	for _, id := range sortedKeys(candidates) {
		row := candidates[id]
		if prior, ok := existing[id]; ok && prior.STID != "" {
			row.STID = prior.STID
		}

		station, reason := r.assemble(row)
		if reason != "" {
			result.Skipped[reason] = append(result.Skipped[reason], id)
			r.logger.Debug("skipping station", "station_id", id, "reason", reason)
			continue
		}

		merged[id] = row
		result.Stations = append(result.Stations, station)
	}

	for reason, ids := range result.Skipped {
		r.logger.Info("stations skipped during reconciliation",
			"reason", reason, "count", len(ids), "station_ids", ids)
	}

	switch payloadType {
	case PayloadLookup:
		result.Lookup = &LookupPayload{MnetID: r.mnetID, Stns: result.Stations}
	case PayloadReconciliation:
		src := source
		if src == nil {
			src = &SourceInfo{Name: "Administration Console", Environment: strconv.Itoa(r.mnetID)}
		}
		doc := struct {
			Source   *SourceInfo `json:"source"`
			Metadata []Station   `json:"metadata"`
		}{Source: src, Metadata: result.Stations}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, nil, fmt.Errorf("encode reconciliation payload: %w", err)
		}
		result.Reconciliation = data
	}

	return merged, result, nil
}

// assemble validates one row and builds its output record. A non-empty reason
// means the row is skipped.
func (r *Reconciler) assemble(row Row) (Station, string) {
	if row.Lat == nil || row.Lon == nil {
		return Station{}, "missing coordinates"
	}
	lat, lon := *row.Lat, *row.Lon
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Station{}, "coordinates out of bounds"
	}
	if lat == 0 && lon == 0 {
		return Station{}, "null island coordinates"
	}
	if row.STID == "" || row.Name == "" {
		return Station{}, "missing STID or NAME"
	}

	elevation := row.Elevation
	if elevation != nil {
		feet := *elevation
		if strings.ToLower(r.elevationUnit) == "meters" {
			feet *= metersToFeet
		}
		if math.IsNaN(feet) || math.IsInf(feet, 0) {
			elevation = nil
		} else {
			rounded := math.Round(feet*1000) / 1000
			elevation = &rounded
		}
	}

	return Station{
		STID:               row.STID,
		Name:               sanitizeName(row.Name),
		Latitude:           lat,
		Longitude:          lon,
		OtherID:            row.OtherID,
		MnetID:             r.mnetID,
		Elevation:          elevation,
		RestrictedData:     boolOrDefault(row.RestrictedData, r.restrictedData),
		RestrictedMetadata: boolOrDefault(row.RestrictedMetadata, r.restrictedMetadata),
	}, ""
}

// asciiFold strips diacritics (NFD, drop combining marks, NFC).
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// sanitizeName folds a station name to an ASCII-safe form. Quote characters
// pass through untouched; escaping for any downstream textual encoding is the
// consumer's responsibility.
func sanitizeName(name string) string {
	if isASCII(name) {
		return name
	}

	folded, _, err := transform.String(asciiFold, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if r < 128 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 128 {
			return false
		}
	}
	return true
}

func boolOrDefault(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}

func sortedKeys(rows map[string]Row) []string {
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
