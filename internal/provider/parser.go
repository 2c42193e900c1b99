package provider

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/meshwx/station-ingest/internal/domain"
	"github.com/meshwx/station-ingest/internal/stationmeta"
)

// observationRecord is one row of the provider's observation feed.
type observationRecord struct {
	StationID string                 `json:"station_id"`
	STID      string                 `json:"stid"`
	Name      string                 `json:"name"`
	Lat       *float64               `json:"lat"`
	Lon       *float64               `json:"lon"`
	OtherID   *string                `json:"other_id"`
	Elevation *float64               `json:"elevation"`
	Dattim    string                 `json:"dattim"`
	Variables map[string]json.Number `json:"variables"`
}

// Parser turns the provider observation feed into grouped fingerprints and
// the station metadata rows embedded in it. It implements runner.Parser.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger}
}

// Parse decodes the feed. Records without a station id or a parseable dattim
// are skipped and logged, never failing the batch; a payload that is not the
// expected array shape is an error.
func (p *Parser) Parse(payload []byte) ([]string, map[string]stationmeta.Row, error) {
	var records []observationRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, nil, fmt.Errorf("decode observation feed: %w", err)
	}

	var fingerprints []string
	rows := make(map[string]stationmeta.Row)

	for i, rec := range records {
		if rec.StationID == "" {
			p.logger.Debug("skipping observation without station id", "index", i)
			continue
		}
		dattim, err := parseDattim(rec.Dattim)
		if err != nil {
			p.logger.Debug("skipping observation with bad dattim",
				"station_id", rec.StationID, "dattim", rec.Dattim, "error", err)
			continue
		}

		// encoding/json sorts map keys, so the grouped payload and therefore
		// the fingerprint are byte-stable across runs.
		grouped, err := json.Marshal(rec.Variables)
		if err != nil {
			return nil, nil, fmt.Errorf("encode variables for %s: %w", rec.StationID, err)
		}

		stid := rec.STID
		if stid == "" {
			stid = rec.StationID
		}
		fingerprints = append(fingerprints, domain.Fingerprint(stid, dattim, grouped))

		rows[rec.StationID] = stationmeta.Row{
			STID:      stid,
			Name:      rec.Name,
			Lat:       rec.Lat,
			Lon:       rec.Lon,
			OtherID:   rec.OtherID,
			Elevation: rec.Elevation,
		}
	}

	return fingerprints, rows, nil
}

// parseDattim accepts the feed's native 12-digit dattim or an RFC3339
// timestamp.
func parseDattim(raw string) (time.Time, error) {
	if t, err := time.ParseInLocation(domain.DattimLayout, raw, time.UTC); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("dattim %q not %s or RFC3339", raw, domain.DattimLayout)
	}
	return t.UTC(), nil
}
