package domain

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDate(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
		ok       bool
	}{
		{"14-digit compact timestamp", "20240115123045", "2024-01-15", true},
		{"12-digit compact timestamp", "202401151230", "2024-01-15", true},
		{"8-digit compact date", "20240115", "2024-01-15", true},
		{"unix seconds", "1705314600", "2024-01-15", true},
		{"nine digits below unix range", "999999999", "", false},
		{"unix milliseconds", "1705314600000", "2024-01-15", true},
		{"ISO date", "2024-01-15", "2024-01-15", true},
		{"ISO timestamp prefix", "2024-01-15T12:30:45Z", "2024-01-15", true},
		{"surrounding whitespace", "  20240115  ", "2024-01-15", true},
		{"station serial passes as date", "20231742", "2023-17-42", true},
		{"ten digits outside unix range", "2100000001", "", false},
		{"thirteen digits outside unix range", "2100000000000", "", false},
		{"eleven digits", "12345678901", "", false},
		{"seven digits", "1234567", "", false},
		{"plain number", "42", "", false},
		{"dashes but not ISO shape", "12-34-5678", "", false},
		{"short dashed string", "2024-1-5", "", false},
		{"non-numeric", "station-alpha", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractDate(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestExtractDates_WalksNestedPayload(t *testing.T) {
	payload := []byte(`{
		"station": "KABC",
		"observed_at": "2024-01-15T12:30:00Z",
		"readings": [
			{"dattim": "202401141230", "temp": 12.5},
			{"dattim": "202401151230", "temp": 13.0}
		],
		"generated": 1705314600
	}`)

	v, err := ValueFromJSON(payload)
	require.NoError(t, err)

	dates := ExtractDates(v)
	assert.ElementsMatch(t, []string{"2024-01-15", "2024-01-14", "2024-01-15", "2024-01-15"}, dates)
}

func TestExtractDates_NumberLiteralPreserved(t *testing.T) {
	// A 14-digit numeric timestamp must not be mangled by float formatting.
	v, err := ValueFromJSON([]byte(`{"dattim": 20240115123045}`))
	require.NoError(t, err)

	dates := ExtractDates(v)
	assert.Equal(t, []string{"2024-01-15"}, dates)
}

func TestExtractDates_NoMatches(t *testing.T) {
	v, err := ValueFromJSON([]byte(`{"temp": 12.5, "name": "ridge top", "flag": true, "missing": null}`))
	require.NoError(t, err)

	assert.Empty(t, ExtractDates(v))
}

func TestPartitionDate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	t.Run("latest date wins", func(t *testing.T) {
		got := PartitionDate([]string{"2024-01-14", "2024-01-16", "2024-01-15"}, "2020-01-01", clock)
		assert.Equal(t, "2024-01-16", got)
	})

	t.Run("fallback when nothing extracted", func(t *testing.T) {
		got := PartitionDate(nil, "2023-12-31", clock)
		assert.Equal(t, "2023-12-31", got)
	})

	t.Run("current date when no fallback", func(t *testing.T) {
		got := PartitionDate(nil, "", clock)
		assert.Equal(t, "2024-03-01", got)
	})
}

func TestValueFromJSON_Invalid(t *testing.T) {
	_, err := ValueFromJSON([]byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode payload")
}
