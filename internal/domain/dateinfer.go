package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Date inference scans a raw provider payload for timestamp-shaped scalars and
// picks a storage partition date from them. It never rewrites or reinterprets
// the source timestamps; the extracted dates exist only to choose which cache
// object a payload lands in.
//
// The heuristics are intentionally loose: an 8-digit station serial like
// 20231742 passes as a date, and month 13 is accepted. Partitioning has always
// behaved this way and adding calendar validation would silently move payloads
// between objects.

const partitionDateLayout = "2006-01-02"

// ExtractDates walks the entire Value tree and returns one date string per
// scalar that matches a known timestamp shape. Duplicates are kept; the
// caller's selection policy is order-independent.
func ExtractDates(v Value) []string {
	var dates []string
	visitScalars(v, func(text string) {
		if d, ok := extractDate(text); ok {
			dates = append(dates, d)
		}
	})
	return dates
}

func visitScalars(v Value, fn func(text string)) {
	switch v.Kind() {
	case KindObject:
		for _, child := range v.Fields() {
			visitScalars(child, fn)
		}
	case KindArray:
		for _, child := range v.Items() {
			visitScalars(child, fn)
		}
	default:
		if text, ok := v.scalarText(); ok {
			fn(text)
		}
	}
}

// extractDate attempts to read a YYYY-MM-DD date out of a single scalar.
// Recognized shapes, in order: 14-digit YYYYMMDDHHMMSS, 12-digit YYYYMMDDHHMM,
// 8-digit YYYYMMDD, unix seconds (9-10 digits inside [1e9, 2e9]), unix
// milliseconds (13 digits inside [1e12, 2e12]), and strings whose first ten
// characters form YYYY-MM-DD.
func extractDate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}

	if isDigits(s) {
		switch len(s) {
		case 14, 12, 8:
			return s[0:4] + "-" + s[4:6] + "-" + s[6:8], true
		case 9, 10:
			v, err := strconv.ParseFloat(s, 64)
			if err == nil && v >= 1e9 && v <= 2e9 {
				return time.Unix(int64(v), 0).UTC().Format(partitionDateLayout), true
			}
			return "", false
		case 13:
			v, err := strconv.ParseFloat(s, 64)
			if err == nil && v >= 1e12 && v <= 2e12 {
				return time.UnixMilli(int64(v)).UTC().Format(partitionDateLayout), true
			}
			return "", false
		default:
			return "", false
		}
	}

	if strings.Contains(s, "-") && len(s) >= 10 {
		return extractISOPrefix(s[:10])
	}
	return "", false
}

// extractISOPrefix validates a 10-character YYYY-MM-DD shape without checking
// calendar validity.
func extractISOPrefix(datePart string) (string, bool) {
	parts := strings.Split(datePart, "-")
	if len(parts) != 3 {
		return "", false
	}
	year, month, day := parts[0], parts[1], parts[2]
	if len(year) == 4 && isDigits(year) &&
		len(month) == 2 && isDigits(month) &&
		len(day) == 2 && isDigits(day) {
		return datePart, true
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// PartitionDate applies the selection policy: the lexicographically maximum
// extracted date (most recent, since the format is zero-padded ISO order),
// else the caller-supplied fallback, else the current UTC date.
func PartitionDate(dates []string, fallback string, clock clockwork.Clock) string {
	if len(dates) > 0 {
		latest := dates[0]
		for _, d := range dates[1:] {
			if d > latest {
				latest = d
			}
		}
		return latest
	}
	if fallback != "" {
		return fallback
	}
	return clock.Now().UTC().Format(partitionDateLayout)
}
