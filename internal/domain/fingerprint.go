package domain

import (
	"fmt"
	"strings"
	"time"
)

// DattimLayout is the 12-digit observation timestamp format embedded in every
// fingerprint, UTC.
const DattimLayout = "200601021504"

// Fingerprint builds the opaque line identifying one forwarded observation:
// station id, observation dattim, and the grouped payload, pipe-separated with
// all spaces stripped. Equality downstream is exact string match, so the
// encoding must stay byte-stable across runs.
func Fingerprint(stid string, dattim time.Time, payload []byte) string {
	line := stid + "|" + dattim.UTC().Format(DattimLayout) + "|" + string(payload)
	return strings.ReplaceAll(line, " ", "")
}

// FingerprintStation returns the station id field of a fingerprint, or ""
// when the line has no separator.
func FingerprintStation(fp string) string {
	if i := strings.IndexByte(fp, '|'); i >= 0 {
		return fp[:i]
	}
	return ""
}

// FingerprintTime parses the embedded dattim of a fingerprint. Retention
// trimming depends on this; a fingerprint without a parseable second field
// has no determinable age.
func FingerprintTime(fp string) (time.Time, error) {
	parts := strings.SplitN(fp, "|", 3)
	if len(parts) < 2 {
		return time.Time{}, fmt.Errorf("fingerprint %q has no dattim field", fp)
	}
	t, err := time.ParseInLocation(DattimLayout, parts[1], time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("fingerprint dattim %q: %w", parts[1], err)
	}
	return t, nil
}

// FingerprintPayload returns the payload field (everything after the second
// separator), or "" when absent.
func FingerprintPayload(fp string) string {
	parts := strings.SplitN(fp, "|", 3)
	if len(parts) < 3 {
		return ""
	}
	return parts[2]
}
