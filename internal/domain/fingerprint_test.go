package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	dattim := time.Date(2024, 1, 15, 12, 30, 0, 0, time.UTC)

	t.Run("pipe joined", func(t *testing.T) {
		fp := Fingerprint("KABC", dattim, []byte(`{"temp":12.5}`))
		assert.Equal(t, `KABC|202401151230|{"temp":12.5}`, fp)
	})

	t.Run("spaces stripped", func(t *testing.T) {
		fp := Fingerprint("KABC", dattim, []byte(`{"temp": 12.5, "wind": 3}`))
		assert.Equal(t, `KABC|202401151230|{"temp":12.5,"wind":3}`, fp)
	})

	t.Run("non-UTC dattim normalized", func(t *testing.T) {
		loc := time.FixedZone("plus2", 2*3600)
		fp := Fingerprint("KABC", dattim.In(loc), []byte("x"))
		assert.Equal(t, "KABC|202401151230|x", fp)
	})

	t.Run("deterministic", func(t *testing.T) {
		a := Fingerprint("KABC", dattim, []byte(`{"temp":12.5}`))
		b := Fingerprint("KABC", dattim, []byte(`{"temp":12.5}`))
		assert.Equal(t, a, b)
	})
}

func TestFingerprintFields(t *testing.T) {
	fp := `KABC|202401151230|{"temp":12.5}`

	assert.Equal(t, "KABC", FingerprintStation(fp))
	assert.Equal(t, `{"temp":12.5}`, FingerprintPayload(fp))

	ts, err := FingerprintTime(fp)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 15, 12, 30, 0, 0, time.UTC), ts)
}

func TestFingerprintTime_Malformed(t *testing.T) {
	_, err := FingerprintTime("no-separator")
	require.Error(t, err)

	_, err = FingerprintTime("KABC|notadate|payload")
	require.Error(t, err)
}

func TestFingerprintFields_Malformed(t *testing.T) {
	assert.Equal(t, "", FingerprintStation("bare"))
	assert.Equal(t, "", FingerprintPayload("KABC|202401151230"))
}
