package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwx/station-ingest/internal/domain"
)

func TestEnvProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("present", func(t *testing.T) {
		t.Setenv("TEST_CREDS", `{"api_key":"k-123"}`)

		raw, err := EnvProvider{}.Retrieve(ctx, "TEST_CREDS")
		require.NoError(t, err)
		assert.Equal(t, `{"api_key":"k-123"}`, string(raw))
	})

	t.Run("missing is a configuration error", func(t *testing.T) {
		_, err := EnvProvider{}.Retrieve(ctx, "TEST_CREDS_ABSENT")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConfiguration))
	})
}

func TestParseCredentials(t *testing.T) {
	t.Run("valid blob", func(t *testing.T) {
		creds, err := ParseCredentials([]byte(`{"api_key":"k-123"}`))
		require.NoError(t, err)
		assert.Equal(t, "k-123", creds.APIKey)
	})

	t.Run("malformed blob is a configuration error", func(t *testing.T) {
		_, err := ParseCredentials([]byte("{broken"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrConfiguration))
	})
}
