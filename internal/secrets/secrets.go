// Package secrets retrieves provider credentials as an opaque JSON blob,
// matching the contract of the deployment's secret manager.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/meshwx/station-ingest/internal/domain"
)

// Credentials is the decoded credential blob.
type Credentials struct {
	APIKey string `json:"api_key"`
}

// Provider returns the raw JSON-encoded credential blob for a named secret.
type Provider interface {
	Retrieve(ctx context.Context, name string) ([]byte, error)
}

// EnvProvider reads the blob from an environment variable. Deployments that
// mount secrets into the environment need nothing more.
type EnvProvider struct{}

func (EnvProvider) Retrieve(_ context.Context, name string) ([]byte, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return nil, fmt.Errorf("%w: secret %q not present in environment", domain.ErrConfiguration, name)
	}
	return []byte(v), nil
}

// ParseCredentials decodes the blob. A malformed blob is a configuration
// error; the run aborts rather than hitting the provider unauthenticated.
func ParseCredentials(blob []byte) (Credentials, error) {
	var creds Credentials
	if err := json.Unmarshal(blob, &creds); err != nil {
		return Credentials{}, fmt.Errorf("%w: parse credential blob: %v", domain.ErrConfiguration, err)
	}
	return creds, nil
}
