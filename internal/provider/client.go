// Package provider is the HTTP edge of the ingest: fetching raw observation
// and metadata payloads, retrieving the optional variable-bounds table, and
// delivering assembled lookup payloads. The reconciliation core treats all of
// these as opaque collaborator calls.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/meshwx/station-ingest/internal/secrets"
	"github.com/meshwx/station-ingest/internal/stationmeta"
	"github.com/meshwx/station-ingest/internal/validate"
)

// Client talks to the provider API and the station lookup service.
type Client struct {
	baseURL    string
	lookupURL  string
	boundsURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a provider client.
func NewClient(baseURL, lookupURL, boundsURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		lookupURL:  lookupURL,
		boundsURL:  boundsURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch retrieves the latest raw observation payload. The body is returned
// verbatim; the caller caches and parses it.
func (c *Client) Fetch(ctx context.Context, creds secrets.Credentials) ([]byte, error) {
	return c.get(ctx, c.baseURL+"/observations/latest", creds.APIKey)
}

// FetchMetadata retrieves the provider's station metadata endpoint, decoded
// into rows keyed by provider station id.
func (c *Client) FetchMetadata(ctx context.Context, creds secrets.Credentials) (map[string]stationmeta.Row, error) {
	body, err := c.get(ctx, c.baseURL+"/stations", creds.APIKey)
	if err != nil {
		return nil, err
	}

	var rows map[string]stationmeta.Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode station metadata: %w", err)
	}
	return rows, nil
}

// VariableBounds fetches the remote variable-bounds table used for optional
// range validation.
func (c *Client) VariableBounds(ctx context.Context) (map[string]validate.Bounds, error) {
	if c.boundsURL == "" {
		return nil, nil
	}
	body, err := c.get(ctx, c.boundsURL, "")
	if err != nil {
		return nil, err
	}

	var bounds map[string]validate.Bounds
	if err := json.Unmarshal(body, &bounds); err != nil {
		return nil, fmt.Errorf("decode variable bounds: %w", err)
	}
	return bounds, nil
}

// UpdateStations PUTs the lookup payload to the station lookup service.
func (c *Client) UpdateStations(ctx context.Context, payload stationmeta.LookupPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode lookup payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.lookupURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("update stations: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("update stations: status %d: %s", resp.StatusCode, body)
	}
	return nil
}

func (c *Client) get(ctx context.Context, fullURL, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("provider API error: status %d: %s", resp.StatusCode, body)
	}
	return io.ReadAll(resp.Body)
}
