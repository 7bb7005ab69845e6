// Package oracle is the REST client for the settlement oracle. The oracle
// escrows validity bonds, runs the challenge period, and pushes resolution
// callbacks onto the settlement stream when a request finalizes.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openpredict/ammd/internal/domain"
	"github.com/openpredict/ammd/internal/numeric"
)

// Client is the REST client for the oracle API.
type Client struct {
	baseURL    string
	requester  string
	httpClient *http.Client
}

// NewClient creates an oracle client.
//
// baseURL is the API root, e.g. "https://oracle.openpredict.dev/v1".
// requester identifies this AMM instance to the oracle; it is echoed back
// in resolution callbacks.
func NewClient(baseURL, requester string) *Client {
	return &Client{
		baseURL:   baseURL,
		requester: requester,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// FetchConfig returns the oracle's current bond token and validity bond.
// Fetched before every request because the oracle may rotate either.
func (c *Client) FetchConfig(ctx context.Context) (domain.OracleConfig, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/config", nil)
	if err != nil {
		return domain.OracleConfig{}, fmt.Errorf("oracle: fetch config: %w", err)
	}

	var cfg domain.OracleConfig
	if err := json.Unmarshal(body, &cfg); err != nil {
		return domain.OracleConfig{}, fmt.Errorf("oracle: decode config: %w", err)
	}
	return cfg, nil
}

// createRequestBody is the externally tagged envelope the oracle expects:
// the bond being attached and exactly one payload variant.
type createRequestBody struct {
	Requester string      `json:"requester"`
	Bond      domain.U128 `json:"bond"`
	Payload   struct {
		NewDataRequest domain.NewDataRequestArgs `json:"NewDataRequest"`
	} `json:"payload"`
}

// CreateRequest submits a data request with the given bond and returns the
// portion of the bond the oracle kept.
func (c *Client) CreateRequest(ctx context.Context, bond domain.U128, args domain.NewDataRequestArgs) (domain.U128, error) {
	reqBody := createRequestBody{Requester: c.requester, Bond: bond}
	reqBody.Payload.NewDataRequest = args

	body, err := c.doRequest(ctx, http.MethodPost, "/requests", reqBody)
	if err != nil {
		return numeric.Zero(), fmt.Errorf("oracle: create request: %w", err)
	}

	var resp struct {
		RequestID string      `json:"request_id"`
		BondUsed  domain.U128 `json:"bond_used"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return numeric.Zero(), fmt.Errorf("oracle: decode create response: %w", err)
	}
	return resp.BondUsed, nil
}

// doRequest executes one HTTP round trip and returns the response body.
// Non-2xx responses are surfaced with the status and body text.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(body))
	}
	return body, nil
}

var _ domain.OracleGateway = (*Client)(nil)
