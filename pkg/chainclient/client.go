/**
 * @description
 * This package provides a client for the external anchoring gateway, the
 * service that writes a trade's composite digest to an immutable public ledger
 * and returns the resulting transaction reference. Anchoring is best-effort:
 * callers treat every error from this client as reportable but non-fatal.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package chainclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a client for the anchoring gateway API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new anchoring gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Configured reports whether the client has a target to talk to. When false,
// the settler skips anchoring entirely.
func (c *Client) Configured() bool {
	return c != nil && c.BaseURL != ""
}

type anchorRequest struct {
	ExternalOrderID string `json:"externalOrderId"`
	AnchorHash      string `json:"anchorHash"`
}

type anchorResponse struct {
	TxHash string `json:"txHash"`
}

// AnchorHash submits a composite digest for the given order and returns the
// gateway's transaction reference.
func (c *Client) AnchorHash(ctx context.Context, externalOrderID, anchorHash string) (string, error) {
	payload, err := json.Marshal(anchorRequest{
		ExternalOrderID: externalOrderID,
		AnchorHash:      anchorHash,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v1/anchors", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("anchor gateway request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("anchor gateway returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed anchorResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode anchor gateway response: %w", err)
	}
	if parsed.TxHash == "" {
		return "", fmt.Errorf("anchor gateway response missing txHash")
	}
	return parsed.TxHash, nil
}
