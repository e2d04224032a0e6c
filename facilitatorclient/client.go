// Package facilitatorclient is the HTTP client the resource middleware
// uses to call a facilitator's /verify and /settle endpoints.
package facilitatorclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/upto-protocol/upto-go/mechanisms/evm"
)

// DefaultTimeout bounds every call this client makes.
const DefaultTimeout = 30 * time.Second

// Client calls a facilitator over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New returns a client targeting baseURL (e.g. "http://localhost:4402").
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

type verifyRequest struct {
	Payload      evm.UptoPayload          `json:"payload"`
	Requirements evm.PaymentRequirements `json:"requirements"`
}

// Verify calls POST /verify.
func (c *Client) Verify(ctx context.Context, payload evm.UptoPayload, requirements evm.PaymentRequirements) (evm.VerifyResult, error) {
	var result evm.VerifyResult
	err := c.post(ctx, "/verify", verifyRequest{Payload: payload, Requirements: requirements}, &result)
	return result, err
}

// Settle calls POST /settle.
func (c *Client) Settle(ctx context.Context, payload evm.UptoPayload, requirements evm.PaymentRequirements) (evm.SettleResult, error) {
	var result evm.SettleResult
	err := c.post(ctx, "/settle", verifyRequest{Payload: payload, Requirements: requirements}, &result)
	return result, err
}

// SupportedResponse is GET /supported's body.
type SupportedResponse struct {
	Schemes     []string `json:"schemes"`
	Networks    []string `json:"networks"`
	Facilitator string   `json:"facilitator"`
}

// Supported calls GET /supported.
func (c *Client) Supported(ctx context.Context) (SupportedResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/supported", nil)
	if err != nil {
		return SupportedResponse{}, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return SupportedResponse{}, fmt.Errorf("facilitator unavailable: %w", err)
	}
	defer resp.Body.Close()

	var out SupportedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return SupportedResponse{}, fmt.Errorf("failed to decode /supported response: %w", err)
	}
	return out, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("facilitator unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("facilitator returned %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode facilitator response: %w", err)
	}
	return nil
}
