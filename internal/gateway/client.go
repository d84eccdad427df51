// internal/gateway/client.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/user/hookrelay/internal/types"
)

// ErrNoCredential is returned when delivery is attempted without an API
// key. No network call is made in that case.
var ErrNoCredential = errors.New("no API key configured")

// Client talks to the remote collector. One exchange per request, bearer
// auth, bounded timeout; every non-2xx outcome is reported as a plain
// failure and retry policy belongs to the caller.
type Client struct {
	baseURL     string
	apiKey      string
	integration string
	httpClient  *http.Client
}

var _ types.Deliverer = (*Client)(nil)

// NewClient creates a collector client for the given integration. The
// integration name selects the collector-side intake route.
func NewClient(baseURL, apiKey, integration string) *Client {
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		integration: integration,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Deliver posts one exchange document. It returns nil only on an
// explicit success status from the collector.
func (c *Client) Deliver(ctx context.Context, ex *types.Exchange) error {
	if c.apiKey == "" {
		return ErrNoCredential
	}

	body, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal exchange: %w", err)
	}

	endpoint := c.baseURL + "/v1/hooks/" + c.integration
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send exchange: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("collector rejected exchange (status %d)", resp.StatusCode)
	}
	return nil
}

// VerifyKey checks the API key against the collector's models endpoint.
func (c *Client) VerifyKey(ctx context.Context) error {
	if c.apiKey == "" {
		return ErrNoCredential
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("verify key: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("key verification failed (status %d)", resp.StatusCode)
	}
	return nil
}

// mdmKeyResponse is the managed-install key exchange response.
type mdmKeyResponse struct {
	APIKey    string `json:"api_key"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// FetchMDMKey exchanges an admin credential and device identifier for the
// per-device API key on managed installs.
func FetchMDMKey(ctx context.Context, baseURL, appName, adminKey, deviceID string) (string, error) {
	q := url.Values{}
	if appName != "" {
		q.Set("app_name", appName)
	}
	q.Set("serial_number", deviceID)
	q.Set("app_type", "hookrelay")
	endpoint := baseURL + "/api/v1/automations/mdm/get_application_api_key/?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+adminKey)

	httpClient := &http.Client{Timeout: 30 * time.Second}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch key: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("key exchange failed (status %d)", resp.StatusCode)
	}

	var keyResp mdmKeyResponse
	if err := json.NewDecoder(resp.Body).Decode(&keyResp); err != nil {
		return "", fmt.Errorf("decode key response: %w", err)
	}
	if keyResp.APIKey == "" {
		return "", errors.New("no api_key in response")
	}
	return keyResp.APIKey, nil
}
