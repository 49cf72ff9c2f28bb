// Package settings is the console's client for the ISP settings API. Calls
// are credentialed through the shared cookie jar and go through the common
// retry and circuit breaker policies.
package settings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/michaelayoade/dotmac-isp-sub003/pkg/clients"
)

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("settings api returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("settings api returned status %d", e.StatusCode)
}

// Settings is the tenant-wide ISP configuration document.
type Settings struct {
	CompanyName        string `json:"company_name"`
	SupportEmail       string `json:"support_email"`
	Timezone           string `json:"timezone"`
	Currency           string `json:"currency"`
	BandwidthUnit      string `json:"bandwidth_unit"`
	SessionIdleMinutes int    `json:"session_idle_timeout_minutes"`
	MaintenanceMode    bool   `json:"maintenance_mode"`
}

// ValidationResult reports whether a settings document would be accepted.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Client talks to /isp-settings on the console API.
type Client struct {
	baseURL string
	client  *http.Client
	retry   clients.RetryConfig
}

// Option mutates a Client during construction.
type Option func(*Client)

// NewClient builds a settings client. The HTTP client should carry the
// session cookie jar; pass one from clients.NewCredentialedClient.
func NewClient(baseURL string, opts ...Option) *Client {
	retry := clients.DefaultRetryConfig()
	retry.CircuitBreaker = clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
		Name:          "settings-api",
		OnStateChange: clients.CircuitBreakerMetricsCallback("settings-api"),
	})
	c := &Client{
		baseURL: baseURL,
		client: &http.Client{
			Transport: clients.DefaultTransport(),
			Timeout:   10 * time.Second,
		},
		retry: retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithHTTPClient substitutes the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

// WithRetryConfig substitutes the retry policy.
func WithRetryConfig(cfg clients.RetryConfig) Option {
	return func(c *Client) {
		c.retry = cfg
	}
}

// GetSettings fetches the current settings document.
func (c *Client) GetSettings(ctx context.Context) (*Settings, error) {
	var out Settings
	if err := c.doJSON(ctx, http.MethodGet, "/isp-settings", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PatchSettings applies a partial update and returns the resulting document.
// Only the fields present in patch are changed.
func (c *Client) PatchSettings(ctx context.Context, patch map[string]any) (*Settings, error) {
	var out Settings
	if err := c.doJSON(ctx, http.MethodPatch, "/isp-settings", patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ImportSettings replaces the whole document.
func (c *Client) ImportSettings(ctx context.Context, s Settings) error {
	return c.doJSON(ctx, http.MethodPost, "/isp-settings/import", s, nil)
}

// ValidateSettings checks a document without applying it.
func (c *Client) ValidateSettings(ctx context.Context, s Settings) (*ValidationResult, error) {
	var out ValidationResult
	if err := c.doJSON(ctx, http.MethodPost, "/isp-settings/validate", s, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetSettings restores defaults and returns the resulting document.
func (c *Client) ResetSettings(ctx context.Context) (*Settings, error) {
	var out Settings
	if err := c.doJSON(ctx, http.MethodPost, "/isp-settings/reset", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := clients.DoWithRetry(ctx, c.client, req, c.retry)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var errBody struct {
			Error string `json:"error"`
		}
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096)); readErr == nil {
			if json.Unmarshal(data, &errBody) == nil {
				apiErr.Message = errBody.Error
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
