package apix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client issues authenticated JSON requests against the verification
// service. Every call carries the transaction token as a bearer
// credential; non-2xx responses and transport failures come back as a
// uniform *APIError.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// New creates a client for baseURL with a sane default timeout.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Logger: slog.Default(),
	}
}

// url builds a complete URL by appending the path to the base URL.
func (c *Client) url(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL + path
}

// Get issues a GET request. See Do for semantics.
func (c *Client) Get(ctx context.Context, path, token string, out any) error {
	return c.Do(ctx, http.MethodGet, path, token, nil, out)
}

// Post issues a POST request with a JSON body. See Do for semantics.
func (c *Client) Post(ctx context.Context, path, token string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, token, body, out)
}

// Put issues a PUT request with a JSON body. See Do for semantics.
func (c *Client) Put(ctx context.Context, path, token string, body, out any) error {
	return c.Do(ctx, http.MethodPut, path, token, body, out)
}

// Patch issues a PATCH request with a JSON body. See Do for semantics.
func (c *Client) Patch(ctx context.Context, path, token string, body, out any) error {
	return c.Do(ctx, http.MethodPatch, path, token, body, out)
}

// Delete issues a DELETE request. See Do for semantics.
func (c *Client) Delete(ctx context.Context, path, token string, out any) error {
	return c.Do(ctx, http.MethodDelete, path, token, nil, out)
}

// Do performs one authenticated JSON round trip. body, when non-nil, is
// JSON-encoded; out, when non-nil, receives the decoded 2xx response
// body. Any non-2xx response or transport failure is returned as a
// *APIError with the legacy error-code remapping already applied.
func (c *Client) Do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &APIError{
			Message:   err.Error(),
			ErrorCode: ErrorCodeRequestFailed,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			Message:    "failed to read response body",
			StatusCode: resp.StatusCode,
			ErrorCode:  ErrorCodeRequestFailed,
			Cause:      err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
