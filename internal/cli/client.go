package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Client is an HTTP client for the crimecast API
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a new API client
func NewClient(opts *globalOptions) *Client {
	return &Client{
		baseURL: strings.TrimRight(opts.server, "/"),
		client: &http.Client{
			Timeout: opts.timeout,
		},
	}
}

// Get performs a GET request
func (c *Client) Get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}

	return c.do(req)
}

// Post performs a POST request with JSON body
func (c *Client) Post(ctx context.Context, path string, body any) ([]byte, int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, int, error) {
	req.Header.Set("X-Request-ID", uuid.NewString())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	return data, resp.StatusCode, nil
}

// apiError is the failure body of the JSON routes.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// responseError turns a non-2xx answer into an error, preferring the
// server's code and message when the body carries them.
func responseError(status int, data []byte) error {
	var e apiError
	if err := json.Unmarshal(data, &e); err == nil && e.Code != "" {
		return fmt.Errorf("server returned status %d: %s: %s", status, e.Code, e.Message)
	}
	return fmt.Errorf("server returned status %d: %s", status, strings.TrimSpace(string(data)))
}
