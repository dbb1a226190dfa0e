// Package client talks to an fsgrid server. Query errors reported by the
// server come back as *query.Error, so query.IsUnknownStore and
// query.IsInvalidQuery work across the wire.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kemiz/fsgrid/internal/query"
	"github.com/kemiz/fsgrid/internal/runner"
	"github.com/kemiz/fsgrid/internal/server"
)

// DefaultTimeout bounds one request.
const DefaultTimeout = 30 * time.Second

// StatusError is a non-2xx response that is not a query error.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d %s: %s", e.Status, e.Code, e.Message)
}

// Client is an HTTP client for one server.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// New creates a client for baseURL, e.g. "http://localhost:8080".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Health checks that the server is up.
func (c *Client) Health(ctx context.Context) (*server.HealthResponse, error) {
	var out server.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stores lists the server's stores.
func (c *Client) Stores(ctx context.Context) ([]server.StoreInfo, error) {
	var out []server.StoreInfo
	if err := c.do(ctx, http.MethodGet, "/api/v1/stores", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Query runs one named request on the server. The result's Elapsed is
// the server-side time; the round trip is returned separately.
func (c *Client) Query(ctx context.Context, n query.Named) (*runner.Result, time.Duration, error) {
	var out runner.Result
	start := time.Now()
	if err := c.do(ctx, http.MethodPost, "/api/v1/query", n, &out); err != nil {
		return nil, 0, fmt.Errorf("query %s: %w", n.Name, err)
	}
	return &out, time.Since(start), nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeError rebuilds a *query.Error for query failures and a
// *StatusError for everything else.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er server.ErrorResponse
	if err := json.Unmarshal(data, &er); err != nil || er.Error.Code == "" {
		return &StatusError{Status: resp.StatusCode, Code: http.StatusText(resp.StatusCode), Message: strings.TrimSpace(string(data))}
	}
	switch code := query.ErrorCode(er.Error.Code); code {
	case query.ErrCodeInvalidQuery, query.ErrCodeUnknownStore:
		return &query.Error{Code: code, Message: er.Error.Message, Field: er.Error.Field}
	}
	return &StatusError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
