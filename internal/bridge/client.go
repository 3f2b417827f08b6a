// Package bridge reads MetaTrader account data from an EA webhook bridge: an
// Expert Advisor on the trader's terminal periodically posts account numbers
// to an HTTP endpoint, and this client reads the latest snapshot back.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond
)

// AccountData is the bridge's latest snapshot for one terminal login.
type AccountData struct {
	Balance  float64 `json:"balance"`
	Equity   float64 `json:"equity"`
	Currency string  `json:"currency"`
	DailyPnL float64 `json:"daily_pnl"`
}

// Client reads account snapshots from a bridge endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets the delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.client = client
	}
}

// NewClient creates a bridge client for the given data endpoint.
// apiKey may be empty when the bridge is unauthenticated.
func NewClient(endpoint, apiKey string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ping verifies the endpoint answers for the given login.
func (c *Client) Ping(ctx context.Context, login int64) error {
	_, err := c.Fetch(ctx, login)
	return err
}

// Fetch retrieves the latest posted snapshot for a terminal login.
func (c *Client) Fetch(ctx context.Context, login int64) (*AccountData, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		data, err := c.fetchOnce(ctx, login)
		if err == nil {
			return data, nil
		}
		lastErr = err

		// Context errors are not retryable.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("bridge fetch after %d attempts: %w", c.maxRetries+1, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, login int64) (*AccountData, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("login", strconv.FormatInt(login, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	var data AccountData
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}
	if data.Currency == "" {
		data.Currency = "USD"
	}
	return &data, nil
}
