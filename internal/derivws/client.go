// Package derivws implements the subset of the Deriv WebSocket API the
// monitor needs: authorize, balance and portfolio. The API is JSON over a
// single WebSocket with req_id-correlated request/response pairs.
package derivws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config configures client behavior.
type Config struct {
	// HandshakeTimeout bounds the WebSocket dial.
	HandshakeTimeout time.Duration
	// PingInterval is the interval between keepalive ping requests.
	PingInterval time.Duration
	// WriteTimeout bounds each outgoing message write.
	WriteTimeout time.Duration
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		WriteTimeout:     10 * time.Second,
	}
}

// Endpoint builds the Deriv WebSocket URL for the given application id.
func Endpoint(appID int) string {
	return fmt.Sprintf("%s?app_id=%d", DefaultEndpoint, appID)
}

// Client is a Deriv WebSocket API client. Safe for concurrent calls.
type Client struct {
	config Config

	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
	reqID   atomic.Uint64

	// pending maps req_id to the channel waiting for that response
	pending   map[uint64]chan rawMessage
	pendingMu sync.Mutex

	done chan struct{}
	wg   sync.WaitGroup
}

// Dial connects to a Deriv WebSocket endpoint.
func Dial(ctx context.Context, endpoint string, config *Config) (*Client, error) {
	cfg := DefaultConfig()
	if config != nil {
		cfg = *config
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	c := &Client{
		config:  cfg,
		conn:    conn,
		pending: make(map[uint64]chan rawMessage),
		done:    make(chan struct{}),
	}

	c.wg.Add(1)
	go c.readLoop()

	c.wg.Add(1)
	go c.pingLoop()

	return c, nil
}

// Authorize authenticates the session with an API token.
func (c *Client) Authorize(ctx context.Context, token string) (*Account, error) {
	raw, err := c.call(ctx, map[string]any{"authorize": token})
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}

	var resp authorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("authorize: decode response: %w", err)
	}

	return &Account{
		LoginID:   resp.Authorize.LoginID,
		IsVirtual: resp.Authorize.IsVirtual == 1,
		Currency:  resp.Authorize.Currency,
	}, nil
}

// Balance fetches the current account balance.
func (c *Client) Balance(ctx context.Context) (*Balance, error) {
	raw, err := c.call(ctx, map[string]any{"balance": 1})
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}

	var resp balanceResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("balance: decode response: %w", err)
	}

	return &Balance{
		Amount:   resp.Balance.Balance,
		Currency: resp.Balance.Currency,
	}, nil
}

// Portfolio fetches open contracts, optionally filtered by contract type.
func (c *Client) Portfolio(ctx context.Context, contractTypes []string) ([]Contract, error) {
	req := map[string]any{"portfolio": 1}
	if len(contractTypes) > 0 {
		req["contract_type"] = contractTypes
	}

	raw, err := c.call(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("portfolio: %w", err)
	}

	var resp portfolioResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("portfolio: decode response: %w", err)
	}

	return resp.Portfolio.Contracts, nil
}

// Close closes the connection. Safe to call multiple times and after failures.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)
	err := c.conn.Close()
	c.wg.Wait()

	// Fail anything still waiting for a response.
	c.pendingMu.Lock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.pendingMu.Unlock()

	return err
}

// call sends one request and waits for its correlated response.
func (c *Client) call(ctx context.Context, req map[string]any) (rawMessage, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("client closed")
	}

	id := c.reqID.Add(1)
	req["req_id"] = id

	respCh := make(chan rawMessage, 1)
	c.pendingMu.Lock()
	c.pending[id] = respCh
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.writeJSON(req); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	select {
	case raw, ok := <-respCh:
		if !ok {
			return nil, fmt.Errorf("connection closed")
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		if env.Error != nil {
			return nil, fmt.Errorf("api error %s: %s", env.Error.Code, env.Error.Message)
		}
		return raw, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("client closed")
	}
}

// writeJSON serializes writes; gorilla connections allow one writer at a time.
func (c *Client) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// readLoop routes incoming messages to their pending callers.
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			// Connection gone; fail all pending calls.
			c.pendingMu.Lock()
			for id, ch := range c.pending {
				close(ch)
				delete(c.pending, id)
			}
			c.pendingMu.Unlock()
			return
		}

		var env envelope
		if err := json.Unmarshal(msg, &env); err != nil {
			continue // not a response we understand
		}
		if env.ReqID == 0 {
			continue // unsolicited message (e.g. ping response)
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[env.ReqID]
		if ok {
			delete(c.pending, env.ReqID)
		}
		c.pendingMu.Unlock()

		if ok {
			ch <- rawMessage(msg)
		}
	}
}

// pingLoop keeps the session alive with the API-level ping request, which
// survives proxies that drop WebSocket control frames. The pong carries no
// req_id, so readLoop discards it with the other unsolicited messages.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = c.writeJSON(map[string]any{"ping": 1})
		case <-c.done:
			return
		}
	}
}
