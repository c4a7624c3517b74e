// Package control talks to the copy-trading control plane: the internal
// service that owns follow targets, trade intake, and order execution.
package control

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"polycopy/internal/retry"
)

const (
	defaultTimeout = 15 * time.Second

	targetsPath   = "/api/copy/target-traders"
	followersPath = "/api/copy/followers"
	pendingPath   = "/api/copy/pending-orders"
	syncPath      = "/api/copy/sync-trade"
	executePath   = "/api/copy/execute"
	fillsPath     = "/api/copy/ws-fill"
)

// Client is an authenticated HTTP client for the control plane.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient creates a control-plane client with bearer-token auth.
func NewClient(baseURL, secret string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FillResult reports the outcome of applying a fill to a tracked order.
type FillResult struct {
	Updated   bool    `json:"updated"`
	NewStatus string  `json:"new_status"`
	FillRate  float64 `json:"fill_rate"`
}

type targetsResponse struct {
	Traders               []string `json:"traders"`
	HasLeaderboardWallets bool     `json:"has_leaderboard_wallets"`
}

type followersResponse struct {
	Wallets []string `json:"wallets"`
}

type pendingOrdersResponse struct {
	OrderIDs []string `json:"order_ids"`
}

type syncRequest struct {
	Trade json.RawMessage `json:"trade"`
}

type syncResponse struct {
	Inserted int    `json:"inserted"`
	Message  string `json:"message,omitempty"`
}

type fillRequest struct {
	OrderID string `json:"order_id"`
}

// TargetTraders fetches the wallets whose buys should be mirrored. The
// boolean mirrors the upstream has_leaderboard_wallets flag.
func (c *Client) TargetTraders(ctx context.Context) ([]string, bool, error) {
	var resp targetsResponse
	if err := c.do(ctx, http.MethodGet, targetsPath, nil, &resp); err != nil {
		return nil, false, err
	}
	return resp.Traders, resp.HasLeaderboardWallets, nil
}

// Followers fetches the wallets users actively follow.
func (c *Client) Followers(ctx context.Context) ([]string, error) {
	var resp followersResponse
	if err := c.do(ctx, http.MethodGet, followersPath, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Wallets, nil
}

// PendingOrders fetches the ids of outbound orders awaiting fills.
func (c *Client) PendingOrders(ctx context.Context) ([]string, error) {
	var resp pendingOrdersResponse
	if err := c.do(ctx, http.MethodGet, pendingPath, nil, &resp); err != nil {
		return nil, err
	}
	return resp.OrderIDs, nil
}

// SyncTrade submits an observed trade for intake. Returns the number of rows
// the control plane recorded (0 means it was already known).
func (c *Client) SyncTrade(ctx context.Context, raw json.RawMessage) (int, error) {
	var resp syncResponse
	if err := c.do(ctx, http.MethodPost, syncPath, syncRequest{Trade: raw}, &resp); err != nil {
		return 0, err
	}
	return resp.Inserted, nil
}

// Execute triggers order placement for any pending mirrored trades.
func (c *Client) Execute(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, executePath, nil, nil)
}

// WSFill reports a matched order so the control plane can update fill state.
func (c *Client) WSFill(ctx context.Context, orderID string) (*FillResult, error) {
	var resp FillResult
	if err := c.do(ctx, http.MethodPost, fillsPath, fillRequest{OrderID: orderID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", path, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &retry.HTTPError{Status: resp.StatusCode, URL: c.baseURL + path, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", path, err)
		}
	}
	return nil
}
