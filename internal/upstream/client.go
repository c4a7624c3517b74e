// Package upstream adapts the venue's public HTTP and WebSocket surfaces:
// trade pages, open-position snapshots, the authoritative market-status
// lookup, and the live activity feed.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"polycopy/internal/domain"
	"polycopy/internal/ratelimit"
	"polycopy/internal/retry"
)

// Default endpoints and request parameters.
const (
	DefaultDataBase  = "https://data-api.polymarket.com"
	DefaultGammaBase = "https://gamma-api.polymarket.com"

	TradesPageLimit    = 200
	PositionsPageLimit = 500

	dataTimeout  = 15 * time.Second
	probeTimeout = 10 * time.Second

	userAgent = "polycopy-pipeline/1.0"
)

// Client is the upstream HTTP adapter. Every outbound request first acquires
// a token from the worker-class limiter and carries an explicit deadline.
type Client struct {
	dataBase  string
	gammaBase string
	http      *http.Client
	limiter   *ratelimit.Limiter
	apiKey    string
	now       func() time.Time
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithDataBase overrides the data API base URL.
func WithDataBase(base string) ClientOption {
	return func(c *Client) {
		if base != "" {
			c.dataBase = base
		}
	}
}

// WithGammaBase overrides the market-lookup base URL.
func WithGammaBase(base string) ClientOption {
	return func(c *Client) {
		if base != "" {
			c.gammaBase = base
		}
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithAPIKey sets the optional key for the market-status lookup.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// NewClient creates an upstream client sharing the given rate limiter.
func NewClient(limiter *ratelimit.Limiter, opts ...ClientOption) *Client {
	c := &Client{
		dataBase:  DefaultDataBase,
		gammaBase: DefaultGammaBase,
		http:      &http.Client{},
		limiter:   limiter,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// getJSON acquires a token, performs a GET with the given deadline, and
// decodes the body. Non-2xx statuses surface as *retry.HTTPError; deadline
// expiry surfaces as a synthetic 408.
func (c *Client) getJSON(ctx context.Context, rawURL string, timeout time.Duration, out any) error {
	if err := c.limiter.Acquire(ctx); err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if isTimeoutErr(err) && ctx.Err() == nil {
			return retry.Timeout(rawURL)
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		if isTimeoutErr(err) && ctx.Err() == nil {
			return retry.Timeout(rawURL)
		}
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &retry.HTTPError{Status: resp.StatusCode, URL: rawURL, Body: truncate(string(body), 256)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

func isTimeoutErr(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// TradesPage fetches one page of a wallet's trades, newest-first by the
// upstream clock. Transient statuses are retried internally.
func (c *Client) TradesPage(ctx context.Context, wallet string, limit, offset int) ([]*domain.Trade, error) {
	if limit <= 0 || limit > TradesPageLimit {
		limit = TradesPageLimit
	}
	u := fmt.Sprintf("%s/trades?user=%s&limit=%d&offset=%d", c.dataBase, url.QueryEscape(wallet), limit, offset)

	var raws []json.RawMessage
	err := retry.Do(ctx, func() error {
		raws = nil
		return c.getJSON(ctx, u, dataTimeout, &raws)
	})
	if err != nil {
		return nil, err
	}

	trades := make([]*domain.Trade, 0, len(raws))
	for _, raw := range raws {
		t, err := ParseTrade(raw)
		if err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, nil
}

// Positions fetches the wallet's full open-position snapshot, paginating with
// increasing offsets until a short page. Status 400/404 means "no positions".
func (c *Client) Positions(ctx context.Context, wallet string) ([]*domain.Position, error) {
	seenAt := c.now().UnixMilli()
	var all []*domain.Position

	for offset := 0; ; offset += PositionsPageLimit {
		u := fmt.Sprintf("%s/positions?user=%s&limit=%d&offset=%d",
			c.dataBase, url.QueryEscape(wallet), PositionsPageLimit, offset)

		var raws []json.RawMessage
		err := retry.Do(ctx, func() error {
			raws = nil
			return c.getJSON(ctx, u, dataTimeout, &raws)
		})
		if err != nil {
			var he *retry.HTTPError
			if errors.As(err, &he) && (he.Status == http.StatusNotFound || he.Status == http.StatusBadRequest) {
				return all, nil
			}
			return nil, err
		}

		for _, raw := range raws {
			p, err := parsePosition(wallet, raw, seenAt)
			if err != nil {
				return nil, err
			}
			all = append(all, p)
		}

		if len(raws) < PositionsPageLimit {
			return all, nil
		}
	}
}

// MarketStatus reports whether the market behind conditionID is closed,
// based on the market's closed/resolved flags. Lookups that cannot confirm
// either way return MarketStatusUnknown with a nil error; callers treat
// unknown as "not closed".
func (c *Client) MarketStatus(ctx context.Context, conditionID string) (domain.MarketStatus, error) {
	u := fmt.Sprintf("%s/markets/%s", c.gammaBase, url.PathEscape(conditionID))

	var m apiMarket
	err := retry.Do(ctx, func() error {
		m = apiMarket{}
		return c.getJSON(ctx, u, probeTimeout, &m)
	})
	if err != nil {
		var he *retry.HTTPError
		if errors.As(err, &he) && he.Status == http.StatusNotFound {
			return domain.MarketStatusUnknown, nil
		}
		return domain.MarketStatusUnknown, err
	}

	if m.Closed == nil && m.Resolved == nil {
		return domain.MarketStatusUnknown, nil
	}
	if (m.Closed != nil && *m.Closed) || (m.Resolved != nil && *m.Resolved) {
		return domain.MarketStatusClosed, nil
	}
	return domain.MarketStatusOpen, nil
}
