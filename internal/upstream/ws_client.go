package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWSEndpoint is the venue's live activity feed.
const DefaultWSEndpoint = "wss://ws-live-data.polymarket.com"

const (
	wsHandshakeTimeout = 10 * time.Second
	wsWriteTimeout     = 10 * time.Second
	wsReadTimeout      = 60 * time.Second
	wsPingInterval     = 30 * time.Second
	wsReconnectDelay   = 5 * time.Second

	// Channel buffer absorbs bursts; the consumer select loop drains quickly.
	wsEventBuffer = 10000
)

// WSClient maintains one subscription to the activity feed with automatic
// reconnection. On reconnect it resubscribes to the same types and invokes
// the OnReconnect hook so consumers can refresh their caches.
type WSClient struct {
	endpoint string
	types    []string
	logger   *log.Logger

	// OnReconnect, when set, runs after each successful resubscription
	// (not after the initial connect).
	OnReconnect func()

	events chan ActivityEvent

	conn   *websocket.Conn
	connMu sync.Mutex
}

// NewWSClient creates a client subscribed to the given activity types
// (EventTypeTrades, EventTypeOrdersMatched).
func NewWSClient(endpoint string, types []string, logger *log.Logger) *WSClient {
	if endpoint == "" {
		endpoint = DefaultWSEndpoint
	}
	if logger == nil {
		logger = log.Default()
	}
	return &WSClient{
		endpoint: endpoint,
		types:    types,
		logger:   logger,
		events:   make(chan ActivityEvent, wsEventBuffer),
	}
}

// Events returns the inbound event channel. Closed when Run returns.
func (c *WSClient) Events() <-chan ActivityEvent { return c.events }

// Run connects, subscribes, and pumps events until ctx is cancelled.
// Connection loss triggers a reconnect after a fixed short delay.
func (c *WSClient) Run(ctx context.Context) error {
	defer close(c.events)

	first := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.connect(ctx); err != nil {
			c.logger.Printf("activity feed connect failed: %v (retrying in %v)", err, wsReconnectDelay)
			if err := sleepCtx(ctx, wsReconnectDelay); err != nil {
				return err
			}
			continue
		}

		if !first && c.OnReconnect != nil {
			c.OnReconnect()
		}
		first = false

		err := c.readLoop(ctx)
		c.closeConn()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Printf("activity feed closed: %v (reconnecting in %v)", err, wsReconnectDelay)
		if err := sleepCtx(ctx, wsReconnectDelay); err != nil {
			return err
		}
	}
}

// wsSubscribe is the outbound subscription frame.
type wsSubscribe struct {
	Action        string           `json:"action"`
	Subscriptions []wsSubscription `json:"subscriptions"`
}

type wsSubscription struct {
	Topic string `json:"topic"`
	Type  string `json:"type"`
}

// wsMessage is the inbound frame envelope.
type wsMessage struct {
	Topic   string          `json:"topic"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (c *WSClient) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}

	headers := http.Header{}
	headers.Set("User-Agent", userAgent)

	conn, resp, err := dialer.DialContext(ctx, c.endpoint, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("websocket dial: %w (status %d)", err, resp.StatusCode)
		}
		return fmt.Errorf("websocket dial: %w", err)
	}

	subs := make([]wsSubscription, 0, len(c.types))
	for _, t := range c.types {
		subs = append(subs, wsSubscription{Topic: TopicActivity, Type: t})
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(wsSubscribe{Action: "subscribe", Subscriptions: subs}); err != nil {
		conn.Close()
		return fmt.Errorf("write subscribe: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	return nil
}

func (c *WSClient) readLoop(ctx context.Context) error {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()

	conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	// Ping keepalive; exits with the read loop.
	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.connMu.Lock()
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				c.connMu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Printf("activity feed: malformed frame dropped: %v", err)
			continue
		}
		if msg.Topic != TopicActivity || msg.Payload == nil {
			continue
		}

		select {
		case c.events <- ActivityEvent{Type: msg.Type, Payload: msg.Payload}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *WSClient) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
