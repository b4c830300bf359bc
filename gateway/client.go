// Package gateway implements the MCP gateway companion process of
// SPEC_FULL.md §4.5: a reconnecting WebSocket client to a plexus, a schema
// cache refreshed on every (re)connect, and an MCP HTTP/SSE surface that
// proxies tool calls through the client instead of an in-process Plexus.
// Grounded on original_source/src/bin/mcp_gateway.rs's PlexusClient.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/plexuscore/plexus/streamitem"
	"github.com/plexuscore/plexus/telemetry"
	"github.com/plexuscore/plexus/transport/jsonrpc"
)

// pendingCall collects the notifications and terminal response of the one
// request currently in flight on the connection.
type pendingCall struct {
	id     string
	items  chan streamitem.StreamItem
	result chan jsonrpc.Response
}

// Client is a reconnecting WebSocket JSON-RPC client to a plexus's wsrpc
// transport. Like the wsrpc server it talks to, a stream_item notification
// frame carries no request id (spec.md §6's Notification has no id field),
// so Client serializes calls: only one request may be in flight on the
// connection at a time, and every notification read before the matching
// response is attributed to it unambiguously.
type Client struct {
	URL       string
	Reconnect ReconnectConfig
	Logger    telemetry.Logger

	callMu sync.Mutex

	mu          sync.RWMutex
	conn        *websocket.Conn
	active      *pendingCall
	nextID      atomic.Uint64
	connectedAt time.Time
}

// NewClient constructs a Client. logger defaults to a no-op if nil; a zero
// Reconnect is replaced with DefaultReconnect().
func NewClient(url string, reconnect ReconnectConfig, logger telemetry.Logger) *Client {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if reconnect.InitialBackoff == 0 {
		reconnect = DefaultReconnect()
	}
	return &Client{URL: url, Reconnect: reconnect, Logger: logger}
}

// ConnectedAt returns the time of the last successful Connect, the zero time
// if never connected.
func (c *Client) ConnectedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectedAt
}

// Connected reports whether the client currently holds a live connection.
func (c *Client) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil
}

// Connect dials the upstream plexus once, replacing any existing connection
// and starting the read-pump goroutine that feeds the in-flight call, if
// any.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return fmt.Errorf("gateway: dial %s: %w", c.URL, err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.conn = conn
	c.connectedAt = time.Now()
	c.mu.Unlock()

	go c.readPump(conn)
	return nil
}

// ensureConnected dials with exponential backoff until ctx is done or a
// connection succeeds, per SPEC_FULL.md §4.5's reconnecting-client mandate.
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.Connected() {
		return nil
	}
	attempt := 0
	for {
		attempt++
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		c.Logger.Warn(ctx, "gateway: connect attempt failed", "component", "gateway", "attempt", attempt, "err", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.Reconnect.backoff(attempt)):
		}
	}
}

func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			c.failActive(err)
			return
		}
		c.dispatch(data)
	}
}

// wireFrame is the superset of a Notification and a Response frame: a
// Response never carries "method"/non-null "params" in the notification
// sense, a Notification never carries "result"/"error".
type wireFrame struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *jsonrpc.Error  `json:"error"`
}

func (c *Client) dispatch(data []byte) {
	var frame wireFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.Logger.Warn(context.Background(), "gateway: malformed frame from plexus", "component", "gateway", "err", err)
		return
	}

	c.mu.RLock()
	active := c.active
	c.mu.RUnlock()
	if active == nil {
		return
	}

	if frame.Method == "stream_item" {
		var item streamitem.StreamItem
		if err := json.Unmarshal(frame.Params, &item); err != nil {
			return
		}
		active.items <- item
		return
	}

	active.result <- jsonrpc.Response{ID: frame.ID, Result: frame.Result, Error: frame.Error}
}

func (c *Client) failActive(err error) {
	c.mu.Lock()
	active := c.active
	c.active = nil
	c.mu.Unlock()
	if active == nil {
		return
	}
	active.result <- jsonrpc.NewError(json.RawMessage(`"`+active.id+`"`), jsonrpc.CodeInternalError,
		fmt.Sprintf("gateway: connection lost: %v", err))
}

// Call sends a JSON-RPC request for "namespace.method" (or a reserved
// plexus_* method) and returns every StreamItem the subscription emits,
// reconnecting first if necessary. Only one Call runs at a time per Client;
// concurrent callers queue on callMu, matching the single logical request
// the underlying wire protocol can track without id-tagged notifications.
func (c *Client) Call(ctx context.Context, method string, params json.RawMessage) ([]streamitem.StreamItem, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%d", c.nextID.Add(1))
	idJSON, _ := json.Marshal(id)
	call := &pendingCall{id: id, items: make(chan streamitem.StreamItem, 16), result: make(chan jsonrpc.Response, 1)}

	c.mu.Lock()
	c.active = call
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return nil, fmt.Errorf("gateway: not connected")
	}

	req := jsonrpc.Request{JSONRPC: jsonrpc.Version, ID: idJSON, Method: method, Params: params}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("gateway: marshal request: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, reqBytes); err != nil {
		return nil, fmt.Errorf("gateway: write request: %w", err)
	}

	defer func() {
		c.mu.Lock()
		if c.active == call {
			c.active = nil
		}
		c.mu.Unlock()
	}()

	var items []streamitem.StreamItem
	for {
		select {
		case <-ctx.Done():
			return items, ctx.Err()
		case item := <-call.items:
			items = append(items, item)
		case resp := <-call.result:
			if resp.Error != nil {
				return items, fmt.Errorf("gateway: %s: %s", method, resp.Error.Message)
			}
			return items, nil
		}
	}
}

// Close tears down the underlying connection, if any.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
