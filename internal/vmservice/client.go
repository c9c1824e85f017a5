// Package vmservice is a thin JSON-RPC 2.0 client for the Dart VM service
// protocol as exposed by a running Flutter application. It covers only what
// the MCP tools need: isolate discovery, the widget inspector summary tree,
// Flutter driver commands, and the debug paint toggle. There is no retry,
// reconnect, or caching layer; a Client is one WebSocket connection and every
// method is a single request/response round trip.
package vmservice

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
	"github.com/gorilla/websocket"
)

// rpcRequest is a JSON-RPC 2.0 request frame. The VM service echoes the id
// back verbatim; this client always sends string ids.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

// RPCError is a JSON-RPC error object returned by the VM service, surfaced
// verbatim to callers.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("vm service error %d: %s", e.Code, e.Message)
}

// Client is a single connection to a Flutter application's VM service.
type Client struct {
	uri  string
	conn *websocket.Conn
	log  *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Uint64

	pendingMu sync.Mutex
	pending   map[string]chan *rpcResponse

	closeOnce sync.Once
	closed    chan struct{}

	isolateMu sync.Mutex
	isolateID string
}

// Option configures a Client during Dial.
type Option func(*Client)

// WithLogger sets the logger used by the client. A session id is attached to
// whatever logger is in effect once the connection is established.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// Dial opens a WebSocket connection to the VM service at uri, for example
// ws://127.0.0.1:50505/ws. The returned client is ready for calls; the caller
// owns it and must Close it.
func Dial(ctx context.Context, uri string, opts ...Option) (*Client, error) {
	c := &Client{
		uri:     uri,
		log:     slog.Default().With("component", "vmservice"),
		pending: make(map[string]chan *rpcResponse),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDialFailed, uri, err)
	}
	c.conn = conn

	session, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does, which is fatal
		// enough that falling back to an empty id is acceptable for a
		// log correlation field.
		c.log.Warn("could not generate session id", "error", err)
	}
	c.log = c.log.With("session", session.String(), "uri", uri)
	c.log.Debug("connected to VM service")

	go c.readLoop()
	return c, nil
}

// URI returns the address this client was dialed with.
func (c *Client) URI() string {
	return c.uri
}

// Close tears down the connection. Pending and subsequent calls fail with
// ErrConnectionClosed. Close is idempotent.
func (c *Client) Close() error {
	c.shutdown()
	return nil
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
		c.log.Debug("VM service connection closed")
	})
}

// readLoop is the single reader for the connection. Responses are matched to
// pending calls by id; frames without an id are stream events, which this
// client never subscribes to, so they are dropped.
func (c *Client) readLoop() {
	defer c.shutdown()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			c.log.Warn("malformed VM service frame", "error", err)
			continue
		}
		if resp.ID == "" {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

// Call performs one VM service RPC and returns the raw result. It never
// blocks past ctx: a dropped connection fails the call with
// ErrConnectionClosed instead of hanging.
func (c *Client) Call(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	select {
	case <-c.closed:
		return nil, ErrConnectionClosed
	default:
	}

	if params == nil {
		params = map[string]any{}
	}
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	ch := make(chan *rpcResponse, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	c.writeMu.Lock()
	err := c.conn.WriteJSON(req)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionClosed, err)
	}
	c.log.Debug("vm service call", "method", method, "id", id)

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, ErrConnectionClosed
	}
}

// MainIsolateID resolves the isolate that UI extension calls should target,
// preferring the isolate named "main". The id is resolved once per connection.
func (c *Client) MainIsolateID(ctx context.Context) (string, error) {
	c.isolateMu.Lock()
	defer c.isolateMu.Unlock()
	if c.isolateID != "" {
		return c.isolateID, nil
	}

	raw, err := c.Call(ctx, "getVM", nil)
	if err != nil {
		return "", err
	}
	var vm struct {
		Isolates []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"isolates"`
	}
	if err := json.Unmarshal(raw, &vm); err != nil {
		return "", fmt.Errorf("decoding getVM response: %w", err)
	}
	if len(vm.Isolates) == 0 {
		return "", ErrNoIsolates
	}

	picked := vm.Isolates[0].ID
	for _, iso := range vm.Isolates {
		if iso.Name == "main" {
			picked = iso.ID
			break
		}
	}
	c.isolateID = picked
	return picked, nil
}

// extension invokes a service extension method on the main isolate, merging
// the isolateId into params.
func (c *Client) extension(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	iso, err := c.MainIsolateID(ctx)
	if err != nil {
		return nil, err
	}
	merged := map[string]any{"isolateId": iso}
	for k, v := range params {
		merged[k] = v
	}
	return c.Call(ctx, method, merged)
}

// ToggleDebugPaint flips the ext.flutter.debugPaint service extension.
// Extension parameter values are strings on the wire.
func (c *Client) ToggleDebugPaint(ctx context.Context, enable bool) error {
	_, err := c.extension(ctx, "ext.flutter.debugPaint", map[string]any{
		"enabled": strconv.FormatBool(enable),
	})
	return err
}
