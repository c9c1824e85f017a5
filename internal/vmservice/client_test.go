package vmservice

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string
	Params map[string]any
}

// rpcHandler produces the result or error object for one request. Returning
// both nil simulates a server that never answers.
type rpcHandler func(method string, params map[string]any) (any, map[string]any)

// fakeVM is an in-process WebSocket server speaking just enough of the VM
// service JSON-RPC dialect for the client to talk to.
type fakeVM struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu    sync.Mutex
	calls []recordedCall
	conns []*websocket.Conn
}

func newFakeVM(t *testing.T, handle rpcHandler) *fakeVM {
	t.Helper()
	f := &fakeVM{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		f.mu.Lock()
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		for {
			var req struct {
				ID     string         `json:"id"`
				Method string         `json:"method"`
				Params map[string]any `json:"params"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			f.mu.Lock()
			f.calls = append(f.calls, recordedCall{Method: req.Method, Params: req.Params})
			f.mu.Unlock()

			result, rpcErr := handle(req.Method, req.Params)
			if result == nil && rpcErr == nil {
				continue
			}
			resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
			if rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeVM) url() string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http")
}

func (f *fakeVM) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

// dropConns tears down the upgraded WebSocket connections directly. The
// httptest server's CloseClientConnections does not touch hijacked
// connections, so it cannot simulate a dropped VM service.
func (f *fakeVM) dropConns() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, conn := range f.conns {
		_ = conn.Close()
	}
	f.conns = nil
}

func (f *fakeVM) callsTo(method string) []recordedCall {
	var out []recordedCall
	for _, c := range f.recorded() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// singleIsolate answers getVM with one main isolate and delegates everything
// else.
func singleIsolate(next rpcHandler) rpcHandler {
	return func(method string, params map[string]any) (any, map[string]any) {
		if method == "getVM" {
			return map[string]any{
				"type": "VM",
				"isolates": []map[string]any{
					{"id": "isolates/1", "name": "main"},
				},
			}, nil
		}
		return next(method, params)
	}
}

func dialFake(t *testing.T, f *fakeVM) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, f.url())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestDial_Refused(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/ws")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDialFailed)
}

func TestMainIsolateID(t *testing.T) {
	t.Run("prefers the isolate named main", func(t *testing.T) {
		f := newFakeVM(t, func(method string, _ map[string]any) (any, map[string]any) {
			return map[string]any{
				"isolates": []map[string]any{
					{"id": "isolates/7", "name": "worker"},
					{"id": "isolates/9", "name": "main"},
				},
			}, nil
		})
		client := dialFake(t, f)

		id, err := client.MainIsolateID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "isolates/9", id)
	})

	t.Run("falls back to the first isolate", func(t *testing.T) {
		f := newFakeVM(t, func(method string, _ map[string]any) (any, map[string]any) {
			return map[string]any{
				"isolates": []map[string]any{
					{"id": "isolates/3", "name": "worker"},
				},
			}, nil
		})
		client := dialFake(t, f)

		id, err := client.MainIsolateID(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "isolates/3", id)
	})

	t.Run("resolved once per connection", func(t *testing.T) {
		f := newFakeVM(t, singleIsolate(func(string, map[string]any) (any, map[string]any) {
			return map[string]any{}, nil
		}))
		client := dialFake(t, f)

		_, err := client.MainIsolateID(context.Background())
		require.NoError(t, err)
		_, err = client.MainIsolateID(context.Background())
		require.NoError(t, err)
		assert.Len(t, f.callsTo("getVM"), 1)
	})

	t.Run("no isolates", func(t *testing.T) {
		f := newFakeVM(t, func(string, map[string]any) (any, map[string]any) {
			return map[string]any{"isolates": []map[string]any{}}, nil
		})
		client := dialFake(t, f)

		_, err := client.MainIsolateID(context.Background())
		assert.ErrorIs(t, err, ErrNoIsolates)
	})
}

func TestCall_RPCError(t *testing.T) {
	f := newFakeVM(t, func(string, map[string]any) (any, map[string]any) {
		return nil, map[string]any{"code": -32601, "message": "Method not found"}
	})
	client := dialFake(t, f)

	_, err := client.Call(context.Background(), "bogusMethod", nil)
	require.Error(t, err)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -32601, rpcErr.Code)
	assert.Equal(t, "Method not found", rpcErr.Message)
}

func TestCall_ContextExpiry(t *testing.T) {
	// Server that swallows requests without answering.
	f := newFakeVM(t, func(string, map[string]any) (any, map[string]any) {
		return nil, nil
	})
	client := dialFake(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := client.Call(ctx, "getVM", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCall_AfterClose(t *testing.T) {
	f := newFakeVM(t, singleIsolate(func(string, map[string]any) (any, map[string]any) {
		return map[string]any{}, nil
	}))
	client := dialFake(t, f)

	require.NoError(t, client.Close())
	_, err := client.Call(context.Background(), "getVM", nil)
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestCall_ConnectionDropped(t *testing.T) {
	// Server that drops the connection instead of answering.
	f := newFakeVM(t, func(string, map[string]any) (any, map[string]any) {
		return nil, nil
	})
	client := dialFake(t, f)

	done := make(chan error, 1)
	go func() {
		_, err := client.Call(context.Background(), "getVM", nil)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	f.dropConns()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrConnectionClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("call did not fail after the connection dropped")
	}
}

func TestToggleDebugPaint(t *testing.T) {
	f := newFakeVM(t, singleIsolate(func(method string, params map[string]any) (any, map[string]any) {
		return map[string]any{"enabled": params["enabled"]}, nil
	}))
	client := dialFake(t, f)

	require.NoError(t, client.ToggleDebugPaint(context.Background(), true))
	require.NoError(t, client.ToggleDebugPaint(context.Background(), false))

	calls := f.callsTo("ext.flutter.debugPaint")
	require.Len(t, calls, 2)
	assert.Equal(t, "true", calls[0].Params["enabled"])
	assert.Equal(t, "false", calls[1].Params["enabled"])
	assert.Equal(t, "isolates/1", calls[0].Params["isolateId"])
}

func TestClose_Idempotent(t *testing.T) {
	f := newFakeVM(t, singleIsolate(func(string, map[string]any) (any, map[string]any) {
		return map[string]any{}, nil
	}))
	client := dialFake(t, f)

	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}

func TestURI(t *testing.T) {
	f := newFakeVM(t, singleIsolate(func(string, map[string]any) (any, map[string]any) {
		return map[string]any{}, nil
	}))
	client := dialFake(t, f)
	assert.Equal(t, f.url(), client.URI())
}

func TestUnknownFramesIgnored(t *testing.T) {
	// An id-less event frame pushed before the reply must not confuse the
	// pending-call dispatch.
	var once sync.Once
	f2 := &fakeVM{}
	f2.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := f2.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var req struct {
				ID     string `json:"id"`
				Method string `json:"method"`
			}
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			once.Do(func() {
				_ = conn.WriteJSON(map[string]any{
					"jsonrpc": "2.0",
					"method":  "streamNotify",
					"params":  map[string]any{"streamId": "Isolate"},
				})
			})
			_ = conn.WriteJSON(map[string]any{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  map[string]any{"type": "Success"},
			})
		}
	}))
	t.Cleanup(f2.srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, "ws"+strings.TrimPrefix(f2.srv.URL, "http"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	raw, err := client.Call(ctx, "streamListen", map[string]any{"streamId": "Isolate"})
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Success")
}

func TestRPCError_Error(t *testing.T) {
	err := &RPCError{Code: 100, Message: "Feature is disabled"}
	assert.Equal(t, "vm service error 100: Feature is disabled", err.Error())
	assert.False(t, errors.Is(err, ErrDriverFailure))
}
