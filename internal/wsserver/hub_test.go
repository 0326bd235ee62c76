package wsserver

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"keytype/internal/ipc"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testListenAddr = "127.0.0.1:0"

func echoExecutor() ipc.Executor {
	return ipc.ExecutorFunc(func(req ipc.Request) ipc.Response {
		return ipc.Response{ID: req.ID, OK: true, Result: req.Command + ":" + req.Text}
	})
}

func startHub(t *testing.T, exec ipc.Executor) *Hub {
	t.Helper()
	hub := NewHub(HubOptions{Addr: testListenAddr, Executor: exec})
	require.NoError(t, hub.Start(context.Background()))
	t.Cleanup(func() { _ = hub.Stop() })
	return hub
}

func dialHub(t *testing.T, hub *Hub, header http.Header) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(hub.URL(), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, raw string) ipc.Response {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)
	resp, err := ipc.DecodeResponse(msg)
	require.NoError(t, err)
	return resp
}

func TestStartValidation(t *testing.T) {
	t.Run("requires executor", func(t *testing.T) {
		hub := NewHub(HubOptions{Addr: testListenAddr})
		assert.EqualError(t, hub.Start(context.Background()), "wsserver: executor is required")
	})

	t.Run("rejects non-loopback", func(t *testing.T) {
		hub := NewHub(HubOptions{Addr: "0.0.0.0:0", Executor: echoExecutor()})
		assert.ErrorContains(t, hub.Start(context.Background()), "not a loopback address")
	})

	t.Run("double start", func(t *testing.T) {
		hub := startHub(t, echoExecutor())
		assert.EqualError(t, hub.Start(context.Background()), "wsserver: already started")
	})
}

func TestNewHubDefaultAddr(t *testing.T) {
	hub := NewHub(HubOptions{})
	assert.Equal(t, "127.0.0.1:0", hub.opts.Addr)
	assert.Empty(t, hub.URL())
}

func TestRequestResponse(t *testing.T) {
	hub := startHub(t, echoExecutor())
	conn := dialHub(t, hub, nil)

	resp := roundTrip(t, conn, `{"id":"a1","command":"text","text":"hallo"}`)
	assert.Equal(t, ipc.Response{ID: "a1", OK: true, Result: "text:hallo"}, resp)

	resp = roundTrip(t, conn, `{"command":"ping"}`)
	assert.True(t, resp.OK)
	assert.NotEmpty(t, resp.ID, "server assigns an id")
}

func TestInvalidRequestKeepsConnection(t *testing.T) {
	hub := startHub(t, echoExecutor())
	conn := dialHub(t, hub, nil)

	resp := roundTrip(t, conn, `not json`)
	assert.False(t, resp.OK)
	assert.Equal(t, ipc.KindBadRequest, resp.Kind)

	resp = roundTrip(t, conn, `{"id":"2","command":"ping"}`)
	assert.True(t, resp.OK)
}

func TestBinaryFramesIgnored(t *testing.T) {
	var calls atomic.Int32
	hub := startHub(t, ipc.ExecutorFunc(func(req ipc.Request) ipc.Response {
		calls.Add(1)
		return ipc.Response{ID: req.ID, OK: true}
	}))
	conn := dialHub(t, hub, nil)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte(`{"command":"ping"}`)))
	resp := roundTrip(t, conn, `{"id":"t","command":"ping"}`)
	assert.Equal(t, "t", resp.ID)
	assert.Equal(t, int32(1), calls.Load())
}

func TestConnectionReplacement(t *testing.T) {
	hub := startHub(t, echoExecutor())
	first := dialHub(t, hub, nil)
	require.Eventually(t, hub.HasActiveConnection, 2*time.Second, 10*time.Millisecond)

	second := dialHub(t, hub, nil)
	resp := roundTrip(t, second, `{"id":"s","command":"ping"}`)
	assert.True(t, resp.OK)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "replaced connection should be closed")
}

func TestDisconnectClearsConnection(t *testing.T) {
	hub := startHub(t, echoExecutor())
	conn := dialHub(t, hub, nil)
	require.Eventually(t, hub.HasActiveConnection, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return !hub.HasActiveConnection() }, 2*time.Second, 10*time.Millisecond)
}

func TestStopIdempotent(t *testing.T) {
	hub := startHub(t, echoExecutor())
	conn := dialHub(t, hub, nil)
	require.Eventually(t, hub.HasActiveConnection, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Stop())
	require.NoError(t, hub.Stop())
	assert.False(t, hub.HasActiveConnection())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestOriginCheck(t *testing.T) {
	hub := startHub(t, echoExecutor())

	tests := []struct {
		origin string
		allow  bool
	}{
		{origin: "", allow: true},
		{origin: "http://localhost:3000", allow: true},
		{origin: "http://127.0.0.1", allow: true},
		{origin: "http://[::1]:8080", allow: true},
		{origin: "https://example.com", allow: false},
		{origin: "null", allow: false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			conn, resp, err := websocket.DefaultDialer.Dial(hub.URL(), header)
			if tt.allow {
				require.NoError(t, err)
				_ = conn.Close()
				return
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestConnectionSurvivesJobLongerThanReadTimeout(t *testing.T) {
	const readTimeout = 100 * time.Millisecond
	exec := ipc.ExecutorFunc(func(req ipc.Request) ipc.Response {
		if req.Command == ipc.CommandText {
			time.Sleep(3 * readTimeout)
		}
		return ipc.Response{ID: req.ID, OK: true}
	})
	hub := NewHub(HubOptions{Addr: testListenAddr, Executor: exec})
	hub.readTimeout = readTimeout
	require.NoError(t, hub.Start(context.Background()))
	t.Cleanup(func() { _ = hub.Stop() })
	conn := dialHub(t, hub, nil)

	resp := roundTrip(t, conn, `{"id":"long","command":"text","text":"lang"}`)
	assert.True(t, resp.OK)

	resp = roundTrip(t, conn, `{"id":"next","command":"ping"}`)
	assert.Equal(t, ipc.Response{ID: "next", OK: true}, resp)
}
