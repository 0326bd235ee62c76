// Package wsserver serves typing requests over a loopback WebSocket.
//
// Each text frame from the client is one JSON ipc.Request; the server answers
// each with one JSON ipc.Response text frame, in order.
package wsserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"keytype/internal/config"
	"keytype/internal/ipc"

	"github.com/gorilla/websocket"
)

// writeDeadline bounds one WebSocket write.
const writeDeadline = 5 * time.Second

// readDeadline is extended by every pong; three missed pings drop the client.
const readDeadline = 90 * time.Second

const pingInterval = 30 * time.Second

const maxReadMessageSize = ipc.MaxFrameBytes

var wsUpgrader = websocket.Upgrader{
	CheckOrigin:     checkOrigin,
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 4 * 1024,
}

// checkOrigin admits non-browser clients (no Origin header) and pages served
// from loopback. Any web page could otherwise make the browser type for it.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	host := u.Host
	if !strings.Contains(host, ":") || strings.HasSuffix(host, "]") {
		host = net.JoinHostPort(strings.Trim(host, "[]"), "0")
	}
	return config.IsLoopbackAddr(host)
}

// HubOptions configures the WebSocket server.
type HubOptions struct {
	// Addr is the listen address and must be loopback. Use "127.0.0.1:0" for
	// an OS-assigned port.
	Addr     string
	Executor ipc.Executor
}

// Hub serves one client at a time. A new connection replaces the old one,
// which lets a restarted voice engine reconnect without waiting for the
// dead connection to time out.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
type Hub struct {
	opts HubOptions

	// readTimeout is the idle read deadline, restarted by pongs and after
	// every request.
	readTimeout time.Duration

	mu   sync.RWMutex
	conn *websocket.Conn

	// writeMu serializes WriteMessage calls; gorilla/websocket allows one
	// concurrent writer.
	writeMu sync.Mutex

	server *http.Server
	url    string

	closeOnce sync.Once
}

// NewHub creates a Hub. It does not listen until Start.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	return &Hub{opts: opts, readTimeout: readDeadline}
}

// Start listens on the configured loopback address and serves connections.
// ctx becomes the base context of every handler.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return errors.New("wsserver: already started")
	}
	if h.opts.Executor == nil {
		return errors.New("wsserver: executor is required")
	}
	if !config.IsLoopbackAddr(h.opts.Addr) {
		return fmt.Errorf("wsserver: %q is not a loopback address", h.opts.Addr)
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen: %w", err)
	}
	h.url = "ws://" + ln.Addr().String() + "/ws"

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("[ws] server error", "error", serveErr)
		}
	}()

	slog.Info("[ws] server started", "url", h.url)
	return nil
}

// Stop shuts the server down and closes the active connection. Idempotent;
// a stopped Hub cannot be restarted.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.mu.Unlock()

		if conn != nil {
			h.closeConn(conn, "server stop")
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsserver: shutdown: %w", err)
			}
		}
		slog.Info("[ws] server stopped")
	})
	return stopErr
}

// URL returns the WebSocket URL, or "" before Start.
func (h *Hub) URL() string {
	return h.url
}

// HasActiveConnection reports whether a client is connected.
func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn != nil
}

func (h *Hub) clearIfCurrent(conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conn != conn {
		return false
	}
	h.conn = nil
	return true
}

// closeConn tolerates double close; the read pump and Stop may both close.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if err := conn.Close(); err != nil {
		slog.Debug("[ws] connection close", "reason", reason, "error", err)
	}
}

// write sends one frame under writeMu. A failed write drops the client.
func (h *Hub) write(conn *websocket.Conn, messageType int, payload []byte) bool {
	h.writeMu.Lock()
	err := conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err == nil {
		err = conn.WriteMessage(messageType, payload)
	}
	h.writeMu.Unlock()

	if err != nil {
		slog.Debug("[ws] write failed, closing connection", "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "write error")
		return false
	}
	return true
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[ws] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
		slog.Warn("[ws] SetReadDeadline failed on new connection", "error", err)
		h.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	h.mu.Lock()
	oldConn := h.conn
	h.conn = conn
	h.mu.Unlock()
	if oldConn != nil {
		h.closeConn(oldConn, "replaced by new connection")
	}

	slog.Info("[ws] client connected", "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go h.pingLoop(conn, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] wsserver handleWS recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		close(pingDone)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "read pump exit")
		slog.Info("[ws] client disconnected")
	}()

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[ws] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			slog.Debug("[ws] ignoring non-text frame", "type", msgType)
			continue
		}

		resp := ipc.Handle(h.opts.Executor, msg)
		if !h.write(conn, websocket.TextMessage, ipc.EncodeResponse(resp)) {
			return
		}
		// Pongs are not read while a job runs.
		if err := conn.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
			slog.Warn("[ws] SetReadDeadline failed after request", "error", err)
			return
		}
	}
}

func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[DEBUG-PANIC] wsserver pingLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.clearIfCurrent(conn)
			h.closeConn(conn, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !h.write(conn, websocket.PingMessage, nil) {
				return
			}
		}
	}
}
