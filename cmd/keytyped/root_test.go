package main

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"keytype/internal/config"
	"keytype/internal/ipc"
	"keytype/internal/keyboard"
	"keytype/internal/keyboard/keyboardtest"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeKeyboard(injector *keyboardtest.Injector) keyboardFactory {
	return func(opts keyboard.Options) (*keyboard.Keyboard, error) {
		opts.Scanner = keyboardtest.Scanner{}
		opts.Injector = injector
		opts.Sleep = func(time.Duration) {}
		return keyboard.New(opts)
	}
}

func TestStartServesWebSocket(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("named pipe would be created on the real per-user name")
	}
	injector := &keyboardtest.Injector{}
	cfg := config.DefaultConfig()
	cfg.WebSocketAddr = "127.0.0.1:0"

	srv, err := start(context.Background(), cfg, fakeKeyboard(injector), `Local\keytype-test`, nil)
	require.NoError(t, err)
	defer func() { assert.NoError(t, srv.stop()) }()
	assert.Nil(t, srv.pipe, "pipe is unavailable off Windows")

	conn, _, err := websocket.DefaultDialer.Dial(srv.wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"id":"1","command":"text","text":"ok"}`)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	resp, err := ipc.DecodeResponse(msg)
	require.NoError(t, err)
	assert.Equal(t, ipc.Response{ID: "1", OK: true}, resp)
	assert.Len(t, injector.Transitions(), 4)
}

func TestStartWithoutAnyTransport(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("named pipe is available on Windows")
	}
	_, err := start(context.Background(), config.DefaultConfig(), fakeKeyboard(&keyboardtest.Injector{}), `Local\keytype-test`, nil)
	assert.ErrorIs(t, err, ipc.ErrUnsupportedPlatform)
}

func TestStartKeyboardFailure(t *testing.T) {
	failing := func(keyboard.Options) (*keyboard.Keyboard, error) {
		return nil, keyboard.ErrUnsupportedPlatform
	}
	_, err := start(context.Background(), config.DefaultConfig(), failing, `Local\keytype-test-kb`, nil)
	assert.ErrorIs(t, err, keyboard.ErrUnsupportedPlatform)
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keytype", "config.yaml")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--config", path, "init-config"})
	require.NoError(t, cmd.Execute())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig(), cfg)

	cmd = newRootCmd()
	cmd.SetArgs([]string{"--config", path, "init-config"})
	assert.ErrorContains(t, cmd.Execute(), "already exists")
}
