package sockets

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func TestHub_Broadcast(t *testing.T) {
	hub := New(WithPingInterval(time.Minute))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dial(t, srv)
	b := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast([]byte(`{"flow":2.5}`))

	for _, ws := range []*websocket.Conn{a, b} {
		require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
		kind, msg, err := ws.ReadMessage()
		require.NoError(t, err)
		assert.Equal(t, websocket.TextMessage, kind)
		assert.Equal(t, `{"flow":2.5}`, string(msg))
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	connected := make(chan string, 1)
	hub := New(OnConnected(func(remote string) { connected <- remote }))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ws := dial(t, srv)
	select {
	case remote := <-connected:
		assert.NotEmpty(t, remote)
	case <-time.After(time.Second):
		t.Fatal("connect callback not called")
	}

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_SlowClientDropped(t *testing.T) {
	hub := New(WithSendBuffer(1))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	// the client never reads, so its queue fills up
	assert.Eventually(t, func() bool {
		hub.Broadcast([]byte(strings.Repeat("x", 64*1024)))
		return hub.Clients() == 0
	}, 5*time.Second, time.Millisecond)
}

func TestHub_Close(t *testing.T) {
	hub := New()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	ws := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, hub.Close())
	assert.Equal(t, 0, hub.Clients())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
