package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T, allowed ...string) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(allowed, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{HTTPHeader: header})
}

func TestHubBroadcastsToConnectedBrowsers(t *testing.T) {
	hub, srv := startHub(t)

	conn, _, err := dial(t, srv, srv.URL)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Broadcast(Message{Type: MessageReload, Generation: 4, Routes: []string{"/a/"}}))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MessageReload, msg.Type)
	assert.Equal(t, uint64(4), msg.Generation)
	assert.Equal(t, []string{"/a/"}, msg.Routes)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestHubOriginCheck(t *testing.T) {
	tests := []struct {
		name    string
		origin  func(srv *httptest.Server) string
		allowed []string
		wantOK  bool
	}{
		{
			name:   "same host",
			origin: func(srv *httptest.Server) string { return srv.URL },
			wantOK: true,
		},
		{
			name:    "configured host",
			origin:  func(*httptest.Server) string { return "http://localhost:8000" },
			allowed: []string{"localhost:8000"},
			wantOK:  true,
		},
		{
			name:   "foreign host",
			origin: func(*httptest.Server) string { return "http://malicious.com" },
		},
		{
			name:   "missing origin",
			origin: func(*httptest.Server) string { return "" },
		},
		{
			name:   "file scheme",
			origin: func(*httptest.Server) string { return "file:///etc/passwd" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := startHub(t, tt.allowed...)
			conn, resp, err := dial(t, srv, tt.origin(srv))
			if tt.wantOK {
				require.NoError(t, err)
				conn.CloseNow()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestHubDropsClosedBrowsers(t *testing.T) {
	hub, srv := startHub(t)

	conn, _, err := dial(t, srv, srv.URL)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubShutdown(t *testing.T) {
	hub, srv := startHub(t)
	hub.Shutdown()
	hub.Shutdown()

	_, resp, err := dial(t, srv, srv.URL)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Error(t, hub.Broadcast(Message{Type: MessageReload}))
}
