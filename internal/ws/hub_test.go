package ws

import (
	"context"
	"errors"
	"net"
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
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHub_PublishReachesClients(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	a, b := dial(t, srv), dial(t, srv)
	require.Eventually(t, func() bool { return h.Clients() == 2 }, 2*time.Second, 5*time.Millisecond)

	h.Publish("state", map[string]int{"raw": 47})

	for _, c := range []*websocket.Conn{a, b} {
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		var ev struct {
			Type string         `json:"type"`
			Data map[string]int `json:"data"`
		}
		require.NoError(t, c.ReadJSON(&ev))
		assert.Equal(t, "state", ev.Type)
		assert.Equal(t, 47, ev.Data["raw"])
	}
}

func TestHub_ClientLeaving(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	c := dial(t, srv)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	c.Close()
	require.Eventually(t, func() bool { return h.Clients() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	h := NewHub() // not running, so nothing drains the queue
	for i := 0; i < 300; i++ {
		h.Publish("tick", i)
	}
	assert.EqualValues(t, 300-256, h.Dropped())
}

func TestHub_StopClosesClients(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	c := dial(t, srv)
	require.Eventually(t, func() bool { return h.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	require.Error(t, err)
	assert.Zero(t, h.Clients())
}

func TestHub_StoppedHubClosesNewClients(t *testing.T) {
	h := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	// more dials than register can buffer
	for i := 0; i < 20; i++ {
		c := dial(t, srv)
		require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, _, err := c.ReadMessage()
		require.Error(t, err)
		var ne net.Error
		assert.False(t, errors.As(err, &ne) && ne.Timeout(), "dial %d left open: %v", i, err)
	}
	assert.Zero(t, h.Clients())
}
