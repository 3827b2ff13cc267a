// File: internal/notify/hub_test.go
package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHubBroadcastsToEverySubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop(), func(*http.Request) bool { return true })
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	a := dialHub(t, srv)
	b := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.Subscribers() == 2 },
		2*time.Second, 10*time.Millisecond)

	sent := Event{Type: EventState, RunID: "r1", State: "Filling", At: time.Now().UTC()}
	hub.Publish(sent)

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var got Event
		require.NoError(t, conn.ReadJSON(&got))
		assert.Equal(t, EventState, got.Type)
		assert.Equal(t, "r1", got.RunID)
		assert.Equal(t, "Filling", got.State)
	}
}

func TestHubDropsDisconnectedSubscriber(t *testing.T) {
	hub := NewHub(zap.NewNop(), func(*http.Request) bool { return true })
	defer hub.Close()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn := dialHub(t, srv)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 },
		2*time.Second, 10*time.Millisecond)

	// Publishing into an empty hub is a no-op.
	hub.Publish(Event{Type: EventCompleted})
}

func TestNopNotifier(t *testing.T) {
	Nop{}.Publish(Event{Type: EventError, Message: "ignored"})
}
