package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{}

// startServer upgrades /?user=<id> and registers the socket on m
func startServer(t *testing.T, m *Manager, onMessage func(int64, []byte)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := strconv.ParseInt(r.URL.Query().Get("user"), 10, 64)
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := m.Register(conn, userID)
		go c.WritePump()
		go c.ReadPump(onMessage)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, userID int64) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + strconv.FormatInt(userID, 10)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func TestManager_BroadcastAndSendToUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager()
	go m.Run(ctx)

	srv := startServer(t, m, nil)
	alice := dial(t, srv, 1)
	bob := dial(t, srv, 2)
	require.Eventually(t, func() bool { return m.Count() == 2 }, 2*time.Second, 10*time.Millisecond)

	m.Broadcast([]byte("hello"))
	assert.Equal(t, "hello", readText(t, alice))
	assert.Equal(t, "hello", readText(t, bob))

	m.SendToUser(2, []byte("only bob"))
	assert.Equal(t, "only bob", readText(t, bob))

	// unknown users are ignored
	m.SendToUser(99, []byte("nobody"))
}

func TestManager_ReplacesConnectionForSameUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager()
	go m.Run(ctx)

	srv := startServer(t, m, nil)
	first := dial(t, srv, 7)
	require.Eventually(t, func() bool { return m.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	second := dial(t, srv, 7)

	// the first socket gets closed by the server
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err)

	m.SendToUser(7, []byte("latest"))
	assert.Equal(t, "latest", readText(t, second))
	assert.Equal(t, 1, m.Count())
}

func TestManager_ReadPumpDeliversMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager()
	go m.Run(ctx)

	got := make(chan string, 1)
	srv := startServer(t, m, func(userID int64, msg []byte) {
		got <- strconv.FormatInt(userID, 10) + ":" + string(msg)
	})
	conn := dial(t, srv, 3)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("ping")))
	select {
	case s := <-got:
		assert.Equal(t, "3:ping", s)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestManager_UnregistersOnClientClose(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewManager()
	go m.Run(ctx)

	srv := startServer(t, m, nil)
	conn := dial(t, srv, 4)
	require.Eventually(t, func() bool { return m.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool { return m.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestManager_ShutdownOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager()
	stopped := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(stopped)
	}()

	srv := startServer(t, m, nil)
	conn := dial(t, srv, 5)
	require.Eventually(t, func() bool { return m.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-stopped
	assert.Equal(t, 0, m.Count())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
