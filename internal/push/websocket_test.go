package push

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sudooom.im.client/internal/config"
)

type recorder struct {
	mu           sync.Mutex
	connected    int
	disconnected int
	events       []string
	connCh       chan struct{}
	eventCh      chan string
}

func newRecorder() *recorder {
	return &recorder{
		connCh:  make(chan struct{}, 8),
		eventCh: make(chan string, 32),
	}
}

func (r *recorder) OnConnected() {
	r.mu.Lock()
	r.connected++
	r.mu.Unlock()
	r.connCh <- struct{}{}
}

func (r *recorder) OnDisconnected(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disconnected++
}

func (r *recorder) OnEvent(event string, data json.RawMessage) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.eventCh <- event
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for push callback")
	}
	var zero T
	return zero
}

type testServer struct {
	*httptest.Server
	emitted chan Envelope
	conns   chan *websocket.Conn
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		emitted: make(chan Envelope, 8),
		conns:   make(chan *websocket.Conn, 8),
	}
	upgrader := websocket.Upgrader{}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer token-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn
		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				return
			}
			ts.emitted <- env
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func TestWebSocketChannel_EventsInOrder(t *testing.T) {
	ts := newTestServer(t)
	ch := NewWebSocket(config.PushConfig{
		URL:           ts.wsURL(),
		MaxReconnects: 0,
		ReconnectWait: 10 * time.Millisecond,
	}, "token-1")
	rec := newRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runDone := make(chan error, 1)
	go func() { runDone <- ch.Run(ctx, rec) }()

	waitFor(t, rec.connCh)
	server := waitFor(t, ts.conns)

	for _, event := range []string{"newMessage", "messagePinned", "messagePinned", "messageReaction"} {
		require.NoError(t, server.WriteJSON(Envelope{Event: event, Data: json.RawMessage(`{}`)}))
	}
	var got []string
	for i := 0; i < 4; i++ {
		got = append(got, waitFor(t, rec.eventCh))
	}
	assert.Equal(t, []string{"newMessage", "messagePinned", "messagePinned", "messageReaction"}, got)

	require.NoError(t, ch.Emit(context.Background(), "setup", map[string]string{"_id": "u1"}))
	env := waitFor(t, ts.emitted)
	assert.Equal(t, "setup", env.Event)
	assert.JSONEq(t, `{"_id":"u1"}`, string(env.Data))

	require.NoError(t, ch.Close())
	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestWebSocketChannel_Reconnect(t *testing.T) {
	ts := newTestServer(t)
	ch := NewWebSocket(config.PushConfig{
		URL:           ts.wsURL(),
		MaxReconnects: -1,
		ReconnectWait: 10 * time.Millisecond,
	}, "token-1")
	rec := newRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ch.Run(ctx, rec)

	waitFor(t, rec.connCh)
	first := waitFor(t, ts.conns)
	first.Close()

	// 断线后传输层自动重连
	waitFor(t, rec.connCh)
	cancel()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 2, rec.connected)
	assert.GreaterOrEqual(t, rec.disconnected, 1)
}

func TestWebSocketChannel_GivesUp(t *testing.T) {
	ts := newTestServer(t)
	ch := NewWebSocket(config.PushConfig{
		URL:           ts.wsURL(),
		MaxReconnects: 1,
		ReconnectWait: 5 * time.Millisecond,
	}, "wrong-token")

	err := ch.Run(context.Background(), newRecorder())
	assert.Error(t, err)
}

func TestWebSocketChannel_EmitWhileDisconnected(t *testing.T) {
	ch := NewWebSocket(config.PushConfig{URL: "ws://127.0.0.1:1"}, "")
	assert.Error(t, ch.Emit(context.Background(), "setup", nil))
}

func TestReconnectLoop_CloseBeforeCancelIsClean(t *testing.T) {
	done := make(chan struct{})
	calls := 0
	session := func(ctx context.Context, h Handler) (bool, error) {
		calls++
		h.OnConnected()
		// 连接先被关闭，读取失败时 ctx 还未取消
		close(done)
		return true, errors.New("use of closed network connection")
	}

	rec := newRecorder()
	cfg := config.PushConfig{MaxReconnects: 0, ReconnectWait: time.Millisecond}
	err := reconnectLoop(context.Background(), cfg, done, slog.Default(), "test", rec, session)

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, rec.disconnected)
}
