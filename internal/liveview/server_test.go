package liveview

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rbright/resq/internal/fsm"
	"github.com/rbright/resq/internal/session"
)

type staticSource struct {
	mu   sync.Mutex
	snap session.Snapshot
}

func (s *staticSource) Snapshot() session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func newSource(phase fsm.Phase) *staticSource {
	return &staticSource{snap: session.Snapshot{
		State:     session.State{Phase: phase},
		SessionID: "sess-1",
		Version:   1,
	}}
}

func TestSnapshotAndHealthRoutes(t *testing.T) {
	srv := httptest.NewServer(New(newSource(fsm.PhaseListening), nil, nil).Handler())
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap session.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	require.Equal(t, fsm.PhaseListening, snap.Phase)
	require.Equal(t, "sess-1", snap.SessionID)

	health, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer health.Body.Close()
	body, err := io.ReadAll(health.Body)
	require.NoError(t, err)
	require.Equal(t, "ok\n", string(body))
}

func TestMetricsRouteOnlyWhenConfigured(t *testing.T) {
	without := httptest.NewServer(New(newSource(fsm.PhaseIdle), nil, nil).Handler())
	t.Cleanup(without.Close)
	resp, err := http.Get(without.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("resq_cycles_total 0\n"))
	})
	with := httptest.NewServer(New(newSource(fsm.PhaseIdle), metrics, nil).Handler())
	t.Cleanup(with.Close)
	resp, err = http.Get(with.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "resq_cycles_total")
}

func TestWebsocketReceivesCurrentThenPublished(t *testing.T) {
	live := New(newSource(fsm.PhaseIdle), nil, nil)
	srv := httptest.NewServer(live.Handler())
	t.Cleanup(srv.Close)

	conn := dial(t, srv.URL)
	first := readSnapshot(t, conn)
	require.Equal(t, fsm.PhaseIdle, first.Phase)
	require.Equal(t, 1, live.Viewers())

	live.Publish(session.Snapshot{
		State:   session.State{Phase: fsm.PhaseResponding, ResponseText: "Stay calm.", ResponseVisible: true},
		Version: 2,
	})
	next := readSnapshot(t, conn)
	require.Equal(t, fsm.PhaseResponding, next.Phase)
	require.Equal(t, "Stay calm.", next.ResponseText)
	require.EqualValues(t, 2, next.Version)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return live.Viewers() == 0 }, time.Second, 10*time.Millisecond)
}

func TestPublishWithoutViewersDoesNotBlock(t *testing.T) {
	live := New(newSource(fsm.PhaseIdle), nil, nil)
	for i := range 100 {
		live.Publish(session.Snapshot{Version: uint64(i)})
	}
	require.Zero(t, live.Viewers())
}

func TestEnqueueKeepsNewestFrames(t *testing.T) {
	v := &viewer{send: make(chan []byte, 2)}
	enqueue(v, []byte("1"))
	enqueue(v, []byte("2"))
	enqueue(v, []byte("3"))

	require.Equal(t, "2", string(<-v.send))
	require.Equal(t, "3", string(<-v.send))
}

func TestServeStopsOnContextCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- New(newSource(fsm.PhaseIdle), nil, nil).Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func dial(t *testing.T, serverURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) session.Snapshot {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var snap session.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	return snap
}
