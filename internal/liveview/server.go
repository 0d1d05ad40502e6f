// Package liveview serves session snapshots over HTTP and a websocket feed.
package liveview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rbright/resq/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 8
)

// Source provides the current snapshot for new viewers.
type Source interface {
	Snapshot() session.Snapshot
}

type viewer struct {
	send chan []byte
}

// Server fans session snapshots out to websocket viewers.
type Server struct {
	source   Source
	metrics  http.Handler
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	viewers map[*viewer]struct{}
}

// New builds a Server. metrics may be nil to leave /metrics unrouted.
func New(source Source, metrics http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		source:  source,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		viewers: make(map[*viewer]struct{}),
	}
}

// Handler routes /ws, /snapshot, /healthz and /metrics.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.serveWS)
	mux.HandleFunc("GET /snapshot", s.serveSnapshot)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}
	return mux
}

// Publish queues snap for every connected viewer. A slow viewer drops its
// oldest pending frame rather than blocking the session.
func (s *Server) Publish(snap session.Snapshot) {
	frame, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("encode snapshot failed", "error", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for v := range s.viewers {
		enqueue(v, frame)
	}
}

// Viewers reports the number of connected websocket clients.
func (s *Server) Viewers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("live view listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) serveSnapshot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.source.Snapshot()); err != nil {
		s.logger.Debug("write snapshot failed", "error", err.Error())
	}
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err.Error())
		return
	}

	v := &viewer{send: make(chan []byte, sendBuffer)}
	initial, err := json.Marshal(s.source.Snapshot())
	if err != nil {
		_ = conn.Close()
		return
	}

	// Registering and queueing the current snapshot under one lock keeps
	// later publishes ordered after it.
	s.mu.Lock()
	s.viewers[v] = struct{}{}
	enqueue(v, initial)
	s.mu.Unlock()

	done := make(chan struct{})
	go s.readLoop(conn, done)
	s.writeLoop(conn, v, done)

	s.mu.Lock()
	delete(s.viewers, v)
	s.mu.Unlock()
	_ = conn.Close()
}

// readLoop discards viewer input and closes done when the peer goes away.
func (s *Server) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, v *viewer, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case frame := <-v.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.logger.Debug("websocket write failed", "error", err.Error())
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func enqueue(v *viewer, frame []byte) {
	select {
	case v.send <- frame:
		return
	default:
	}
	select {
	case <-v.send:
	default:
	}
	select {
	case v.send <- frame:
	default:
	}
}
