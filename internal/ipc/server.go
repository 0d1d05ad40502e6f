package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"
)

// requestDeadline bounds one connection so a silent client cannot hold
// Serve open after shutdown.
const requestDeadline = 2 * time.Second

// Handler processes one IPC command request.
type Handler interface {
	Handle(context.Context, Request) Response
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, Request) Response

func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// Serve answers call-control clients until ctx is cancelled or the listener
// closes. Handlers receive ctx, so work they start outlives the connection.
func Serve(ctx context.Context, listener net.Listener, handler Handler) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() { _ = listener.Close() })
	defer stop()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			serveConn(ctx, conn, handler)
		}()
	}
}

func serveConn(ctx context.Context, conn net.Conn, handler Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(requestDeadline))

	reply := func(resp Response) { _ = json.NewEncoder(conn).Encode(resp) }

	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		reply(Response{Error: fmt.Sprintf("decode request: %v", err)})
		return
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		reply(Response{Error: "missing command"})
		return
	}

	reply(handler.Handle(ctx, req))
}
