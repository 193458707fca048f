package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Viewers are browser pages served from anywhere.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Listen binds addr. Bind failures are configuration errors and should stop
// the process before anything is served.
func Listen(addr string) (net.Listener, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("error starting websocket server on %s: %w", addr, err)
	}
	return lis, nil
}

// Serve accepts WebSocket connections on lis and hands each one to handler
// until ctx is done. Every request context derives from ctx, so open
// connections are torn down on shutdown too.
func Serve(ctx context.Context, lis net.Listener, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("websocket server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// wsConn serializes writes to one websocket connection; gorilla allows a
// single concurrent writer.
type wsConn struct {
	mu sync.Mutex
	*websocket.Conn
}

func (c *wsConn) send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.WriteMessage(websocket.TextMessage, msg)
}

func closeOrLog(c *wsConn, logger *slog.Logger) {
	if err := c.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		logger.Error("error closing connection", "err", err, "remote_addr", c.RemoteAddr().String())
	}
}

// isPeerClose reports whether err is the peer going away rather than a
// transport failure.
func isPeerClose(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
