// Command harmful-client keeps sending malformed viewport updates to the hub
// and logs every reply. It is a manual check of the viewer error protocol.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"

	"bus-tracker/internal/observability"
)

var badMessages = []string{
	`Not a JSON string`,
	`"Incorrect type"`,
	`{"invalid_key": "invalid key"}`,
	`{"msgType": "invalid msgType"}`,
}

func main() {
	logger := observability.NewLogger(true)
	url := os.Getenv("SERVER")
	if url == "" {
		url = "ws://127.0.0.1:8000/"
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		logger.Error("Connection attempt failed", "error", err)
		os.Exit(1)
	}
	defer conn.Close()
	context.AfterFunc(ctx, func() { _ = conn.Close() })

	for i := 0; ctx.Err() == nil; i++ {
		msg := badMessages[i%len(badMessages)]
		if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
			logger.Error("write failed", "error", err)
			return
		}
		_, reply, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				logger.Error("read failed", "error", err)
			}
			return
		}
		logger.Warn("Received message", "sent", msg, "message", string(reply))
	}
}
