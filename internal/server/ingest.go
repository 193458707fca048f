package server

import (
	"context"
	"log/slog"
	"net/http"

	"bus-tracker/internal/codec"
	"bus-tracker/internal/observability"
	"bus-tracker/internal/registry"
)

// IngestHandler accepts one WebSocket per producer and stores every report
// it sends.
type IngestHandler struct {
	Registry *registry.Registry
	Logger   *slog.Logger
}

func NewIngestHandler(reg *registry.Registry, logger *slog.Logger) *IngestHandler {
	return &IngestHandler{Registry: reg, Logger: logger.With("component", "ingest")}
}

func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	conn := &wsConn{Conn: ws}
	observability.BusConnections.Inc()
	observability.ActiveSessions.WithLabelValues("bus").Inc()
	defer observability.ActiveSessions.WithLabelValues("bus").Dec()

	h.Handle(r.Context(), conn)
}

// Handle runs the read loop of one producer connection until the peer goes
// away, the transport fails or ctx is done.
func (h *IngestHandler) Handle(ctx context.Context, conn *wsConn) {
	logger := h.Logger.With("remote_addr", conn.RemoteAddr().String())
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer closeOrLog(conn, logger)

	logger.Debug("producer connected")
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isPeerClose(err) || ctx.Err() != nil {
				logger.Debug("producer disconnected")
				return
			}
			logger.Warn("read error", "err", err)
			return
		}

		rep, err := codec.DecodeBus(data)
		if err != nil {
			pe, _ := codec.AsProtocolError(err)
			observability.ProtocolErrors.WithLabelValues("bus").Inc()
			logger.Debug("bad report", "err", err)
			msg, encErr := codec.EncodeErrors(pe.Errors)
			if encErr != nil {
				logger.Error("encode errors", "err", encErr)
				continue
			}
			if err := conn.send(msg); err != nil {
				logger.Warn("write error", "err", err)
				return
			}
			continue
		}

		h.Registry.Upsert(ctx, rep)
		observability.ReportsRecv.WithLabelValues("websocket").Inc()
		observability.BusesTracked.Set(float64(h.Registry.Len()))
	}
}
