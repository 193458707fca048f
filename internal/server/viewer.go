package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"bus-tracker/internal/codec"
	"bus-tracker/internal/observability"
	"bus-tracker/internal/position"
	"bus-tracker/internal/registry"
)

// DefaultRefreshInterval is how often a viewer gets a fresh snapshot.
const DefaultRefreshInterval = time.Second

var errPeerClosed = errors.New("peer closed connection")

// viewport is the region one viewer is looking at. The listener duty
// replaces it, the broadcast duty reads it; both go through the mutex and
// always see bounds and errors together.
type viewport struct {
	mu     sync.Mutex
	bounds position.Bounds
	set    bool
	errs   []string
}

// Update replaces the bounds and clears any error.
func (v *viewport) Update(b position.Bounds) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bounds = b
	v.set = true
	v.errs = nil
}

// Invalidate keeps the last bounds but flags the viewport with errs.
func (v *viewport) Invalidate(errs []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs = append([]string(nil), errs...)
}

// Current returns the bounds, whether any were ever set, and a copy of the
// pending errors.
func (v *viewport) Current() (position.Bounds, bool, []string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bounds, v.set, append([]string(nil), v.errs...)
}

// ViewerHandler serves browser sessions: a periodic filtered snapshot out,
// viewport updates in.
type ViewerHandler struct {
	Registry *registry.Registry
	Refresh  time.Duration
	Logger   *slog.Logger
}

func NewViewerHandler(reg *registry.Registry, refresh time.Duration, logger *slog.Logger) *ViewerHandler {
	if refresh <= 0 {
		refresh = DefaultRefreshInterval
	}
	return &ViewerHandler{Registry: reg, Refresh: refresh, Logger: logger.With("component", "viewer")}
}

func (h *ViewerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("upgrade failed", "remote_addr", r.RemoteAddr, "err", err)
		return
	}
	conn := &wsConn{Conn: ws}
	observability.BrowserConnections.Inc()
	observability.ActiveSessions.WithLabelValues("browser").Inc()
	defer observability.ActiveSessions.WithLabelValues("browser").Dec()

	if err := h.Handle(r.Context(), conn); err != nil {
		h.Logger.Warn("session ended", "remote_addr", conn.RemoteAddr().String(), "err", err)
	}
}

// Handle runs both duties of a session. Whichever ends first closes the
// connection, which unblocks the other; Handle returns once both are done.
// A peer close is not an error.
func (h *ViewerHandler) Handle(ctx context.Context, conn *wsConn) error {
	logger := h.Logger.With("remote_addr", conn.RemoteAddr().String())
	vp := &viewport{}

	g, ctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer closeOrLog(conn, logger)

	logger.Debug("viewer connected")
	g.Go(func() error { return h.broadcast(ctx, conn, vp, logger) })
	g.Go(func() error { return h.listen(ctx, conn, vp, logger) })

	err := g.Wait()
	if errors.Is(err, errPeerClosed) || errors.Is(err, context.Canceled) {
		logger.Debug("viewer disconnected")
		return nil
	}
	return err
}

// broadcast sends a snapshot right away and then on every tick.
func (h *ViewerHandler) broadcast(ctx context.Context, conn *wsConn, vp *viewport, logger *slog.Logger) error {
	ticker := time.NewTicker(h.Refresh)
	defer ticker.Stop()

	for {
		if err := h.sendSnapshot(conn, vp, logger); err != nil {
			if ctx.Err() != nil || isPeerClose(err) {
				return errPeerClosed
			}
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (h *ViewerHandler) sendSnapshot(conn *wsConn, vp *viewport, logger *slog.Logger) error {
	start := time.Now()
	bounds, set, errs := vp.Current()

	var (
		msg []byte
		err error
	)
	if len(errs) > 0 {
		msg, err = codec.EncodeErrors(errs)
	} else {
		visible := []position.Report{}
		if set {
			visible = position.Filter(bounds, h.Registry.Snapshot())
		}
		logger.Debug("buses inside bounds", "count", len(visible))
		msg, err = codec.EncodeBuses(visible)
	}
	if err != nil {
		return err
	}
	if err := conn.send(msg); err != nil {
		return err
	}
	observability.ObserveBroadcastLatency(start)
	return nil
}

// listen applies every viewport update the viewer sends.
func (h *ViewerHandler) listen(ctx context.Context, conn *wsConn, vp *viewport, logger *slog.Logger) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || isPeerClose(err) {
				return errPeerClosed
			}
			return err
		}

		b, err := codec.DecodeBounds(data)
		if err != nil {
			pe, _ := codec.AsProtocolError(err)
			observability.ProtocolErrors.WithLabelValues("browser").Inc()
			logger.Debug("bad bounds", "err", err)
			vp.Invalidate(pe.Errors)
			continue
		}
		vp.Update(b)
		logger.Debug("bounds updated", "bounds", b)
	}
}
