package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"bus-tracker/internal/observability"
)

var errLinkClosed = errors.New("link: connection closed by peer")

// Slot is one pooled connection and the queue feeding it.
type Slot struct {
	index  int
	url    string
	queue  chan []byte
	policy RetryPolicy
	dialer Dialer
	pool   *Pool
	logger *slog.Logger

	connected atomic.Bool
	sent      atomic.Uint64
}

func (s *Slot) Index() int { return s.index }

// Connected reports whether the slot holds an open connection.
func (s *Slot) Connected() bool { return s.connected.Load() }

// Sent is the number of messages written to the wire so far.
func (s *Slot) Sent() uint64 { return s.sent.Load() }

// Send enqueues msg for the wire. It blocks while the queue is full, which
// includes the whole outage on an unbuffered queue, and returns early only
// when ctx is done.
func (s *Slot) Send(ctx context.Context, msg []byte) error {
	select {
	case s.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

/* =======================================================================
                          SENDER DUTY
======================================================================= */

func (s *Slot) run(ctx context.Context) error {
	var (
		pending []byte
		attempt int
	)
	label := strconv.Itoa(s.index)

	for {
		conn, _, err := s.dialer.DialContext(ctx, s.url, nil)
		if err == nil {
			attempt = 0
			s.setConnected(true)
			s.logger.Debug("link: connected", "remote", conn.RemoteAddr().String())

			pending, err = s.pump(ctx, conn, pending)
			_ = conn.Close()
			s.setConnected(false)
		}
		if ctx.Err() != nil {
			return nil
		}

		attempt++
		wait, ok := s.policy.Next(attempt)
		if !ok {
			return fmt.Errorf("link: slot %d gave up after %d attempts: %w", s.index, attempt-1, err)
		}
		observability.Reconnects.WithLabelValues(label).Inc()
		s.logger.Debug("link: failed to reach the server, reconnecting", "err", err, "backoff", wait)
		if !sleep(ctx, wait) {
			return nil
		}
	}
}

// pump writes queued messages until the connection breaks or ctx is done. A
// message that failed to write is handed back so it goes out first after
// the reconnect.
func (s *Slot) pump(ctx context.Context, conn *websocket.Conn, pending []byte) ([]byte, error) {
	readDone := make(chan error, 1)
	go func() { readDone <- s.readLoop(conn) }()

	label := strconv.Itoa(s.index)
	write := func(msg []byte) error {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return err
		}
		s.sent.Add(1)
		observability.MessagesSent.WithLabelValues(label).Inc()
		return nil
	}

	if pending != nil {
		if err := write(pending); err != nil {
			return pending, err
		}
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return nil, ctx.Err()
		case err := <-readDone:
			return nil, err
		case msg := <-s.queue:
			if err := write(msg); err != nil {
				return msg, err
			}
		}
	}
}

// readLoop drains what the hub sends back (Errors replies) and notices the
// peer going away, so the writer does not sit on a dead connection.
func (s *Slot) readLoop(conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return errLinkClosed
			}
			return fmt.Errorf("link: read: %w", err)
		}
		s.logger.Info("link: incoming message", "message", string(msg))
	}
}

func (s *Slot) setConnected(up bool) {
	if s.connected.Swap(up) == up {
		return
	}
	if up {
		s.pool.open.Add(1)
		observability.OpenLinks.Inc()
	} else {
		s.pool.open.Add(-1)
		observability.OpenLinks.Dec()
	}
}
