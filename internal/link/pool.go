// Package link multiplexes many simulated buses onto a small, fixed number of
// WebSocket connections to the hub.
//
// Each pool slot owns one connection and one queue. Buses are pinned to a
// slot at startup and enqueue pre-serialized reports; the slot's sender duty
// drains the queue onto the wire and reconnects on failure.
package link

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Dialer opens a WebSocket. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Pool is a fixed set of slots sharing one hub URL.
type Pool struct {
	url    string
	slots  []*Slot
	open   atomic.Int64
	logger *slog.Logger
}

// NewPool creates size slots, each with a queue of queueSize messages
// (0 = unbuffered). No connection is opened until Run.
func NewPool(url string, size, queueSize int, policy RetryPolicy, dialer Dialer, logger *slog.Logger) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("link: pool size must be positive, got %d", size)
	}
	if queueSize < 0 {
		return nil, fmt.Errorf("link: queue size must not be negative, got %d", queueSize)
	}
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	p := &Pool{url: url, logger: logger.With("component", "link")}
	for i := 0; i < size; i++ {
		p.slots = append(p.slots, &Slot{
			index:  i,
			url:    url,
			queue:  make(chan []byte, queueSize),
			policy: policy,
			dialer: dialer,
			pool:   p,
			logger: p.logger.With("slot", i),
		})
	}
	return p, nil
}

// Assign picks a slot uniformly at random. Callers keep the slot for the
// bus's lifetime.
func (p *Pool) Assign(rng *rand.Rand) *Slot {
	return p.slots[rng.IntN(len(p.slots))]
}

// Slots returns the pool's slots in index order.
func (p *Pool) Slots() []*Slot {
	return append([]*Slot(nil), p.slots...)
}

func (p *Pool) Size() int { return len(p.slots) }

// Connected is the number of slots holding an open connection right now.
func (p *Pool) Connected() int { return int(p.open.Load()) }

// Run starts every slot's sender duty and blocks until ctx is done or a
// slot gives up under a bounded retry policy.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, s := range p.slots {
		g.Go(func() error { return s.run(ctx) })
	}
	return g.Wait()
}
