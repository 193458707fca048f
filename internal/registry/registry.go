// Package registry keeps the last known position of every bus the hub has
// heard from.
package registry

import (
	"context"
	"log/slog"
	"sync"

	"bus-tracker/internal/position"
)

// Sink receives every report after it has been stored. Sinks run outside the
// registry lock; a slow sink slows the producer that sent the report, never
// the viewers.
type Sink interface {
	Publish(ctx context.Context, r position.Report) error
}

// Registry maps bus ID to its most recent report.
//
// Upserts replace whole values under the write lock, so readers never see a
// report half written. Snapshot copies the values out under the read lock and
// filtering happens on the copy, so the O(n) viewer pass holds no lock.
type Registry struct {
	mu    sync.RWMutex
	buses map[string]position.Report

	sink   Sink
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithSink mirrors every upsert to s.
func WithSink(s Sink) Option {
	return func(r *Registry) { r.sink = s }
}

// WithLogger sets the logger used to report sink failures.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

func New(opts ...Option) *Registry {
	r := &Registry{
		buses:  make(map[string]position.Report),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert stores rep, replacing any earlier report with the same ID.
func (r *Registry) Upsert(ctx context.Context, rep position.Report) {
	r.mu.Lock()
	r.buses[rep.ID] = rep
	r.mu.Unlock()

	if r.sink == nil {
		return
	}
	if err := r.sink.Publish(ctx, rep); err != nil {
		r.logger.Warn("registry: sink publish failed", "busId", rep.ID, "err", err)
	}
}

// Get returns the current report for id.
func (r *Registry) Get(id string) (position.Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rep, ok := r.buses[id]
	return rep, ok
}

// Snapshot returns a point-in-time copy of every stored report.
func (r *Registry) Snapshot() []position.Report {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]position.Report, 0, len(r.buses))
	for _, rep := range r.buses {
		out = append(out, rep)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.buses)
}
