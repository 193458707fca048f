// Package simulator moves fake buses along their routes and emits a position
// report on every tick.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"bus-tracker/internal/codec"
	"bus-tracker/internal/position"
)

// DefaultRefreshTimeout is the pause between two reports of one bus.
const DefaultRefreshTimeout = time.Second

// Sender takes serialized reports for the wire. *link.Slot implements it.
type Sender interface {
	Send(ctx context.Context, msg []byte) error
}

// BusID builds the id of the index-th bus of a route. The emulator id prefix
// lets several emulators feed one hub without collisions.
func BusID(emulatorID, routeName string, index int) string {
	return fmt.Sprintf("%s-%s-%d", emulatorID, routeName, index)
}

// Rotate returns coords starting at offset and wrapping around to the start.
func Rotate(coords []position.Coordinate, offset int) []position.Coordinate {
	if len(coords) == 0 {
		return nil
	}
	offset %= len(coords)
	out := make([]position.Coordinate, 0, len(coords))
	out = append(out, coords[offset:]...)
	return append(out, coords[:offset]...)
}

// Bus is one simulated vehicle cycling forever through its rotated route.
type Bus struct {
	ID      string
	Route   string
	Refresh time.Duration

	cycle []position.Coordinate
	next  int
}

// NewBus places a bus on coords at the given offset.
func NewBus(id, route string, coords []position.Coordinate, offset int, refresh time.Duration) (*Bus, error) {
	if len(coords) == 0 {
		return nil, fmt.Errorf("simulator: route %q has no coordinates", route)
	}
	if refresh <= 0 {
		refresh = DefaultRefreshTimeout
	}
	return &Bus{
		ID:      id,
		Route:   route,
		Refresh: refresh,
		cycle:   Rotate(coords, offset),
	}, nil
}

// NewRandomBus places a bus on coords at an offset drawn uniformly from rng.
func NewRandomBus(id, route string, coords []position.Coordinate, refresh time.Duration, rng *rand.Rand) (*Bus, error) {
	if len(coords) == 0 {
		return nil, fmt.Errorf("simulator: route %q has no coordinates", route)
	}
	return NewBus(id, route, coords, rng.IntN(len(coords)), refresh)
}

// Next returns the coordinate for this tick and advances the bus.
func (b *Bus) Next() position.Coordinate {
	c := b.cycle[b.next]
	b.next = (b.next + 1) % len(b.cycle)
	return c
}

// Report builds the report for the bus's next coordinate.
func (b *Bus) Report() position.Report {
	return position.NewReport(b.ID, b.Route, b.Next())
}

// Run sends one report per tick until ctx is done. A full queue delays the
// bus; it does not skip coordinates.
func (b *Bus) Run(ctx context.Context, out Sender, logger *slog.Logger) error {
	ticker := time.NewTicker(b.Refresh)
	defer ticker.Stop()

	for {
		msg, err := codec.EncodeReport(b.Report())
		if err != nil {
			return err
		}
		if err := out.Send(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("bus %s: %w", b.ID, err)
		}
		logger.Debug("report queued", "busId", b.ID)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
