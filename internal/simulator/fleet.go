package simulator

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/errgroup"

	"bus-tracker/internal/link"
	"bus-tracker/internal/routes"
)

// FleetConfig says how many buses to put on which routes.
type FleetConfig struct {
	EmulatorID    string
	RoutesNumber  int // 0 means every route
	BusesPerRoute int
	Refresh       time.Duration
}

// Assignment pins one bus to the pool slot it writes through.
type Assignment struct {
	Bus  *Bus
	Slot *link.Slot
}

// Fleet is every simulated bus of one emulator.
type Fleet struct {
	Assignments []Assignment
	logger      *slog.Logger
}

// NewFleet creates BusesPerRoute buses on each route, each with a random
// start offset and a random slot, both drawn from rng.
func NewFleet(rts []routes.Route, cfg FleetConfig, pool *link.Pool, rng *rand.Rand, logger *slog.Logger) (*Fleet, error) {
	f := &Fleet{logger: logger.With("component", "simulator")}
	started := 0
	for _, rt := range rts {
		if cfg.RoutesNumber > 0 && started == cfg.RoutesNumber {
			break
		}
		for i := 0; i < cfg.BusesPerRoute; i++ {
			bus, err := NewRandomBus(BusID(cfg.EmulatorID, rt.Name, i), rt.Name, rt.Coordinates, cfg.Refresh, rng)
			if err != nil {
				return nil, err
			}
			f.Assignments = append(f.Assignments, Assignment{Bus: bus, Slot: pool.Assign(rng)})
		}
		started++
		f.logger.Debug("run route", "route", rt.Name)
	}
	f.logger.Debug("run routes number", "routes", started)
	return f, nil
}

// Run drives every bus until ctx is done.
func (f *Fleet) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, a := range f.Assignments {
		g.Go(func() error { return a.Bus.Run(ctx, a.Slot, f.logger) })
	}
	return g.Wait()
}
