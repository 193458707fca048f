package main

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"bus-tracker/internal/config"
	"bus-tracker/internal/link"
	"bus-tracker/internal/observability"
	"bus-tracker/internal/routes"
	"bus-tracker/internal/simulator"
)

func main() {
	cfg, err := config.LoadFakeBus()
	if err != nil {
		observability.NewLogger(false).Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Verbose)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fake bus failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.FakeBus, logger *slog.Logger) error {
	rts, err := routes.LoadDir(cfg.RoutesPath)
	if err != nil {
		return err
	}

	seed := uint64(cfg.Seed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	pool, err := link.NewPool(cfg.Server, cfg.WebsocketsNumber, cfg.QueueSize,
		link.FixedBackoff(cfg.ReconnectBackoff), websocket.DefaultDialer, logger)
	if err != nil {
		return err
	}
	fleet, err := simulator.NewFleet(rts, simulator.FleetConfig{
		EmulatorID:    cfg.EmulatorID,
		RoutesNumber:  cfg.RoutesNumber,
		BusesPerRoute: cfg.BusesPerRoute,
		Refresh:       cfg.RefreshTimeout,
	}, pool, rng, logger)
	if err != nil {
		return err
	}

	logger.Info("Starting fake buses...",
		"server", cfg.Server,
		"buses", len(fleet.Assignments),
		"websockets", pool.Size(),
		"emulator_id", cfg.EmulatorID,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(ctx) })
	g.Go(func() error { return fleet.Run(ctx) })
	g.Go(func() error { return observability.ServeMetrics(ctx, cfg.MetricsPort, logger) })
	return g.Wait()
}
