package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"bus-tracker/internal/config"
	"bus-tracker/internal/mqttbridge"
	"bus-tracker/internal/observability"
	"bus-tracker/internal/registry"
	"bus-tracker/internal/server"
	"bus-tracker/internal/store"
)

func main() {
	cfg, err := config.LoadHub()
	if err != nil {
		observability.NewLogger(false).Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Verbose)
	logger.Info("Starting bus hub...", "bus_addr", cfg.BusAddr(), "browser_addr", cfg.BrowserAddr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("hub failed", "error", err)
		os.Exit(1)
	}
	logger.Info("hub stopped")
}

func run(ctx context.Context, cfg config.Hub, logger *slog.Logger) error {
	opts := []registry.Option{registry.WithLogger(logger.With("component", "registry"))}

	// Redis antes de los listeners: si está configurado y no responde, no arrancamos
	if cfg.RedisAddr != "" {
		mirror, err := store.NewRedisMirror(ctx, cfg.RedisAddr, 0, cfg.RedisTTL)
		if err != nil {
			return err
		}
		defer mirror.Close()
		opts = append(opts, registry.WithSink(mirror))
		logger.Info("redis mirror enabled", "addr", cfg.RedisAddr)
	}
	reg := registry.New(opts...)

	busLis, err := server.Listen(cfg.BusAddr())
	if err != nil {
		return err
	}
	browserLis, err := server.Listen(cfg.BrowserAddr())
	if err != nil {
		_ = busLis.Close()
		return err
	}
	var healthLis net.Listener
	if cfg.GRPCHealthPort != "" {
		if healthLis, err = server.Listen(":" + cfg.GRPCHealthPort); err != nil {
			_ = busLis.Close()
			_ = browserLis.Close()
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Serve(ctx, busLis, server.NewIngestHandler(reg, logger), logger.With("endpoint", "bus"))
	})
	g.Go(func() error {
		return server.Serve(ctx, browserLis, server.NewViewerHandler(reg, cfg.RefreshInterval, logger), logger.With("endpoint", "browser"))
	})
	g.Go(func() error { return observability.ServeMetrics(ctx, cfg.MetricsPort, logger) })

	if healthLis != nil {
		hs := observability.NewHealthServer(logger)
		hs.MarkServing()
		g.Go(func() error { return hs.Serve(ctx, healthLis) })
	}

	if cfg.MQTTBroker != "" {
		bridge := mqttbridge.New(reg, cfg.MQTTTopic, logger)
		g.Go(func() error { return bridge.Run(ctx, cfg.MQTTBroker, "bus-hub") })
	}

	return g.Wait()
}
