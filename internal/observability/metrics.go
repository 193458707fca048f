package observability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

/* =======================================================================
                              HUB
======================================================================= */

var (
	BusConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_bus_connections_total",
		Help: "Producer connections accepted",
	})
	BrowserConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_browser_connections_total",
		Help: "Viewer connections accepted",
	})
	ActiveSessions = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "hub_active_sessions",
		Help: "Open connections per endpoint",
	}, []string{"endpoint"})
	ReportsRecv = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_reports_received_total",
		Help: "Position reports stored in the registry, by transport",
	}, []string{"transport"})
	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hub_protocol_errors_total",
		Help: "Malformed messages answered with an Errors message",
	}, []string{"endpoint"})
	BusesTracked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hub_buses_tracked",
		Help: "Buses currently held in the registry",
	})
	BroadcastLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hub_broadcast_latency_seconds",
		Help:    "Snapshot, filter and send time per viewer broadcast",
		Buckets: prometheus.DefBuckets,
	})
	RedisSetErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hub_redis_set_errors_total",
		Help: "Failed writes of positions to Redis",
	})
)

/* =======================================================================
                            FAKE BUS
======================================================================= */

var (
	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fakebus_messages_sent_total",
		Help: "Messages written to the hub, by pool slot",
	}, []string{"slot"})
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fakebus_reconnects_total",
		Help: "Failed dials or writes that triggered a backoff, by pool slot",
	}, []string{"slot"})
	OpenLinks = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fakebus_open_connections",
		Help: "Pool connections currently open",
	})
)

func ObserveBroadcastLatency(start time.Time) {
	BroadcastLatency.Observe(time.Since(start).Seconds())
}

// NewMetricsServer serves /metrics and /healthz on addr.
func NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}

// ServeMetrics runs the metrics server until ctx is done. An empty port
// disables it.
func ServeMetrics(ctx context.Context, port string, logger *slog.Logger) error {
	if port == "" {
		return nil
	}
	srv := NewMetricsServer(":" + port)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics: listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
