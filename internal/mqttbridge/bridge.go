// Package mqttbridge feeds position reports published on an MQTT broker into
// the registry, next to the WebSocket ingestion endpoint.
package mqttbridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"bus-tracker/internal/codec"
	"bus-tracker/internal/observability"
	"bus-tracker/internal/registry"
)

const connectTimeout = 10 * time.Second

// Bridge subscribes to a topic filter and upserts every valid report. MQTT
// has no reply path, so malformed payloads are only logged and counted.
type Bridge struct {
	Registry *registry.Registry
	Topic    string
	logger   *slog.Logger
}

func New(reg *registry.Registry, topic string, logger *slog.Logger) *Bridge {
	return &Bridge{Registry: reg, Topic: topic, logger: logger.With("component", "mqtt")}
}

// HandlePayload decodes and stores one message.
func (b *Bridge) HandlePayload(ctx context.Context, topic string, payload []byte) error {
	rep, err := codec.DecodeBus(payload)
	if err != nil {
		observability.ProtocolErrors.WithLabelValues("mqtt").Inc()
		b.logger.Debug("bad report", "topic", topic, "err", err)
		return err
	}
	b.Registry.Upsert(ctx, rep)
	observability.ReportsRecv.WithLabelValues("mqtt").Inc()
	observability.BusesTracked.Set(float64(b.Registry.Len()))
	return nil
}

// Run connects to broker, subscribes on every (re)connect and blocks until
// ctx is done.
func (b *Bridge) Run(ctx context.Context, broker, clientID string) error {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(3 * time.Second)

	opts.SetOnConnectHandler(func(c mqtt.Client) {
		token := c.Subscribe(b.Topic, 0, func(_ mqtt.Client, m mqtt.Message) {
			_ = b.HandlePayload(ctx, m.Topic(), m.Payload())
		})
		if token.WaitTimeout(connectTimeout) && token.Error() != nil {
			b.logger.Error("subscribe failed", "topic", b.Topic, "err", token.Error())
			return
		}
		b.logger.Info("subscribed", "broker", broker, "topic", b.Topic)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		b.logger.Warn("connection lost, reconnecting", "err", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		b.logger.Warn("broker not reachable yet, retrying in background", "broker", broker)
	} else if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect %s: %w", broker, err)
	}

	<-ctx.Done()
	client.Disconnect(250)
	return nil
}
