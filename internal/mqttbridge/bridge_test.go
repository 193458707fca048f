package mqttbridge

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-tracker/internal/codec"
	"bus-tracker/internal/position"
	"bus-tracker/internal/registry"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestHandlePayload(t *testing.T) {
	reg := registry.New()
	b := New(reg, "buses/+/position", testLogger)
	ctx := context.Background()

	require.NoError(t, b.HandlePayload(ctx, "buses/a/position", []byte(`{"busId": "a", "lat": 1, "lng": 2, "route": "r"}`)))
	got, ok := reg.Get("a")
	require.True(t, ok)
	assert.Equal(t, position.Report{ID: "a", Lat: 1, Lng: 2, Route: "r"}, got)

	err := b.HandlePayload(ctx, "buses/x/position", []byte(`garbage`))
	pe, ok := codec.AsProtocolError(err)
	require.True(t, ok)
	assert.Equal(t, []string{codec.ErrRequiresJSON}, pe.Errors)
	assert.Equal(t, 1, reg.Len())
}

// Integration test (requires a running broker)
func TestBridgeIntegration(t *testing.T) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		t.Skip("MQTT_BROKER not set, skipping integration test")
	}

	reg := registry.New()
	b := New(reg, "bus-tracker-test/+/position", testLogger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = b.Run(ctx, broker, "bus-tracker-test-sub") }()

	pub := mqtt.NewClient(mqtt.NewClientOptions().AddBroker(broker).SetClientID("bus-tracker-test-pub"))
	token := pub.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	defer pub.Disconnect(100)

	require.Eventually(t, func() bool {
		pub.Publish("bus-tracker-test/a/position", 0, false, `{"busId": "mqtt-a", "lat": 1, "lng": 2}`).Wait()
		_, ok := reg.Get("mqtt-a")
		return ok
	}, 10*time.Second, 200*time.Millisecond)
}
