package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-tracker/internal/position"
	"bus-tracker/internal/registry"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "bus:emu-156-0", Key("emu-156-0"))
}

func TestNewRedisMirrorUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	m, err := NewRedisMirror(ctx, "127.0.0.1:1", 0, time.Minute)
	assert.Error(t, err)
	assert.Nil(t, m)
}

// Integration test (requires running Redis)
func TestRedisMirrorIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping integration test")
	}
	ctx := context.Background()

	m, err := NewRedisMirror(ctx, addr, 0, time.Minute)
	require.NoError(t, err)
	defer m.Close()

	sub := m.rdb.Subscribe(ctx, Channel)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	reg := registry.New(registry.WithSink(m))
	want := position.Report{ID: "redis-test", Lat: 55.75, Lng: 37.6, Route: "156"}
	reg.Upsert(ctx, want)

	got, ok, err := m.Last(ctx, want.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	ttl, err := m.rdb.TTL(ctx, Key(want.ID)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, `{"busId":"redis-test","lat":55.75,"lng":37.6,"route":"156"}`, msg.Payload)
	case <-time.After(2 * time.Second):
		t.Fatal("no message on the buses channel")
	}

	_, ok, err = m.Last(ctx, "never-seen")
	require.NoError(t, err)
	assert.False(t, ok)
}
