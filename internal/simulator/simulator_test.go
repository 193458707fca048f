package simulator

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-tracker/internal/codec"
	"bus-tracker/internal/link"
	"bus-tracker/internal/position"
	"bus-tracker/internal/routes"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

var triangle = []position.Coordinate{c(0, 0), c(1, 1), c(2, 2)}

func c(lat, lng float64) position.Coordinate {
	return position.Coordinate{Lat: lat, Lng: lng}
}

func TestRotate(t *testing.T) {
	assert.Equal(t, triangle, Rotate(triangle, 0))
	assert.Equal(t, []position.Coordinate{c(1, 1), c(2, 2), c(0, 0)}, Rotate(triangle, 1))
	assert.Equal(t, []position.Coordinate{c(2, 2), c(0, 0), c(1, 1)}, Rotate(triangle, 2))
	assert.Equal(t, Rotate(triangle, 1), Rotate(triangle, 4))
	assert.Nil(t, Rotate(nil, 3))

	rotated := Rotate(triangle, 1)
	rotated[0].Lat = 9
	assert.Equal(t, 1.0, triangle[1].Lat, "the shared route is left alone")
}

func TestBusCyclesFromOffset(t *testing.T) {
	bus, err := NewBus("b", "r", triangle, 1, time.Second)
	require.NoError(t, err)

	want := []position.Coordinate{c(1, 1), c(2, 2), c(0, 0), c(1, 1), c(2, 2), c(0, 0), c(1, 1)}
	for i, w := range want {
		assert.Equal(t, w, bus.Next(), "tick %d", i)
	}
}

func TestBusReport(t *testing.T) {
	bus, err := NewBus("emu-7-0", "7", triangle, 2, time.Second)
	require.NoError(t, err)

	assert.Equal(t, position.Report{ID: "emu-7-0", Lat: 2, Lng: 2, Route: "7"}, bus.Report())
	assert.Equal(t, position.Report{ID: "emu-7-0", Lat: 0, Lng: 0, Route: "7"}, bus.Report())
}

func TestNewBusRejectsEmptyRoute(t *testing.T) {
	_, err := NewBus("b", "empty", nil, 0, time.Second)
	assert.Error(t, err)

	_, err = NewRandomBus("b", "empty", nil, time.Second, rand.New(rand.NewPCG(1, 1)))
	assert.Error(t, err)
}

func TestRandomOffsetIsSeeded(t *testing.T) {
	first := func(seed uint64) position.Coordinate {
		bus, err := NewRandomBus("b", "r", triangle, time.Second, rand.New(rand.NewPCG(seed, seed)))
		require.NoError(t, err)
		return bus.Next()
	}
	assert.Equal(t, first(42), first(42))

	seen := map[position.Coordinate]bool{}
	for seed := uint64(0); seed < 64; seed++ {
		seen[first(seed)] = true
	}
	assert.Len(t, seen, len(triangle), "every offset is reachable")
}

func TestBusID(t *testing.T) {
	assert.Equal(t, "emu-156к-3", BusID("emu", "156к", 3))
}

type chanSender struct {
	ch chan []byte
}

func (s chanSender) Send(ctx context.Context, msg []byte) error {
	select {
	case s.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestRunSendsOneReportPerTick(t *testing.T) {
	bus, err := NewBus("b", "r", triangle, 1, 5*time.Millisecond)
	require.NoError(t, err)

	out := chanSender{ch: make(chan []byte)}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bus.Run(ctx, out, testLogger) }()

	want := []position.Coordinate{c(1, 1), c(2, 2), c(0, 0), c(1, 1)}
	for _, w := range want {
		select {
		case msg := <-out.ch:
			rep, err := codec.DecodeBus(msg)
			require.NoError(t, err)
			assert.Equal(t, position.NewReport("b", "r", w), rep)
		case <-time.After(time.Second):
			t.Fatal("no report")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bus did not stop")
	}
}

func TestRunBlockedSendStopsOnCancel(t *testing.T) {
	bus, err := NewBus("b", "r", triangle, 0, time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	// nobody reads: the bus waits on the queue until the context ends
	assert.NoError(t, bus.Run(ctx, chanSender{ch: make(chan []byte)}, testLogger))
}

func testRoutes() []routes.Route {
	return []routes.Route{
		{Name: "1", Coordinates: triangle},
		{Name: "2", Coordinates: triangle[:2]},
		{Name: "3", Coordinates: triangle[:1]},
	}
}

func TestNewFleet(t *testing.T) {
	pool, err := link.NewPool("ws://127.0.0.1:1/", 2, 0, link.FixedBackoff(time.Second), nil, testLogger)
	require.NoError(t, err)

	fleet, err := NewFleet(testRoutes(), FleetConfig{
		EmulatorID:    "emu",
		BusesPerRoute: 4,
		Refresh:       time.Second,
	}, pool, rand.New(rand.NewPCG(5, 5)), testLogger)
	require.NoError(t, err)
	require.Len(t, fleet.Assignments, 12)

	ids := map[string]bool{}
	for _, a := range fleet.Assignments {
		ids[a.Bus.ID] = true
		assert.Contains(t, pool.Slots(), a.Slot)
	}
	assert.Len(t, ids, 12)
	assert.True(t, ids["emu-2-3"])
}

func TestNewFleetRoutesNumber(t *testing.T) {
	pool, err := link.NewPool("ws://127.0.0.1:1/", 1, 0, link.FixedBackoff(time.Second), nil, testLogger)
	require.NoError(t, err)

	fleet, err := NewFleet(testRoutes(), FleetConfig{
		EmulatorID:    "emu",
		RoutesNumber:  2,
		BusesPerRoute: 1,
		Refresh:       time.Second,
	}, pool, rand.New(rand.NewPCG(5, 5)), testLogger)
	require.NoError(t, err)

	var got []string
	for _, a := range fleet.Assignments {
		got = append(got, a.Bus.Route)
	}
	assert.Equal(t, []string{"1", "2"}, got)
}

func TestFleetRunDeliversThroughSlots(t *testing.T) {
	pool, err := link.NewPool("ws://127.0.0.1:1/", 2, 64, link.FixedBackoff(time.Hour), nil, testLogger)
	require.NoError(t, err)

	fleet, err := NewFleet(testRoutes()[:1], FleetConfig{
		EmulatorID:    "emu",
		BusesPerRoute: 3,
		Refresh:       time.Hour,
	}, pool, rand.New(rand.NewPCG(9, 9)), testLogger)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, fleet.Run(ctx))
	}()

	// first reports go into the buffered queues, then every bus waits for
	// its next tick
	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()
}
