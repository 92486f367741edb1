package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestBus_DeliversInEmissionOrder(t *testing.T) {
	// GOAL: handlers see events in the order they were emitted
	//
	// TEST SCENARIO: emit three events, close the bus → the type handler and the catch-all see all three in order

	bus := NewBus(16, quietLogger())

	var typed, all []string
	bus.On(RSSIChanged, func(e Event) { typed = append(typed, e.Address) })
	bus.OnAll(func(e Event) { all = append(all, string(e.Type)+":"+e.Address) })

	bus.Emit(Event{Type: RSSIChanged, Address: "A"})
	bus.Emit(Event{Type: DeviceFound, Address: "B"})
	bus.Emit(Event{Type: RSSIChanged, Address: "C"})
	bus.Close()

	assert.Equal(t, []string{"A", "C"}, typed, "type handler MUST only see its own type")
	assert.Equal(t, []string{"rssi_changed:A", "device_found:B", "rssi_changed:C"}, all)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(16, quietLogger())

	var mu sync.Mutex
	count := 0
	unsubscribe := bus.On(Connected, func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	got := make(chan struct{}, 1)
	bus.On(Connected, func(Event) { got <- struct{}{} })

	bus.Emit(Event{Type: Connected})
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("event was not delivered")
	}

	unsubscribe()
	bus.Emit(Event{Type: Connected})
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, count, "unsubscribed handler MUST NOT receive further events")
}

func TestBus_RecoversHandlerPanic(t *testing.T) {
	bus := NewBus(4, quietLogger())

	var delivered []Type
	bus.OnAll(func(e Event) {
		if e.Type == ErrorOccurred {
			panic("boom")
		}
		delivered = append(delivered, e.Type)
	})

	bus.Emit(Event{Type: ErrorOccurred})
	bus.Emit(Event{Type: Ready})
	bus.Close()

	assert.Equal(t, []Type{Ready}, delivered, "delivery MUST continue after a handler panic")
}

func TestBus_EmitNeverBlocks(t *testing.T) {
	// GOAL: a slow consumer cannot stall the producer
	//
	// TEST SCENARIO: block the handler, emit far more discovery RSSI events than the capacity → Emit returns, drops are counted

	bus := NewBus(2, quietLogger())

	release := make(chan struct{})
	bus.OnAll(func(Event) { <-release })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Emit(Event{Type: RSSIChanged, Source: SourceDiscovery, RSSI: -i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit MUST NOT block on a stalled consumer")
	}

	close(release)
	bus.Close()
	assert.Greater(t, bus.Dropped(), int64(0), "overflowing events MUST be counted as dropped")
}

func TestBus_SlowHandlerLosesOnlyDiscoveryRSSI(t *testing.T) {
	// GOAL: a stalled handler never costs a state or value event; only discovery RSSI may be shed
	//
	// TEST SCENARIO: capacity 4, handler blocked, 20 DeviceFound interleaved with discovery and link RSSI
	//                → all 20 DeviceFound and all link RSSI delivered in order, discovery RSSI partly dropped

	bus := NewBus(4, quietLogger())

	entered := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var found []string
	links := 0
	bus.On(Ready, func(Event) {
		close(entered)
		<-release
	})
	bus.OnAll(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case e.Type == DeviceFound:
			found = append(found, e.Address)
		case e.Type == RSSIChanged && e.Source == SourceLink:
			links++
		}
	})

	bus.Emit(Event{Type: Ready})
	select {
	case <-entered:
	case <-time.After(time.Second):
		t.Fatal("blocking handler was never invoked")
	}

	var want []string
	for i := 0; i < 20; i++ {
		addr := fmt.Sprintf("00:00:00:00:00:%02X", i)
		want = append(want, addr)
		bus.Emit(Event{Type: DeviceFound, Address: addr})
		bus.Emit(Event{Type: RSSIChanged, Source: SourceDiscovery, Address: addr, RSSI: -60})
		bus.Emit(Event{Type: RSSIChanged, Source: SourceLink, Address: addr, RSSI: -50})
	}
	assert.Equal(t, 40, bus.Pending(), "lossless events MUST grow the queue past its capacity")
	assert.Equal(t, int64(20), bus.Dropped(), "discovery RSSI MUST be shed once the queue is full")

	close(release)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, want, found, "every DeviceFound MUST be delivered, in order")
	assert.Equal(t, 20, links, "link RSSI MUST NOT be dropped")
}

func TestBus_EmitAfterCloseIsDiscarded(t *testing.T) {
	bus := NewBus(4, quietLogger())
	bus.Close()

	assert.NotPanics(t, func() { bus.Emit(Event{Type: Ready}) })
	assert.NotPanics(t, bus.Close, "Close MUST be idempotent")
}

func TestEvent_MarshalJSON(t *testing.T) {
	e := Event{
		Type:           ValueRead,
		Address:        "AA:BB:CC:DD:EE:FF",
		Characteristic: "00002a19-0000-1000-8000-00805f9b34fb",
		Value:          codec.Reading{Int: 57},
		Err:            errors.New("late"),
		Timestamp:      time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	data, err := json.Marshal(e)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "value_read", decoded["type"])
	assert.Equal(t, "late", decoded["error"])
	assert.Equal(t, float64(57), decoded["value"].(map[string]any)["int"])
	assert.NotContains(t, decoded, "rssi", "zero RSSI MUST be omitted")
}

func TestParseType(t *testing.T) {
	typ, err := ParseType("value_changed")
	require.NoError(t, err)
	assert.Equal(t, ValueChanged, typ)

	_, err = ParseType("nope")
	assert.Error(t, err)
}
