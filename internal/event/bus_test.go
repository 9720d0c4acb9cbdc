package event

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// collector records events delivered to it.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.events) >= n {
			out := append([]Event(nil), c.events...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events", n)
	return nil
}

func TestPublishSubscribe(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	var c collector
	bus.Subscribe(LookupSettled, c.handle)

	bus.Publish(Event{Type: LookupSettled, Seq: 3, Data: map[string]any{"results": 2}})

	got := c.waitFor(t, 1)
	if got[0].Seq != 3 {
		t.Errorf("Seq = %d, want 3", got[0].Seq)
	}
	if got[0].Data["results"] != 2 {
		t.Errorf("data[results] = %v, want 2", got[0].Data["results"])
	}
	if got[0].Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	var c collector
	bus.SubscribeAll(c.handle)

	for _, typ := range AllTypes() {
		bus.Publish(Event{Type: typ})
	}
	c.waitFor(t, len(AllTypes()))
}

func TestHandlerPanicRecovered(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	go bus.Start()
	defer bus.Stop()

	var c collector
	bus.Subscribe(ExportFailed, func(Event) { panic("boom") })
	bus.Subscribe(ExportFailed, c.handle)

	bus.Publish(Event{Type: ExportFailed})
	c.waitFor(t, 1)
}

func TestPublishFullBufferDrops(t *testing.T) {
	bus := NewBus(testLogger(), 1)
	// Not started: the second publish must not block.
	bus.Publish(Event{Type: InputChanged})
	bus.Publish(Event{Type: InputChanged})
	bus.Stop()
}

func TestStopDrainsAndIgnoresLatePublish(t *testing.T) {
	bus := NewBus(testLogger(), 16)
	var c collector
	bus.Subscribe(ExportDelivered, c.handle)

	bus.Publish(Event{Type: ExportDelivered})
	bus.Publish(Event{Type: ExportDelivered})
	bus.Stop()
	bus.Stop()
	bus.Start() // returns after draining

	bus.Publish(Event{Type: ExportDelivered})

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) != 2 {
		t.Errorf("got %d events, want 2", len(c.events))
	}
}
