// Package event is an in-process publish/subscribe bus for workflow
// notifications such as a settled lookup or a delivered export.
package event

import (
	"log/slog"
	"sync"
	"time"
)

// Type identifies a category of event.
type Type string

// Known event types.
const (
	LookupSettled     Type = "lookup.settled"
	ExportDelivered   Type = "export.delivered"
	ExportFailed      Type = "export.failed"
	ResponseDiscarded Type = "response.discarded"
	InputChanged      Type = "input.changed"
)

// AllTypes lists every known event type.
func AllTypes() []Type {
	return []Type{LookupSettled, ExportDelivered, ExportFailed, ResponseDiscarded, InputChanged}
}

// Event is something that happened in the workflow.
type Event struct {
	Type      Type           `json:"type"`
	Seq       uint64         `json:"seq,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Handler processes an event.
type Handler func(Event)

// Bus fans events out to subscribers from a single goroutine. Publishing
// never blocks; events are dropped with a warning when the buffer is full.
type Bus struct {
	ch     chan Event
	mu     sync.RWMutex
	subs   map[Type][]Handler
	logger *slog.Logger
	done   chan struct{}
	closed bool
}

// NewBus creates a bus with the given buffer size (256 when <= 0).
func NewBus(logger *slog.Logger, bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		ch:     make(chan Event, bufSize),
		subs:   make(map[Type][]Handler),
		logger: logger.With(slog.String("component", "event-bus")),
		done:   make(chan struct{}),
	}
}

// Subscribe registers h for events of type t.
func (b *Bus) Subscribe(t Type, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], h)
}

// SubscribeAll registers h for every known event type.
func (b *Bus) SubscribeAll(h Handler) {
	for _, t := range AllTypes() {
		b.Subscribe(t, h)
	}
}

// Publish queues e for dispatch. Events published after Stop are dropped.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return
	}
	select {
	case b.ch <- e:
	default:
		b.logger.Warn("event bus full, dropping event", "type", string(e.Type))
	}
}

// Start dispatches queued events until Stop is called, then drains what is
// left. Run it in its own goroutine.
func (b *Bus) Start() {
	for {
		select {
		case e := <-b.ch:
			b.dispatch(e)
		case <-b.done:
			for {
				select {
				case e := <-b.ch:
					b.dispatch(e)
				default:
					return
				}
			}
		}
	}
}

// Stop signals Start to drain and return. Safe to call more than once.
func (b *Bus) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.done)
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := b.subs[e.Type]
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", "type", string(e.Type), "panic", r)
				}
			}()
			h(e)
		}()
	}
}
