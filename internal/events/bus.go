// Package events delivers engine events to consumers without ever blocking
// the producer.
package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/groutine"
	"github.com/srg/blecentral/internal/ringchan"
)

// Handler is a callback for events.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus queues emitted events and invokes registered handlers from a single
// delivery goroutine, in emission order.
//
// The queue keeps every event. Once it holds capacity events, discovery
// RssiChanged events are the only ones discarded: the oldest queued one makes
// room, or the incoming one is dropped when none is queued. Other events
// grow the queue past capacity.
type Bus struct {
	logger *logrus.Logger

	mu     sync.RWMutex
	byType map[Type][]subscription
	all    []subscription
	nextID uint64

	queueMu  sync.Mutex
	queue    []Event
	capacity int
	closed   bool
	wake     *ringchan.Channel[struct{}]
	dropped  atomic.Int64
	done     chan struct{}
}

// NewBus creates a bus with the given queue capacity and starts delivery.
func NewBus(capacity int, logger *logrus.Logger) *Bus {
	if logger == nil {
		logger = logrus.New()
	}
	if capacity <= 0 {
		capacity = 256
	}

	b := &Bus{
		logger:   logger,
		byType:   make(map[Type][]subscription),
		capacity: capacity,
		wake:     ringchan.New[struct{}](1),
		done:     make(chan struct{}),
	}
	groutine.Go(context.Background(), "event-delivery", b.deliver)
	return b
}

// On registers a handler for a specific event type.
// Returns an unsubscribe function.
func (b *Bus) On(t Type, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.byType[t] = append(b.byType[t], subscription{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.byType[t] = remove(b.byType[t], id)
	}
}

// OnAll registers a handler that receives all events.
// Returns an unsubscribe function.
func (b *Bus) OnAll(h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.all = append(b.all, subscription{id: id, handler: h})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.all = remove(b.all, id)
	}
}

// Emit queues an event for delivery. It never blocks. Events emitted after
// Close are discarded.
func (b *Bus) Emit(e Event) {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	if b.closed {
		return
	}

	if len(b.queue) >= b.capacity && !b.dropDiscoveryRSSI() && isDiscoveryRSSI(e) {
		b.dropped.Add(1)
		b.logger.WithField("address", e.Address).Debug("Event queue full, discovery RSSI dropped")
		return
	}
	b.queue = append(b.queue, e)
	b.wake.Push(struct{}{})
}

// dropDiscoveryRSSI removes the oldest queued discovery RssiChanged event.
func (b *Bus) dropDiscoveryRSSI() bool {
	for i, queued := range b.queue {
		if isDiscoveryRSSI(queued) {
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			b.dropped.Add(1)
			return true
		}
	}
	return false
}

func isDiscoveryRSSI(e Event) bool {
	return e.Type == RSSIChanged && e.Source == SourceDiscovery
}

// Close stops accepting events, delivers what is already queued and waits
// for the delivery goroutine to exit.
func (b *Bus) Close() {
	b.queueMu.Lock()
	if !b.closed {
		b.closed = true
		b.wake.Close()
	}
	b.queueMu.Unlock()
	<-b.done
}

// Dropped returns the number of discovery RSSI events discarded because the
// queue was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Pending returns the number of queued, undelivered events.
func (b *Bus) Pending() int {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	return len(b.queue)
}

func (b *Bus) take() []Event {
	b.queueMu.Lock()
	defer b.queueMu.Unlock()
	batch := b.queue
	b.queue = nil
	return batch
}

func (b *Bus) deliver(_ context.Context) {
	defer close(b.done)
	for {
		_, open := b.wake.Pop()
		for batch := b.take(); len(batch) > 0; batch = b.take() {
			for _, e := range batch {
				b.dispatch(e)
			}
		}
		if !open {
			return
		}
	}
}

func (b *Bus) dispatch(e Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.byType[e.Type])+len(b.all))
	for _, s := range b.byType[e.Type] {
		handlers = append(handlers, s.handler)
	}
	for _, s := range b.all {
		handlers = append(handlers, s.handler)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.WithFields(logrus.Fields{
						"type":  e.Type,
						"panic": r,
					}).Error("Event handler panic")
				}
			}()
			h(e)
		}()
	}
}

func remove(subs []subscription, id uint64) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}
