//go:build test

package testutils

import (
	"sync"
	"time"

	"github.com/srg/blecentral/internal/events"
)

// EventSource is anything events can be subscribed on.
type EventSource interface {
	OnAll(h events.Handler) func()
}

// EventRecorder keeps every event delivered by a source and lets tests wait
// for specific ones.
type EventRecorder struct {
	mu      sync.Mutex
	cond    *sync.Cond
	seen    []events.Event
	cursors map[events.Type]int
	stop    func()
}

// NewEventRecorder subscribes to every event of src.
func NewEventRecorder(src EventSource) *EventRecorder {
	r := &EventRecorder{cursors: make(map[events.Type]int)}
	r.cond = sync.NewCond(&r.mu)
	r.stop = src.OnAll(func(e events.Event) {
		r.mu.Lock()
		r.seen = append(r.seen, e)
		r.mu.Unlock()
		r.cond.Broadcast()
	})
	return r
}

// Stop unsubscribes the recorder.
func (r *EventRecorder) Stop() {
	r.stop()
}

// WaitFor returns the next not yet consumed event of type t. Each type is
// consumed independently. Returns false on timeout.
func (r *EventRecorder) WaitFor(t events.Type, timeout time.Duration) (events.Event, bool) {
	deadline := time.Now().Add(timeout)
	timer := time.AfterFunc(timeout, func() {
		r.mu.Lock()
		r.cond.Broadcast()
		r.mu.Unlock()
	})
	defer timer.Stop()

	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		for i := r.cursors[t]; i < len(r.seen); i++ {
			if r.seen[i].Type == t {
				r.cursors[t] = i + 1
				return r.seen[i], true
			}
		}
		if !time.Now().Before(deadline) {
			return events.Event{}, false
		}
		r.cond.Wait()
	}
}

// All returns a copy of every event recorded so far.
func (r *EventRecorder) All() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.seen...)
}

// Count returns how many events of type t were recorded.
func (r *EventRecorder) Count(t events.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.seen {
		if e.Type == t {
			n++
		}
	}
	return n
}

// Settle waits until no event has arrived for quiet, or until max elapses.
func (r *EventRecorder) Settle(quiet, max time.Duration) {
	deadline := time.Now().Add(max)
	last := -1
	for time.Now().Before(deadline) {
		r.mu.Lock()
		n := len(r.seen)
		r.mu.Unlock()
		if n == last {
			return
		}
		last = n
		time.Sleep(quiet)
	}
}
