// Package ringchan provides a bounded channel that never blocks its
// producers: when the buffer is full the oldest element is discarded.
package ringchan

import "sync/atomic"

// Channel is a bounded channel-like buffer with overwrite-oldest semantics.
//
// Producers call Push or TryPush; consumers either range over C() or use
// Pop/TryPop when they want the Delivered counter maintained.
//
//	rc := ringchan.New[int](3)
//	for i := 0; i < 10; i++ {
//	    rc.Push(i)
//	}
//	rc.Close()
//	for v := range rc.C() {
//	    fmt.Println(v) // 7, 8, 9
//	}
type Channel[T any] struct {
	ch    chan T
	stats Stats
}

// New creates a Channel with the given capacity.
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &Channel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
//
// Reads from the returned channel are not counted in Stats.Delivered.
func (c *Channel[T]) C() <-chan T {
	return c.ch
}

// Push inserts v, discarding the oldest element when the buffer is full.
// Reports whether an element was discarded. Push never blocks as long as
// the channel has a single producer or producers are serialized by the caller.
func (c *Channel[T]) Push(v T) (dropped bool) {
	for {
		select {
		case c.ch <- v:
			c.stats.accepted.Add(1)
			return dropped
		default:
		}

		select {
		case <-c.ch:
			c.stats.dropped.Add(1)
			dropped = true
		default:
		}
	}
}

// TryPush inserts v only if there is room. Returns false when the buffer is full.
func (c *Channel[T]) TryPush(v T) bool {
	select {
	case c.ch <- v:
		c.stats.accepted.Add(1)
		return true
	default:
		return false
	}
}

// Pop blocks until a value is available or the channel is closed.
func (c *Channel[T]) Pop() (v T, ok bool) {
	v, ok = <-c.ch
	if ok {
		c.stats.delivered.Add(1)
	}
	return
}

// TryPop attempts a non-blocking receive.
func (c *Channel[T]) TryPop() (v T, ok bool) {
	select {
	case v, ok = <-c.ch:
		if ok {
			c.stats.delivered.Add(1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (c *Channel[T]) Len() int {
	return len(c.ch)
}

// Cap returns the channel capacity.
func (c *Channel[T]) Cap() int {
	return cap(c.ch)
}

// Close closes the underlying channel. Push after Close panics.
func (c *Channel[T]) Close() {
	close(c.ch)
}

// Snapshot returns the current counter values.
func (c *Channel[T]) Snapshot() Snapshot {
	return Snapshot{
		Accepted:  c.stats.accepted.Load(),
		Dropped:   c.stats.dropped.Load(),
		Delivered: c.stats.delivered.Load(),
	}
}

// Stats holds lock-free counters for a Channel.
type Stats struct {
	accepted  atomic.Int64
	dropped   atomic.Int64
	delivered atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Accepted  int64
	Dropped   int64
	Delivered int64
}
