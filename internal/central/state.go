package central

import (
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a connection.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
	ServicesDiscovered
	Ready
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case ServicesDiscovered:
		return "services_discovered"
	case Ready:
		return "ready"
	default:
		return "disconnected"
	}
}

// connection is the per-address session. Everything except state is owned
// by the dispatch loop.
type connection struct {
	address string
	state   atomic.Int32

	catalog      *Catalog
	pending      *pendingOp
	rssi         int
	rssiKnown    bool
	rssiResolved bool
	since        time.Time
}

func newConnection(address string, now time.Time) *connection {
	conn := &connection{address: address, since: now}
	conn.setState(Connecting)
	return conn
}

func (c *connection) State() State {
	return State(c.state.Load())
}

func (c *connection) setState(s State) {
	c.state.Store(int32(s))
}
