// Package central coordinates a callback-driven BLE radio into a queryable
// session: discovery and ranking, connection lifecycle, the service catalog
// and GATT operations.
//
// Every radio callback and every consumer request runs on one dispatch
// goroutine. Requests return their immediate acceptance or rejection;
// outcomes arrive later as events.
package central

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/events"
	"github.com/srg/blecentral/internal/groutine"
	"github.com/srg/blecentral/internal/radio"
	"github.com/srg/blecentral/internal/registry"
)

// Options tune a Central.
type Options struct {
	// RSSIDelay is the coalescing window for discovery RSSI events.
	RSSIDelay time.Duration
	// EventBuffer is the capacity of the event queue.
	EventBuffer int
	// AllowDuplicates reports every advertisement, not only the first per device.
	AllowDuplicates bool
	// Filter restricts which advertisements enter the registry.
	Filter registry.Filter
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		RSSIDelay:       time.Second,
		EventBuffer:     256,
		AllowDuplicates: true,
	}
}

const inboxSize = 1024

// Central is the BLE central-role engine.
type Central struct {
	logger   *logrus.Logger
	opts     Options
	radio    radio.Radio
	disabled error

	registry *registry.Registry
	conns    *hashmap.Map[string, *connection]
	bus      *events.Bus

	inbox     chan func()
	done      chan struct{}
	loopDone  <-chan struct{}
	closeOnce sync.Once
	now       func() time.Time

	// owned by the dispatch loop
	scanning   bool
	scanGen    uint64
	rssiTimers map[string]*time.Timer
}

// New creates a Central on the radio built by factory.
//
// When the factory fails the returned Central is still usable for event
// registration and Close, but every radio operation fails with an error
// matching device.ErrAdapterUnavailable; that same error is returned here.
func New(factory radio.Factory, opts Options, logger *logrus.Logger) (*Central, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.RSSIDelay < 0 {
		opts.RSSIDelay = 0
	}

	c := &Central{
		logger:     logger,
		opts:       opts,
		registry:   registry.New(opts.Filter, logger),
		conns:      hashmap.New[string, *connection](),
		bus:        events.NewBus(opts.EventBuffer, logger),
		inbox:      make(chan func(), inboxSize),
		done:       make(chan struct{}),
		now:        time.Now,
		rssiTimers: make(map[string]*time.Timer),
	}
	c.loopDone = groutine.Go(context.Background(), "central-dispatch", c.run)

	if factory == nil {
		c.disabled = fmt.Errorf("%w: no radio backend configured", device.ErrAdapterUnavailable)
		return c, c.disabled
	}

	r, err := factory(&radioHandler{c: c}, logger)
	if err != nil {
		if !errors.Is(err, device.ErrAdapterUnavailable) {
			err = fmt.Errorf("%w: %w", device.ErrAdapterUnavailable, err)
		}
		c.disabled = err
		logger.WithError(err).Error("BLE adapter unavailable, central disabled")
		return c, c.disabled
	}
	c.radio = r
	return c, nil
}

// Err reports the permanent failure of a disabled Central, or nil.
func (c *Central) Err() error {
	return c.disabled
}

func (c *Central) run(_ context.Context) {
	for {
		select {
		case fn := <-c.inbox:
			fn()
		case <-c.done:
			return
		}
	}
}

// post queues fn on the dispatch loop. Dropped once the Central is closed.
func (c *Central) post(fn func()) {
	select {
	case c.inbox <- fn:
	case <-c.done:
	}
}

// do runs fn on the dispatch loop and waits for its result.
func (c *Central) do(fn func() error) error {
	reply := make(chan error, 1)
	select {
	case c.inbox <- func() { reply <- fn() }:
	case <-c.done:
		return device.ErrClosed
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return device.ErrClosed
	}
}

func (c *Central) usable() error {
	if c.disabled != nil {
		return c.disabled
	}
	select {
	case <-c.done:
		return device.ErrClosed
	default:
		return nil
	}
}

// On registers a handler for one event type. Returns an unsubscribe function.
func (c *Central) On(t events.Type, h events.Handler) func() {
	return c.bus.On(t, h)
}

// OnAll registers a handler for every event. Returns an unsubscribe function.
func (c *Central) OnAll(h events.Handler) func() {
	return c.bus.OnAll(h)
}

// Registry exposes the discovered-device registry.
func (c *Central) Registry() *registry.Registry {
	return c.registry
}

// Devices returns discovered peripherals ranked by RSSI.
func (c *Central) Devices() []registry.Peripheral {
	return c.registry.Sorted()
}

// State returns the lifecycle state for an address.
func (c *Central) State(address string) State {
	conn, ok := c.conns.Get(device.NormalizeAddress(address))
	if !ok {
		return Disconnected
	}
	return conn.State()
}

// IsConnected reports whether the address has an established link.
func (c *Central) IsConnected(address string) bool {
	return c.State(address) >= Connected
}

// Connections lists the addresses with a connection entry, sorted.
func (c *Central) Connections() []string {
	var out []string
	c.conns.Range(func(addr string, _ *connection) bool {
		out = append(out, addr)
		return true
	})
	sort.Strings(out)
	return out
}

// Services returns a snapshot of the discovered service tree.
func (c *Central) Services(address string) ([]ServiceView, error) {
	var views []ServiceView
	err := c.do(func() error {
		conn, err := c.connectionFor(address)
		if err != nil {
			return err
		}
		if conn.catalog == nil {
			return device.NewConnectionError(device.NotReady, "%s: services not discovered", conn.address)
		}
		views = conn.catalog.snapshot()
		return nil
	})
	return views, err
}

// CachedValue returns the last value seen for a characteristic.
func (c *Central) CachedValue(address, serviceUUID, charUUID string) (codec.Reading, error) {
	var reading codec.Reading
	err := c.do(func() error {
		conn, err := c.connectionFor(address)
		if err != nil {
			return err
		}
		if conn.catalog == nil {
			return device.NewConnectionError(device.NotReady, "%s: services not discovered", conn.address)
		}
		ch, err := conn.catalog.Lookup(serviceUUID, charUUID)
		if err != nil {
			return err
		}
		reading, err = ch.Value()
		return err
	})
	return reading, err
}

// LinkRSSI returns the last RSSI read over the connection.
func (c *Central) LinkRSSI(address string) (int, error) {
	var rssi int
	err := c.do(func() error {
		conn, err := c.connectionFor(address)
		if err != nil {
			return err
		}
		if !conn.rssiKnown {
			return fmt.Errorf("%w: no link RSSI read from %s", device.ErrValueUnavailable, conn.address)
		}
		rssi = conn.rssi
		return nil
	})
	return rssi, err
}

// Close stops scanning, drops every connection, closes the radio and stops
// event delivery after the queued events are handled.
func (c *Central) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.radio != nil {
			_ = c.do(func() error {
				if c.scanning {
					_ = c.radio.StopScan()
					c.scanning = false
				}
				c.cancelRSSITimers()
				c.conns.Range(func(_ string, conn *connection) bool {
					if derr := c.radio.Disconnect(conn.address); derr != nil {
						c.logger.WithError(derr).WithField("address", conn.address).Debug("Disconnect on close failed")
					}
					c.dropConnection(conn, nil)
					return true
				})
				return nil
			})
			err = c.radio.Close()
		}

		close(c.done)
		<-c.loopDone
		c.bus.Close()
		c.logger.Info("Central closed")
	})
	return err
}

func (c *Central) connectionFor(address string) (*connection, error) {
	key := device.NormalizeAddress(address)
	conn, ok := c.conns.Get(key)
	if !ok {
		return nil, device.NewConnectionError(device.NotConnected, "%s", key)
	}
	return conn, nil
}

// event builds an event stamped with the current time and the peripheral's
// advertised name.
func (c *Central) event(t events.Type, address string) events.Event {
	e := events.Event{Type: t, Address: address, Timestamp: c.now()}
	if p, ok := c.registry.Get(address); ok {
		e.Name = p.Name
	}
	return e
}

func (c *Central) emitError(address string, ch *Characteristic, err error) {
	e := c.event(events.ErrorOccurred, address)
	e.Err = err
	if ch != nil {
		e.Service = device.CanonicalUUID(ch.Service)
		e.Characteristic = device.CanonicalUUID(ch.UUID)
	}
	c.logger.WithFields(logrus.Fields{
		"address": address,
		"error":   err,
	}).Warn("Operation failed")
	c.bus.Emit(e)
}
