package central

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/events"
	"github.com/srg/blecentral/internal/radio"
)

// Connect starts connecting to address. The outcome arrives as a Connected,
// Disconnected or ErrorOccurred event.
func (c *Central) Connect(address string) error {
	if err := c.usable(); err != nil {
		return err
	}
	key := device.NormalizeAddress(address)
	if key == "" {
		return fmt.Errorf("%w: empty address", device.ErrInvalidArgument)
	}

	return c.do(func() error {
		if conn, exists := c.conns.Get(key); exists {
			return device.NewConnectionError(device.AlreadyConnecting, "%s is %s", key, conn.State())
		}

		conn := newConnection(key, c.now())
		c.conns.Set(key, conn)
		if err := c.radio.Connect(key); err != nil {
			c.conns.Del(key)
			return err
		}

		c.logger.WithField("address", key).Info("Connecting...")
		return nil
	})
}

// Disconnect drops the connection to address. A pending operation resolves
// with ErrNotConnected.
func (c *Central) Disconnect(address string) error {
	if err := c.usable(); err != nil {
		return err
	}

	return c.do(func() error {
		conn, err := c.connectionFor(address)
		if err != nil {
			return err
		}

		if err := c.radio.Disconnect(conn.address); err != nil && !device.IsConnectionState(err, device.NotConnected) {
			c.logger.WithError(err).WithField("address", conn.address).Warn("Radio disconnect failed")
		}
		c.dropConnection(conn, nil)
		c.logger.WithField("address", conn.address).Info("Disconnected")
		return nil
	})
}

// ReadRSSI requests a fresh link RSSI, delivered as RssiChanged with the
// link source.
func (c *Central) ReadRSSI(address string) error {
	if err := c.usable(); err != nil {
		return err
	}

	return c.do(func() error {
		conn, err := c.connectionFor(address)
		if err != nil {
			return err
		}
		if conn.State() < Connected {
			return device.NewConnectionError(device.NotConnected, "%s is still connecting", conn.address)
		}
		return c.radio.ReadRSSI(conn.address)
	})
}

// dropConnection removes the entry, fails the pending operation and emits
// Disconnected.
func (c *Central) dropConnection(conn *connection, cause error) {
	c.conns.Del(conn.address)
	conn.setState(Disconnected)

	if op := conn.pending; op != nil {
		conn.pending = nil
		c.emitError(conn.address, op.char,
			device.NewConnectionError(device.NotConnected, "%s: %s interrupted by disconnect", conn.address, op.kind))
	}

	e := c.event(events.Disconnected, conn.address)
	e.Err = cause
	c.bus.Emit(e)
}

func (c *Central) handleLinkState(address string, state radio.LinkState, err error) {
	key := device.NormalizeAddress(address)
	conn, ok := c.conns.Get(key)
	if !ok {
		c.logger.WithFields(logrus.Fields{
			"address": key,
			"state":   state,
		}).Debug("Ignoring link state for unknown connection")
		return
	}

	switch state {
	case radio.LinkConnected:
		if conn.State() != Connecting {
			c.logger.WithField("address", key).Warn("Duplicate connected callback ignored")
			return
		}
		c.onLinkUp(conn)

	default:
		wasConnecting := conn.State() == Connecting
		if wasConnecting {
			if err == nil {
				err = device.ErrNotConnected
			}
			c.emitError(key, nil, fmt.Errorf("connection to %s failed: %w", key, err))
		} else {
			c.logger.WithField("address", key).Warn("Link lost")
		}
		c.dropConnection(conn, err)
	}
}

func (c *Central) onLinkUp(conn *connection) {
	conn.setState(Connected)
	conn.since = c.now()
	c.logger.WithField("address", conn.address).Info("Connected")
	c.bus.Emit(c.event(events.Connected, conn.address))

	if err := c.radio.DiscoverServices(conn.address); err != nil {
		c.emitError(conn.address, nil, fmt.Errorf("service discovery failed: %w", err))
	}
	if err := c.radio.ReadRSSI(conn.address); err != nil {
		c.logger.WithError(err).WithField("address", conn.address).Warn("Initial RSSI read failed")
		conn.rssiResolved = true
	}
}

func (c *Central) handleServices(address string, infos []radio.ServiceInfo, err error) {
	conn, ok := c.conns.Get(device.NormalizeAddress(address))
	if !ok || conn.State() < Connected {
		return
	}
	if err != nil {
		c.emitError(conn.address, nil, fmt.Errorf("service discovery failed: %w", err))
		return
	}

	conn.catalog = newCatalog(infos)
	conn.pending = nil
	conn.setState(ServicesDiscovered)
	c.logger.WithFields(logrus.Fields{
		"address":  conn.address,
		"services": len(infos),
	}).Debug("Services discovered")
	c.maybeReady(conn)
}

func (c *Central) handleRSSI(address string, rssi int, err error) {
	conn, ok := c.conns.Get(device.NormalizeAddress(address))
	if !ok {
		return
	}

	if err != nil {
		c.logger.WithError(err).WithField("address", conn.address).Warn("RSSI read failed")
	} else {
		conn.rssi = rssi
		conn.rssiKnown = true
		e := c.event(events.RSSIChanged, conn.address)
		e.RSSI = rssi
		e.Source = events.SourceLink
		c.bus.Emit(e)
	}

	conn.rssiResolved = true
	c.maybeReady(conn)
}

// maybeReady promotes a connection once both the catalog and the initial
// RSSI read are in.
func (c *Central) maybeReady(conn *connection) {
	if conn.State() != ServicesDiscovered || conn.catalog == nil || !conn.rssiResolved {
		return
	}
	conn.setState(Ready)
	c.logger.WithField("address", conn.address).Info("Connection ready")
	c.bus.Emit(c.event(events.Ready, conn.address))
}
