package central

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/events"
	"github.com/srg/blecentral/internal/radio"
	"github.com/srg/blecentral/internal/registry"
)

// StartScan clears the registry and (re)starts discovery.
func (c *Central) StartScan() error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.do(func() error {
		c.registry.Clear()
		c.cancelRSSITimers()

		if err := c.radio.StartScan(c.opts.AllowDuplicates); err != nil {
			c.scanning = false
			return err
		}
		c.scanning = true
		c.logger.WithField("allow_duplicates", c.opts.AllowDuplicates).Info("Scan started")
		return nil
	})
}

// StopScan halts discovery. Calling it without an active scan is a no-op.
func (c *Central) StopScan() error {
	if err := c.usable(); err != nil {
		return err
	}
	return c.do(func() error {
		if !c.scanning {
			return nil
		}
		c.scanning = false
		if err := c.radio.StopScan(); err != nil {
			return err
		}
		c.logger.WithField("devices", c.registry.Len()).Info("Scan stopped")
		return nil
	})
}

// Scanning reports whether discovery is active.
func (c *Central) Scanning() bool {
	var scanning bool
	_ = c.do(func() error {
		scanning = c.scanning
		return nil
	})
	return scanning
}

func (c *Central) handleAdvertisement(adv radio.Advertisement) {
	if !c.scanning {
		return
	}

	p, sighting := c.registry.Upsert(adv)
	switch sighting {
	case registry.SightingFiltered:
		return
	case registry.SightingNew:
		e := c.event(events.DeviceFound, p.Address)
		e.RSSI = p.RSSI
		e.Source = events.SourceDiscovery
		c.bus.Emit(e)
	default:
		c.logger.WithFields(logrus.Fields{
			"address": p.Address,
			"rssi":    p.RSSI,
		}).Debug("Device sighted")
	}

	c.scheduleRSSI(p.Address)
}

// scheduleRSSI arms one delayed RssiChanged per address. Sightings inside the
// window only refresh the registry; the event carries the RSSI current when
// the window closes.
func (c *Central) scheduleRSSI(address string) {
	if _, armed := c.rssiTimers[address]; armed {
		return
	}
	gen := c.scanGen
	c.rssiTimers[address] = time.AfterFunc(c.opts.RSSIDelay, func() {
		c.post(func() { c.flushRSSI(address, gen) })
	})
}

func (c *Central) flushRSSI(address string, gen uint64) {
	if gen != c.scanGen {
		return
	}
	delete(c.rssiTimers, address)

	p, ok := c.registry.Get(address)
	if !ok {
		return
	}
	e := c.event(events.RSSIChanged, address)
	e.RSSI = p.RSSI
	e.Source = events.SourceDiscovery
	c.bus.Emit(e)
}

func (c *Central) cancelRSSITimers() {
	c.scanGen++
	for addr, t := range c.rssiTimers {
		t.Stop()
		delete(c.rssiTimers, addr)
	}
}

// DeviceList renders the ranking as comma-joined "address name rssi" triples.
func (c *Central) DeviceList() string {
	return c.registry.DeviceList()
}

// Device returns the peripheral at a 1-based ranking position.
func (c *Central) Device(index int) (registry.Peripheral, bool) {
	return c.registry.At(index)
}

// Peripheral returns the registry entry for an address.
func (c *Central) Peripheral(address string) (registry.Peripheral, bool) {
	return c.registry.Get(device.NormalizeAddress(address))
}
