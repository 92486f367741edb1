//go:build linux

package hci

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paypal/gatt"
	"github.com/paypal/gatt/examples/option"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/groutine"
	"github.com/srg/blecentral/internal/radio"
)

// DefaultPowerOnTimeout bounds the wait for the adapter to report powered on.
const DefaultPowerOnTimeout = 5 * time.Second

type hciLink struct {
	address string
	p       gatt.Peripheral
	chars   [][]*gatt.Characteristic
}

// Radio drives a paypal/gatt device.
type Radio struct {
	handler radio.Handler
	logger  *logrus.Logger
	dev     gatt.Device

	mu          sync.Mutex
	peripherals map[string]gatt.Peripheral
	links       map[string]*hciLink
	closed      bool
}

// NewFactory returns a radio.Factory creating HCI radios.
func NewFactory(powerOnTimeout time.Duration) radio.Factory {
	return func(h radio.Handler, logger *logrus.Logger) (radio.Radio, error) {
		return New(h, powerOnTimeout, logger)
	}
}

// New opens the default HCI device and waits for it to power on.
func New(h radio.Handler, powerOnTimeout time.Duration, logger *logrus.Logger) (*Radio, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if powerOnTimeout <= 0 {
		powerOnTimeout = DefaultPowerOnTimeout
	}

	dev, err := gatt.NewDevice(option.DefaultClientOptions...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open HCI device: %v", device.ErrAdapterUnavailable, err)
	}

	r := &Radio{
		handler:     h,
		logger:      logger,
		dev:         dev,
		peripherals: make(map[string]gatt.Peripheral),
		links:       make(map[string]*hciLink),
	}

	dev.Handle(
		gatt.PeripheralDiscovered(r.onDiscovered),
		gatt.PeripheralConnected(r.onConnected),
		gatt.PeripheralDisconnected(r.onDisconnected),
	)

	poweredOn := make(chan struct{})
	var once sync.Once
	if err := dev.Init(func(_ gatt.Device, s gatt.State) {
		logger.WithField("state", s.String()).Debug("HCI device state changed")
		if s == gatt.StatePoweredOn {
			once.Do(func() { close(poweredOn) })
		}
	}); err != nil {
		return nil, fmt.Errorf("%w: failed to init HCI device: %v", device.ErrAdapterUnavailable, err)
	}

	select {
	case <-poweredOn:
	case <-time.After(powerOnTimeout):
		_ = stopDevice(dev)
		return nil, fmt.Errorf("%w: HCI device did not power on within %s", device.ErrAdapterUnavailable, powerOnTimeout)
	}
	return r, nil
}

func (r *Radio) onDiscovered(p gatt.Peripheral, a *gatt.Advertisement, rssi int) {
	key := device.NormalizeAddress(p.ID())

	r.mu.Lock()
	r.peripherals[key] = p
	r.mu.Unlock()

	r.handler.OnAdvertisement(toAdvertisement(p, a, rssi))
}

func (r *Radio) onConnected(p gatt.Peripheral, err error) {
	key := device.NormalizeAddress(p.ID())

	r.mu.Lock()
	l, ok := r.links[key]
	if ok && err != nil {
		delete(r.links, key)
	}
	r.mu.Unlock()

	if !ok {
		r.dev.CancelConnection(p)
		return
	}
	if err != nil {
		r.handler.OnConnectionState(l.address, radio.LinkDisconnected, err)
		return
	}

	r.logger.WithField("address", l.address).Info("BLE device connected")
	r.handler.OnConnectionState(l.address, radio.LinkConnected, nil)
}

func (r *Radio) onDisconnected(p gatt.Peripheral, err error) {
	key := device.NormalizeAddress(p.ID())

	r.mu.Lock()
	l, ok := r.links[key]
	if ok {
		delete(r.links, key)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	r.logger.WithField("address", l.address).Warn("BLE link lost")
	r.handler.OnConnectionState(l.address, radio.LinkDisconnected, err)
}

// StartScan (re)starts discovery.
func (r *Radio) StartScan(allowDuplicates bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return device.ErrClosed
	}
	r.peripherals = make(map[string]gatt.Peripheral)
	r.dev.StopScanning()
	r.dev.Scan([]gatt.UUID{}, allowDuplicates)
	return nil
}

// StopScan halts discovery.
func (r *Radio) StopScan() error {
	r.dev.StopScanning()
	return nil
}

// Connect connects to a peripheral seen during the current scan.
func (r *Radio) Connect(address string) error {
	key := device.NormalizeAddress(address)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return device.ErrClosed
	}
	if _, exists := r.links[key]; exists {
		return device.NewConnectionError(device.AlreadyConnecting, "%s", address)
	}
	p, ok := r.peripherals[key]
	if !ok {
		return &device.NotFoundError{Resource: "device", UUIDs: []string{address}}
	}

	r.links[key] = &hciLink{address: address, p: p}
	groutine.Go(context.Background(), "hci-connect", func(context.Context) {
		r.dev.Connect(p)
	})
	return nil
}

// Disconnect tears the link down. The teardown is not reported back
// through the handler.
func (r *Radio) Disconnect(address string) error {
	key := device.NormalizeAddress(address)

	r.mu.Lock()
	l, ok := r.links[key]
	if ok {
		delete(r.links, key)
	}
	r.mu.Unlock()
	if !ok {
		return device.NewConnectionError(device.NotConnected, "%s", address)
	}

	groutine.Go(context.Background(), "hci-disconnect", func(context.Context) {
		r.dev.CancelConnection(l.p)
	})
	return nil
}

func (r *Radio) link(address string) (*hciLink, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[device.NormalizeAddress(address)]
	if !ok {
		return nil, device.NewConnectionError(device.NotConnected, "%s", address)
	}
	return l, nil
}

// DiscoverServices walks services, characteristics and their descriptors.
func (r *Radio) DiscoverServices(address string) error {
	l, err := r.link(address)
	if err != nil {
		return err
	}

	groutine.Go(context.Background(), "hci-discover", func(context.Context) {
		services, err := l.p.DiscoverServices(nil)
		if err != nil {
			r.handler.OnServicesDiscovered(address, nil, err)
			return
		}

		infos := make([]radio.ServiceInfo, 0, len(services))
		chars := make([][]*gatt.Characteristic, 0, len(services))
		for _, s := range services {
			cs, err := l.p.DiscoverCharacteristics(nil, s)
			if err != nil {
				r.handler.OnServicesDiscovered(address, nil, fmt.Errorf("service %s: %w", s.UUID(), err))
				return
			}
			info := radio.ServiceInfo{UUID: device.NormalizeUUID(s.UUID().String())}
			for _, c := range cs {
				if _, err := l.p.DiscoverDescriptors(nil, c); err != nil {
					r.logger.WithError(err).WithField("char_uuid", c.UUID().String()).Debug("Failed to discover descriptors")
				}
				info.Characteristics = append(info.Characteristics, radio.CharacteristicInfo{
					UUID:       device.NormalizeUUID(c.UUID().String()),
					Properties: properties(c.Properties()),
				})
			}
			infos = append(infos, info)
			chars = append(chars, cs)
		}

		r.mu.Lock()
		l.chars = chars
		r.mu.Unlock()

		r.handler.OnServicesDiscovered(address, infos, nil)
	})
	return nil
}

func (r *Radio) characteristic(address string, ref radio.CharRef) (*hciLink, *gatt.Characteristic, error) {
	l, err := r.link(address)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l.chars == nil {
		return nil, nil, device.ErrNotReady
	}
	if ref.Service < 0 || ref.Service >= len(l.chars) {
		return nil, nil, &device.NotFoundError{Resource: "service"}
	}
	if ref.Char < 0 || ref.Char >= len(l.chars[ref.Service]) {
		return nil, nil, &device.NotFoundError{Resource: "characteristic"}
	}
	return l, l.chars[ref.Service][ref.Char], nil
}

// ReadCharacteristic reads the value at ref.
func (r *Radio) ReadCharacteristic(address string, ref radio.CharRef) error {
	l, c, err := r.characteristic(address, ref)
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "hci-read", func(context.Context) {
		value, err := l.p.ReadCharacteristic(c)
		r.handler.OnCharacteristicRead(address, ref, value, err)
	})
	return nil
}

// WriteCharacteristic writes value at ref.
func (r *Radio) WriteCharacteristic(address string, ref radio.CharRef, value []byte, withResponse bool) error {
	l, c, err := r.characteristic(address, ref)
	if err != nil {
		return err
	}
	payload := append([]byte(nil), value...)
	groutine.Go(context.Background(), "hci-write", func(context.Context) {
		err := l.p.WriteCharacteristic(c, payload, !withResponse)
		r.handler.OnCharacteristicWrite(address, ref, err)
	})
	return nil
}

// Subscribe enables indications or notifications at ref.
func (r *Radio) Subscribe(address string, ref radio.CharRef, indicate bool) error {
	l, c, err := r.characteristic(address, ref)
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "hci-subscribe", func(context.Context) {
		onValue := func(_ *gatt.Characteristic, b []byte, err error) {
			if err != nil {
				r.logger.WithError(err).WithField("address", address).Warn("Notification error")
				return
			}
			r.handler.OnNotification(address, ref, append([]byte(nil), b...))
		}

		var err error
		if indicate {
			err = l.p.SetIndicateValue(c, onValue)
		} else {
			err = l.p.SetNotifyValue(c, onValue)
		}
		r.handler.OnSubscribed(address, ref, err)
	})
	return nil
}

// ReadRSSI reads the link RSSI.
func (r *Radio) ReadRSSI(address string) error {
	l, err := r.link(address)
	if err != nil {
		return err
	}
	groutine.Go(context.Background(), "hci-rssi", func(context.Context) {
		r.handler.OnRSSI(address, l.p.ReadRSSI(), nil)
	})
	return nil
}

// Close stops scanning, drops every link and stops the device.
func (r *Radio) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	links := r.links
	r.links = make(map[string]*hciLink)
	r.mu.Unlock()

	r.dev.StopScanning()
	for _, l := range links {
		r.dev.CancelConnection(l.p)
	}
	return stopDevice(r.dev)
}

// stopper is implemented by the concrete gatt device; gatt.Device itself
// does not declare Stop.
type stopper interface {
	Stop() error
}

// stopDevice releases the HCI socket when the device supports it.
func stopDevice(dev gatt.Device) error {
	if s, ok := dev.(stopper); ok {
		return s.Stop()
	}
	return nil
}
