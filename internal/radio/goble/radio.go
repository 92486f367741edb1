// Package goble implements the radio capability on top of go-ble/ble
// (CoreBluetooth on darwin, HCI sockets on linux).
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/groutine"
	"github.com/srg/blecentral/internal/radio"
)

// DefaultConnectTimeout bounds a single dial attempt.
const DefaultConnectTimeout = 30 * time.Second

// link is one connection attempt or established connection.
type link struct {
	address string
	cancel  context.CancelFunc

	mu      sync.Mutex
	client  Client
	profile *ble.Profile
	closing bool
}

func (l *link) snapshot() (Client, *ble.Profile) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.client, l.profile
}

// Radio drives a go-ble Device.
type Radio struct {
	handler        radio.Handler
	logger         *logrus.Logger
	dev            Device
	connectTimeout time.Duration

	mu         sync.Mutex
	scanCancel context.CancelFunc
	links      map[string]*link
	closed     bool
}

// NewFactory returns a radio.Factory creating go-ble radios.
func NewFactory(connectTimeout time.Duration) radio.Factory {
	return func(h radio.Handler, logger *logrus.Logger) (radio.Radio, error) {
		return New(h, connectTimeout, logger)
	}
}

// New opens the platform device.
func New(h radio.Handler, connectTimeout time.Duration, logger *logrus.Logger) (*Radio, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}

	dev, err := DeviceFactory()
	if err != nil {
		logger.WithError(err).Error("Failed to create BLE device")
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}

	return &Radio{
		handler:        h,
		logger:         logger,
		dev:            dev,
		connectTimeout: connectTimeout,
		links:          make(map[string]*link),
	}, nil
}

// StartScan (re)starts discovery.
func (r *Radio) StartScan(allowDuplicates bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return device.ErrClosed
	}

	if r.scanCancel != nil {
		r.scanCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.scanCancel = cancel

	groutine.Go(ctx, "goble-scan", func(ctx context.Context) {
		err := r.dev.Scan(ctx, allowDuplicates, r.handler.OnAdvertisement)
		if err != nil && !errors.Is(err, context.Canceled) {
			r.logger.WithError(NormalizeError(err)).Error("Scan failed")
		}
	})
	return nil
}

// StopScan halts discovery. Safe to call when no scan is running.
func (r *Radio) StopScan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scanCancel != nil {
		r.scanCancel()
		r.scanCancel = nil
	}
	return nil
}

// Connect dials the peripheral in the background.
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

	ctx, cancel := context.WithTimeout(context.Background(), r.connectTimeout)
	l := &link{address: address, cancel: cancel}
	r.links[key] = l

	groutine.Go(ctx, "goble-dial", func(ctx context.Context) {
		defer cancel()

		client, err := r.dev.Dial(ctx, address)

		l.mu.Lock()
		closing := l.closing
		if err == nil && !closing {
			l.client = client
		}
		l.mu.Unlock()

		if err != nil {
			r.forget(key, l)
			if !closing {
				r.handler.OnConnectionState(address, radio.LinkDisconnected, NormalizeError(err))
			}
			return
		}
		if closing {
			_ = client.CancelConnection()
			return
		}

		r.logger.WithField("address", address).Info("BLE device connected")
		r.handler.OnConnectionState(address, radio.LinkConnected, nil)
		r.monitor(key, l, client)
	})
	return nil
}

// monitor reports a link loss the driver signals on Disconnected().
func (r *Radio) monitor(key string, l *link, client Client) {
	groutine.Go(context.Background(), "goble-link-monitor", func(context.Context) {
		<-client.Disconnected()

		l.mu.Lock()
		closing := l.closing
		l.mu.Unlock()
		if closing {
			return
		}

		r.forget(key, l)
		r.logger.WithField("address", l.address).Warn("BLE link lost")
		r.handler.OnConnectionState(l.address, radio.LinkDisconnected, nil)
	})
}

func (r *Radio) forget(key string, l *link) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.links[key] == l {
		delete(r.links, key)
	}
}

func (r *Radio) lookup(address string) (*link, Client, *ble.Profile, error) {
	r.mu.Lock()
	l, ok := r.links[device.NormalizeAddress(address)]
	r.mu.Unlock()
	if !ok {
		return nil, nil, nil, device.NewConnectionError(device.NotConnected, "%s", address)
	}
	client, profile := l.snapshot()
	if client == nil {
		return nil, nil, nil, device.NewConnectionError(device.NotReady, "%s is still connecting", address)
	}
	return l, client, profile, nil
}

// Disconnect tears the link down, cancelling a dial still in progress.
// The teardown is not reported back through the handler.
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

	l.mu.Lock()
	l.closing = true
	client := l.client
	l.mu.Unlock()

	if client == nil {
		l.cancel()
		return nil
	}

	groutine.Go(context.Background(), "goble-disconnect", func(context.Context) {
		if err := client.CancelConnection(); err != nil {
			r.logger.WithError(err).WithField("address", address).Warn("BLE device disconnected with errors")
			return
		}
		r.logger.WithField("address", address).Info("BLE device disconnected")
	})
	return nil
}

// DiscoverServices discovers the full profile, descriptors included.
func (r *Radio) DiscoverServices(address string) error {
	l, client, _, err := r.lookup(address)
	if err != nil {
		return err
	}

	groutine.Go(context.Background(), "goble-discover", func(context.Context) {
		profile, err := client.DiscoverProfile(true)
		if err != nil {
			r.handler.OnServicesDiscovered(address, nil, NormalizeError(err))
			return
		}

		l.mu.Lock()
		l.profile = profile
		l.mu.Unlock()

		r.handler.OnServicesDiscovered(address, toServiceInfos(profile), nil)
	})
	return nil
}

func (r *Radio) characteristic(address string, ref radio.CharRef) (Client, *ble.Characteristic, error) {
	_, client, profile, err := r.lookup(address)
	if err != nil {
		return nil, nil, err
	}
	c, err := characteristicAt(profile, ref)
	if err != nil {
		return nil, nil, err
	}
	return client, c, nil
}

// ReadCharacteristic reads the value at ref.
func (r *Radio) ReadCharacteristic(address string, ref radio.CharRef) error {
	client, c, err := r.characteristic(address, ref)
	if err != nil {
		return err
	}

	groutine.Go(context.Background(), "goble-read", func(context.Context) {
		value, err := client.ReadCharacteristic(c)
		r.handler.OnCharacteristicRead(address, ref, value, NormalizeError(err))
	})
	return nil
}

// WriteCharacteristic writes value at ref.
func (r *Radio) WriteCharacteristic(address string, ref radio.CharRef, value []byte, withResponse bool) error {
	client, c, err := r.characteristic(address, ref)
	if err != nil {
		return err
	}

	payload := append([]byte(nil), value...)
	groutine.Go(context.Background(), "goble-write", func(context.Context) {
		err := client.WriteCharacteristic(c, payload, !withResponse)
		r.handler.OnCharacteristicWrite(address, ref, NormalizeError(err))
	})
	return nil
}

// Subscribe enables notifications or indications at ref. go-ble writes the
// CCCD itself.
func (r *Radio) Subscribe(address string, ref radio.CharRef, indicate bool) error {
	client, c, err := r.characteristic(address, ref)
	if err != nil {
		return err
	}

	groutine.Go(context.Background(), "goble-subscribe", func(context.Context) {
		err := client.Subscribe(c, indicate, func(data []byte) {
			r.handler.OnNotification(address, ref, append([]byte(nil), data...))
		})
		r.handler.OnSubscribed(address, ref, NormalizeError(err))
	})
	return nil
}

// ReadRSSI reads the link RSSI.
func (r *Radio) ReadRSSI(address string) error {
	_, client, _, err := r.lookup(address)
	if err != nil {
		return err
	}

	groutine.Go(context.Background(), "goble-rssi", func(context.Context) {
		r.handler.OnRSSI(address, client.ReadRSSI(), nil)
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
	if r.scanCancel != nil {
		r.scanCancel()
		r.scanCancel = nil
	}
	links := r.links
	r.links = make(map[string]*link)
	r.mu.Unlock()

	for _, l := range links {
		l.mu.Lock()
		l.closing = true
		client := l.client
		l.mu.Unlock()
		l.cancel()
		if client != nil {
			if err := client.CancelConnection(); err != nil {
				r.logger.WithError(err).WithField("address", l.address).Warn("Failed to cancel connection on close")
			}
		}
	}

	return r.dev.Stop()
}
