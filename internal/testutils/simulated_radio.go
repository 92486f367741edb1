//go:build test

package testutils

import (
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/radio"
)

// WriteRecord is one characteristic write seen by a SimulatedRadio.
type WriteRecord struct {
	Address      string
	Ref          radio.CharRef
	Value        []byte
	WithResponse bool
}

type simulatedPeripheral struct {
	cfg      PeripheralConfig
	services []radio.ServiceInfo
	values   map[radio.CharRef][]byte
}

// SimulatedRadio is a radio.Radio backed by in-memory peripherals. Every
// request succeeds the way a cooperative peripheral would and the completion
// is delivered from a fresh goroutine, as a real driver does.
//
// Unlike MockRadio it needs no expectations, which suits end-to-end tests
// of the CLI and scripting layers.
type SimulatedRadio struct {
	mu          sync.Mutex
	handler     radio.Handler
	peripherals map[string]*simulatedPeripheral
	order       []string
	connected   map[string]bool
	failConnect map[string]error
	writes      []WriteRecord
	scanning    bool
	closed      bool
}

// NewSimulatedRadio creates a radio hosting the given peripherals.
func NewSimulatedRadio(peripherals ...*PeripheralBuilder) *SimulatedRadio {
	r := &SimulatedRadio{
		peripherals: make(map[string]*simulatedPeripheral),
		connected:   make(map[string]bool),
		failConnect: make(map[string]error),
	}
	for _, b := range peripherals {
		r.Add(b)
	}
	return r
}

// Add hosts another peripheral.
func (r *SimulatedRadio) Add(b *PeripheralBuilder) {
	cfg := b.Config()
	p := &simulatedPeripheral{
		cfg:      cfg,
		services: b.ServiceInfos(),
		values:   make(map[radio.CharRef][]byte),
	}
	for si, svc := range cfg.Services {
		for ci, ch := range svc.Characteristics {
			p.values[radio.CharRef{Service: si, Char: ci}] = append([]byte(nil), ch.Value...)
		}
	}

	key := device.NormalizeAddress(cfg.Address)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.peripherals[key]; !exists {
		r.order = append(r.order, key)
	}
	r.peripherals[key] = p
}

// FailConnect makes the next connection attempts to address fail with err.
func (r *SimulatedRadio) FailConnect(address string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failConnect[device.NormalizeAddress(address)] = err
}

// Factory returns a radio.Factory handing out this radio.
func (r *SimulatedRadio) Factory() radio.Factory {
	return func(h radio.Handler, _ *logrus.Logger) (radio.Radio, error) {
		r.mu.Lock()
		r.handler = h
		r.mu.Unlock()
		return r, nil
	}
}

func (r *SimulatedRadio) async(fn func(h radio.Handler)) {
	r.mu.Lock()
	h := r.handler
	r.mu.Unlock()
	if h != nil {
		go fn(h)
	}
}

func (r *SimulatedRadio) peripheral(address string) (*simulatedPeripheral, error) {
	p, ok := r.peripherals[device.NormalizeAddress(address)]
	if !ok {
		return nil, fmt.Errorf("%w: no simulated peripheral %s", device.ErrDeviceNotFound, address)
	}
	return p, nil
}

func (r *SimulatedRadio) StartScan(bool) error {
	r.mu.Lock()
	r.scanning = true
	advs := make([]radio.Advertisement, 0, len(r.order))
	for _, key := range r.order {
		b := &PeripheralBuilder{cfg: r.peripherals[key].cfg}
		advs = append(advs, b.Advertisement())
	}
	r.mu.Unlock()

	r.async(func(h radio.Handler) {
		for _, adv := range advs {
			h.OnAdvertisement(adv)
		}
	})
	return nil
}

func (r *SimulatedRadio) StopScan() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanning = false
	return nil
}

func (r *SimulatedRadio) Connect(address string) error {
	r.mu.Lock()
	_, err := r.peripheral(address)
	failure := r.failConnect[device.NormalizeAddress(address)]
	if err == nil && failure == nil {
		r.connected[device.NormalizeAddress(address)] = true
	}
	r.mu.Unlock()

	if err == nil {
		err = failure
	}
	r.async(func(h radio.Handler) {
		if err != nil {
			h.OnConnectionState(address, radio.LinkDisconnected, err)
			return
		}
		h.OnConnectionState(address, radio.LinkConnected, nil)
	})
	return nil
}

func (r *SimulatedRadio) Disconnect(address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connected, device.NormalizeAddress(address))
	return nil
}

// DropLink simulates a link loss reported by the driver.
func (r *SimulatedRadio) DropLink(address string) {
	r.mu.Lock()
	delete(r.connected, device.NormalizeAddress(address))
	r.mu.Unlock()
	r.async(func(h radio.Handler) {
		h.OnConnectionState(address, radio.LinkDisconnected, device.ErrNotConnected)
	})
}

func (r *SimulatedRadio) DiscoverServices(address string) error {
	r.mu.Lock()
	p, err := r.peripheral(address)
	var services []radio.ServiceInfo
	if err == nil {
		services = p.services
	}
	r.mu.Unlock()

	r.async(func(h radio.Handler) { h.OnServicesDiscovered(address, services, err) })
	return nil
}

func (r *SimulatedRadio) ReadCharacteristic(address string, ref radio.CharRef) error {
	r.mu.Lock()
	p, err := r.peripheral(address)
	var value []byte
	if err == nil {
		value = append([]byte(nil), p.values[ref]...)
	}
	r.mu.Unlock()

	r.async(func(h radio.Handler) { h.OnCharacteristicRead(address, ref, value, err) })
	return nil
}

func (r *SimulatedRadio) WriteCharacteristic(address string, ref radio.CharRef, value []byte, withResponse bool) error {
	r.mu.Lock()
	p, err := r.peripheral(address)
	if err == nil {
		p.values[ref] = append([]byte(nil), value...)
		r.writes = append(r.writes, WriteRecord{
			Address:      device.NormalizeAddress(address),
			Ref:          ref,
			Value:        append([]byte(nil), value...),
			WithResponse: withResponse,
		})
	}
	r.mu.Unlock()

	r.async(func(h radio.Handler) { h.OnCharacteristicWrite(address, ref, err) })
	return nil
}

func (r *SimulatedRadio) Subscribe(address string, ref radio.CharRef, _ bool) error {
	r.mu.Lock()
	_, err := r.peripheral(address)
	r.mu.Unlock()

	r.async(func(h radio.Handler) { h.OnSubscribed(address, ref, err) })
	return nil
}

func (r *SimulatedRadio) ReadRSSI(address string) error {
	r.mu.Lock()
	p, err := r.peripheral(address)
	rssi := 0
	if err == nil {
		rssi = p.cfg.LinkRSSI
	}
	r.mu.Unlock()

	r.async(func(h radio.Handler) { h.OnRSSI(address, rssi, err) })
	return nil
}

func (r *SimulatedRadio) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Notify pushes a notification for the first characteristic matching the
// service and characteristic UUIDs, and updates its stored value.
func (r *SimulatedRadio) Notify(address, serviceUUID, charUUID string, value []byte) error {
	r.mu.Lock()
	p, err := r.peripheral(address)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	ref, ok := findRef(p.cfg, serviceUUID, charUUID)
	if ok {
		p.values[ref] = append([]byte(nil), value...)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s/%s", device.ErrCharacteristicNotFound, serviceUUID, charUUID)
	}
	data := append([]byte(nil), value...)
	r.async(func(h radio.Handler) { h.OnNotification(address, ref, data) })
	return nil
}

// Value returns the stored value of a characteristic.
func (r *SimulatedRadio) Value(address, serviceUUID, charUUID string) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.peripheral(address)
	if err != nil {
		return nil
	}
	ref, ok := findRef(p.cfg, serviceUUID, charUUID)
	if !ok {
		return nil
	}
	return append([]byte(nil), p.values[ref]...)
}

// Writes returns every write seen so far.
func (r *SimulatedRadio) Writes() []WriteRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WriteRecord(nil), r.writes...)
}

// Scanning reports whether a scan is active.
func (r *SimulatedRadio) Scanning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scanning
}

// Closed reports whether Close was called.
func (r *SimulatedRadio) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func findRef(cfg PeripheralConfig, serviceUUID, charUUID string) (radio.CharRef, bool) {
	for si, svc := range cfg.Services {
		if !sameUUID(svc.UUID, serviceUUID) {
			continue
		}
		for ci, ch := range svc.Characteristics {
			if sameUUID(ch.UUID, charUUID) {
				return radio.CharRef{Service: si, Char: ci}, true
			}
		}
	}
	return radio.CharRef{}, false
}

func sameUUID(a, b string) bool {
	ca, cb := device.CanonicalUUID(a), device.CanonicalUUID(b)
	if ca == "" || cb == "" {
		return strings.EqualFold(a, b)
	}
	return ca == cb
}
