// Package blecentral is the consumer-facing surface of the BLE central
// engine. It adds the conveniences of a single-device component on top of
// internal/central: 1-based device indices, a "current" connection that
// address-less operations target, and last-value properties kept up to date
// from the event stream.
package blecentral

import (
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/events"
	"github.com/srg/blecentral/internal/radio"
	"github.com/srg/blecentral/pkg/config"
)

// Re-exported so consumers need not import internal packages.
type (
	Event     = events.Event
	EventType = events.Type
	Format    = codec.Format
)

// Event types
const (
	DeviceFound   = events.DeviceFound
	RSSIChanged   = events.RSSIChanged
	Connected     = events.Connected
	Disconnected  = events.Disconnected
	Ready         = events.Ready
	ValueRead     = events.ValueRead
	ValueChanged  = events.ValueChanged
	ValueWrite    = events.ValueWrite
	ErrorOccurred = events.ErrorOccurred
)

// Integer formats accepted by WriteIntValue
const (
	FormatUint8  = codec.FormatUint8
	FormatUint16 = codec.FormatUint16
	FormatUint32 = codec.FormatUint32
	FormatSint8  = codec.FormatSint8
	FormatSint16 = codec.FormatSint16
	FormatSint32 = codec.FormatSint32
)

// Placeholders returned by properties that have no value yet
const (
	NoBattery     = "Cannot Read Battery Level"
	NoTemperature = "Cannot Read Temperature"
	NoHeartRate   = "Cannot Read Heart Rate"
)

// Component wraps a Central for single-device style use.
type Component struct {
	central *central.Central
	logger  *logrus.Logger
	unsub   func()

	mu        sync.RWMutex
	current   string
	connected bool
	offsets   codec.Offsets
	props     properties
}

type properties struct {
	battery     string
	temperature string
	heartRate   string
	txPower     int64
	linkLoss    int64
	linkRSSI    int
	intValue    int64
	floatValue  float32
	stringValue string
	byteValue   string
	lastError   error
}

// New builds a Component from configuration. A missing adapter is reported
// through the error while the returned Component stays usable for Close and
// event registration.
func New(cfg *config.Config, logger *logrus.Logger) (*Component, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = cfg.NewLogger()
	}
	return NewWithRadio(cfg.RadioFactory(), cfg.CentralOptions(), logger)
}

// NewWithRadio builds a Component on an explicit radio factory.
func NewWithRadio(factory radio.Factory, opts central.Options, logger *logrus.Logger) (*Component, error) {
	if logger == nil {
		logger = logrus.New()
	}
	c, err := central.New(factory, opts, logger)

	comp := &Component{
		central: c,
		logger:  logger,
		props: properties{
			battery:     NoBattery,
			temperature: NoTemperature,
			heartRate:   NoHeartRate,
			txPower:     -1,
			linkLoss:    -1,
		},
	}
	comp.unsub = c.OnAll(comp.track)
	return comp, err
}

// Central exposes the underlying engine.
func (c *Component) Central() *central.Central {
	return c.central
}

// Close shuts the engine down.
func (c *Component) Close() error {
	c.unsub()
	return c.central.Close()
}

// On registers a handler for one event type.
func (c *Component) On(t EventType, h func(Event)) func() {
	return c.central.On(t, h)
}

// OnAll registers a handler for every event.
func (c *Component) OnAll(h events.Handler) func() {
	return c.central.OnAll(h)
}

func (c *Component) StartScanning() error {
	return c.central.StartScan()
}

func (c *Component) StopScanning() error {
	return c.central.StopScan()
}

// Connect connects to the device at a 1-based position of the ranking.
func (c *Component) Connect(index int) error {
	p, ok := c.central.Device(index)
	if !ok {
		return &device.NotFoundError{Resource: "device", UUIDs: []string{"#" + strconv.Itoa(index)}}
	}
	return c.central.Connect(p.Address)
}

func (c *Component) ConnectWithAddress(address string) error {
	return c.central.Connect(address)
}

func (c *Component) DisconnectWithAddress(address string) error {
	return c.central.Disconnect(address)
}

// CurrentAddress is the most recently connected device, or "".
func (c *Component) CurrentAddress() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Component) target() (string, error) {
	addr := c.CurrentAddress()
	if addr == "" {
		return "", device.NewConnectionError(device.NotConnected, "no current device")
	}
	return addr, nil
}

func (c *Component) read(serviceUUID, charUUID string, set func(*codec.Offsets)) error {
	addr, err := c.target()
	if err != nil {
		return err
	}
	c.mu.Lock()
	if set != nil {
		set(&c.offsets)
	}
	offsets := c.offsets
	c.mu.Unlock()
	return c.central.Read(addr, serviceUUID, charUUID, offsets)
}

// ReadIntValue reads and decodes the integer slot at offset. Offsets are
// remembered per slot, as later notifications decode with them too.
func (c *Component) ReadIntValue(serviceUUID, charUUID string, offset int) error {
	return c.read(serviceUUID, charUUID, func(o *codec.Offsets) { o.Int = offset })
}

func (c *Component) ReadFloatValue(serviceUUID, charUUID string, offset int) error {
	return c.read(serviceUUID, charUUID, func(o *codec.Offsets) { o.Float = offset })
}

func (c *Component) ReadStringValue(serviceUUID, charUUID string, offset int) error {
	return c.read(serviceUUID, charUUID, func(o *codec.Offsets) { o.Text = offset })
}

func (c *Component) ReadByteValue(serviceUUID, charUUID string) error {
	return c.read(serviceUUID, charUUID, nil)
}

func (c *Component) WriteStringValue(serviceUUID, charUUID, text string) error {
	addr, err := c.target()
	if err != nil {
		return err
	}
	return c.central.Write(addr, serviceUUID, charUUID, central.TextPayload(text))
}

func (c *Component) WriteIntValue(serviceUUID, charUUID string, value int64, format Format, offset int) error {
	addr, err := c.target()
	if err != nil {
		return err
	}
	return c.central.Write(addr, serviceUUID, charUUID, central.IntPayload(value, format, offset))
}

func (c *Component) WriteFloatValue(serviceUUID, charUUID string, value float32, offset int) error {
	addr, err := c.target()
	if err != nil {
		return err
	}
	return c.central.Write(addr, serviceUUID, charUUID, central.FloatPayload(value, offset))
}

func (c *Component) readKnown(name string) error {
	addr, err := c.target()
	if err != nil {
		return err
	}
	return c.central.ReadKnown(addr, name)
}

func (c *Component) ReadBattery() error     { return c.readKnown("battery") }
func (c *Component) ReadTemperature() error { return c.readKnown("temperature") }
func (c *Component) ReadHeartRate() error   { return c.readKnown("heart_rate") }
func (c *Component) ReadTxPower() error     { return c.readKnown("tx_power") }
func (c *Component) ReadLinkLoss() error    { return c.readKnown("link_loss") }

// WriteFindMe triggers the Immediate Alert of the current device.
func (c *Component) WriteFindMe(level int) error {
	addr, err := c.target()
	if err != nil {
		return err
	}
	return c.central.WriteFindMe(addr, level)
}

// SetLinkLoss sets the Link Loss alert level of the current device.
func (c *Component) SetLinkLoss(level int) error {
	addr, err := c.target()
	if err != nil {
		return err
	}
	if err := c.central.SetLinkLoss(addr, level); err != nil {
		return err
	}
	c.mu.Lock()
	c.props.linkLoss = int64(level)
	c.mu.Unlock()
	return nil
}

// ReadConnectedRssi requests a fresh RSSI of the current link.
func (c *Component) ReadConnectedRssi() error {
	addr, err := c.target()
	if err != nil {
		return err
	}
	return c.central.ReadRSSI(addr)
}

// FoundDeviceRssi returns the RSSI at a 1-based ranking position, or -1.
func (c *Component) FoundDeviceRssi(index int) int {
	p, ok := c.central.Device(index)
	if !ok {
		return -1
	}
	return p.RSSI
}

// FoundDeviceName returns the name at a 1-based ranking position, or "".
func (c *Component) FoundDeviceName(index int) string {
	p, _ := c.central.Device(index)
	return p.Name
}

// FoundDeviceUUID returns the address at a 1-based ranking position, or "".
func (c *Component) FoundDeviceUUID(index int) string {
	p, _ := c.central.Device(index)
	return p.Address
}

func (c *Component) DeviceList() string {
	return c.central.DeviceList()
}

// IsDeviceConnected reports whether the current device has a live link.
func (c *Component) IsDeviceConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *Component) BatteryValue() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props.battery
}

func (c *Component) TemperatureValue() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props.temperature
}

func (c *Component) HeartRateValue() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props.heartRate
}

// TxPower returns the last Tx Power Level read, or -1 before any read.
func (c *Component) TxPower() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props.txPower
}

// LinkLossValue labels the last Link Loss alert level. Before any read or
// write the level is -1, which labels as "High Alert".
func (c *Component) LinkLossValue() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return device.AlertLevelLabel(c.props.linkLoss)
}

func (c *Component) ConnectedDeviceRssi() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strconv.Itoa(c.props.linkRSSI)
}

func (c *Component) IntGattValue() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props.intValue
}

func (c *Component) FloatGattValue() float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props.floatValue
}

func (c *Component) StringGattValue() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props.stringValue
}

func (c *Component) ByteGattValue() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props.byteValue
}

// LastError is the error of the most recent ErrorOccurred event.
func (c *Component) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.props.lastError
}

// track folds events into the current connection and the properties.
func (c *Component) track(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Type {
	case events.Connected:
		c.current = e.Address
		c.connected = true
		c.props.linkRSSI = 0
	case events.Disconnected:
		if e.Address == c.current {
			c.connected = false
		}
	case events.RSSIChanged:
		if e.Source == events.SourceLink && e.Address == c.current {
			c.props.linkRSSI = e.RSSI
		}
	case events.ValueRead, events.ValueChanged:
		c.applyValue(e)
	case events.ErrorOccurred:
		c.props.lastError = e.Err
	}
}

// applyValue stores a decoded value. A well-known characteristic that failed
// to parse keeps its previous value; generic payloads always land, with the
// slots that did not fit left at zero.
func (c *Component) applyValue(e Event) {
	v := e.Value
	uuid := device.NormalizeUUID(e.Characteristic)
	if device.IsParsableCharacteristic(uuid) && v.DecodeErr != nil {
		return
	}
	switch uuid {
	case device.CharacteristicBatteryLevel:
		c.props.battery = strconv.FormatInt(v.Int, 10)
	case device.CharacteristicTemperature:
		c.props.temperature = v.Text
	case device.CharacteristicHeartRateMeasure:
		c.props.heartRate = v.Text
	case device.CharacteristicTxPowerLevel:
		c.props.txPower = v.Int
	case device.CharacteristicAlertLevel:
		if device.NormalizeUUID(e.Service) == device.ServiceLinkLoss {
			c.props.linkLoss = v.Int
		}
	default:
		c.props.intValue = v.Int
		c.props.floatValue = v.Float
		c.props.stringValue = v.Text
		c.props.byteValue = v.Raw
	}
}
