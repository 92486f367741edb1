//go:build linux

package hci

import (
	"errors"
	"testing"

	"github.com/paypal/gatt"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDevice satisfies gatt.Device through the embedded interface; only the
// methods Close touches are implemented.
type fakeDevice struct {
	gatt.Device
	stopScans int
	cancelled []string
}

func (d *fakeDevice) StopScanning() { d.stopScans++ }

func (d *fakeDevice) CancelConnection(p gatt.Peripheral) { d.cancelled = append(d.cancelled, p.ID()) }

type linkPeripheral struct {
	gatt.Peripheral
	id string
}

func (p linkPeripheral) ID() string { return p.id }

// stoppableDevice additionally exposes Stop like paypal/gatt's concrete device.
type stoppableDevice struct {
	fakeDevice
	stopped bool
	err     error
}

func (d *stoppableDevice) Stop() error {
	d.stopped = true
	return d.err
}

func TestStopDevice(t *testing.T) {
	// GOAL: Verify the HCI socket is released only through devices that implement Stop
	//
	// TEST SCENARIO: device without Stop → nil; device with Stop → Stop called and its error returned

	assert.NoError(t, stopDevice(&fakeDevice{}), "a device without Stop MUST be a no-op")

	dev := &stoppableDevice{err: errors.New("hci closed")}
	err := stopDevice(dev)
	assert.True(t, dev.stopped, "Stop MUST be called when the device provides it")
	assert.EqualError(t, err, "hci closed")
}

func TestCloseStopsDevice(t *testing.T) {
	// GOAL: Verify Close stops scanning, cancels every link and stops the device exactly once
	//
	// TEST SCENARIO: radio with one link → Close twice → one StopScanning, one cancel, Stop called

	dev := &stoppableDevice{}
	r := &Radio{
		logger:      logrus.New(),
		dev:         dev,
		peripherals: make(map[string]gatt.Peripheral),
		links: map[string]*hciLink{
			"AA:BB:CC:DD:EE:FF": {address: "AA:BB:CC:DD:EE:FF", p: linkPeripheral{id: "AA:BB:CC:DD:EE:FF"}},
		},
	}

	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "second Close MUST be a no-op")

	assert.True(t, dev.stopped)
	assert.Equal(t, 1, dev.stopScans)
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF"}, dev.cancelled)
	assert.Empty(t, r.links)
}
