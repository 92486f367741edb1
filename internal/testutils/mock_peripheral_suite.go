//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/central"
	"github.com/srg/blecentral/internal/events"
	"github.com/stretchr/testify/suite"
)

// Default addresses of the peripherals PeripheralSuite hosts.
const (
	TestDeviceAddress1 = "00:00:00:00:00:01"
	TestDeviceAddress2 = "00:00:00:00:00:02"
)

// PeripheralSuite is a testify suite hosting simulated peripherals behind a
// real Central.
//
// Without configuration it hosts one peripheral at TestDeviceAddress1 with
// a battery service. Suites customize it before calling the parent setup:
//
//	func (s *InspectSuite) SetupTest() {
//	    s.WithPeripheral(testutils.NewPeripheralBuilder(testutils.TestDeviceAddress1).
//	        WithService("180d").
//	        WithCharacteristic("2a37", "read,notify", []byte{0x00, 80}))
//	    s.PeripheralSuite.SetupTest() // call parent last to apply configuration
//	}
type PeripheralSuite struct {
	suite.Suite

	Logger      *logrus.Logger
	Radio       *SimulatedRadio
	Central     *central.Central
	Events      *EventRecorder
	TestTimeout time.Duration

	peripherals []*PeripheralBuilder
}

// DefaultPeripheral is the peripheral hosted when a suite configures none.
func DefaultPeripheral() *PeripheralBuilder {
	return NewPeripheralBuilder(TestDeviceAddress1).
		WithName("Battery Sensor").
		WithRSSI(-42).
		WithService("180f").
		WithCharacteristic("2a19", "read,notify", []byte{87})
}

// WithPeripheral queues a peripheral for the next SetupTest.
func (s *PeripheralSuite) WithPeripheral(b *PeripheralBuilder) *PeripheralBuilder {
	s.peripherals = append(s.peripherals, b)
	return b
}

// CentralOptions returns the options used for the suite's Central. RSSI
// coalescing is kept short so tests stay fast.
func (s *PeripheralSuite) CentralOptions() central.Options {
	opts := central.DefaultOptions()
	opts.RSSIDelay = 20 * time.Millisecond
	return opts
}

// SetupTest builds the radio and the Central.
func (s *PeripheralSuite) SetupTest() {
	s.Logger = logrus.New()
	s.Logger.SetLevel(logrus.WarnLevel)
	if s.TestTimeout == 0 {
		s.TestTimeout = 2 * time.Second
	}

	if len(s.peripherals) == 0 {
		s.peripherals = append(s.peripherals, DefaultPeripheral())
	}
	s.Radio = NewSimulatedRadio(s.peripherals...)

	c, err := central.New(s.Radio.Factory(), s.CentralOptions(), s.Logger)
	s.Require().NoError(err, "central creation MUST succeed")
	s.Central = c
	s.Events = NewEventRecorder(c)
}

// TearDownTest closes the Central and forgets the configured peripherals.
func (s *PeripheralSuite) TearDownTest() {
	if s.Events != nil {
		s.Events.Stop()
	}
	if s.Central != nil {
		_ = s.Central.Close()
	}
	s.peripherals = nil
}

// ConnectReady connects to address and waits for its Ready event.
func (s *PeripheralSuite) ConnectReady(address string) {
	s.Require().NoError(s.Central.Connect(address), "connect MUST be accepted")
	_, ok := s.Events.WaitFor(events.Ready, s.TestTimeout)
	s.Require().True(ok, "connection to %s MUST become ready", address)
}
