//go:build test

package testutils

import (
	"testing"
	"time"

	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/events"
	"github.com/srg/blecentral/internal/radio"
	"github.com/stretchr/testify/suite"
)

type PeripheralBuilderTestSuite struct {
	suite.Suite
}

func (s *PeripheralBuilderTestSuite) TestFluentAndJSONAgree() {
	// GOAL: Verify the fluent API and FromJSON produce the same peripheral
	//
	// TEST SCENARIO: same profile built both ways → identical configs and discovery trees

	fluent := NewPeripheralBuilder("AA:BB:CC:DD:EE:01").
		WithName("Thermo").
		WithRSSI(-40).
		WithService("1809").
		WithCharacteristic("2a1c", "indicate", nil).
		WithService("180f").
		WithCharacteristic("2a19", "read,notify", []byte{80})

	fromJSON := NewPeripheralBuilder("ignored").FromJSON(`{
		"address": "%s",
		"name": "Thermo",
		"rssi": -40,
		"link_rssi": -45,
		"connectable": true,
		"services": [
			{"uuid": "1809", "characteristics": [{"uuid": "2a1c", "properties": "indicate"}]},
			{"uuid": "180f", "characteristics": [{"uuid": "2a19", "properties": "read,notify", "value": "UA=="}]}
		]
	}`, "AA:BB:CC:DD:EE:01")

	s.Equal(fluent.Config(), fromJSON.Config(), "both builders MUST produce the same config")
	s.Equal(fluent.ServiceInfos(), fromJSON.ServiceInfos(), "both builders MUST produce the same tree")

	infos := fluent.ServiceInfos()
	s.Require().Len(infos, 2)
	s.Equal(radio.PropIndicate, infos[0].Characteristics[0].Properties)
	s.Equal(radio.PropRead|radio.PropNotify, infos[1].Characteristics[0].Properties)
}

func (s *PeripheralBuilderTestSuite) TestParseProperties() {
	// GOAL: Verify property lists map onto the radio bitmask and typos panic
	//
	// TEST SCENARIO: every supported name → matching bit; unknown name → panic

	s.Equal(radio.PropRead|radio.PropWrite|radio.PropWriteNoResponse|radio.PropNotify|radio.PropIndicate,
		ParseProperties("read, write, write-no-response, notify, indicate"))
	s.Equal(radio.Properties(0), ParseProperties(""))
	s.Panics(func() { ParseProperties("reed") }, "unknown property MUST panic")
}

func (s *PeripheralBuilderTestSuite) TestWithCharacteristicRequiresService() {
	s.Panics(func() {
		NewPeripheralBuilder("AA").WithCharacteristic("2a19", "read", nil)
	}, "characteristic without a service MUST panic")
}

func TestPeripheralBuilderTestSuite(t *testing.T) {
	suite.Run(t, new(PeripheralBuilderTestSuite))
}

// SimulatedRadioTestSuite drives a real Central through the simulated radio.
type SimulatedRadioTestSuite struct {
	PeripheralSuite
}

func (s *SimulatedRadioTestSuite) TestScanReportsHostedPeripherals() {
	// GOAL: Verify scanning surfaces every hosted peripheral
	//
	// TEST SCENARIO: default peripheral hosted → StartScan → DeviceFound with advertised name

	s.Require().NoError(s.Central.StartScan())
	e, ok := s.Events.WaitFor(events.DeviceFound, s.TestTimeout)
	s.Require().True(ok, "DeviceFound MUST be emitted")
	s.Equal(TestDeviceAddress1, e.Address)
	s.Equal("Battery Sensor", e.Name)
	s.True(s.Radio.Scanning(), "radio MUST be scanning")
}

func (s *SimulatedRadioTestSuite) TestReadWriteAndNotify() {
	// GOAL: Verify the simulated peripheral answers reads, stores writes and pushes notifications
	//
	// TEST SCENARIO: connect → read battery → write 42 → notify 10 → events carry each value

	s.ConnectReady(TestDeviceAddress1)

	s.Require().NoError(s.Central.Read(TestDeviceAddress1, "180f", "2a19", codec.Offsets{}))
	e, ok := s.Events.WaitFor(events.ValueRead, s.TestTimeout)
	s.Require().True(ok, "ValueRead MUST be emitted")
	s.Equal(int64(87), e.Value.Int)

	s.Require().NoError(s.Radio.Notify(TestDeviceAddress1, "180f", "2a19", []byte{10}))
	e, ok = s.Events.WaitFor(events.ValueChanged, s.TestTimeout)
	s.Require().True(ok, "ValueChanged MUST be emitted")
	s.Equal(int64(10), e.Value.Int)
	s.Equal([]byte{10}, s.Radio.Value(TestDeviceAddress1, "180f", "2a19"), "notification MUST update the stored value")
}

func (s *SimulatedRadioTestSuite) TestLinkLoss() {
	// GOAL: Verify DropLink surfaces as Disconnected with a cause
	//
	// TEST SCENARIO: ready connection → DropLink → Disconnected carrying an error

	s.ConnectReady(TestDeviceAddress1)
	s.Radio.DropLink(TestDeviceAddress1)

	e, ok := s.Events.WaitFor(events.Disconnected, s.TestTimeout)
	s.Require().True(ok, "Disconnected MUST be emitted")
	s.Error(e.Err, "link loss MUST carry a cause")
	s.Eventually(func() bool { return !s.Central.IsConnected(TestDeviceAddress1) }, time.Second, 10*time.Millisecond)
}

func TestSimulatedRadioTestSuite(t *testing.T) {
	suite.Run(t, new(SimulatedRadioTestSuite))
}
