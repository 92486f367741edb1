//go:build test

package main

import (
	"errors"
	"testing"

	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type InspectTestSuite struct {
	CommandTestSuite
}

func (s *InspectTestSuite) SetupTest() {
	s.WithPeripheral(testutils.DefaultPeripheral().
		WithService("1802").
		WithCharacteristic("2a06", "write-no-response", nil).
		WithService("6e400001-b5a3-f393-e0a9-e50e24dcca9e").
		WithCharacteristic("6e400002-b5a3-f393-e0a9-e50e24dcca9e", "write,write-no-response", nil).
		WithCharacteristic("6e400003-b5a3-f393-e0a9-e50e24dcca9e", "notify", nil))
	s.CommandTestSuite.SetupTest()
}

func (s *InspectTestSuite) TestInspectText() {
	// GOAL: Verify inspect prints the catalog in discovery order with property flags
	//
	// TEST SCENARIO: peripheral with SIG and vendor services → indented tree, SIG UUIDs shortened

	stdout, _, err := s.ExecuteCommand("inspect", "00:00:00:00:00:01")
	s.Require().NoError(err, "inspect MUST succeed")

	testutils.NewTextAsserter(s.T()).Assert(stdout, `00:00:00:00:00:01
  service 180f
    characteristic 2a19 [read,notify]
  service 1802
    characteristic 2a06 [write-no-response]
  service 6e400001b5a3f393e0a9e50e24dcca9e
    characteristic 6e400002b5a3f393e0a9e50e24dcca9e [write,write-no-response]
    characteristic 6e400003b5a3f393e0a9e50e24dcca9e [notify]`)
}

func (s *InspectTestSuite) TestInspectJSON() {
	// GOAL: Verify inspect --format json exposes the catalog views
	//
	// TEST SCENARIO: lower-case address → json services with properties; no values cached yet

	stdout, _, err := s.ExecuteCommand("inspect", "00:00:00:00:00:01", "-f", "json")
	s.Require().NoError(err, "inspect MUST succeed")

	testutils.NewJSONAsserter(s.T()).Assert(stdout, `[
		{"uuid": "180f", "characteristics": [
			{"uuid": "2a19", "properties": "read,notify", "subscribed": false, "has_value": false}
		]},
		{"uuid": "1802", "characteristics": [
			{"uuid": "2a06", "properties": "write-no-response"}
		]},
		{"uuid": "6e400001b5a3f393e0a9e50e24dcca9e", "characteristics": [
			{"uuid": "6e400002b5a3f393e0a9e50e24dcca9e"},
			{"uuid": "6e400003b5a3f393e0a9e50e24dcca9e", "properties": "notify"}
		]}
	]`)
}

func (s *InspectTestSuite) TestInspectUnknownDevice() {
	// GOAL: Verify a connection failure surfaces as the command error
	//
	// TEST SCENARIO: radio refuses the connection → inspect fails with the radio's cause

	cause := errors.New("page timeout")
	s.Radio.FailConnect(testutils.TestDeviceAddress1, cause)

	_, _, err := s.ExecuteCommand("inspect", testutils.TestDeviceAddress1, "--timeout", "1s")
	s.Require().Error(err, "inspect MUST fail")
	s.ErrorIs(err, cause, "error MUST carry the radio's cause")
}

func (s *InspectTestSuite) TestInspectMissingPeripheral() {
	// GOAL: Verify connecting to an address nobody hosts fails instead of hanging
	//
	// TEST SCENARIO: unknown address → error wrapping ErrDeviceNotFound

	_, _, err := s.ExecuteCommand("inspect", "AA:BB:CC:DD:EE:FF", "--timeout", "1s")
	s.Require().Error(err)
	s.ErrorIs(err, device.ErrDeviceNotFound)
}

func TestInspectTestSuite(t *testing.T) {
	suite.Run(t, new(InspectTestSuite))
}
