//go:build test

package main

import (
	"testing"

	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type ReadTestSuite struct {
	CommandTestSuite
}

func (s *ReadTestSuite) SetupTest() {
	s.WithPeripheral(testutils.DefaultPeripheral().
		WithService("abcd").
		WithCharacteristic("ab01", "read", []byte{0x00, 0x34, 0x12, 0x00, 0x00, 'o', 'k'}))
	s.CommandTestSuite.SetupTest()
}

func (s *ReadTestSuite) TestReadText() {
	// GOAL: Verify read prints every decoded representation of the value
	//
	// TEST SCENARIO: battery level 87 → dedicated parser fills int, hex shows 0x57

	stdout, _, err := s.ExecuteCommand("read", "00:00:00:00:00:01", "180f", "2a19")
	s.Require().NoError(err, "read MUST succeed")

	lines := s.Lines(stdout)
	s.Require().Len(lines, 5, "read MUST print int, float, text, raw and hex")
	s.Equal("int:   87", lines[0])
	s.Equal(`text:  ""`, lines[2])
	s.Equal("hex:   57", lines[4])
}

func (s *ReadTestSuite) TestReadKnown() {
	// GOAL: Verify --known resolves the well-known battery characteristic
	//
	// TEST SCENARIO: read --known battery with only an address → battery level printed

	stdout, _, err := s.ExecuteCommand("read", "00:00:00:00:00:01", "--known", "battery")
	s.Require().NoError(err, "known read MUST succeed")
	s.Contains(stdout, "int:   87")
}

func (s *ReadTestSuite) TestReadOffsetsJSON() {
	// GOAL: Verify offsets shift the int and text representations
	//
	// TEST SCENARIO: bytes 00 34 12 00 00 'o' 'k' with --int-offset 1 --text-offset 5 → int 0x1234 (little endian), text "ok"

	stdout, _, err := s.ExecuteCommand("read", "00:00:00:00:00:01", "abcd", "ab01",
		"--int-offset", "1", "--text-offset", "5", "-f", "json")
	s.Require().NoError(err, "read MUST succeed")

	testutils.NewJSONAsserter(s.T()).Assert(stdout, `{
		"type": "value_read",
		"address": "00:00:00:00:00:01",
		"service": "0000abcd-0000-1000-8000-00805f9b34fb",
		"characteristic": "0000ab01-0000-1000-8000-00805f9b34fb",
		"value": {"int": 4660, "text": "ok"},
		"timestamp": "<<PRESENCE>>"
	}`)
}

func (s *ReadTestSuite) TestReadArguments() {
	// GOAL: Verify argument validation for both addressing forms
	//
	// TEST SCENARIO: missing characteristic / unknown --known name → errors before connecting

	_, _, err := s.ExecuteCommand("read", "00:00:00:00:00:01", "180f")
	s.Require().Error(err, "two positional arguments MUST be rejected")

	resetFlags(rootCmd)
	_, _, err = s.ExecuteCommand("read", "00:00:00:00:00:01", "--known", "altitude")
	s.Require().Error(err)
	s.Contains(err.Error(), `unknown --known value "altitude"`)
}

func (s *ReadTestSuite) TestReadUnknownCharacteristic() {
	// GOAL: Verify lookup failures come back as NotFoundError
	//
	// TEST SCENARIO: read a characteristic the catalog lacks → NotFoundError, user hint points at inspect

	_, _, err := s.ExecuteCommand("read", "00:00:00:00:00:01", "180f", "2a1c")
	s.Require().Error(err)

	var nf *device.NotFoundError
	s.Require().ErrorAs(err, &nf, "lookup failure MUST be a NotFoundError")
	s.Contains(FormatUserError(err), "blecentral inspect")
}

func TestReadTestSuite(t *testing.T) {
	suite.Run(t, new(ReadTestSuite))
}
