//go:build test

package goble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/radio"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const testAddr = "AA:BB:CC:DD:EE:FF"

type RadioTestSuite struct {
	suite.Suite
	originalFactory func() (Device, error)

	dev     *MockDevice
	client  *MockClient
	handler *recordingHandler
	radio   *Radio
	profile *ble.Profile
}

func (s *RadioTestSuite) SetupSuite() {
	s.originalFactory = DeviceFactory
}

func (s *RadioTestSuite) TearDownSuite() {
	DeviceFactory = s.originalFactory
}

func (s *RadioTestSuite) SetupTest() {
	s.dev = &MockDevice{}
	s.client = NewMockClient()
	s.handler = newRecordingHandler()
	s.profile = &ble.Profile{Services: []*ble.Service{
		{
			UUID: ble.MustParse("180f"),
			Characteristics: []*ble.Characteristic{
				{UUID: ble.MustParse("2a19"), Property: ble.CharRead | ble.CharNotify},
			},
		},
		{
			UUID: ble.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e"),
			Characteristics: []*ble.Characteristic{
				{UUID: ble.MustParse("6e400002-b5a3-f393-e0a9-e50e24dcca9e"), Property: ble.CharWriteNR},
				{UUID: ble.MustParse("6e400003-b5a3-f393-e0a9-e50e24dcca9e"), Property: ble.CharIndicate | ble.CharWrite},
			},
		},
	}}

	dev := s.dev
	DeviceFactory = func() (Device, error) { return dev, nil }

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	r, err := New(s.handler, time.Second, logger)
	s.Require().NoError(err, "radio creation MUST succeed with a working device")
	s.radio = r
}

func (s *RadioTestSuite) next() callback {
	select {
	case c := <-s.handler.calls:
		return c
	case <-time.After(2 * time.Second):
		s.FailNow("expected a handler callback")
		return callback{}
	}
}

func (s *RadioTestSuite) connect() {
	s.dev.On("Dial", mock.Anything, testAddr).Return(s.client, nil).Once()
	s.Require().NoError(s.radio.Connect(testAddr))

	c := s.next()
	s.Require().Equal("state", c.kind)
	s.Require().Equal(radio.LinkConnected, c.state)
}

func (s *RadioTestSuite) discover() {
	s.client.On("DiscoverProfile", true).Return(s.profile, nil).Once()
	s.Require().NoError(s.radio.DiscoverServices(testAddr))
	c := s.next()
	s.Require().Equal("services", c.kind)
	s.Require().NoError(c.err)
}

func (s *RadioTestSuite) TestFactoryErrorIsNormalized() {
	DeviceFactory = func() (Device, error) {
		return nil, NormalizeError(fmt.Errorf("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"))
	}

	_, err := New(s.handler, time.Second, nil)
	s.ErrorIs(err, device.ErrAdapterUnavailable, "Bluetooth-off MUST surface as adapter unavailable")
}

func (s *RadioTestSuite) TestScanForwardsAdvertisements() {
	s.dev.advertisements = []radio.Advertisement{{Address: "11:22:33:44:55:66", Name: "Tag", RSSI: -40}}
	s.dev.On("Scan", mock.Anything, true, mock.Anything).Return(nil)

	s.Require().NoError(s.radio.StartScan(true))

	c := s.next()
	s.Equal("advertisement", c.kind)
	s.Equal("Tag", c.adv.Name)

	s.NoError(s.radio.StopScan())
	s.NoError(s.radio.StopScan(), "StopScan MUST be idempotent")
}

func (s *RadioTestSuite) TestConnectReportsDialFailure() {
	s.dev.On("Dial", mock.Anything, testAddr).Return(nil, errors.New("device not connected")).Once()

	s.Require().NoError(s.radio.Connect(testAddr), "Connect MUST accept the request immediately")

	c := s.next()
	s.Equal("state", c.kind)
	s.Equal(radio.LinkDisconnected, c.state)
	s.ErrorIs(c.err, device.ErrNotConnected)

	s.dev.On("Dial", mock.Anything, testAddr).Return(s.client, nil).Once()
	s.NoError(s.radio.Connect(testAddr), "failed attempt MUST NOT leave a stale link")
}

func (s *RadioTestSuite) TestConnectTwiceIsRejected() {
	s.connect()

	err := s.radio.Connect("aa:bb:cc:dd:ee:ff")
	s.ErrorIs(err, device.ErrAlreadyConnecting, "address comparison MUST ignore case")
}

func (s *RadioTestSuite) TestDiscoverServicesConvertsProfile() {
	// GOAL: the go-ble profile is flattened into positional service info
	//
	// TEST SCENARIO: discover a two-service profile → normalized UUIDs and converted property bits in order

	s.connect()
	s.client.On("DiscoverProfile", true).Return(s.profile, nil).Once()

	s.Require().NoError(s.radio.DiscoverServices(testAddr))
	c := s.next()
	s.Require().Equal("services", c.kind)
	s.Require().NoError(c.err)
	s.Require().Len(c.svcs, 2)

	s.Equal("180f", c.svcs[0].UUID)
	s.Equal("2a19", c.svcs[0].Characteristics[0].UUID)
	s.Equal(radio.PropRead|radio.PropNotify, c.svcs[0].Characteristics[0].Properties)
	s.Equal("6e400001b5a3f393e0a9e50e24dcca9e", c.svcs[1].UUID)
	s.Equal(radio.PropWriteNoResponse, c.svcs[1].Characteristics[0].Properties)
	s.Equal(radio.PropIndicate|radio.PropWrite, c.svcs[1].Characteristics[1].Properties)
}

func (s *RadioTestSuite) TestReadWriteSubscribeByRef() {
	s.connect()
	s.discover()

	battery := s.profile.Services[0].Characteristics[0]
	rx := s.profile.Services[1].Characteristics[0]
	tx := s.profile.Services[1].Characteristics[1]

	s.client.On("ReadCharacteristic", battery).Return([]byte{57}, nil).Once()
	s.Require().NoError(s.radio.ReadCharacteristic(testAddr, radio.CharRef{Service: 0, Char: 0}))
	c := s.next()
	s.Equal("read", c.kind)
	s.Equal([]byte{57}, c.value)

	s.client.On("WriteCharacteristic", rx, []byte("hi"), true).Return(nil).Once()
	s.Require().NoError(s.radio.WriteCharacteristic(testAddr, radio.CharRef{Service: 1, Char: 0}, []byte("hi"), false))
	c = s.next()
	s.Equal("write", c.kind)
	s.NoError(c.err)

	s.client.On("Subscribe", tx, true).Return(nil).Once()
	s.Require().NoError(s.radio.Subscribe(testAddr, radio.CharRef{Service: 1, Char: 1}, true))
	c = s.next()
	s.Equal("subscribed", c.kind)
	s.NoError(c.err)

	s.client.notify([]byte{1, 2})
	c = s.next()
	s.Equal("notification", c.kind)
	s.Equal(radio.CharRef{Service: 1, Char: 1}, c.ref)
	s.Equal([]byte{1, 2}, c.value)

	s.client.AssertExpectations(s.T())
}

func (s *RadioTestSuite) TestOperationsRequireDiscoveredRef() {
	s.connect()

	err := s.radio.ReadCharacteristic(testAddr, radio.CharRef{})
	s.ErrorIs(err, device.ErrNotReady, "read before discovery MUST fail")

	s.discover()

	err = s.radio.ReadCharacteristic(testAddr, radio.CharRef{Service: 5})
	s.ErrorIs(err, device.ErrServiceNotFound)
	err = s.radio.ReadCharacteristic(testAddr, radio.CharRef{Service: 0, Char: 3})
	s.ErrorIs(err, device.ErrCharacteristicNotFound)

	err = s.radio.ReadRSSI("11:11:11:11:11:11")
	s.ErrorIs(err, device.ErrNotConnected)
}

func (s *RadioTestSuite) TestReadRSSI() {
	s.connect()
	s.client.On("ReadRSSI").Return(-55).Once()

	s.Require().NoError(s.radio.ReadRSSI(testAddr))
	c := s.next()
	s.Equal("rssi", c.kind)
	s.Equal(-55, c.rssi)
}

func (s *RadioTestSuite) TestDisconnect() {
	s.connect()
	cancelled := make(chan struct{})
	s.client.On("CancelConnection").Return(nil).Once().Run(func(mock.Arguments) { close(cancelled) })

	s.Require().NoError(s.radio.Disconnect(testAddr))
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		s.FailNow("CancelConnection MUST be called")
	}

	close(s.client.disconnected)
	select {
	case extra := <-s.handler.calls:
		s.Failf("unexpected callback", "explicit disconnect MUST NOT be reported, got %s", extra.kind)
	case <-time.After(100 * time.Millisecond):
	}

	s.ErrorIs(s.radio.Disconnect(testAddr), device.ErrNotConnected)
}

func (s *RadioTestSuite) TestLinkLossIsReported() {
	s.connect()

	close(s.client.disconnected)

	c := s.next()
	s.Equal("state", c.kind)
	s.Equal(radio.LinkDisconnected, c.state)
	s.ErrorIs(s.radio.ReadRSSI(testAddr), device.ErrNotConnected, "lost link MUST be forgotten")
}

func (s *RadioTestSuite) TestCloseCancelsEverything() {
	s.connect()
	s.client.On("CancelConnection").Return(nil).Once()
	s.dev.On("Stop").Return(nil).Once()

	s.NoError(s.radio.Close())
	s.NoError(s.radio.Close(), "Close MUST be idempotent")
	s.ErrorIs(s.radio.Connect(testAddr), device.ErrClosed)

	s.client.AssertExpectations(s.T())
	s.dev.AssertExpectations(s.T())
}

func TestRadioTestSuite(t *testing.T) {
	suite.Run(t, new(RadioTestSuite))
}

func TestNormalizeError(t *testing.T) {
	cases := []struct {
		in     error
		target error
	}{
		{errors.New("bluetooth is turned off"), device.ErrAdapterUnavailable},
		{errors.New("can't init hci: no devices available"), device.ErrAdapterUnavailable},
		{errors.New("Device not connected"), device.ErrNotConnected},
		{errors.New("device already connected"), device.ErrAlreadyConnecting},
	}
	for _, tc := range cases {
		err := NormalizeError(tc.in)
		if !errors.Is(err, tc.target) {
			t.Errorf("NormalizeError(%q) MUST match %v, got %v", tc.in, tc.target, err)
		}
	}

	if NormalizeError(nil) != nil {
		t.Error("NormalizeError(nil) MUST be nil")
	}
	plain := errors.New("some other error")
	if NormalizeError(plain) != plain {
		t.Error("unknown errors MUST pass through unchanged")
	}
	if !errors.Is(NormalizeError(context.Canceled), context.Canceled) {
		t.Error("context errors MUST pass through")
	}
}
