//go:build test

package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/blecentral/internal/radio"
	"github.com/stretchr/testify/mock"
)

type MockDevice struct {
	mock.Mock
	advertisements []radio.Advertisement
}

func (m *MockDevice) Scan(ctx context.Context, allowDup bool, h func(radio.Advertisement)) error {
	args := m.Called(ctx, allowDup, h)
	for _, adv := range m.advertisements {
		h(adv)
	}
	if err := args.Error(0); err != nil {
		return err
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockDevice) Dial(ctx context.Context, address string) (Client, error) {
	args := m.Called(ctx, address)
	client, _ := args.Get(0).(Client)
	return client, args.Error(1)
}

func (m *MockDevice) Stop() error {
	return m.Called().Error(0)
}

type MockClient struct {
	mock.Mock
	disconnected chan struct{}
	notify       ble.NotificationHandler
}

func NewMockClient() *MockClient {
	return &MockClient{disconnected: make(chan struct{})}
}

func (m *MockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	profile, _ := args.Get(0).(*ble.Profile)
	return profile, args.Error(1)
}

func (m *MockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	value, _ := args.Get(0).([]byte)
	return value, args.Error(1)
}

func (m *MockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *MockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	m.notify = h
	return m.Called(c, ind).Error(0)
}

func (m *MockClient) ReadRSSI() int {
	return m.Called().Int(0)
}

func (m *MockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *MockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

// callback is one recorded Handler invocation.
type callback struct {
	kind    string
	address string
	state   radio.LinkState
	ref     radio.CharRef
	value   []byte
	rssi    int
	adv     radio.Advertisement
	svcs    []radio.ServiceInfo
	err     error
}

type recordingHandler struct {
	calls chan callback
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{calls: make(chan callback, 64)}
}

func (h *recordingHandler) OnAdvertisement(adv radio.Advertisement) {
	h.calls <- callback{kind: "advertisement", address: adv.Address, adv: adv}
}

func (h *recordingHandler) OnConnectionState(address string, state radio.LinkState, err error) {
	h.calls <- callback{kind: "state", address: address, state: state, err: err}
}

func (h *recordingHandler) OnServicesDiscovered(address string, services []radio.ServiceInfo, err error) {
	h.calls <- callback{kind: "services", address: address, svcs: services, err: err}
}

func (h *recordingHandler) OnCharacteristicRead(address string, ref radio.CharRef, value []byte, err error) {
	h.calls <- callback{kind: "read", address: address, ref: ref, value: value, err: err}
}

func (h *recordingHandler) OnCharacteristicWrite(address string, ref radio.CharRef, err error) {
	h.calls <- callback{kind: "write", address: address, ref: ref, err: err}
}

func (h *recordingHandler) OnSubscribed(address string, ref radio.CharRef, err error) {
	h.calls <- callback{kind: "subscribed", address: address, ref: ref, err: err}
}

func (h *recordingHandler) OnNotification(address string, ref radio.CharRef, value []byte) {
	h.calls <- callback{kind: "notification", address: address, ref: ref, value: value}
}

func (h *recordingHandler) OnRSSI(address string, rssi int, err error) {
	h.calls <- callback{kind: "rssi", address: address, rssi: rssi, err: err}
}
