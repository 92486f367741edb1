//go:build test

package testutils

import (
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/radio"
	"github.com/stretchr/testify/mock"
)

// MockRadio records radio requests with testify/mock and exposes the handler
// the engine registered, so tests can fire completions at will.
//
//	mr := testutils.NewMockRadio()
//	mr.On("Connect", addr).Return(nil)
//	c, _ := central.New(mr.Factory(), opts, logger)
//	mr.Handler().OnConnectionState(addr, radio.LinkConnected, nil)
type MockRadio struct {
	mock.Mock

	mu      sync.Mutex
	handler radio.Handler
}

// NewMockRadio creates a MockRadio with no expectations.
func NewMockRadio() *MockRadio {
	return &MockRadio{}
}

// Factory returns a radio.Factory handing out this mock.
func (m *MockRadio) Factory() radio.Factory {
	return func(h radio.Handler, _ *logrus.Logger) (radio.Radio, error) {
		m.mu.Lock()
		m.handler = h
		m.mu.Unlock()
		return m, nil
	}
}

// Handler returns the handler captured by Factory.
func (m *MockRadio) Handler() radio.Handler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handler
}

func (m *MockRadio) StartScan(allowDuplicates bool) error {
	return m.Called(allowDuplicates).Error(0)
}

func (m *MockRadio) StopScan() error {
	return m.Called().Error(0)
}

func (m *MockRadio) Connect(address string) error {
	return m.Called(address).Error(0)
}

func (m *MockRadio) Disconnect(address string) error {
	return m.Called(address).Error(0)
}

func (m *MockRadio) DiscoverServices(address string) error {
	return m.Called(address).Error(0)
}

func (m *MockRadio) ReadCharacteristic(address string, ref radio.CharRef) error {
	return m.Called(address, ref).Error(0)
}

func (m *MockRadio) WriteCharacteristic(address string, ref radio.CharRef, value []byte, withResponse bool) error {
	return m.Called(address, ref, value, withResponse).Error(0)
}

func (m *MockRadio) Subscribe(address string, ref radio.CharRef, indicate bool) error {
	return m.Called(address, ref, indicate).Error(0)
}

func (m *MockRadio) ReadRSSI(address string) error {
	return m.Called(address).Error(0)
}

func (m *MockRadio) Close() error {
	return m.Called().Error(0)
}
