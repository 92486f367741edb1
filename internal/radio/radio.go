// Package radio defines the boundary between the central engine and a BLE
// driver stack.
//
// A Radio accepts requests and returns immediately; every outcome is
// reported later through the Handler it was created with. Implementations
// must never invoke the Handler synchronously from inside a request method,
// and may invoke it from any goroutine.
package radio

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// Advertisement is one discovery sighting.
type Advertisement struct {
	Address          string
	Name             string
	RSSI             int
	Connectable      bool
	Services         []string
	ManufacturerData []byte
	TxPower          *int
}

// LinkState is the state reported by a connection-state callback.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnected
)

func (s LinkState) String() string {
	if s == LinkConnected {
		return "connected"
	}
	return "disconnected"
}

// Properties is the capability bitmask of a characteristic.
type Properties uint8

const (
	PropRead Properties = 1 << iota
	PropWrite
	PropWriteNoResponse
	PropNotify
	PropIndicate
)

// Has reports whether all bits of p2 are set.
func (p Properties) Has(p2 Properties) bool {
	return p&p2 == p2
}

// CanSubscribe reports whether the characteristic supports notify or indicate.
func (p Properties) CanSubscribe() bool {
	return p&(PropNotify|PropIndicate) != 0
}

func (p Properties) String() string {
	var parts []string
	if p.Has(PropRead) {
		parts = append(parts, "read")
	}
	if p.Has(PropWrite) {
		parts = append(parts, "write")
	}
	if p.Has(PropWriteNoResponse) {
		parts = append(parts, "write-no-response")
	}
	if p.Has(PropNotify) {
		parts = append(parts, "notify")
	}
	if p.Has(PropIndicate) {
		parts = append(parts, "indicate")
	}
	return strings.Join(parts, ",")
}

// CharacteristicInfo describes a discovered characteristic.
type CharacteristicInfo struct {
	UUID       string
	Properties Properties
}

// ServiceInfo describes a discovered service and its characteristics in
// discovery order.
type ServiceInfo struct {
	UUID            string
	Characteristics []CharacteristicInfo
}

// CharRef locates a characteristic by position in the discovered tree.
// Positions stay unambiguous when UUIDs repeat.
type CharRef struct {
	Service int
	Char    int
}

// Handler receives radio completions.
type Handler interface {
	OnAdvertisement(adv Advertisement)
	OnConnectionState(address string, state LinkState, err error)
	OnServicesDiscovered(address string, services []ServiceInfo, err error)
	OnCharacteristicRead(address string, ref CharRef, value []byte, err error)
	OnCharacteristicWrite(address string, ref CharRef, err error)
	OnSubscribed(address string, ref CharRef, err error)
	OnNotification(address string, ref CharRef, value []byte)
	OnRSSI(address string, rssi int, err error)
}

// Radio is the consumed driver capability.
type Radio interface {
	StartScan(allowDuplicates bool) error
	StopScan() error
	Connect(address string) error
	// Disconnect drops the link. Unlike a link loss, an explicit disconnect
	// is not reported through OnConnectionState.
	Disconnect(address string) error
	DiscoverServices(address string) error
	ReadCharacteristic(address string, ref CharRef) error
	WriteCharacteristic(address string, ref CharRef, value []byte, withResponse bool) error
	// Subscribe writes the client characteristic configuration descriptor,
	// enabling indications when indicate is true and notifications otherwise.
	Subscribe(address string, ref CharRef, indicate bool) error
	ReadRSSI(address string) error
	Close() error
}

// Factory creates a Radio reporting to h. A failing factory means no usable
// adapter is present.
type Factory func(h Handler, logger *logrus.Logger) (Radio, error)
