//go:build test

package testutils

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/srg/blecentral/internal/radio"
)

// CharacteristicConfig describes one simulated characteristic.
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g. "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig describes one simulated service.
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralConfig is the complete simulated peripheral: what it advertises
// and the GATT tree it exposes once connected.
type PeripheralConfig struct {
	Address     string          `json:"address"`
	Name        string          `json:"name,omitempty"`
	RSSI        int             `json:"rssi"`
	LinkRSSI    int             `json:"link_rssi"`
	Connectable bool            `json:"connectable"`
	Advertised  []string        `json:"advertised_services,omitempty"`
	Services    []ServiceConfig `json:"services"`
}

// PeripheralBuilder assembles a PeripheralConfig with a fluent API.
//
//	p := testutils.NewPeripheralBuilder("AA:BB:CC:DD:EE:01").
//	    WithName("Thermo").WithRSSI(-40).
//	    WithService("180f").
//	    WithCharacteristic("2a19", "read,notify", []byte{80})
type PeripheralBuilder struct {
	cfg PeripheralConfig
}

// NewPeripheralBuilder creates a connectable peripheral with no services.
func NewPeripheralBuilder(address string) *PeripheralBuilder {
	return &PeripheralBuilder{cfg: PeripheralConfig{
		Address:     address,
		RSSI:        -50,
		LinkRSSI:    -45,
		Connectable: true,
	}}
}

// FromJSON loads a PeripheralConfig. The format string is expanded with args
// first. Panics on malformed JSON.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	raw := fmt.Sprintf(jsonStrFmt, args...)
	cfg := b.cfg
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		panic(fmt.Sprintf("invalid peripheral JSON: %v\n%s", err, raw))
	}
	b.cfg = cfg
	return b
}

func (b *PeripheralBuilder) WithName(name string) *PeripheralBuilder {
	b.cfg.Name = name
	return b
}

func (b *PeripheralBuilder) WithRSSI(rssi int) *PeripheralBuilder {
	b.cfg.RSSI = rssi
	return b
}

// WithLinkRSSI sets what ReadRSSI reports once connected.
func (b *PeripheralBuilder) WithLinkRSSI(rssi int) *PeripheralBuilder {
	b.cfg.LinkRSSI = rssi
	return b
}

func (b *PeripheralBuilder) WithAdvertisedServices(uuids ...string) *PeripheralBuilder {
	b.cfg.Advertised = append(b.cfg.Advertised, uuids...)
	return b
}

// WithService appends a service; following WithCharacteristic calls add to it.
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.cfg.Services = append(b.cfg.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service.
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralBuilder {
	if len(b.cfg.Services) == 0 {
		panic("WithCharacteristic called before WithService")
	}
	last := &b.cfg.Services[len(b.cfg.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// Config returns a copy of the assembled configuration.
func (b *PeripheralBuilder) Config() PeripheralConfig {
	return b.cfg
}

// Advertisement returns what the peripheral broadcasts while scanned.
func (b *PeripheralBuilder) Advertisement() radio.Advertisement {
	return radio.Advertisement{
		Address:     b.cfg.Address,
		Name:        b.cfg.Name,
		RSSI:        b.cfg.RSSI,
		Connectable: b.cfg.Connectable,
		Services:    append([]string(nil), b.cfg.Advertised...),
	}
}

// ServiceInfos returns the tree reported by service discovery.
func (b *PeripheralBuilder) ServiceInfos() []radio.ServiceInfo {
	infos := make([]radio.ServiceInfo, 0, len(b.cfg.Services))
	for _, svc := range b.cfg.Services {
		info := radio.ServiceInfo{UUID: svc.UUID}
		for _, ch := range svc.Characteristics {
			info.Characteristics = append(info.Characteristics, radio.CharacteristicInfo{
				UUID:       ch.UUID,
				Properties: ParseProperties(ch.Properties),
			})
		}
		infos = append(infos, info)
	}
	return infos
}

// ParseProperties converts "read,write,notify" style lists into a bitmask.
// Unknown names panic so typos surface in the test that made them.
func ParseProperties(s string) radio.Properties {
	var p radio.Properties
	for _, name := range strings.Split(s, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "":
		case "read":
			p |= radio.PropRead
		case "write":
			p |= radio.PropWrite
		case "write-no-response", "writenr", "write_without_response":
			p |= radio.PropWriteNoResponse
		case "notify":
			p |= radio.PropNotify
		case "indicate":
			p |= radio.PropIndicate
		default:
			panic(fmt.Sprintf("unknown characteristic property %q", name))
		}
	}
	return p
}
