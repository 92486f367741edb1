package central

import (
	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/radio"
)

// Characteristic is a discovered characteristic with its value cache.
type Characteristic struct {
	UUID       string
	Service    string
	Properties radio.Properties
	Ref        radio.CharRef

	value      codec.Reading
	hasValue   bool
	offsets    codec.Offsets
	subscribed bool
}

// Value returns the last read, written or notified value.
func (c *Characteristic) Value() (codec.Reading, error) {
	if !c.hasValue {
		return codec.Reading{}, device.ErrValueUnavailable
	}
	return c.value, nil
}

func (c *Characteristic) store(r codec.Reading) {
	c.value = r
	c.hasValue = true
}

// cachedBytes is the base a partial integer write is encoded over.
func (c *Characteristic) cachedBytes() []byte {
	if !c.hasValue {
		return nil
	}
	return c.value.Bytes
}

// Service is a discovered service.
type Service struct {
	UUID            string
	Characteristics []*Characteristic
}

// Catalog is the service tree of one connection, in discovery order.
type Catalog struct {
	services []*Service
}

func newCatalog(infos []radio.ServiceInfo) *Catalog {
	cat := &Catalog{services: make([]*Service, 0, len(infos))}
	for si, info := range infos {
		svc := &Service{UUID: device.NormalizeUUID(info.UUID)}
		for ci, ch := range info.Characteristics {
			svc.Characteristics = append(svc.Characteristics, &Characteristic{
				UUID:       device.NormalizeUUID(ch.UUID),
				Service:    svc.UUID,
				Properties: ch.Properties,
				Ref:        radio.CharRef{Service: si, Char: ci},
			})
		}
		cat.services = append(cat.services, svc)
	}
	return cat
}

// Lookup finds a characteristic by service and characteristic UUID. Duplicate
// UUIDs resolve to the first match in discovery order.
func (c *Catalog) Lookup(serviceUUID, charUUID string) (*Characteristic, error) {
	svcKey := device.NormalizeUUID(serviceUUID)
	charKey := device.NormalizeUUID(charUUID)

	for _, svc := range c.services {
		if svc.UUID != svcKey {
			continue
		}
		for _, ch := range svc.Characteristics {
			if ch.UUID == charKey {
				return ch, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{serviceUUID, charUUID}}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{serviceUUID}}
}

// At returns the characteristic at ref, or nil.
func (c *Catalog) At(ref radio.CharRef) *Characteristic {
	if ref.Service < 0 || ref.Service >= len(c.services) {
		return nil
	}
	chars := c.services[ref.Service].Characteristics
	if ref.Char < 0 || ref.Char >= len(chars) {
		return nil
	}
	return chars[ref.Char]
}

// ServiceView is a read-only copy of a discovered service.
type ServiceView struct {
	UUID            string               `json:"uuid"`
	Characteristics []CharacteristicView `json:"characteristics"`
}

// CharacteristicView is a read-only copy of a discovered characteristic.
type CharacteristicView struct {
	UUID       string           `json:"uuid"`
	Properties radio.Properties `json:"-"`
	Flags      string           `json:"properties"`
	Subscribed bool             `json:"subscribed"`
	HasValue   bool             `json:"has_value"`
	Value      codec.Reading    `json:"value"`
}

func (c *Catalog) snapshot() []ServiceView {
	out := make([]ServiceView, 0, len(c.services))
	for _, svc := range c.services {
		view := ServiceView{UUID: svc.UUID}
		for _, ch := range svc.Characteristics {
			view.Characteristics = append(view.Characteristics, CharacteristicView{
				UUID:       ch.UUID,
				Properties: ch.Properties,
				Flags:      ch.Properties.String(),
				Subscribed: ch.subscribed,
				HasValue:   ch.hasValue,
				Value:      ch.value,
			})
		}
		out = append(out, view)
	}
	return out
}
