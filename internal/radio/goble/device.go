package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/radio"
)

// txPowerUnset is what go-ble reports when an advertisement has no TX power field.
const txPowerUnset = 127

// Client is the part of ble.Client the backend uses.
type Client interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	ReadRSSI() int
	CancelConnection() error
	Disconnected() <-chan struct{}
}

// Device is the part of ble.Device the backend uses.
type Device interface {
	Scan(ctx context.Context, allowDup bool, h func(radio.Advertisement)) error
	Dial(ctx context.Context, address string) (Client, error)
	Stop() error
}

// DeviceFactory creates the platform device (can be overridden in tests).
var DeviceFactory = func() (Device, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		return nil, NormalizeError(err)
	}
	return &bleDevice{dev: dev}, nil
}

// bleDevice adapts ble.Device to Device.
type bleDevice struct {
	dev ble.Device
}

func (d *bleDevice) Scan(ctx context.Context, allowDup bool, h func(radio.Advertisement)) error {
	return d.dev.Scan(ctx, allowDup, func(a ble.Advertisement) {
		h(toAdvertisement(a))
	})
}

func (d *bleDevice) Dial(ctx context.Context, address string) (Client, error) {
	client, err := d.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (d *bleDevice) Stop() error {
	return d.dev.Stop()
}

func toAdvertisement(a ble.Advertisement) radio.Advertisement {
	adv := radio.Advertisement{
		Address:          a.Addr().String(),
		Name:             a.LocalName(),
		RSSI:             a.RSSI(),
		Connectable:      a.Connectable(),
		ManufacturerData: a.ManufacturerData(),
	}
	for _, u := range a.Services() {
		adv.Services = append(adv.Services, u.String())
	}
	if tx := a.TxPowerLevel(); tx != txPowerUnset {
		adv.TxPower = &tx
	}
	return adv
}

// properties converts go-ble property bits.
func properties(p ble.Property) radio.Properties {
	var out radio.Properties
	if p&ble.CharRead != 0 {
		out |= radio.PropRead
	}
	if p&ble.CharWrite != 0 {
		out |= radio.PropWrite
	}
	if p&ble.CharWriteNR != 0 {
		out |= radio.PropWriteNoResponse
	}
	if p&ble.CharNotify != 0 {
		out |= radio.PropNotify
	}
	if p&ble.CharIndicate != 0 {
		out |= radio.PropIndicate
	}
	return out
}

func toServiceInfos(p *ble.Profile) []radio.ServiceInfo {
	if p == nil {
		return nil
	}
	services := make([]radio.ServiceInfo, 0, len(p.Services))
	for _, s := range p.Services {
		info := radio.ServiceInfo{UUID: device.NormalizeUUID(s.UUID.String())}
		for _, c := range s.Characteristics {
			info.Characteristics = append(info.Characteristics, radio.CharacteristicInfo{
				UUID:       device.NormalizeUUID(c.UUID.String()),
				Properties: properties(c.Property),
			})
		}
		services = append(services, info)
	}
	return services
}

func characteristicAt(p *ble.Profile, ref radio.CharRef) (*ble.Characteristic, error) {
	if p == nil {
		return nil, device.ErrNotReady
	}
	if ref.Service < 0 || ref.Service >= len(p.Services) {
		return nil, &device.NotFoundError{Resource: "service"}
	}
	chars := p.Services[ref.Service].Characteristics
	if ref.Char < 0 || ref.Char >= len(chars) {
		return nil, &device.NotFoundError{Resource: "characteristic"}
	}
	return chars[ref.Char], nil
}
