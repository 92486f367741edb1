//go:build linux

package hci

import (
	"github.com/paypal/gatt"
	"github.com/srg/blecentral/internal/radio"
)

func properties(p gatt.Property) radio.Properties {
	var out radio.Properties
	if p&gatt.CharRead != 0 {
		out |= radio.PropRead
	}
	if p&gatt.CharWrite != 0 {
		out |= radio.PropWrite
	}
	if p&gatt.CharWriteNR != 0 {
		out |= radio.PropWriteNoResponse
	}
	if p&gatt.CharNotify != 0 {
		out |= radio.PropNotify
	}
	if p&gatt.CharIndicate != 0 {
		out |= radio.PropIndicate
	}
	return out
}

type peripheralID interface {
	ID() string
	Name() string
}

func toAdvertisement(p peripheralID, a *gatt.Advertisement, rssi int) radio.Advertisement {
	adv := radio.Advertisement{
		Address: p.ID(),
		Name:    p.Name(),
		RSSI:    rssi,
	}
	if a == nil {
		return adv
	}
	if a.LocalName != "" {
		adv.Name = a.LocalName
	}
	adv.Connectable = a.Connectable
	adv.ManufacturerData = a.ManufacturerData
	for _, u := range a.Services {
		adv.Services = append(adv.Services, u.String())
	}
	if a.TxPowerLevel != 0 {
		tx := a.TxPowerLevel
		adv.TxPower = &tx
	}
	return adv
}
