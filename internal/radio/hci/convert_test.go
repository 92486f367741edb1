//go:build linux

package hci

import (
	"testing"

	"github.com/paypal/gatt"
	"github.com/srg/blecentral/internal/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPeripheral struct{ id, name string }

func (s stubPeripheral) ID() string   { return s.id }
func (s stubPeripheral) Name() string { return s.name }

func TestProperties(t *testing.T) {
	got := properties(gatt.CharRead | gatt.CharWriteNR | gatt.CharIndicate)
	assert.Equal(t, radio.PropRead|radio.PropWriteNoResponse|radio.PropIndicate, got)
	assert.Equal(t, radio.Properties(0), properties(gatt.CharBroadcast))
}

func TestToAdvertisement(t *testing.T) {
	adv := toAdvertisement(stubPeripheral{id: "aa:bb:cc:dd:ee:ff", name: "cached"}, &gatt.Advertisement{
		LocalName:        "Band",
		Connectable:      true,
		ManufacturerData: []byte{0x01},
		Services:         []gatt.UUID{gatt.UUID16(0x180d)},
		TxPowerLevel:     -8,
	}, -61)

	assert.Equal(t, "aa:bb:cc:dd:ee:ff", adv.Address)
	assert.Equal(t, "Band", adv.Name, "advertised local name MUST win over the cached name")
	assert.Equal(t, -61, adv.RSSI)
	assert.True(t, adv.Connectable)
	assert.Equal(t, []string{"180d"}, adv.Services)
	require.NotNil(t, adv.TxPower)
	assert.Equal(t, -8, *adv.TxPower)

	bare := toAdvertisement(stubPeripheral{id: "x", name: "cached"}, nil, -90)
	assert.Equal(t, "cached", bare.Name)
	assert.Nil(t, bare.TxPower)
}
