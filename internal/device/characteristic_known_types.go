package device

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/srg/blecentral/internal/codec"
)

// Well-known GATT service UUIDs (16-bit short form, normalized without dashes)
const (
	ServiceImmediateAlert = "1802" // Find Me profile
	ServiceLinkLoss       = "1803"
	ServiceTxPower        = "1804"
	ServiceHealthThermo   = "1809"
	ServiceHeartRate      = "180d"
	ServiceBattery        = "180f"
)

// Well-known GATT characteristic UUIDs
const (
	CharacteristicAlertLevel       = "2a06"
	CharacteristicTxPowerLevel     = "2a07"
	CharacteristicBatteryLevel     = "2a19"
	CharacteristicTemperature      = "2a1c"
	CharacteristicHeartRateMeasure = "2a37"
)

// Alert levels accepted by the Alert Level characteristic
const (
	AlertNone = 0
	AlertMid  = 1
	AlertHigh = 2
)

// AlertLevelLabel renders an Alert Level value the way it is shown to users.
func AlertLevelLabel(level int64) string {
	switch level {
	case AlertNone:
		return "No Alert"
	case AlertMid:
		return "Mid Alert"
	default:
		return "High Alert"
	}
}

// CharacteristicParser turns a raw payload into a Reading with only the
// meaningful slot filled.
type CharacteristicParser func([]byte) (codec.Reading, error)

func parseUint8(value []byte) (codec.Reading, error) {
	if len(value) < 1 {
		return codec.Reading{}, fmt.Errorf("value must be at least 1 byte: %w",
			&codec.OutOfRangeError{Offset: 0, Width: 1, Len: len(value)})
	}
	return codec.Reading{Int: int64(value[0])}, nil
}

// parseTemperature decodes the Temperature Measurement characteristic (0x2A1C).
// Byte 0 selects the unit, bytes 1..2 hold the little-endian magnitude.
func parseTemperature(value []byte) (codec.Reading, error) {
	if len(value) < 3 {
		return codec.Reading{}, fmt.Errorf("temperature value must be at least 3 bytes: %w",
			&codec.OutOfRangeError{Offset: 1, Width: 2, Len: len(value)})
	}

	unit := "Celsius"
	if value[0] != 0 {
		unit = "Fahrenheit"
	}
	magnitude := binary.LittleEndian.Uint16(value[1:3])
	return codec.Reading{Text: strconv.FormatFloat(float64(magnitude), 'f', 1, 32) + unit}, nil
}

// parseHeartRate decodes the Heart Rate Measurement characteristic (0x2A37).
// Flag bit 0 selects an 8-bit or a 16-bit little-endian value field.
func parseHeartRate(value []byte) (codec.Reading, error) {
	if len(value) < 2 {
		return codec.Reading{}, fmt.Errorf("heart rate value must be at least 2 bytes: %w",
			&codec.OutOfRangeError{Offset: 1, Width: 1, Len: len(value)})
	}

	var bpm uint16
	if value[0]&0x01 == 0 {
		bpm = uint16(value[1])
	} else {
		if len(value) < 3 {
			return codec.Reading{}, fmt.Errorf("16-bit heart rate value must be at least 3 bytes: %w",
				&codec.OutOfRangeError{Offset: 1, Width: 2, Len: len(value)})
		}
		bpm = binary.LittleEndian.Uint16(value[1:3])
	}
	return codec.Reading{Text: strconv.Itoa(int(bpm)) + "times/sec"}, nil
}

// characteristicParsers maps normalized characteristic UUIDs to their parser functions
var characteristicParsers = map[string]CharacteristicParser{
	CharacteristicBatteryLevel:     parseUint8,
	CharacteristicTxPowerLevel:     parseUint8,
	CharacteristicAlertLevel:       parseUint8,
	CharacteristicTemperature:      parseTemperature,
	CharacteristicHeartRateMeasure: parseHeartRate,
}

// IsParsableCharacteristic returns true if the characteristic UUID has a dedicated decoder
func IsParsableCharacteristic(uuid string) bool {
	_, exists := characteristicParsers[NormalizeUUID(uuid)]
	return exists
}

// DecodeCharacteristicValue decodes a payload for the given characteristic.
// Well-known characteristics use their dedicated parser; everything else gets
// the generic four-slot decode at the supplied offsets. A parser failure
// yields an all-zero Reading carrying the error in DecodeErr.
func DecodeCharacteristicValue(uuid string, value []byte, offsets codec.Offsets) codec.Reading {
	parser, exists := characteristicParsers[NormalizeUUID(uuid)]
	if !exists {
		return codec.DecodeAll(value, offsets)
	}

	r, err := parser(value)
	r.Bytes = append([]byte(nil), value...)
	r.DecodeErr = err
	return r
}
