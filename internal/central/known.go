package central

import (
	"fmt"

	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
)

// WriteFindMe sets the Immediate Alert level (0 none, 1 mid, 2 high).
func (c *Central) WriteFindMe(address string, level int) error {
	return c.writeAlertLevel(address, device.ServiceImmediateAlert, level)
}

// SetLinkLoss sets the Link Loss alert level (0 none, 1 mid, 2 high).
func (c *Central) SetLinkLoss(address string, level int) error {
	return c.writeAlertLevel(address, device.ServiceLinkLoss, level)
}

func (c *Central) writeAlertLevel(address, service string, level int) error {
	if level < device.AlertNone || level > device.AlertHigh {
		return fmt.Errorf("%w: alert level %d is outside 0..2", device.ErrInvalidArgument, level)
	}
	return c.Write(address, service, device.CharacteristicAlertLevel,
		IntPayload(int64(level), codec.FormatUint8, 0))
}

// KnownReads maps the convenience reads to their service and characteristic.
var KnownReads = map[string][2]string{
	"battery":     {device.ServiceBattery, device.CharacteristicBatteryLevel},
	"temperature": {device.ServiceHealthThermo, device.CharacteristicTemperature},
	"heart_rate":  {device.ServiceHeartRate, device.CharacteristicHeartRateMeasure},
	"tx_power":    {device.ServiceTxPower, device.CharacteristicTxPowerLevel},
	"link_loss":   {device.ServiceLinkLoss, device.CharacteristicAlertLevel},
}

// ReadKnown issues a read for one of the KnownReads names.
func (c *Central) ReadKnown(address, name string) error {
	target, ok := KnownReads[name]
	if !ok {
		return fmt.Errorf("%w: unknown characteristic %q", device.ErrInvalidArgument, name)
	}
	return c.Read(address, target[0], target[1], codec.Offsets{})
}
