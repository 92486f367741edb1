package goble

import (
	"fmt"
	"strings"

	"github.com/srg/blecentral/internal/device"
)

// NormalizeError maps known go-ble error strings to the engine's sentinel errors.
// The original error is kept in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "is bluetooth turned on"),
		strings.Contains(msg, "bluetooth is turned off"),
		strings.Contains(msg, "can't init hci"),
		strings.Contains(msg, "no such device"):
		return fmt.Errorf("%w: %v", device.ErrAdapterUnavailable, err)
	case strings.Contains(msg, "device not connected"),
		strings.Contains(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case strings.Contains(msg, "already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnecting, err)
	default:
		return err
	}
}
