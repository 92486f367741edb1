//go:build !darwin && !linux

package goble

import (
	"errors"

	"github.com/go-ble/ble"
)

func newPlatformDevice() (ble.Device, error) {
	return nil, errors.New("go-ble backend is not supported on this platform")
}
