//go:build !linux

package hci

import (
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/internal/radio"
)

// NewFactory returns a factory that always fails outside Linux.
func NewFactory(_ time.Duration) radio.Factory {
	return func(radio.Handler, *logrus.Logger) (radio.Radio, error) {
		return nil, fmt.Errorf("%w: hci backend requires linux, running on %s", device.ErrAdapterUnavailable, runtime.GOOS)
	}
}
