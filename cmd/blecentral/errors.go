package main

import (
	"errors"
	"fmt"

	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/pkg/config"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped while a command was still
	// waiting on it.
	ErrConnectionLost = errors.New("connection lost")
)

// exitCodeError carries a script's exit code out of the run command.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// FormatUserError turns engine errors into one-line hints for the terminal.
func FormatUserError(err error) string {
	var nf *device.NotFoundError
	switch {
	case errors.As(err, &nf):
		return fmt.Sprintf("%s (run 'blecentral inspect <address>' to list the GATT catalog)", err)
	case errors.Is(err, device.ErrAdapterUnavailable):
		return fmt.Sprintf("%s (is Bluetooth enabled and accessible to this user?)", err)
	case errors.Is(err, device.ErrAlreadyConnecting):
		return fmt.Sprintf("%s (the engine already holds a connection to this peripheral)", err)
	case errors.Is(err, device.ErrNotReady), errors.Is(err, device.ErrOperationInProgress):
		return fmt.Sprintf("%s (retry once the previous operation completes)", err)
	case errors.Is(err, codec.ErrOutOfRange), errors.Is(err, codec.ErrUnknownFormat):
		return fmt.Sprintf("invalid value: %s", err)
	case errors.Is(err, config.ErrInvalidConfig):
		return fmt.Sprintf("%s (check --config and flag values)", err)
	case errors.Is(err, ErrConnectionLost):
		return fmt.Sprintf("%s (peripheral out of range or powered off?)", err)
	default:
		return err.Error()
	}
}
