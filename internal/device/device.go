package device

import (
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a GATT resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic", "device"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// Is allows errors.Is to compare NotFoundError values by Resource
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Resource == t.Resource
}

// Sentinels for errors.Is checks against NotFoundError
var (
	ErrServiceNotFound        = &NotFoundError{Resource: "service"}
	ErrCharacteristicNotFound = &NotFoundError{Resource: "characteristic"}
	ErrDeviceNotFound         = &NotFoundError{Resource: "device"}
)

// ConnectionState represents the specific kind of session or link state failure
type ConnectionState string

const (
	NotConnected        ConnectionState = "not_connected"
	AlreadyConnecting   ConnectionState = "already_connecting"
	NotReady            ConnectionState = "not_ready"
	OperationInProgress ConnectionState = "operation_in_progress"
	AdapterUnavailable  ConnectionState = "adapter_unavailable"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected        = &ConnectionError{State: NotConnected}
	ErrAlreadyConnecting   = &ConnectionError{State: AlreadyConnecting}
	ErrNotReady            = &ConnectionError{State: NotReady}
	ErrOperationInProgress = &ConnectionError{State: OperationInProgress}
	ErrAdapterUnavailable  = &ConnectionError{State: AdapterUnavailable}
)

// Operation errors
var (
	ErrValueUnavailable = errors.New("value unavailable: characteristic has not been read or notified yet")
	ErrUnsupported      = errors.New("unsupported")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrClosed           = errors.New("central closed")
)

// NewConnectionError builds a ConnectionError carrying an address or other detail.
func NewConnectionError(state ConnectionState, format string, args ...any) error {
	return &ConnectionError{State: state, Msg: fmt.Sprintf(format, args...)}
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// NormalizeAddress returns the canonical registry key for a peripheral address.
func NormalizeAddress(address string) string {
	return strings.ToUpper(strings.TrimSpace(address))
}
