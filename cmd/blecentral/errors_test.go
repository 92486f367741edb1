package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
	"github.com/srg/blecentral/pkg/config"
	"github.com/stretchr/testify/assert"
)

func TestFormatUserError(t *testing.T) {
	// GOAL: Verify engine errors are turned into actionable one-line hints
	//
	// TEST SCENARIO: each error family (wrapped) → message keeps the cause and appends its hint

	tests := []struct {
		name     string
		err      error
		contains []string
	}{
		{
			name:     "missing characteristic",
			err:      fmt.Errorf("read: %w", &device.NotFoundError{Resource: "characteristic", UUIDs: []string{"180f", "2a1c"}}),
			contains: []string{"2a1c", "blecentral inspect"},
		},
		{
			name:     "adapter off",
			err:      fmt.Errorf("open: %w", device.ErrAdapterUnavailable),
			contains: []string{"Bluetooth enabled"},
		},
		{
			name:     "busy connection",
			err:      device.NewConnectionError(device.OperationInProgress, "read pending"),
			contains: []string{"read pending", "retry once"},
		},
		{
			name:     "value does not fit",
			err:      fmt.Errorf("encode: %w", codec.ErrOutOfRange),
			contains: []string{"invalid value:"},
		},
		{
			name:     "bad config",
			err:      fmt.Errorf("%w: rssi_delay must be positive", config.ErrInvalidConfig),
			contains: []string{"rssi_delay", "--config"},
		},
		{
			name:     "link lost",
			err:      fmt.Errorf("%w: supervision timeout", ErrConnectionLost),
			contains: []string{"supervision timeout", "out of range"},
		},
		{
			name:     "anything else",
			err:      errors.New("boom"),
			contains: []string{"boom"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := FormatUserError(tt.err)
			for _, want := range tt.contains {
				assert.Contains(t, msg, want)
			}
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
	assert.Equal(t, "", formatVersion(""))
}

func TestExitCodeError(t *testing.T) {
	err := fmt.Errorf("script: %w", &exitCodeError{code: 4})

	var exit *exitCodeError
	assert.True(t, errors.As(err, &exit))
	assert.Equal(t, 4, exit.code)
	assert.Equal(t, "exit status 4", exit.Error())
}
