package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"16-bit lowercase", "2a19", "2a19"},
		{"16-bit uppercase", "2A19", "2a19"},
		{"16-bit with 0x prefix", "0x2902", "2902"},
		{"16-bit with 0X prefix", "0X2902", "2902"},
		{"SIG base with dashes", "0000180f-0000-1000-8000-00805f9b34fb", "180f"},
		{"SIG base without dashes", "0000180f00001000800000805f9b34fb", "180f"},
		{"SIG base uppercase", "00002A37-0000-1000-8000-00805F9B34FB", "2a37"},
		{"custom 128-bit", "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", "6e400001b5a3f393e0a9e50e24dcca9e"},
		{"SIG suffix with non-zero prefix", "AA002902-0000-1000-8000-00805f9b34fb", "aa00290200001000800000805f9b34fb"},
		{"32-bit form is kept", "00002902", "00002902"},
		{"surrounding whitespace", "  180D ", "180d"},
		{"empty", "", ""},
		{"non-hex", "zz19", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	got := NormalizeUUIDs([]string{"180F", "0x2a19", "00002a37-0000-1000-8000-00805f9b34fb"})
	assert.Equal(t, []string{"180f", "2a19", "2a37"}, got)
}

func TestCanonicalUUID(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"2a19", "00002a19-0000-1000-8000-00805f9b34fb"},
		{"0x180D", "0000180d-0000-1000-8000-00805f9b34fb"},
		{"0000180f-0000-1000-8000-00805f9b34fb", "0000180f-0000-1000-8000-00805f9b34fb"},
		{"6e400001b5a3f393e0a9e50e24dcca9e", "6e400001-b5a3-f393-e0a9-e50e24dcca9e"},
		{"12345678", "12345678-0000-1000-8000-00805f9b34fb"},
		{"123", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalUUID(tt.input))
		})
	}
}

func TestCanonicalUUID_RoundTripsThroughNormalize(t *testing.T) {
	for _, short := range []string{"1802", "1803", "1804", "1809", "180d", "180f", "2a06", "2a19"} {
		assert.Equal(t, short, NormalizeUUID(CanonicalUUID(short)), "canonical form MUST normalize back to %s", short)
	}
}

func TestValidateUUID(t *testing.T) {
	got, err := ValidateUUID("180F", "0x2A19")
	require.NoError(t, err)
	assert.Equal(t, []string{"180f", "2a19"}, got)

	_, err = ValidateUUID()
	assert.ErrorIs(t, err, ErrInvalidArgument, "no UUIDs MUST be rejected")

	_, err = ValidateUUID("180f", "")
	assert.ErrorIs(t, err, ErrInvalidArgument, "empty UUID MUST be rejected")
	assert.Contains(t, err.Error(), "index 1")

	_, err = ValidateUUID("not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidArgument, "malformed UUID MUST be rejected")
}
