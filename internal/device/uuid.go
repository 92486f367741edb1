package device

import (
	"fmt"
	"strings"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805f9b34fb in normalized form.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// Handles both standard UUID format (with dashes) and already normalized format (without dashes).
// Also strips 0x prefix if present (e.g., "0x2902" -> "2902").
// For full 128-bit UUIDs in Bluetooth SIG base format (0000xxxx-0000-1000-8000-00805f9b34fb),
// extracts the 16-bit short form (xxxx).
// Returns an empty string when the input contains non-hexadecimal characters.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ""
		}
	}

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	result := make([]string, 0, len(uuids))
	for _, u := range uuids {
		result = append(result, NormalizeUUID(u))
	}
	return result
}

// CanonicalUUID renders a UUID in the dashed 128-bit textual form exchanged
// with consumers, expanding short forms against the SIG base UUID.
// Returns an empty string for malformed input.
func CanonicalUUID(uuid string) string {
	n := NormalizeUUID(uuid)
	switch len(n) {
	case 4:
		n = "0000" + n + sigBaseSuffix
	case 8:
		n = n + sigBaseSuffix
	case 32:
	default:
		return ""
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s", n[0:8], n[8:12], n[12:16], n[16:20], n[20:32])
}

// ValidateUUID validates that UUID strings are non-empty and well-formed.
// Returns normalized UUID strings or an error.
func ValidateUUID(uuids ...string) ([]string, error) {
	if len(uuids) == 0 {
		return nil, fmt.Errorf("%w: at least one UUID is required", ErrInvalidArgument)
	}

	result := make([]string, 0, len(uuids))
	for i, uuid := range uuids {
		if uuid == "" {
			return nil, fmt.Errorf("%w: UUID at index %d cannot be empty", ErrInvalidArgument, i)
		}
		normalized := NormalizeUUID(uuid)
		if normalized == "" {
			return nil, fmt.Errorf("%w: invalid UUID format at index %d: %s", ErrInvalidArgument, i, uuid)
		}
		result = append(result, normalized)
	}
	return result, nil
}
