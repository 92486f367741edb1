// Package codec converts raw GATT characteristic payloads to and from the
// unsigned integer, float, text and raw-byte representations exposed to
// consumers. All functions are pure.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Format identifies a value layout inside a characteristic payload.
// Numeric codes follow the GATT characteristic presentation formats so
// callers can pass the same integers they would pass to a platform BLE API;
// the low nibble of a numeric code is its width in bytes.
type Format int

const (
	FormatUint8   Format = 0x11
	FormatUint16  Format = 0x12
	FormatUint32  Format = 0x14
	FormatSint8   Format = 0x21
	FormatSint16  Format = 0x22
	FormatSint32  Format = 0x24
	FormatFloat32 Format = 0x34

	FormatText Format = 0x100
	FormatRaw  Format = 0x101
)

// ErrOutOfRange is matched by every OutOfRangeError.
var ErrOutOfRange = errors.New("value out of range")

// ErrUnknownFormat is returned for format codes this package does not decode.
var ErrUnknownFormat = errors.New("unknown value format")

// OutOfRangeError reports a read or write window that does not fit the buffer.
type OutOfRangeError struct {
	Offset int
	Width  int
	Len    int
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("offset %d with width %d exceeds buffer of %d bytes", e.Offset, e.Width, e.Len)
}

// Is allows errors.Is(err, ErrOutOfRange).
func (e *OutOfRangeError) Is(target error) bool {
	return target == ErrOutOfRange
}

// OverflowError reports an integer that cannot be represented in the requested format.
type OverflowError struct {
	Value  int64
	Format Format
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("value %d does not fit format %s", e.Value, e.Format)
}

// Is allows errors.Is(err, ErrOutOfRange).
func (e *OverflowError) Is(target error) bool {
	return target == ErrOutOfRange
}

// Width returns the byte width of a numeric format, 0 for text and raw.
func (f Format) Width() int {
	if !f.IsNumeric() {
		return 0
	}
	return int(f) & 0x0f
}

// IsNumeric reports whether f is one of the fixed-width numeric formats.
func (f Format) IsNumeric() bool {
	switch f {
	case FormatUint8, FormatUint16, FormatUint32,
		FormatSint8, FormatSint16, FormatSint32, FormatFloat32:
		return true
	}
	return false
}

// IsSigned reports whether f is a signed integer format.
func (f Format) IsSigned() bool {
	return f == FormatSint8 || f == FormatSint16 || f == FormatSint32
}

func (f Format) String() string {
	switch f {
	case FormatUint8:
		return "uint8"
	case FormatUint16:
		return "uint16"
	case FormatUint32:
		return "uint32"
	case FormatSint8:
		return "sint8"
	case FormatSint16:
		return "sint16"
	case FormatSint32:
		return "sint32"
	case FormatFloat32:
		return "float32"
	case FormatText:
		return "text"
	case FormatRaw:
		return "raw"
	default:
		return fmt.Sprintf("format(0x%x)", int(f))
	}
}

// ParseFormat accepts either a format name ("uint16") or a numeric code ("0x12", "18").
func ParseFormat(s string) (Format, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, f := range []Format{FormatUint8, FormatUint16, FormatUint32, FormatSint8,
		FormatSint16, FormatSint32, FormatFloat32, FormatText, FormatRaw} {
		if f.String() == name {
			return f, nil
		}
	}

	code, err := strconv.ParseInt(name, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	f := Format(code)
	if !f.IsNumeric() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
	return f, nil
}

func window(buf []byte, offset, width int) ([]byte, error) {
	if offset < 0 || width < 0 || offset+width > len(buf) {
		return nil, &OutOfRangeError{Offset: offset, Width: width, Len: len(buf)}
	}
	return buf[offset : offset+width], nil
}

// DecodeUint reads an unsigned little-endian integer of the given format.
// Signed formats are accepted and reinterpreted as unsigned.
func DecodeUint(buf []byte, format Format, offset int) (uint32, error) {
	if !format.IsNumeric() || format == FormatFloat32 {
		return 0, fmt.Errorf("%w: %s is not an integer format", ErrUnknownFormat, format)
	}
	b, err := window(buf, offset, format.Width())
	if err != nil {
		return 0, err
	}
	switch len(b) {
	case 1:
		return uint32(b[0]), nil
	case 2:
		return uint32(binary.LittleEndian.Uint16(b)), nil
	default:
		return binary.LittleEndian.Uint32(b), nil
	}
}

// DecodeInt reads a little-endian integer, sign-extending signed formats.
func DecodeInt(buf []byte, format Format, offset int) (int64, error) {
	u, err := DecodeUint(buf, format, offset)
	if err != nil {
		return 0, err
	}
	switch format {
	case FormatSint8:
		return int64(int8(u)), nil
	case FormatSint16:
		return int64(int16(u)), nil
	case FormatSint32:
		return int64(int32(u)), nil
	default:
		return int64(u), nil
	}
}

// DecodeFloat reads an IEEE-754 single precision value stored little-endian.
func DecodeFloat(buf []byte, offset int) (float32, error) {
	b, err := window(buf, offset, FormatFloat32.Width())
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

// DecodeText returns buf[offset:] as a string. An offset equal to the
// buffer length yields the empty string.
func DecodeText(buf []byte, offset int) (string, error) {
	if offset < 0 || offset > len(buf) {
		return "", &OutOfRangeError{Offset: offset, Width: 0, Len: len(buf)}
	}
	return string(buf[offset:]), nil
}

// DecodeRaw renders every byte as its signed decimal value with no separator,
// so []byte{1, 0xff, 16} becomes "1-116".
func DecodeRaw(buf []byte) string {
	var sb strings.Builder
	for _, b := range buf {
		sb.WriteString(strconv.Itoa(int(int8(b))))
	}
	return sb.String()
}

// Decode dispatches on format and returns uint32, int64, float32 or string.
func Decode(buf []byte, format Format, offset int) (any, error) {
	switch {
	case format == FormatText:
		return DecodeText(buf, offset)
	case format == FormatRaw:
		return DecodeRaw(buf), nil
	case format == FormatFloat32:
		return DecodeFloat(buf, offset)
	case format.IsSigned():
		return DecodeInt(buf, format, offset)
	case format.IsNumeric():
		return DecodeUint(buf, format, offset)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
}

// grow returns a copy of base extended with zero bytes up to size.
func grow(base []byte, size int) []byte {
	n := len(base)
	if size > n {
		n = size
	}
	out := make([]byte, n)
	copy(out, base)
	return out
}

// EncodeInt writes value into a copy of base at offset using the given
// integer format. The copy is zero-extended when base is too short.
func EncodeInt(base []byte, value int64, format Format, offset int) ([]byte, error) {
	if !format.IsNumeric() || format == FormatFloat32 {
		return nil, fmt.Errorf("%w: %s is not an integer format", ErrUnknownFormat, format)
	}
	if offset < 0 {
		return nil, &OutOfRangeError{Offset: offset, Width: format.Width(), Len: len(base)}
	}

	width := format.Width()
	bits := uint(width * 8)
	if format.IsSigned() {
		lo, hi := -(int64(1) << (bits - 1)), int64(1)<<(bits-1)-1
		if value < lo || value > hi {
			return nil, &OverflowError{Value: value, Format: format}
		}
	} else if value < 0 || value > int64(1)<<bits-1 {
		return nil, &OverflowError{Value: value, Format: format}
	}

	out := grow(base, offset+width)
	switch width {
	case 1:
		out[offset] = byte(value)
	case 2:
		binary.LittleEndian.PutUint16(out[offset:], uint16(value))
	default:
		binary.LittleEndian.PutUint32(out[offset:], uint32(value))
	}
	return out, nil
}

// EncodeFloat writes an IEEE-754 single into a copy of base at offset.
func EncodeFloat(base []byte, value float32, offset int) ([]byte, error) {
	if offset < 0 {
		return nil, &OutOfRangeError{Offset: offset, Width: 4, Len: len(base)}
	}
	out := grow(base, offset+4)
	binary.LittleEndian.PutUint32(out[offset:], math.Float32bits(value))
	return out, nil
}

// EncodeText returns the UTF-8 bytes of s.
func EncodeText(s string) []byte {
	return []byte(s)
}
