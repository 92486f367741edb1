package central

import (
	"fmt"

	"github.com/srg/blecentral/internal/codec"
	"github.com/srg/blecentral/internal/device"
)

type payloadKind int

const (
	payloadText payloadKind = iota
	payloadInt
	payloadFloat
	payloadRaw
)

// Payload describes the bytes a write puts on the air.
type Payload struct {
	kind   payloadKind
	text   string
	num    int64
	float  float32
	raw    []byte
	format codec.Format
	offset int
}

// TextPayload writes s as UTF-8, replacing the whole value.
func TextPayload(s string) Payload {
	return Payload{kind: payloadText, text: s}
}

// IntPayload writes v with the given integer format at offset, over the
// characteristic's cached value.
func IntPayload(v int64, format codec.Format, offset int) Payload {
	return Payload{kind: payloadInt, num: v, format: format, offset: offset}
}

// FloatPayload writes an IEEE-754 single at offset, over the cached value.
func FloatPayload(v float32, offset int) Payload {
	return Payload{kind: payloadFloat, float: v, offset: offset}
}

// RawPayload writes b verbatim.
func RawPayload(b []byte) Payload {
	return Payload{kind: payloadRaw, raw: append([]byte(nil), b...)}
}

func (p Payload) encode(base []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)
	switch p.kind {
	case payloadText:
		return codec.EncodeText(p.text), nil
	case payloadRaw:
		return append([]byte(nil), p.raw...), nil
	case payloadInt:
		out, err = codec.EncodeInt(base, p.num, p.format, p.offset)
	case payloadFloat:
		out, err = codec.EncodeFloat(base, p.float, p.offset)
	default:
		return nil, fmt.Errorf("%w: unknown payload kind %d", device.ErrInvalidArgument, p.kind)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", device.ErrInvalidArgument, err)
	}
	return out, nil
}

func (p Payload) String() string {
	switch p.kind {
	case payloadText:
		return fmt.Sprintf("text(%q)", p.text)
	case payloadInt:
		return fmt.Sprintf("%s(%d)@%d", p.format, p.num, p.offset)
	case payloadFloat:
		return fmt.Sprintf("float32(%g)@%d", p.float, p.offset)
	default:
		return fmt.Sprintf("raw(% x)", p.raw)
	}
}
