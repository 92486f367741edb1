package codec

import (
	"errors"
	"fmt"
)

// Offsets selects where each representation starts in a payload.
type Offsets struct {
	Int   int `json:"int" yaml:"int"`
	Float int `json:"float" yaml:"float"`
	Text  int `json:"text" yaml:"text"`
}

// Reading carries every representation of one payload. Slots that do not
// apply (or failed to decode) hold zero values.
type Reading struct {
	Bytes []byte  `json:"bytes,omitempty"`
	Raw   string  `json:"raw"`
	Int   int64   `json:"int"`
	Float float32 `json:"float"`
	Text  string  `json:"text"`

	// DecodeErr joins the errors of the slots that could not be decoded.
	DecodeErr error `json:"-"`
}

// DecodeAll performs the generic four-slot decode: a uint32 at o.Int, a
// float32 at o.Float, text from o.Text and the raw rendering of the whole
// payload.
func DecodeAll(buf []byte, o Offsets) Reading {
	r := Reading{
		Bytes: append([]byte(nil), buf...),
		Raw:   DecodeRaw(buf),
	}

	var errs []error
	if v, err := DecodeUint(buf, FormatUint32, o.Int); err != nil {
		errs = append(errs, fmt.Errorf("int: %w", err))
	} else {
		r.Int = int64(v)
	}
	if v, err := DecodeFloat(buf, o.Float); err != nil {
		errs = append(errs, fmt.Errorf("float: %w", err))
	} else {
		r.Float = v
	}
	if v, err := DecodeText(buf, o.Text); err != nil {
		errs = append(errs, fmt.Errorf("text: %w", err))
	} else {
		r.Text = v
	}

	r.DecodeErr = errors.Join(errs...)
	return r
}
