package status

import (
	"bytes"
	"fmt"
	"strconv"
)

// TriBool is a boolean the upstream encodes as an integer. 0 and 1 map to
// false and true; any other byte is kept as an unknown code.
type TriBool struct {
	raw uint8
}

var (
	False = TriBool{raw: 0}
	True  = TriBool{raw: 1}
)

// TriBoolFromByte never fails: every byte is a valid TriBool.
func TriBoolFromByte(b uint8) TriBool {
	return TriBool{raw: b}
}

// Unknown builds a TriBool carrying an out-of-band code.
func Unknown(b uint8) TriBool {
	return TriBool{raw: b}
}

type unsigned interface {
	~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// TriBoolFrom decodes any unsigned wire width. Values that do not fit in a
// byte are a decode error.
func TriBoolFrom[T unsigned](v T) (TriBool, error) {
	if uint64(v) > 0xff {
		return TriBool{}, &DecodeError{
			Kind:  "tri-state boolean",
			Value: strconv.FormatUint(uint64(v), 10),
			Err:   fmt.Errorf("value does not fit in a byte"),
		}
	}
	return TriBoolFromByte(uint8(v)), nil
}

// Raw returns the wire byte.
func (b TriBool) Raw() uint8 { return b.raw }

// IsUnknown reports whether the value is neither 0 nor 1.
func (b TriBool) IsUnknown() bool { return b.raw > 1 }

// Bool returns the boolean value; ok is false for unknown codes.
func (b TriBool) Bool() (value bool, ok bool) {
	switch b.raw {
	case 0:
		return false, true
	case 1:
		return true, true
	default:
		return false, false
	}
}

func (b TriBool) String() string {
	switch b.raw {
	case 0:
		return "false"
	case 1:
		return "true"
	default:
		return fmt.Sprintf("unknown(%d)", b.raw)
	}
}

// UnmarshalJSON accepts a non-negative JSON integer of any width.
func (b *TriBool) UnmarshalJSON(data []byte) error {
	text := string(bytes.TrimSpace(data))
	v, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return &DecodeError{Kind: "tri-state boolean", Value: text, Err: err}
	}
	decoded, err := TriBoolFrom(v)
	if err != nil {
		return err
	}
	*b = decoded
	return nil
}

// MarshalJSON writes the raw byte back out.
func (b TriBool) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatUint(uint64(b.raw), 10)), nil
}
