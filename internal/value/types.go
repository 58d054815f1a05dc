package value

import (
	"encoding/binary"
	"fmt"
	"strings"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// ScalarType describes the storage representation of a field element.
type ScalarType struct {
	Width  int // bytes: 1, 2, 4 or 8
	Signed bool
	Float  bool
}

var (
	U8  = ScalarType{Width: 1}
	U16 = ScalarType{Width: 2}
	U32 = ScalarType{Width: 4}
	U64 = ScalarType{Width: 8}
	I8  = ScalarType{Width: 1, Signed: true}
	I16 = ScalarType{Width: 2, Signed: true}
	I32 = ScalarType{Width: 4, Signed: true}
	I64 = ScalarType{Width: 8, Signed: true}
	F32 = ScalarType{Width: 4, Signed: true, Float: true}
	F64 = ScalarType{Width: 8, Signed: true, Float: true}
)

var scalarTypes = map[string]ScalarType{
	"u8": U8, "u16": U16, "u32": U32, "u64": U64,
	"i8": I8, "i16": I16, "i32": I32, "i64": I64,
	"f32": F32, "f64": F64,
}

// ParseScalarType maps a type token such as "u16" or "f32" to its ScalarType.
func ParseScalarType(token string) (ScalarType, error) {
	t, ok := scalarTypes[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return ScalarType{}, fmt.Errorf("%w: %q", errs.ErrUnknownType, token)
	}
	return t, nil
}

// Bits returns the storage width in bits.
func (t ScalarType) Bits() int {
	return t.Width * 8
}

func (t ScalarType) String() string {
	switch {
	case t.Float:
		return fmt.Sprintf("f%d", t.Bits())
	case t.Signed:
		return fmt.Sprintf("i%d", t.Bits())
	default:
		return fmt.Sprintf("u%d", t.Bits())
	}
}

// Endianness is the byte order used for every multi-byte value of a block.
type Endianness int

const (
	Little Endianness = iota
	Big
)

// ParseEndianness accepts "little"/"le" and "big"/"be" in any case.
func ParseEndianness(s string) (Endianness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "little", "le":
		return Little, nil
	case "big", "be":
		return Big, nil
	}
	return Little, fmt.Errorf("%w: unknown endianness %q", errs.ErrInvalidArgument, s)
}

// ByteOrder returns the encoding/binary order for e.
func (e Endianness) ByteOrder() binary.ByteOrder {
	if e == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (e Endianness) String() string {
	if e == Big {
		return "big"
	}
	return "little"
}

// Encode writes the low width bytes of pattern in the given byte order.
func Encode(pattern uint64, width int, e Endianness) []byte {
	var buf [8]byte
	e.ByteOrder().PutUint64(buf[:], pattern)
	out := make([]byte, width)
	if e == Big {
		copy(out, buf[8-width:])
	} else {
		copy(out, buf[:width])
	}
	return out
}
