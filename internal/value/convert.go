package value

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// twoTo64 is 2^64 as a float64; every float at or above it overflows uint64.
const twoTo64 = 18446744073709551616.0

// Integer is a sign/magnitude integer wide enough for any 64-bit target.
type Integer struct {
	Neg bool
	Mag uint64
}

// Pattern returns the two's-complement bit pattern of n truncated to width bits.
func (n Integer) Pattern(width int) uint64 {
	p := n.Mag
	if n.Neg {
		p = ^p + 1
	}
	return p & mask(width)
}

// Value returns n as a resolved Value.
func (n Integer) Value() Value {
	if !n.Neg {
		return Uint(n.Mag)
	}
	if n.Mag > 1<<63 {
		return Float(-float64(n.Mag))
	}
	return Int(int64(^n.Mag + 1))
}

func mask(width int) uint64 {
	if width >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << uint(width)) - 1
}

// Convert casts v to the storage type t and returns its raw bit pattern:
// two's complement for integers, IEEE-754 bits for floats.
// When strict is false, out-of-range values saturate and fractions truncate.
func Convert(v Value, t ScalarType, strict bool) (uint64, error) {
	if t.Float {
		f, err := ToFloat(v, t, strict)
		if err != nil {
			return 0, err
		}
		if t.Width == 4 {
			return uint64(math.Float32bits(float32(f))), nil
		}
		return math.Float64bits(f), nil
	}

	n, err := ToInteger(v, t.Bits(), t.Signed, strict)
	if err != nil {
		return 0, err
	}
	return n.Pattern(t.Bits()), nil
}

// ToInteger converts v to an integer representable in width bits with the given
// signedness. Bools are always accepted as 0 or 1.
func ToInteger(v Value, width int, signed, strict bool) (Integer, error) {
	var n Integer

	switch v.kind {
	case KindBool:
		if v.b {
			return Integer{Mag: 1}, nil
		}
		return Integer{}, nil
	case KindInt:
		n = integerFromInt64(v.i)
	case KindUint:
		n = Integer{Mag: v.u}
	case KindFloat:
		return floatToInteger(v.f, width, signed, strict)
	case KindString:
		s := strings.TrimSpace(v.s)
		switch {
		case strings.EqualFold(s, "true"):
			return Integer{Mag: 1}, nil
		case strings.EqualFold(s, "false"):
			return Integer{}, nil
		}
		parsed, overflow, err := parseDecimal(s)
		if err != nil {
			return Integer{}, err
		}
		if overflow {
			return outOfRange(parsed.Neg, width, signed, strict, v)
		}
		n = parsed
	default:
		return Integer{}, fmt.Errorf("%w: %s where a scalar was expected", errs.ErrShapeMismatch, v.kind)
	}

	return checkRange(n, width, signed, strict, v)
}

// ToFloat converts v to a float for the f32 or f64 target t.
func ToFloat(v Value, t ScalarType, strict bool) (float64, error) {
	mantissa := 53
	if t.Width == 4 {
		mantissa = 24
	}

	switch v.kind {
	case KindBool:
		if v.b {
			return 1, nil
		}
		return 0, nil
	case KindInt:
		return integerToFloat(integerFromInt64(v.i), mantissa, strict, v)
	case KindUint:
		return integerToFloat(Integer{Mag: v.u}, mantissa, strict, v)
	case KindFloat:
		f := v.f
		if t.Width == 4 && !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			if strict {
				return 0, fmt.Errorf("%w: %s does not fit in %s", errs.ErrValueOutOfRange, v, t)
			}
			return math.Copysign(math.MaxFloat32, f), nil
		}
		return f, nil
	case KindString:
		s := strings.TrimSpace(v.s)
		switch {
		case strings.EqualFold(s, "true"):
			return 1, nil
		case strings.EqualFold(s, "false"):
			return 0, nil
		}
		n, overflow, err := parseDecimal(s)
		if err != nil {
			return 0, err
		}
		if overflow {
			return 0, fmt.Errorf("%w: %s", errs.ErrValueOutOfRange, v)
		}
		return integerToFloat(n, mantissa, strict, v)
	}
	return 0, fmt.Errorf("%w: %s where a scalar was expected", errs.ErrShapeMismatch, v.kind)
}

func integerFromInt64(i int64) Integer {
	if i < 0 {
		return Integer{Neg: true, Mag: uint64(-(i + 1)) + 1}
	}
	return Integer{Mag: uint64(i)}
}

// integerToFloat rejects, in strict mode, magnitudes that lose precision.
func integerToFloat(n Integer, mantissa int, strict bool, src Value) (float64, error) {
	if strict && n.Mag != 0 {
		significant := bits.Len64(n.Mag) - bits.TrailingZeros64(n.Mag)
		if significant > mantissa {
			return 0, fmt.Errorf("%w: %s is not exactly representable", errs.ErrValueOutOfRange, src)
		}
	}
	f := float64(n.Mag)
	if n.Neg {
		f = -f
	}
	return f, nil
}

func floatToInteger(f float64, width int, signed, strict bool) (Integer, error) {
	src := Float(f)
	if math.IsNaN(f) {
		if strict {
			return Integer{}, fmt.Errorf("%w: NaN", errs.ErrNonIntegralValue)
		}
		return Integer{}, nil
	}
	if math.IsInf(f, 0) {
		return outOfRange(f < 0, width, signed, strict, src)
	}

	t := math.Trunc(f)
	if strict && t != f {
		return Integer{}, fmt.Errorf("%w: %s", errs.ErrNonIntegralValue, src)
	}

	a := math.Abs(t)
	if a >= twoTo64 {
		return outOfRange(t < 0, width, signed, strict, src)
	}
	n := Integer{Neg: t < 0 && a != 0, Mag: uint64(a)}
	return checkRange(n, width, signed, strict, src)
}

// parseDecimal accepts an optional sign followed by decimal digits.
func parseDecimal(s string) (Integer, bool, error) {
	digits := s
	neg := false
	if len(digits) > 0 && (digits[0] == '+' || digits[0] == '-') {
		neg = digits[0] == '-'
		digits = digits[1:]
	}
	if digits == "" {
		return Integer{}, false, fmt.Errorf("%w: %q", errs.ErrUnsupportedStringValue, s)
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return Integer{}, false, fmt.Errorf("%w: %q", errs.ErrUnsupportedStringValue, s)
		}
	}
	mag, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return Integer{Neg: neg}, true, nil
	}
	return Integer{Neg: neg && mag != 0, Mag: mag}, false, nil
}

// bounds returns the largest positive magnitude and the largest negative magnitude
// representable in width bits.
func bounds(width int, signed bool) (maxPos, maxNeg uint64) {
	if !signed {
		return mask(width), 0
	}
	half := uint64(1) << uint(width-1)
	return half - 1, half
}

func checkRange(n Integer, width int, signed, strict bool, src Value) (Integer, error) {
	maxPos, maxNeg := bounds(width, signed)
	if n.Neg && n.Mag > maxNeg || !n.Neg && n.Mag > maxPos {
		return outOfRange(n.Neg, width, signed, strict, src)
	}
	return n, nil
}

func outOfRange(neg bool, width int, signed, strict bool, src Value) (Integer, error) {
	if strict {
		kind := "u"
		if signed {
			kind = "i"
		}
		return Integer{}, fmt.Errorf("%w: %s does not fit in %s%d", errs.ErrValueOutOfRange, src, kind, width)
	}
	maxPos, maxNeg := bounds(width, signed)
	if neg {
		return Integer{Neg: maxNeg != 0, Mag: maxNeg}, nil
	}
	return Integer{Mag: maxPos}, nil
}
