package value

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindBool Kind = iota
	KindInt
	KindUint
	KindFloat
	KindString
	KindArray
	KindMatrix
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt, KindUint:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindArray:
		return "array"
	case KindMatrix:
		return "matrix"
	}
	return "unknown"
}

// Value is a resolved value as produced by a literal or a data source lookup.
// Integers that fit in int64 are held as KindInt; larger positive values as KindUint.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	arr  []Value
	mat  [][]Value
}

func Bool(b bool) Value        { return Value{kind: KindBool, b: b} }
func Int(i int64) Value        { return Value{kind: KindInt, i: i} }
func Float(f float64) Value    { return Value{kind: KindFloat, f: f} }
func String(s string) Value    { return Value{kind: KindString, s: s} }
func Array(v []Value) Value    { return Value{kind: KindArray, arr: v} }
func Matrix(m [][]Value) Value { return Value{kind: KindMatrix, mat: m} }

// Uint returns a KindInt value when u fits in int64.
func Uint(u uint64) Value {
	if u <= math.MaxInt64 {
		return Int(int64(u))
	}
	return Value{kind: KindUint, u: u}
}

func (v Value) Kind() Kind { return v.kind }

// Scalar reports whether v is neither an array nor a matrix.
func (v Value) Scalar() bool {
	return v.kind != KindArray && v.kind != KindMatrix
}

// Str returns the string payload of a KindString value.
func (v Value) Str() (string, bool) {
	return v.s, v.kind == KindString
}

// Elements returns the items of a KindArray value.
func (v Value) Elements() ([]Value, bool) {
	return v.arr, v.kind == KindArray
}

// Rows returns the rows of a KindMatrix value.
func (v Value) Rows() ([][]Value, bool) {
	return v.mat, v.kind == KindMatrix
}

// Interface converts v into plain Go values suitable for JSON encoding.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindArray:
		out := make([]interface{}, len(v.arr))
		for i, e := range v.arr {
			out[i] = e.Interface()
		}
		return out
	case KindMatrix:
		out := make([]interface{}, len(v.mat))
		for i, row := range v.mat {
			out[i] = Array(row).Interface()
		}
		return out
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindUint:
		return strconv.FormatUint(v.u, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.s)
	}
	b, err := json.Marshal(v.Interface())
	if err != nil {
		return v.kind.String()
	}
	return string(b)
}

// FromInterface converts decoded document data (JSON, YAML, TOML) into a Value.
// A list whose items are all lists becomes a matrix.
func FromInterface(x interface{}) (Value, error) {
	switch t := x.(type) {
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Uint(uint64(t)), nil
	case uint8:
		return Uint(uint64(t)), nil
	case uint16:
		return Uint(uint64(t)), nil
	case uint32:
		return Uint(uint64(t)), nil
	case uint64:
		return Uint(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case json.Number:
		return parseNumber(t.String())
	case string:
		return String(t), nil
	case []interface{}:
		return fromList(t)
	case nil:
		return Value{}, fmt.Errorf("%w: null value", errs.ErrShapeMismatch)
	}
	return Value{}, fmt.Errorf("%w: unsupported value of type %T", errs.ErrShapeMismatch, x)
}

func fromList(items []interface{}) (Value, error) {
	nested := len(items) > 0
	for _, it := range items {
		if _, ok := it.([]interface{}); !ok {
			nested = false
			break
		}
	}

	if nested {
		rows := make([][]Value, len(items))
		for i, it := range items {
			row, err := fromList(it.([]interface{}))
			if err != nil {
				return Value{}, err
			}
			if row.kind != KindArray {
				return Value{}, fmt.Errorf("%w: arrays nested deeper than two levels", errs.ErrShapeMismatch)
			}
			rows[i] = row.arr
		}
		return Matrix(rows), nil
	}

	out := make([]Value, len(items))
	for i, it := range items {
		v, err := FromInterface(it)
		if err != nil {
			return Value{}, err
		}
		if !v.Scalar() {
			return Value{}, fmt.Errorf("%w: mixed scalar and array items", errs.ErrShapeMismatch)
		}
		out[i] = v
	}
	return Array(out), nil
}

func parseNumber(s string) (Value, error) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Int(i), nil
	}
	if u, err := strconv.ParseUint(s, 10, 64); err == nil {
		return Uint(u), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %q", errs.ErrUnsupportedStringValue, s)
	}
	return Float(f), nil
}

// ParseDelimited splits s on commas, semicolons and whitespace and parses every
// token as a number. It reports false when s holds no tokens or any token is not numeric.
func ParseDelimited(s string) ([]Value, bool) {
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(tokens) == 0 {
		return nil, false
	}
	out := make([]Value, 0, len(tokens))
	for _, tok := range tokens {
		v, err := parseNumber(tok)
		if err != nil {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// Resolver looks up a named value, trying each version in priority order.
type Resolver interface {
	Resolve(name string, versions []string) (Value, error)
}
