package codec

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/layout"
	"github.com/deploymenttheory/go-flash-composer/internal/value"
)

// mapResolver resolves names from a fixed map and ignores versions.
type mapResolver map[string]value.Value

func (m mapResolver) Resolve(name string, _ []string) (value.Value, error) {
	v, ok := m[name]
	if !ok {
		return value.Value{}, fmt.Errorf("%w: %s", errs.ErrValueNotFound, name)
	}
	return v, nil
}

type recordingSink struct {
	mu    sync.Mutex
	usage []Usage
}

func (s *recordingSink) Record(u Usage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, u)
}

func ints(vals ...int64) []value.Value {
	out := make([]value.Value, len(vals))
	for i, v := range vals {
		out[i] = value.Int(v)
	}
	return out
}

func exampleBitmap() []layout.BitmapField {
	return []layout.BitmapField{
		{Width: 1, Source: layout.Literal(value.Bool(true))},
		{Width: 3, Source: layout.Literal(value.Int(5))},
		{Width: 1, Source: layout.Literal(value.Bool(false))},
		{Width: 4, Source: layout.Literal(value.Int(9))},
		{Width: 7, Source: layout.Literal(value.Int(0))},
	}
}

func TestPackWorkedExample(t *testing.T) {
	fields := exampleBitmap()
	resolved := []value.Value{value.Bool(true), value.Int(5), value.Bool(false), value.Int(9), value.Int(0)}

	word, _, err := Pack(fields, resolved, value.U16, true)
	if err != nil {
		t.Fatalf("Pack() unexpected error: %v", err)
	}
	if word != 299 {
		t.Errorf("Pack() = %d (0x%04X), want 299 (0x012B)", word, word)
	}
}

func TestPackErrors(t *testing.T) {
	tests := []struct {
		name    string
		fields  []layout.BitmapField
		values  []value.Value
		storage value.ScalarType
		strict  bool
		wantErr error
	}{
		{
			name:    "widths short of storage",
			fields:  []layout.BitmapField{{Width: 4}, {Width: 3}},
			values:  ints(1, 1),
			storage: value.U8,
			wantErr: errs.ErrBitmapWidthMismatch,
		},
		{
			name:    "widths short of storage when lenient",
			fields:  []layout.BitmapField{{Width: 15}},
			values:  ints(1),
			storage: value.U16,
			strict:  false,
			wantErr: errs.ErrBitmapWidthMismatch,
		},
		{
			name:    "zero width",
			fields:  []layout.BitmapField{{Width: 0}, {Width: 8}},
			values:  ints(0, 1),
			storage: value.U8,
			wantErr: errs.ErrBitmapZeroWidth,
		},
		{
			name:    "float storage",
			fields:  []layout.BitmapField{{Width: 32}},
			values:  ints(1),
			storage: value.F32,
			wantErr: errs.ErrBitmapStorageType,
		},
		{
			name:    "value exceeds sub-field when strict",
			fields:  []layout.BitmapField{{Width: 2}, {Width: 6}},
			values:  ints(4, 0),
			storage: value.U8,
			strict:  true,
			wantErr: errs.ErrValueOutOfRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := Pack(tt.fields, tt.values, tt.storage, tt.strict); !errors.Is(err, tt.wantErr) {
				t.Errorf("Pack() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPackSignedSaturation(t *testing.T) {
	fields := []layout.BitmapField{{Width: 4}, {Width: 4}}
	word, got, err := Pack(fields, ints(-9, 7), value.I8, false)
	if err != nil {
		t.Fatalf("Pack() unexpected error: %v", err)
	}
	// -9 saturates to -8 (0b1000) in a signed 4-bit field.
	if word != 0x78 {
		t.Errorf("Pack() = 0x%02X, want 0x78", word)
	}
	if !got[0].Neg || got[0].Mag != 8 {
		t.Errorf("Pack() first entry = %+v, want -8", got[0])
	}
}

func TestEmitBitmap(t *testing.T) {
	f := layout.FieldSpec{Path: "flags", Kind: layout.KindBitmap, Type: value.U16, Bitmap: exampleBitmap()}
	sink := &recordingSink{}

	out, err := Emit(f, nil, Options{Strict: true, Endianness: value.Little, Sink: sink})
	if err != nil {
		t.Fatalf("Emit() unexpected error: %v", err)
	}
	if !bytes.Equal(out, []byte{0x2B, 0x01}) {
		t.Errorf("Emit() = % X, want 2B 01", out)
	}

	out, err = Emit(f, nil, Options{Endianness: value.Big})
	if err != nil {
		t.Fatalf("Emit() unexpected error: %v", err)
	}
	if !bytes.Equal(out, []byte{0x01, 0x2B}) {
		t.Errorf("Emit(big) = % X, want 01 2B", out)
	}

	if len(sink.usage) != 5 || sink.usage[1].Path != "flags.reserved_1_3" {
		t.Errorf("recorded usage = %+v", sink.usage)
	}
}

func TestEmitBitmapRecordsSaturatedValues(t *testing.T) {
	f := layout.FieldSpec{Path: "flags", Kind: layout.KindBitmap, Type: value.U8, Bitmap: []layout.BitmapField{
		{Width: 4, Source: layout.Literal(value.Int(300))},
		{Width: 4, Source: layout.Literal(value.Int(1))},
	}}
	sink := &recordingSink{}

	out, err := Emit(f, nil, Options{Endianness: value.Little, Sink: sink})
	if err != nil {
		t.Fatalf("Emit() unexpected error: %v", err)
	}
	if !bytes.Equal(out, []byte{0x1F}) {
		t.Errorf("Emit() = % X, want 1F", out)
	}
	if len(sink.usage) != 2 {
		t.Fatalf("recorded %d values, want 2", len(sink.usage))
	}
	if u := sink.usage[0]; u.Path != "flags.reserved_0_4" || u.Value.String() != "15" {
		t.Errorf("recorded %s = %v, want 15", u.Path, u.Value)
	}
	if u := sink.usage[1]; u.Value.String() != "1" {
		t.Errorf("recorded %s = %v, want 1", u.Path, u.Value)
	}
}

func TestEmitScalar(t *testing.T) {
	r := mapResolver{"Temp": value.Float(1.5), "Big": value.Int(300)}
	tests := []struct {
		name     string
		field    layout.FieldSpec
		strict   bool
		expected []byte
		wantErr  error
	}{
		{
			name:     "literal u32 little endian",
			field:    layout.FieldSpec{Path: "a", Type: value.U32, Source: layout.Literal(value.Int(0x01020304))},
			expected: []byte{0x04, 0x03, 0x02, 0x01},
		},
		{
			name:     "named float truncated",
			field:    layout.FieldSpec{Path: "b", Type: value.U8, Source: layout.Named("Temp")},
			expected: []byte{0x01},
		},
		{
			name:    "named float strict",
			field:   layout.FieldSpec{Path: "b", Type: value.U8, Source: layout.Named("Temp")},
			strict:  true,
			wantErr: errs.ErrNonIntegralValue,
		},
		{
			name:     "named overflow saturates",
			field:    layout.FieldSpec{Path: "c", Type: value.U8, Source: layout.Named("Big")},
			expected: []byte{0xFF},
		},
		{
			name:    "named overflow strict",
			field:   layout.FieldSpec{Path: "c", Type: value.U8, Source: layout.Named("Big")},
			strict:  true,
			wantErr: errs.ErrValueOutOfRange,
		},
		{
			name:    "missing name",
			field:   layout.FieldSpec{Path: "d", Type: value.U8, Source: layout.Named("Nope")},
			wantErr: errs.ErrValueNotFound,
		},
		{
			name:    "array where scalar expected",
			field:   layout.FieldSpec{Path: "e", Type: value.U8, Source: layout.Literal(value.Array(ints(1, 2)))},
			wantErr: errs.ErrShapeMismatch,
		},
		{
			name:    "no source",
			field:   layout.FieldSpec{Path: "f", Type: value.U8},
			wantErr: errs.ErrMissingSource,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Emit(tt.field, r, Options{Strict: tt.strict, Endianness: value.Little})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Emit() error = %v, want %v", err, tt.wantErr)
				}
				var fe *FieldError
				if !errors.As(err, &fe) || fe.Path != tt.field.Path {
					t.Errorf("Emit() error %v does not carry path %q", err, tt.field.Path)
				}
				return
			}
			if err != nil {
				t.Fatalf("Emit() unexpected error: %v", err)
			}
			if !bytes.Equal(out, tt.expected) {
				t.Errorf("Emit() = % X, want % X", out, tt.expected)
			}
		})
	}
}

func TestEmitNamedWithoutResolver(t *testing.T) {
	f := layout.FieldSpec{Path: "x", Type: value.U8, Source: layout.Named("X")}
	if _, err := Emit(f, nil, Options{}); !errors.Is(err, errs.ErrNoDataSource) {
		t.Errorf("Emit() error = %v, want ErrNoDataSource", err)
	}
}

func TestEmitArrayPadding(t *testing.T) {
	r := mapResolver{"Coeffs": value.Array(ints(1, 2, 3, 4, 5))}
	f := layout.FieldSpec{Path: "coeffs", Kind: layout.KindArray1D, Type: value.U16, Len: 8, Source: layout.Named("Coeffs")}

	out, err := Emit(f, r, Options{Endianness: value.Little})
	if err != nil {
		t.Fatalf("Emit() unexpected error: %v", err)
	}
	expected := []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 0, 0, 0, 0, 0, 0}
	if !bytes.Equal(out, expected) {
		t.Errorf("Emit() = % X, want % X", out, expected)
	}

	f.Exact = true
	if _, err := Emit(f, r, Options{Endianness: value.Little}); !errors.Is(err, errs.ErrArraySizeMismatch) {
		t.Errorf("Emit(exact) error = %v, want ErrArraySizeMismatch", err)
	}

	f.Exact = false
	f.Len = 3
	out, err = Emit(f, r, Options{Endianness: value.Big})
	if err != nil {
		t.Fatalf("Emit(truncate) unexpected error: %v", err)
	}
	if !bytes.Equal(out, []byte{0, 1, 0, 2, 0, 3}) {
		t.Errorf("Emit(truncate) = % X", out)
	}
}

func TestEmitArrayFromDelimitedString(t *testing.T) {
	r := mapResolver{"Table": value.String("10, 20; 30")}
	f := layout.FieldSpec{Path: "t", Kind: layout.KindArray1D, Type: value.I16, Len: 3, Exact: true, Source: layout.Named("Table")}

	out, err := Emit(f, r, Options{Strict: true, Endianness: value.Little})
	if err != nil {
		t.Fatalf("Emit() unexpected error: %v", err)
	}
	if !bytes.Equal(out, []byte{10, 0, 20, 0, 30, 0}) {
		t.Errorf("Emit() = % X", out)
	}
}

func TestEmitMatrix(t *testing.T) {
	m := value.Matrix([][]value.Value{ints(1, 2), ints(3, 4)})
	f := layout.FieldSpec{Path: "m", Kind: layout.KindArray2D, Type: value.I8, Rows: 3, Cols: 2, Source: layout.Literal(m)}

	out, err := Emit(f, nil, Options{Strict: true})
	if err != nil {
		t.Fatalf("Emit() unexpected error: %v", err)
	}
	if !bytes.Equal(out, []byte{1, 2, 3, 4, 0, 0}) {
		t.Errorf("Emit() = % X, want 01 02 03 04 00 00", out)
	}

	f.Exact = true
	if _, err := Emit(f, nil, Options{}); !errors.Is(err, errs.ErrArraySizeMismatch) {
		t.Errorf("Emit(exact rows) error = %v, want ErrArraySizeMismatch", err)
	}

	ragged := value.Matrix([][]value.Value{ints(1, 2), ints(3)})
	f = layout.FieldSpec{Path: "m", Kind: layout.KindArray2D, Type: value.I8, Rows: 2, Cols: 2, Source: layout.Literal(ragged)}
	if _, err := Emit(f, nil, Options{}); !errors.Is(err, errs.ErrArraySizeMismatch) {
		t.Errorf("Emit(ragged) error = %v, want ErrArraySizeMismatch", err)
	}
}

func TestEmitString(t *testing.T) {
	tests := []struct {
		name     string
		field    layout.FieldSpec
		expected []byte
		wantErr  error
	}{
		{
			name:     "padded",
			field:    layout.FieldSpec{Kind: layout.KindString, Type: value.U8, Len: 6, Source: layout.Literal(value.String("abc"))},
			expected: []byte{'a', 'b', 'c', 0, 0, 0},
		},
		{
			name:     "truncated",
			field:    layout.FieldSpec{Kind: layout.KindString, Type: value.U8, Len: 2, Source: layout.Literal(value.String("abc"))},
			expected: []byte{'a', 'b'},
		},
		{
			name:     "exact length matches",
			field:    layout.FieldSpec{Kind: layout.KindString, Type: value.U8, Len: 3, Exact: true, Source: layout.Literal(value.String("abc"))},
			expected: []byte{'a', 'b', 'c'},
		},
		{
			name:    "exact length differs",
			field:   layout.FieldSpec{Kind: layout.KindString, Type: value.U8, Len: 4, Exact: true, Source: layout.Literal(value.String("abc"))},
			wantErr: errs.ErrStringLengthMismatch,
		},
		{
			name:     "no declared length",
			field:    layout.FieldSpec{Kind: layout.KindString, Type: value.U8, Source: layout.Literal(value.String("hi"))},
			expected: []byte{'h', 'i'},
		},
		{
			name:     "utf-16le",
			field:    layout.FieldSpec{Kind: layout.KindString, Type: value.U8, Len: 6, Encoding: "utf-16le", Source: layout.Literal(value.String("ok"))},
			expected: []byte{'o', 0, 'k', 0, 0, 0},
		},
		{
			name:     "latin1",
			field:    layout.FieldSpec{Kind: layout.KindString, Type: value.U8, Encoding: "latin1", Source: layout.Literal(value.String("é"))},
			expected: []byte{0xE9},
		},
		{
			name:    "unknown encoding",
			field:   layout.FieldSpec{Kind: layout.KindString, Type: value.U8, Encoding: "ebcdic", Source: layout.Literal(value.String("x"))},
			wantErr: errs.ErrUnsupportedEncoding,
		},
		{
			name:    "string requires u8",
			field:   layout.FieldSpec{Kind: layout.KindString, Type: value.U16, Len: 4, Source: layout.Literal(value.String("x"))},
			wantErr: errs.ErrForbiddenType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.field.Path = "s"
			out, err := Emit(tt.field, nil, Options{})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Emit() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Emit() unexpected error: %v", err)
			}
			if !bytes.Equal(out, tt.expected) {
				t.Errorf("Emit() = % X, want % X", out, tt.expected)
			}
		})
	}
}

func TestEmitNamedStringIntoByteArray(t *testing.T) {
	r := mapResolver{"Serial": value.String("SN-01")}
	f := layout.FieldSpec{Path: "serial", Kind: layout.KindArray1D, Type: value.U8, Len: 8, Source: layout.Named("Serial")}

	out, err := Emit(f, r, Options{})
	if err != nil {
		t.Fatalf("Emit() unexpected error: %v", err)
	}
	if !bytes.Equal(out, []byte{'S', 'N', '-', '0', '1', 0, 0, 0}) {
		t.Errorf("Emit() = % X", out)
	}
}
