// Package codec turns field declarations and their resolved values into bytes.
package codec

import (
	"fmt"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/layout"
	"github.com/deploymenttheory/go-flash-composer/internal/value"
)

// Usage describes one value written into a block.
type Usage struct {
	File   string
	Block  string
	Path   string
	Source string
	Value  value.Value
	Type   string
}

// Sink receives a Usage for every field emitted successfully. It must be safe
// for concurrent use; emission never depends on it.
type Sink interface {
	Record(u Usage)
}

// Options carries the build-wide settings every emission needs.
type Options struct {
	Strict     bool
	Endianness value.Endianness
	Versions   []string
	Sink       Sink
	Block      string
	File       string
}

// FieldError attaches the dotted field path to an error.
type FieldError struct {
	Path string
	Err  error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Path, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// Emit validates f, resolves its value(s) through r and returns the field's bytes.
// r may be nil when every source is a literal.
func Emit(f layout.FieldSpec, r value.Resolver, opts Options) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, &FieldError{Path: f.Path, Err: err}
	}

	var (
		out []byte
		err error
	)
	switch f.Kind {
	case layout.KindScalar:
		out, err = emitScalar(f, r, opts)
	case layout.KindString:
		out, err = emitString(f, r, opts)
	case layout.KindArray1D:
		out, err = emitArray(f, r, opts)
	case layout.KindArray2D:
		out, err = emitMatrix(f, r, opts)
	case layout.KindBitmap:
		out, err = emitBitmap(f, r, opts)
	default:
		err = fmt.Errorf("%w: field kind %d", errs.ErrInvalidArgument, f.Kind)
	}
	if err != nil {
		return nil, &FieldError{Path: f.Path, Err: err}
	}
	return out, nil
}

func resolve(src layout.EntrySource, r value.Resolver, opts Options) (value.Value, error) {
	if v, ok := src.Value(); ok {
		return v, nil
	}
	name, _ := src.Name()
	if r == nil {
		return value.Value{}, fmt.Errorf("%w: %q", errs.ErrNoDataSource, name)
	}
	return r.Resolve(name, opts.Versions)
}

func record(opts Options, path string, src layout.EntrySource, v value.Value, typ value.ScalarType) {
	if opts.Sink == nil {
		return
	}
	opts.Sink.Record(Usage{
		File:   opts.File,
		Block:  opts.Block,
		Path:   path,
		Source: src.Label(),
		Value:  v,
		Type:   typ.String(),
	})
}

func emitScalar(f layout.FieldSpec, r value.Resolver, opts Options) ([]byte, error) {
	v, err := resolve(f.Source, r, opts)
	if err != nil {
		return nil, err
	}
	if !v.Scalar() {
		return nil, fmt.Errorf("%w: expected a scalar, found %s", errs.ErrShapeMismatch, v.Kind())
	}
	bits, err := value.Convert(v, f.Type, opts.Strict)
	if err != nil {
		return nil, err
	}
	record(opts, f.Path, f.Source, v, f.Type)
	return value.Encode(bits, f.Type.Width, opts.Endianness), nil
}

func emitString(f layout.FieldSpec, r value.Resolver, opts Options) ([]byte, error) {
	v, err := resolve(f.Source, r, opts)
	if err != nil {
		return nil, err
	}
	s, ok := v.Str()
	if !ok {
		return nil, fmt.Errorf("%w: expected a string, found %s", errs.ErrShapeMismatch, v.Kind())
	}
	return stringBytes(f, s, v, opts)
}

func stringBytes(f layout.FieldSpec, s string, v value.Value, opts Options) ([]byte, error) {
	raw, err := EncodeString(s, f.Encoding)
	if err != nil {
		return nil, err
	}
	out, err := fitString(raw, f.Len, f.Exact)
	if err != nil {
		return nil, err
	}
	record(opts, f.Path, f.Source, v, f.Type)
	return out, nil
}

func emitArray(f layout.FieldSpec, r value.Resolver, opts Options) ([]byte, error) {
	v, err := resolve(f.Source, r, opts)
	if err != nil {
		return nil, err
	}

	var elems []value.Value
	switch v.Kind() {
	case value.KindArray:
		elems, _ = v.Elements()
	case value.KindString:
		s, _ := v.Str()
		if f.Type == value.U8 {
			return stringBytes(f, s, v, opts)
		}
		parsed, ok := value.ParseDelimited(s)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a list of numbers", errs.ErrShapeMismatch, s)
		}
		elems = parsed
	default:
		return nil, fmt.Errorf("%w: expected an array, found %s", errs.ErrShapeMismatch, v.Kind())
	}

	out, err := encodeRow(elems, f.Len, f.Exact, f.Type, opts)
	if err != nil {
		return nil, err
	}
	record(opts, f.Path, f.Source, v, f.Type)
	return out, nil
}

func emitMatrix(f layout.FieldSpec, r value.Resolver, opts Options) ([]byte, error) {
	v, err := resolve(f.Source, r, opts)
	if err != nil {
		return nil, err
	}
	rows, ok := v.Rows()
	if !ok {
		return nil, fmt.Errorf("%w: expected a 2-D array, found %s", errs.ErrShapeMismatch, v.Kind())
	}
	if len(rows) != f.Rows && f.Exact {
		return nil, fmt.Errorf("%w: %d rows, declared %d", errs.ErrArraySizeMismatch, len(rows), f.Rows)
	}

	out := make([]byte, 0, f.Rows*f.Cols*f.Type.Width)
	for i := 0; i < f.Rows; i++ {
		if i >= len(rows) {
			out = append(out, make([]byte, f.Cols*f.Type.Width)...)
			continue
		}
		if len(rows[i]) != f.Cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, declared %d", errs.ErrArraySizeMismatch, i, len(rows[i]), f.Cols)
		}
		b, err := encodeRow(rows[i], f.Cols, true, f.Type, opts)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, b...)
	}
	record(opts, f.Path, f.Source, v, f.Type)
	return out, nil
}

// encodeRow converts n elements. Missing trailing elements are zero and extra
// ones dropped unless exact is set.
func encodeRow(elems []value.Value, n int, exact bool, typ value.ScalarType, opts Options) ([]byte, error) {
	if exact && len(elems) != n {
		return nil, fmt.Errorf("%w: %d elements, declared %d", errs.ErrArraySizeMismatch, len(elems), n)
	}
	out := make([]byte, 0, n*typ.Width)
	for i := 0; i < n; i++ {
		if i >= len(elems) {
			out = append(out, make([]byte, typ.Width)...)
			continue
		}
		if !elems[i].Scalar() {
			return nil, fmt.Errorf("%w: element %d is %s", errs.ErrShapeMismatch, i, elems[i].Kind())
		}
		bits, err := value.Convert(elems[i], typ, opts.Strict)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out = append(out, value.Encode(bits, typ.Width, opts.Endianness)...)
	}
	return out, nil
}

func emitBitmap(f layout.FieldSpec, r value.Resolver, opts Options) ([]byte, error) {
	resolved := make([]value.Value, len(f.Bitmap))
	for i, bf := range f.Bitmap {
		v, err := resolve(bf.Source, r, opts)
		if err != nil {
			return nil, fmt.Errorf("bitmap entry %d: %w", i, err)
		}
		if !v.Scalar() {
			return nil, fmt.Errorf("%w: bitmap entry %d is %s", errs.ErrShapeMismatch, i, v.Kind())
		}
		resolved[i] = v
	}

	word, clamped, err := Pack(f.Bitmap, resolved, f.Type, opts.Strict)
	if err != nil {
		return nil, err
	}

	offset := 0
	for i, bf := range f.Bitmap {
		label := fmt.Sprintf("reserved_%d_%d", offset, bf.Width)
		if name, ok := bf.Source.Name(); ok {
			label = name
		}
		record(opts, f.Path+"."+label, bf.Source, clamped[i].Value(), f.Type)
		offset += bf.Width
	}
	return value.Encode(word, f.Type.Width, opts.Endianness), nil
}
