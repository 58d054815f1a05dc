// Package layout holds the block and field declaration model and loads it from
// TOML, YAML or JSON layout files.
package layout

import (
	"fmt"
	"strings"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/crc"
	"github.com/deploymenttheory/go-flash-composer/internal/value"
)

// Kind is the shape of a field.
type Kind int

const (
	KindScalar Kind = iota
	KindString
	KindArray1D
	KindArray2D
	KindBitmap
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindString:
		return "string"
	case KindArray1D:
		return "array"
	case KindArray2D:
		return "2d-array"
	case KindBitmap:
		return "bitmap"
	}
	return "unknown"
}

type sourceKind int

const (
	sourceNone sourceKind = iota
	sourceLiteral
	sourceNamed
)

// EntrySource is either a literal value or the name of a value held by a data source.
type EntrySource struct {
	kind    sourceKind
	literal value.Value
	name    string
}

// Literal returns a source holding v.
func Literal(v value.Value) EntrySource {
	return EntrySource{kind: sourceLiteral, literal: v}
}

// Named returns a source resolved by name.
func Named(name string) EntrySource {
	return EntrySource{kind: sourceNamed, name: name}
}

func (s EntrySource) IsZero() bool    { return s.kind == sourceNone }
func (s EntrySource) IsLiteral() bool { return s.kind == sourceLiteral }
func (s EntrySource) IsNamed() bool   { return s.kind == sourceNamed }

// Value returns the literal value.
func (s EntrySource) Value() (value.Value, bool) {
	return s.literal, s.kind == sourceLiteral
}

// Name returns the lookup name.
func (s EntrySource) Name() (string, bool) {
	return s.name, s.kind == sourceNamed
}

// Label is the source name, or "literal" for literal values.
func (s EntrySource) Label() string {
	if s.kind == sourceNamed {
		return s.name
	}
	return "literal"
}

// BitmapField is one sub-field of a bitmap, packed LSB first.
type BitmapField struct {
	Width  int
	Source EntrySource
}

// FieldSpec is one leaf of a block's data tree.
type FieldSpec struct {
	Path   string
	Kind   Kind
	Type   value.ScalarType
	Source EntrySource

	// Len is the declared element count of a 1-D array or the byte length of a
	// string (0 means the string is written as resolved).
	Len        int
	Rows, Cols int
	// Exact turns size mismatches into errors instead of padding or truncating.
	Exact    bool
	Encoding string

	Bitmap []BitmapField
}

// Size returns the number of bytes the field occupies, or -1 for a string
// without a declared length.
func (f FieldSpec) Size() int {
	switch f.Kind {
	case KindString:
		if f.Len == 0 {
			return -1
		}
		return f.Len
	case KindArray1D:
		return f.Len * f.Type.Width
	case KindArray2D:
		return f.Rows * f.Cols * f.Type.Width
	}
	return f.Type.Width
}

// Validate performs the static checks that do not depend on resolved data.
func (f FieldSpec) Validate() error {
	if f.Kind == KindBitmap {
		return f.validateBitmap()
	}

	if len(f.Bitmap) > 0 {
		return fmt.Errorf("%w: %s field carries bitmap entries", errs.ErrSourceConflict, f.Kind)
	}
	if f.Source.IsZero() {
		return errs.ErrMissingSource
	}

	switch f.Kind {
	case KindString:
		if f.Type != value.U8 {
			return fmt.Errorf("%w: string fields require u8, got %s", errs.ErrForbiddenType, f.Type)
		}
		if f.Len < 0 {
			return fmt.Errorf("%w: negative string length", errs.ErrSizeConflict)
		}
	case KindArray1D:
		if f.Len <= 0 {
			return fmt.Errorf("%w: array length must be positive", errs.ErrSizeConflict)
		}
	case KindArray2D:
		if f.Rows <= 0 || f.Cols <= 0 {
			return fmt.Errorf("%w: array dimensions must be positive", errs.ErrSizeConflict)
		}
	}
	return nil
}

func (f FieldSpec) validateBitmap() error {
	if !f.Source.IsZero() {
		return fmt.Errorf("%w: bitmap fields take their values from their entries", errs.ErrSourceConflict)
	}
	if f.Type.Float {
		return fmt.Errorf("%w: %s", errs.ErrBitmapStorageType, f.Type)
	}
	total := 0
	for i, bf := range f.Bitmap {
		if bf.Width <= 0 {
			return fmt.Errorf("%w: entry %d", errs.ErrBitmapZeroWidth, i)
		}
		if bf.Source.IsZero() {
			return fmt.Errorf("%w: bitmap entry %d", errs.ErrMissingSource, i)
		}
		total += bf.Width
	}
	if total != f.Type.Bits() {
		return fmt.Errorf("%w: entries total %d bits, %s holds %d", errs.ErrBitmapWidthMismatch, total, f.Type, f.Type.Bits())
	}
	return nil
}

// LocationKind says where a block's CRC is written.
type LocationKind int

const (
	LocationEndOfData LocationKind = iota
	LocationEndOfBlock
	LocationAbsolute
)

// Location is a CRC placement. Address is only used by LocationAbsolute and is
// an absolute address in the same space as the block start address.
type Location struct {
	Kind    LocationKind
	Address uint64
}

func (l Location) String() string {
	switch l.Kind {
	case LocationEndOfData:
		return "end_data"
	case LocationEndOfBlock:
		return "end_block"
	}
	return fmt.Sprintf("0x%X", l.Address)
}

// Area selects the bytes that participate in a CRC.
type Area int

const (
	// AreaData covers the written data, padded to a 4-byte boundary.
	AreaData Area = iota
	// AreaBlockZeroCrc covers the whole block with the CRC bytes zeroed.
	AreaBlockZeroCrc
	// AreaBlockPadCrc covers the whole block with the CRC bytes left as padding.
	AreaBlockPadCrc
	// AreaBlockOmitCrc covers the whole block except the CRC bytes.
	AreaBlockOmitCrc
)

var areaNames = map[string]Area{
	"data":           AreaData,
	"block_zero_crc": AreaBlockZeroCrc,
	"block_pad_crc":  AreaBlockPadCrc,
	"block_omit_crc": AreaBlockOmitCrc,
}

// ParseArea maps a layout area name to an Area.
func ParseArea(s string) (Area, error) {
	a, ok := areaNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return AreaData, fmt.Errorf("%w: unknown CRC area %q", errs.ErrCrcInvalid, s)
	}
	return a, nil
}

func (a Area) String() string {
	for name, v := range areaNames {
		if v == a {
			return name
		}
	}
	return "unknown"
}

// CrcSpec is a fully resolved CRC configuration for one block.
type CrcSpec struct {
	crc.Params
	Location Location
	Area     Area
}

// BlockHeader holds the placement and formatting properties of a block.
type BlockHeader struct {
	StartAddress  uint64
	Length        uint32
	Padding       byte
	ByteSwap      bool
	VirtualOffset uint64
	Endianness    value.Endianness
	// TrimPadding drops the padding after the last written byte from the output.
	TrimPadding bool
	CRC         *CrcSpec
}

// Base is the first address of the block in the output address space.
func (h BlockHeader) Base() uint64 {
	return h.StartAddress + h.VirtualOffset
}

// End is one past the last address of the block in the output address space.
func (h BlockHeader) End() uint64 {
	return h.Base() + uint64(h.Length)
}

// Validate checks the header and its CRC configuration.
func (h BlockHeader) Validate() error {
	if h.Length == 0 {
		return fmt.Errorf("%w: block length must be positive", errs.ErrConfigInvalid)
	}
	if h.CRC == nil {
		return nil
	}
	if err := h.CRC.Params.Validate(); err != nil {
		return err
	}
	n := uint64(h.CRC.Bytes())
	if n > uint64(h.Length) {
		return fmt.Errorf("%w: %d CRC bytes in a %d byte block", errs.ErrCrcOutOfBounds, n, h.Length)
	}
	if h.CRC.Location.Kind == LocationAbsolute {
		addr := h.CRC.Location.Address
		if addr < h.StartAddress || addr-h.StartAddress > uint64(h.Length)-n {
			return fmt.Errorf("%w: address 0x%X outside [0x%X, 0x%X]", errs.ErrCrcOutOfBounds,
				addr, h.StartAddress, h.StartAddress+uint64(h.Length)-n)
		}
	}
	return nil
}

// Block is a named block declaration.
type Block struct {
	Name   string
	File   string
	Header BlockHeader
	Fields []FieldSpec
}

// Settings are the layout-wide defaults.
type Settings struct {
	Endianness    value.Endianness
	VirtualOffset uint64
	ByteSwap      bool
	// PadToEnd emits every block at full length. It defaults to true.
	PadToEnd bool
}

// Config is a parsed layout file.
type Config struct {
	File     string
	Settings Settings
	Blocks   []Block
}

// Block returns the block with the given name.
func (c *Config) Block(name string) (*Block, error) {
	for i := range c.Blocks {
		if c.Blocks[i].Name == name {
			return &c.Blocks[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q in %s", errs.ErrBlockNotFound, name, c.File)
}
