package layout

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/common/fsutil"
	"github.com/deploymenttheory/go-flash-composer/internal/crc"
	"github.com/deploymenttheory/go-flash-composer/internal/value"
)

// Format is a layout file syntax.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
	FormatJSON
)

// FormatFromPath picks the syntax from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(fsutil.GetExtension(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	}
	return FormatTOML, fmt.Errorf("%w: %s", errs.ErrUnsupportedFile, path)
}

// settingsKey is the reserved top-level table; every other table is a block.
const settingsKey = "settings"

var leafKeys = map[string]bool{
	"type": true, "value": true, "name": true, "bitmap": true,
	"size": true, "SIZE": true, "encoding": true,
}

type rawCrc struct {
	Location   interface{} `mapstructure:"location"`
	Polynomial *uint64     `mapstructure:"polynomial"`
	Start      *uint64     `mapstructure:"start"`
	XorOut     *uint64     `mapstructure:"xor_out"`
	RefIn      *bool       `mapstructure:"ref_in"`
	RefOut     *bool       `mapstructure:"ref_out"`
	Area       *string     `mapstructure:"area"`
	Width      *int        `mapstructure:"width"`
}

type rawSettings struct {
	Endianness    string  `mapstructure:"endianness"`
	VirtualOffset uint64  `mapstructure:"virtual_offset"`
	ByteSwap      bool    `mapstructure:"byte_swap"`
	PadToEnd      *bool   `mapstructure:"pad_to_end"`
	CRC           *rawCrc `mapstructure:"crc"`
}

type rawHeader struct {
	StartAddress *uint64 `mapstructure:"start_address"`
	Length       *uint64 `mapstructure:"length"`
	Padding      *uint64 `mapstructure:"padding"`
	ByteSwap     *bool   `mapstructure:"byte_swap"`
	CRC          *rawCrc `mapstructure:"crc"`
}

// Load reads and parses a layout file.
func Load(path string) (*Config, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := fsutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", errs.ErrFileReadError, path, err)
	}
	return Parse(data, format, filepath.Base(path))
}

// Parse builds a Config from layout text. file names the source in block
// metadata and error messages.
func Parse(data []byte, format Format, file string) (*Config, error) {
	var (
		root *table
		err  error
	)
	if format == FormatTOML {
		root, err = decodeTOML(data)
	} else {
		root, err = decodeYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file, err)
	}

	cfg := &Config{File: file}

	rawSet, ok := root.get(settingsKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s: missing [%s] table", errs.ErrConfigInvalid, file, settingsKey)
	}
	setTable, ok := rawSet.(*table)
	if !ok {
		return nil, fmt.Errorf("%w: %s: %s must be a table", errs.ErrConfigParseError, file, settingsKey)
	}
	var settings rawSettings
	if err := decodeInto(setTable.plain(), &settings); err != nil {
		return nil, fmt.Errorf("%s: settings: %w", file, err)
	}
	if cfg.Settings, err = buildSettings(settings); err != nil {
		return nil, fmt.Errorf("%s: settings: %w", file, err)
	}

	for _, name := range root.keys {
		if name == settingsKey {
			continue
		}
		blk, ok := root.values[name].(*table)
		if !ok {
			return nil, fmt.Errorf("%w: %s: %q must be a table", errs.ErrConfigParseError, file, name)
		}
		b, err := parseBlock(name, blk, cfg.Settings, settings.CRC)
		if err != nil {
			return nil, fmt.Errorf("%s: block %q: %w", file, name, err)
		}
		b.File = file
		cfg.Blocks = append(cfg.Blocks, *b)
	}
	return cfg, nil
}

func decodeInto(input map[string]interface{}, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused: true,
		Result:      out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrConfigParseError, err)
	}
	return nil
}

func buildSettings(raw rawSettings) (Settings, error) {
	if raw.Endianness == "" {
		return Settings{}, fmt.Errorf("%w: endianness is required", errs.ErrConfigInvalid)
	}
	e, err := value.ParseEndianness(raw.Endianness)
	if err != nil {
		return Settings{}, err
	}
	if raw.CRC != nil && raw.CRC.Location != nil {
		loc, err := parseLocation(raw.CRC.Location)
		if err != nil {
			return Settings{}, err
		}
		if loc != nil && loc.Kind == LocationAbsolute {
			return Settings{}, errs.ErrCrcAbsoluteInSettings
		}
	}
	s := Settings{Endianness: e, VirtualOffset: raw.VirtualOffset, ByteSwap: raw.ByteSwap, PadToEnd: true}
	if raw.PadToEnd != nil {
		s.PadToEnd = *raw.PadToEnd
	}
	return s, nil
}

func parseBlock(name string, t *table, settings Settings, defaults *rawCrc) (*Block, error) {
	for _, k := range t.keys {
		if k != "header" && k != "data" {
			return nil, fmt.Errorf("%w: unexpected key %q", errs.ErrConfigParseError, k)
		}
	}

	hv, ok := t.get("header")
	if !ok {
		return nil, fmt.Errorf("%w: missing header", errs.ErrConfigInvalid)
	}
	ht, ok := hv.(*table)
	if !ok {
		return nil, fmt.Errorf("%w: header must be a table", errs.ErrConfigParseError)
	}
	var raw rawHeader
	if err := decodeInto(ht.plain(), &raw); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	header, err := buildHeader(raw, settings, defaults)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	b := &Block{Name: name, Header: header}
	if dv, ok := t.get("data"); ok {
		dt, ok := dv.(*table)
		if !ok {
			return nil, fmt.Errorf("%w: data must be a table", errs.ErrConfigParseError)
		}
		if err := collectFields(dt, "", &b.Fields); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func buildHeader(raw rawHeader, settings Settings, defaults *rawCrc) (BlockHeader, error) {
	if raw.StartAddress == nil {
		return BlockHeader{}, fmt.Errorf("%w: start_address is required", errs.ErrConfigInvalid)
	}
	if raw.Length == nil {
		return BlockHeader{}, fmt.Errorf("%w: length is required", errs.ErrConfigInvalid)
	}
	if *raw.Length == 0 || *raw.Length > math.MaxUint32 {
		return BlockHeader{}, fmt.Errorf("%w: length %d out of range", errs.ErrConfigInvalid, *raw.Length)
	}

	h := BlockHeader{
		StartAddress:  *raw.StartAddress,
		Length:        uint32(*raw.Length),
		Padding:       0xFF,
		ByteSwap:      settings.ByteSwap,
		VirtualOffset: settings.VirtualOffset,
		Endianness:    settings.Endianness,
		TrimPadding:   !settings.PadToEnd,
	}
	if raw.Padding != nil {
		if *raw.Padding > 0xFF {
			return BlockHeader{}, fmt.Errorf("%w: padding 0x%X is not a byte", errs.ErrConfigInvalid, *raw.Padding)
		}
		h.Padding = byte(*raw.Padding)
	}
	if raw.ByteSwap != nil {
		h.ByteSwap = *raw.ByteSwap
	}

	spec, err := mergeCrc(defaults, raw.CRC)
	if err != nil {
		return BlockHeader{}, err
	}
	h.CRC = spec
	return h, nil
}

// mergeCrc applies per-block overrides on top of the settings defaults. A
// merged location that is absent or "none" disables the CRC.
func mergeCrc(defaults, override *rawCrc) (*CrcSpec, error) {
	var m rawCrc
	for _, src := range []*rawCrc{defaults, override} {
		if src == nil {
			continue
		}
		if src.Location != nil {
			m.Location = src.Location
		}
		if src.Polynomial != nil {
			m.Polynomial = src.Polynomial
		}
		if src.Start != nil {
			m.Start = src.Start
		}
		if src.XorOut != nil {
			m.XorOut = src.XorOut
		}
		if src.RefIn != nil {
			m.RefIn = src.RefIn
		}
		if src.RefOut != nil {
			m.RefOut = src.RefOut
		}
		if src.Area != nil {
			m.Area = src.Area
		}
		if src.Width != nil {
			m.Width = src.Width
		}
	}

	if m.Location == nil {
		return nil, nil
	}
	loc, err := parseLocation(m.Location)
	if err != nil || loc == nil {
		return nil, err
	}

	missing := func(name string) error {
		return fmt.Errorf("%w: %s", errs.ErrCrcMissingParameter, name)
	}
	switch {
	case m.Polynomial == nil:
		return nil, missing("polynomial")
	case m.Start == nil:
		return nil, missing("start")
	case m.XorOut == nil:
		return nil, missing("xor_out")
	case m.RefIn == nil:
		return nil, missing("ref_in")
	case m.RefOut == nil:
		return nil, missing("ref_out")
	case m.Area == nil:
		return nil, missing("area")
	}
	area, err := ParseArea(*m.Area)
	if err != nil {
		return nil, err
	}
	width := 32
	if m.Width != nil {
		width = *m.Width
	}

	spec := &CrcSpec{
		Params: crc.Params{
			Width:      width,
			Polynomial: *m.Polynomial,
			Start:      *m.Start,
			XorOut:     *m.XorOut,
			ReflectIn:  *m.RefIn,
			ReflectOut: *m.RefOut,
		},
		Location: *loc,
		Area:     area,
	}
	if err := spec.Params.Validate(); err != nil {
		return nil, err
	}
	return spec, nil
}

// parseLocation returns nil for "none".
func parseLocation(v interface{}) (*Location, error) {
	switch x := v.(type) {
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "none", "":
			return nil, nil
		case "end_data":
			return &Location{Kind: LocationEndOfData}, nil
		case "end_block":
			return &Location{Kind: LocationEndOfBlock}, nil
		}
		addr, err := strconv.ParseUint(strings.TrimSpace(x), 0, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown CRC location %q", errs.ErrCrcInvalid, x)
		}
		return &Location{Kind: LocationAbsolute, Address: addr}, nil
	case int64:
		if x < 0 {
			return nil, fmt.Errorf("%w: negative CRC address", errs.ErrCrcInvalid)
		}
		return &Location{Kind: LocationAbsolute, Address: uint64(x)}, nil
	case uint64:
		return &Location{Kind: LocationAbsolute, Address: x}, nil
	}
	return nil, fmt.Errorf("%w: unsupported CRC location %v", errs.ErrCrcInvalid, v)
}

func collectFields(t *table, prefix string, out *[]FieldSpec) error {
	for _, k := range t.keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		sub, ok := t.values[k].(*table)
		if !ok {
			return fmt.Errorf("%w: %s: expected a table", errs.ErrConfigParseError, path)
		}
		if _, leaf := sub.values["type"].(string); leaf {
			f, err := parseLeaf(path, sub)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			*out = append(*out, f)
			continue
		}
		if err := collectFields(sub, path, out); err != nil {
			return err
		}
	}
	return nil
}

func parseLeaf(path string, t *table) (FieldSpec, error) {
	for _, k := range t.keys {
		if !leafKeys[k] {
			return FieldSpec{}, fmt.Errorf("%w: unknown key %q", errs.ErrConfigParseError, k)
		}
	}

	typ, err := value.ParseScalarType(t.values["type"].(string))
	if err != nil {
		return FieldSpec{}, err
	}
	f := FieldSpec{Path: path, Type: typ}

	lit, hasValue := t.get("value")
	nameV, hasName := t.get("name")
	bitmapV, hasBitmap := t.get("bitmap")
	sources := 0
	for _, present := range []bool{hasValue, hasName, hasBitmap} {
		if present {
			sources++
		}
	}
	if sources == 0 {
		return FieldSpec{}, errs.ErrMissingSource
	}
	if sources > 1 {
		return FieldSpec{}, errs.ErrSourceConflict
	}

	size, hasSize := t.get("size")
	exactSize, hasExact := t.get("SIZE")
	if hasSize && hasExact {
		return FieldSpec{}, fmt.Errorf("%w: size and SIZE are mutually exclusive", errs.ErrSizeConflict)
	}
	if hasExact {
		size, hasSize, f.Exact = exactSize, true, true
	}

	if enc, ok := t.get("encoding"); ok {
		s, ok := enc.(string)
		if !ok {
			return FieldSpec{}, fmt.Errorf("%w: encoding must be a string", errs.ErrConfigParseError)
		}
		f.Encoding = s
	}

	if hasBitmap {
		if hasSize {
			return FieldSpec{}, fmt.Errorf("%w: bitmap fields take no size", errs.ErrSizeConflict)
		}
		f.Kind = KindBitmap
		f.Bitmap, err = parseBitmap(bitmapV)
		return f, err
	}

	if hasName {
		s, ok := nameV.(string)
		if !ok || s == "" {
			return FieldSpec{}, fmt.Errorf("%w: name must be a non-empty string", errs.ErrConfigParseError)
		}
		f.Source = Named(s)
	} else {
		v, err := value.FromInterface(plainValue(lit))
		if err != nil {
			return FieldSpec{}, err
		}
		f.Source = Literal(v)
	}

	if err := applySize(&f, size, hasSize); err != nil {
		return FieldSpec{}, err
	}
	if f.Encoding != "" && f.Kind != KindString && f.Kind != KindArray1D {
		return FieldSpec{}, fmt.Errorf("%w: encoding only applies to strings", errs.ErrConfigInvalid)
	}
	return f, nil
}

// applySize derives the field kind from its size declaration and literal shape.
func applySize(f *FieldSpec, size interface{}, hasSize bool) error {
	lit, isLiteral := f.Source.Value()

	if !hasSize {
		switch {
		case !isLiteral:
			f.Kind = KindScalar
		case lit.Kind() == value.KindString:
			f.Kind = KindString
		case lit.Kind() == value.KindArray:
			elems, _ := lit.Elements()
			f.Kind, f.Len = KindArray1D, len(elems)
		case lit.Kind() == value.KindMatrix:
			rows, _ := lit.Rows()
			f.Kind, f.Rows = KindArray2D, len(rows)
			if len(rows) > 0 {
				f.Cols = len(rows[0])
			}
		default:
			f.Kind = KindScalar
		}
		return nil
	}

	switch s := size.(type) {
	case int64:
		if s <= 0 {
			return fmt.Errorf("%w: size must be positive", errs.ErrSizeConflict)
		}
		f.Len = int(s)
		if isLiteral && lit.Kind() == value.KindString {
			f.Kind = KindString
		} else {
			f.Kind = KindArray1D
		}
	case []interface{}:
		if len(s) != 2 {
			return fmt.Errorf("%w: 2-D size must be [rows, cols]", errs.ErrSizeConflict)
		}
		rows, ok1 := s[0].(int64)
		cols, ok2 := s[1].(int64)
		if !ok1 || !ok2 || rows <= 0 || cols <= 0 {
			return fmt.Errorf("%w: 2-D size must hold two positive integers", errs.ErrSizeConflict)
		}
		f.Kind, f.Rows, f.Cols = KindArray2D, int(rows), int(cols)
	default:
		return fmt.Errorf("%w: unsupported size %v", errs.ErrSizeConflict, size)
	}
	return nil
}

func parseBitmap(v interface{}) ([]BitmapField, error) {
	list, ok := v.([]interface{})
	if !ok || len(list) == 0 {
		return nil, fmt.Errorf("%w: bitmap must be a non-empty list", errs.ErrConfigParseError)
	}
	out := make([]BitmapField, 0, len(list))
	for i, item := range list {
		t, ok := item.(*table)
		if !ok {
			return nil, fmt.Errorf("%w: bitmap entry %d must be a table", errs.ErrConfigParseError, i)
		}
		for _, k := range t.keys {
			if k != "bits" && k != "value" && k != "name" {
				return nil, fmt.Errorf("%w: bitmap entry %d: unknown key %q", errs.ErrConfigParseError, i, k)
			}
		}
		bits, ok := t.values["bits"].(int64)
		if !ok || bits < 0 {
			return nil, fmt.Errorf("%w: bitmap entry %d: bits must be a non-negative integer", errs.ErrConfigParseError, i)
		}

		bf := BitmapField{Width: int(bits)}
		lit, hasValue := t.get("value")
		nameV, hasName := t.get("name")
		switch {
		case hasValue && hasName:
			return nil, fmt.Errorf("%w: bitmap entry %d", errs.ErrSourceConflict, i)
		case hasName:
			s, ok := nameV.(string)
			if !ok || s == "" {
				return nil, fmt.Errorf("%w: bitmap entry %d: name must be a non-empty string", errs.ErrConfigParseError, i)
			}
			bf.Source = Named(s)
		case hasValue:
			val, err := value.FromInterface(lit)
			if err != nil {
				return nil, fmt.Errorf("bitmap entry %d: %w", i, err)
			}
			if !val.Scalar() {
				return nil, fmt.Errorf("%w: bitmap entry %d takes a scalar", errs.ErrShapeMismatch, i)
			}
			bf.Source = Literal(val)
		default:
			return nil, fmt.Errorf("%w: bitmap entry %d", errs.ErrMissingSource, i)
		}
		out = append(out, bf)
	}
	return out, nil
}
