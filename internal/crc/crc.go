// Package crc implements a table-driven CRC of width 8, 16, 32 or 64 bits
// described by the Rocksoft parameter model.
package crc

import (
	"fmt"
	"hash"
	"math/bits"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// Params describes a CRC algorithm.
type Params struct {
	Width      int    `mapstructure:"width"`
	Polynomial uint64 `mapstructure:"polynomial"`
	Start      uint64 `mapstructure:"start"`
	XorOut     uint64 `mapstructure:"xor_out"`
	ReflectIn  bool   `mapstructure:"ref_in"`
	ReflectOut bool   `mapstructure:"ref_out"`
}

// Well known algorithms.
var (
	CRC8            = Params{Width: 8, Polynomial: 0x07}
	CRC16ARC        = Params{Width: 16, Polynomial: 0x8005, ReflectIn: true, ReflectOut: true}
	CRC16CCITTFalse = Params{Width: 16, Polynomial: 0x1021, Start: 0xFFFF}
	CRC32           = Params{Width: 32, Polynomial: 0x04C11DB7, Start: 0xFFFFFFFF, XorOut: 0xFFFFFFFF, ReflectIn: true, ReflectOut: true}
	CRC32MPEG2      = Params{Width: 32, Polynomial: 0x04C11DB7, Start: 0xFFFFFFFF}
	CRC64ECMA       = Params{Width: 64, Polynomial: 0x42F0E1EBA9EA3693}
	CRC64XZ         = Params{Width: 64, Polynomial: 0x42F0E1EBA9EA3693, Start: 0xFFFFFFFFFFFFFFFF, XorOut: 0xFFFFFFFFFFFFFFFF, ReflectIn: true, ReflectOut: true}
)

// Bytes returns the number of bytes the CRC value occupies.
func (p Params) Bytes() int {
	return p.Width / 8
}

func (p Params) mask() uint64 {
	if p.Width == 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(p.Width)) - 1
}

// Validate checks that the width is supported and every constant fits in it.
func (p Params) Validate() error {
	switch p.Width {
	case 8, 16, 32, 64:
	default:
		return fmt.Errorf("%w: width %d (want 8, 16, 32 or 64)", errs.ErrCrcInvalid, p.Width)
	}
	m := p.mask()
	if p.Polynomial == 0 || p.Polynomial&^m != 0 {
		return fmt.Errorf("%w: polynomial 0x%X does not fit %d bits", errs.ErrCrcInvalid, p.Polynomial, p.Width)
	}
	if p.Start&^m != 0 {
		return fmt.Errorf("%w: start 0x%X does not fit %d bits", errs.ErrCrcInvalid, p.Start, p.Width)
	}
	if p.XorOut&^m != 0 {
		return fmt.Errorf("%w: xor_out 0x%X does not fit %d bits", errs.ErrCrcInvalid, p.XorOut, p.Width)
	}
	return nil
}

// Table is a precomputed lookup table for one parameter set.
type Table struct {
	params  Params
	entries [256]uint64
}

// MakeTable validates p and builds its lookup table.
func MakeTable(p Params) (*Table, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	t := &Table{params: p}
	top := uint64(1) << uint(p.Width-1)
	m := p.mask()
	for i := range t.entries {
		c := uint64(i) << uint(p.Width-8)
		for k := 0; k < 8; k++ {
			if c&top != 0 {
				c = (c << 1) ^ p.Polynomial
			} else {
				c <<= 1
			}
		}
		t.entries[i] = c & m
	}
	return t, nil
}

// Params returns the parameter set the table was built for.
func (t *Table) Params() Params {
	return t.params
}

func (t *Table) update(reg uint64, data []byte) uint64 {
	shift := uint(t.params.Width - 8)
	m := t.params.mask()
	for _, b := range data {
		if t.params.ReflectIn {
			b = bits.Reverse8(b)
		}
		idx := byte(reg>>shift) ^ b
		reg = ((reg << 8) ^ t.entries[idx]) & m
	}
	return reg
}

func (t *Table) finish(reg uint64) uint64 {
	if t.params.ReflectOut {
		reg = bits.Reverse64(reg) >> uint(64-t.params.Width)
	}
	return (reg ^ t.params.XorOut) & t.params.mask()
}

// Checksum returns the CRC of data.
func (t *Table) Checksum(data []byte) uint64 {
	return t.finish(t.update(t.params.Start, data))
}

// Checksum computes the CRC of data for p.
func Checksum(data []byte, p Params) (uint64, error) {
	t, err := MakeTable(p)
	if err != nil {
		return 0, err
	}
	return t.Checksum(data), nil
}

// Digest is a streaming CRC. It implements hash.Hash64.
type Digest struct {
	table *Table
	reg   uint64
}

var _ hash.Hash64 = (*Digest)(nil)

// New returns a Digest for the table.
func New(t *Table) *Digest {
	return &Digest{table: t, reg: t.params.Start}
}

func (d *Digest) Write(p []byte) (int, error) {
	d.reg = d.table.update(d.reg, p)
	return len(p), nil
}

func (d *Digest) Sum64() uint64 { return d.table.finish(d.reg) }

// Sum appends the big-endian CRC to b.
func (d *Digest) Sum(b []byte) []byte {
	s := d.Sum64()
	for i := d.Size() - 1; i >= 0; i-- {
		b = append(b, byte(s>>(uint(i)*8)))
	}
	return b
}

func (d *Digest) Reset()         { d.reg = d.table.params.Start }
func (d *Digest) Size() int      { return d.table.params.Bytes() }
func (d *Digest) BlockSize() int { return 1 }
