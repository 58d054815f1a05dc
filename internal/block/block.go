// Package block assembles field bytes into fixed-address memory blocks.
package block

import (
	"fmt"

	"go.uber.org/multierr"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/codec"
	"github.com/deploymenttheory/go-flash-composer/internal/layout"
	"github.com/deploymenttheory/go-flash-composer/internal/logger"
	"github.com/deploymenttheory/go-flash-composer/internal/value"
)

// Options are the build-wide settings shared by every block.
type Options struct {
	Strict   bool
	Versions []string
	Sink     codec.Sink
	// Parallelism caps concurrently built blocks; zero means one goroutine per block.
	Parallelism int
}

// Block is an assembled block. It is not modified after Build returns.
type Block struct {
	Name   string
	File   string
	Header layout.BlockHeader
	Data   []byte
	// UsedBytes counts bytes written by fields plus the CRC.
	UsedBytes int
	CRC       uint64
	HasCRC    bool
	// CRCOffset is the CRC position relative to the block start.
	CRCOffset int
	// Extent is one past the last byte written by a field or the CRC.
	Extent int
}

// Base is the first output address of the block.
func (b *Block) Base() uint64 { return b.Header.Base() }

// End is one past the last output address of the block.
func (b *Block) End() uint64 { return b.Header.End() }

// BlockError attaches the block identity to a build error.
type BlockError struct {
	Block string
	File  string
	Err   error
}

func (e *BlockError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("block %s: %v", e.Block, e.Err)
	}
	return fmt.Sprintf("block %s (%s): %v", e.Block, e.File, e.Err)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// Validate runs every static check for def and reports all failures together.
func Validate(def layout.Block) error {
	err := def.Header.Validate()
	for _, f := range def.Fields {
		if ferr := f.Validate(); ferr != nil {
			err = multierr.Append(err, &codec.FieldError{Path: f.Path, Err: ferr})
		}
	}
	return err
}

// Build assembles one block: fields are written contiguously in declaration
// order over a padding-filled buffer, the buffer is optionally byte swapped,
// and the CRC is placed last.
func Build(def layout.Block, r value.Resolver, opts Options) (*Block, error) {
	if err := Validate(def); err != nil {
		return nil, &BlockError{Block: def.Name, File: def.File, Err: err}
	}

	h := def.Header
	buf := make([]byte, h.Length)
	for i := range buf {
		buf[i] = h.Padding
	}

	emitOpts := codec.Options{
		Strict:     opts.Strict,
		Endianness: h.Endianness,
		Versions:   opts.Versions,
		Sink:       opts.Sink,
		Block:      def.Name,
		File:       def.File,
	}

	offset := 0
	for _, f := range def.Fields {
		data, err := codec.Emit(f, r, emitOpts)
		if err != nil {
			return nil, &BlockError{Block: def.Name, File: def.File, Err: err}
		}
		if offset+len(data) > len(buf) {
			err := &codec.FieldError{Path: f.Path, Err: fmt.Errorf("%w: bytes [%d, %d) in a %d byte block",
				errs.ErrFieldExceedsBlock, offset, offset+len(data), len(buf))}
			return nil, &BlockError{Block: def.Name, File: def.File, Err: err}
		}
		copy(buf[offset:], data)
		offset += len(data)
	}

	if h.ByteSwap {
		swapPairs(buf)
	}

	b := &Block{
		Name:      def.Name,
		File:      def.File,
		Header:    h,
		Data:      buf,
		UsedBytes: offset,
		Extent:    offset,
	}
	if h.ByteSwap && b.Extent%2 == 1 {
		b.Extent++
	}

	if h.CRC != nil {
		pos, sum, err := placeCRC(buf, h, offset)
		if err != nil {
			return nil, &BlockError{Block: def.Name, File: def.File, Err: err}
		}
		b.CRC, b.HasCRC, b.CRCOffset = sum, true, pos
		b.UsedBytes += h.CRC.Bytes()
		if end := pos + h.CRC.Bytes(); end > b.Extent {
			b.Extent = end
		}
	}

	logger.LogDebug("Block built", map[string]interface{}{
		"block":  def.Name,
		"file":   def.File,
		"start":  fmt.Sprintf("0x%X", b.Base()),
		"length": h.Length,
		"used":   b.UsedBytes,
	})
	return b, nil
}

func swapPairs(b []byte) {
	for i := 0; i+1 < len(b); i += 2 {
		b[i], b[i+1] = b[i+1], b[i]
	}
}

func alignUp(n, to int) int {
	return (n + to - 1) / to * to
}
