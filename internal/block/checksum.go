package block

import (
	"fmt"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/crc"
	"github.com/deploymenttheory/go-flash-composer/internal/layout"
	"github.com/deploymenttheory/go-flash-composer/internal/value"
)

// crcAlign is the alignment of the end-of-data CRC and of the data-only area.
const crcAlign = 4

// crcOffset returns where the CRC goes given that fields occupy buf[:dataEnd].
func crcOffset(h layout.BlockHeader, dataEnd int) (int, error) {
	n := h.CRC.Bytes()
	length := int(h.Length)

	switch h.CRC.Location.Kind {
	case layout.LocationEndOfData:
		off := alignUp(dataEnd, crcAlign)
		if off+n > length {
			return 0, fmt.Errorf("%w: CRC at offset %d needs %d bytes, block has %d", errs.ErrCrcOutOfBounds, off, n, length)
		}
		return off, nil
	case layout.LocationEndOfBlock:
		off := length - n
		if off < dataEnd {
			return 0, fmt.Errorf("%w: CRC at offset %d, data ends at %d", errs.ErrCrcOverlapsData, off, dataEnd)
		}
		return off, nil
	case layout.LocationAbsolute:
		addr := h.CRC.Location.Address
		if addr < h.StartAddress || addr-h.StartAddress > uint64(length-n) {
			return 0, fmt.Errorf("%w: address 0x%X", errs.ErrCrcOutOfBounds, addr)
		}
		off := int(addr - h.StartAddress)
		if off < dataEnd {
			return 0, fmt.Errorf("%w: CRC at offset %d, data ends at %d", errs.ErrCrcOverlapsData, off, dataEnd)
		}
		return off, nil
	}
	return 0, fmt.Errorf("%w: unknown CRC location", errs.ErrCrcInvalid)
}

// placeCRC computes the block CRC over the configured area and writes it in
// block byte order, swapped as well when the block is byte swapped.
func placeCRC(buf []byte, h layout.BlockHeader, dataEnd int) (int, uint64, error) {
	spec := h.CRC
	off, err := crcOffset(h, dataEnd)
	if err != nil {
		return 0, 0, err
	}
	table, err := crc.MakeTable(spec.Params)
	if err != nil {
		return 0, 0, err
	}
	n := spec.Bytes()

	var sum uint64
	switch spec.Area {
	case layout.AreaData:
		end := alignUp(dataEnd, crcAlign)
		if end > len(buf) {
			end = len(buf)
		}
		sum = table.Checksum(buf[:end])
	case layout.AreaBlockZeroCrc:
		scratch := make([]byte, len(buf))
		copy(scratch, buf)
		for i := off; i < off+n; i++ {
			scratch[i] = 0
		}
		sum = table.Checksum(scratch)
	case layout.AreaBlockPadCrc:
		sum = table.Checksum(buf)
	case layout.AreaBlockOmitCrc:
		d := crc.New(table)
		d.Write(buf[:off])
		d.Write(buf[off+n:])
		sum = d.Sum64()
	default:
		return 0, 0, fmt.Errorf("%w: unknown CRC area %d", errs.ErrCrcInvalid, spec.Area)
	}

	out := value.Encode(sum, n, h.Endianness)
	if h.ByteSwap {
		swapPairs(out)
	}
	copy(buf[off:], out)
	return off, sum, nil
}
