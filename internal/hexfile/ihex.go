package hexfile

import (
	"bufio"
	"fmt"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// Intel HEX record types.
const (
	ihexData                  = 0x00
	ihexEOF                   = 0x01
	ihexExtendedLinearAddress = 0x04
)

const ihexAddressLimit = uint64(1) << 32

// ihexChecksum is the two's complement of the byte sum.
func ihexChecksum(fields []byte) byte {
	return -byteSum(fields)
}

func writeIhexRecord(w *bufio.Writer, typ byte, addr uint16, data []byte) error {
	fields := make([]byte, 0, 4+len(data))
	fields = append(fields, byte(len(data)), byte(addr>>8), byte(addr), typ)
	fields = append(fields, data...)
	return writeRecord(w, ":", fields, ihexChecksum(fields))
}

// writeIntelHex emits data records, switching the extended linear address
// whenever the upper 16 address bits change. No record crosses a 64 KiB page.
func writeIntelHex(w *bufio.Writer, segs []Segment, width int) error {
	var upper uint64
	for _, seg := range segs {
		if seg.End() > ihexAddressLimit {
			return fmt.Errorf("%w: segment at 0x%X ends beyond 4 GiB", errs.ErrAddressTooLarge, seg.Address)
		}

		addr, data := seg.Address, seg.Data
		for len(data) > 0 {
			if hi := addr >> 16; hi != upper {
				if err := writeIhexRecord(w, ihexExtendedLinearAddress, 0, []byte{byte(hi >> 8), byte(hi)}); err != nil {
					return err
				}
				upper = hi
			}

			n := width
			if n > len(data) {
				n = len(data)
			}
			if room := int(0x10000 - addr&0xFFFF); n > room {
				n = room
			}
			if err := writeIhexRecord(w, ihexData, uint16(addr), data[:n]); err != nil {
				return err
			}
			addr += uint64(n)
			data = data[n:]
		}
	}
	return writeIhexRecord(w, ihexEOF, 0, nil)
}
