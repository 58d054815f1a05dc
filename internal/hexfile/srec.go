package hexfile

import (
	"bufio"
	"fmt"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// srecKind groups the data, count and termination record types of one address width.
type srecKind struct {
	addrLen     int
	data        byte
	termination byte
}

var (
	srec16 = srecKind{addrLen: 2, data: '1', termination: '9'}
	srec24 = srecKind{addrLen: 3, data: '2', termination: '8'}
	srec32 = srecKind{addrLen: 4, data: '3', termination: '7'}
)

// srecKindFor picks the narrowest address width that holds maxAddr.
func srecKindFor(maxAddr uint64) (srecKind, error) {
	switch {
	case maxAddr <= 0xFFFF:
		return srec16, nil
	case maxAddr <= 0xFFFFFF:
		return srec24, nil
	case maxAddr <= 0xFFFFFFFF:
		return srec32, nil
	}
	return srecKind{}, fmt.Errorf("%w: 0x%X does not fit a 32-bit S-Record address", errs.ErrAddressTooLarge, maxAddr)
}

// srecChecksum is the one's complement of the byte sum.
func srecChecksum(fields []byte) byte {
	return ^byteSum(fields)
}

func writeSrecRecord(w *bufio.Writer, typ byte, addrLen int, addr uint64, data []byte) error {
	fields := make([]byte, 0, 1+addrLen+len(data))
	fields = append(fields, byte(addrLen+len(data)+1))
	for i := addrLen - 1; i >= 0; i-- {
		fields = append(fields, byte(addr>>(uint(i)*8)))
	}
	fields = append(fields, data...)
	return writeRecord(w, "S"+string(typ), fields, srecChecksum(fields))
}

// writeSRecord emits an S0 header, data records, an S5/S6 record count and the
// termination record matching the data record type.
func writeSRecord(w *bufio.Writer, segs []Segment, width int) error {
	var maxAddr uint64
	for _, seg := range segs {
		if len(seg.Data) > 0 && seg.End()-1 > maxAddr {
			maxAddr = seg.End() - 1
		}
	}
	kind, err := srecKindFor(maxAddr)
	if err != nil {
		return err
	}

	if err := writeSrecRecord(w, '0', 2, 0, nil); err != nil {
		return err
	}

	count := 0
	for _, seg := range segs {
		addr, data := seg.Address, seg.Data
		for len(data) > 0 {
			n := width
			if n > len(data) {
				n = len(data)
			}
			if err := writeSrecRecord(w, kind.data, kind.addrLen, addr, data[:n]); err != nil {
				return err
			}
			count++
			addr += uint64(n)
			data = data[n:]
		}
	}

	switch {
	case count <= 0xFFFF:
		err = writeSrecRecord(w, '5', 2, uint64(count), nil)
	case count <= 0xFFFFFF:
		err = writeSrecRecord(w, '6', 3, uint64(count), nil)
	default:
		// the count record is optional and cannot hold more than 24 bits
	}
	if err != nil {
		return err
	}
	return writeSrecRecord(w, kind.termination, kind.addrLen, 0, nil)
}
