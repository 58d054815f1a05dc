// Package hexfile writes and reads Intel HEX and Motorola S-Record images.
package hexfile

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// Format is an output text format.
type Format int

const (
	IntelHex Format = iota
	SRecord
)

// MaxRecordWidth is the largest number of data bytes per record.
const MaxRecordWidth = 64

// ParseFormat accepts "hex"/"ihex" and "srec"/"mot"/"s19"/"s28"/"s37".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "hex", "ihex", "intel":
		return IntelHex, nil
	case "srec", "mot", "s19", "s28", "s37", "motorola":
		return SRecord, nil
	}
	return IntelHex, fmt.Errorf("%w: unknown output format %q", errs.ErrInvalidArgument, s)
}

// Extension is the conventional file extension including the dot.
func (f Format) Extension() string {
	if f == SRecord {
		return ".s19"
	}
	return ".hex"
}

func (f Format) String() string {
	if f == SRecord {
		return "srec"
	}
	return "hex"
}

// Segment is a contiguous run of bytes at an address.
type Segment struct {
	Address uint64
	Data    []byte
}

// End is one past the last address of the segment.
func (s Segment) End() uint64 {
	return s.Address + uint64(len(s.Data))
}

// Serialize renders segments as text. Segments are written in ascending address
// order and gaps between them are left unfilled.
func Serialize(segs []Segment, format Format, width int) (string, error) {
	var sb strings.Builder
	if err := Write(&sb, segs, format, width); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Write streams the serialized segments to w.
func Write(w io.Writer, segs []Segment, format Format, width int) error {
	if width < 1 || width > MaxRecordWidth {
		return fmt.Errorf("%w: got %d", errs.ErrInvalidRecordWidth, width)
	}

	sorted := make([]Segment, len(segs))
	copy(sorted, segs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Address < sorted[j].Address
	})

	bw := bufio.NewWriter(w)
	var err error
	switch format {
	case IntelHex:
		err = writeIntelHex(bw, sorted, width)
	case SRecord:
		err = writeSRecord(bw, sorted, width)
	default:
		err = fmt.Errorf("%w: format %d", errs.ErrInvalidArgument, format)
	}
	if err != nil {
		return err
	}
	return bw.Flush()
}

// writeRecord writes prefix followed by the upper-case hex of fields, then the
// checksum byte and a newline.
func writeRecord(w *bufio.Writer, prefix string, fields []byte, checksum byte) error {
	if _, err := w.WriteString(prefix); err != nil {
		return err
	}
	for _, b := range fields {
		if _, err := fmt.Fprintf(w, "%02X", b); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%02X\n", checksum)
	return err
}

func byteSum(b []byte) byte {
	var s byte
	for _, v := range b {
		s += v
	}
	return s
}
