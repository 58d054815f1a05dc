package hexfile

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/marcinbor85/gohex"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// DetectFormat guesses the format from the first non-blank character.
func DetectFormat(data []byte) (Format, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 {
		switch trimmed[0] {
		case ':':
			return IntelHex, nil
		case 'S', 's':
			return SRecord, nil
		}
	}
	return IntelHex, fmt.Errorf("%w: not an Intel HEX or S-Record file", errs.ErrUnsupportedFile)
}

// Decode reads an image in the given format into address-sorted segments.
func Decode(r io.Reader, format Format) ([]Segment, error) {
	if format == SRecord {
		return DecodeSRecord(r)
	}
	return DecodeIntelHex(r)
}

// DecodeIntelHex parses an Intel HEX image. Adjacent data is merged into one segment.
func DecodeIntelHex(r io.Reader) ([]Segment, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidRecord, err)
	}
	var segs []Segment
	for _, s := range mem.GetDataSegments() {
		segs = append(segs, Segment{Address: uint64(s.Address), Data: s.Data})
	}
	return mergeSegments(segs), nil
}

// DecodeSRecord parses an S-Record image, verifying every checksum and record
// length. Adjacent data records are merged into one segment.
func DecodeSRecord(r io.Reader) ([]Segment, error) {
	var segs []Segment
	sc := bufio.NewScanner(r)
	lineno := 0
	for sc.Scan() {
		lineno++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if len(line) < 4 || (line[0] != 'S' && line[0] != 's') {
			return nil, fmt.Errorf("%w: line %d does not start with 'S'", errs.ErrInvalidRecord, lineno)
		}
		typ := line[1]
		raw, err := hex.DecodeString(line[2:])
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", errs.ErrInvalidRecord, lineno, err)
		}
		if len(raw) < 2 || int(raw[0]) != len(raw)-1 {
			return nil, fmt.Errorf("%w: line %d: byte count mismatch", errs.ErrInvalidRecord, lineno)
		}
		body, sum := raw[:len(raw)-1], raw[len(raw)-1]
		if srecChecksum(body) != sum {
			return nil, fmt.Errorf("%w: line %d", errs.ErrChecksumFailed, lineno)
		}

		var addrLen int
		switch typ {
		case '1':
			addrLen = 2
		case '2':
			addrLen = 3
		case '3':
			addrLen = 4
		case '0', '5', '6', '7', '8', '9':
			continue
		default:
			return nil, fmt.Errorf("%w: line %d: record type S%c", errs.ErrInvalidRecord, lineno, typ)
		}
		if len(body) < 1+addrLen {
			return nil, fmt.Errorf("%w: line %d: short address", errs.ErrInvalidRecord, lineno)
		}

		var addr uint64
		for _, b := range body[1 : 1+addrLen] {
			addr = addr<<8 | uint64(b)
		}
		segs = appendData(segs, addr, body[1+addrLen:])
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrFileReadError, err)
	}
	return mergeSegments(segs), nil
}

// appendData extends the last segment when data continues it.
func appendData(segs []Segment, addr uint64, data []byte) []Segment {
	if n := len(segs); n > 0 && segs[n-1].End() == addr {
		segs[n-1].Data = append(segs[n-1].Data, data...)
		return segs
	}
	return append(segs, Segment{Address: addr, Data: append([]byte(nil), data...)})
}

// mergeSegments sorts segments and joins the ones that touch.
func mergeSegments(segs []Segment) []Segment {
	sort.SliceStable(segs, func(i, j int) bool { return segs[i].Address < segs[j].Address })
	var out []Segment
	for _, s := range segs {
		out = appendData(out, s.Address, s.Data)
	}
	return out
}
