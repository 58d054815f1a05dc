package codec

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

var encodings = map[string]encoding.Encoding{
	"latin1":       charmap.ISO8859_1,
	"iso-8859-1":   charmap.ISO8859_1,
	"windows-1252": charmap.Windows1252,
	"cp1252":       charmap.Windows1252,
	"utf-16le":     unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	"utf-16be":     unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
}

// EncodeString converts s to bytes in the named character encoding.
// An empty name means UTF-8.
func EncodeString(s, name string) ([]byte, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "", "utf-8", "utf8":
		return []byte(s), nil
	case "ascii", "us-ascii":
		for i, r := range s {
			if r > 0x7F {
				return nil, fmt.Errorf("%w: %q at offset %d is not ASCII", errs.ErrUnsupportedStringValue, r, i)
			}
		}
		return []byte(s), nil
	}

	enc, ok := encodings[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedEncoding, name)
	}
	out, err := enc.NewEncoder().String(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q cannot be encoded as %s: %v", errs.ErrUnsupportedStringValue, s, key, err)
	}
	return []byte(out), nil
}

// fitString applies the declared byte length: n == 0 keeps b as is, the exact
// form requires len(b) == n, otherwise b is truncated or padded with zeros.
func fitString(b []byte, n int, exact bool) ([]byte, error) {
	if n == 0 {
		return b, nil
	}
	if exact && len(b) != n {
		return nil, fmt.Errorf("%w: %d bytes, declared %d", errs.ErrStringLengthMismatch, len(b), n)
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}
