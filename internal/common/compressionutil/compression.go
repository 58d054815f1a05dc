// Package compression wraps the artifact compressors selected by build.compress.
package compression

import (
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// Algorithm names a supported compressor.
type Algorithm string

const (
	None  Algorithm = ""
	GZIP  Algorithm = "gzip"
	BZIP2 Algorithm = "bzip2"
	XZ    Algorithm = "xz"
)

// ParseAlgorithm accepts the configuration spellings, "none" included.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case None, GZIP, BZIP2, XZ:
		return a, nil
	case "none":
		return None, nil
	}
	return None, fmt.Errorf("%w: %q", errors.ErrUnsupportedCompression, s)
}

// Extension is the file suffix appended to compressed artifacts.
func (a Algorithm) Extension() string {
	switch a {
	case GZIP:
		return ".gz"
	case BZIP2:
		return ".bz2"
	case XZ:
		return ".xz"
	}
	return ""
}

// FromExtension detects the algorithm from a file name, None when uncompressed.
func FromExtension(path string) Algorithm {
	for _, a := range []Algorithm{GZIP, BZIP2, XZ} {
		if strings.HasSuffix(strings.ToLower(path), a.Extension()) {
			return a
		}
	}
	return None
}

// Compress returns data compressed with a. None returns data unchanged.
func Compress(data []byte, a Algorithm) ([]byte, error) {
	switch a {
	case None:
		return data, nil
	case GZIP:
		return compressGZIP(data)
	case BZIP2:
		return compressBZIP2(data)
	case XZ:
		return compressXZ(data)
	}
	return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedCompression, string(a))
}

// Extract reverses Compress.
func Extract(data []byte, a Algorithm) ([]byte, error) {
	switch a {
	case None:
		return data, nil
	case GZIP:
		return extractGZIP(data)
	case BZIP2:
		return extractBZIP2(data)
	case XZ:
		return extractXZ(data)
	}
	return nil, fmt.Errorf("%w: %q", errors.ErrUnsupportedCompression, string(a))
}
