package errors

import (
	"errors"
)

var (
	// General Errors
	ErrInvalidArgument = errors.New("invalid argument")
	ErrUnsupportedFile = errors.New("unsupported file format")

	// File & Directory Errors
	ErrFileNotFound   = errors.New("file not found")
	ErrFileReadError  = errors.New("error reading file")
	ErrFileWriteError = errors.New("error writing to file")
	ErrDirNotFound    = errors.New("directory not found")

	// Configuration Errors
	ErrConfigInvalid    = errors.New("invalid configuration")
	ErrConfigParseError = errors.New("error parsing configuration")

	// Layout Specification Errors
	ErrUnknownType           = errors.New("unknown scalar type")
	ErrSourceConflict        = errors.New("exactly one of value, name or bitmap must be given")
	ErrMissingSource         = errors.New("field has no value source")
	ErrSizeConflict          = errors.New("conflicting size declaration")
	ErrBitmapWidthMismatch   = errors.New("bitmap widths do not sum to storage width")
	ErrBitmapZeroWidth       = errors.New("bitmap field width must be greater than zero")
	ErrBitmapStorageType     = errors.New("bitmap requires integer storage type")
	ErrForbiddenType         = errors.New("scalar type not allowed for this field kind")
	ErrCrcMissingParameter   = errors.New("missing CRC parameter")
	ErrCrcAbsoluteInSettings = errors.New("absolute CRC address not allowed in settings")
	ErrCrcInvalid            = errors.New("invalid CRC configuration")

	// Resolution Errors
	ErrValueNotFound = errors.New("value not found in any version")
	ErrNoDataSource  = errors.New("named value requires a data source")
	ErrShapeMismatch = errors.New("value shape does not match field")

	// Conversion Errors
	ErrValueOutOfRange        = errors.New("value out of range")
	ErrNonIntegralValue       = errors.New("non-integral value")
	ErrUnsupportedStringValue = errors.New("unsupported string value")
	ErrUnsupportedEncoding    = errors.New("unsupported string encoding")

	// Layout Errors
	ErrFieldExceedsBlock    = errors.New("field exceeds block length")
	ErrArraySizeMismatch    = errors.New("array size mismatch")
	ErrStringLengthMismatch = errors.New("string length mismatch")
	ErrCrcOutOfBounds       = errors.New("CRC location outside block")
	ErrCrcOverlapsData      = errors.New("CRC location overlaps field data")

	// Assembly Errors
	ErrBlockOverlap  = errors.New("block address ranges overlap")
	ErrBlockNotFound = errors.New("block not found")
	ErrNoBlocks      = errors.New("no blocks provided")

	// Output Errors
	ErrInvalidRecordWidth = errors.New("record width must be between 1 and 64")
	ErrAddressTooLarge    = errors.New("address exceeds output format range")
	ErrInvalidRecord      = errors.New("malformed record")
	ErrChecksumFailed     = errors.New("record checksum mismatch")

	// Data Source Errors
	ErrDataSourceConfig = errors.New("invalid data source configuration")
	ErrRetrievalFailed  = errors.New("data retrieval failed")
	ErrInvalidURL       = errors.New("invalid URL")

	// Compression Errors
	ErrUnsupportedCompression = errors.New("unsupported compression format")

	// Hash Errors
	ErrInvalidHasher  = errors.New("invalid hasher")
	ErrDigestMismatch = errors.New("digest mismatch")
)
