package codec

import (
	"fmt"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/layout"
	"github.com/deploymenttheory/go-flash-composer/internal/value"
)

// Pack packs resolved sub-field values LSB first into one storage word.
// Every sub-field inherits the signedness of storage. The widths must sum to
// the storage width exactly; this is checked before any value is converted.
// Pack also returns each sub-field value after range handling.
func Pack(fields []layout.BitmapField, resolved []value.Value, storage value.ScalarType, strict bool) (uint64, []value.Integer, error) {
	if storage.Float {
		return 0, nil, fmt.Errorf("%w: %s", errs.ErrBitmapStorageType, storage)
	}
	total := 0
	for i, f := range fields {
		if f.Width <= 0 {
			return 0, nil, fmt.Errorf("%w: entry %d", errs.ErrBitmapZeroWidth, i)
		}
		total += f.Width
	}
	if total != storage.Bits() {
		return 0, nil, fmt.Errorf("%w: entries total %d bits, %s holds %d", errs.ErrBitmapWidthMismatch, total, storage, storage.Bits())
	}
	if len(resolved) != len(fields) {
		return 0, nil, fmt.Errorf("%w: %d values for %d bitmap entries", errs.ErrInvalidArgument, len(resolved), len(fields))
	}

	var (
		acc    uint64
		offset int
		out    = make([]value.Integer, len(fields))
	)
	for i, f := range fields {
		n, err := value.ToInteger(resolved[i], f.Width, storage.Signed, strict)
		if err != nil {
			return 0, nil, fmt.Errorf("bitmap entry %d: %w", i, err)
		}
		out[i] = n
		acc |= n.Pattern(f.Width) << uint(offset)
		offset += f.Width
	}
	return acc, out, nil
}
