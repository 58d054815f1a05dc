package block

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// Range is a named half-open address range [Start, End).
type Range struct {
	Name  string
	Start uint64
	End   uint64
}

func (r Range) String() string {
	return fmt.Sprintf("%s [0x%X, 0x%X)", r.Name, r.Start, r.End)
}

// OverlapError reports two blocks sharing output addresses.
type OverlapError struct {
	A, B Range
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("%v: %s and %s", errs.ErrBlockOverlap, e.A, e.B)
}

func (e *OverlapError) Unwrap() error {
	return errs.ErrBlockOverlap
}

// CheckOverlaps reports every pair of blocks whose output ranges intersect.
// The result does not depend on the order of blocks.
func CheckOverlaps(blocks []*Block) error {
	ranges := make([]Range, len(blocks))
	for i, b := range blocks {
		name := b.Name
		if b.File != "" {
			name = b.File + ":" + b.Name
		}
		ranges[i] = Range{Name: name, Start: b.Base(), End: b.End()}
	}
	return checkRanges(ranges)
}

func checkRanges(ranges []Range) error {
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].Name < sorted[j].Name
	})

	var err error
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			// Sorted by start, so no later range can reach back into sorted[i].
			if sorted[j].Start >= sorted[i].End {
				break
			}
			err = multierr.Append(err, &OverlapError{A: sorted[i], B: sorted[j]})
		}
	}
	return err
}
