package block

import (
	"context"
	"sort"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/multierr"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/hexfile"
	"github.com/deploymenttheory/go-flash-composer/internal/layout"
	"github.com/deploymenttheory/go-flash-composer/internal/logger"
	"github.com/deploymenttheory/go-flash-composer/internal/value"
)

// BuildAll builds every block concurrently, one task per block. It waits for
// all tasks and returns every block failure together; only when all blocks
// succeed are address overlaps checked. Blocks are returned in input order.
func BuildAll(ctx context.Context, defs []layout.Block, r value.Resolver, opts Options) ([]*Block, error) {
	if len(defs) == 0 {
		return nil, errs.ErrNoBlocks
	}

	built := make([]*Block, len(defs))
	failures := make([]error, len(defs))

	p := pool.New()
	if opts.Parallelism > 0 {
		p = p.WithMaxGoroutines(opts.Parallelism)
	}
	for i := range defs {
		i := i
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				failures[i] = &BlockError{Block: defs[i].Name, File: defs[i].File, Err: err}
				return
			}
			built[i], failures[i] = Build(defs[i], r, opts)
		})
	}
	p.Wait()

	if err := multierr.Combine(failures...); err != nil {
		logger.LogDebug("Block build failed", map[string]interface{}{
			"failed": len(multierr.Errors(err)),
			"total":  len(defs),
		})
		return nil, err
	}
	if err := CheckOverlaps(built); err != nil {
		return nil, err
	}
	return built, nil
}

// Segments converts blocks into address-sorted output segments. Blocks with
// TrimPadding set end at their last written byte.
func Segments(blocks []*Block) []hexfile.Segment {
	segs := make([]hexfile.Segment, len(blocks))
	for i, b := range blocks {
		data := b.Data
		if b.Header.TrimPadding {
			data = data[:b.Extent]
		}
		segs[i] = hexfile.Segment{Address: b.Base(), Data: data}
	}
	sort.SliceStable(segs, func(i, j int) bool {
		return segs[i].Address < segs[j].Address
	})
	return segs
}
