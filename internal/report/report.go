// Package report collects the values written into blocks and exports them as
// a nested JSON document keyed by file, block and field path.
package report

import (
	"fmt"
	"math"
	"strings"
	"sync"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/common/jsonutil"
	"github.com/deploymenttheory/go-flash-composer/internal/codec"
	"github.com/deploymenttheory/go-flash-composer/internal/value"
)

// Collector is a codec.Sink. Blocks record into it concurrently while they
// are built; it is only read once the build has finished.
type Collector struct {
	mu      sync.Mutex
	entries []codec.Usage
}

func NewCollector() *Collector {
	return &Collector{}
}

// Record implements codec.Sink.
func (c *Collector) Record(u codec.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, u)
}

// Entries returns a copy of everything recorded so far.
func (c *Collector) Entries() []codec.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]codec.Usage, len(c.entries))
	copy(out, c.entries)
	return out
}

// Tree nests the recorded values as file -> block -> path segments. Two
// fields claiming the same path, or one path nested under another's value,
// is an error.
func (c *Collector) Tree() (map[string]interface{}, error) {
	root := make(map[string]interface{})
	for _, u := range c.Entries() {
		v, err := jsonValue(u.Value)
		if err != nil {
			return nil, fmt.Errorf("%s/%s/%s: %w", u.File, u.Block, u.Path, err)
		}
		keys := append([]string{u.File, u.Block}, strings.Split(u.Path, ".")...)
		if err := jsonutil.SetValue(root, keys, v); err != nil {
			return nil, err
		}
	}
	return root, nil
}

// WriteFile writes the tree as indented JSON, creating parent directories.
func (c *Collector) WriteFile(path string) error {
	tree, err := c.Tree()
	if err != nil {
		return err
	}
	return jsonutil.WriteJSONFile(path, tree)
}

// jsonValue maps a Value onto JSON types. Booleans are reported as 0 or 1,
// matching the bytes written for them.
func jsonValue(v value.Value) (interface{}, error) {
	switch v.Kind() {
	case value.KindBool:
		if b, _ := v.Interface().(bool); b {
			return 1, nil
		}
		return 0, nil
	case value.KindFloat:
		f, _ := v.Interface().(float64)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("%w: non-finite float %v cannot be exported", errs.ErrInvalidArgument, f)
		}
		return f, nil
	case value.KindArray:
		elems, _ := v.Elements()
		return jsonList(elems)
	case value.KindMatrix:
		rows, _ := v.Rows()
		out := make([]interface{}, len(rows))
		for i, row := range rows {
			list, err := jsonList(row)
			if err != nil {
				return nil, err
			}
			out[i] = list
		}
		return out, nil
	}
	return v.Interface(), nil
}

func jsonList(elems []value.Value) ([]interface{}, error) {
	out := make([]interface{}, len(elems))
	for i, e := range elems {
		v, err := jsonValue(e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
