package layout

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2/unstable"
	"gopkg.in/yaml.v3"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
)

// table is a document mapping that remembers key order. Field packing order is
// declaration order, so layouts are never decoded through plain Go maps.
type table struct {
	keys   []string
	values map[string]interface{}
}

func newTable() *table {
	return &table{values: make(map[string]interface{})}
}

func (t *table) set(key string, v interface{}) error {
	if _, dup := t.values[key]; dup {
		return fmt.Errorf("%w: duplicate key %q", errs.ErrConfigParseError, key)
	}
	t.keys = append(t.keys, key)
	t.values[key] = v
	return nil
}

func (t *table) get(key string) (interface{}, bool) {
	v, ok := t.values[key]
	return v, ok
}

// descend walks (creating as needed) the sub-tables named by path.
func (t *table) descend(path []string) (*table, error) {
	cur := t
	for _, k := range path {
		v, ok := cur.values[k]
		if !ok {
			next := newTable()
			cur.keys = append(cur.keys, k)
			cur.values[k] = next
			cur = next
			continue
		}
		next, ok := v.(*table)
		if !ok {
			return nil, fmt.Errorf("%w: key %q is not a table", errs.ErrConfigParseError, k)
		}
		cur = next
	}
	return cur, nil
}

// plain converts the table into nested maps for struct decoding.
func (t *table) plain() map[string]interface{} {
	out := make(map[string]interface{}, len(t.keys))
	for _, k := range t.keys {
		out[k] = plainValue(t.values[k])
	}
	return out
}

func plainValue(v interface{}) interface{} {
	switch x := v.(type) {
	case *table:
		return x.plain()
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = plainValue(e)
		}
		return out
	}
	return v
}

// decodeTOML parses a TOML document with the order-preserving parser.
func decodeTOML(data []byte) (*table, error) {
	root := newTable()
	current := root

	var p unstable.Parser
	p.Reset(data)
	for p.NextExpression() {
		e := p.Expression()
		switch e.Kind {
		case unstable.Table:
			t, err := root.descend(tomlKey(e.Key()))
			if err != nil {
				return nil, err
			}
			current = t
		case unstable.ArrayTable:
			return nil, fmt.Errorf("%w: array tables are not supported", errs.ErrConfigParseError)
		case unstable.KeyValue:
			if err := setTOMLKeyValue(current, e); err != nil {
				return nil, err
			}
		}
	}
	if err := p.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfigParseError, err)
	}
	return root, nil
}

func tomlKey(it unstable.Iterator) []string {
	var parts []string
	for it.Next() {
		parts = append(parts, string(it.Node().Data))
	}
	return parts
}

func setTOMLKeyValue(t *table, kv *unstable.Node) error {
	parts := tomlKey(kv.Key())
	parent, err := t.descend(parts[:len(parts)-1])
	if err != nil {
		return err
	}
	v, err := tomlValue(kv.Value())
	if err != nil {
		return fmt.Errorf("%s: %w", strings.Join(parts, "."), err)
	}
	return parent.set(parts[len(parts)-1], v)
}

func tomlValue(n *unstable.Node) (interface{}, error) {
	switch n.Kind {
	case unstable.String:
		return string(n.Data), nil
	case unstable.Bool:
		return string(n.Data) == "true", nil
	case unstable.Integer:
		return parseTOMLInteger(string(n.Data))
	case unstable.Float:
		f, err := strconv.ParseFloat(strings.ReplaceAll(string(n.Data), "_", ""), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: float %q", errs.ErrConfigParseError, n.Data)
		}
		return f, nil
	case unstable.Array:
		list := []interface{}{}
		it := n.Children()
		for it.Next() {
			v, err := tomlValue(it.Node())
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case unstable.InlineTable:
		t := newTable()
		it := n.Children()
		for it.Next() {
			if err := setTOMLKeyValue(t, it.Node()); err != nil {
				return nil, err
			}
		}
		return t, nil
	}
	return nil, fmt.Errorf("%w: unsupported TOML value kind %s", errs.ErrConfigParseError, n.Kind)
}

// parseTOMLInteger handles sign, underscores and the 0x/0o/0b prefixes.
// Values above math.MaxInt64 are returned as uint64.
func parseTOMLInteger(raw string) (interface{}, error) {
	s := strings.ReplaceAll(raw, "_", "")
	if i, err := strconv.ParseInt(s, 0, 64); err == nil {
		return i, nil
	}
	u, err := strconv.ParseUint(strings.TrimPrefix(s, "+"), 0, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: integer %q", errs.ErrConfigParseError, raw)
	}
	return u, nil
}

// decodeYAML parses YAML, and JSON as its subset, keeping mapping order.
func decodeYAML(data []byte) (*table, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfigParseError, err)
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return newTable(), nil
	}
	v, err := yamlValue(doc.Content[0])
	if err != nil {
		return nil, err
	}
	t, ok := v.(*table)
	if !ok {
		return nil, fmt.Errorf("%w: top level must be a mapping", errs.ErrConfigParseError)
	}
	return t, nil
}

func yamlValue(n *yaml.Node) (interface{}, error) {
	switch n.Kind {
	case yaml.MappingNode:
		t := newTable()
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := yamlValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			if err := t.set(n.Content[i].Value, v); err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Content[i].Line, err)
			}
		}
		return t, nil
	case yaml.SequenceNode:
		list := make([]interface{}, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := yamlValue(c)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.ScalarNode:
		var x interface{}
		if err := n.Decode(&x); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", errs.ErrConfigParseError, n.Line, err)
		}
		if i, ok := x.(int); ok {
			return int64(i), nil
		}
		return x, nil
	}
	return nil, fmt.Errorf("%w: line %d: unsupported YAML node", errs.ErrConfigParseError, n.Line)
}
