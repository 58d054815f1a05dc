// Package datasource resolves named field values from per-version tables
// loaded from a JSON document or an HTTP endpoint.
package datasource

import (
	"context"
	"fmt"
	"strings"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/value"
)

// Config selects at most one data source.
type Config struct {
	// JSON is a path to a .json file or an inline JSON document.
	JSON string
	// HTTP is a path to a .json request description or an inline one.
	HTTP     string
	Versions []string
}

// Source holds one name/value table per version. It is read-only after
// construction and safe for concurrent use.
type Source struct {
	kind   string
	tables map[string]map[string]interface{}
}

// Open builds the configured source. It returns nil when none is configured.
func Open(ctx context.Context, cfg Config) (*Source, error) {
	switch {
	case cfg.JSON != "" && cfg.HTTP != "":
		return nil, fmt.Errorf("%w: json and http sources are mutually exclusive", errs.ErrDataSourceConfig)
	case cfg.JSON != "":
		return NewJSON(cfg.JSON, cfg.Versions)
	case cfg.HTTP != "":
		return NewHTTP(ctx, cfg.HTTP, cfg.Versions)
	}
	return nil, nil
}

// ParseVersions splits a priority list written as "A/B/C".
func ParseVersions(s string) []string {
	var out []string
	for _, v := range strings.Split(s, "/") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Kind names the source for logs and reports.
func (s *Source) Kind() string {
	return s.kind
}

// Resolve returns the first non-null value stored under name, trying versions
// in priority order.
func (s *Source) Resolve(name string, versions []string) (value.Value, error) {
	for _, ver := range versions {
		table, ok := s.tables[ver]
		if !ok {
			return value.Value{}, fmt.Errorf("%w: version %q is not loaded", errs.ErrRetrievalFailed, ver)
		}
		raw, ok := table[name]
		if !ok || raw == nil {
			continue
		}
		v, err := value.FromInterface(raw)
		if err != nil {
			return value.Value{}, fmt.Errorf("%s: %w", name, err)
		}
		return v, nil
	}
	return value.Value{}, fmt.Errorf("%w: %q in versions %s", errs.ErrValueNotFound, name, strings.Join(versions, "/"))
}

func checkVersions(versions []string) error {
	if len(versions) == 0 {
		return fmt.Errorf("%w: at least one version is required", errs.ErrDataSourceConfig)
	}
	return nil
}
