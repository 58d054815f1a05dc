package datasource

import (
	"fmt"
	"strings"

	errs "github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/common/jsonutil"
	"github.com/deploymenttheory/go-flash-composer/internal/logger"
)

// NewJSON loads a document shaped { "Version": { "name": value, ... }, ... }.
// input ending in .json is read from disk, anything else is parsed inline.
// Every requested version must be present.
func NewJSON(input string, versions []string) (*Source, error) {
	if err := checkVersions(versions); err != nil {
		return nil, err
	}

	var (
		doc map[string]interface{}
		err error
	)
	if strings.HasSuffix(strings.ToLower(input), ".json") {
		doc, err = jsonutil.ReadJSONFile(input)
	} else {
		doc, err = jsonutil.Decode([]byte(input))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrDataSourceConfig, err)
	}

	tables := make(map[string]map[string]interface{}, len(versions))
	for _, ver := range versions {
		raw, ok := doc[ver]
		if !ok {
			return nil, fmt.Errorf("%w: version %q not found in JSON data", errs.ErrRetrievalFailed, ver)
		}
		t, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%w: version %q must be an object", errs.ErrRetrievalFailed, ver)
		}
		tables[ver] = t
	}

	logger.LogDebug("JSON data source loaded", map[string]interface{}{
		"versions": strings.Join(versions, "/"),
	})
	return &Source{kind: "json", tables: tables}, nil
}
