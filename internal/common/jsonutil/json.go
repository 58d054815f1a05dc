package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/deploymenttheory/go-flash-composer/internal/common/errors"
	"github.com/deploymenttheory/go-flash-composer/internal/common/fsutil"
)

// Decode unmarshals a JSON object, keeping numbers as json.Number so 64-bit
// integers survive intact
func Decode(data []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var result map[string]interface{}
	if err := dec.Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrUnsupportedFile, err.Error())
	}
	return result, nil
}

// ReadJSONFile reads a JSON file and unmarshals its contents into a map
func ReadJSONFile(path string) (map[string]interface{}, error) {
	if !fsutil.FileExists(path) {
		return nil, fmt.Errorf("%w: %s", errors.ErrFileNotFound, path)
	}

	data, err := fsutil.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrFileReadError, err.Error())
	}
	return Decode(data)
}

// WriteJSONFile writes a value to a JSON file with indentation
func WriteJSONFile(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %s", errors.ErrFileWriteError, err.Error())
	}
	jsonData = append(jsonData, '\n')

	if err := fsutil.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("%w: %s", errors.ErrFileWriteError, err.Error())
	}
	return nil
}

// GetValue retrieves a value from JSON using a dot-notation path
func GetValue(data map[string]interface{}, path string) (interface{}, bool) {
	keys := strings.Split(path, ".")
	current := data

	for i, key := range keys {
		if i == len(keys)-1 {
			val, ok := current[key]
			return val, ok
		}

		next, ok := current[key].(map[string]interface{})
		if !ok {
			return nil, false
		}
		current = next
	}
	return nil, false
}

// SetValue stores a value at the given key path, creating intermediate objects.
// It refuses to overwrite an existing value or to descend through a non-object.
func SetValue(data map[string]interface{}, keys []string, value interface{}) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: empty path", errors.ErrInvalidArgument)
	}
	current := data

	for i, key := range keys {
		if i == len(keys)-1 {
			if _, exists := current[key]; exists {
				return fmt.Errorf("%w: duplicate path %q", errors.ErrInvalidArgument, strings.Join(keys, "."))
			}
			current[key] = value
			return nil
		}

		existing, exists := current[key]
		if !exists {
			next := make(map[string]interface{})
			current[key] = next
			current = next
			continue
		}
		next, ok := existing.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%w: path %q collides with a value", errors.ErrInvalidArgument, strings.Join(keys[:i+1], "."))
		}
		current = next
	}
	return nil
}
