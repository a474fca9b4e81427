package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPISource []byte

// openAPIDocument returns the embedded OpenAPI YAML as indented JSON. The
// conversion runs once.
var openAPIDocument = sync.OnceValues(func() ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(openAPISource, &doc); err != nil {
		return nil, fmt.Errorf("parsing openapi.yaml: %w", err)
	}
	return json.MarshalIndent(stringKeys(doc), "", "  ")
})

// stringKeys converts the map[any]any values yaml.v3 produces for
// non-string keys (response codes such as 200) into map[string]any.
func stringKeys(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, val := range v {
			v[k] = stringKeys(val)
		}
		return v
	case map[any]any:
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = stringKeys(val)
		}
		return out
	case []any:
		for i, val := range v {
			v[i] = stringKeys(val)
		}
		return v
	}
	return v
}
