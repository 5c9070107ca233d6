package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// decodeConfig parses a YAML or JSON config file. YAML documents are
// rewritten to JSON first so both formats share one strict decoder: a
// misspelled key is rejected instead of silently ignored, which matters for
// fields like auto_delete_on_failure where a typo flips publish-failure
// retention.
func decodeConfig(path string, data []byte) (*Config, error) {
	jb := data
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		b, err := json.Marshal(stringifyKeys(doc))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		jb = b
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("parse %s: trailing data after config document", path)
		}
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// stringifyKeys rewrites YAML mapping keys to strings so the document
// survives encoding/json, which refuses non-string map keys.
func stringifyKeys(v any) any {
	switch node := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(node))
		for k, val := range node {
			out[fmt.Sprint(k)] = stringifyKeys(val)
		}
		return out
	case map[string]any:
		for k, val := range node {
			node[k] = stringifyKeys(val)
		}
		return node
	case []any:
		for i, val := range node {
			node[i] = stringifyKeys(val)
		}
		return node
	default:
		return v
	}
}
