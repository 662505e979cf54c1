package fssource

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// promptField is the mapping key whose value is the prompt in structured files.
const promptField = "prompt"

// decode turns file bytes into prompt text according to the file extension.
// Structured files yield their "prompt" value, a bare string, or the whole
// document re-serialized. Everything else is plain text with surrounding
// whitespace trimmed.
func decode(path string, data []byte) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return "", fmt.Errorf("invalid JSON: %w", err)
		}
		return extract(v, marshalJSON)
	case ".yaml", ".yml":
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return "", fmt.Errorf("invalid YAML: %w", err)
		}
		return extract(v, marshalYAML)
	default:
		return strings.TrimSpace(string(data)), nil
	}
}

func extract(v any, marshal func(any) (string, error)) (string, error) {
	if m, ok := v.(map[string]any); ok {
		if p, ok := m[promptField]; ok {
			v = p
		}
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return marshal(v)
}

func marshalJSON(v any) (string, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshalYAML(v any) (string, error) {
	b, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
