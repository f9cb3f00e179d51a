package flow

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"gopkg.in/yaml.v3"
)

// Parse decodes a flow document. JSON is tried first; anything else is read as YAML.
func Parse(data []byte) (types.Flow, error) {
	var f types.Flow

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &f); err != nil {
			return f, fmt.Errorf("parse flow json: %w", err)
		}
		return f, nil
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return f, fmt.Errorf("parse flow yaml: %w", err)
	}

	// Node configs decode from the JSON wire shape, so go through it
	b, err := json.Marshal(doc)
	if err != nil {
		return f, fmt.Errorf("parse flow yaml: %w", err)
	}
	if err := json.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("parse flow yaml: %w", err)
	}
	return f, nil
}
