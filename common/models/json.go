package models

import (
	"encoding/json"
	"fmt"
)

// NormalizeJSON round-trips v through its JSON encoding so every value
// held in step results uses JSON-native types (map[string]any, []any,
// float64, string, bool, nil). This is also the durability gate: a
// handler output that cannot be encoded is rejected here.
func NormalizeJSON(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("value is not JSON-encodable: %w", err)
	}

	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode normalized value: %w", err)
	}

	return out, nil
}
