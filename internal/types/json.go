package types

import (
	"encoding/json"
	"fmt"
)

// UnmarshalTolerant decodes a JSON column that may hold either the value
// itself or a doubly-encoded string containing the value. Legacy rows were
// written both ways; reads normalize them to one shape.
func UnmarshalTolerant(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	if data[0] == '"' {
		var inner string
		if err := json.Unmarshal(data, &inner); err != nil {
			return fmt.Errorf("unwrap string-encoded json: %w", err)
		}
		if inner == "" {
			return nil
		}
		data = []byte(inner)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode json column: %w", err)
	}
	return nil
}

// CardFromJSON parses a serialized FSRS card, tolerating both column shapes.
// Returns nil for empty or JSON-null input.
func CardFromJSON(data []byte) (*Card, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var c Card
	if err := UnmarshalTolerant(data, &c); err != nil {
		return nil, err
	}
	if c.State == "" && c.Stability == 0 && c.Due.IsZero() {
		return nil, nil
	}
	return &c, nil
}

// FormsFromJSON parses the lemma forms mapping, tolerating both shapes.
func FormsFromJSON(data []byte) (map[string]string, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var m map[string]string
	if err := UnmarshalTolerant(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// StringsFromJSON parses a JSON string list (grammar feature tags),
// tolerating both shapes.
func StringsFromJSON(data []byte) ([]string, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var out []string
	if err := UnmarshalTolerant(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
