package decode

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeJSON unmarshals a json/jsonb cell into dest. Strict rejects fields
// present in the cell that dest has no matching member for; lenient
// ignores them, matching the source's two JSON decode modes.
func DecodeJSON(cell *string, dest any, strict bool) error {
	if cell == nil {
		return fmt.Errorf("decode: cannot decode a null cell as JSON")
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(*cell)))
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(dest); err != nil {
		return fmt.Errorf("decode: json: %w", err)
	}
	return nil
}

// EncodeJSON marshals v for use as a json/jsonb query parameter value.
func EncodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("decode: json: %w", err)
	}
	return string(b), nil
}
