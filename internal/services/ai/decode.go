package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/benvon/finance-advisor/internal/validation"
)

// DecodeJSON decodes a model answer into T and validates it with the shared validator.
// Models sometimes wrap JSON in prose or code fences, so when the answer does not parse
// as-is the span from the first '{' to the last '}' is tried once. Unknown fields are
// ignored; required fields and value ranges are enforced by validate tags. Every failure
// wraps ErrInvalidOutput.
func DecodeJSON[T any](content string) (*T, error) {
	raw := strings.TrimSpace(content)
	out, err := decodeStrict[T](raw)
	if err != nil {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start == -1 || end <= start {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
		}
		out, err = decodeStrict[T](raw[start : end+1])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
		}
	}

	if err := validation.Validate.Struct(out); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOutput, validation.Describe(err))
	}
	return out, nil
}

func decodeStrict[T any](raw string) (*T, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	out := new(T)
	if err := dec.Decode(out); err != nil {
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("failed to parse model response: trailing data")
	}
	return out, nil
}
