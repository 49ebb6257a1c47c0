// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package plain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// ToJSON serializes a plain-data tree to UTF-8 JSON text. Object key
// order on the wire is whatever encoding/json produces (sorted for
// maps); consumers must not depend on it. The tree is validated first
// so that a foreign value smuggled into an object fails here rather
// than producing surprising JSON.
func ToJSON(value Value) ([]byte, error) {
	if err := Check(value); err != nil {
		return nil, err
	}
	return json.Marshal(value)
}

// ToJSONIndent is ToJSON with two-space indentation, for CLI output
// and the mounted filesystem view.
func ToJSONIndent(value Value) ([]byte, error) {
	if err := Check(value); err != nil {
		return nil, err
	}
	return json.MarshalIndent(value, "", "  ")
}

// FromJSON parses UTF-8 JSON text into a plain-data tree. Numbers
// without a fraction or exponent become int64; all others become
// float64. This keeps the int/float distinction that the shape codec
// relies on across a store round trip, since the codec always writes
// integers without a decimal point. Trailing non-whitespace content
// after the value is an error.
func FromJSON(data []byte) (Value, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if err := ensureEOF(decoder); err != nil {
		return nil, err
	}
	return normalize(raw, 0)
}

func ensureEOF(decoder *json.Decoder) error {
	if _, err := decoder.Token(); err != io.EOF {
		return fmt.Errorf("trailing content after JSON value")
	}
	return nil
}

// normalize converts the encoding/json generic representation
// (map[string]any, []any, json.Number) into the plain-data variants.
func normalize(raw any, depth int) (Value, error) {
	if depth > MaxDepth {
		return nil, fmt.Errorf("tree exceeds maximum depth %d", MaxDepth)
	}
	switch typed := raw.(type) {
	case nil, bool, string:
		return typed, nil
	case json.Number:
		text := typed.String()
		if !strings.ContainsAny(text, ".eE") {
			if integer, err := typed.Int64(); err == nil {
				return integer, nil
			}
		}
		float, err := typed.Float64()
		if err != nil {
			return nil, fmt.Errorf("number %q: %w", text, err)
		}
		return float, nil
	case []any:
		array := make([]Value, len(typed))
		for index, element := range typed {
			normalized, err := normalize(element, depth+1)
			if err != nil {
				return nil, err
			}
			array[index] = normalized
		}
		return array, nil
	case map[string]any:
		object := make(map[string]Value, len(typed))
		for key, element := range typed {
			normalized, err := normalize(element, depth+1)
			if err != nil {
				return nil, err
			}
			object[key] = normalized
		}
		return object, nil
	default:
		return nil, fmt.Errorf("unexpected JSON value of type %T", raw)
	}
}
