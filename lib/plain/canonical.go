// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package plain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Canonical serializes a plain-data tree to its canonical byte form:
// JSON with object keys in lexicographic order and shortest-round-trip
// number formatting. Two structurally equal trees produce identical
// bytes regardless of map iteration order, which is what fingerprinting
// requires. The output is valid JSON but is never stored; the store
// writes ToJSON output and canonicalization happens only inside
// fingerprint computation.
func Canonical(value Value) ([]byte, error) {
	var buffer bytes.Buffer
	if err := writeCanonical(&buffer, value, 0); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func writeCanonical(buffer *bytes.Buffer, value Value, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("tree exceeds maximum depth %d", MaxDepth)
	}
	switch typed := value.(type) {
	case nil:
		buffer.WriteString("null")
	case bool:
		if typed {
			buffer.WriteString("true")
		} else {
			buffer.WriteString("false")
		}
	case int64:
		buffer.WriteString(strconv.FormatInt(typed, 10))
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return fmt.Errorf("non-finite float %v", typed)
		}
		buffer.Write(strconv.AppendFloat(nil, typed, 'g', -1, 64))
	case string:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return err
		}
		buffer.Write(encoded)
	case []Value:
		buffer.WriteByte('[')
		for index, element := range typed {
			if index > 0 {
				buffer.WriteByte(',')
			}
			if err := writeCanonical(buffer, element, depth+1); err != nil {
				return err
			}
		}
		buffer.WriteByte(']')
	case map[string]Value:
		buffer.WriteByte('{')
		for index, key := range sortedKeys(typed) {
			if index > 0 {
				buffer.WriteByte(',')
			}
			encodedKey, err := json.Marshal(key)
			if err != nil {
				return err
			}
			buffer.Write(encodedKey)
			buffer.WriteByte(':')
			if err := writeCanonical(buffer, typed[key], depth+1); err != nil {
				return err
			}
		}
		buffer.WriteByte('}')
	default:
		return fmt.Errorf("%T is not a plain value", value)
	}
	return nil
}
