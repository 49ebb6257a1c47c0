// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package plain defines the closed value set that every encoded record
// is made of: nil, bool, int64, float64, string, []Value, and
// map[string]Value. Nothing else is ever written to the store, hashed
// into a fingerprint, or sent to a worker.
//
// The package provides validation ([Check]), structural equality
// ([Equal]), deep copying ([Clone]), a canonical key-sorted byte form
// for hashing ([Canonical]), and the JSON text conversion used by the
// store ([ToJSON], [FromJSON]).
package plain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Value is one node of the plain-data tree. The legal dynamic types
// are nil, bool, int64, float64, string, []Value, and
// map[string]Value; use Check to verify a tree built from unknown
// input. The alias keeps composite literals natural:
//
//	plain.Value(map[string]plain.Value{"x": int64(1)})
type Value = any

// MaxDepth bounds tree recursion in this package and in the shape
// codec built on top of it. Trees deeper than this fail validation
// rather than risking stack exhaustion on corrupted or hostile input.
const MaxDepth = 64

// Check verifies that every node reachable from value is a legal
// plain-data variant. Floats must be finite: NaN and infinities have
// no JSON representation. The returned error names the offending node
// by path.
func Check(value Value) error {
	return check(value, "$", 0)
}

// Valid reports whether value is a legal plain-data tree.
func Valid(value Value) bool {
	return Check(value) == nil
}

func check(value Value, path string, depth int) error {
	if depth > MaxDepth {
		return fmt.Errorf("%s: tree exceeds maximum depth %d", path, MaxDepth)
	}
	switch typed := value.(type) {
	case nil, bool, int64, string:
		return nil
	case float64:
		if math.IsNaN(typed) || math.IsInf(typed, 0) {
			return fmt.Errorf("%s: non-finite float %v", path, typed)
		}
		return nil
	case []Value:
		for index, element := range typed {
			if err := check(element, path+"."+strconv.Itoa(index), depth+1); err != nil {
				return err
			}
		}
		return nil
	case map[string]Value:
		for key, element := range typed {
			if err := check(element, path+"."+key, depth+1); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("%s: %T is not a plain value", path, value)
	}
}

// Equal reports structural equality of two plain-data trees. Variants
// never compare equal across kinds: int64(2) and float64(2) are
// distinct, matching the shape-directed encoding that always produces
// a consistent variant for a given declared shape.
func Equal(a, b Value) bool {
	switch typedA := a.(type) {
	case nil:
		return b == nil
	case bool:
		typedB, ok := b.(bool)
		return ok && typedA == typedB
	case int64:
		typedB, ok := b.(int64)
		return ok && typedA == typedB
	case float64:
		typedB, ok := b.(float64)
		return ok && typedA == typedB
	case string:
		typedB, ok := b.(string)
		return ok && typedA == typedB
	case []Value:
		typedB, ok := b.([]Value)
		if !ok || len(typedA) != len(typedB) {
			return false
		}
		for index := range typedA {
			if !Equal(typedA[index], typedB[index]) {
				return false
			}
		}
		return true
	case map[string]Value:
		typedB, ok := b.(map[string]Value)
		if !ok || len(typedA) != len(typedB) {
			return false
		}
		for key, elementA := range typedA {
			elementB, present := typedB[key]
			if !present || !Equal(elementA, elementB) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// Clone returns a deep copy of a plain-data tree. Scalars are shared
// (immutable); arrays and objects are copied recursively.
func Clone(value Value) Value {
	switch typed := value.(type) {
	case []Value:
		copied := make([]Value, len(typed))
		for index, element := range typed {
			copied[index] = Clone(element)
		}
		return copied
	case map[string]Value:
		copied := make(map[string]Value, len(typed))
		for key, element := range typed {
			copied[key] = Clone(element)
		}
		return copied
	default:
		return value
	}
}

// Diff returns a short human-readable description of the first
// difference between two trees, or "" when they are equal. Used by
// the round-trip validator to report what moved.
func Diff(a, b Value) string {
	return diff(a, b, "$")
}

func diff(a, b Value, path string) string {
	if Equal(a, b) {
		return ""
	}
	arrayA, okA := a.([]Value)
	arrayB, okB := b.([]Value)
	if okA && okB && len(arrayA) == len(arrayB) {
		for index := range arrayA {
			if d := diff(arrayA[index], arrayB[index], path+"."+strconv.Itoa(index)); d != "" {
				return d
			}
		}
	}
	objectA, okA := a.(map[string]Value)
	objectB, okB := b.(map[string]Value)
	if okA && okB {
		keys := make([]string, 0, len(objectA)+len(objectB))
		seen := make(map[string]bool, len(objectA))
		for key := range objectA {
			keys = append(keys, key)
			seen[key] = true
		}
		for key := range objectB {
			if !seen[key] {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)
		for _, key := range keys {
			elementA, presentA := objectA[key]
			elementB, presentB := objectB[key]
			switch {
			case !presentA:
				return fmt.Sprintf("%s.%s: only in second tree", path, key)
			case !presentB:
				return fmt.Sprintf("%s.%s: only in first tree", path, key)
			default:
				if d := diff(elementA, elementB, path+"."+key); d != "" {
					return d
				}
			}
		}
	}
	return fmt.Sprintf("%s: %s != %s", path, render(a), render(b))
}

func render(value Value) string {
	data, err := Canonical(value)
	if err != nil {
		return fmt.Sprintf("<%T>", value)
	}
	const limit = 80
	text := string(data)
	if len(text) > limit {
		text = text[:limit] + "..."
	}
	return text
}

// sortedKeys returns the keys of an object in lexicographic order.
func sortedKeys(object map[string]Value) []string {
	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
