// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package shape

import (
	"errors"

	"github.com/crucible-foundation/crucible/lib/plain"
)

// Sentinel error kinds for the codec. Callers match them with
// errors.Is; the concrete errors wrap these with context and, on
// decode, a field-path breadcrumb (see PathError).
var (
	// ErrTypeMismatch reports a value whose runtime form disagrees
	// with the declared shape.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrAmbiguousUnion reports a union registration that would make
	// encode-side dispatch ambiguous (the same concrete type under
	// two labels).
	ErrAmbiguousUnion = errors.New("ambiguous union")

	// ErrNoMatchingVariant reports a union value whose dynamic type
	// was never registered as a variant.
	ErrNoMatchingVariant = errors.New("no matching union variant")

	// ErrInvalidLiteral reports a value outside a literal shape's
	// allowed set.
	ErrInvalidLiteral = errors.New("invalid literal value")

	// ErrMissingField reports a decode object lacking a required key.
	// Extra keys are ignored, never an error.
	ErrMissingField = errors.New("missing required field")

	// ErrTooDeep reports a tree deeper than plain.MaxDepth, which in
	// practice means a cycle or hostile input.
	ErrTooDeep = errors.New("maximum recursion depth exceeded")

	// ErrNotPlain reports a hand-written encoder that returned a
	// value outside the plain-data set.
	ErrNotPlain = errors.New("encoder produced non-plain value")

	// ErrRoundTrip reports a registration-time validation failure
	// where encode(decode(encode(v))) diverged from encode(v).
	ErrRoundTrip = errors.New("round-trip mismatch")
)

// PathError carries the field path leading to a codec failure, so a
// decode error reads like "params.2.x: expected int, got string".
type PathError struct {
	Path string
	Err  error
}

func (pathError *PathError) Error() string {
	return pathError.Path + ": " + pathError.Err.Error()
}

func (pathError *PathError) Unwrap() error {
	return pathError.Err
}

// at prefixes err's path with one segment, creating the PathError on
// the innermost failure and extending it as the recursion unwinds.
func at(segment string, err error) error {
	if err == nil {
		return nil
	}
	if pathError, ok := err.(*PathError); ok {
		return &PathError{Path: segment + "." + pathError.Path, Err: pathError.Err}
	}
	return &PathError{Path: segment, Err: err}
}

// describe names a plain-data variant for error messages.
func describe(data plain.Value) string {
	switch data.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case string:
		return "string"
	case []plain.Value:
		return "array"
	case map[string]plain.Value:
		return "object"
	default:
		return "non-plain value"
	}
}
