// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package shape

import (
	"fmt"
	"reflect"

	"github.com/crucible-foundation/crucible/lib/plain"
)

// Check validates that a value survives a full round trip: encode,
// verify the result is legal plain data, decode it back, encode
// again, and require both encodings to match structurally. Types are
// checked once at registration so the codec's integrity never depends
// on runtime traffic exercising every branch.
func Check(index *Index, value any) error {
	if value == nil {
		return fmt.Errorf("cannot check untyped nil: %w", ErrTypeMismatch)
	}
	name := reflect.TypeOf(value).String()

	encoded, err := index.Encode(value)
	if err != nil {
		return fmt.Errorf("%s: encode: %w", name, err)
	}
	if err := plain.Check(encoded); err != nil {
		return fmt.Errorf("%s: %w: %v", name, ErrNotPlain, err)
	}

	decoded, err := index.Decode(reflect.TypeOf(value), encoded)
	if err != nil {
		return fmt.Errorf("%s: decode: %w", name, err)
	}
	reencoded, err := index.Encode(decoded)
	if err != nil {
		return fmt.Errorf("%s: re-encode: %w", name, err)
	}
	if !plain.Equal(encoded, reencoded) {
		return fmt.Errorf("%s: %w: %s", name, ErrRoundTrip, plain.Diff(encoded, reencoded))
	}
	return nil
}
