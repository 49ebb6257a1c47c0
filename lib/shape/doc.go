// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package shape implements the type-directed codec between Go values
// and plain data (lib/plain). A Shape describes how to interpret one
// position in a value tree: primitive, list, map, tagged union,
// literal set, duration, nullable wrapper, or composite (a named
// struct type). Encoding and decoding dispatch on the declared shape,
// never on what the runtime value happens to look like, so a float
// field holding 2 encodes as 2.0-style JSON and an int field never
// silently accepts a string.
//
// Shapes are derived from struct definitions once, at registration
// time, and cached in an [Index] — the explicit context object that
// also tracks tagged-union variant tables. Derivation reads exported,
// non-embedded fields in declaration order. Field names come from the
// `json` tag (or the Go field name), defaults from the `default` tag
// (a JSON literal, decoded through the field's shape when the type is
// registered so a bad default fails early), allowed literal values
// from the `literal` tag (pipe-separated), and inert UI metadata from
// the `desc` and `choices` tags:
//
//	type Newton struct {
//		Start   float64 `json:"x_0" default:"0"`
//		Epsilon float64 `json:"eps" default:"0.01" desc:"finite-difference step"`
//		Mode    string  `json:"mode" default:"\"fast\"" literal:"fast|exact"`
//	}
//
// Types that need a wire form different from their field layout
// implement [Encoder] and [Decoder]; both or neither, never one.
//
// Pointer fields are nullable: a nil pointer encodes to null and null
// decodes to a nil pointer. A missing object key is a different thing
// from an explicit null — missing triggers the field default (or a
// missing-field error), null only ever decodes into a pointer.
//
// Interface-typed fields are tagged unions. The interface must be
// registered with the Index and its concrete variants added (normally
// through lib/family); values encode as a two-element [label, payload]
// array. Fields of type plain.Value pass through unchanged (validated
// both ways). Wall-clock types such as time.Time have no shape; store
// timestamps belong in store columns, not encoded payloads.
// time.Duration encodes as {"sec": <float seconds>}.
//
// All operations are pure tree walks without I/O, safe for concurrent
// use once registration is complete, and bounded at plain.MaxDepth
// levels of recursion.
package shape
