// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package shape

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/crucible-foundation/crucible/lib/plain"
)

// Shape describes how one position in a value tree is encoded. The
// set of implementations is closed; external packages consume shapes
// but do not define new ones.
type Shape interface {
	// String returns a compact human-readable description used in
	// error messages and CLI listings.
	String() string

	isShape()
}

// PrimitiveKind selects one of the four scalar shapes.
type PrimitiveKind uint8

const (
	Bool PrimitiveKind = iota + 1
	Int
	Float
	String
)

func (kind PrimitiveKind) String() string {
	switch kind {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Float:
		return "float"
	case String:
		return "string"
	default:
		return fmt.Sprintf("primitive(%d)", kind)
	}
}

// Primitive is a scalar shape. Encoding is 1:1 with the plain-data
// variants, except that integer values under a Float shape encode as
// floats (the shape decides, not the value).
type Primitive struct {
	Kind PrimitiveKind
}

// List is an ordered homogeneous sequence, encoded as an array.
type List struct {
	Elem Shape
}

// StringMap is a string-keyed map, encoded as an object. The key
// constraint is enforced at derivation time; maps with other key
// types derive as PairMap instead.
type StringMap struct {
	Elem Shape
}

// PairMap is a map with arbitrary keys, encoded as an array of
// two-element [key, value] arrays. Pairs are emitted sorted by the
// canonical bytes of the encoded key, since Go maps have no insertion
// order to preserve.
type PairMap struct {
	Key   Shape
	Value Shape
}

// Union is a tagged union over the concrete variants registered for
// an interface type, encoded as a two-element [label, payload] array.
// The variant table lives in the Index so that registration order
// between families and the types that reference them does not matter.
type Union struct {
	Iface reflect.Type
}

// Literal restricts a primitive to a finite set of allowed values,
// encoded as the value itself.
type Literal struct {
	Kind    PrimitiveKind
	Allowed []plain.Value
}

// DurationShape encodes a time.Duration as {"sec": <float seconds>}.
type DurationShape struct{}

// AnyPlain passes an already-plain value through unchanged, validated
// and deep-copied in both directions. It is the shape of fields
// declared as plain.Value.
type AnyPlain struct{}

// Nullable wraps the shape of a pointer field: nil encodes to null,
// null decodes to nil.
type Nullable struct {
	Elem Shape
}

// Composite is a named struct type with its own encode/decode, either
// derived from its fields or hand-written via Encoder/Decoder.
type Composite struct {
	// Type is the exact Go type the composite was derived from.
	Type reflect.Type

	// Fields is the derived field list, in declaration order. Empty
	// when the type provides a hand-written codec.
	Fields []Field

	// custom marks types implementing Encoder and Decoder.
	custom bool
}

// Field is one encodable field of a derived composite: the spec of
// one constructor parameter, in the original framing.
type Field struct {
	// Name is the wire key, from the `json` tag or the Go field name.
	Name string

	// Shape describes the field's value.
	Shape Shape

	// Index is the field's index within the struct.
	Index int

	// Description is inert metadata from the `desc` tag, surfaced by
	// CLI prompts and the dashboard.
	Description string

	// Choices is inert metadata from the `choices` tag: suggested
	// values for interactive construction. Unlike Literal, the codec
	// never enforces it.
	Choices []plain.Value

	// Default is the encoded default value from the `default` tag,
	// decoded fresh for each absent field so decoded values never
	// share backing storage. Valid only when HasDefault is true.
	Default plain.Value

	// HasDefault reports whether the field may be omitted on decode.
	HasDefault bool
}

// Custom reports whether the composite uses a hand-written codec.
func (composite *Composite) Custom() bool {
	return composite.custom
}

// FieldByName returns the field with the given wire name.
func (composite *Composite) FieldByName(name string) (Field, bool) {
	for _, field := range composite.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return Field{}, false
}

// Encoder is implemented by types that own their wire form instead of
// deriving it from struct fields. The returned value must be plain
// data; the round-trip validator checks this at registration.
type Encoder interface {
	EncodePlain() (plain.Value, error)
}

// Decoder is the inverse of Encoder, implemented on the pointer
// receiver so the value can be populated in place.
type Decoder interface {
	DecodePlain(data plain.Value) error
}

func (Primitive) isShape()     {}
func (List) isShape()          {}
func (StringMap) isShape()     {}
func (PairMap) isShape()       {}
func (Union) isShape()         {}
func (Literal) isShape()       {}
func (DurationShape) isShape() {}
func (AnyPlain) isShape()      {}
func (Nullable) isShape()      {}
func (*Composite) isShape()    {}

func (primitive Primitive) String() string { return primitive.Kind.String() }

func (list List) String() string { return "list<" + list.Elem.String() + ">" }

func (stringMap StringMap) String() string {
	return "map<string, " + stringMap.Elem.String() + ">"
}

func (pairMap PairMap) String() string {
	return "pairs<" + pairMap.Key.String() + ", " + pairMap.Value.String() + ">"
}

func (union Union) String() string { return "union<" + union.Iface.String() + ">" }

func (literal Literal) String() string {
	rendered := make([]string, len(literal.Allowed))
	for index, allowed := range literal.Allowed {
		rendered[index] = fmt.Sprintf("%v", allowed)
	}
	return "literal<" + strings.Join(rendered, "|") + ">"
}

func (DurationShape) String() string { return "duration" }

func (AnyPlain) String() string { return "plain" }

func (nullable Nullable) String() string { return "nullable<" + nullable.Elem.String() + ">" }

func (composite *Composite) String() string { return composite.Type.String() }
