// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package shape

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crucible-foundation/crucible/lib/plain"
)

// Encode converts a Go value to plain data, directed by the value's
// derived shape. The result is fully detached: mutating it never
// aliases the input.
func (index *Index) Encode(value any) (plain.Value, error) {
	if value == nil {
		return nil, fmt.Errorf("cannot encode untyped nil: %w", ErrTypeMismatch)
	}
	reflected := reflect.ValueOf(value)
	derived, err := index.Of(reflected.Type())
	if err != nil {
		return nil, err
	}
	index.mu.RLock()
	defer index.mu.RUnlock()
	return index.encodeValue(derived, reflected, 0)
}

// encodeValue walks one value under its shape. Lock held by the
// caller.
func (index *Index) encodeValue(s Shape, value reflect.Value, depth int) (plain.Value, error) {
	if depth > plain.MaxDepth {
		return nil, ErrTooDeep
	}
	switch typed := s.(type) {
	case Primitive:
		return encodePrimitive(typed.Kind, value)

	case List:
		if kind := value.Kind(); kind != reflect.Slice && kind != reflect.Array {
			return nil, mismatch("list", value.Type().String())
		}
		elements := make([]plain.Value, value.Len())
		for position := 0; position < value.Len(); position++ {
			element, err := index.encodeValue(typed.Elem, value.Index(position), depth+1)
			if err != nil {
				return nil, at(strconv.Itoa(position), err)
			}
			elements[position] = element
		}
		return elements, nil

	case StringMap:
		if value.Kind() != reflect.Map {
			return nil, mismatch("map", value.Type().String())
		}
		object := make(map[string]plain.Value, value.Len())
		iterator := value.MapRange()
		for iterator.Next() {
			key := iterator.Key().String()
			element, err := index.encodeValue(typed.Elem, iterator.Value(), depth+1)
			if err != nil {
				return nil, at(key, err)
			}
			object[key] = element
		}
		return object, nil

	case PairMap:
		return index.encodePairMap(typed, value, depth)

	case Union:
		return index.encodeUnion(typed, value, depth)

	case Literal:
		encoded, err := encodePrimitive(typed.Kind, value)
		if err != nil {
			return nil, err
		}
		if !literalAllows(typed, encoded) {
			return nil, fmt.Errorf("%v is not one of %s: %w",
				encoded, renderAllowed(typed.Allowed), ErrInvalidLiteral)
		}
		return encoded, nil

	case DurationShape:
		if value.Type() != durationType {
			return nil, mismatch("time.Duration", value.Type().String())
		}
		seconds := time.Duration(value.Int()).Seconds()
		return map[string]plain.Value{"sec": seconds}, nil

	case AnyPlain:
		data := value.Interface()
		if err := plain.Check(data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotPlain, err)
		}
		return plain.Clone(data), nil

	case Nullable:
		if value.Kind() != reflect.Pointer {
			return nil, mismatch("pointer", value.Type().String())
		}
		if value.IsNil() {
			return nil, nil
		}
		return index.encodeValue(typed.Elem, value.Elem(), depth+1)

	case *Composite:
		return index.encodeComposite(typed, value, depth)

	default:
		return nil, fmt.Errorf("unsupported shape %T", s)
	}
}

// encodePairMap emits a map with non-string keys as an array of
// [key, value] pairs, ordered by the canonical encoding of the keys
// so the same map always serializes identically.
func (index *Index) encodePairMap(pairMap PairMap, value reflect.Value, depth int) (plain.Value, error) {
	if value.Kind() != reflect.Map {
		return nil, mismatch("map", value.Type().String())
	}
	type keyedPair struct {
		canonical []byte
		pair      []plain.Value
	}
	pairs := make([]keyedPair, 0, value.Len())
	iterator := value.MapRange()
	for iterator.Next() {
		key, err := index.encodeValue(pairMap.Key, iterator.Key(), depth+1)
		if err != nil {
			return nil, at("key", err)
		}
		canonical, err := plain.Canonical(key)
		if err != nil {
			return nil, at("key", err)
		}
		element, err := index.encodeValue(pairMap.Value, iterator.Value(), depth+1)
		if err != nil {
			return nil, at(string(canonical), err)
		}
		pairs = append(pairs, keyedPair{canonical, []plain.Value{key, element}})
	}
	sort.Slice(pairs, func(left, right int) bool {
		return bytes.Compare(pairs[left].canonical, pairs[right].canonical) < 0
	})
	ordered := make([]plain.Value, len(pairs))
	for position, pair := range pairs {
		ordered[position] = pair.pair
	}
	return ordered, nil
}

// encodeUnion dispatches on the dynamic type behind an interface
// field and emits the [label, payload] wire form.
func (index *Index) encodeUnion(union Union, value reflect.Value, depth int) (plain.Value, error) {
	if value.Kind() == reflect.Interface {
		if value.IsNil() {
			return nil, fmt.Errorf("nil %s value: %w", union.Iface, ErrTypeMismatch)
		}
		value = value.Elem()
	}
	variant, registered := index.variantOf(union.Iface, value.Type())
	if !registered {
		return nil, fmt.Errorf("%s is not a registered variant of %s: %w",
			value.Type(), union.Iface, ErrNoMatchingVariant)
	}
	variantShape, derived := index.shapes[variant.Type]
	if !derived {
		return nil, fmt.Errorf("no derived shape for variant %s", variant.Type)
	}
	payload, err := index.encodeValue(variantShape, value, depth+1)
	if err != nil {
		return nil, at(variant.Label, err)
	}
	return []plain.Value{variant.Label, payload}, nil
}

func (index *Index) encodeComposite(composite *Composite, value reflect.Value, depth int) (plain.Value, error) {
	if composite.custom {
		encoder, err := asEncoder(value)
		if err != nil {
			return nil, err
		}
		data, err := encoder.EncodePlain()
		if err != nil {
			return nil, fmt.Errorf("%s.EncodePlain: %w", composite.Type, err)
		}
		if err := plain.Check(data); err != nil {
			return nil, fmt.Errorf("%s.EncodePlain: %w: %v", composite.Type, ErrNotPlain, err)
		}
		return data, nil
	}

	if value.Kind() != reflect.Struct {
		return nil, mismatch("struct", value.Type().String())
	}
	object := make(map[string]plain.Value, len(composite.Fields))
	for _, field := range composite.Fields {
		encoded, err := index.encodeValue(field.Shape, value.Field(field.Index), depth+1)
		if err != nil {
			return nil, at(field.Name, err)
		}
		object[field.Name] = encoded
	}
	return object, nil
}

// asEncoder extracts the EncodePlain implementation from a value,
// taking its address when the method set requires a pointer.
func asEncoder(value reflect.Value) (Encoder, error) {
	if encoder, direct := value.Interface().(Encoder); direct {
		return encoder, nil
	}
	pointer := reflect.New(value.Type())
	pointer.Elem().Set(value)
	encoder, viaPointer := pointer.Interface().(Encoder)
	if !viaPointer {
		return nil, fmt.Errorf("%s does not implement EncodePlain", value.Type())
	}
	return encoder, nil
}

func encodePrimitive(kind PrimitiveKind, value reflect.Value) (plain.Value, error) {
	switch kind {
	case Bool:
		if value.Kind() != reflect.Bool {
			return nil, mismatch("bool", value.Type().String())
		}
		return value.Bool(), nil
	case Int:
		switch value.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return value.Int(), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			unsigned := value.Uint()
			if unsigned > math.MaxInt64 {
				return nil, fmt.Errorf("%d overflows int64: %w", unsigned, ErrTypeMismatch)
			}
			return int64(unsigned), nil
		default:
			return nil, mismatch("int", value.Type().String())
		}
	case Float:
		switch value.Kind() {
		case reflect.Float32, reflect.Float64:
			f := value.Float()
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return nil, fmt.Errorf("non-finite float %v: %w", f, ErrNotPlain)
			}
			return f, nil
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return float64(value.Int()), nil
		default:
			return nil, mismatch("float", value.Type().String())
		}
	case String:
		if value.Kind() != reflect.String {
			return nil, mismatch("string", value.Type().String())
		}
		return value.String(), nil
	default:
		return nil, fmt.Errorf("unsupported primitive kind %v", kind)
	}
}

// literalAllows reports whether an encoded scalar is in the literal's
// allowed set.
func literalAllows(literal Literal, value plain.Value) bool {
	for _, allowed := range literal.Allowed {
		if plain.Equal(allowed, value) {
			return true
		}
	}
	return false
}

func renderAllowed(allowed []plain.Value) string {
	var builder strings.Builder
	for position, value := range allowed {
		if position > 0 {
			builder.WriteString("|")
		}
		fmt.Fprintf(&builder, "%v", value)
	}
	return builder.String()
}

// mismatch builds the standard expected/got error.
func mismatch(expected, got string) error {
	return fmt.Errorf("expected %s, got %s: %w", expected, got, ErrTypeMismatch)
}
