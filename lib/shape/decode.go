// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package shape

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"

	"github.com/crucible-foundation/crucible/lib/plain"
)

// Decode converts plain data back into a value of type t, directed by
// the type's derived shape. Extra object keys in the data are ignored;
// missing keys fall back to field defaults or fail with
// ErrMissingField.
func (index *Index) Decode(t reflect.Type, data plain.Value) (any, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot decode into nil type")
	}
	derived, err := index.Of(t)
	if err != nil {
		return nil, err
	}
	out := reflect.New(t).Elem()
	index.mu.RLock()
	defer index.mu.RUnlock()
	if err := index.decodeValue(derived, data, out, 0); err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// DecodeAs is the typed convenience form of Decode.
func DecodeAs[T any](index *Index, data plain.Value) (T, error) {
	var zero T
	decoded, err := index.Decode(reflect.TypeFor[T](), data)
	if err != nil {
		return zero, err
	}
	return decoded.(T), nil
}

// decodeValue populates out, a settable value, from plain data under
// the given shape. Lock held by the caller.
func (index *Index) decodeValue(s Shape, data plain.Value, out reflect.Value, depth int) error {
	if depth > plain.MaxDepth {
		return ErrTooDeep
	}
	switch typed := s.(type) {
	case Primitive:
		return decodePrimitive(typed.Kind, data, out)

	case List:
		elements, isArray := data.([]plain.Value)
		if !isArray {
			return mismatch("array", describe(data))
		}
		switch out.Kind() {
		case reflect.Slice:
			slice := reflect.MakeSlice(out.Type(), len(elements), len(elements))
			for position, element := range elements {
				if err := index.decodeValue(typed.Elem, element, slice.Index(position), depth+1); err != nil {
					return at(strconv.Itoa(position), err)
				}
			}
			out.Set(slice)
			return nil
		case reflect.Array:
			if len(elements) != out.Len() {
				return fmt.Errorf("expected %d elements, got %d: %w",
					out.Len(), len(elements), ErrTypeMismatch)
			}
			for position, element := range elements {
				if err := index.decodeValue(typed.Elem, element, out.Index(position), depth+1); err != nil {
					return at(strconv.Itoa(position), err)
				}
			}
			return nil
		default:
			return mismatch("slice", out.Type().String())
		}

	case StringMap:
		object, isObject := data.(map[string]plain.Value)
		if !isObject {
			return mismatch("object", describe(data))
		}
		decoded := reflect.MakeMapWithSize(out.Type(), len(object))
		for key, element := range object {
			elementValue := reflect.New(out.Type().Elem()).Elem()
			if err := index.decodeValue(typed.Elem, element, elementValue, depth+1); err != nil {
				return at(key, err)
			}
			keyValue := reflect.New(out.Type().Key()).Elem()
			keyValue.SetString(key)
			decoded.SetMapIndex(keyValue, elementValue)
		}
		out.Set(decoded)
		return nil

	case PairMap:
		pairs, isArray := data.([]plain.Value)
		if !isArray {
			return mismatch("array of pairs", describe(data))
		}
		decoded := reflect.MakeMapWithSize(out.Type(), len(pairs))
		for position, element := range pairs {
			pair, isPair := element.([]plain.Value)
			if !isPair || len(pair) != 2 {
				return at(strconv.Itoa(position),
					mismatch("[key, value] pair", describe(element)))
			}
			keyValue := reflect.New(out.Type().Key()).Elem()
			if err := index.decodeValue(typed.Key, pair[0], keyValue, depth+1); err != nil {
				return at(strconv.Itoa(position), err)
			}
			elementValue := reflect.New(out.Type().Elem()).Elem()
			if err := index.decodeValue(typed.Value, pair[1], elementValue, depth+1); err != nil {
				return at(strconv.Itoa(position), err)
			}
			decoded.SetMapIndex(keyValue, elementValue)
		}
		out.Set(decoded)
		return nil

	case Union:
		return index.decodeUnion(typed, data, out, depth)

	case Literal:
		candidate := data
		if typed.Kind == Float {
			// Float fields accept whole ints; match the literal set
			// under the same widening.
			if whole, isInt := data.(int64); isInt {
				candidate = float64(whole)
			}
		}
		if !literalAllows(typed, candidate) {
			return fmt.Errorf("%v is not one of %s: %w",
				data, renderAllowed(typed.Allowed), ErrInvalidLiteral)
		}
		return decodePrimitive(typed.Kind, data, out)

	case DurationShape:
		object, isObject := data.(map[string]plain.Value)
		if !isObject {
			return mismatch("duration object", describe(data))
		}
		secData, present := object["sec"]
		if !present {
			return at("sec", ErrMissingField)
		}
		var seconds float64
		switch sec := secData.(type) {
		case int64:
			seconds = float64(sec)
		case float64:
			seconds = sec
		default:
			return at("sec", mismatch("number", describe(secData)))
		}
		if out.Type() != durationType {
			return mismatch("time.Duration", out.Type().String())
		}
		out.SetInt(int64(seconds * float64(time.Second)))
		return nil

	case AnyPlain:
		if err := plain.Check(data); err != nil {
			return fmt.Errorf("%w: %v", ErrNotPlain, err)
		}
		if data == nil {
			out.Set(reflect.Zero(out.Type()))
			return nil
		}
		out.Set(reflect.ValueOf(plain.Clone(data)))
		return nil

	case Nullable:
		if out.Kind() != reflect.Pointer {
			return mismatch("pointer", out.Type().String())
		}
		if data == nil {
			out.Set(reflect.Zero(out.Type()))
			return nil
		}
		pointer := reflect.New(out.Type().Elem())
		if err := index.decodeValue(typed.Elem, data, pointer.Elem(), depth+1); err != nil {
			return err
		}
		out.Set(pointer)
		return nil

	case *Composite:
		return index.decodeComposite(typed, data, out, depth)

	default:
		return fmt.Errorf("unsupported shape %T", s)
	}
}

// decodeUnion resolves the [label, payload] wire form back to a
// registered concrete type and assigns it to the interface slot.
func (index *Index) decodeUnion(union Union, data plain.Value, out reflect.Value, depth int) error {
	pair, isArray := data.([]plain.Value)
	if !isArray || len(pair) != 2 {
		return mismatch("[label, payload] pair", describe(data))
	}
	label, isString := pair[0].(string)
	if !isString {
		return mismatch("label string", describe(pair[0]))
	}
	variant, registered := index.variantByLabel(union.Iface, label)
	if !registered {
		return fmt.Errorf("unknown label %q for %s: %w",
			label, union.Iface, ErrNoMatchingVariant)
	}
	variantShape, derived := index.shapes[variant.Type]
	if !derived {
		return fmt.Errorf("no derived shape for variant %s", variant.Type)
	}
	slot := reflect.New(variant.Type).Elem()
	if err := index.decodeValue(variantShape, pair[1], slot, depth+1); err != nil {
		return at(label, err)
	}
	out.Set(slot)
	return nil
}

func (index *Index) decodeComposite(composite *Composite, data plain.Value, out reflect.Value, depth int) error {
	if composite.custom {
		pointer := reflect.New(composite.Type)
		decoder, implemented := pointer.Interface().(Decoder)
		if !implemented {
			return fmt.Errorf("%s does not implement DecodePlain", composite.Type)
		}
		if err := decoder.DecodePlain(data); err != nil {
			return fmt.Errorf("%s.DecodePlain: %w", composite.Type, err)
		}
		out.Set(pointer.Elem())
		return nil
	}

	object, isObject := data.(map[string]plain.Value)
	if !isObject {
		return mismatch("object", describe(data))
	}
	for _, field := range composite.Fields {
		fieldData, present := object[field.Name]
		if !present {
			if !field.HasDefault {
				return at(field.Name, ErrMissingField)
			}
			fieldData = field.Default
		}
		if err := index.decodeValue(field.Shape, fieldData, out.Field(field.Index), depth+1); err != nil {
			return at(field.Name, err)
		}
	}
	return nil
}

func decodePrimitive(kind PrimitiveKind, data plain.Value, out reflect.Value) error {
	switch kind {
	case Bool:
		parsed, isBool := data.(bool)
		if !isBool {
			return mismatch("bool", describe(data))
		}
		if out.Kind() != reflect.Bool {
			return mismatch("bool field", out.Type().String())
		}
		out.SetBool(parsed)
		return nil

	case Int:
		parsed, isInt := data.(int64)
		if !isInt {
			return mismatch("int", describe(data))
		}
		switch out.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if out.OverflowInt(parsed) {
				return fmt.Errorf("%d overflows %s: %w", parsed, out.Type(), ErrTypeMismatch)
			}
			out.SetInt(parsed)
			return nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if parsed < 0 || out.OverflowUint(uint64(parsed)) {
				return fmt.Errorf("%d overflows %s: %w", parsed, out.Type(), ErrTypeMismatch)
			}
			out.SetUint(uint64(parsed))
			return nil
		default:
			return mismatch("int field", out.Type().String())
		}

	case Float:
		var parsed float64
		switch number := data.(type) {
		case float64:
			parsed = number
		case int64:
			parsed = float64(number)
		default:
			return mismatch("float", describe(data))
		}
		if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return fmt.Errorf("non-finite float %v: %w", parsed, ErrNotPlain)
		}
		switch out.Kind() {
		case reflect.Float32, reflect.Float64:
			if out.OverflowFloat(parsed) {
				return fmt.Errorf("%v overflows %s: %w", parsed, out.Type(), ErrTypeMismatch)
			}
			out.SetFloat(parsed)
			return nil
		default:
			return mismatch("float field", out.Type().String())
		}

	case String:
		parsed, isString := data.(string)
		if !isString {
			return mismatch("string", describe(data))
		}
		if out.Kind() != reflect.String {
			return mismatch("string field", out.Type().String())
		}
		out.SetString(parsed)
		return nil

	default:
		return fmt.Errorf("unsupported primitive kind %v", kind)
	}
}
