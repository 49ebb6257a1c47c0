// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package shape

import (
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/crucible-foundation/crucible/lib/plain"
)

var (
	durationType = reflect.TypeFor[time.Duration]()
	anyType      = reflect.TypeFor[plain.Value]()
	encoderType  = reflect.TypeFor[Encoder]()
	decoderType  = reflect.TypeFor[Decoder]()
)

// Index derives and caches shapes and owns the tagged-union variant
// tables. It is the explicit context threaded through encode, decode,
// and validation — there is no package-level registry. Derivation and
// variant registration happen during single-threaded startup; the
// encode/decode traffic that follows takes only read locks.
type Index struct {
	logger *slog.Logger

	mu     sync.RWMutex
	shapes map[reflect.Type]Shape
	unions map[reflect.Type]*unionTable
}

type unionTable struct {
	variants []Variant
	byLabel  map[string]int
	byType   map[reflect.Type]int
}

// Variant is one registered member of a tagged union: the label that
// appears on the wire and the exact Go type it decodes into.
type Variant struct {
	Label string
	Type  reflect.Type
}

// NewIndex returns an empty index. Derivation warnings (a field type
// with no shape mapping) go through logger; nil discards them.
func NewIndex(logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Index{
		logger: logger,
		shapes: make(map[reflect.Type]Shape),
		unions: make(map[reflect.Type]*unionTable),
	}
}

// RegisterUnion declares iface as a tagged-union family. Fields of
// this interface type derive as Union shapes from then on. Variants
// are added with AddVariant.
func (index *Index) RegisterUnion(iface reflect.Type) error {
	if iface == nil || iface.Kind() != reflect.Interface {
		return fmt.Errorf("union type must be an interface, got %v", iface)
	}
	if iface.NumMethod() == 0 {
		return fmt.Errorf("union type %s has no methods; fields of type any are plain passthrough, not unions", iface)
	}
	index.mu.Lock()
	defer index.mu.Unlock()
	if _, exists := index.unions[iface]; exists {
		return fmt.Errorf("union %s already registered", iface)
	}
	index.unions[iface] = &unionTable{
		byLabel: make(map[string]int),
		byType:  make(map[reflect.Type]int),
	}
	return nil
}

// AddVariant registers a concrete type under a label within a union
// family, deriving the concrete type's shape in the process. Labels
// and concrete types are both unique within one family: a duplicate
// label is a plain registration error, while a duplicate type would
// make encode-side dispatch ambiguous and fails with ErrAmbiguousUnion.
func (index *Index) AddVariant(iface reflect.Type, label string, concrete reflect.Type) error {
	if label == "" {
		return fmt.Errorf("variant label must not be empty")
	}
	index.mu.Lock()
	defer index.mu.Unlock()

	table, exists := index.unions[iface]
	if !exists {
		return fmt.Errorf("union %s not registered", iface)
	}
	if !concrete.Implements(iface) {
		return fmt.Errorf("%s does not implement %s", concrete, iface)
	}
	if existing, taken := table.byLabel[label]; taken {
		return fmt.Errorf("label %q already registered in %s as %s",
			label, iface, table.variants[existing].Type)
	}
	if existing, taken := table.byType[concrete]; taken {
		return fmt.Errorf("%s already registered in %s as %q: %w",
			concrete, iface, table.variants[existing].Label, ErrAmbiguousUnion)
	}

	transaction := make(map[reflect.Type]Shape)
	if _, err := index.derive(concrete, transaction); err != nil {
		return fmt.Errorf("deriving shape for %s: %w", concrete, err)
	}
	maps.Copy(index.shapes, transaction)

	table.byLabel[label] = len(table.variants)
	table.byType[concrete] = len(table.variants)
	table.variants = append(table.variants, Variant{Label: label, Type: concrete})
	return nil
}

// Variants returns a copy of the registration-ordered variant list
// for a union family.
func (index *Index) Variants(iface reflect.Type) []Variant {
	index.mu.RLock()
	defer index.mu.RUnlock()
	table, exists := index.unions[iface]
	if !exists {
		return nil
	}
	variants := make([]Variant, len(table.variants))
	copy(variants, table.variants)
	return variants
}

// variantByLabel resolves a wire label. Callers hold at least a read
// lock.
func (index *Index) variantByLabel(iface reflect.Type, label string) (Variant, bool) {
	table, exists := index.unions[iface]
	if !exists {
		return Variant{}, false
	}
	position, found := table.byLabel[label]
	if !found {
		return Variant{}, false
	}
	return table.variants[position], true
}

// variantOf resolves a dynamic type. Callers hold at least a read
// lock.
func (index *Index) variantOf(iface reflect.Type, concrete reflect.Type) (Variant, bool) {
	table, exists := index.unions[iface]
	if !exists {
		return Variant{}, false
	}
	position, found := table.byType[concrete]
	if !found {
		return Variant{}, false
	}
	return table.variants[position], true
}

// Of returns the shape for a Go type, deriving and caching it on
// first use. Derivation is transactional: a failure partway through a
// nested type leaves the cache untouched.
func (index *Index) Of(t reflect.Type) (Shape, error) {
	index.mu.Lock()
	defer index.mu.Unlock()

	transaction := make(map[reflect.Type]Shape)
	derived, err := index.derive(t, transaction)
	if err != nil {
		return nil, err
	}
	maps.Copy(index.shapes, transaction)
	return derived, nil
}

// derive resolves a type to a shape, recording new composites in the
// transaction map. Lock held by the caller.
func (index *Index) derive(t reflect.Type, transaction map[reflect.Type]Shape) (Shape, error) {
	if cached, hit := index.shapes[t]; hit {
		return cached, nil
	}
	if pending, hit := transaction[t]; hit {
		return pending, nil
	}

	switch t {
	case durationType:
		return DurationShape{}, nil
	case anyType:
		return AnyPlain{}, nil
	}

	if t.Kind() == reflect.Pointer {
		elem, err := index.derive(t.Elem(), transaction)
		if err != nil {
			return nil, err
		}
		return Nullable{Elem: elem}, nil
	}

	custom, err := hasCustomCodec(t)
	if err != nil {
		return nil, err
	}
	if custom {
		composite := &Composite{Type: t, custom: true}
		transaction[t] = composite
		return composite, nil
	}

	switch t.Kind() {
	case reflect.Bool:
		return Primitive{Kind: Bool}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Primitive{Kind: Int}, nil
	case reflect.Float32, reflect.Float64:
		return Primitive{Kind: Float}, nil
	case reflect.String:
		return Primitive{Kind: String}, nil
	case reflect.Slice, reflect.Array:
		elem, err := index.derive(t.Elem(), transaction)
		if err != nil {
			return nil, err
		}
		return List{Elem: elem}, nil
	case reflect.Map:
		elem, err := index.derive(t.Elem(), transaction)
		if err != nil {
			return nil, err
		}
		if t.Key().Kind() == reflect.String {
			return StringMap{Elem: elem}, nil
		}
		key, err := index.derive(t.Key(), transaction)
		if err != nil {
			return nil, err
		}
		return PairMap{Key: key, Value: elem}, nil
	case reflect.Interface:
		if _, registered := index.unions[t]; registered {
			return Union{Iface: t}, nil
		}
		index.logger.Warn("interface type has no registered union; treating as string",
			"type", t.String())
		return Primitive{Kind: String}, nil
	case reflect.Struct:
		return index.deriveStruct(t, transaction)
	default:
		index.logger.Warn("field type has no shape mapping; treating as string",
			"type", t.String(), "kind", t.Kind().String())
		return Primitive{Kind: String}, nil
	}
}

// deriveStruct builds the field list for a composite. The placeholder
// is pinned in the transaction before fields derive so self-referential
// types (via pointers or slices) terminate.
func (index *Index) deriveStruct(t reflect.Type, transaction map[reflect.Type]Shape) (Shape, error) {
	composite := &Composite{Type: t}
	transaction[t] = composite

	names := make(map[string]bool)
	for position := 0; position < t.NumField(); position++ {
		structField := t.Field(position)
		if structField.Anonymous {
			return nil, fmt.Errorf("%s: embedded field %s cannot be name-addressed",
				t, structField.Name)
		}
		if !structField.IsExported() {
			continue
		}

		name := structField.Name
		if tag, tagged := structField.Tag.Lookup("json"); tagged {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		if names[name] {
			return nil, fmt.Errorf("%s: duplicate field name %q", t, name)
		}
		names[name] = true

		fieldShape, err := index.derive(structField.Type, transaction)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", t, structField.Name, err)
		}

		if literalTag, tagged := structField.Tag.Lookup("literal"); tagged {
			primitive, isPrimitive := fieldShape.(Primitive)
			if !isPrimitive {
				return nil, fmt.Errorf("%s.%s: literal tag requires a primitive field, shape is %s",
					t, structField.Name, fieldShape)
			}
			allowed, err := parseValueList(literalTag, primitive.Kind)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: literal tag: %w", t, structField.Name, err)
			}
			fieldShape = Literal{Kind: primitive.Kind, Allowed: allowed}
		}

		field := Field{
			Name:        name,
			Shape:       fieldShape,
			Index:       position,
			Description: structField.Tag.Get("desc"),
		}

		if choicesTag, tagged := structField.Tag.Lookup("choices"); tagged {
			kind, hasKind := primitiveKindOf(fieldShape)
			if !hasKind {
				return nil, fmt.Errorf("%s.%s: choices tag requires a primitive field, shape is %s",
					t, structField.Name, fieldShape)
			}
			choices, err := parseValueList(choicesTag, kind)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: choices tag: %w", t, structField.Name, err)
			}
			field.Choices = choices
		}

		if defaultTag, tagged := structField.Tag.Lookup("default"); tagged {
			defaultValue, err := parseDefaultTag(defaultTag, fieldShape)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", t, structField.Name, err)
			}
			// Decode once against the field's shape so a bad default
			// fails registration rather than a later decode.
			probe := reflect.New(structField.Type).Elem()
			if err := index.decodeValue(fieldShape, defaultValue, probe, 0); err != nil {
				return nil, fmt.Errorf("%s.%s: default %q does not decode: %w",
					t, structField.Name, defaultTag, err)
			}
			field.Default = defaultValue
			field.HasDefault = true
		}

		composite.Fields = append(composite.Fields, field)
	}
	return composite, nil
}

// hasCustomCodec reports whether t provides hand-written Encoder and
// Decoder implementations. Implementing only one of the pair is an
// error: an asymmetric codec cannot round-trip.
func hasCustomCodec(t reflect.Type) (bool, error) {
	pointer := reflect.PointerTo(t)
	hasEncoder := t.Implements(encoderType) || pointer.Implements(encoderType)
	hasDecoder := pointer.Implements(decoderType)
	if hasEncoder != hasDecoder {
		if hasEncoder {
			return false, fmt.Errorf("%s implements EncodePlain but not DecodePlain", t)
		}
		return false, fmt.Errorf("%s implements DecodePlain but not EncodePlain", t)
	}
	return hasEncoder, nil
}

// parseValueList parses a pipe-separated tag value ("a|b|c", "1|2")
// into plain values of the given primitive kind.
func parseValueList(tag string, kind PrimitiveKind) ([]plain.Value, error) {
	parts := strings.Split(tag, "|")
	values := make([]plain.Value, 0, len(parts))
	for _, part := range parts {
		switch kind {
		case Bool:
			parsed, err := strconv.ParseBool(part)
			if err != nil {
				return nil, fmt.Errorf("%q is not a bool", part)
			}
			values = append(values, parsed)
		case Int:
			parsed, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not an int", part)
			}
			values = append(values, parsed)
		case Float:
			parsed, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a float", part)
			}
			values = append(values, parsed)
		case String:
			values = append(values, part)
		default:
			return nil, fmt.Errorf("unsupported primitive kind %v", kind)
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("empty value list")
	}
	return values, nil
}

// parseDefaultTag parses a default tag as a JSON literal. As a
// convenience for the common case, an unquoted value on a string
// field is taken as the string itself.
func parseDefaultTag(tag string, fieldShape Shape) (plain.Value, error) {
	value, err := plain.FromJSON([]byte(tag))
	if err != nil {
		if kind, hasKind := primitiveKindOf(fieldShape); hasKind && kind == String {
			return tag, nil
		}
		return nil, fmt.Errorf("default %q is not valid JSON: %w", tag, err)
	}
	return value, nil
}

// primitiveKindOf extracts the scalar kind of a primitive or literal
// shape.
func primitiveKindOf(s Shape) (PrimitiveKind, bool) {
	switch typed := s.(type) {
	case Primitive:
		return typed.Kind, true
	case Literal:
		return typed.Kind, true
	default:
		return 0, false
	}
}
