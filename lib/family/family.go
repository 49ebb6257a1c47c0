// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package family manages polymorphic type families: a set of concrete
// types registered under string labels behind one interface, so that
// values can be persisted with their label and reconstructed without
// the caller knowing the concrete type.
//
// A family's variant table lives in the backing shape.Index, which is
// also what resolves interface-typed struct fields during encoding.
// Registering a type here is therefore enough to make it decodable
// both standalone (label and payload stored separately, as the store
// does) and embedded in a larger value (the [label, payload] wire
// form).
package family

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/shape"
)

// ErrUnknownType reports a label or concrete type with no
// registration in the family.
var ErrUnknownType = errors.New("unknown type")

// Registry is one polymorphic family rooted at the interface T.
type Registry[T any] struct {
	index *shape.Index
	iface reflect.Type
	name  string
}

// New creates a registry for interface T and declares the union in
// the index. The name appears in error messages and listings.
func New[T any](index *shape.Index, name string) (*Registry[T], error) {
	iface := reflect.TypeFor[T]()
	if err := index.RegisterUnion(iface); err != nil {
		return nil, fmt.Errorf("family %s: %w", name, err)
	}
	return &Registry[T]{index: index, iface: iface, name: name}, nil
}

// Name returns the family's display name.
func (registry *Registry[T]) Name() string {
	return registry.name
}

// Add registers probe's concrete type under a label. The type's shape
// is derived and the probe is round-trip checked before the variant
// is committed, so a type with a broken codec never enters the
// family.
func (registry *Registry[T]) Add(label string, probe T) error {
	concrete := reflect.TypeOf(probe)
	if concrete == nil {
		return fmt.Errorf("family %s: cannot register nil as %q", registry.name, label)
	}
	if _, err := registry.index.Of(concrete); err != nil {
		return fmt.Errorf("family %s: %q: %w", registry.name, label, err)
	}
	if err := shape.Check(registry.index, probe); err != nil {
		return fmt.Errorf("family %s: %q: %w", registry.name, label, err)
	}
	if err := registry.index.AddVariant(registry.iface, label, concrete); err != nil {
		return fmt.Errorf("family %s: %w", registry.name, err)
	}
	return nil
}

// Labels returns the registered labels in registration order.
func (registry *Registry[T]) Labels() []string {
	variants := registry.index.Variants(registry.iface)
	labels := make([]string, len(variants))
	for position, variant := range variants {
		labels[position] = variant.Label
	}
	return labels
}

// Resolve returns the concrete type registered under a label.
func (registry *Registry[T]) Resolve(label string) (reflect.Type, error) {
	for _, variant := range registry.index.Variants(registry.iface) {
		if variant.Label == label {
			return variant.Type, nil
		}
	}
	return nil, fmt.Errorf("family %s: label %q: %w", registry.name, label, ErrUnknownType)
}

// LabelOf returns the label under which a value's dynamic type was
// registered.
func (registry *Registry[T]) LabelOf(value T) (string, error) {
	concrete := reflect.TypeOf(value)
	if concrete == nil {
		return "", fmt.Errorf("family %s: nil value: %w", registry.name, ErrUnknownType)
	}
	for _, variant := range registry.index.Variants(registry.iface) {
		if variant.Type == concrete {
			return variant.Label, nil
		}
	}
	return "", fmt.Errorf("family %s: %s: %w", registry.name, concrete, ErrUnknownType)
}

// Encode returns a value's label and its bare encoded payload. There
// is no [label, payload] wrapper at this level: callers that persist
// values keep the label in its own column and pair the two back up in
// Decode.
func (registry *Registry[T]) Encode(value T) (string, plain.Value, error) {
	label, err := registry.LabelOf(value)
	if err != nil {
		return "", nil, err
	}
	payload, err := registry.index.Encode(value)
	if err != nil {
		return "", nil, fmt.Errorf("family %s: %q: %w", registry.name, label, err)
	}
	return label, payload, nil
}

// Decode reconstructs a value from its label and bare payload.
func (registry *Registry[T]) Decode(label string, payload plain.Value) (T, error) {
	var zero T
	concrete, err := registry.Resolve(label)
	if err != nil {
		return zero, err
	}
	decoded, err := registry.index.Decode(concrete, payload)
	if err != nil {
		return zero, fmt.Errorf("family %s: %q: %w", registry.name, label, err)
	}
	value, implements := decoded.(T)
	if !implements {
		return zero, fmt.Errorf("family %s: %q decoded to %T, which does not implement the family interface",
			registry.name, label, decoded)
	}
	return value, nil
}
