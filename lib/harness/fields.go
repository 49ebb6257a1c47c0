// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/crucible-foundation/crucible/lib/family"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/shape"
)

// newInstance builds a registered value from command line field
// assignments: resolve the kind, parse each assignment against its
// field's shape, then decode through the registry so defaults fill in
// and validation matches every other construction path.
func newInstance[T any](index *shape.Index, registry *family.Registry[T], kind string, assignments []string) (T, error) {
	var zero T
	concrete, err := registry.Resolve(kind)
	if err != nil {
		return zero, err
	}
	derived, err := index.Of(concrete)
	if err != nil {
		return zero, err
	}
	composite, isComposite := derived.(*shape.Composite)
	if !isComposite {
		return zero, fmt.Errorf("kind %q does not derive a field list", kind)
	}
	if composite.Custom() && len(assignments) > 0 {
		return zero, fmt.Errorf("kind %q has a hand-written codec; construct it in a plan file with a full field object", kind)
	}

	object, err := parseAssignments(composite, assignments)
	if err != nil {
		return zero, err
	}
	if missing := missingRequired(composite, object); len(missing) > 0 {
		return zero, fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	return registry.Decode(kind, object)
}

// parseAssignments converts field=value arguments into the wire object
// the kind's composite decodes.
func parseAssignments(composite *shape.Composite, assignments []string) (map[string]plain.Value, error) {
	object := make(map[string]plain.Value, len(assignments))
	for _, assignment := range assignments {
		name, text, found := strings.Cut(assignment, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("expected field=value, got %q", assignment)
		}
		field, known := composite.FieldByName(name)
		if !known {
			return nil, fmt.Errorf("unknown field %q (fields: %s)", name, strings.Join(fieldNames(composite), ", "))
		}
		if _, duplicate := object[name]; duplicate {
			return nil, fmt.Errorf("field %q assigned twice", name)
		}
		value, err := parseFieldText(field.Shape, text)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		if err := checkChoices(field, value); err != nil {
			return nil, err
		}
		object[name] = value
	}
	return object, nil
}

// parseFieldText converts one command line value into the plain form
// the field's shape decodes. Scalars take the text verbatim, durations
// accept Go duration strings, and every structured shape takes JSON.
func parseFieldText(fieldShape shape.Shape, text string) (plain.Value, error) {
	switch typed := fieldShape.(type) {
	case shape.Primitive:
		return parsePrimitiveText(typed.Kind, text)
	case shape.Literal:
		return parsePrimitiveText(typed.Kind, text)
	case shape.DurationShape:
		duration, err := time.ParseDuration(text)
		if err != nil {
			return nil, fmt.Errorf("%q is not a duration (try 30s, 5m)", text)
		}
		return map[string]plain.Value{"sec": duration.Seconds()}, nil
	case shape.Nullable:
		if text == "null" {
			return nil, nil
		}
		return parseFieldText(typed.Elem, text)
	default:
		value, err := plain.FromJSON([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("shape %s takes a JSON value: %w", fieldShape, err)
		}
		return value, nil
	}
}

func parsePrimitiveText(kind shape.PrimitiveKind, text string) (plain.Value, error) {
	switch kind {
	case shape.Bool:
		value, err := strconv.ParseBool(text)
		if err != nil {
			return nil, fmt.Errorf("%q is not a bool", text)
		}
		return value, nil
	case shape.Int:
		value, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not an integer", text)
		}
		return value, nil
	case shape.Float:
		value, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", text)
		}
		return value, nil
	case shape.String:
		return text, nil
	default:
		return nil, fmt.Errorf("unsupported primitive kind %s", kind)
	}
}

// checkChoices enforces a field's choices tag. The codec treats
// choices as inert metadata; the command line is the interactive
// surface the suggestions exist for, so here they are binding.
func checkChoices(field shape.Field, value plain.Value) error {
	if len(field.Choices) == 0 {
		return nil
	}
	for _, choice := range field.Choices {
		if plain.Equal(choice, value) {
			return nil
		}
	}
	rendered := make([]string, len(field.Choices))
	for index, choice := range field.Choices {
		rendered[index] = fmt.Sprintf("%v", choice)
	}
	return fmt.Errorf("field %q: %v is not one of the choices: %s", field.Name, value, strings.Join(rendered, ", "))
}

// missingRequired lists fields that have no default and were not
// assigned. The decoder would reject these anyway; checking up front
// turns a decode error into a message naming every gap at once.
func missingRequired(composite *shape.Composite, object map[string]plain.Value) []string {
	var missing []string
	for _, field := range composite.Fields {
		if field.HasDefault {
			continue
		}
		if _, assigned := object[field.Name]; !assigned {
			missing = append(missing, field.Name)
		}
	}
	return missing
}

func fieldNames(composite *shape.Composite) []string {
	names := make([]string, len(composite.Fields))
	for index, field := range composite.Fields {
		names[index] = field.Name
	}
	return names
}
