// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/family"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/shape"
)

// probeTask exercises every assignment form: required and defaulted
// scalars, a choices tag, a required duration, and a list.
type probeTask struct {
	Span    float64       `json:"span" desc:"search interval width"`
	Steps   int64         `json:"steps" default:"100"`
	Mode    string        `json:"mode" default:"fast" choices:"fast|exact"`
	Verbose bool          `json:"verbose" default:"false"`
	Budget  time.Duration `json:"budget"`
	Weights []float64     `json:"weights" default:"[1]"`
}

func (probeTask) IsTask() {}

type probeMethod struct {
	Seed int64 `json:"seed" default:"0"`
}

func (probeMethod) IsMethod() {}

func newFieldsSuite(t *testing.T) *bench.Suite {
	t.Helper()
	suite, err := bench.New("fields-bench", bench.Options{})
	if err != nil {
		t.Fatalf("bench.New: %v", err)
	}
	if err := suite.AddTask("probe", probeTask{}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := suite.AddMethod("probe-method", probeMethod{}); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	return suite
}

func TestParseFieldText(t *testing.T) {
	tests := []struct {
		name  string
		shape shape.Shape
		text  string
		want  plain.Value
	}{
		{"string verbatim", shape.Primitive{Kind: shape.String}, "plain text", "plain text"},
		{"int", shape.Primitive{Kind: shape.Int}, "42", int64(42)},
		{"negative int", shape.Primitive{Kind: shape.Int}, "-7", int64(-7)},
		{"float", shape.Primitive{Kind: shape.Float}, "1.5", 1.5},
		{"float from integer text", shape.Primitive{Kind: shape.Float}, "3", 3.0},
		{"bool", shape.Primitive{Kind: shape.Bool}, "true", true},
		{"literal by kind", shape.Literal{Kind: shape.String, Allowed: []plain.Value{"a", "b"}}, "a", "a"},
		{"duration", shape.DurationShape{}, "90s", map[string]plain.Value{"sec": 90.0}},
		{"duration minutes", shape.DurationShape{}, "2m", map[string]plain.Value{"sec": 120.0}},
		{"nullable null", shape.Nullable{Elem: shape.Primitive{Kind: shape.Float}}, "null", nil},
		{"nullable value", shape.Nullable{Elem: shape.Primitive{Kind: shape.Float}}, "2.5", 2.5},
		{"list takes JSON", shape.List{Elem: shape.Primitive{Kind: shape.Float}}, "[1.5, 2.5]", []plain.Value{1.5, 2.5}},
		{"map takes JSON", shape.StringMap{Elem: shape.Primitive{Kind: shape.Int}}, `{"a": 1}`, map[string]plain.Value{"a": int64(1)}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := parseFieldText(test.shape, test.text)
			if err != nil {
				t.Fatalf("parseFieldText(%v, %q): %v", test.shape, test.text, err)
			}
			if !plain.Equal(got, test.want) {
				t.Errorf("parseFieldText(%v, %q) = %v, want %v", test.shape, test.text, got, test.want)
			}
		})
	}
}

func TestParseFieldText_Errors(t *testing.T) {
	tests := []struct {
		name    string
		shape   shape.Shape
		text    string
		wantErr string
	}{
		{"bad int", shape.Primitive{Kind: shape.Int}, "abc", "not an integer"},
		{"bad float", shape.Primitive{Kind: shape.Float}, "fast", "not a number"},
		{"bad bool", shape.Primitive{Kind: shape.Bool}, "yes please", "not a bool"},
		{"bad duration", shape.DurationShape{}, "90", "not a duration"},
		{"bad JSON for list", shape.List{Elem: shape.Primitive{Kind: shape.Float}}, "1, 2", "JSON"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := parseFieldText(test.shape, test.text)
			if err == nil {
				t.Fatalf("parseFieldText(%v, %q) succeeded, want error", test.shape, test.text)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error %q does not mention %q", err, test.wantErr)
			}
		})
	}
}

func TestNewInstance(t *testing.T) {
	suite := newFieldsSuite(t)

	got, err := newInstance(suite.Index(), suite.Tasks(), "probe",
		[]string{"span=2.5", "steps=500", "mode=exact", "verbose=true", "budget=30s", "weights=[0.5, 0.5]"})
	if err != nil {
		t.Fatalf("newInstance: %v", err)
	}
	want := probeTask{
		Span:    2.5,
		Steps:   500,
		Mode:    "exact",
		Verbose: true,
		Budget:  30 * time.Second,
		Weights: []float64{0.5, 0.5},
	}
	if !reflect.DeepEqual(got, bench.Task(want)) {
		t.Errorf("newInstance = %#v, want %#v", got, want)
	}
}

func TestNewInstance_Defaults(t *testing.T) {
	suite := newFieldsSuite(t)

	got, err := newInstance(suite.Index(), suite.Tasks(), "probe",
		[]string{"span=1", "budget=1m"})
	if err != nil {
		t.Fatalf("newInstance: %v", err)
	}
	want := probeTask{
		Span:    1,
		Steps:   100,
		Mode:    "fast",
		Verbose: false,
		Budget:  time.Minute,
		Weights: []float64{1},
	}
	if !reflect.DeepEqual(got, bench.Task(want)) {
		t.Errorf("newInstance = %#v, want %#v", got, want)
	}
}

func TestNewInstance_Errors(t *testing.T) {
	suite := newFieldsSuite(t)

	tests := []struct {
		name        string
		kind        string
		assignments []string
		wantErr     string
	}{
		{"unknown kind", "cubic", nil, "unknown"},
		{"missing required", "probe", []string{"steps=10"}, "missing required fields: span, budget"},
		{"unknown field", "probe", []string{"span=1", "budget=1s", "granularity=9"}, `unknown field "granularity"`},
		{"no equals sign", "probe", []string{"span"}, "expected field=value"},
		{"empty name", "probe", []string{"=1"}, "expected field=value"},
		{"assigned twice", "probe", []string{"span=1", "span=2", "budget=1s"}, `field "span" assigned twice`},
		{"wrong value type", "probe", []string{"span=wide", "budget=1s"}, `field "span": "wide" is not a number`},
		{"choice violation", "probe", []string{"span=1", "budget=1s", "mode=slow"}, "not one of the choices: fast, exact"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := newInstance(suite.Index(), suite.Tasks(), test.kind, test.assignments)
			if err == nil {
				t.Fatalf("newInstance(%q, %v) succeeded, want error", test.kind, test.assignments)
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("error %q does not mention %q", err, test.wantErr)
			}
		})
	}
}

func TestNewInstance_UnknownKindIsSentinel(t *testing.T) {
	suite := newFieldsSuite(t)
	_, err := newInstance(suite.Index(), suite.Tasks(), "cubic", nil)
	if !errors.Is(err, family.ErrUnknownType) {
		t.Errorf("error %v, want family.ErrUnknownType", err)
	}
}
