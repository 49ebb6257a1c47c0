// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package shape_test

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/shape"
)

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type settings struct {
	Name    string         `json:"name" desc:"display name"`
	Retries int            `json:"retries" default:"3"`
	Ratio   float64        `json:"ratio" default:"0.5"`
	Mode    string         `json:"mode" default:"fast" literal:"fast|exact"`
	Level   string         `json:"level" choices:"low|high"`
	Tags    []string       `json:"tags"`
	Timeout time.Duration  `json:"timeout"`
	Note    *string        `json:"note"`
	Payload plain.Value    `json:"payload"`
	Counts  map[string]int `json:"counts"`
	hidden  int
	Skipped string `json:"-"`
}

type node struct {
	Label    string  `json:"label"`
	Children []*node `json:"children"`
}

type signal interface{ signal() }

type ping struct {
	Count int `json:"count"`
}

type quit struct {
	Reason string `json:"reason"`
}

type stray struct{}

func (ping) signal()  {}
func (*quit) signal() {}
func (stray) signal() {}

type envelope struct {
	Signal signal `json:"signal"`
}

type opaque struct {
	raw plain.Value
}

func (o opaque) EncodePlain() (plain.Value, error) {
	return plain.Clone(o.raw), nil
}

func (o *opaque) DecodePlain(data plain.Value) error {
	o.raw = plain.Clone(data)
	return nil
}

type halfway struct{}

func (halfway) EncodePlain() (plain.Value, error) { return nil, nil }

func newTestIndex(t *testing.T) *shape.Index {
	t.Helper()
	index := shape.NewIndex(nil)
	signalType := reflect.TypeFor[signal]()
	if err := index.RegisterUnion(signalType); err != nil {
		t.Fatalf("RegisterUnion: %v", err)
	}
	if err := index.AddVariant(signalType, "ping", reflect.TypeFor[ping]()); err != nil {
		t.Fatalf("AddVariant ping: %v", err)
	}
	if err := index.AddVariant(signalType, "quit", reflect.TypeFor[*quit]()); err != nil {
		t.Fatalf("AddVariant quit: %v", err)
	}
	return index
}

func TestDeriveStructFields(t *testing.T) {
	index := newTestIndex(t)
	derived, err := index.Of(reflect.TypeFor[settings]())
	if err != nil {
		t.Fatalf("Of(settings): %v", err)
	}
	composite, ok := derived.(*shape.Composite)
	if !ok {
		t.Fatalf("Of(settings) = %T, want *Composite", derived)
	}
	if composite.Custom() {
		t.Fatal("settings should not be a custom codec")
	}

	wantShapes := map[string]string{
		"name":    "string",
		"retries": "int",
		"ratio":   "float",
		"mode":    "literal<fast|exact>",
		"level":   "string",
		"tags":    "list<string>",
		"timeout": "duration",
		"note":    "nullable<string>",
		"payload": "plain",
		"counts":  "map<string, int>",
	}
	if got, want := len(composite.Fields), len(wantShapes); got != want {
		t.Fatalf("field count = %d, want %d", got, want)
	}
	for name, want := range wantShapes {
		field, found := composite.FieldByName(name)
		if !found {
			t.Errorf("field %q missing", name)
			continue
		}
		if got := field.Shape.String(); got != want {
			t.Errorf("field %q shape = %q, want %q", name, got, want)
		}
	}

	if _, found := composite.FieldByName("Skipped"); found {
		t.Error(`json:"-" field was not skipped`)
	}
	if _, found := composite.FieldByName("hidden"); found {
		t.Error("unexported field was not skipped")
	}

	name, _ := composite.FieldByName("name")
	if got, want := name.Description, "display name"; got != want {
		t.Errorf("desc = %q, want %q", got, want)
	}
	level, _ := composite.FieldByName("level")
	if got, want := len(level.Choices), 2; got != want {
		t.Fatalf("choices count = %d, want %d", got, want)
	}
	if got, want := level.Choices[0], plain.Value("low"); !plain.Equal(got, want) {
		t.Errorf("choices[0] = %v, want %v", got, want)
	}

	retries, _ := composite.FieldByName("retries")
	if !retries.HasDefault {
		t.Fatal("retries should have a default")
	}
	if got, want := retries.Default, plain.Value(int64(3)); !plain.Equal(got, want) {
		t.Errorf("retries default = %v, want %v", got, want)
	}
	mode, _ := composite.FieldByName("mode")
	if got, want := mode.Default, plain.Value("fast"); !plain.Equal(got, want) {
		t.Errorf("mode default = %v, want %v", got, want)
	}
}

func TestDeriveCachesComposites(t *testing.T) {
	index := newTestIndex(t)
	first, err := index.Of(reflect.TypeFor[point]())
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	second, err := index.Of(reflect.TypeFor[point]())
	if err != nil {
		t.Fatalf("Of: %v", err)
	}
	if first != second {
		t.Error("repeated Of returned distinct composites")
	}
}

func TestDeriveRecursiveType(t *testing.T) {
	index := newTestIndex(t)
	derived, err := index.Of(reflect.TypeFor[node]())
	if err != nil {
		t.Fatalf("Of(node): %v", err)
	}
	composite := derived.(*shape.Composite)
	children, _ := composite.FieldByName("children")
	if got, want := children.Shape.String(), "list<nullable<"+reflect.TypeFor[node]().String()+">>"; got != want {
		t.Errorf("children shape = %q, want %q", got, want)
	}
}

func TestDeriveRejectsEmbeddedFields(t *testing.T) {
	type base struct {
		ID string `json:"id"`
	}
	type derived struct {
		base
		Name string `json:"name"`
	}
	index := newTestIndex(t)
	_, err := index.Of(reflect.TypeFor[derived]())
	if err == nil {
		t.Fatal("embedded field should fail derivation")
	}
	if !strings.Contains(err.Error(), "embedded") {
		t.Errorf("error = %q, want mention of embedded field", err)
	}
}

func TestDeriveRejectsDuplicateNames(t *testing.T) {
	type clashing struct {
		A string `json:"same"`
		B string `json:"same"`
	}
	index := newTestIndex(t)
	if _, err := index.Of(reflect.TypeFor[clashing]()); err == nil {
		t.Fatal("duplicate wire names should fail derivation")
	}
}

func TestDeriveRejectsBadDefault(t *testing.T) {
	type broken struct {
		Retries int `json:"retries" default:"lots"`
	}
	index := newTestIndex(t)
	if _, err := index.Of(reflect.TypeFor[broken]()); err == nil {
		t.Fatal("non-numeric default on int field should fail derivation")
	}
}

func TestDeriveRejectsLiteralOnComposite(t *testing.T) {
	type broken struct {
		P point `json:"p" literal:"a|b"`
	}
	index := newTestIndex(t)
	if _, err := index.Of(reflect.TypeFor[broken]()); err == nil {
		t.Fatal("literal tag on a struct field should fail derivation")
	}
}

func TestDeriveCustomCodec(t *testing.T) {
	index := newTestIndex(t)
	derived, err := index.Of(reflect.TypeFor[opaque]())
	if err != nil {
		t.Fatalf("Of(opaque): %v", err)
	}
	composite, ok := derived.(*shape.Composite)
	if !ok || !composite.Custom() {
		t.Fatalf("Of(opaque) = %v, want custom composite", derived)
	}
}

func TestDeriveRejectsAsymmetricCodec(t *testing.T) {
	index := newTestIndex(t)
	_, err := index.Of(reflect.TypeFor[halfway]())
	if err == nil {
		t.Fatal("encoder without decoder should fail derivation")
	}
	if !strings.Contains(err.Error(), "DecodePlain") {
		t.Errorf("error = %q, want mention of missing DecodePlain", err)
	}
}

func TestDeriveFallsBackToString(t *testing.T) {
	type odd struct {
		C chan int `json:"c"`
	}
	index := newTestIndex(t)
	derived, err := index.Of(reflect.TypeFor[odd]())
	if err != nil {
		t.Fatalf("Of(odd): %v", err)
	}
	field, _ := derived.(*shape.Composite).FieldByName("c")
	if got, want := field.Shape.String(), "string"; got != want {
		t.Errorf("chan field shape = %q, want %q", got, want)
	}
}

func TestRegisterUnionRejectsNonInterface(t *testing.T) {
	index := shape.NewIndex(nil)
	if err := index.RegisterUnion(reflect.TypeFor[point]()); err == nil {
		t.Fatal("struct type should not register as a union")
	}
	if err := index.RegisterUnion(reflect.TypeFor[any]()); err == nil {
		t.Fatal("empty interface should not register as a union")
	}
}

func TestAddVariantRejectsDuplicates(t *testing.T) {
	index := newTestIndex(t)
	signalType := reflect.TypeFor[signal]()

	err := index.AddVariant(signalType, "ping", reflect.TypeFor[*quit]())
	if err == nil {
		t.Fatal("duplicate label should fail")
	}

	err = index.AddVariant(signalType, "ping2", reflect.TypeFor[ping]())
	if !errors.Is(err, shape.ErrAmbiguousUnion) {
		t.Fatalf("duplicate concrete type: err = %v, want ErrAmbiguousUnion", err)
	}
}

func TestAddVariantRequiresImplementation(t *testing.T) {
	index := newTestIndex(t)
	err := index.AddVariant(reflect.TypeFor[signal](), "point", reflect.TypeFor[point]())
	if err == nil {
		t.Fatal("non-implementing type should fail registration")
	}
}

func TestVariantsListsRegistrationOrder(t *testing.T) {
	index := newTestIndex(t)
	variants := index.Variants(reflect.TypeFor[signal]())
	if len(variants) != 2 {
		t.Fatalf("variant count = %d, want 2", len(variants))
	}
	if got, want := variants[0].Label, "ping"; got != want {
		t.Errorf("variants[0] = %q, want %q", got, want)
	}
	if got, want := variants[1].Label, "quit"; got != want {
		t.Errorf("variants[1] = %q, want %q", got, want)
	}
}
