// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package bench_test

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/plain"
)

type sum struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func (sum) IsTask() {}

func (s sum) Metrics(result bench.Result) ([]bench.Metric, error) {
	total, _ := result.Float("total")
	seconds, _ := result.Float("seconds")
	return []bench.Metric{
		bench.Table{
			Name:  "accuracy",
			Cells: map[string]plain.Value{"total": total, "expected": s.A + s.B},
		},
		bench.TimeMetric{
			Name:      "time",
			Durations: map[string]time.Duration{"wall": time.Duration(seconds * float64(time.Second))},
		},
	}, nil
}

type adder struct {
	Bias float64 `json:"bias" default:"0"`
}

func (adder) IsMethod() {}

func newTestSuite(t *testing.T) *bench.Suite {
	t.Helper()
	suite, err := bench.New("arithmetic", bench.Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := suite.AddTask("sum", sum{}); err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if err := suite.AddMethod("adder", adder{}); err != nil {
		t.Fatalf("AddMethod: %v", err)
	}
	return suite
}

func TestBuiltinOutcomesAreRegistered(t *testing.T) {
	suite := newTestSuite(t)
	got := suite.Outcomes().Labels()
	want := []string{"token", "result", "failure"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("outcome labels = %v, want %v", got, want)
	}
}

func TestOutcomeWireForms(t *testing.T) {
	suite := newTestSuite(t)
	outcomes := suite.Outcomes()

	tests := []struct {
		name      string
		outcome   bench.Outcome
		wantLabel string
		wantWire  plain.Value
	}{
		{
			name:      "token_is_bare_handle",
			outcome:   bench.Token{Handle: map[string]plain.Value{"job": "j-1"}},
			wantLabel: "token",
			wantWire:  map[string]plain.Value{"job": "j-1"},
		},
		{
			name:      "result_is_bare_object",
			outcome:   bench.Result{"x": float64(0.5), "num_evals": int64(3)},
			wantLabel: "result",
			wantWire:  map[string]plain.Value{"x": float64(0.5), "num_evals": int64(3)},
		},
		{
			name:      "failure_is_bare_message",
			outcome:   bench.Failure{Message: "diverged"},
			wantLabel: "failure",
			wantWire:  "diverged",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			label, payload, err := outcomes.Encode(test.outcome)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if label != test.wantLabel {
				t.Errorf("label = %q, want %q", label, test.wantLabel)
			}
			if !plain.Equal(payload, test.wantWire) {
				t.Errorf("wire = %v, want %v", payload, test.wantWire)
			}
			decoded, err := outcomes.Decode(label, payload)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(decoded, test.outcome) {
				t.Errorf("round trip = %#v, want %#v", decoded, test.outcome)
			}
		})
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		run  bench.Run
		want bench.Status
	}{
		{"no_outcome", bench.Run{}, bench.StatusRunning},
		{"token", bench.Run{Outcome: bench.Token{}}, bench.StatusPending},
		{"result", bench.Run{Outcome: bench.Result{}}, bench.StatusDone},
		{"failure", bench.Run{Outcome: bench.Failure{}}, bench.StatusFailed},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.run.Status(); got != test.want {
				t.Errorf("Status = %q, want %q", got, test.want)
			}
			wantTerminal := test.want == bench.StatusDone || test.want == bench.StatusFailed
			if got := test.run.Status().Terminal(); got != wantTerminal {
				t.Errorf("Terminal = %v, want %v", got, wantTerminal)
			}
		})
	}
}

func TestFingerprintsFollowContent(t *testing.T) {
	suite := newTestSuite(t)

	first, err := suite.FingerprintTask(sum{A: 1, B: 2})
	if err != nil {
		t.Fatalf("FingerprintTask: %v", err)
	}
	same, err := suite.FingerprintTask(sum{A: 1, B: 2})
	if err != nil {
		t.Fatalf("FingerprintTask: %v", err)
	}
	if first != same {
		t.Errorf("equal tasks fingerprint differently: %s != %s", first, same)
	}
	changed, err := suite.FingerprintTask(sum{A: 1, B: 3})
	if err != nil {
		t.Fatalf("FingerprintTask: %v", err)
	}
	if changed == first {
		t.Error("different tasks share a fingerprint")
	}

	method, err := suite.FingerprintMethod(adder{})
	if err != nil {
		t.Fatalf("FingerprintMethod: %v", err)
	}
	if method == first {
		t.Error("task and method share a fingerprint")
	}
}

func TestRunAndPollHandlers(t *testing.T) {
	suite := newTestSuite(t)

	if _, err := suite.Run(context.Background(), sum{}, adder{}); err == nil {
		t.Fatal("Run without a handler should fail")
	}
	if _, err := suite.Poll(context.Background(), bench.Token{}); err == nil {
		t.Fatal("Poll without a handler should fail")
	}

	suite.OnRun(func(ctx context.Context, task bench.Task, method bench.Method) (bench.Outcome, error) {
		s := task.(sum)
		a := method.(adder)
		return bench.Result{"total": s.A + s.B + a.Bias}, nil
	})
	suite.OnPoll(func(ctx context.Context, token bench.Token) (bench.Outcome, error) {
		return nil, nil
	})

	outcome, err := suite.Run(context.Background(), sum{A: 1, B: 2}, adder{Bias: 0.5})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result, isResult := outcome.(bench.Result)
	if !isResult {
		t.Fatalf("outcome = %T, want Result", outcome)
	}
	if got, want := result["total"], plain.Value(3.5); !plain.Equal(got, want) {
		t.Errorf("total = %v, want %v", got, want)
	}

	pending, err := suite.Poll(context.Background(), bench.Token{})
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if pending != nil {
		t.Errorf("Poll = %v, want nil while in flight", pending)
	}
}

func TestMetricsOf(t *testing.T) {
	result := bench.Result{"total": float64(3), "seconds": float64(0.25)}
	metrics, err := bench.MetricsOf(sum{A: 1, B: 2}, result)
	if err != nil {
		t.Fatalf("MetricsOf: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("metric count = %d, want 2", len(metrics))
	}
	table, isTable := metrics[0].(bench.Table)
	if !isTable {
		t.Fatalf("metrics[0] = %T, want Table", metrics[0])
	}
	if got, want := table.Cells["expected"], plain.Value(float64(3)); !plain.Equal(got, want) {
		t.Errorf("expected cell = %v, want %v", got, want)
	}
	timing, isTime := metrics[1].(bench.TimeMetric)
	if !isTime {
		t.Fatalf("metrics[1] = %T, want TimeMetric", metrics[1])
	}
	if got, want := timing.Durations["wall"], 250*time.Millisecond; got != want {
		t.Errorf("wall = %v, want %v", got, want)
	}

	if metrics, err := bench.MetricsOf(mute{}, result); err != nil || metrics != nil {
		t.Errorf("MetricsOf(metric-less task) = %v, %v; want nil, nil", metrics, err)
	}
}

type mute struct{}

func (mute) IsTask() {}

func TestResultAccessors(t *testing.T) {
	result := bench.Result{
		"f": float64(1.5),
		"i": int64(7),
		"s": "text",
	}
	if got, ok := result.Float("f"); !ok || got != 1.5 {
		t.Errorf("Float(f) = %v, %v", got, ok)
	}
	if got, ok := result.Float("i"); !ok || got != 7 {
		t.Errorf("Float(i) = %v, %v; ints should widen", got, ok)
	}
	if _, ok := result.Float("s"); ok {
		t.Error("Float(s) should not convert strings")
	}
	if got, ok := result.Int("i"); !ok || got != 7 {
		t.Errorf("Int(i) = %v, %v", got, ok)
	}
	if got, ok := result.String("s"); !ok || got != "text" {
		t.Errorf("String(s) = %v, %v", got, ok)
	}
	if _, ok := result.Int("missing"); ok {
		t.Error("Int(missing) should report absence")
	}
}

func TestNewRunIDShape(t *testing.T) {
	seen := make(map[string]bool)
	for trial := 0; trial < 100; trial++ {
		id := bench.NewRunID()
		if len(id) != 16 {
			t.Fatalf("len(%q) = %d, want 16", id, len(id))
		}
		for _, character := range id {
			if (character < '0' || character > '9') && (character < 'a' || character > 'f') {
				t.Fatalf("run id %q contains %q", id, character)
			}
		}
		if seen[id] {
			t.Fatalf("run id %q repeated", id)
		}
		seen[id] = true
	}
}

func TestDisplayLabel(t *testing.T) {
	suite := newTestSuite(t)
	if got, want := bench.DisplayLabel(suite.Tasks(), bench.Task(sum{})), "sum"; got != want {
		t.Errorf("DisplayLabel = %q, want %q", got, want)
	}
	if got, want := bench.DisplayLabel(suite.Tasks(), bench.Task(verbose{})), "sum of squares"; got != want {
		t.Errorf("DisplayLabel = %q, want %q", got, want)
	}
}

type verbose struct{}

func (verbose) IsTask()       {}
func (verbose) Label() string { return "sum of squares" }

func TestTokenRejectsForeignHandle(t *testing.T) {
	token := bench.Token{Handle: int(7)}
	if _, err := token.EncodePlain(); err == nil {
		t.Fatal("foreign handle should not encode")
	}
}
