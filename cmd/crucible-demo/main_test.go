// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/plain"
)

func TestNewSuite(t *testing.T) {
	suite, err := newSuite()
	if err != nil {
		t.Fatalf("newSuite: %v", err)
	}
	if got, want := suite.Name(), "root-finding"; got != want {
		t.Errorf("suite name = %q, want %q", got, want)
	}
	if labels := suite.Tasks().Labels(); !slices.Contains(labels, "cubic") {
		t.Errorf("task labels = %v, want cubic registered", labels)
	}
	methods := suite.Methods().Labels()
	for _, label := range []string{"random-search", "newton"} {
		if !slices.Contains(methods, label) {
			t.Errorf("method labels = %v, want %s registered", methods, label)
		}
	}

	id, err := suite.FingerprintTask(cubicTask{A: 1, D: -8})
	if err != nil {
		t.Fatalf("FingerprintTask: %v", err)
	}
	if len(id) != 16 {
		t.Errorf("fingerprint %q has length %d, want 16", id, len(id))
	}
}

func TestCubicAt(t *testing.T) {
	tests := []struct {
		name string
		task cubicTask
		x    float64
		want float64
	}{
		{"constant", cubicTask{D: 5}, 3, 5},
		{"linear", cubicTask{C: 2, D: 1}, 4, 9},
		{"full", cubicTask{A: 1, B: -2, C: 3, D: -4}, 2, 2},
		{"at zero", cubicTask{A: 7, B: 7, C: 7, D: -1}, 0, -1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := test.task.at(test.x); got != test.want {
				t.Errorf("at(%g) = %g, want %g", test.x, got, test.want)
			}
		})
	}
}

func TestCubicLabel(t *testing.T) {
	task := cubicTask{A: 1, B: 0, C: -2, D: -5}
	if got, want := task.Label(), "cubic (1, 0, -2, -5)"; got != want {
		t.Errorf("Label() = %q, want %q", got, want)
	}
	if description := task.Description(); !strings.Contains(description, "1 x^3") {
		t.Errorf("Description() = %q, want the polynomial spelled out", description)
	}
}

func TestNewtonFindsRoot(t *testing.T) {
	tests := []struct {
		name string
		task cubicTask
		want float64
	}{
		// f(x) = x - 3: the derivative is exact, one step lands.
		{"linear", cubicTask{C: 1, D: -3}, 3},
		// f(x) = x^3 - 8.
		{"cube root", cubicTask{A: 1, D: -8}, 2},
		// f(x) = x^3 - 2x - 5, the classic example; root near 2.0946.
		{"wallis", cubicTask{A: 1, C: -2, D: -5}, 2.0945514815423265},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			method := newtonMethod{X0: 0, Eps: 0.01}
			result := method.findRoot(test.task)

			x, ok := result.Float("x")
			if !ok {
				t.Fatalf("result %v has no x", result)
			}
			if math.Abs(x-test.want) > 1e-6 {
				t.Errorf("found root %g, want %g", x, test.want)
			}
			if residual := math.Abs(test.task.at(x)); residual > 1e-9 {
				t.Errorf("abs(f(x)) = %g at the reported root", residual)
			}
			if evaluations, _ := result.Int("num_evals"); evaluations == 0 {
				t.Error("result reports zero evaluations")
			}
		})
	}
}

func TestNewtonFlatFunction(t *testing.T) {
	// f(x) = 5 everywhere: the derivative estimate is zero, so the
	// iteration gives up after one derivative probe.
	method := newtonMethod{X0: 1, Eps: 0.01}
	result := method.findRoot(cubicTask{D: 5})

	if x, _ := result.Float("x"); x != 1 {
		t.Errorf("x = %g, want the starting point", x)
	}
	if evaluations, _ := result.Int("num_evals"); evaluations != 2 {
		t.Errorf("num_evals = %d, want 2", evaluations)
	}
}

func TestRandomSearch(t *testing.T) {
	// f(x) = x on [-1, 1]: with a thousand samples the best point is
	// essentially certain to land within 0.05 of the root.
	task := cubicTask{C: 1}
	method := randomSearchMethod{XMin: -1, XMax: 1}
	result := method.findRoot(task)

	x, ok := result.Float("x")
	if !ok {
		t.Fatalf("result %v has no x", result)
	}
	if x < method.XMin || x > method.XMax {
		t.Errorf("x = %g, outside [%g, %g]", x, method.XMin, method.XMax)
	}
	if math.Abs(x) > 0.05 {
		t.Errorf("best x = %g, want near the root at 0", x)
	}
	if evaluations, _ := result.Int("num_evals"); evaluations != 1000 {
		t.Errorf("num_evals = %d, want 1000", evaluations)
	}
}

func TestCubicMetrics(t *testing.T) {
	task := cubicTask{A: 1, D: -8}
	result := bench.Result{"x": 2.0, "num_evals": int64(50), "seconds": 0.25}

	metrics, err := task.Metrics(result)
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if len(metrics) != 2 {
		t.Fatalf("got %d metrics, want a table and a time block", len(metrics))
	}

	table, isTable := metrics[0].(bench.Table)
	if !isTable {
		t.Fatalf("metrics[0] is %T, want bench.Table", metrics[0])
	}
	if got := table.Cells["x"]; got != 2.0 {
		t.Errorf("table x = %v, want 2", got)
	}
	if got := table.Cells["abs(y)"]; got != 0.0 {
		t.Errorf("table abs(y) = %v, want 0", got)
	}
	if got := table.Cells["calls to f(x)"]; got != int64(50) {
		t.Errorf("table calls = %v, want 50", got)
	}

	timing, isTiming := metrics[1].(bench.TimeMetric)
	if !isTiming {
		t.Fatalf("metrics[1] is %T, want bench.TimeMetric", metrics[1])
	}
	if got, want := timing.Durations["solve"], 250*time.Millisecond; got != want {
		t.Errorf("solve duration = %v, want %v", got, want)
	}
}

func TestCubicMetricsWithoutTiming(t *testing.T) {
	metrics, err := cubicTask{C: 1}.Metrics(bench.Result{"x": 0.5, "num_evals": int64(3)})
	if err != nil {
		t.Fatalf("Metrics: %v", err)
	}
	if len(metrics) != 1 {
		t.Errorf("got %d metrics, want only the table when no timing was recorded", len(metrics))
	}
}

func TestCubicMetricsMissingX(t *testing.T) {
	if _, err := (cubicTask{}).Metrics(bench.Result{"num_evals": int64(3)}); err == nil {
		t.Error("Metrics accepted a result with no x")
	}
}

func TestRunHandler(t *testing.T) {
	suite, err := newSuite()
	if err != nil {
		t.Fatalf("newSuite: %v", err)
	}

	outcome, err := suite.Run(context.Background(), cubicTask{C: 1, D: -3}, newtonMethod{X0: 0, Eps: 0.01})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	result, isResult := outcome.(bench.Result)
	if !isResult {
		t.Fatalf("outcome is %T, want bench.Result", outcome)
	}
	if outcome.Status() != bench.StatusDone {
		t.Errorf("status = %s, want done", outcome.Status())
	}
	if x, _ := result.Float("x"); math.Abs(x-3) > 1e-6 {
		t.Errorf("x = %g, want 3", x)
	}
	if seconds, ok := result.Float("seconds"); !ok || seconds < 0 {
		t.Errorf("seconds = %v (%v), want a timing", seconds, ok)
	}
}

// Decoding an empty payload fills the registered defaults; this is
// what "method new newton" with no arguments produces.
func TestMethodDefaults(t *testing.T) {
	suite, err := newSuite()
	if err != nil {
		t.Fatalf("newSuite: %v", err)
	}

	decoded, err := suite.Methods().Decode("newton", map[string]plain.Value{})
	if err != nil {
		t.Fatalf("Decode(newton): %v", err)
	}
	newton := decoded.(newtonMethod)
	if newton.X0 != 0 || newton.Eps != 0.01 {
		t.Errorf("newton defaults = %+v, want x_0=0 eps=0.01", newton)
	}

	decoded, err = suite.Methods().Decode("random-search", map[string]plain.Value{})
	if err != nil {
		t.Fatalf("Decode(random-search): %v", err)
	}
	random := decoded.(randomSearchMethod)
	if random.XMin != -10 || random.XMax != 10 {
		t.Errorf("random-search defaults = %+v, want x_min=-10 x_max=10", random)
	}
}
