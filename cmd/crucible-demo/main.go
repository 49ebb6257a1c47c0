// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// The crucible-demo binary is a small root-finding suite: the task is
// a cubic polynomial, the methods hunt for an x with f(x) = 0. It
// exists to give new users a complete suite to poke at (run it, watch
// the dashboard, export a bundle) and the repository a worked example
// of the harness wiring.
package main

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/harness"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/process"
)

func main() {
	suite, err := newSuite()
	if err != nil {
		process.Fatal(err)
	}
	harness.Main(suite, harness.Options{
		Description: `Root-finding demonstration suite.

The cubic task defines a polynomial f(x) = a x^3 + b x^2 + c x + d;
the methods search for a root. Try:

  crucible-demo task new cubic a=1 b=0 c=-2 d=-5
  crucible-demo method new newton
  crucible-demo run --task <task-id> --method <method-id>
  crucible-demo dash`,
	})
}

func newSuite() (*bench.Suite, error) {
	suite, err := bench.New("root-finding", bench.Options{})
	if err != nil {
		return nil, err
	}
	if err := suite.AddTask("cubic", cubicTask{}); err != nil {
		return nil, err
	}
	if err := suite.AddMethod("random-search", randomSearchMethod{}); err != nil {
		return nil, err
	}
	if err := suite.AddMethod("newton", newtonMethod{}); err != nil {
		return nil, err
	}
	suite.OnRun(func(ctx context.Context, task bench.Task, method bench.Method) (bench.Outcome, error) {
		cubic := task.(cubicTask)
		solver, ok := method.(rootSolver)
		if !ok {
			return nil, fmt.Errorf("method %T cannot search cubic roots", method)
		}
		started := time.Now()
		result := solver.findRoot(cubic)
		result["seconds"] = time.Since(started).Seconds()
		return result, nil
	})
	return suite, nil
}

// rootSolver is the contract every method of this suite fulfills:
// search the cubic and report the best x plus the evaluation count.
type rootSolver interface {
	findRoot(task cubicTask) bench.Result
}

// cubicTask asks for a root of a x^3 + b x^2 + c x + d.
type cubicTask struct {
	A float64 `json:"a" desc:"cubic coefficient"`
	B float64 `json:"b" desc:"quadratic coefficient"`
	C float64 `json:"c" desc:"linear coefficient"`
	D float64 `json:"d" desc:"constant term"`
}

func (cubicTask) IsTask() {}

// at evaluates the polynomial.
func (task cubicTask) at(x float64) float64 {
	return task.A*x*x*x + task.B*x*x + task.C*x + task.D
}

func (task cubicTask) Label() string {
	return fmt.Sprintf("cubic (%g, %g, %g, %g)", task.A, task.B, task.C, task.D)
}

func (task cubicTask) Description() string {
	return fmt.Sprintf(
		"Find a root of the cubic function\n\n"+
			"    f(x) = %g x^3 + %g x^2 + %g x + %g\n\n"+
			"A method reports the best `x` it saw and how many times it "+
			"evaluated `f`. The root table scores the reported point by "+
			"`abs(f(x))`; zero is a perfect root.",
		task.A, task.B, task.C, task.D)
}

// Metrics scores the reported x against the polynomial and surfaces
// the solver timing.
func (task cubicTask) Metrics(result bench.Result) ([]bench.Metric, error) {
	x, ok := result.Float("x")
	if !ok {
		return nil, fmt.Errorf("result has no x")
	}
	evaluations, _ := result.Int("num_evals")
	metrics := []bench.Metric{
		bench.Table{
			Name: "root",
			Cells: map[string]plain.Value{
				"x":             x,
				"abs(y)":        math.Abs(task.at(x)),
				"calls to f(x)": evaluations,
			},
		},
	}
	if seconds, ok := result.Float("seconds"); ok {
		metrics = append(metrics, bench.TimeMetric{
			Name:      "timing",
			Durations: map[string]time.Duration{"solve": time.Duration(seconds * float64(time.Second))},
		})
	}
	return metrics, nil
}

// randomSearchMethod samples the interval uniformly and keeps the x
// with the smallest |f(x)|. A baseline any serious method must beat.
type randomSearchMethod struct {
	XMin float64 `json:"x_min" default:"-10" desc:"lower bound of the sample interval"`
	XMax float64 `json:"x_max" default:"10" desc:"upper bound of the sample interval"`
}

func (randomSearchMethod) IsMethod() {}

func (method randomSearchMethod) findRoot(task cubicTask) bench.Result {
	const evaluations = 1000
	bestX := method.XMin
	bestScore := math.Inf(1)
	for range evaluations {
		x := method.XMin + rand.Float64()*(method.XMax-method.XMin)
		if score := math.Abs(task.at(x)); score < bestScore {
			bestX, bestScore = x, score
		}
	}
	return bench.Result{"x": bestX, "num_evals": int64(evaluations)}
}

// newtonMethod iterates Newton's method from x_0, estimating the
// derivative with a central difference of width eps.
type newtonMethod struct {
	X0  float64 `json:"x_0" default:"0" desc:"starting point of the iteration"`
	Eps float64 `json:"eps" default:"0.01" desc:"central difference half-width"`
}

func (newtonMethod) IsMethod() {}

func (method newtonMethod) findRoot(task cubicTask) bench.Result {
	const iterations = 1000
	evaluations := int64(0)
	x := method.X0
	for range iterations {
		derivative := (task.at(x+method.Eps) - task.at(x-method.Eps)) / (2 * method.Eps)
		evaluations += 2
		if derivative == 0 {
			break
		}
		x -= task.at(x) / derivative
		evaluations++
	}
	return bench.Result{"x": x, "num_evals": evaluations}
}
