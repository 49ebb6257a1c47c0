// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package bench

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crucible-foundation/crucible/lib/family"
	"github.com/crucible-foundation/crucible/lib/fingerprint"
	"github.com/crucible-foundation/crucible/lib/shape"
)

// RunFunc executes a task with a method. Quick work returns a
// terminal outcome directly; work handed to external systems returns
// a Token for later polling.
type RunFunc func(ctx context.Context, task Task, method Method) (Outcome, error)

// PollFunc exchanges a token for a terminal outcome, or returns
// (nil, nil) while the work is still in flight.
type PollFunc func(ctx context.Context, token Token) (Outcome, error)

// Options configures a Suite.
type Options struct {
	// Logger receives derivation warnings and registration events.
	// Nil discards them.
	Logger *slog.Logger
}

// Suite is one benchmark definition: a name, the three type families,
// and the handlers that execute runs. Construct it once at program
// start, register every type, then hand it to the harness.
type Suite struct {
	name   string
	logger *slog.Logger
	index  *shape.Index

	tasks    *family.Registry[Task]
	methods  *family.Registry[Method]
	outcomes *family.Registry[Outcome]
	prints   *fingerprint.Cache

	runFunc  RunFunc
	pollFunc PollFunc
}

// New creates a suite with the built-in outcome types (token, result,
// failure) already registered.
func New(name string, options Options) (*Suite, error) {
	if name == "" {
		return nil, fmt.Errorf("suite name must not be empty")
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	index := shape.NewIndex(logger)

	tasks, err := family.New[Task](index, "task")
	if err != nil {
		return nil, err
	}
	methods, err := family.New[Method](index, "method")
	if err != nil {
		return nil, err
	}
	outcomes, err := family.New[Outcome](index, "outcome")
	if err != nil {
		return nil, err
	}

	suite := &Suite{
		name:     name,
		logger:   logger,
		index:    index,
		tasks:    tasks,
		methods:  methods,
		outcomes: outcomes,
		prints:   fingerprint.NewCache(),
	}
	for _, builtin := range []struct {
		label string
		probe Outcome
	}{
		{"token", Token{}},
		{"result", Result{}},
		{"failure", Failure{}},
	} {
		if err := outcomes.Add(builtin.label, builtin.probe); err != nil {
			return nil, fmt.Errorf("suite %s: built-in outcome: %w", name, err)
		}
	}
	return suite, nil
}

// Name returns the benchmark's display name.
func (suite *Suite) Name() string { return suite.name }

// Index returns the suite's shape index.
func (suite *Suite) Index() *shape.Index { return suite.index }

// Tasks returns the task family.
func (suite *Suite) Tasks() *family.Registry[Task] { return suite.tasks }

// Methods returns the method family.
func (suite *Suite) Methods() *family.Registry[Method] { return suite.methods }

// Outcomes returns the outcome family.
func (suite *Suite) Outcomes() *family.Registry[Outcome] { return suite.outcomes }

// AddTask registers a task type under a label, using probe's concrete
// type. Registration derives the shape and round-trip checks the
// probe, so a task type with a broken codec fails here, not at run
// time.
func (suite *Suite) AddTask(label string, probe Task) error {
	if err := suite.tasks.Add(label, probe); err != nil {
		return err
	}
	suite.logger.Debug("registered task type", "suite", suite.name, "label", label)
	return nil
}

// AddMethod registers a method type under a label.
func (suite *Suite) AddMethod(label string, probe Method) error {
	if err := suite.methods.Add(label, probe); err != nil {
		return err
	}
	suite.logger.Debug("registered method type", "suite", suite.name, "label", label)
	return nil
}

// AddOutcome registers an additional outcome type beyond the
// built-ins.
func (suite *Suite) AddOutcome(label string, probe Outcome) error {
	if err := suite.outcomes.Add(label, probe); err != nil {
		return err
	}
	suite.logger.Debug("registered outcome type", "suite", suite.name, "label", label)
	return nil
}

// OnRun sets the handler that executes a task with a method.
func (suite *Suite) OnRun(handler RunFunc) { suite.runFunc = handler }

// OnPoll sets the handler that resolves tokens.
func (suite *Suite) OnPoll(handler PollFunc) { suite.pollFunc = handler }

// Run executes a task with a method through the registered handler.
func (suite *Suite) Run(ctx context.Context, task Task, method Method) (Outcome, error) {
	if suite.runFunc == nil {
		return nil, fmt.Errorf("suite %s: no run handler registered; call OnRun first", suite.name)
	}
	return suite.runFunc(ctx, task, method)
}

// Poll resolves a token through the registered handler. A nil outcome
// with a nil error means the work is still in flight.
func (suite *Suite) Poll(ctx context.Context, token Token) (Outcome, error) {
	if suite.pollFunc == nil {
		return nil, fmt.Errorf("suite %s: no poll handler registered; call OnPoll first", suite.name)
	}
	return suite.pollFunc(ctx, token)
}

// FingerprintTask returns the task's content fingerprint, memoized
// per value.
func (suite *Suite) FingerprintTask(task Task) (fingerprint.ID, error) {
	return suite.prints.Memoize(task, func() (fingerprint.ID, error) {
		label, payload, err := suite.tasks.Encode(task)
		if err != nil {
			return "", err
		}
		return fingerprint.New(label, payload)
	})
}

// FingerprintMethod returns the method's content fingerprint,
// memoized per value.
func (suite *Suite) FingerprintMethod(method Method) (fingerprint.ID, error) {
	return suite.prints.Memoize(method, func() (fingerprint.ID, error) {
		label, payload, err := suite.methods.Encode(method)
		if err != nil {
			return "", err
		}
		return fingerprint.New(label, payload)
	})
}

// DisplayLabel returns a value's custom label when it provides one,
// falling back to the registered family label.
func DisplayLabel[T any](registry *family.Registry[T], value T) string {
	if labeled, hasLabel := any(value).(Labeled); hasLabel {
		return labeled.Label()
	}
	label, err := registry.LabelOf(value)
	if err != nil {
		return fmt.Sprintf("%T", value)
	}
	return label
}
