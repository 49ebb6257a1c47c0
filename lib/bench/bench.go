// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package bench defines the benchmark model: tasks (problem
// definitions), methods (solver configurations), and the outcomes
// produced by running one against the other. A Suite ties the three
// type families to a shared shape index and the run/poll handlers
// supplied by the benchmark author.
package bench

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/crucible-foundation/crucible/lib/fingerprint"
	"github.com/crucible-foundation/crucible/lib/plain"
)

// Task marks a problem definition: an immutable, encodable value
// describing what to execute. Implementations are plain structs whose
// exported fields are the problem inputs.
type Task interface {
	IsTask()
}

// Method marks a solver configuration: the tunable values one
// approach brings to a task.
type Method interface {
	IsMethod()
}

// Outcome is what a run produces: a poll token while work is in
// flight elsewhere, or a terminal result or failure.
type Outcome interface {
	// Status returns the run status this outcome implies.
	Status() Status
}

// Labeled is implemented by tasks and methods that display a custom
// one-line label instead of their registered type label.
type Labeled interface {
	Label() string
}

// Described is implemented by values that explain themselves in a
// sentence or two, shown in listings and the dashboard.
type Described interface {
	Description() string
}

// Status is the lifecycle state of a run.
type Status string

const (
	// StatusRunning covers a launched run that has not reported an
	// outcome yet.
	StatusRunning Status = "running"

	// StatusPending covers a run whose outcome is a Token: the work
	// continues elsewhere and must be polled.
	StatusPending Status = "pending"

	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Terminal reports whether the status can no longer change.
func (status Status) Terminal() bool {
	return status == StatusDone || status == StatusFailed
}

// Token is the outcome of an asynchronous launch: an opaque handle
// the suite's poll handler later exchanges for a terminal outcome.
// The handle encodes bare, without an enclosing object.
type Token struct {
	Handle plain.Value
}

func (Token) Status() Status { return StatusPending }

func (token Token) EncodePlain() (plain.Value, error) {
	if err := plain.Check(token.Handle); err != nil {
		return nil, fmt.Errorf("token handle: %w", err)
	}
	return plain.Clone(token.Handle), nil
}

func (token *Token) DecodePlain(data plain.Value) error {
	if err := plain.Check(data); err != nil {
		return fmt.Errorf("token handle: %w", err)
	}
	token.Handle = plain.Clone(data)
	return nil
}

// Result is a successful terminal outcome: named measurement values,
// encoded as a bare object.
type Result map[string]plain.Value

func (Result) Status() Status { return StatusDone }

func (result Result) EncodePlain() (plain.Value, error) {
	object := make(map[string]plain.Value, len(result))
	for key, value := range result {
		if err := plain.Check(value); err != nil {
			return nil, fmt.Errorf("result %q: %w", key, err)
		}
		object[key] = plain.Clone(value)
	}
	return object, nil
}

func (result *Result) DecodePlain(data plain.Value) error {
	object, isObject := data.(map[string]plain.Value)
	if !isObject {
		return fmt.Errorf("result payload must be an object, got %T", data)
	}
	decoded := make(Result, len(object))
	for key, value := range object {
		decoded[key] = plain.Clone(value)
	}
	*result = decoded
	return nil
}

// Float reads a numeric measurement, widening stored ints.
func (result Result) Float(key string) (float64, bool) {
	switch value := result[key].(type) {
	case float64:
		return value, true
	case int64:
		return float64(value), true
	default:
		return 0, false
	}
}

// Int reads an integer measurement.
func (result Result) Int(key string) (int64, bool) {
	value, isInt := result[key].(int64)
	return value, isInt
}

// String reads a text measurement.
func (result Result) String(key string) (string, bool) {
	value, isString := result[key].(string)
	return value, isString
}

// Failure is a failed terminal outcome, encoded as the bare message
// string.
type Failure struct {
	Message string
}

func (Failure) Status() Status { return StatusFailed }

func (failure Failure) Error() string { return failure.Message }

func (failure Failure) EncodePlain() (plain.Value, error) {
	return failure.Message, nil
}

func (failure *Failure) DecodePlain(data plain.Value) error {
	message, isString := data.(string)
	if !isString {
		return fmt.Errorf("failure payload must be a string, got %T", data)
	}
	failure.Message = message
	return nil
}

// Run is one execution record: which task, which method, and what
// came of it. Task and Method are content fingerprints; the values
// themselves live in the store's task and method tables.
type Run struct {
	ID      string
	Task    fingerprint.ID
	Method  fingerprint.ID
	Outcome Outcome
}

// Status derives the run's lifecycle state from its outcome. A run
// with no outcome yet is running.
func (run Run) Status() Status {
	if run.Outcome == nil {
		return StatusRunning
	}
	return run.Outcome.Status()
}

// NewRunID mints a random run identifier: 16 hex characters, the same
// width as a fingerprint but drawn fresh per run rather than derived
// from content.
func NewRunID() string {
	var raw [8]byte
	rand.Read(raw[:])
	return hex.EncodeToString(raw[:])
}
