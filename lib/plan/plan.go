// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package plan parses and validates plan files: JSONC documents that
// declare a batch of work for a suite binary — task and method
// instances plus the run combinations to execute.
//
// Plans are authored as JSONC (JSON extended with // line comments,
// /* block comments */, and trailing commas):
//
//	{
//	    // Compare both solvers on an easy cubic.
//	    "suite": "root-finding",
//	    "tasks": [
//	        {"name": "easy", "kind": "cubic", "fields": {"a": 1.0, "d": -1.0}},
//	    ],
//	    "methods": [
//	        {"kind": "random-search"},
//	        {"name": "nwt", "kind": "newton", "fields": {"eps": 0.001}},
//	    ],
//	    "runs": [
//	        {"task": "easy", "count": 3},
//	    ],
//	}
//
// The typical flow:
//
//  1. ReadFile or Parse: JSONC bytes → Plan
//  2. Validate: structural checks (kinds present, selectors resolve)
//  3. Expand: run requests → concrete task/method instance pairs
//
// Field objects stay raw JSON here. The harness decodes them through
// the suite's registries when the plan executes, which is where an
// unregistered kind or a field of the wrong type surfaces.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// Plan is a parsed plan document.
type Plan struct {
	// Suite names the suite this plan is written for. When set, the
	// executing binary refuses plans written for a different suite.
	Suite string `json:"suite,omitempty"`

	// Tasks and Methods declare the instances the plan works with.
	Tasks   []Instance `json:"tasks,omitempty"`
	Methods []Instance `json:"methods,omitempty"`

	// Runs declares which task and method combinations to execute.
	Runs []RunRequest `json:"runs,omitempty"`
}

// Instance declares one task or method value: the registry label of
// its kind plus a field object. Fields a suite type declares with
// defaults may be omitted.
type Instance struct {
	// Name is an optional plan-local handle for run selectors.
	Name string `json:"name,omitempty"`

	// Kind is the registry label of the concrete type.
	Kind string `json:"kind"`

	// Fields is the JSON object holding the instance's field values.
	// Absent means all defaults.
	Fields json.RawMessage `json:"fields,omitempty"`
}

// RunRequest asks for runs of task and method combinations. Task and
// Method name instances declared in the plan; an empty selector
// matches every declared instance. Count repeats each combination
// (zero means one).
type RunRequest struct {
	Task   string `json:"task,omitempty"`
	Method string `json:"method,omitempty"`
	Count  int    `json:"count,omitempty"`
}

// Parse strips JSONC comments and trailing commas from data, then
// unmarshals the result into a Plan. Syntax and type errors are
// reported with their line and column; comment stripping replaces
// comment bytes with spaces, so offsets line up with the source file.
func Parse(data []byte) (*Plan, error) {
	stripped := jsonc.ToJSON(data)

	var parsed Plan
	if err := json.Unmarshal(stripped, &parsed); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", positionError(stripped, err))
	}

	return &parsed, nil
}

// ReadFile reads a JSONC plan file from disk and parses it. Returns a
// descriptive error if the file cannot be read or the JSON is
// malformed.
func ReadFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	parsed, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return parsed, nil
}

// NameFromPath extracts a plan name from a file path by stripping the
// directory prefix and the file extension. For example,
// "plans/nightly-sweep.jsonc" returns "nightly-sweep".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	extension := filepath.Ext(base)
	return strings.TrimSuffix(base, extension)
}

// positionError rewraps JSON errors that carry a byte offset so the
// message names the line and column.
func positionError(data []byte, err error) error {
	var offset int64
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxError):
		offset = syntaxError.Offset
	case errors.As(err, &typeError):
		offset = typeError.Offset
	default:
		return err
	}
	line, column := lineColumn(data, offset)
	return fmt.Errorf("line %d, column %d: %w", line, column, err)
}

func lineColumn(data []byte, offset int64) (line, column int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	line, column = 1, 1
	for _, b := range data[:offset] {
		if b == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}
