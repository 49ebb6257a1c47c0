// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

// namePattern matches valid instance names: plan-local handles used by
// run selectors. Anchored to the full string.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

// Validate checks a Plan for structural issues. Returns a list of
// human-readable issue descriptions. An empty list means the plan is
// structurally valid; whether kinds resolve and field values decode is
// decided by the suite's registries at execution time.
//
// Structural checks include:
//   - The plan must declare something (tasks, methods, or runs)
//   - Every instance must have a kind
//   - Instance names must be valid and unique within their section
//   - Fields, when present, must be a JSON object
//   - Run counts must not be negative
//   - Run selectors must resolve to at least one declared instance
func (plan *Plan) Validate() []string {
	var issues []string

	if len(plan.Tasks) == 0 && len(plan.Methods) == 0 && len(plan.Runs) == 0 {
		issues = append(issues, "plan declares nothing (tasks, methods, or runs are required)")
	}

	issues = append(issues, validateInstances(plan.Tasks, "tasks")...)
	issues = append(issues, validateInstances(plan.Methods, "methods")...)

	taskNames := instanceNames(plan.Tasks)
	methodNames := instanceNames(plan.Methods)

	for index, request := range plan.Runs {
		prefix := fmt.Sprintf("runs[%d]", index)

		if request.Count < 0 {
			issues = append(issues, fmt.Sprintf("%s: count must not be negative, got %d", prefix, request.Count))
		}

		switch {
		case request.Task == "" && len(plan.Tasks) == 0:
			issues = append(issues, fmt.Sprintf("%s: no tasks declared for the empty selector to match", prefix))
		case request.Task != "" && !taskNames[request.Task]:
			issues = append(issues, fmt.Sprintf("%s: task %q is not declared in the plan", prefix, request.Task))
		}

		switch {
		case request.Method == "" && len(plan.Methods) == 0:
			issues = append(issues, fmt.Sprintf("%s: no methods declared for the empty selector to match", prefix))
		case request.Method != "" && !methodNames[request.Method]:
			issues = append(issues, fmt.Sprintf("%s: method %q is not declared in the plan", prefix, request.Method))
		}
	}

	return issues
}

// validateInstances checks one declaration section. The section name
// ("tasks" or "methods") prefixes issue messages.
func validateInstances(instances []Instance, section string) []string {
	var issues []string

	// Names must be unique within the section: a duplicate would make
	// run selectors ambiguous.
	names := make(map[string]int, len(instances))

	for index, instance := range instances {
		prefix := fmt.Sprintf("%s[%d]", section, index)
		if instance.Name != "" {
			prefix = fmt.Sprintf("%s %q", prefix, instance.Name)

			if !namePattern.MatchString(instance.Name) {
				issues = append(issues, fmt.Sprintf(
					"%s: instance names use letters, digits, '-', and '_' ([A-Za-z0-9][A-Za-z0-9_-]*)",
					prefix,
				))
			}
			if firstIndex, exists := names[instance.Name]; exists {
				issues = append(issues, fmt.Sprintf(
					"%s: duplicate name (first used at %s[%d])",
					prefix, section, firstIndex,
				))
			} else {
				names[instance.Name] = index
			}
		}

		if instance.Kind == "" {
			issues = append(issues, fmt.Sprintf("%s: kind is required", prefix))
		}

		if len(instance.Fields) > 0 && !isJSONObject(instance.Fields) {
			issues = append(issues, fmt.Sprintf("%s: fields must be a JSON object", prefix))
		}
	}

	return issues
}

func instanceNames(instances []Instance) map[string]bool {
	names := make(map[string]bool, len(instances))
	for _, instance := range instances {
		if instance.Name != "" {
			names[instance.Name] = true
		}
	}
	return names
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}
