// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package plan

import "fmt"

// RunPair is one concrete run to create: indexes into the plan's task
// and method declarations. Expand emits one pair per repetition, so
// callers create exactly one run row per pair. Pairs carry indexes
// rather than Instance copies so callers can join them with whatever
// they derived from the declarations (decoded values, store ids).
type RunPair struct {
	Task   int
	Method int
}

// Expand resolves every run request into task and method declaration
// pairs, repeated per the request count. Selector resolution follows
// Validate's rules; plans that passed Validate expand without error.
func (plan *Plan) Expand() ([]RunPair, error) {
	var pairs []RunPair
	for index, request := range plan.Runs {
		tasks, err := selectIndexes(plan.Tasks, request.Task, "task")
		if err != nil {
			return nil, fmt.Errorf("runs[%d]: %w", index, err)
		}
		methods, err := selectIndexes(plan.Methods, request.Method, "method")
		if err != nil {
			return nil, fmt.Errorf("runs[%d]: %w", index, err)
		}

		count := request.Count
		if count <= 0 {
			count = 1
		}

		for _, taskIndex := range tasks {
			for _, methodIndex := range methods {
				for repetition := 0; repetition < count; repetition++ {
					pairs = append(pairs, RunPair{Task: taskIndex, Method: methodIndex})
				}
			}
		}
	}
	return pairs, nil
}

// selectIndexes resolves one selector against a declaration section.
// An empty selector matches the whole section.
func selectIndexes(declared []Instance, name, noun string) ([]int, error) {
	if name == "" {
		if len(declared) == 0 {
			return nil, fmt.Errorf("no %ss declared for the empty selector to match", noun)
		}
		indexes := make([]int, len(declared))
		for i := range declared {
			indexes[i] = i
		}
		return indexes, nil
	}
	for i, instance := range declared {
		if instance.Name == name {
			return []int{i}, nil
		}
	}
	return nil, fmt.Errorf("%s %q is not declared in the plan", noun, name)
}
