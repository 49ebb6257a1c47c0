// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"context"
	"fmt"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/family"
	"github.com/crucible-foundation/crucible/lib/fingerprint"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/plan"
	"github.com/crucible-foundation/crucible/lib/store"
)

func (h *harness) planCommand() *cli.Command {
	return &cli.Command{
		Name:    "plan",
		Summary: "Execute a plan file",
		Description: `Execute every run a plan file declares.

The plan's task and method instances are decoded through the suite's
registries, stored, expanded into run combinations, and executed.
Validation issues are reported before anything is written.`,
		Usage: h.binary + " plan <file>",
		Examples: []cli.Example{
			{
				Description: "Execute a nightly sweep",
				Command:     h.binary + " plan plans/nightly-sweep.jsonc",
			},
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("plan takes exactly one file argument")
			}
			return h.executePlan(args[0])
		},
	}
}

func (h *harness) executePlan(path string) error {
	parsed, err := plan.ReadFile(path)
	if err != nil {
		return err
	}
	if issues := parsed.Validate(); len(issues) > 0 {
		for _, issue := range issues {
			fmt.Fprintln(h.stderr, issue)
		}
		return fmt.Errorf("plan %s: %d validation issues", plan.NameFromPath(path), len(issues))
	}
	if parsed.Suite != "" && parsed.Suite != h.suite.Name() {
		return fmt.Errorf("plan is for suite %q, this binary serves suite %q", parsed.Suite, h.suite.Name())
	}

	tasks, err := decodeInstances(h.suite.Tasks(), parsed.Tasks, "tasks")
	if err != nil {
		return err
	}
	methods, err := decodeInstances(h.suite.Methods(), parsed.Methods, "methods")
	if err != nil {
		return err
	}
	pairs, err := parsed.Expand()
	if err != nil {
		return err
	}

	records, err := h.openStore()
	if err != nil {
		return err
	}
	defer records.Close()

	taskIDs, err := putAll(h, records, tasks, (*store.Store).PutTask)
	if err != nil {
		return err
	}
	methodIDs, err := putAll(h, records, methods, (*store.Store).PutMethod)
	if err != nil {
		return err
	}

	runIDs := make([]string, len(pairs))
	for index, pair := range pairs {
		run := bench.Run{
			ID:     bench.NewRunID(),
			Task:   taskIDs[pair.Task],
			Method: methodIDs[pair.Method],
		}
		if err := records.PutRun(h.ctx, run); err != nil {
			return err
		}
		runIDs[index] = run.ID
	}

	h.logger.Info("executing plan",
		"plan", plan.NameFromPath(path),
		"tasks", len(tasks),
		"methods", len(methods),
		"runs", len(runIDs))
	return h.executeRuns(records, runIDs)
}

// decodeInstances turns one plan section into typed values, in
// declaration order so run pair indexes line up.
func decodeInstances[T any](registry *family.Registry[T], declared []plan.Instance, section string) ([]T, error) {
	values := make([]T, len(declared))
	for index, instance := range declared {
		payload := plain.Value(map[string]plain.Value{})
		if len(instance.Fields) > 0 {
			parsed, err := plain.FromJSON(instance.Fields)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", section, index, err)
			}
			payload = parsed
		}
		value, err := registry.Decode(instance.Kind, payload)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", section, index, err)
		}
		values[index] = value
	}
	return values, nil
}

// putAll stores a slice of decoded instances and returns their
// fingerprints, aligned by index.
func putAll[T any](h *harness, records *store.Store, values []T, put func(*store.Store, context.Context, T) (fingerprint.ID, error)) ([]fingerprint.ID, error) {
	ids := make([]fingerprint.ID, len(values))
	for index, value := range values {
		id, err := put(records, h.ctx, value)
		if err != nil {
			return nil, err
		}
		ids[index] = id
	}
	return ids, nil
}
