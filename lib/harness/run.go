// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/fingerprint"
	"github.com/crucible-foundation/crucible/lib/runner"
	"github.com/crucible-foundation/crucible/lib/store"
)

func (h *harness) runCommand() *cli.Command {
	var taskID, methodID string
	var repeat int
	return &cli.Command{
		Name:    "run",
		Summary: "Execute a task and method pair",
		Description: `Create runs for a stored task and method pair and execute them.

Both instances must already be in the store (task new, method new).
Each run executes in a worker subprocess; the summary line reports
terminal states once every run finishes.`,
		Usage: h.binary + " run --task <id> --method <id> [-n N]",
		Examples: []cli.Example{
			{
				Description: "Execute one pair five times",
				Command:     h.binary + " run --task 8f3e2a109cd04b1c --method 02ad77f0e91b3c55 -n 5",
			},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flags.StringVar(&taskID, "task", "", "task fingerprint")
			flags.StringVar(&methodID, "method", "", "method fingerprint")
			flags.IntVarP(&repeat, "repeat", "n", 1, "number of runs to execute")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if taskID == "" || methodID == "" {
				return fmt.Errorf("both --task and --method are required")
			}
			if repeat < 1 {
				return fmt.Errorf("-n must be at least 1, got %d", repeat)
			}
			task, err := fingerprint.Parse(taskID)
			if err != nil {
				return fmt.Errorf("--task: %w", err)
			}
			method, err := fingerprint.Parse(methodID)
			if err != nil {
				return fmt.Errorf("--method: %w", err)
			}

			records, err := h.openStore()
			if err != nil {
				return err
			}
			defer records.Close()

			// Fail before minting runs when either id is absent.
			if _, err := records.GetRawTask(h.ctx, string(task)); err != nil {
				return err
			}
			if _, err := records.GetRawMethod(h.ctx, string(method)); err != nil {
				return err
			}

			runIDs := make([]string, repeat)
			for index := range repeat {
				run := bench.Run{ID: bench.NewRunID(), Task: task, Method: method}
				if err := records.PutRun(h.ctx, run); err != nil {
					return err
				}
				runIDs[index] = run.ID
			}
			return h.executeRuns(records, runIDs)
		},
	}
}

// executeRuns drives the runner over freshly minted runs and prints
// the outcome tally. Recorded failures exit non-zero without an extra
// error line; the summary already said what happened.
func (h *harness) executeRuns(records *store.Store, runIDs []string) error {
	options, err := h.runnerOptions(records)
	if err != nil {
		return err
	}
	parent, err := runner.New(h.suite, options)
	if err != nil {
		return err
	}
	summary, err := parent.Execute(h.ctx, runIDs)
	if err != nil {
		return err
	}
	fmt.Fprintf(h.stdout, "%d runs: %d done, %d failed, %d pending\n",
		len(runIDs), summary.Done, summary.Failed, summary.Pending)
	if summary.Failed > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}
