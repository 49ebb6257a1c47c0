// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/fingerprint"
	"github.com/crucible-foundation/crucible/lib/store"
)

func (h *harness) runsCommands() *cli.Command {
	return &cli.Command{
		Name:    "runs",
		Summary: "List and remove stored runs",
		Subcommands: []*cli.Command{
			h.listRunsCommand(),
			h.removeRunsCommand(),
		},
	}
}

func (h *harness) listRunsCommand() *cli.Command {
	var status, taskID, methodID string
	var limit int
	return &cli.Command{
		Name:    "ls",
		Summary: "List stored runs",
		Usage:   h.binary + " runs ls [--status <status>] [--task <id>] [--method <id>] [--limit N]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("ls", pflag.ContinueOnError)
			flags.StringVar(&status, "status", "", "filter by status: running, pending, done, failed")
			flags.StringVar(&taskID, "task", "", "filter by task fingerprint")
			flags.StringVar(&methodID, "method", "", "filter by method fingerprint")
			flags.IntVar(&limit, "limit", 0, "maximum rows (0 is unlimited)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			filter, err := buildRunFilter(status, taskID, methodID, limit)
			if err != nil {
				return err
			}

			records, err := h.openStore()
			if err != nil {
				return err
			}
			defer records.Close()
			rows, err := records.ListRawRuns(h.ctx, filter)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintln(h.stderr, "no runs match")
				return nil
			}

			writer := tabwriter.NewWriter(h.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "ID\tTASK\tMETHOD\tSTATUS\tOUTCOME\tUPDATED")
			for _, row := range rows {
				outcome := row.Label
				if outcome == "" {
					outcome = "-"
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
					row.ID, row.Task, row.Method, row.Status, outcome, row.Updated.Format(timeFormat))
			}
			return writer.Flush()
		},
	}
}

func (h *harness) removeRunsCommand() *cli.Command {
	return &cli.Command{
		Name:    "rm",
		Summary: "Remove runs by id",
		Usage:   h.binary + " runs rm <id>...",
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("run id required")
			}
			records, err := h.openStore()
			if err != nil {
				return err
			}
			defer records.Close()
			removed, err := records.DeleteRuns(h.ctx, args)
			if err != nil {
				return err
			}
			fmt.Fprintf(h.stdout, "removed %d of %d runs\n", removed, len(args))
			return nil
		},
	}
}

// buildRunFilter validates the ls flags into a store filter.
func buildRunFilter(status, taskID, methodID string, limit int) (store.RunFilter, error) {
	filter := store.RunFilter{Limit: limit}

	switch bench.Status(status) {
	case "", bench.StatusRunning, bench.StatusPending, bench.StatusDone, bench.StatusFailed:
		filter.Status = bench.Status(status)
	default:
		return filter, fmt.Errorf("unknown status %q (running, pending, done, failed)", status)
	}
	if taskID != "" {
		parsed, err := fingerprint.Parse(taskID)
		if err != nil {
			return filter, fmt.Errorf("--task: %w", err)
		}
		filter.Task = parsed
	}
	if methodID != "" {
		parsed, err := fingerprint.Parse(methodID)
		if err != nil {
			return filter, fmt.Errorf("--method: %w", err)
		}
		filter.Method = parsed
	}
	if limit < 0 {
		return filter, fmt.Errorf("--limit must not be negative, got %d", limit)
	}
	return filter, nil
}
