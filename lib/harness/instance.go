// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/family"
	"github.com/crucible-foundation/crucible/lib/fingerprint"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/store"
)

// timeFormat renders stored timestamps in listings.
const timeFormat = "2006-01-02 15:04:05"

// instanceSet abstracts the task and method halves of the suite and
// the store, so one implementation serves both command trees.
type instanceSet[T any] struct {
	noun     string
	registry *family.Registry[T]
	put      func(context.Context, *store.Store, T) (fingerprint.ID, error)
	listRaw  func(context.Context, *store.Store) ([]store.RawRecord, error)
	getRaw   func(context.Context, *store.Store, string) (store.RawRecord, error)
}

func (h *harness) taskCommands() *cli.Command {
	return instanceCommands(h, instanceSet[bench.Task]{
		noun:     "task",
		registry: h.suite.Tasks(),
		put: func(ctx context.Context, records *store.Store, value bench.Task) (fingerprint.ID, error) {
			return records.PutTask(ctx, value)
		},
		listRaw: func(ctx context.Context, records *store.Store) ([]store.RawRecord, error) {
			return records.ListRawTasks(ctx)
		},
		getRaw: func(ctx context.Context, records *store.Store, id string) (store.RawRecord, error) {
			return records.GetRawTask(ctx, id)
		},
	})
}

func (h *harness) methodCommands() *cli.Command {
	return instanceCommands(h, instanceSet[bench.Method]{
		noun:     "method",
		registry: h.suite.Methods(),
		put: func(ctx context.Context, records *store.Store, value bench.Method) (fingerprint.ID, error) {
			return records.PutMethod(ctx, value)
		},
		listRaw: func(ctx context.Context, records *store.Store) ([]store.RawRecord, error) {
			return records.ListRawMethods(ctx)
		},
		getRaw: func(ctx context.Context, records *store.Store, id string) (store.RawRecord, error) {
			return records.GetRawMethod(ctx, id)
		},
	})
}

func instanceCommands[T any](h *harness, set instanceSet[T]) *cli.Command {
	return &cli.Command{
		Name:    set.noun,
		Summary: fmt.Sprintf("Create and inspect %s instances", set.noun),
		Subcommands: []*cli.Command{
			newInstanceCommand(h, set),
			listInstancesCommand(h, set),
			showInstanceCommand(h, set),
		},
	}
}

func newInstanceCommand[T any](h *harness, set instanceSet[T]) *cli.Command {
	return &cli.Command{
		Name:    "new",
		Summary: fmt.Sprintf("Create a %s and print its fingerprint", set.noun),
		Description: fmt.Sprintf(`Construct a %s instance from field assignments and store it.

Fields take their declared defaults when omitted. Scalar fields take
the value verbatim; duration fields take Go duration strings (30s,
5m); list, map, and nested fields take JSON. A field declaring
choices only accepts one of them.

Storage is content-addressed: creating the same %s twice prints the
same fingerprint and writes one row.`, set.noun, set.noun),
		Usage: fmt.Sprintf("%s %s new <kind> [field=value...]", h.binary, set.noun),
		Examples: []cli.Example{
			{
				Description: fmt.Sprintf("Create a %s with two fields set", set.noun),
				Command:     fmt.Sprintf("%s %s new <kind> alpha=1.5 mode=fast", h.binary, set.noun),
			},
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("%s kind required (registered: %s)", set.noun, strings.Join(set.registry.Labels(), ", "))
			}
			value, err := newInstance(h.suite.Index(), set.registry, args[0], args[1:])
			if err != nil {
				return err
			}
			records, err := h.openStore()
			if err != nil {
				return err
			}
			defer records.Close()
			id, err := set.put(h.ctx, records, value)
			if err != nil {
				return err
			}
			fmt.Fprintln(h.stdout, id)
			return nil
		},
	}
}

func listInstancesCommand[T any](h *harness, set instanceSet[T]) *cli.Command {
	return &cli.Command{
		Name:    "ls",
		Summary: fmt.Sprintf("List stored %ss", set.noun),
		Usage:   fmt.Sprintf("%s %s ls", h.binary, set.noun),
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			records, err := h.openStore()
			if err != nil {
				return err
			}
			defer records.Close()
			rows, err := set.listRaw(h.ctx, records)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Fprintf(h.stderr, "no %ss stored\n", set.noun)
				return nil
			}
			writer := tabwriter.NewWriter(h.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(writer, "ID\tKIND\tCREATED\tFIELDS")
			for _, row := range rows {
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
					row.ID, row.Label, row.Created.Format(timeFormat), truncate(string(row.Payload), 64))
			}
			return writer.Flush()
		},
	}
}

func showInstanceCommand[T any](h *harness, set instanceSet[T]) *cli.Command {
	return &cli.Command{
		Name:    "show",
		Summary: fmt.Sprintf("Show one %s in full", set.noun),
		Usage:   fmt.Sprintf("%s %s show <id>", h.binary, set.noun),
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("%s id required", set.noun)
			}
			records, err := h.openStore()
			if err != nil {
				return err
			}
			defer records.Close()
			row, err := set.getRaw(h.ctx, records, args[0])
			if err != nil {
				return err
			}
			payload, err := plain.FromJSON(row.Payload)
			if err != nil {
				return err
			}
			pretty, err := plain.ToJSONIndent(payload)
			if err != nil {
				return err
			}
			fmt.Fprintf(h.stdout, "id:      %s\nkind:    %s\ncreated: %s\nfields:  %s\n",
				row.ID, row.Label, row.Created.Format(timeFormat), pretty)
			return nil
		},
	}
}

// truncate caps a table cell so one long payload does not widen the
// whole column.
func truncate(text string, width int) string {
	if len(text) <= width {
		return text
	}
	return text[:width-3] + "..."
}
