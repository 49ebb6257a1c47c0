// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/family"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/shape"
	"github.com/crucible-foundation/crucible/lib/store"
)

func (h *harness) validateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Summary: "Check registered kinds and stored rows",
		Description: `Check every registered kind and every stored row.

For each registered task, method, and outcome kind, the derived wire
shape is printed as a field table. When a store exists, every stored
row is decoded through the current registries; rows written by an
older binary whose types have since changed are reported here rather
than failing mid-run.

Exits non-zero when anything fails to derive or decode.`,
		Usage: h.binary + " validate",
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			problems := h.validateKinds()
			problems = append(problems, h.validateStore()...)
			if len(problems) > 0 {
				for _, problem := range problems {
					fmt.Fprintln(h.stderr, problem)
				}
				fmt.Fprintf(h.stderr, "validate: %d problems\n", len(problems))
				return &cli.ExitError{Code: 1}
			}
			return nil
		},
	}
}

// validateKinds prints the wire surface of every registered kind and
// returns derivation problems.
func (h *harness) validateKinds() []string {
	var problems []string
	writer := tabwriter.NewWriter(h.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "FAMILY\tKIND\tFIELD\tSHAPE\tSPEC")

	problems = append(problems, describeFamily(writer, h.suite.Index(), h.suite.Tasks())...)
	problems = append(problems, describeFamily(writer, h.suite.Index(), h.suite.Methods())...)
	problems = append(problems, describeFamily(writer, h.suite.Index(), h.suite.Outcomes())...)

	writer.Flush()
	return problems
}

// describeFamily emits one table row per field of every kind in the
// family. Kinds without a field list (maps, hand-written codecs) get
// a single row describing the whole shape.
func describeFamily[T any](writer *tabwriter.Writer, index *shape.Index, registry *family.Registry[T]) []string {
	var problems []string
	for _, label := range registry.Labels() {
		concrete, err := registry.Resolve(label)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s/%s: %v", registry.Name(), label, err))
			continue
		}
		derived, err := index.Of(concrete)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s/%s: %v", registry.Name(), label, err))
			continue
		}

		composite, isComposite := derived.(*shape.Composite)
		if !isComposite {
			fmt.Fprintf(writer, "%s\t%s\t-\t%s\t-\n", registry.Name(), label, derived)
			continue
		}
		if composite.Custom() {
			fmt.Fprintf(writer, "%s\t%s\t-\t%s\thand-written codec\n", registry.Name(), label, derived)
			continue
		}
		if len(composite.Fields) == 0 {
			fmt.Fprintf(writer, "%s\t%s\t-\t%s\tno fields\n", registry.Name(), label, derived)
			continue
		}
		for _, field := range composite.Fields {
			fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
				registry.Name(), label, field.Name, field.Shape, fieldSpec(field))
		}
	}
	return problems
}

// fieldSpec renders the decode contract of one field.
func fieldSpec(field shape.Field) string {
	spec := "required"
	if field.HasDefault {
		rendered, err := plain.ToJSON(field.Default)
		if err != nil {
			spec = "default (unrenderable)"
		} else {
			spec = "default " + string(rendered)
		}
	}
	if len(field.Choices) > 0 {
		rendered := make([]string, len(field.Choices))
		for index, choice := range field.Choices {
			rendered[index] = fmt.Sprintf("%v", choice)
		}
		spec += ", choices: " + strings.Join(rendered, ", ")
	}
	return spec
}

// validateStore decodes every stored row through the current
// registries. A missing database file is fine; validate then only
// covers registration.
func (h *harness) validateStore() []string {
	if _, err := os.Stat(h.databasePath()); err != nil {
		fmt.Fprintf(h.stderr, "no store at %s, skipping row checks\n", h.databasePath())
		return nil
	}
	records, err := h.openStore()
	if err != nil {
		return []string{fmt.Sprintf("store: %v", err)}
	}
	defer records.Close()

	var problems []string
	tasks, taskProblems := sweepRecords(h.ctx, records, h.suite.Tasks(), "task",
		(*store.Store).ListRawTasks)
	problems = append(problems, taskProblems...)
	methods, methodProblems := sweepRecords(h.ctx, records, h.suite.Methods(), "method",
		(*store.Store).ListRawMethods)
	problems = append(problems, methodProblems...)
	runs, runProblems := h.sweepRuns(records)
	problems = append(problems, runProblems...)

	if len(problems) == 0 {
		fmt.Fprintf(h.stdout, "store: %d tasks, %d methods, %d runs decode cleanly\n", tasks, methods, runs)
	}
	return problems
}

// sweepRecords decodes one table row by row so every broken row is
// reported, not just the first.
func sweepRecords[T any](ctx context.Context, records *store.Store, registry *family.Registry[T], noun string,
	list func(*store.Store, context.Context) ([]store.RawRecord, error)) (int, []string) {
	rows, err := list(records, ctx)
	if err != nil {
		return 0, []string{fmt.Sprintf("listing %ss: %v", noun, err)}
	}
	var problems []string
	for _, row := range rows {
		if err := decodeRaw(registry, row.Label, row.Payload); err != nil {
			problems = append(problems, fmt.Sprintf("%s %s: %v", noun, row.ID, err))
		}
	}
	return len(rows), problems
}

// sweepRuns decodes every recorded outcome. Rows without an outcome
// (still running) have nothing to decode.
func (h *harness) sweepRuns(records *store.Store) (int, []string) {
	rows, err := records.ListRawRuns(h.ctx, store.RunFilter{})
	if err != nil {
		return 0, []string{fmt.Sprintf("listing runs: %v", err)}
	}
	var problems []string
	for _, row := range rows {
		if row.Label == "" {
			continue
		}
		if err := decodeRaw(h.suite.Outcomes(), row.Label, row.Result); err != nil {
			problems = append(problems, fmt.Sprintf("run %s: %v", row.ID, err))
		}
	}
	return len(rows), problems
}

func decodeRaw[T any](registry *family.Registry[T], label string, payload []byte) error {
	parsed, err := plain.FromJSON(payload)
	if err != nil {
		return err
	}
	_, err = registry.Decode(label, parsed)
	return err
}
