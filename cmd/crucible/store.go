// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/fingerprint"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/store"
)

const timeFormat = "2006-01-02 15:04:05"

// storeConnection manages the flags shared by every command that opens
// a database file: --store for the file itself and --key-file for
// stores written with at-rest encryption. Defaults come from the
// CRUCIBLE_STORE and CRUCIBLE_STORE_KEY environment variables so a
// shell session can point every invocation at one store.
type storeConnection struct {
	Path    string
	KeyFile string
}

func (c *storeConnection) AddFlags(flags *pflag.FlagSet) {
	flags.StringVar(&c.Path, "store", os.Getenv("CRUCIBLE_STORE"), "store database file (default $CRUCIBLE_STORE)")
	flags.StringVar(&c.KeyFile, "key-file", os.Getenv("CRUCIBLE_STORE_KEY"), "hex encryption key file for sealed stores (default $CRUCIBLE_STORE_KEY)")
}

// open opens the store for raw access. No suite is attached, so the
// typed accessors are unavailable; every command here works on raw
// rows. The file must already exist: a typo'd --store should fail,
// not silently create an empty database.
func (c *storeConnection) open(p *program) (*store.Store, error) {
	return c.openStore(p, false)
}

// openCreate also accepts a missing file and creates an empty store.
// Import uses it so an archive can be unpacked on a machine that has
// no store yet.
func (c *storeConnection) openCreate(p *program) (*store.Store, error) {
	return c.openStore(p, true)
}

func (c *storeConnection) openStore(p *program, create bool) (*store.Store, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("no store file: pass --store or set CRUCIBLE_STORE")
	}
	if _, err := os.Stat(c.Path); err != nil && !create {
		return nil, fmt.Errorf("store file %s: %w", c.Path, err)
	}
	key, err := c.key()
	if err != nil {
		return nil, err
	}
	return store.Open(nil, store.Options{
		Path:   c.Path,
		Key:    key,
		Logger: p.logger,
	})
}

// key reads and decodes the encryption key file: 64 hex characters,
// surrounding whitespace ignored.
func (c *storeConnection) key() ([]byte, error) {
	if c.KeyFile == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
	if err != nil {
		return nil, fmt.Errorf("decoding key hex: %w", err)
	}
	if len(key) != store.KeySize {
		return nil, fmt.Errorf("key must be %d bytes (%d hex characters), got %d bytes", store.KeySize, 2*store.KeySize, len(key))
	}
	return key, nil
}

// tableArgument validates the table selector shared by ls and rm.
func tableArgument(args []string) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("table required: tasks, methods, or runs")
	}
	switch args[0] {
	case "tasks", "methods", "runs":
		return args[0], nil
	default:
		return "", fmt.Errorf("unknown table %q (tasks, methods, runs)", args[0])
	}
}

func (p *program) lsCommand() *cli.Command {
	var connection storeConnection
	var status string
	var limit int
	return &cli.Command{
		Name:    "ls",
		Summary: "List records in a table",
		Usage:   "crucible ls <tasks|methods|runs> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("ls", pflag.ContinueOnError)
			connection.AddFlags(flags)
			flags.StringVar(&status, "status", "", "runs only: filter by status (running, pending, done, failed)")
			flags.IntVar(&limit, "limit", 0, "runs only: maximum rows (0 is unlimited)")
			return flags
		},
		Run: func(args []string) error {
			table, err := tableArgument(args)
			if err != nil {
				return err
			}
			if len(args) > 1 {
				return fmt.Errorf("unexpected argument: %s", args[1])
			}

			records, err := connection.open(p)
			if err != nil {
				return err
			}
			defer records.Close()

			if table == "runs" {
				return p.listRuns(records, status, limit)
			}
			return p.listRecords(records, table)
		},
	}
}

func (p *program) listRecords(records *store.Store, table string) error {
	var rows []store.RawRecord
	var err error
	if table == "tasks" {
		rows, err = records.ListRawTasks(p.ctx)
	} else {
		rows, err = records.ListRawMethods(p.ctx)
	}
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(p.stderr, "no %s stored\n", table)
		return nil
	}

	writer := tabwriter.NewWriter(p.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "ID\tTYPE\tCREATED\tPAYLOAD")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\n",
			row.ID, row.Label, row.Created.Format(timeFormat), truncatePayload(row.Payload, 64))
	}
	return writer.Flush()
}

func (p *program) listRuns(records *store.Store, status string, limit int) error {
	filter := store.RunFilter{Limit: limit}
	switch bench.Status(status) {
	case "", bench.StatusRunning, bench.StatusPending, bench.StatusDone, bench.StatusFailed:
		filter.Status = bench.Status(status)
	default:
		return fmt.Errorf("unknown status %q (running, pending, done, failed)", status)
	}
	if limit < 0 {
		return fmt.Errorf("--limit must not be negative, got %d", limit)
	}

	rows, err := records.ListRawRuns(p.ctx, filter)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(p.stderr, "no runs match")
		return nil
	}

	writer := tabwriter.NewWriter(p.stdout, 0, 4, 2, ' ', 0)
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
}

// truncatePayload renders the head of a payload for table listings,
// cut at a rune boundary.
func truncatePayload(payload []byte, width int) string {
	text := string(payload)
	runes := []rune(text)
	if len(runes) <= width {
		return text
	}
	return string(runes[:width-1]) + "…"
}

func (p *program) showCommand() *cli.Command {
	var connection storeConnection
	var canonical bool
	return &cli.Command{
		Name:    "show",
		Summary: "Print one record as JSON",
		Description: `Print a stored record's payload as JSON.

The id is looked up as a task, then a method, then a run. Tasks and
methods print their payload; runs print an envelope with the run row's
fields and the outcome payload under "result".

Output is pretty-printed by default. --canonical prints the canonical
form instead: sorted keys, no insignificant whitespace, the exact
bytes content fingerprints are computed over.`,
		Usage: "crucible show <id> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("show", pflag.ContinueOnError)
			connection.AddFlags(flags)
			flags.BoolVar(&canonical, "canonical", false, "print canonical JSON (fingerprint input form)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) == 0 {
				return fmt.Errorf("record id required")
			}
			if len(args) > 1 {
				return fmt.Errorf("unexpected argument: %s", args[1])
			}

			records, err := connection.open(p)
			if err != nil {
				return err
			}
			defer records.Close()
			return p.showRecord(records, args[0], canonical)
		},
	}
}

// showRecord resolves the id across the three tables and prints the
// record. Runs get an envelope; tasks and methods print their payload
// directly.
func (p *program) showRecord(records *store.Store, id string, canonical bool) error {
	if record, err := records.GetRawTask(p.ctx, id); err == nil {
		return p.printPayload(record.Payload, canonical)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if record, err := records.GetRawMethod(p.ctx, id); err == nil {
		return p.printPayload(record.Payload, canonical)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	run, err := records.GetRawRun(p.ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("no task, method, or run has id %s", id)
		}
		return err
	}
	return p.printRun(run, canonical)
}

func (p *program) printPayload(payload []byte, canonical bool) error {
	value, err := plain.FromJSON(payload)
	if err != nil {
		return fmt.Errorf("stored payload does not parse: %w", err)
	}
	return p.printValue(value, canonical)
}

// printRun assembles the run envelope as a plain value, so both output
// forms come from the same renderer.
func (p *program) printRun(run store.RawRun, canonical bool) error {
	result, err := plain.FromJSON(run.Result)
	if err != nil {
		return fmt.Errorf("stored result does not parse: %w", err)
	}
	envelope := map[string]plain.Value{
		"id":         run.ID,
		"task":       run.Task,
		"method":     run.Method,
		"status":     run.Status,
		"created_at": run.Created.UTC().Format(timeFormat),
		"updated_at": run.Updated.UTC().Format(timeFormat),
		"result":     result,
	}
	if run.Label != "" {
		envelope["type"] = run.Label
	}
	return p.printValue(envelope, canonical)
}

func (p *program) printValue(value plain.Value, canonical bool) error {
	var text []byte
	var err error
	if canonical {
		text, err = plain.Canonical(value)
	} else {
		text, err = plain.ToJSONIndent(value)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(p.stdout, string(text))
	return nil
}

func (p *program) rmCommand() *cli.Command {
	var connection storeConnection
	return &cli.Command{
		Name:    "rm",
		Summary: "Remove records by id",
		Description: `Remove records from a table by id.

Unknown ids are ignored; the count reports how many rows actually
went away. Removing a task or method does not touch runs that
reference it — those runs keep their fingerprint columns and simply
no longer resolve.`,
		Usage: "crucible rm <tasks|methods|runs> <id>... [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("rm", pflag.ContinueOnError)
			connection.AddFlags(flags)
			return flags
		},
		Run: func(args []string) error {
			table, err := tableArgument(args)
			if err != nil {
				return err
			}
			ids := args[1:]
			if len(ids) == 0 {
				return fmt.Errorf("at least one id required")
			}

			records, err := connection.open(p)
			if err != nil {
				return err
			}
			defer records.Close()

			var removed int
			switch table {
			case "tasks":
				removed, err = records.DeleteTasks(p.ctx, ids)
			case "methods":
				removed, err = records.DeleteMethods(p.ctx, ids)
			case "runs":
				removed, err = records.DeleteRuns(p.ctx, ids)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(p.stdout, "removed %d of %d %s\n", removed, len(ids), table)
			return nil
		},
	}
}

func (p *program) statsCommand() *cli.Command {
	var connection storeConnection
	return &cli.Command{
		Name:    "stats",
		Summary: "Print record counts and database size",
		Usage:   "crucible stats [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("stats", pflag.ContinueOnError)
			connection.AddFlags(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}

			records, err := connection.open(p)
			if err != nil {
				return err
			}
			defer records.Close()

			stats, err := records.Stats(p.ctx)
			if err != nil {
				return err
			}

			writer := tabwriter.NewWriter(p.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(writer, "tasks\t%d\n", stats.Tasks)
			fmt.Fprintf(writer, "methods\t%d\n", stats.Methods)
			fmt.Fprintf(writer, "runs\t%d\n", stats.Runs)
			for _, status := range []bench.Status{bench.StatusPending, bench.StatusRunning, bench.StatusDone, bench.StatusFailed} {
				if count := stats.ByStatus[status]; count > 0 {
					fmt.Fprintf(writer, "  %s\t%d\n", status, count)
				}
			}
			fmt.Fprintf(writer, "database\t%s\n", formatSize(stats.DatabaseSizeBytes))
			return writer.Flush()
		},
	}
}

// formatSize renders a byte count for humans.
func formatSize(bytes int64) string {
	switch {
	case bytes >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(bytes)/float64(1<<30))
	case bytes >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(bytes)/float64(1<<20))
	case bytes >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// fingerprintList validates repeated fingerprint flags.
func fingerprintList(flagName string, values []string) ([]string, error) {
	for _, value := range values {
		if _, err := fingerprint.Parse(value); err != nil {
			return nil, fmt.Errorf("--%s: %w", flagName, err)
		}
	}
	return values, nil
}
