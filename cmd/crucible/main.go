// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// The crucible binary is suite-agnostic store tooling. It opens any
// store database file directly and works on raw rows — without the
// suite's registries a payload cannot be decoded into Go types, so
// everything here lists, prints, moves, and deletes records by id and
// surfaces type labels verbatim.
//
// Suite-aware operations (creating instances, executing runs, the
// dashboard) live in the suite's own binary, built on lib/harness.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/version"
)

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

func run(argv []string, stdout, stderr io.Writer) int {
	args, level, err := splitLogLevel(argv[1:])
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p := &program{
		ctx:    ctx,
		logger: cli.NewLogger(level),
		stdout: stdout,
		stderr: stderr,
	}

	if err := p.root().Execute(args); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			return coder.ExitCode()
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// splitLogLevel extracts --log-level from anywhere in the argument
// list. It applies before command dispatch (the logger feeds every
// command), so it cannot live in the per-command flag sets.
func splitLogLevel(args []string) (rest []string, level slog.Level, err error) {
	level = slog.LevelInfo
	for index := 0; index < len(args); index++ {
		switch arg := args[index]; {
		case arg == "--log-level":
			if index+1 >= len(args) {
				return nil, 0, fmt.Errorf("flag --log-level needs a value")
			}
			index++
			level, err = cli.ParseLevel(args[index])
			if err != nil {
				return nil, 0, err
			}
		case strings.HasPrefix(arg, "--log-level="):
			level, err = cli.ParseLevel(strings.TrimPrefix(arg, "--log-level="))
			if err != nil {
				return nil, 0, err
			}
		default:
			rest = append(rest, arg)
		}
	}
	return rest, level, nil
}

// program carries the state every command shares.
type program struct {
	ctx    context.Context
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func (p *program) root() *cli.Command {
	return &cli.Command{
		Name:    "crucible",
		Summary: "Inspect and manage benchmark store files",
		Description: `Crucible store tooling.

Operates directly on store database files, independent of the suite
that wrote them. Records print as their stored JSON; labels are shown
verbatim. Commands take the database from --store or the
CRUCIBLE_STORE environment variable.

The global --log-level flag (debug, info, warn, error) is accepted
anywhere on the command line.`,
		Subcommands: []*cli.Command{
			p.lsCommand(),
			p.showCommand(),
			p.rmCommand(),
			p.statsCommand(),
			p.exportCommand(),
			p.importCommand(),
			p.keygenCommand(),
			p.mountCommand(),
			p.versionCommand(),
		},
		Examples: []cli.Example{
			{
				Description: "List the runs of a suite's store",
				Command:     "crucible ls runs --store .crucible/root-finding.db",
			},
			{
				Description: "Print one record as pretty JSON",
				Command:     "crucible show 9f8a7b6c5d4e3f2a --store .crucible/root-finding.db",
			},
			{
				Description: "Export completed runs to a sealed bundle",
				Command:     "crucible export results.tar.zst --status done --recipient age1... --store .crucible/root-finding.db",
			},
		},
	}
}

func (p *program) versionCommand() *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "crucible version",
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			fmt.Fprintf(p.stdout, "crucible %s\n", version.Info())
			return nil
		},
	}
}
