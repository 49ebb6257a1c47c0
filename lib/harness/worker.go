// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package harness

import (
	"fmt"
	"log/slog"

	"github.com/spf13/pflag"

	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/runner"
	"github.com/crucible-foundation/crucible/lib/store"
)

// workerCommand is the mode the runner spawns this binary in. It is
// hidden from help: users never invoke it, and its stdout is a CBOR
// frame stream rather than anything human readable.
func (h *harness) workerCommand() *cli.Command {
	var storePath string
	var runIDs []string
	return &cli.Command{
		Name:    runner.WorkerCommand,
		Summary: "Execute runs for a parent process",
		Hidden:  true,
		Usage:   h.binary + " " + runner.WorkerCommand + " --store <path> --run <id>...",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet(runner.WorkerCommand, pflag.ContinueOnError)
			flags.StringVar(&storePath, "store", "", "database file the parent opened")
			flags.StringArrayVar(&runIDs, "run", nil, "run id to execute (repeatable)")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if storePath == "" {
				return fmt.Errorf("--store is required")
			}
			if len(runIDs) == 0 {
				return fmt.Errorf("at least one --run is required")
			}

			// The parent names the exact database file; config only
			// contributes the key and pool settings needed to read it.
			key, err := h.config.StoreKey()
			if err != nil {
				return err
			}
			records, err := store.Open(h.suite, store.Options{
				Path:        storePath,
				Compression: h.config.Store.Compression,
				Key:         key,
				PoolSize:    h.config.Store.PoolSize,
				Logger:      h.logger,
			})
			if err != nil {
				return err
			}
			defer records.Close()

			worker := runner.NewWorker(h.suite, records, h.stdout)

			// Route the run handler's logging through the frame
			// stream so the parent can mirror it.
			previous := slog.Default()
			slog.SetDefault(worker.Logger())
			defer slog.SetDefault(previous)

			return worker.Execute(h.ctx, runIDs)
		},
	}
}
