// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package harness turns a suite definition into a complete command
// line binary. A suite binary's main function is two lines:
//
//	suite := newRootFindingSuite()
//	harness.Main(suite, harness.Options{})
//
// Main wires the suite to the full command surface: creating and
// listing task and method instances, executing runs directly or from
// plan files, browsing results in the terminal dashboard, and the
// hidden worker mode the runner spawns for subprocess execution.
//
// Two flags are global and accepted anywhere on the command line:
// --log-level selects the stderr log level, and --config points at a
// YAML config file (overriding the CRUCIBLE_CONFIG environment
// variable). Everything else is per-command.
package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/cli"
	"github.com/crucible-foundation/crucible/lib/config"
	"github.com/crucible-foundation/crucible/lib/runner"
	"github.com/crucible-foundation/crucible/lib/store"
	"github.com/crucible-foundation/crucible/lib/version"
)

// Options configures the generated binary.
type Options struct {
	// Description is shown in the root help output, before the
	// command listing. Empty uses a generic line naming the suite.
	Description string
}

// Main runs the suite binary and exits the process. It is the last
// call in a suite's main function.
func Main(suite *bench.Suite, options Options) {
	os.Exit(run(suite, options, os.Args, os.Stdout, os.Stderr))
}

// run is Main without the process exit, returning the exit code
// instead so tests can drive the full command surface in-process.
func run(suite *bench.Suite, options Options, argv []string, stdout, stderr io.Writer) int {
	args, level, configPath, err := splitGlobalFlags(argv[1:])
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	logger := cli.NewLogger(level)

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "error: invalid configuration: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := &harness{
		suite:  suite,
		config: cfg,
		logger: logger,
		ctx:    ctx,
		stdout: stdout,
		stderr: stderr,
		binary: filepath.Base(argv[0]),
	}

	if err := h.root(options).Execute(args); err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			return coder.ExitCode()
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig resolves the configuration for this invocation. A --config
// flag wins over the CRUCIBLE_CONFIG environment variable; when the
// flag is used, the variable is set to match so that worker
// subprocesses (which re-execute this binary without the flag) load
// the same file.
func loadConfig(configPath string) (*config.Config, error) {
	if configPath == "" {
		return config.Load()
	}
	if err := os.Setenv("CRUCIBLE_CONFIG", configPath); err != nil {
		return nil, fmt.Errorf("setting CRUCIBLE_CONFIG: %w", err)
	}
	return config.LoadFile(configPath)
}

// splitGlobalFlags extracts --log-level and --config from anywhere in
// the argument list, returning the remaining arguments untouched. The
// two flags apply before command dispatch (the logger and config feed
// every command), so they cannot live in per-command flag sets.
func splitGlobalFlags(args []string) (rest []string, level slog.Level, configPath string, err error) {
	level = slog.LevelInfo
	for index := 0; index < len(args); index++ {
		arg := args[index]
		switch {
		case arg == "--log-level":
			if index+1 >= len(args) {
				return nil, 0, "", fmt.Errorf("flag --log-level needs a value")
			}
			index++
			level, err = cli.ParseLevel(args[index])
			if err != nil {
				return nil, 0, "", err
			}
		case strings.HasPrefix(arg, "--log-level="):
			level, err = cli.ParseLevel(strings.TrimPrefix(arg, "--log-level="))
			if err != nil {
				return nil, 0, "", err
			}
		case arg == "--config":
			if index+1 >= len(args) {
				return nil, 0, "", fmt.Errorf("flag --config needs a value")
			}
			index++
			configPath = args[index]
		case strings.HasPrefix(arg, "--config="):
			configPath = strings.TrimPrefix(arg, "--config=")
		default:
			rest = append(rest, arg)
		}
	}
	return rest, level, configPath, nil
}

// harness carries the state every command shares: the suite under
// service, the loaded configuration, and the invocation's logger,
// context, and output streams.
type harness struct {
	suite  *bench.Suite
	config *config.Config
	logger *slog.Logger
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	binary string
}

func (h *harness) root(options Options) *cli.Command {
	description := options.Description
	if description == "" {
		description = fmt.Sprintf("Command line harness for the %s benchmark suite.", h.suite.Name())
	}
	description += `

Global flags, accepted anywhere on the command line:
  --log-level <level>   stderr log level: debug, info, warn, error (default info)
  --config <file>       YAML config file (overrides CRUCIBLE_CONFIG)`

	return &cli.Command{
		Name:        h.binary,
		Summary:     fmt.Sprintf("Benchmark harness for the %s suite", h.suite.Name()),
		Description: description,
		Subcommands: []*cli.Command{
			h.taskCommands(),
			h.methodCommands(),
			h.runCommand(),
			h.planCommand(),
			h.runsCommands(),
			h.dashCommand(),
			h.validateCommand(),
			h.workerCommand(),
			h.versionCommand(),
		},
	}
}

// databasePath resolves the store file for this suite.
func (h *harness) databasePath() string {
	return h.config.DatabasePath(h.suite.Name())
}

// openStore opens this suite's store, creating directories and the
// database file on first use. Callers own the returned handle and
// must Close it.
func (h *harness) openStore() (*store.Store, error) {
	if err := h.config.EnsurePaths(); err != nil {
		return nil, err
	}
	key, err := h.config.StoreKey()
	if err != nil {
		return nil, err
	}
	return store.Open(h.suite, store.Options{
		Path:        h.databasePath(),
		Compression: h.config.Store.Compression,
		Key:         key,
		PoolSize:    h.config.Store.PoolSize,
		Logger:      h.logger,
	})
}

// runnerOptions assembles runner options from the configuration. A
// parallelism of zero in the config means one worker per CPU; the
// runner itself treats the field literally, so the expansion happens
// here at the policy layer.
func (h *harness) runnerOptions(records *store.Store) (runner.Options, error) {
	workerBinary, err := h.config.WorkerBinary()
	if err != nil {
		return runner.Options{}, err
	}
	parallelism := h.config.Runner.Parallelism
	if parallelism < 1 {
		parallelism = runtime.NumCPU()
	}
	return runner.Options{
		Store:        records,
		StorePath:    h.databasePath(),
		WorkerBinary: workerBinary,
		Parallelism:  parallelism,
		Timeout:      h.config.RunTimeout(),
		Logger:       h.logger,
	}, nil
}

func (h *harness) versionCommand() *cli.Command {
	var full bool
	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   h.binary + " version [--full]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("version", pflag.ContinueOnError)
			flags.BoolVar(&full, "full", false, "include Go runtime and platform details")
			return flags
		},
		Run: func(args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument: %s", args[0])
			}
			if full {
				fmt.Fprintln(h.stdout, version.Full())
				return nil
			}
			fmt.Fprintf(h.stdout, "%s %s\n", h.binary, version.Info())
			return nil
		},
	}
}
