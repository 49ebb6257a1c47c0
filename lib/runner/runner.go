// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package runner executes benchmark runs in worker subprocesses.
//
// The parent (Runner) partitions run ids across a bounded pool of
// workers, spawning each as `<binary> worker --store <path> --run
// <id>...`. A worker re-opens the store, executes its runs through
// the suite's handler, and streams CBOR-encoded frames over stdout:
// hello, then run_started / log / run_finished per run. The parent is
// the only writer of outcomes; it consumes frames, mirrors worker
// logs into its own logger, records outcomes, and enforces the
// per-run timeout by killing the worker's process group. A worker
// that dies without finishing its batch has its unfinished runs
// marked failed, and a timed-out worker is replaced by a fresh one
// for the remainder of its batch.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/store"
)

// WorkerCommand is the argv[1] subcommand workers are spawned with.
// The harness registers a hidden command under this name that opens
// the store and calls Worker.Execute.
const WorkerCommand = "worker"

// Options configures a Runner.
type Options struct {
	// Store records outcomes. Required.
	Store *store.Store

	// StorePath is the database path handed to workers so they can
	// re-open the store themselves. Required.
	StorePath string

	// WorkerBinary is the executable to spawn. Empty means the
	// current executable, which is the normal arrangement: the suite
	// binary spawns itself with the worker subcommand.
	WorkerBinary string

	// Parallelism is the number of concurrent workers. Values below 1
	// mean 1.
	Parallelism int

	// Timeout bounds a single run, measured from its run_started
	// frame to its run_finished frame. On expiry the worker's process
	// group is killed and the run is marked failed. Zero means no
	// limit.
	Timeout time.Duration

	// Logger receives runner progress and mirrored worker logs. nil
	// discards.
	Logger *slog.Logger
}

// Summary tallies the terminal states of an Execute call.
type Summary struct {
	// Done counts runs that produced a result.
	Done int

	// Failed counts runs that failed: handler errors, timeouts, and
	// runs lost to a worker crash.
	Failed int

	// Pending counts runs whose handler returned a resumption token;
	// they await a later poll.
	Pending int
}

// Runner supervises worker subprocesses executing runs.
type Runner struct {
	suite        *bench.Suite
	records      *store.Store
	storePath    string
	workerBinary string
	parallelism  int
	timeout      time.Duration
	logger       *slog.Logger
}

// New validates options and returns a runner for the suite.
func New(suite *bench.Suite, options Options) (*Runner, error) {
	if suite == nil {
		return nil, errors.New("runner: suite is required")
	}
	if options.Store == nil {
		return nil, errors.New("runner: store is required")
	}
	if options.StorePath == "" {
		return nil, errors.New("runner: store path is required")
	}
	workerBinary := options.WorkerBinary
	if workerBinary == "" {
		executable, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("runner: resolving worker binary: %w", err)
		}
		workerBinary = executable
	}
	parallelism := options.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{
		suite:        suite,
		records:      options.Store,
		storePath:    options.StorePath,
		workerBinary: workerBinary,
		parallelism:  parallelism,
		timeout:      options.Timeout,
		logger:       logger,
	}, nil
}

// Execute runs the given run ids to completion and reports the tally.
// Ids are partitioned into contiguous batches, one per worker. A
// returned error means supervision itself broke (context canceled,
// store unwritable); worker crashes and timeouts are not errors, they
// surface as failed runs in the summary.
func (runner *Runner) Execute(ctx context.Context, runIDs []string) (Summary, error) {
	if len(runIDs) == 0 {
		return Summary{}, nil
	}
	width := runner.parallelism
	if width > len(runIDs) {
		width = len(runIDs)
	}

	summaries := make([]Summary, width)
	errs := make([]error, width)
	var group sync.WaitGroup
	for index := range width {
		start := index * len(runIDs) / width
		end := (index + 1) * len(runIDs) / width
		group.Add(1)
		go func() {
			defer group.Done()
			errs[index] = runner.runBatch(ctx, runIDs[start:end], &summaries[index])
		}()
	}
	group.Wait()

	var total Summary
	for _, summary := range summaries {
		total.Done += summary.Done
		total.Failed += summary.Failed
		total.Pending += summary.Pending
	}
	return total, errors.Join(errs...)
}

// batchProgress reports how far a single worker got through its batch
// before exiting.
type batchProgress struct {
	// finished is the number of leading runs the worker completed
	// (including a timed-out run, which the parent marks failed).
	finished int

	// timedOut reports that the worker was killed for exceeding the
	// run timeout and a replacement should pick up the rest.
	timedOut bool
}

// runBatch drives one batch to completion, respawning workers after
// timeouts. A worker that exits without finishing gets its remaining
// runs marked failed rather than retried: a crash is likely
// deterministic (a panicking handler would crash the replacement on
// the same run), so the batch records what happened and moves on.
func (runner *Runner) runBatch(ctx context.Context, batch []string, summary *Summary) error {
	remaining := batch
	for len(remaining) > 0 {
		progress, err := runner.superviseWorker(ctx, remaining, summary)
		remaining = remaining[progress.finished:]
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			runner.logger.Error("worker lost", "error", err, "unfinished", len(remaining))
			runner.failRemaining(ctx, remaining, fmt.Sprintf("worker exited without finishing: %v", err), summary)
			return nil
		}
		if progress.timedOut && len(remaining) > 0 {
			runner.logger.Info("respawning worker after timeout", "remaining", len(remaining))
		}
	}
	return nil
}

// superviseWorker spawns one worker for the batch and consumes its
// frame stream, recording outcomes as they arrive. It returns how far
// the worker got. The error is nil when the worker finished its whole
// batch or was killed for a timeout; anything else (crash, protocol
// violation, unwritable store) is returned for runBatch to handle.
func (runner *Runner) superviseWorker(ctx context.Context, batch []string, summary *Summary) (batchProgress, error) {
	var progress batchProgress

	command := exec.CommandContext(ctx, runner.workerBinary, workerArgs(runner.storePath, batch)...)
	// Workers get their own process group so a kill reaches anything
	// the run handler spawned, not just the worker itself.
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	command.Cancel = func() error {
		return syscall.Kill(-command.Process.Pid, syscall.SIGKILL)
	}
	command.Stderr = &lineWriter{logger: runner.logger}
	stdout, err := command.StdoutPipe()
	if err != nil {
		return progress, fmt.Errorf("runner: opening worker stdout: %w", err)
	}
	if err := command.Start(); err != nil {
		return progress, fmt.Errorf("runner: starting worker: %w", err)
	}
	runner.logger.Debug("worker started", "pid", command.Process.Pid, "runs", len(batch))

	frames := make(chan Frame)
	decodeErr := make(chan error, 1)
	go func() {
		defer close(frames)
		decoder := newFrameDecoder(stdout)
		for {
			var frame Frame
			if err := decoder.Decode(&frame); err != nil {
				if !errors.Is(err, io.EOF) {
					decodeErr <- err
				}
				return
			}
			frames <- frame
		}
	}()

	// abort tears the worker down after a protocol violation: kill
	// the group, drain the decode goroutine, reap the process.
	abort := func() {
		killGroup(command)
		for range frames {
		}
		_ = command.Wait()
	}

	sawHello := false
	var timer *time.Timer
	var timeoutChannel <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case frame, open := <-frames:
			if !open {
				// Stream ended: the worker exited or broke the pipe.
				waitErr := command.Wait()
				select {
				case err := <-decodeErr:
					return progress, fmt.Errorf("reading worker frames: %w", err)
				default:
				}
				if waitErr != nil {
					return progress, fmt.Errorf("worker exited: %w", waitErr)
				}
				if progress.finished < len(batch) {
					return progress, errors.New("worker exited before finishing its batch")
				}
				return progress, nil
			}

			if !sawHello {
				if frame.Event != EventHello {
					abort()
					return progress, fmt.Errorf("worker sent %q before hello", frame.Event)
				}
				if frame.Suite != runner.suite.Name() {
					abort()
					return progress, fmt.Errorf("worker serves suite %q, want %q", frame.Suite, runner.suite.Name())
				}
				if frame.Protocol != Protocol {
					abort()
					return progress, fmt.Errorf("worker speaks frame protocol %d, want %d", frame.Protocol, Protocol)
				}
				sawHello = true
				continue
			}

			switch frame.Event {
			case EventRunStarted:
				runner.logger.Debug("run started", "run", frame.Run)
				if runner.timeout > 0 {
					timer = time.NewTimer(runner.timeout)
					timeoutChannel = timer.C
				}

			case EventLog:
				attrs := make([]any, 0, 2)
				if frame.Run != "" {
					attrs = append(attrs, "run", frame.Run)
				}
				runner.logger.Log(ctx, parseLevel(frame.Level), frame.Message, attrs...)

			case EventRunFinished:
				if timer != nil {
					timer.Stop()
					timer = nil
					timeoutChannel = nil
				}
				if progress.finished >= len(batch) {
					abort()
					return progress, fmt.Errorf("worker finished run %s beyond its batch", frame.Run)
				}
				if expected := batch[progress.finished]; frame.Run != expected {
					abort()
					return progress, fmt.Errorf("worker finished run %s, expected %s", frame.Run, expected)
				}
				run := bench.Run{ID: frame.Run, Outcome: runner.frameOutcome(frame)}
				if err := runner.records.PutRun(ctx, run); err != nil {
					abort()
					return progress, fmt.Errorf("recording run %s: %w", frame.Run, err)
				}
				switch run.Status() {
				case bench.StatusFailed:
					summary.Failed++
				case bench.StatusPending:
					summary.Pending++
				default:
					summary.Done++
				}
				runner.logger.Info("run finished", "run", frame.Run, "status", run.Status())
				progress.finished++

			default:
				abort()
				return progress, fmt.Errorf("worker sent unknown frame event %q", frame.Event)
			}

		case <-timeoutChannel:
			active := batch[progress.finished]
			runner.logger.Warn("run timed out, killing worker", "run", active, "timeout", runner.timeout)
			killGroup(command)
			for range frames {
			}
			_ = command.Wait()
			failure := bench.Run{
				ID:      active,
				Outcome: bench.Failure{Message: fmt.Sprintf("timed out after %s", runner.timeout)},
			}
			if err := runner.records.PutRun(ctx, failure); err != nil {
				return progress, fmt.Errorf("recording run %s: %w", active, err)
			}
			summary.Failed++
			progress.finished++
			progress.timedOut = true
			return progress, nil
		}
	}
}

// frameOutcome converts a run_finished frame into an outcome. Frames
// that cannot be decoded (an outcome type this suite build no longer
// registers, malformed payload JSON) degrade to failures rather than
// aborting the worker: the run row must reach a terminal state.
func (runner *Runner) frameOutcome(frame Frame) bench.Outcome {
	if frame.Error != "" {
		return bench.Failure{Message: frame.Error}
	}
	value, err := plain.FromJSON(frame.Payload)
	if err == nil {
		var outcome bench.Outcome
		outcome, err = runner.suite.Outcomes().Decode(frame.Outcome, value)
		if err == nil {
			return outcome
		}
	}
	runner.logger.Error("undecodable outcome from worker", "run", frame.Run, "type", frame.Outcome, "error", err)
	return bench.Failure{Message: fmt.Sprintf("undecodable outcome: %v", err)}
}

// failRemaining marks every listed run failed with the given message.
// Used when a worker dies mid-batch so its runs end terminal instead
// of sitting in "running" forever.
func (runner *Runner) failRemaining(ctx context.Context, runIDs []string, message string, summary *Summary) {
	for _, runID := range runIDs {
		failure := bench.Run{ID: runID, Outcome: bench.Failure{Message: message}}
		if err := runner.records.PutRun(ctx, failure); err != nil {
			runner.logger.Error("marking run failed", "run", runID, "error", err)
			continue
		}
		summary.Failed++
	}
}

// workerArgs builds the worker argv: `worker --store <path> --run
// <id> --run <id>...`.
func workerArgs(storePath string, batch []string) []string {
	args := make([]string, 0, 3+2*len(batch))
	args = append(args, WorkerCommand, "--store", storePath)
	for _, runID := range batch {
		args = append(args, "--run", runID)
	}
	return args
}

func killGroup(command *exec.Cmd) {
	if command.Process != nil {
		_ = syscall.Kill(-command.Process.Pid, syscall.SIGKILL)
	}
}

// parseLevel maps a frame's level string back to a slog level,
// defaulting to info for anything unrecognized.
func parseLevel(level string) slog.Level {
	var parsed slog.Level
	if err := parsed.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return parsed
}

// lineWriter forwards complete lines to the logger. Worker stderr is
// outside the frame protocol; anything arriving there (a Go panic, a
// stray print in handler code) surfaces as a warning instead of
// disappearing.
type lineWriter struct {
	logger *slog.Logger
	buffer []byte
}

func (writer *lineWriter) Write(data []byte) (int, error) {
	writer.buffer = append(writer.buffer, data...)
	for {
		index := bytes.IndexByte(writer.buffer, '\n')
		if index < 0 {
			return len(data), nil
		}
		line := strings.TrimRight(string(writer.buffer[:index]), "\r")
		writer.buffer = writer.buffer[index+1:]
		if line != "" {
			writer.logger.Warn("worker stderr", "line", line)
		}
	}
}
