// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/plain"
	"github.com/crucible-foundation/crucible/lib/store"
)

// Worker executes runs inside a worker subprocess and streams frames
// to the parent over stdout. The harness's hidden worker command
// constructs one after re-opening the store named on its command
// line.
//
// The worker never writes to the store. The parent applies every
// outcome, so a worker killed mid-run leaves no half-written rows.
type Worker struct {
	suite   *bench.Suite
	records *store.Store
	stream  *frameStream
}

// NewWorker returns a worker that reads records from the store and
// writes frames to output (the process's stdout in production, a
// buffer in tests).
func NewWorker(suite *bench.Suite, records *store.Store, output io.Writer) *Worker {
	return &Worker{suite: suite, records: records, stream: newFrameStream(output)}
}

// Logger returns a logger whose records travel to the parent as log
// frames. The worker command installs it as the process default so
// handler code that logs during a run surfaces in the parent's
// output. Log frames interleave safely with event frames.
func (worker *Worker) Logger() *slog.Logger {
	return slog.New(&frameLogHandler{stream: worker.stream})
}

// Execute announces the worker with a hello frame, then executes each
// run id in order. A run that cannot be loaded or whose handler
// errors becomes a run_finished frame with an error message; the loop
// carries on with the next id. Only a frame write failure (the parent
// hung up) or context cancellation stops the loop early.
func (worker *Worker) Execute(ctx context.Context, runIDs []string) error {
	hello := Frame{Event: EventHello, Suite: worker.suite.Name(), Protocol: Protocol}
	if err := worker.stream.send(hello); err != nil {
		return fmt.Errorf("runner: writing hello frame: %w", err)
	}
	for _, runID := range runIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := worker.stream.send(Frame{Event: EventRunStarted, Run: runID}); err != nil {
			return fmt.Errorf("runner: writing frame: %w", err)
		}
		if err := worker.stream.send(worker.executeRun(ctx, runID)); err != nil {
			return fmt.Errorf("runner: writing frame: %w", err)
		}
	}
	return nil
}

// executeRun loads the run's task and method, invokes the suite's run
// handler, and encodes whatever came out as a run_finished frame.
// Every failure mode lands in the frame's Error field rather than an
// error return: the parent owns the run row, so the worker's job is
// only to report.
func (worker *Worker) executeRun(ctx context.Context, runID string) Frame {
	finished := Frame{Event: EventRunFinished, Run: runID}

	record, err := worker.records.GetRun(ctx, runID)
	if err != nil {
		finished.Error = fmt.Sprintf("loading run: %v", err)
		return finished
	}
	task, err := worker.records.GetTask(ctx, record.Run.Task)
	if err != nil {
		finished.Error = fmt.Sprintf("loading task %s: %v", record.Run.Task, err)
		return finished
	}
	method, err := worker.records.GetMethod(ctx, record.Run.Method)
	if err != nil {
		finished.Error = fmt.Sprintf("loading method %s: %v", record.Run.Method, err)
		return finished
	}

	outcome, err := worker.suite.Run(ctx, task, method)
	if err != nil {
		finished.Error = err.Error()
		return finished
	}
	label, value, err := worker.suite.Outcomes().Encode(outcome)
	if err != nil {
		finished.Error = fmt.Sprintf("encoding outcome: %v", err)
		return finished
	}
	payload, err := plain.ToJSON(value)
	if err != nil {
		finished.Error = fmt.Sprintf("encoding outcome: %v", err)
		return finished
	}
	finished.Outcome = label
	finished.Payload = payload
	return finished
}
