// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Protocol is the frame protocol version. The worker announces it in
// its hello frame; the parent refuses workers speaking a different
// version (a stale worker binary after an upgrade).
const Protocol = 1

// Frame event discriminators.
const (
	// EventHello is the first frame on the stream: the worker
	// announces its suite name and protocol version.
	EventHello = "hello"

	// EventRunStarted marks the beginning of a run's execution. The
	// parent starts the per-run timeout clock when it arrives.
	EventRunStarted = "run_started"

	// EventLog carries a worker log record for the parent to mirror
	// into its own logger.
	EventLog = "log"

	// EventRunFinished carries the result of a run: either an encoded
	// outcome (Outcome + Payload) or an error message.
	EventRunFinished = "run_finished"
)

// Frame is one CBOR-encoded event on a worker's stdout stream. A
// single struct covers all four events; Event selects which fields
// are meaningful.
type Frame struct {
	// Event is the frame type: "hello", "run_started", "log", or
	// "run_finished".
	Event string `cbor:"event"`

	// Suite is the worker's suite name (hello). The parent refuses a
	// worker built for a different suite than the one it serves.
	Suite string `cbor:"suite,omitempty"`

	// Protocol is the frame protocol version (hello).
	Protocol int `cbor:"protocol,omitempty"`

	// Run is the run id the frame concerns (run_started and
	// run_finished; set on log frames that carry a run attribute).
	Run string `cbor:"run,omitempty"`

	// Level is the slog level string of a log frame ("DEBUG", "INFO",
	// "WARN", "ERROR").
	Level string `cbor:"level,omitempty"`

	// Message is the formatted log line of a log frame, including any
	// rendered attributes.
	Message string `cbor:"message,omitempty"`

	// Outcome is the registered outcome type label (run_finished).
	Outcome string `cbor:"outcome,omitempty"`

	// Payload is the JSON encoding of the outcome's field value
	// (run_finished). JSON rather than CBOR so the parent can store
	// it without re-encoding.
	Payload []byte `cbor:"payload,omitempty"`

	// Error is the failure message when the run produced no outcome
	// (run_finished): a handler error, a missing record, or an
	// encoding fault. Mutually exclusive with Outcome/Payload.
	Error string `cbor:"error,omitempty"`
}

// encMode encodes frames with Core Deterministic Encoding (RFC 8949
// §4.2): sorted map keys, smallest integer widths. Determinism is not
// required on a pipe, but it keeps frames byte-stable for tests and
// for debugging captured streams.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("runner: CBOR encoder initialization failed: " + err.Error())
	}
}

// frameStream serializes frames onto a writer. Safe for concurrent
// use: the worker's run loop and its log handler both send frames.
type frameStream struct {
	mu      sync.Mutex
	encoder *cbor.Encoder
}

func newFrameStream(output io.Writer) *frameStream {
	return &frameStream{encoder: encMode.NewEncoder(output)}
}

func (stream *frameStream) send(frame Frame) error {
	stream.mu.Lock()
	defer stream.mu.Unlock()
	return stream.encoder.Encode(frame)
}

// newFrameDecoder reads frames from a worker's stdout. Unknown CBOR
// fields are ignored, so a newer worker talking to an older parent
// degrades instead of erroring.
func newFrameDecoder(input io.Reader) *cbor.Decoder {
	return cbor.NewDecoder(input)
}

// frameLogHandler is a slog.Handler that forwards worker log records
// to the parent as log frames. The parent mirrors them into its own
// logger, so handler code logging inside a worker shows up in the
// harness output like any other line.
type frameLogHandler struct {
	stream *frameStream
	attrs  []slog.Attr
}

// Enabled reports interest in every level; the parent's logger
// applies its own level filter when mirroring.
func (handler *frameLogHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

// Handle renders the record as "message (key=value, ...)" and sends
// it as a log frame. A "run" attribute is promoted onto the frame
// itself so the parent can attribute the line to the active run.
func (handler *frameLogHandler) Handle(_ context.Context, record slog.Record) error {
	frame := Frame{
		Event:   EventLog,
		Level:   record.Level.String(),
		Message: record.Message,
	}

	var attrParts []string
	collect := func(attr slog.Attr) {
		if attr.Key == "run" {
			frame.Run = attr.Value.String()
			return
		}
		attrParts = append(attrParts, fmt.Sprintf("%s=%s", attr.Key, attr.Value))
	}
	for _, attr := range handler.attrs {
		collect(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		collect(attr)
		return true
	})

	if len(attrParts) > 0 {
		frame.Message += " (" + strings.Join(attrParts, ", ") + ")"
	}
	return handler.stream.send(frame)
}

// WithAttrs returns a handler with the attributes appended; they
// render on every subsequent record.
func (handler *frameLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &frameLogHandler{
		stream: handler.stream,
		attrs:  append(slices.Clone(handler.attrs), attrs...),
	}
}

// WithGroup is accepted but ignored; frames carry a flat attribute
// rendering.
func (handler *frameLogHandler) WithGroup(string) slog.Handler {
	return handler
}
