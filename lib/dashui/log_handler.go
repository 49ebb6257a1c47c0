// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// logNoticeMsg delivers a slog record to the model for display in the
// status bar.
type logNoticeMsg struct {
	// Summary is the one-line "message (key=value, ...)" form.
	Summary string

	// Level drives the notice styling (warn vs error).
	Level slog.Level
}

// logNoticeFadeMsg clears the notice from the status bar and restores
// the key help line.
type logNoticeFadeMsg struct{}

// logNoticeFadeDelay is how long a log notice stays visible before
// the status bar returns to the key help.
const logNoticeFadeDelay = 5 * time.Second

// logHandler is a slog.Handler that routes records into the bubbletea
// program as messages. Records below the configured level are
// dropped; records arriving before SetProgram are dropped too (the
// TUI is not rendering yet).
//
// Handlers derived via WithAttrs/WithGroup share the program pointer,
// so one SetProgram call covers every derived handler.
type logHandler struct {
	level   slog.Level
	program *atomic.Pointer[tea.Program]
	attrs   []slog.Attr
	groups  []string
}

func newLogHandler(level slog.Level) *logHandler {
	return &logHandler{
		level:   level,
		program: &atomic.Pointer[tea.Program]{},
	}
}

// SetProgram wires the handler to the running program. Safe to call
// from any goroutine.
func (handler *logHandler) SetProgram(program *tea.Program) {
	handler.program.Store(program)
}

func (handler *logHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= handler.level
}

func (handler *logHandler) Handle(_ context.Context, record slog.Record) error {
	program := handler.program.Load()
	if program == nil {
		return nil
	}
	program.Send(logNoticeMsg{
		Summary: summarizeRecord(record, handler.attrs, handler.groups),
		Level:   record.Level,
	})
	return nil
}

func (handler *logHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &logHandler{
		level:   handler.level,
		program: handler.program,
		attrs:   append(slices.Clone(handler.attrs), attrs...),
		groups:  slices.Clone(handler.groups),
	}
}

func (handler *logHandler) WithGroup(name string) slog.Handler {
	return &logHandler{
		level:   handler.level,
		program: handler.program,
		attrs:   slices.Clone(handler.attrs),
		groups:  append(slices.Clone(handler.groups), name),
	}
}

// summarizeRecord builds the status bar line: the message followed by
// the attributes in parentheses. Group names prefix the record-level
// attribute keys the way slog's text handler scopes them.
func summarizeRecord(record slog.Record, handlerAttrs []slog.Attr, groups []string) string {
	var parts []string
	for _, attr := range handlerAttrs {
		parts = append(parts, attr.Key+"="+attr.Value.String())
	}

	prefix := ""
	if len(groups) > 0 {
		prefix = strings.Join(groups, ".") + "."
	}
	record.Attrs(func(attr slog.Attr) bool {
		parts = append(parts, prefix+attr.Key+"="+attr.Value.String())
		return true
	})

	if len(parts) == 0 {
		return record.Message
	}
	return record.Message + " (" + strings.Join(parts, ", ") + ")"
}
