// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package dashui

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/crucible-foundation/crucible/lib/bench"
	"github.com/crucible-foundation/crucible/lib/store"
)

// DefaultRefresh is the table reload interval when Options.Refresh is
// unset.
const DefaultRefresh = 2 * time.Second

// Options configures Show.
type Options struct {
	// Refresh is the periodic table reload interval. Zero or negative
	// uses DefaultRefresh.
	Refresh time.Duration

	// StorePath is the database file backing the store. When set, an
	// inotify watch on the file turns writes by other processes into
	// immediate reloads; without it, or when the watch cannot be
	// established, the dashboard refreshes on the timer alone.
	StorePath string
}

// Show runs the dashboard over the store until the user quits. It
// takes over the terminal's alternate screen for the duration.
//
// While the dashboard is on screen the process-default slog logger is
// rerouted into the status bar: stderr writes would corrupt the
// alternate screen, and warnings from background work are exactly
// what the status bar is for. The previous default is restored on
// return.
func Show(ctx context.Context, suite *bench.Suite, records *store.Store, options Options) error {
	refresh := options.Refresh
	if refresh <= 0 {
		refresh = DefaultRefresh
	}

	var nudges <-chan struct{}
	if options.StorePath != "" {
		// A failed watch is not fatal: the timer still refreshes.
		if channel, cleanup, err := watchStore(options.StorePath); err == nil {
			nudges = channel
			defer cleanup()
		}
	}

	handler := newLogHandler(slog.LevelWarn)
	previous := slog.Default()
	slog.SetDefault(slog.New(handler))
	defer slog.SetDefault(previous)

	model := newModel(ctx, suite, records, options.StorePath, refresh, nudges)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	// Wire the handler after NewProgram so records flow into the
	// running event loop. Anything logged before this line is
	// dropped; the TUI is not rendering yet.
	handler.SetProgram(program)

	_, err := program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		// The harness context cancels on SIGINT/SIGTERM; leaving the
		// dashboard that way is a clean exit, not an error.
		return nil
	}
	return err
}
