// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package dashui implements the terminal dashboard for a benchmark
// store. Built on bubbletea (Elm architecture), it shows the run
// table with live status, fuzzy filtering over task and method kinds,
// and a per-run detail page with the decoded payloads and metrics.
//
// The dashboard is read-only: it never mutates the store. Fresh data
// arrives two ways — a periodic tick at the configured refresh
// interval, and an inotify watch on the store file that nudges a
// reload as soon as another process (a worker, a second harness
// invocation) writes a run.
//
// Data flow:
//
//	[store file] --inotify--> [watcher] --\
//	[refresh tick] ------------------------+--> [Model] <- bubbletea event loop
//	[slog records] --> [log handler] ------/
//	        |
//	  [terminal output]
package dashui
