// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Crucible
// binaries. It centralizes the one legitimate raw I/O pattern that
// exists before the structured logger: fatal error reporting to stderr
// from main() when run() fails before the logger is initialized.
//
// All other output in Crucible binaries goes through the slog logger
// or, for command results, the CLI's stdout conventions.
package process
