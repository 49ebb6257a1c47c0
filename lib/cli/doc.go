// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the command-line framework shared by crucible binaries.
//
// The central type is [Command]: a named subcommand with optional nested
// [Command.Subcommands], a [pflag.FlagSet] factory, and a Run function.
// Trees are assembled by each binary's main (lib/harness builds the tree
// for suite binaries) and dispatched via [Command.Execute], which handles
// flag parsing, subcommand routing, and structured help output with
// examples.
//
// When a user types an unknown subcommand or flag, the framework computes
// Levenshtein edit distance against all known names and suggests the
// closest match (threshold: distance <= 3). This is implemented in
// suggest.go.
//
// [NewLogger] builds the logger command handlers write to: text on a
// terminal, JSON lines when piped.
package cli
