// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for Crucible
// harness binaries.
//
// Configuration is loaded from a single file specified by either the
// CRUCIBLE_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There are no ~/.config discovery rules and no
// automatic file search; with nothing specified, [Default] values
// apply and a bare harness run works out of the box.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${CRUCIBLE_ROOT}, and ${VAR:-default} patterns are
// expanded. No other environment variables override config values.
//
// Key exports:
//
//   - [Config] -- master struct with Paths, Store, Runner, Dashboard
//   - [Default] -- returns a Config with working local defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other Crucible packages.
package config
