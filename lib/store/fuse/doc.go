// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package fuse implements a read-only FUSE filesystem over a record
// store, so stored tasks, methods, and runs can be browsed with
// ordinary shell tools.
//
// The mount exposes one directory per table:
//
//   - tasks/<id>.json and methods/<id>.json — content-addressed
//     records, one file per fingerprint.
//
//   - runs/<id>.json — run rows including task/method fingerprints,
//     status, and the outcome payload.
//
// # Read Path
//
// File content is materialized at lookup time: the row is fetched,
// the payload decompressed (and decrypted when the store carries a
// key), and the whole record pretty-printed as JSON. Reads then serve
// byte ranges of that snapshot. Tasks and methods never change once
// written, so their pages stay in the kernel cache; run files mutate
// as outcomes arrive, and the one-second entry and attribute timeouts
// bound how stale a reader can observe them.
//
// # Write Path
//
// Not implemented. All mutation operations (Create, Write, Mkdir,
// Unlink, Rename, Setattr) return EROFS. Records enter the store
// through its API or through archive import.
package fuse
