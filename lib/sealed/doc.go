// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for Crucible
// export bundles. It wraps filippo.io/age for the specific operations
// Crucible needs: generate x25519 keypairs, encrypt to multiple
// recipients, and decrypt with a private key.
//
// The string form base64-encodes ciphertext for embedding in JSON or
// passing on a command line; the streaming form wraps an io.Writer or
// io.Reader and is used by store export for whole archives.
//
// Key exports:
//
//   - [GenerateKeypair] -- new age x25519 keypair
//   - [Encrypt] / [Decrypt] -- base64 string ciphertext
//   - [NewWriter] / [NewReader] -- streaming ciphertext for archives
//   - [ParsePublicKey] / [ParsePrivateKey] -- key validation
//
// Used by lib/store export/import and the harness export commands.
package sealed
