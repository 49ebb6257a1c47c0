// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

package store

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the size in bytes of a store encryption key.
const KeySize = 32

// sealedBlobVersion is the version byte prepended to every sealed
// blob. It rides along as additional authenticated data (AAD) in the
// AEAD Seal/Open call, so tampering with the version byte causes
// authentication failure.
const sealedBlobVersion byte = 0x01

// sealedBlobOverhead is the total byte overhead per sealed blob:
// 1 (version) + 24 (XChaCha20-Poly1305 nonce) + 16 (Poly1305 tag).
const sealedBlobOverhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

// hkdfInfoRecord is the "info" parameter for per-record key
// derivation, providing domain separation from any other use of the
// same key material. Changing it invalidates every sealed store.
var hkdfInfoRecord = []byte("crucible.store.record.v1")

// keySet derives per-record encryption keys from the store key. Each
// record is sealed under its own key bound to its row id, so a blob
// copied between rows of the database file fails authentication.
//
// Derived keys are not cached: HKDF-SHA256 takes roughly a
// microsecond, noise next to the SQLite write that follows.
type keySet struct {
	master []byte
}

// newKeySet copies the master key. The caller's slice may be zeroed
// or reused afterward.
func newKeySet(master []byte) (*keySet, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(master))
	}
	keys := &keySet{master: make([]byte, KeySize)}
	copy(keys.master, master)
	return keys, nil
}

// close zeroes the master key. The keySet must not be used afterward.
func (keys *keySet) close() {
	for i := range keys.master {
		keys.master[i] = 0
	}
}

// recordKey derives the encryption key for a record id via
// HKDF-SHA256. The salt is nil: the store key is required to be
// uniformly random key material, so the extract phase with a zero key
// is appropriate per RFC 5869.
func (keys *keySet) recordKey(recordID string) ([]byte, error) {
	info := make([]byte, 0, len(hkdfInfoRecord)+len(recordID))
	info = append(info, hkdfInfoRecord...)
	info = append(info, recordID...)

	reader := hkdf.New(sha256.New, keys.master, nil, info)
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return derived, nil
}

// seal encrypts a framed payload with XChaCha20-Poly1305 and returns
// the sealed blob:
//
//	[Version: 1 byte (0x01)] [Nonce: 24 bytes (random)] [Ciphertext+Tag: N+16 bytes]
//
// The version byte and record id are included as AAD, binding the
// ciphertext to the row it belongs to.
func (keys *keySet) seal(plaintext []byte, recordID string) ([]byte, error) {
	key, err := keys.recordKey(recordID)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	var nonce [chacha20poly1305.NonceSizeX]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}

	aad := buildAAD(sealedBlobVersion, recordID)

	// Allocate output: version + nonce + ciphertext + tag. Seal
	// appends the ciphertext and tag.
	output := make([]byte, 1+chacha20poly1305.NonceSizeX, 1+chacha20poly1305.NonceSizeX+len(plaintext)+aead.Overhead())
	output[0] = sealedBlobVersion
	copy(output[1:], nonce[:])
	return aead.Seal(output, nonce[:], plaintext, aad), nil
}

// open decrypts a blob produced by seal. It verifies the version
// byte, extracts the nonce, and authenticates the ciphertext against
// the AAD (version byte + record id).
func (keys *keySet) open(sealedBlob []byte, recordID string) ([]byte, error) {
	if len(sealedBlob) < sealedBlobOverhead {
		return nil, fmt.Errorf("sealed blob is %d bytes, minimum is %d (version + nonce + tag)",
			len(sealedBlob), sealedBlobOverhead)
	}

	version := sealedBlob[0]
	if version != sealedBlobVersion {
		return nil, fmt.Errorf("sealed blob version %d is not supported (expected %d)",
			version, sealedBlobVersion)
	}

	nonce := sealedBlob[1 : 1+chacha20poly1305.NonceSizeX]
	ciphertext := sealedBlob[1+chacha20poly1305.NonceSizeX:]

	key, err := keys.recordKey(recordID)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("creating XChaCha20-Poly1305 cipher: %w", err)
	}

	aad := buildAAD(version, recordID)
	plaintext, err := aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, fmt.Errorf("AEAD decryption failed (wrong key, tampered data, or mismatched record): %w", err)
	}
	return plaintext, nil
}

// buildAAD constructs the additional authenticated data for a record:
// the version byte followed by the record id.
func buildAAD(version byte, recordID string) []byte {
	aad := make([]byte, 0, 1+len(recordID))
	aad = append(aad, version)
	aad = append(aad, recordID...)
	return aad
}
