// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes content identifiers for encoded
// values. Two values receive the same fingerprint exactly when they
// have the same registered label and structurally equal encodings, so
// fingerprints double as deduplication keys in the store.
package fingerprint

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"reflect"
	"sync"

	"github.com/zeebo/blake3"

	"github.com/crucible-foundation/crucible/lib/plain"
)

// Size is the length of a rendered fingerprint in hex characters:
// the first 8 bytes of the digest. Collisions across a store of n
// values appear around n = 2^32; run metadata never grows close.
const Size = 16

// domain separates these hashes from every other BLAKE3 use. Keyed
// hashing wants exactly 32 bytes, so the name is space-padded.
const domain = "crucible.fingerprint.v1"

var domainKey = func() []byte {
	key := make([]byte, 32)
	for position := range key {
		key[position] = ' '
	}
	copy(key, domain)
	return key
}()

// ID is a rendered fingerprint: Size lowercase hex characters.
type ID string

func (id ID) String() string {
	return string(id)
}

// Parse validates a fingerprint read from storage or user input.
func Parse(text string) (ID, error) {
	if len(text) != Size {
		return "", fmt.Errorf("fingerprint %q: length %d, want %d", text, len(text), Size)
	}
	for _, character := range text {
		if (character < '0' || character > '9') && (character < 'a' || character > 'f') {
			return "", fmt.Errorf("fingerprint %q: %q is not lowercase hex", text, character)
		}
	}
	return ID(text), nil
}

// New fingerprints a labeled encoding: a keyed BLAKE3 hash over the
// length-prefixed label followed by the canonical bytes of the
// encoded value. The label is framed so ("ab", "c...") and
// ("a", "bc...") can never collide.
func New(label string, encoded plain.Value) (ID, error) {
	canonical, err := plain.Canonical(encoded)
	if err != nil {
		return "", fmt.Errorf("fingerprint %q: %w", label, err)
	}
	hasher, err := blake3.NewKeyed(domainKey)
	if err != nil {
		return "", fmt.Errorf("fingerprint %q: %w", label, err)
	}
	var frame [binary.MaxVarintLen64]byte
	length := binary.PutUvarint(frame[:], uint64(len(label)))
	hasher.Write(frame[:length])
	hasher.Write([]byte(label))
	hasher.Write(canonical)
	digest := hasher.Sum(nil)
	return ID(hex.EncodeToString(digest[:Size/2])), nil
}

// Cache memoizes fingerprints by value identity. Comparable values
// (typical task and method structs) hash once; non-comparable values
// hash on every call, which is still cheap.
type Cache struct {
	mu    sync.Mutex
	known map[any]ID
}

func NewCache() *Cache {
	return &Cache{known: make(map[any]ID)}
}

// Memoize returns the cached fingerprint for value, computing and
// caching it on first sight.
func (cache *Cache) Memoize(value any, compute func() (ID, error)) (ID, error) {
	// Comparability must be checked on the value, not its type: a
	// struct with an interface field has a comparable type but may
	// carry a map or slice, and using it as a map key would panic.
	memoizable := reflect.ValueOf(value).Comparable()
	if memoizable {
		cache.mu.Lock()
		id, hit := cache.known[value]
		cache.mu.Unlock()
		if hit {
			return id, nil
		}
	}
	id, err := compute()
	if err != nil {
		return "", err
	}
	if memoizable {
		cache.mu.Lock()
		cache.known[value] = id
		cache.mu.Unlock()
	}
	return id, nil
}
