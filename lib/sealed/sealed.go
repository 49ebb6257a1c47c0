// Copyright 2026 The Crucible Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed provides age encryption and decryption for Crucible
// export bundles. It wraps filippo.io/age to provide a simple interface
// for the specific operations Crucible needs: generate keypairs, encrypt
// to multiple recipients, decrypt with a private key.
//
// Two forms are offered. The string form (Encrypt/Decrypt) base64-encodes
// the ciphertext for embedding in JSON or passing on a command line. The
// streaming form (NewWriter/NewReader) wraps an io.Writer/io.Reader and is
// what store export uses for archives, where the payload can be large and
// base64 inflation would be wasteful.
package sealed

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"filippo.io/age"
)

// Keypair holds an age x25519 keypair. The private key must not be
// logged or committed; the public key is safe to publish and is what
// collaborators hand out to receive sealed result bundles.
type Keypair struct {
	// PrivateKey is the secret key in AGE-SECRET-KEY-1... format.
	PrivateKey string

	// PublicKey is the corresponding public key in age1... format.
	PublicKey string
}

// GenerateKeypair generates a new age x25519 keypair.
func GenerateKeypair() (Keypair, error) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return Keypair{}, fmt.Errorf("generating age keypair: %w", err)
	}
	return Keypair{
		PrivateKey: identity.String(),
		PublicKey:  identity.Recipient().String(),
	}, nil
}

// parseRecipients parses a list of age1... public key strings. At least
// one recipient is required: an archive sealed to nobody is unreadable.
func parseRecipients(recipientKeys []string) ([]age.Recipient, error) {
	if len(recipientKeys) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	recipients := make([]age.Recipient, 0, len(recipientKeys))
	for _, key := range recipientKeys {
		recipient, err := age.ParseX25519Recipient(key)
		if err != nil {
			return nil, fmt.Errorf("parsing recipient key %q: %w", key, err)
		}
		recipients = append(recipients, recipient)
	}
	return recipients, nil
}

// NewWriter returns a WriteCloser that encrypts everything written to it
// to the given recipients and writes the age ciphertext to destination.
// The caller must Close the writer to flush the final chunk; Close does
// not close the underlying destination.
func NewWriter(destination io.Writer, recipientKeys []string) (io.WriteCloser, error) {
	recipients, err := parseRecipients(recipientKeys)
	if err != nil {
		return nil, err
	}
	writer, err := age.Encrypt(destination, recipients...)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	return writer, nil
}

// NewReader returns a Reader that decrypts the age ciphertext read from
// source using the given private key.
func NewReader(source io.Reader, privateKey string) (io.Reader, error) {
	identity, err := age.ParseX25519Identity(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	reader, err := age.Decrypt(source, identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return reader, nil
}

// Encrypt encrypts plaintext to one or more recipients specified by their
// age public key strings (age1... format). Returns the ciphertext as a
// standard base64-encoded string suitable for embedding in JSON fields.
func Encrypt(plaintext []byte, recipientKeys []string) (string, error) {
	var ciphertextBuffer bytes.Buffer
	writer, err := NewWriter(&ciphertextBuffer, recipientKeys)
	if err != nil {
		return "", err
	}
	if _, err := writer.Write(plaintext); err != nil {
		return "", fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertextBuffer.Bytes()), nil
}

// Decrypt decrypts a base64-encoded ciphertext string using the given
// private key and returns the plaintext.
func Decrypt(ciphertext string, privateKey string) ([]byte, error) {
	rawCiphertext, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decoding base64 ciphertext: %w", err)
	}
	reader, err := NewReader(bytes.NewReader(rawCiphertext), privateKey)
	if err != nil {
		return nil, err
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted plaintext: %w", err)
	}
	return plaintext, nil
}

// ParsePublicKey validates an age public key string. Returns an error if
// the key is not a valid age x25519 public key. Useful for validating
// recipient lists before starting a long export.
func ParsePublicKey(publicKey string) error {
	_, err := age.ParseX25519Recipient(publicKey)
	if err != nil {
		return fmt.Errorf("invalid age public key: %w", err)
	}
	return nil
}

// ParsePrivateKey validates an age private key string.
func ParsePrivateKey(privateKey string) error {
	_, err := age.ParseX25519Identity(privateKey)
	if err != nil {
		return fmt.Errorf("invalid age private key: %w", err)
	}
	return nil
}
