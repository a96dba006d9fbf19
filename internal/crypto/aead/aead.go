// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package aead implements the authenticated symmetric encryption used for
// stored secrets and key backups: AES-256-GCM with the random nonce prepended
// to the ciphertext, plus PBKDF2 password-based key derivation.
package aead

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the size in bytes of every data encryption key (AES-256).
const KeySize = 32

var (
	// ErrAuthenticationFailed means the ciphertext was produced under a
	// different key or has been tampered with.
	ErrAuthenticationFailed = errors.New("aead: message authentication failed")
	// ErrMalformedCiphertext means the input is too short to hold a nonce.
	ErrMalformedCiphertext = errors.New("aead: malformed ciphertext")
	// ErrInvalidKeySize is returned for keys that are not KeySize bytes long.
	ErrInvalidKeySize = errors.New("aead: invalid key size")
)

// randReader is swapped in tests that need deterministic failures.
var randReader io.Reader = rand.Reader

// NewKey returns KeySize bytes of fresh key material.
func NewKey() ([]byte, error) {
	k := make([]byte, KeySize)
	if _, err := io.ReadFull(randReader, k); err != nil {
		return nil, fmt.Errorf("aead: read key material: %w", err)
	}
	return k, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aead: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aead: create GCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext under key and returns nonce||ciphertext.
func Seal(key, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(randReader, nonce); err != nil {
		return nil, fmt.Errorf("aead: read nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal.
func Open(key, data []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	ns := gcm.NonceSize()
	if len(data) < ns+gcm.Overhead() {
		return nil, ErrMalformedCiphertext
	}
	out, err := gcm.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return out, nil
}

// DeriveKey stretches a password into a KeySize key with PBKDF2-HMAC-SHA256.
func DeriveKey(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New)
}
