// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package envelope

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/toeirei/credvault/internal/crypto/aead"
	"github.com/toeirei/credvault/internal/logging"
	"github.com/toeirei/credvault/internal/security"
)

var (
	// ErrDecryptionKeyNotFound means an envelope names a key the registry no
	// longer has. Keys are never deleted, so this is a data-integrity problem.
	ErrDecryptionKeyNotFound = errors.New("decryption key not found")
	// ErrAuthenticationFailed means the key exists but the ciphertext does not
	// authenticate under it (wrong key or corrupted data).
	ErrAuthenticationFailed = aead.ErrAuthenticationFailed
	// ErrMalformedCiphertext means the stored value is not valid base64 or is
	// too short to be a ciphertext.
	ErrMalformedCiphertext = aead.ErrMalformedCiphertext
	// ErrEncryptionUnavailable is only logged: without any key the codec
	// passes values through unchanged.
	ErrEncryptionUnavailable = errors.New("no encryption key configured")
)

// KeyProvider is the subset of the key registry the codec needs.
type KeyProvider interface {
	ActiveKeyID() string
	DefaultKeyID() string
	HasKeys() bool
	KeyMaterial(id string) (security.Secret, error)
}

// Codec encrypts and decrypts secret values with keys from a KeyProvider.
type Codec struct {
	keys KeyProvider
}

// NewCodec returns a Codec backed by keys.
func NewCodec(keys KeyProvider) *Codec {
	return &Codec{keys: keys}
}

// Encrypt seals plaintext under keyID, or under the active key when keyID is
// empty. Without any configured key the value is stored as a plain envelope
// and a warning is logged.
func (c *Codec) Encrypt(plaintext, keyID string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	if keyID == "" {
		keyID = c.keys.ActiveKeyID()
	}
	if keyID == "" {
		if !c.keys.HasKeys() {
			logging.Warnf("envelope: %v, storing secret unencrypted", ErrEncryptionUnavailable)
			return Plain(plaintext).String(), nil
		}
		keyID = c.keys.DefaultKeyID()
		if keyID == "" {
			return "", fmt.Errorf("envelope: %w: keys exist but none is active", ErrEncryptionUnavailable)
		}
	}
	key, err := c.keys.KeyMaterial(keyID)
	if err != nil {
		return "", fmt.Errorf("envelope: encrypt with key %s: %w", keyID, err)
	}
	ct, err := aead.Seal(key, []byte(plaintext))
	if err != nil {
		return "", fmt.Errorf("envelope: encrypt with key %s: %w", keyID, err)
	}
	return Envelope{
		Kind:    KindStructured,
		KeyID:   keyID,
		Data:    base64.StdEncoding.EncodeToString(ct),
		Version: CurrentVersion,
	}.String(), nil
}

// Decrypt opens a stored value. Structured envelopes are opened with the key
// they name, legacy values with the provider's default key. Plain envelopes
// are returned unchanged whether or not keys exist.
func (c *Codec) Decrypt(stored string) (string, error) {
	if stored == "" {
		return "", nil
	}
	env := Parse(stored)
	if env.Kind == KindPlain {
		return env.Data, nil
	}
	keyID := env.KeyID
	if env.Kind == KindLegacy {
		if !c.keys.HasKeys() {
			logging.Warnf("envelope: %v, returning stored value as-is", ErrEncryptionUnavailable)
			return stored, nil
		}
		keyID = c.keys.DefaultKeyID()
		if keyID == "" {
			return "", fmt.Errorf("envelope: legacy value: %w: no default key", ErrDecryptionKeyNotFound)
		}
	}
	key, err := c.keys.KeyMaterial(keyID)
	if err != nil {
		return "", fmt.Errorf("envelope: %w: %s: %w", ErrDecryptionKeyNotFound, keyID, err)
	}
	raw, err := base64.StdEncoding.DecodeString(env.Data)
	if err != nil {
		return "", fmt.Errorf("envelope: key %s: %w: %v", keyID, ErrMalformedCiphertext, err)
	}
	pt, err := aead.Open(key, raw)
	if err != nil {
		return "", fmt.Errorf("envelope: key %s: %w", keyID, err)
	}
	return string(pt), nil
}

// Reencrypt decrypts stored and seals the plaintext again under keyID.
func (c *Codec) Reencrypt(stored, keyID string) (string, error) {
	pt, err := c.Decrypt(stored)
	if err != nil {
		return "", err
	}
	return c.Encrypt(pt, keyID)
}
