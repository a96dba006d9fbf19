// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package envelope turns plaintext secrets into self-describing encrypted
// values and back. A stored value is either a JSON envelope that names the key
// it was encrypted with, a bare legacy ciphertext that predates envelopes and
// is decrypted with the registry's default key, or a marked plaintext written
// while no key was configured.
package envelope

import (
	"encoding/json"
	"strings"
)

// CurrentVersion is written into every new envelope.
const CurrentVersion = 1

// Kind discriminates the stored representations.
type Kind int

const (
	// KindStructured is a JSON envelope carrying its key id.
	KindStructured Kind = iota
	// KindLegacy is a bare base64 ciphertext without key information.
	KindLegacy
	// KindPlain is an unencrypted value stored while no key existed.
	KindPlain
)

// Envelope is the parsed form of a stored secret value.
type Envelope struct {
	Kind Kind
	// KeyID is empty for legacy and plain values.
	KeyID string
	// Data is the base64 ciphertext (nonce||ciphertext), or the plaintext
	// for KindPlain.
	Data    string
	Version int
}

type wireEnvelope struct {
	KeyID         string `json:"key_id"`
	EncryptedData string `json:"encrypted_data"`
	Version       int    `json:"version"`
}

type wirePlain struct {
	Plaintext string `json:"plaintext"`
	Version   int    `json:"version"`
}

type wireAny struct {
	KeyID         string  `json:"key_id"`
	EncryptedData string  `json:"encrypted_data"`
	Plaintext     *string `json:"plaintext"`
	Version       int     `json:"version"`
}

// Parse tries the JSON forms first and falls back to legacy.
func Parse(stored string) Envelope {
	trimmed := strings.TrimSpace(stored)
	if strings.HasPrefix(trimmed, "{") {
		var w wireAny
		if err := json.Unmarshal([]byte(trimmed), &w); err == nil {
			switch {
			case w.KeyID != "" && w.EncryptedData != "":
				return Envelope{Kind: KindStructured, KeyID: w.KeyID, Data: w.EncryptedData, Version: w.Version}
			case w.KeyID == "" && w.EncryptedData == "" && w.Plaintext != nil:
				return Envelope{Kind: KindPlain, Data: *w.Plaintext, Version: w.Version}
			}
		}
	}
	return Envelope{Kind: KindLegacy, Data: trimmed}
}

// Plain wraps an unencrypted value so it can be told apart from a legacy
// ciphertext once keys exist.
func Plain(value string) Envelope {
	return Envelope{Kind: KindPlain, Data: value, Version: CurrentVersion}
}

// String renders structured and plain envelopes as their JSON wire form.
// Legacy values are returned as-is.
func (e Envelope) String() string {
	v := e.Version
	if v == 0 {
		v = CurrentVersion
	}
	var b []byte
	switch e.Kind {
	case KindLegacy:
		return e.Data
	case KindPlain:
		b, _ = json.Marshal(wirePlain{Plaintext: e.Data, Version: v})
	default:
		b, _ = json.Marshal(wireEnvelope{KeyID: e.KeyID, EncryptedData: e.Data, Version: v})
	}
	return string(b)
}

// KeyIDOf reports which key a stored value was encrypted with. Legacy and
// plain values report ("", false).
func KeyIDOf(stored string) (string, bool) {
	e := Parse(stored)
	if e.Kind != KindStructured {
		return "", false
	}
	return e.KeyID, true
}
