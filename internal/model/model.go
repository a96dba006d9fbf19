// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model holds the plain data types shared by the credential store,
// the key registry and the selection engine.
package model

import (
	"fmt"
	"time"
)

// Credential is a login used by the device-connection layer. Secret holds
// the plaintext once the store has decrypted it; HasSecret reports whether a
// secret is stored at all, even when Secret was not decrypted (list views).
type Credential struct {
	ID           int64
	Name         string
	Username     string
	Secret       string
	HasSecret    bool
	UsesKeyAuth  bool
	KeyFile      string
	Description  string
	SuccessCount int
	FailureCount int
	LastUsed     *time.Time
	LastSuccess  *time.Time
	LastFailure  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// String returns the name@username representation without the secret.
func (c Credential) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Username)
}

// Attempts returns the total number of recorded connection attempts.
func (c Credential) Attempts() int {
	return c.SuccessCount + c.FailureCount
}

// SuccessRate returns the fraction of successful attempts, or 0 without data.
func (c Credential) SuccessRate() float64 {
	return rate(c.SuccessCount, c.FailureCount)
}

// CredentialTag is the association between a credential and an external tag.
// Its counters are tracked independently of the credential's global ones.
type CredentialTag struct {
	CredentialID int64
	TagID        int64
	Priority     float64
	SuccessCount int
	FailureCount int
	LastUsed     *time.Time
	LastSuccess  *time.Time
	LastFailure  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Attempts returns the number of attempts recorded for this tag.
func (ct CredentialTag) Attempts() int {
	return ct.SuccessCount + ct.FailureCount
}

// SuccessRate returns the per-tag success fraction, or 0 without data.
func (ct CredentialTag) SuccessRate() float64 {
	return rate(ct.SuccessCount, ct.FailureCount)
}

// TaggedCredential pairs a credential with its association to one tag.
type TaggedCredential struct {
	Credential Credential
	Tag        CredentialTag
}

// ScoredCredential is a smart-selection result.
type ScoredCredential struct {
	TaggedCredential
	SuccessScore  float64
	PriorityScore float64
	RecencyScore  float64
	Score         float64
}

func rate(success, failure int) float64 {
	total := success + failure
	if total == 0 {
		return 0
	}
	return float64(success) / float64(total)
}
