// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package model

import (
	"testing"
	"time"
)

func TestCredentialRates(t *testing.T) {
	c := Credential{SuccessCount: 3, FailureCount: 1}
	if c.Attempts() != 4 {
		t.Fatalf("expected 4 attempts, got %d", c.Attempts())
	}
	if got := c.SuccessRate(); got != 0.75 {
		t.Fatalf("expected 0.75, got %v", got)
	}
	if (Credential{}).SuccessRate() != 0 {
		t.Fatalf("expected zero rate without attempts")
	}
}

func TestCredentialStringOmitsSecret(t *testing.T) {
	c := Credential{Name: "core-switch", Username: "admin", Secret: "hunter2"}
	if got := c.String(); got != "core-switch (admin)" {
		t.Fatalf("unexpected String(): %q", got)
	}
}

func TestKeyMetadataAge(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	k := KeyMetadata{CreatedAt: now.Add(-48 * time.Hour)}
	if k.Age(now) != 48*time.Hour {
		t.Fatalf("unexpected age %s", k.Age(now))
	}
}
