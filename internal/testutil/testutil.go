// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package testutil holds fixtures shared by package tests: an in-memory
// SQLite store and a key registry with one active key.
package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/toeirei/credvault/internal/db"
	"github.com/toeirei/credvault/internal/keys"
)

// Clock is a settable time source.
type Clock struct {
	T time.Time
}

// NewClock returns a clock starting at 2026-03-01 12:00 UTC.
func NewClock() *Clock {
	return &Clock{T: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time { return c.T }

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// NewStore opens a migrated in-memory SQLite store private to t.
func NewStore(t *testing.T) *db.BunStore {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	s, err := db.NewStoreFromDSN(db.TypeSQLite, dsn)
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewRegistry returns a loaded registry in a temp dir. When activate is set a
// fresh key is created and activated.
func NewRegistry(t *testing.T, clock *Clock, activate bool) *keys.Registry {
	t.Helper()
	opts := keys.Options{
		Dir:    t.TempDir(),
		Getenv: func(string) string { return "" },
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	r := keys.New(opts)
	if err := r.Load(); err != nil {
		t.Fatalf("registry Load failed: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	if activate {
		id, err := r.CreateKey("test")
		if err != nil {
			t.Fatalf("CreateKey failed: %v", err)
		}
		if err := r.ActivateKey(id); err != nil {
			t.Fatalf("ActivateKey failed: %v", err)
		}
	}
	return r
}
