// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/toeirei/credvault/internal/config"
	"github.com/toeirei/credvault/internal/credentials"
	"github.com/toeirei/credvault/internal/envelope"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Database: config.Database{Type: "sqlite", Dsn: filepath.Join(dir, "credvault.db")},
		Keys:     config.Keys{Dir: filepath.Join(dir, "keys"), RotationIntervalDays: 90, EnvVar: "CREDVAULT_ENCRYPTION_KEY"},
	}
}

func noEnv(string) string { return "" }

func TestOpenRotateAndReopen(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	a, err := Open(cfg, Options{Getenv: noEnv})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	first, err := a.Keys.CreateKey("initial")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Keys.ActivateKey(first); err != nil {
		t.Fatal(err)
	}
	secret := "pw"
	id, err := a.Credentials.AddCredential(ctx, credentials.NewCredential{Name: "sw1", Username: "admin", Secret: &secret})
	if err != nil {
		t.Fatalf("AddCredential failed: %v", err)
	}

	res, err := a.Keys.RotateKeys(ctx, true)
	if err != nil || !res.Rotated || res.Reencrypt == nil || res.Reencrypt.Success != 1 {
		t.Fatalf("RotateKeys = %+v, %v", res, err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if info, err := os.Stat(cfg.Keys.Dir); err != nil || info.Mode().Perm() != 0o700 {
		t.Fatalf("key dir not created with 0700: %v %v", info, err)
	}

	b, err := Open(cfg, Options{Getenv: noEnv})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer func() { _ = b.Close() }()
	if b.Keys.ActiveKeyID() != res.NewKeyID {
		t.Fatalf("active key %q, want %q", b.Keys.ActiveKeyID(), res.NewKeyID)
	}
	c, err := b.Credentials.GetCredential(ctx, id)
	if err != nil || c.Secret != "pw" {
		t.Fatalf("GetCredential after reopen = %+v, %v", c, err)
	}
	raw, _ := b.Store.GetCredential(ctx, id)
	if kid, _ := envelope.KeyIDOf(raw.Secret); kid != res.NewKeyID {
		t.Fatalf("secret on %q, want %q", kid, res.NewKeyID)
	}
}

func TestOpenUnsupportedDatabase(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Type = "oracle"
	if _, err := Open(cfg, Options{Getenv: noEnv}); err == nil {
		t.Fatalf("expected error for unsupported database")
	}
}
