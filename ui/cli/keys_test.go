// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

//nolint:errcheck
package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestKeyCreateListInfo(t *testing.T) {
	e := newTestEnv(t)

	out := e.mustExecute(t, "", "key", "list")
	if !strings.Contains(out, "No keys found") {
		t.Fatalf("expected empty key list, got %q", out)
	}

	id := createActiveKey(t, e)
	out = e.mustExecute(t, "", "key", "list")
	if !strings.Contains(out, id) || !strings.Contains(out, "primary") {
		t.Fatalf("key %s missing from list:\n%s", id, out)
	}

	out = e.mustExecute(t, "", "key", "info")
	if !strings.Contains(out, id) || !strings.Contains(out, "Rotation interval:") {
		t.Fatalf("unexpected info output:\n%s", out)
	}

	fi, err := os.Stat(e.keyDir)
	if err != nil {
		t.Fatalf("key dir missing: %v", err)
	}
	if fi.Mode().Perm() != 0o700 {
		t.Fatalf("expected key dir mode 0700, got %v", fi.Mode().Perm())
	}
}

func TestKeyActivateRequiresKnownID(t *testing.T) {
	e := newTestEnv(t)
	if _, _, err := e.execute(t, "", "key", "activate"); err == nil || !strings.Contains(err.Error(), "--key") {
		t.Fatalf("expected missing id error, got %v", err)
	}
	_, _, err := e.execute(t, "", "key", "activate", "-k", "key_00000000000000_deadbeef")
	if err == nil || !strings.Contains(err.Error(), "Encryption key not found") {
		t.Fatalf("expected key not found, got %v", err)
	}

	first := createActiveKey(t, e)
	out := e.mustExecute(t, "", "key", "create")
	second := keyIDPattern.FindString(out)
	if second == "" || second == first {
		t.Fatalf("unexpected second key id in %q", out)
	}
	e.mustExecute(t, "", "key", "activate", "-k", second)
	out = e.mustExecute(t, "", "key", "info")
	if !strings.Contains(out, second) {
		t.Fatalf("expected %s to be active:\n%s", second, out)
	}
}

func TestKeyRotateNotDue(t *testing.T) {
	e := newTestEnv(t)
	id := createActiveKey(t, e)
	out := e.mustExecute(t, "", "key", "rotate")
	if !strings.Contains(out, "is not due for rotation") || !strings.Contains(out, id) {
		t.Fatalf("unexpected rotate output: %q", out)
	}
}

func TestKeyRotateForceReencryptsSecrets(t *testing.T) {
	e := newTestEnv(t)
	old := createActiveKey(t, e)
	e.mustExecute(t, "", "credential", "add", "--name", "core-sw", "--username", "admin", "--secret", "hunter2")
	e.mustExecute(t, "", "credential", "add", "--name", "edge-rt", "--username", "admin", "--secret", "s3cret")

	out := e.mustExecute(t, "", "key", "rotate", "--force")
	newID := keyIDPattern.FindString(strings.TrimPrefix(out, "Rotated to new key "))
	if newID == "" || newID == old {
		t.Fatalf("expected a new key id in %q", out)
	}
	if !strings.Contains(out, "Re-encrypted 2 of 2 secret(s); 0 failed") {
		t.Fatalf("unexpected re-encryption summary:\n%s", out)
	}

	out = e.mustExecute(t, "", "credential", "get", "2", "--show-secret")
	if !strings.Contains(out, "s3cret") {
		t.Fatalf("secret not readable after rotation:\n%s", out)
	}
}

func TestKeyBackupRestore(t *testing.T) {
	e := newTestEnv(t)
	id := createActiveKey(t, e)
	backup := filepath.Join(e.dir, "keys.json.zst")

	out := e.mustExecute(t, "", "key", "backup", "-o", backup, "-p", "correct horse")
	if !strings.Contains(out, backup) {
		t.Fatalf("unexpected backup output: %q", out)
	}
	raw, err := os.ReadFile(backup)
	if err != nil {
		t.Fatalf("backup not written: %v", err)
	}
	if !bytes.HasPrefix(raw, zstdMagic) {
		t.Fatal("expected a zstd-compressed backup")
	}

	other := &testEnv{dir: e.dir, dsn: filepath.Join(e.dir, "other.db"), keyDir: filepath.Join(e.dir, "other-keys")}
	if _, _, err := other.execute(t, "", "key", "restore", "-i", backup, "-p", "wrong"); err == nil ||
		!strings.Contains(err.Error(), "Wrong backup password") {
		t.Fatalf("expected wrong password error, got %v", err)
	}

	out = other.mustExecute(t, "", "key", "restore", "-i", backup, "-p", "correct horse")
	if !strings.Contains(out, "Imported 1 key(s): "+id) || !strings.Contains(out, "Active key: "+id) {
		t.Fatalf("unexpected restore output:\n%s", out)
	}

	out = other.mustExecute(t, "", "key", "restore", "-i", backup, "-p", "correct horse")
	if !strings.Contains(out, "already present") {
		t.Fatalf("expected second restore to import nothing, got %q", out)
	}
}

func TestKeyBackupNeedsPasswordWithoutTerminal(t *testing.T) {
	e := newTestEnv(t)
	createActiveKey(t, e)
	_, _, err := e.execute(t, "", "key", "backup", "-o", filepath.Join(e.dir, "b.json"))
	if err == nil || !strings.Contains(err.Error(), "password is required") {
		t.Fatalf("expected password required error, got %v", err)
	}
}

func TestBackupFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	blob := []byte(`{"version":1,"keys":[]}`)
	for _, name := range []string{"plain.json", "packed.json.zst"} {
		path := filepath.Join(dir, name)
		if err := writeBackupFile(path, blob); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		fi, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if fi.Mode().Perm() != 0o600 {
			t.Fatalf("%s: expected mode 0600, got %v", name, fi.Mode().Perm())
		}
		got, err := readBackupFile(path)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if !bytes.Equal(got, blob) {
			t.Fatalf("%s: round trip mismatch: %q", name, got)
		}
	}
}
