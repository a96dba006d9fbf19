// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

//nolint:errcheck
package cli

import (
	"strings"
	"testing"
)

func TestCredentialAddGetList(t *testing.T) {
	e := newTestEnv(t)
	createActiveKey(t, e)

	out := e.mustExecute(t, "hunter2\n", "credential", "add",
		"--name", "core-sw", "--username", "admin", "--secret-stdin", "--description", "core switches", "--tag", "3:80")
	if !strings.Contains(out, `Added credential "core-sw" with id 1.`) {
		t.Fatalf("unexpected add output: %q", out)
	}

	out = e.mustExecute(t, "", "credential", "get", "1")
	if strings.Contains(out, "hunter2") || !strings.Contains(out, "********") {
		t.Fatalf("secret must be masked without --show-secret:\n%s", out)
	}
	out = e.mustExecute(t, "", "credential", "get", "1", "--show-secret")
	if !strings.Contains(out, "hunter2") || !strings.Contains(out, "core switches") {
		t.Fatalf("unexpected get output:\n%s", out)
	}

	out = e.mustExecute(t, "", "cred", "list")
	if !strings.Contains(out, "core-sw") || strings.Contains(out, "hunter2") {
		t.Fatalf("unexpected list output:\n%s", out)
	}

	out = e.mustExecute(t, "", "credential", "by-tag", "3")
	if !strings.Contains(out, "core-sw") || !strings.Contains(out, "80") {
		t.Fatalf("unexpected by-tag output:\n%s", out)
	}
}

func TestCredentialAddErrors(t *testing.T) {
	e := newTestEnv(t)
	createActiveKey(t, e)
	e.mustExecute(t, "", "credential", "add", "--name", "dup", "--username", "u", "--secret", "x")

	cases := []struct {
		name string
		args []string
		want string
	}{
		{"duplicate name", []string{"--name", "dup", "--username", "u"}, "already exists"},
		{"missing name", []string{"--username", "u"}, "Invalid credential"},
		{"bad tag", []string{"--name", "n", "--username", "u", "--tag", "x:1"}, `Invalid id "x"`},
		{"bad priority", []string{"--name", "n", "--username", "u", "--tag", "2:high"}, `Invalid priority "high"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"credential", "add"}, tc.args...)
			_, _, err := e.execute(t, "", args...)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestCredentialGetUnknownAndInvalidID(t *testing.T) {
	e := newTestEnv(t)
	if _, _, err := e.execute(t, "", "credential", "get", "42"); err == nil || !strings.Contains(err.Error(), "Credential not found") {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, _, err := e.execute(t, "", "credential", "get", "abc"); err == nil || !strings.Contains(err.Error(), `Invalid id "abc"`) {
		t.Fatalf("expected invalid id, got %v", err)
	}
}

func TestCredentialTagReportSmartOptimize(t *testing.T) {
	e := newTestEnv(t)
	createActiveKey(t, e)
	e.mustExecute(t, "", "credential", "add", "--name", "reliable", "--username", "a", "--secret", "1", "--tag", "7:10")
	e.mustExecute(t, "", "credential", "add", "--name", "flaky", "--username", "b", "--secret", "2")

	out := e.mustExecute(t, "", "credential", "tag", "2", "7", "--priority", "90")
	if !strings.Contains(out, "priority 90") {
		t.Fatalf("unexpected tag output: %q", out)
	}

	for i := 0; i < 4; i++ {
		e.mustExecute(t, "", "credential", "report", "1", "success", "--tag", "7")
		e.mustExecute(t, "", "credential", "report", "2", "failure", "--tag", "7")
	}
	if _, _, err := e.execute(t, "", "credential", "report", "1", "maybe"); err == nil ||
		!strings.Contains(err.Error(), "Invalid outcome") {
		t.Fatalf("expected invalid outcome, got %v", err)
	}

	// By priority alone "flaky" comes first.
	out = e.mustExecute(t, "", "credential", "by-tag", "7")
	if strings.Index(out, "flaky") > strings.Index(out, "reliable") {
		t.Fatalf("expected priority order in by-tag output:\n%s", out)
	}

	// History outweighs priority in the smart ranking.
	out = e.mustExecute(t, "", "credential", "smart", "7")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.Contains(lines[1], "reliable") || !strings.Contains(lines[2], "flaky") {
		t.Fatalf("unexpected smart ranking:\n%s", out)
	}
	out = e.mustExecute(t, "", "credential", "smart", "7", "-n", "1")
	if strings.Contains(out, "flaky") {
		t.Fatalf("limit not applied:\n%s", out)
	}

	out = e.mustExecute(t, "", "credential", "optimize", "7")
	if !strings.Contains(out, "Reassigned the priorities of 2 credential(s) for tag 7.") {
		t.Fatalf("unexpected optimize output: %q", out)
	}
	out = e.mustExecute(t, "", "credential", "by-tag", "7")
	if strings.Index(out, "reliable") > strings.Index(out, "flaky") {
		t.Fatalf("expected optimized priorities to reorder by-tag:\n%s", out)
	}

	out = e.mustExecute(t, "", "credential", "optimize", "8")
	if !strings.Contains(out, "nothing to optimize") {
		t.Fatalf("unexpected optimize output for empty tag: %q", out)
	}

	out = e.mustExecute(t, "", "credential", "stats", "--tag", "7")
	if !strings.Contains(out, "2 credential(s)") || !strings.Contains(out, "50.0%") {
		t.Fatalf("unexpected tag stats:\n%s", out)
	}

	out = e.mustExecute(t, "", "credential", "untag", "2", "7")
	if !strings.Contains(out, "Removed the association") {
		t.Fatalf("unexpected untag output: %q", out)
	}
	out = e.mustExecute(t, "", "credential", "untag", "2", "7")
	if !strings.Contains(out, "was not associated") {
		t.Fatalf("unexpected second untag output: %q", out)
	}
}

func TestCredentialDelete(t *testing.T) {
	e := newTestEnv(t)
	createActiveKey(t, e)
	e.mustExecute(t, "", "credential", "add", "--name", "gone", "--username", "u", "--tag", "1")

	out := e.mustExecute(t, "", "credential", "delete", "1", "--yes")
	if !strings.Contains(out, "Deleted credential 1.") {
		t.Fatalf("unexpected delete output: %q", out)
	}
	if _, _, err := e.execute(t, "", "credential", "delete", "1", "--yes"); err == nil ||
		!strings.Contains(err.Error(), "Credential not found") {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
	out = e.mustExecute(t, "", "credential", "by-tag", "1")
	if !strings.Contains(out, "No credentials are associated with tag 1.") {
		t.Fatalf("associations not removed: %q", out)
	}
}

func TestCredentialReencryptCommand(t *testing.T) {
	e := newTestEnv(t)
	createActiveKey(t, e)
	for _, n := range []string{"a", "b", "c"} {
		e.mustExecute(t, "", "credential", "add", "--name", n, "--username", "u", "--secret", "pw-"+n)
	}
	e.mustExecute(t, "", "credential", "add", "--name", "nosecret", "--username", "u")

	out := e.mustExecute(t, "", "key", "create")
	second := keyIDPattern.FindString(out)

	out, errOut, err := e.execute(t, "", "credential", "reencrypt", "-k", second, "--batch-size", "2")
	if err != nil {
		t.Fatalf("reencrypt failed: %v\n%s", err, errOut)
	}
	if !strings.Contains(out, "Re-encrypted 3 of 3 secret(s); 0 failed in 2 batch(es), 0 rollback(s).") {
		t.Fatalf("unexpected summary:\n%s", out)
	}
	if !strings.Contains(errOut, "3/3") {
		t.Fatalf("expected progress on stderr, got %q", errOut)
	}

	// Envelopes name their key, so a non-active target still decrypts.
	out = e.mustExecute(t, "", "credential", "get", "3", "--show-secret")
	if !strings.Contains(out, "pw-c") {
		t.Fatalf("secret unreadable after reencrypt:\n%s", out)
	}

	_, _, err = e.execute(t, "", "credential", "reencrypt", "-k", "key_00000000000000_00000000")
	if err == nil || !strings.Contains(err.Error(), "Encryption key not found") {
		t.Fatalf("expected key not found, got %v", err)
	}
}
