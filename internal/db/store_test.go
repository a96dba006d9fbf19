// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/toeirei/credvault/internal/model"
)

func newTestStore(t *testing.T) *BunStore {
	t.Helper()
	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	s, err := NewStoreFromDSN(TypeSQLite, dsn)
	if err != nil {
		t.Fatalf("NewStoreFromDSN failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertCred(t *testing.T, s *BunStore, name, secret string, tags ...model.CredentialTag) int64 {
	t.Helper()
	id, err := s.InsertCredential(context.Background(), model.Credential{Name: name, Username: "admin", Secret: secret}, tags)
	if err != nil {
		t.Fatalf("InsertCredential(%s) failed: %v", name, err)
	}
	return id
}

func TestInsertAndGetCredential(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := insertCred(t, s, "core-router", "enc", model.CredentialTag{TagID: 7, Priority: 50})
	got, err := s.GetCredential(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("GetCredential failed: %v (%v)", err, got)
	}
	if got.Name != "core-router" || got.Secret != "enc" || !got.HasSecret {
		t.Fatalf("unexpected credential: %+v", got)
	}
	if got.LastUsed != nil {
		t.Fatalf("expected nil LastUsed, got %v", got.LastUsed)
	}

	assocs, err := s.GetTagAssociations(ctx, 7)
	if err != nil {
		t.Fatalf("GetTagAssociations failed: %v", err)
	}
	if len(assocs) != 1 || assocs[0].Tag.Priority != 50 || assocs[0].Credential.ID != id {
		t.Fatalf("unexpected associations: %+v", assocs)
	}

	missing, err := s.GetCredential(ctx, id+100)
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing credential, got %v, %v", missing, err)
	}
}

func TestInsertDuplicateNameMapsToIntegrityViolation(t *testing.T) {
	s := newTestStore(t)
	insertCred(t, s, "dup", "")
	_, err := s.InsertCredential(context.Background(), model.Credential{Name: "dup", Username: "x"}, nil)
	if !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("expected ErrIntegrityViolation, got %v", err)
	}
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
}

func TestInsertWithDuplicateTagRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.InsertCredential(ctx, model.Credential{Name: "twice", Username: "x"},
		[]model.CredentialTag{{TagID: 1}, {TagID: 1}})
	if !errors.Is(err, ErrIntegrityViolation) {
		t.Fatalf("expected ErrIntegrityViolation, got %v", err)
	}
	list, err := s.ListCredentials(ctx)
	if err != nil {
		t.Fatalf("ListCredentials failed: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected rollback to leave no credentials, got %d", len(list))
	}
}

func TestUpsertCredentialTagUpdatesInPlace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := insertCred(t, s, "a", "")
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	if err := s.UpsertCredentialTag(ctx, id, 3, 10, now); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	if err := s.UpsertCredentialTag(ctx, id, 3, 80, now.Add(time.Hour)); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	assocs, err := s.GetTagAssociations(ctx, 3)
	if err != nil {
		t.Fatalf("GetTagAssociations failed: %v", err)
	}
	if len(assocs) != 1 {
		t.Fatalf("expected exactly one association row, got %d", len(assocs))
	}
	if assocs[0].Tag.Priority != 80 {
		t.Fatalf("expected priority 80, got %v", assocs[0].Tag.Priority)
	}
}

func TestGetTagAssociationsOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := insertCred(t, s, "a", "", model.CredentialTag{TagID: 9, Priority: 10})
	b := insertCred(t, s, "b", "", model.CredentialTag{TagID: 9, Priority: 90})
	c := insertCred(t, s, "c", "", model.CredentialTag{TagID: 9, Priority: 10})

	assocs, err := s.GetTagAssociations(ctx, 9)
	if err != nil {
		t.Fatalf("GetTagAssociations failed: %v", err)
	}
	want := []int64{b, a, c}
	if len(assocs) != len(want) {
		t.Fatalf("expected %d associations, got %d", len(want), len(assocs))
	}
	for i, id := range want {
		if assocs[i].Credential.ID != id {
			t.Fatalf("position %d: expected credential %d, got %d", i, id, assocs[i].Credential.ID)
		}
	}
}

func TestDeleteCredentialCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := insertCred(t, s, "gone", "", model.CredentialTag{TagID: 4, Priority: 1})

	ok, err := s.DeleteCredential(ctx, id)
	if err != nil || !ok {
		t.Fatalf("DeleteCredential = %v, %v", ok, err)
	}
	assocs, err := s.GetTagAssociations(ctx, 4)
	if err != nil {
		t.Fatalf("GetTagAssociations failed: %v", err)
	}
	if len(assocs) != 0 {
		t.Fatalf("expected associations to be removed, got %d", len(assocs))
	}
	ok, err = s.DeleteCredential(ctx, id)
	if err != nil || ok {
		t.Fatalf("second delete = %v, %v; want false, nil", ok, err)
	}
}

func TestRecordAttemptUpdatesBothCounters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := insertCred(t, s, "r", "", model.CredentialTag{TagID: 2})
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	tag := int64(2)

	if ok, err := s.RecordAttempt(ctx, id, &tag, true, at); err != nil || !ok {
		t.Fatalf("RecordAttempt success = %v, %v", ok, err)
	}
	if ok, err := s.RecordAttempt(ctx, id, nil, false, at.Add(time.Minute)); err != nil || !ok {
		t.Fatalf("RecordAttempt failure = %v, %v", ok, err)
	}

	got, err := s.GetCredential(ctx, id)
	if err != nil {
		t.Fatalf("GetCredential failed: %v", err)
	}
	if got.SuccessCount != 1 || got.FailureCount != 1 {
		t.Fatalf("unexpected global counters: %d/%d", got.SuccessCount, got.FailureCount)
	}
	if got.LastSuccess == nil || !got.LastSuccess.Equal(at) {
		t.Fatalf("unexpected LastSuccess: %v", got.LastSuccess)
	}
	if got.LastFailure == nil || got.LastUsed == nil || !got.LastUsed.Equal(at.Add(time.Minute)) {
		t.Fatalf("unexpected LastFailure/LastUsed: %v %v", got.LastFailure, got.LastUsed)
	}

	assocs, _ := s.GetTagAssociations(ctx, 2)
	if len(assocs) != 1 || assocs[0].Tag.SuccessCount != 1 || assocs[0].Tag.FailureCount != 0 {
		t.Fatalf("unexpected association counters: %+v", assocs)
	}

	if ok, err := s.RecordAttempt(ctx, id+50, nil, true, at); err != nil || ok {
		t.Fatalf("RecordAttempt on missing credential = %v, %v; want false, nil", ok, err)
	}
}

func TestUpdateCredentialPatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := insertCred(t, s, "p", "old")

	desc := "edge router"
	empty := ""
	ok, err := s.UpdateCredential(ctx, id, CredentialPatch{Description: &desc, Secret: &empty})
	if err != nil || !ok {
		t.Fatalf("UpdateCredential = %v, %v", ok, err)
	}
	got, _ := s.GetCredential(ctx, id)
	if got.Description != desc || got.HasSecret {
		t.Fatalf("patch not applied: %+v", got)
	}
	ok, err = s.UpdateCredential(ctx, id+10, CredentialPatch{Description: &desc})
	if err != nil || ok {
		t.Fatalf("UpdateCredential on missing = %v, %v", ok, err)
	}
}

func TestProcessSecretBatchRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := insertCred(t, s, "one", "s1")
	second := insertCred(t, s, "two", "s2")
	insertCred(t, s, "nosecret", "")

	n, err := s.CountSecrets(ctx)
	if err != nil || n != 2 {
		t.Fatalf("CountSecrets = %d, %v; want 2", n, err)
	}

	boom := errors.New("boom")
	res, err := s.ProcessSecretBatch(ctx, 0, 10, func(rows []SecretRow) ([]SecretRow, error) {
		return []SecretRow{{ID: rows[0].ID, Secret: "changed"}}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if res.Loaded != 2 || res.LastID != second {
		t.Fatalf("unexpected batch result: %+v", res)
	}
	got, _ := s.GetCredential(ctx, first)
	if got.Secret != "s1" {
		t.Fatalf("expected rollback to keep s1, got %q", got.Secret)
	}

	res, err = s.ProcessSecretBatch(ctx, 0, 1, func(rows []SecretRow) ([]SecretRow, error) {
		return []SecretRow{{ID: rows[0].ID, Secret: "new-" + rows[0].Secret}}, nil
	})
	if err != nil || res.Loaded != 1 || res.LastID != first {
		t.Fatalf("ProcessSecretBatch = %+v, %v", res, err)
	}
	got, _ = s.GetCredential(ctx, first)
	if got.Secret != "new-s1" {
		t.Fatalf("expected committed update, got %q", got.Secret)
	}

	res, err = s.ProcessSecretBatch(ctx, second, 5, func(rows []SecretRow) ([]SecretRow, error) {
		t.Fatalf("fn must not run for an empty batch")
		return nil, nil
	})
	if err != nil || res.Loaded != 0 {
		t.Fatalf("expected empty batch, got %+v, %v", res, err)
	}
}

func TestSetTagPriorities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := insertCred(t, s, "a", "", model.CredentialTag{TagID: 5, Priority: 1})
	b := insertCred(t, s, "b", "", model.CredentialTag{TagID: 5, Priority: 2})

	if err := s.SetTagPriorities(ctx, 5, map[int64]float64{a: 100, b: 90}, time.Now()); err != nil {
		t.Fatalf("SetTagPriorities failed: %v", err)
	}
	assocs, _ := s.GetTagAssociations(ctx, 5)
	if assocs[0].Credential.ID != a || assocs[0].Tag.Priority != 100 || assocs[1].Tag.Priority != 90 {
		t.Fatalf("unexpected priorities: %+v", assocs)
	}
}

func TestMigrationsAreIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := RunMigrations(s.bun.DB, TypeSQLite); err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}
	if err := s.Maintain(context.Background()); err != nil {
		t.Fatalf("Maintain failed: %v", err)
	}
}

func TestSQLiteDSNAddsForeignKeys(t *testing.T) {
	cases := []struct{ in, want string }{
		{"file:x?mode=memory", "file:x?mode=memory&_pragma=foreign_keys(1)"},
		{"/tmp/db.sqlite", "/tmp/db.sqlite?_pragma=foreign_keys(1)"},
		{":memory:", "file::memory:?_pragma=foreign_keys(1)"},
		{"x.db?_pragma=foreign_keys(0)", "x.db?_pragma=foreign_keys(0)"},
	}
	for _, tc := range cases {
		if got := sqliteDSN(tc.in); got != tc.want {
			t.Errorf("sqliteDSN(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMapDBError(t *testing.T) {
	if MapDBError(nil) != nil {
		t.Fatalf("nil must map to nil")
	}
	if err := MapDBError(errors.New("UNIQUE constraint failed: credentials.name")); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("unique not mapped: %v", err)
	}
	if err := MapDBError(errors.New("FOREIGN KEY constraint failed")); !errors.Is(err, ErrIntegrityViolation) || errors.Is(err, ErrDuplicate) {
		t.Fatalf("foreign key not mapped: %v", err)
	}
	other := errors.New("disk I/O error")
	if MapDBError(other) != other {
		t.Fatalf("unrelated errors must pass through")
	}
}

func TestUnsupportedDatabaseType(t *testing.T) {
	if _, err := NewStoreFromDSN("oracle", "x"); err == nil {
		t.Fatalf("expected error for unsupported type")
	}
}
