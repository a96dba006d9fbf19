// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package reencrypt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/toeirei/credvault/internal/db"
	"github.com/toeirei/credvault/internal/envelope"
	"github.com/toeirei/credvault/internal/keys"
	"github.com/toeirei/credvault/internal/model"
	"github.com/toeirei/credvault/internal/testutil"
)

// failingCodec fails to encrypt the plaintexts listed in failOn.
type failingCodec struct {
	*envelope.Codec
	failOn map[string]bool
}

func (f failingCodec) Encrypt(plaintext, keyID string) (string, error) {
	if f.failOn[plaintext] {
		return "", fmt.Errorf("injected failure for %q", plaintext)
	}
	return f.Codec.Encrypt(plaintext, keyID)
}

type fixture struct {
	store *db.BunStore
	reg   *keys.Registry
	codec *envelope.Codec
	ids   []int64
}

func newFixture(t *testing.T, n int) *fixture {
	t.Helper()
	f := &fixture{
		store: testutil.NewStore(t),
		reg:   testutil.NewRegistry(t, nil, true),
	}
	f.codec = envelope.NewCodec(f.reg)
	ctx := context.Background()
	for i := 1; i <= n; i++ {
		enc, err := f.codec.Encrypt(fmt.Sprintf("secret-%d", i), "")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		id, err := f.store.InsertCredential(ctx, model.Credential{Name: fmt.Sprintf("cred-%d", i), Username: "admin", Secret: enc}, nil)
		if err != nil {
			t.Fatalf("InsertCredential failed: %v", err)
		}
		f.ids = append(f.ids, id)
	}
	return f
}

func (f *fixture) newKey(t *testing.T) string {
	t.Helper()
	id, err := f.reg.CreateKey("target")
	if err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}
	return id
}

func (f *fixture) keyOf(t *testing.T, id int64) string {
	t.Helper()
	c, err := f.store.GetCredential(context.Background(), id)
	if err != nil || c == nil {
		t.Fatalf("GetCredential(%d) failed: %v", id, err)
	}
	kid, _ := envelope.KeyIDOf(c.Secret)
	return kid
}

func TestReencryptAllMovesEverySecret(t *testing.T) {
	f := newFixture(t, 7)
	oldKey := f.reg.ActiveKeyID()
	target := f.newKey(t)

	var calls [][4]int
	c := New(f.store, f.codec, f.reg, Options{BatchSize: 3, Progress: func(p, total, s, fl int) {
		calls = append(calls, [4]int{p, total, s, fl})
	}})
	stats, err := c.ReencryptAll(context.Background(), target)
	if err != nil {
		t.Fatalf("ReencryptAll failed: %v", err)
	}
	if stats.Total != 7 || stats.Success != 7 || stats.Failed != 0 || stats.Batches != 3 || stats.Rollbacks != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	want := [][4]int{{3, 7, 3, 0}, {6, 7, 6, 0}, {7, 7, 7, 0}}
	if fmt.Sprint(calls) != fmt.Sprint(want) {
		t.Fatalf("progress calls = %v, want %v", calls, want)
	}
	for i, id := range f.ids {
		if got := f.keyOf(t, id); got != target || got == oldKey {
			t.Fatalf("credential %d on key %q, want %q", id, got, target)
		}
		c, _ := f.store.GetCredential(context.Background(), id)
		pt, err := f.codec.Decrypt(c.Secret)
		if err != nil || pt != fmt.Sprintf("secret-%d", i+1) {
			t.Fatalf("credential %d decrypts to %q, %v", id, pt, err)
		}
	}
}

func TestReencryptRollsBackFailedBatch(t *testing.T) {
	f := newFixture(t, 10)
	oldKey := f.reg.ActiveKeyID()
	target := f.newKey(t)

	codec := failingCodec{Codec: f.codec, failOn: map[string]bool{"secret-6": true}}
	c := New(f.store, codec, f.reg, Options{BatchSize: 5})
	stats, err := c.ReencryptAll(context.Background(), target)
	if err != nil {
		t.Fatalf("ReencryptAll failed: %v", err)
	}
	if stats.Total != 10 || stats.Success != 5 || stats.Failed != 5 || stats.Rollbacks != 1 || stats.Batches != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.Errors) != 1 || !strings.Contains(stats.Errors[0], "injected failure") {
		t.Fatalf("unexpected errors: %v", stats.Errors)
	}
	for i, id := range f.ids {
		want := target
		if i >= 5 {
			want = oldKey
		}
		if got := f.keyOf(t, id); got != want {
			t.Fatalf("credential #%d on key %q, want %q", i+1, got, want)
		}
	}
}

func TestReencryptUnknownKey(t *testing.T) {
	f := newFixture(t, 2)
	c := New(f.store, f.codec, f.reg, Options{})
	stats, err := c.ReencryptAll(context.Background(), "key_missing")
	if !errors.Is(err, keys.ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
	if stats.Batches != 0 || stats.Total != 0 {
		t.Fatalf("no work expected, got %+v", stats)
	}
}

func TestReencryptCapsErrors(t *testing.T) {
	f := newFixture(t, 30)
	target := f.newKey(t)
	fail := map[string]bool{}
	for i := 1; i <= 30; i++ {
		fail[fmt.Sprintf("secret-%d", i)] = true
	}
	c := New(f.store, failingCodec{Codec: f.codec, failOn: fail}, f.reg, Options{BatchSize: 1})
	stats, err := c.ReencryptAll(context.Background(), target)
	if err != nil {
		t.Fatalf("ReencryptAll failed: %v", err)
	}
	if stats.Failed != 30 || stats.Rollbacks != 30 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(stats.Errors) != MaxErrors+1 || stats.Errors[MaxErrors] != "...and 10 more" {
		t.Fatalf("unexpected error list (%d): %v", len(stats.Errors), stats.Errors[len(stats.Errors)-1])
	}
}

func TestReencryptStopsOnCancel(t *testing.T) {
	f := newFixture(t, 6)
	target := f.newKey(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c := New(f.store, f.codec, f.reg, Options{BatchSize: 2, Progress: func(int, int, int, int) { cancel() }})
	stats, err := c.ReencryptAll(ctx, target)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if stats.Batches != 1 || stats.Success != 2 {
		t.Fatalf("expected exactly one committed batch, got %+v", stats)
	}
	if got := f.keyOf(t, f.ids[2]); got == target {
		t.Fatalf("credential beyond the cancelled point was re-encrypted")
	}
}

func TestRotationTriggersReencryption(t *testing.T) {
	f := newFixture(t, 4)
	f.reg.AttachReencryptor(New(f.store, f.codec, f.reg, Options{BatchSize: 2}))

	res, err := f.reg.RotateKeys(context.Background(), true)
	if err != nil || !res.Rotated {
		t.Fatalf("RotateKeys = %+v, %v", res, err)
	}
	if res.Reencrypt == nil || res.Reencrypt.Success != 4 || res.ReencryptErr != nil {
		t.Fatalf("unexpected re-encryption result: %+v / %v", res.Reencrypt, res.ReencryptErr)
	}
	for _, id := range f.ids {
		if got := f.keyOf(t, id); got != res.NewKeyID {
			t.Fatalf("credential %d on %q, want %q", id, got, res.NewKeyID)
		}
	}
}

func TestRotationEncryptsValuesStoredWithoutKey(t *testing.T) {
	store := testutil.NewStore(t)
	reg := testutil.NewRegistry(t, nil, false)
	codec := envelope.NewCodec(reg)
	ctx := context.Background()

	secrets := []string{"p@ss word!", "hunter2", `{"key_id":"x"}`}
	var ids []int64
	for i, s := range secrets {
		stored, err := codec.Encrypt(s, "")
		if err != nil {
			t.Fatalf("Encrypt without keys: %v", err)
		}
		id, err := store.InsertCredential(ctx, model.Credential{Name: fmt.Sprintf("early-%d", i), Username: "admin", Secret: stored}, nil)
		if err != nil {
			t.Fatalf("InsertCredential failed: %v", err)
		}
		ids = append(ids, id)
	}

	reg.AttachReencryptor(New(store, codec, reg, Options{BatchSize: 2}))
	res, err := reg.RotateKeys(ctx, true)
	if err != nil || !res.Rotated {
		t.Fatalf("RotateKeys = %+v, %v", res, err)
	}
	st := res.Reencrypt
	if st == nil || res.ReencryptErr != nil || st.Success != 3 || st.Failed != 0 || st.Rollbacks != 0 {
		t.Fatalf("unexpected re-encryption result: %+v / %v", st, res.ReencryptErr)
	}
	for i, id := range ids {
		c, err := store.GetCredential(ctx, id)
		if err != nil || c == nil {
			t.Fatalf("GetCredential(%d): %v", id, err)
		}
		if kid, ok := envelope.KeyIDOf(c.Secret); !ok || kid != res.NewKeyID {
			t.Fatalf("credential %d on %q, want %q", id, kid, res.NewKeyID)
		}
		if pt, err := codec.Decrypt(c.Secret); err != nil || pt != secrets[i] {
			t.Fatalf("credential %d decrypts to %q, %v", id, pt, err)
		}
	}
}
