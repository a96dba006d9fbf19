// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/toeirei/credvault/internal/model"
	"github.com/uptrace/bun"
)

// BunStore implements Store on top of a *bun.DB.
type BunStore struct {
	bun    *bun.DB
	dbType string
	now    func() time.Time
}

// BunDB exposes the underlying Bun handle, mainly for tests.
func (s *BunStore) BunDB() *bun.DB { return s.bun }

// Close closes the database handle.
func (s *BunStore) Close() error {
	if s == nil || s.bun == nil {
		return nil
	}
	return s.bun.Close()
}

func (s *BunStore) InsertCredential(ctx context.Context, c model.Credential, tags []model.CredentialTag) (int64, error) {
	now := s.now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	m := credentialToModel(c)
	m.ID = 0

	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(&m).Exec(ctx); err != nil {
			return MapDBError(err)
		}
		for _, t := range tags {
			row := CredentialTagModel{
				CredentialID: m.ID,
				TagID:        t.TagID,
				Priority:     t.Priority,
				CreatedAt:    c.CreatedAt,
				UpdatedAt:    c.CreatedAt,
			}
			if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
				return MapDBError(err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	dbLogf("db: inserted credential %d (%s) with %d tag(s)", m.ID, m.Name, len(tags))
	return m.ID, nil
}

func (s *BunStore) GetCredential(ctx context.Context, id int64) (*model.Credential, error) {
	var m CredentialModel
	err := s.bun.NewSelect().Model(&m).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	c := credentialModelToModel(m)
	return &c, nil
}

func (s *BunStore) ListCredentials(ctx context.Context) ([]model.Credential, error) {
	var rows []CredentialModel
	if err := s.bun.NewSelect().Model(&rows).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Credential, 0, len(rows))
	for _, m := range rows {
		out = append(out, credentialModelToModel(m))
	}
	return out, nil
}

func (s *BunStore) UpdateCredential(ctx context.Context, id int64, patch CredentialPatch) (bool, error) {
	found := false
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*CredentialModel)(nil)).Where("id = ?", id).Exists(ctx)
		if err != nil || !exists {
			return err
		}
		found = true

		q := tx.NewUpdate().Model((*CredentialModel)(nil)).Where("id = ?", id).
			Set("updated_at = ?", s.now().UTC())
		if patch.Name != nil {
			q = q.Set("name = ?", *patch.Name)
		}
		if patch.Username != nil {
			q = q.Set("username = ?", *patch.Username)
		}
		if patch.Secret != nil {
			q = q.Set("secret = ?", nullString(*patch.Secret))
		}
		if patch.UsesKeyAuth != nil {
			q = q.Set("uses_key_auth = ?", *patch.UsesKeyAuth)
		}
		if patch.KeyFile != nil {
			q = q.Set("key_file = ?", nullString(*patch.KeyFile))
		}
		if patch.Description != nil {
			q = q.Set("description = ?", nullString(*patch.Description))
		}
		if _, err := q.Exec(ctx); err != nil {
			return MapDBError(err)
		}
		return nil
	})
	return found, err
}

// DeleteCredential removes the credential together with its associations.
// The associations are deleted explicitly so engines without foreign key
// enforcement end up in the same state.
func (s *BunStore) DeleteCredential(ctx context.Context, id int64) (bool, error) {
	deleted := false
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().Model((*CredentialTagModel)(nil)).Where("credential_id = ?", id).Exec(ctx); err != nil {
			return err
		}
		res, err := tx.NewDelete().Model((*CredentialModel)(nil)).Where("id = ?", id).Exec(ctx)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		deleted = n > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *BunStore) RecordAttempt(ctx context.Context, credentialID int64, tagID *int64, success bool, at time.Time) (bool, error) {
	at = at.UTC()
	counter, lastCol := "failure_count", "last_failure"
	if success {
		counter, lastCol = "success_count", "last_success"
	}
	found := false
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*CredentialModel)(nil)).Where("id = ?", credentialID).Exists(ctx)
		if err != nil || !exists {
			return err
		}
		found = true

		if _, err := tx.NewUpdate().Model((*CredentialModel)(nil)).
			Set("? = ? + 1", bun.Ident(counter), bun.Ident(counter)).
			Set("last_used = ?", at).
			Set("? = ?", bun.Ident(lastCol), at).
			Set("updated_at = ?", at).
			Where("id = ?", credentialID).
			Exec(ctx); err != nil {
			return err
		}
		if tagID == nil {
			return nil
		}
		// A missing association is not an error; only the global counters move.
		_, err = tx.NewUpdate().Model((*CredentialTagModel)(nil)).
			Set("? = ? + 1", bun.Ident(counter), bun.Ident(counter)).
			Set("last_used = ?", at).
			Set("? = ?", bun.Ident(lastCol), at).
			Set("updated_at = ?", at).
			Where("credential_id = ?", credentialID).
			Where("tag_id = ?", *tagID).
			Exec(ctx)
		return err
	})
	return found, err
}

// UpsertCredentialTag creates the association or updates its priority in
// place. Existence is checked explicitly instead of relying on affected-row
// counts, which MySQL reports as zero for no-op updates.
func (s *BunStore) UpsertCredentialTag(ctx context.Context, credentialID, tagID int64, priority float64, at time.Time) error {
	at = at.UTC()
	return WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		exists, err := tx.NewSelect().Model((*CredentialTagModel)(nil)).
			Where("credential_id = ?", credentialID).
			Where("tag_id = ?", tagID).
			Exists(ctx)
		if err != nil {
			return err
		}
		if exists {
			_, err = tx.NewUpdate().Model((*CredentialTagModel)(nil)).
				Set("priority = ?", priority).
				Set("updated_at = ?", at).
				Where("credential_id = ?", credentialID).
				Where("tag_id = ?", tagID).
				Exec(ctx)
			return err
		}
		row := CredentialTagModel{
			CredentialID: credentialID,
			TagID:        tagID,
			Priority:     priority,
			CreatedAt:    at,
			UpdatedAt:    at,
		}
		if _, err := tx.NewInsert().Model(&row).Exec(ctx); err != nil {
			return MapDBError(err)
		}
		return nil
	})
}

func (s *BunStore) DeleteCredentialTag(ctx context.Context, credentialID, tagID int64) (bool, error) {
	res, err := s.bun.NewDelete().Model((*CredentialTagModel)(nil)).
		Where("credential_id = ?", credentialID).
		Where("tag_id = ?", tagID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *BunStore) GetTagAssociations(ctx context.Context, tagID int64) ([]model.TaggedCredential, error) {
	var assocs []CredentialTagModel
	if err := s.bun.NewSelect().Model(&assocs).
		Where("tag_id = ?", tagID).
		OrderExpr("priority DESC, credential_id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	if len(assocs) == 0 {
		return nil, nil
	}

	ids := make([]int64, 0, len(assocs))
	for _, a := range assocs {
		ids = append(ids, a.CredentialID)
	}
	var creds []CredentialModel
	if err := s.bun.NewSelect().Model(&creds).Where("id IN (?)", bun.In(ids)).Scan(ctx); err != nil {
		return nil, err
	}
	byID := make(map[int64]CredentialModel, len(creds))
	for _, c := range creds {
		byID[c.ID] = c
	}

	out := make([]model.TaggedCredential, 0, len(assocs))
	for _, a := range assocs {
		c, ok := byID[a.CredentialID]
		if !ok {
			continue
		}
		out = append(out, model.TaggedCredential{
			Credential: credentialModelToModel(c),
			Tag:        credentialTagModelToModel(a),
		})
	}
	return out, nil
}

func (s *BunStore) SetTagPriorities(ctx context.Context, tagID int64, priorities map[int64]float64, at time.Time) error {
	if len(priorities) == 0 {
		return nil
	}
	at = at.UTC()
	return WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		for credID, p := range priorities {
			if _, err := tx.NewUpdate().Model((*CredentialTagModel)(nil)).
				Set("priority = ?", p).
				Set("updated_at = ?", at).
				Where("credential_id = ?", credID).
				Where("tag_id = ?", tagID).
				Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BunStore) CountSecrets(ctx context.Context) (int, error) {
	return s.bun.NewSelect().Model((*CredentialModel)(nil)).
		Where("secret IS NOT NULL").
		Where("secret <> ''").
		Count(ctx)
}

func (s *BunStore) ProcessSecretBatch(ctx context.Context, afterID int64, limit int, fn func([]SecretRow) ([]SecretRow, error)) (BatchResult, error) {
	var res BatchResult
	err := WithTx(ctx, s.bun, func(ctx context.Context, tx bun.Tx) error {
		var rows []SecretRow
		if err := QueryRawInto(ctx, tx, &rows,
			"SELECT id, secret FROM credentials WHERE id > ? AND secret IS NOT NULL AND secret <> '' ORDER BY id ASC LIMIT ?",
			afterID, limit); err != nil {
			return fmt.Errorf("%w: %v", ErrBatchLoad, err)
		}
		res.Loaded = len(rows)
		if len(rows) == 0 {
			return nil
		}
		res.LastID = rows[len(rows)-1].ID

		updated, err := fn(rows)
		if err != nil {
			return err
		}
		now := s.now().UTC()
		for _, r := range updated {
			if _, err := ExecRaw(ctx, tx, "UPDATE credentials SET secret = ?, updated_at = ? WHERE id = ?", r.Secret, now, r.ID); err != nil {
				return fmt.Errorf("update credential %d: %w", r.ID, err)
			}
		}
		return nil
	})
	return res, err
}
