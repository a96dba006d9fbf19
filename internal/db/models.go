// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"database/sql"
	"time"

	"github.com/toeirei/credvault/internal/model"
	"github.com/uptrace/bun"
)

// CredentialModel is the Bun row of the credentials table.
type CredentialModel struct {
	bun.BaseModel `bun:"table:credentials"`

	ID           int64          `bun:"id,pk,autoincrement"`
	Name         string         `bun:"name,notnull"`
	Username     string         `bun:"username,notnull"`
	Secret       sql.NullString `bun:"secret"`
	UsesKeyAuth  bool           `bun:"uses_key_auth,notnull"`
	KeyFile      sql.NullString `bun:"key_file"`
	Description  sql.NullString `bun:"description"`
	SuccessCount int            `bun:"success_count,notnull"`
	FailureCount int            `bun:"failure_count,notnull"`
	LastUsed     bun.NullTime   `bun:"last_used"`
	LastSuccess  bun.NullTime   `bun:"last_success"`
	LastFailure  bun.NullTime   `bun:"last_failure"`
	CreatedAt    time.Time      `bun:"created_at,notnull"`
	UpdatedAt    time.Time      `bun:"updated_at,notnull"`
}

// CredentialTagModel is the Bun row of the credential_tags table.
type CredentialTagModel struct {
	bun.BaseModel `bun:"table:credential_tags"`

	CredentialID int64        `bun:"credential_id,pk"`
	TagID        int64        `bun:"tag_id,pk"`
	Priority     float64      `bun:"priority,notnull"`
	SuccessCount int          `bun:"success_count,notnull"`
	FailureCount int          `bun:"failure_count,notnull"`
	LastUsed     bun.NullTime `bun:"last_used"`
	LastSuccess  bun.NullTime `bun:"last_success"`
	LastFailure  bun.NullTime `bun:"last_failure"`
	CreatedAt    time.Time    `bun:"created_at,notnull"`
	UpdatedAt    time.Time    `bun:"updated_at,notnull"`
}

func credentialModelToModel(m CredentialModel) model.Credential {
	return model.Credential{
		ID:           m.ID,
		Name:         m.Name,
		Username:     m.Username,
		Secret:       m.Secret.String,
		HasSecret:    m.Secret.Valid && m.Secret.String != "",
		UsesKeyAuth:  m.UsesKeyAuth,
		KeyFile:      m.KeyFile.String,
		Description:  m.Description.String,
		SuccessCount: m.SuccessCount,
		FailureCount: m.FailureCount,
		LastUsed:     timePtr(m.LastUsed),
		LastSuccess:  timePtr(m.LastSuccess),
		LastFailure:  timePtr(m.LastFailure),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func credentialToModel(c model.Credential) CredentialModel {
	return CredentialModel{
		ID:           c.ID,
		Name:         c.Name,
		Username:     c.Username,
		Secret:       nullString(c.Secret),
		UsesKeyAuth:  c.UsesKeyAuth,
		KeyFile:      nullString(c.KeyFile),
		Description:  nullString(c.Description),
		SuccessCount: c.SuccessCount,
		FailureCount: c.FailureCount,
		LastUsed:     nullTime(c.LastUsed),
		LastSuccess:  nullTime(c.LastSuccess),
		LastFailure:  nullTime(c.LastFailure),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

func credentialTagModelToModel(m CredentialTagModel) model.CredentialTag {
	return model.CredentialTag{
		CredentialID: m.CredentialID,
		TagID:        m.TagID,
		Priority:     m.Priority,
		SuccessCount: m.SuccessCount,
		FailureCount: m.FailureCount,
		LastUsed:     timePtr(m.LastUsed),
		LastSuccess:  timePtr(m.LastSuccess),
		LastFailure:  timePtr(m.LastFailure),
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) bun.NullTime {
	if t == nil {
		return bun.NullTime{}
	}
	return bun.NullTime{Time: *t}
}

func timePtr(t bun.NullTime) *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}
