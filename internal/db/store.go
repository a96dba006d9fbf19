// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"errors"
	"time"

	"github.com/toeirei/credvault/internal/model"
)

// ErrBatchLoad marks a failure to read the next re-encryption batch. The
// caller cannot advance past it.
var ErrBatchLoad = errors.New("failed to load batch")

// SecretRow is the stored (encrypted) secret of one credential.
type SecretRow struct {
	ID     int64
	Secret string
}

// BatchResult describes the rows a ProcessSecretBatch call loaded. LastID is
// set even when the batch was rolled back so callers can move on.
type BatchResult struct {
	LastID int64
	Loaded int
}

// CredentialPatch is a partial credential update. Nil fields are left as is.
// Secret holds the stored envelope; an empty string clears the secret.
type CredentialPatch struct {
	Name        *string
	Username    *string
	Secret      *string
	UsesKeyAuth *bool
	KeyFile     *string
	Description *string
}

// Empty reports whether the patch changes nothing.
func (p CredentialPatch) Empty() bool {
	return p.Name == nil && p.Username == nil && p.Secret == nil &&
		p.UsesKeyAuth == nil && p.KeyFile == nil && p.Description == nil
}

// Store is the persistence contract of the credential store. Secrets cross
// this boundary in their stored (encrypted) form only.
type Store interface {
	// InsertCredential stores c and one association per tag in a single
	// transaction and returns the new id.
	InsertCredential(ctx context.Context, c model.Credential, tags []model.CredentialTag) (int64, error)
	// GetCredential returns nil, nil when id does not exist.
	GetCredential(ctx context.Context, id int64) (*model.Credential, error)
	ListCredentials(ctx context.Context) ([]model.Credential, error)
	UpdateCredential(ctx context.Context, id int64, patch CredentialPatch) (bool, error)
	DeleteCredential(ctx context.Context, id int64) (bool, error)

	// RecordAttempt bumps the credential's counters and, when tagID names an
	// existing association, the association's counters. It reports false
	// when the credential does not exist.
	RecordAttempt(ctx context.Context, credentialID int64, tagID *int64, success bool, at time.Time) (bool, error)

	UpsertCredentialTag(ctx context.Context, credentialID, tagID int64, priority float64, at time.Time) error
	DeleteCredentialTag(ctx context.Context, credentialID, tagID int64) (bool, error)
	// GetTagAssociations returns the credentials associated with tagID,
	// ordered by priority descending, then credential id.
	GetTagAssociations(ctx context.Context, tagID int64) ([]model.TaggedCredential, error)
	SetTagPriorities(ctx context.Context, tagID int64, priorities map[int64]float64, at time.Time) error

	// CountSecrets returns the number of credentials with a stored secret.
	CountSecrets(ctx context.Context) (int, error)
	// ProcessSecretBatch loads up to limit secrets with id > afterID in one
	// transaction, hands them to fn and writes back the rows fn returns.
	// Any error rolls the whole batch back. Load errors wrap ErrBatchLoad.
	ProcessSecretBatch(ctx context.Context, afterID int64, limit int, fn func([]SecretRow) ([]SecretRow, error)) (BatchResult, error)

	Maintain(ctx context.Context) error
	Close() error
}

var _ Store = (*BunStore)(nil)
