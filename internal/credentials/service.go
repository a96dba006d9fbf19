// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package credentials is the credential store: CRUD over encrypted secrets,
// tag associations with per-tag usage counters, smart selection and usage
// statistics. Storage goes through db.Store; secrets through a SecretCodec.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/toeirei/credvault/internal/db"
	"github.com/toeirei/credvault/internal/logging"
	"github.com/toeirei/credvault/internal/model"
	"github.com/toeirei/credvault/internal/selection"
	"github.com/toeirei/credvault/internal/sshkey"
)

var (
	// ErrCredentialNotFound is returned by operations that require an
	// existing credential.
	ErrCredentialNotFound = errors.New("credential not found")
	// ErrInvalidCredential reports missing required fields.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Defaults for the statistics helpers.
const (
	DefaultMinAttempts    = 10
	DefaultMinTagAttempts = 5
	DefaultActiveWindow   = 30 * 24 * time.Hour
	performerCount        = 5
)

// SecretCodec turns plaintext secrets into their stored form and back.
// *envelope.Codec implements it.
type SecretCodec interface {
	Encrypt(plaintext, keyID string) (string, error)
	Decrypt(stored string) (string, error)
}

// Selector is what the device-connection layer consumes: candidates for a
// tag, in order, and a way to report how each attempt went.
type Selector interface {
	GetCredential(ctx context.Context, id int64) (*model.Credential, error)
	GetCredentialsByTag(ctx context.Context, tagID int64) ([]model.TaggedCredential, error)
	SmartCredentialsForTag(ctx context.Context, tagID int64, limit int) ([]model.ScoredCredential, error)
	UpdateCredentialStatus(ctx context.Context, credentialID int64, tagID *int64, success bool) (bool, error)
}

var _ Selector = (*Service)(nil)

// TagPriority associates a new credential with a tag.
type TagPriority struct {
	TagID    int64
	Priority float64
}

// NewCredential is the input of AddCredential. A nil Secret stores no secret.
type NewCredential struct {
	Name        string
	Username    string
	Secret      *string
	UsesKeyAuth bool
	KeyFile     string
	Description string
	Tags        []TagPriority
}

// CredentialUpdate is a partial update; nil fields are kept. An empty Secret
// removes the stored secret.
type CredentialUpdate struct {
	Name        *string
	Username    *string
	Secret      *string
	UsesKeyAuth *bool
	KeyFile     *string
	Description *string
}

// Options tunes a Service. Zero values select the defaults.
type Options struct {
	Now            func() time.Time
	MinAttempts    int
	MinTagAttempts int
	ActiveWindow   time.Duration
	// InspectKeyFile validates key files of key-auth credentials. Defaults to
	// sshkey.InspectPrivateKeyFile.
	InspectKeyFile func(path string) error
}

// Service is the credential store.
type Service struct {
	store          db.Store
	codec          SecretCodec
	now            func() time.Time
	minAttempts    int
	minTagAttempts int
	activeWindow   time.Duration
	inspectKeyFile func(path string) error
}

// New returns a Service over store, encrypting secrets with codec.
func New(store db.Store, codec SecretCodec, opts Options) *Service {
	s := &Service{
		store:          store,
		codec:          codec,
		now:            opts.Now,
		minAttempts:    opts.MinAttempts,
		minTagAttempts: opts.MinTagAttempts,
		activeWindow:   opts.ActiveWindow,
		inspectKeyFile: opts.InspectKeyFile,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.minAttempts <= 0 {
		s.minAttempts = DefaultMinAttempts
	}
	if s.minTagAttempts <= 0 {
		s.minTagAttempts = DefaultMinTagAttempts
	}
	if s.activeWindow <= 0 {
		s.activeWindow = DefaultActiveWindow
	}
	if s.inspectKeyFile == nil {
		s.inspectKeyFile = inspectKeyFile
	}
	return s
}

// inspectKeyFile accepts encrypted keys; the passphrase is the device
// layer's concern.
func inspectKeyFile(path string) error {
	_, err := sshkey.InspectPrivateKeyFile(path, nil)
	if errors.Is(err, sshkey.ErrPassphraseRequired) {
		return nil
	}
	return err
}

// AddCredential encrypts the secret and stores the credential together with
// its tag associations in one transaction.
func (s *Service) AddCredential(ctx context.Context, nc NewCredential) (int64, error) {
	nc.Name = strings.TrimSpace(nc.Name)
	nc.Username = strings.TrimSpace(nc.Username)
	if nc.Name == "" || nc.Username == "" {
		return 0, fmt.Errorf("%w: name and username are required", ErrInvalidCredential)
	}
	if nc.UsesKeyAuth && nc.KeyFile != "" {
		if err := s.inspectKeyFile(nc.KeyFile); err != nil {
			return 0, fmt.Errorf("%w: key file %s: %w", ErrInvalidCredential, nc.KeyFile, err)
		}
	}

	var stored string
	if nc.Secret != nil {
		enc, err := s.codec.Encrypt(*nc.Secret, "")
		if err != nil {
			return 0, fmt.Errorf("failed to encrypt secret: %w", err)
		}
		stored = enc
	}

	now := s.now().UTC()
	tags := make([]model.CredentialTag, 0, len(nc.Tags))
	for _, tp := range nc.Tags {
		tags = append(tags, model.CredentialTag{TagID: tp.TagID, Priority: tp.Priority})
	}
	id, err := s.store.InsertCredential(ctx, model.Credential{
		Name:        nc.Name,
		Username:    nc.Username,
		Secret:      stored,
		UsesKeyAuth: nc.UsesKeyAuth,
		KeyFile:     nc.KeyFile,
		Description: nc.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, tags)
	if err != nil {
		return 0, fmt.Errorf("failed to add credential %q: %w", nc.Name, err)
	}
	logging.Infof("credentials: added %q (id %d, %d tag(s))", nc.Name, id, len(tags))
	return id, nil
}

// GetCredential returns the credential with its secret decrypted, or nil, nil
// when it does not exist.
func (s *Service) GetCredential(ctx context.Context, id int64) (*model.Credential, error) {
	c, err := s.store.GetCredential(ctx, id)
	if err != nil || c == nil {
		return nil, err
	}
	if c.HasSecret {
		pt, err := s.codec.Decrypt(c.Secret)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt secret of credential %d: %w", id, err)
		}
		c.Secret = pt
	}
	return c, nil
}

// ListCredentials returns every credential without decrypting secrets.
func (s *Service) ListCredentials(ctx context.Context) ([]model.Credential, error) {
	list, err := s.store.ListCredentials(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Secret = ""
	}
	return list, nil
}

// UpdateCredential applies a partial update, encrypting a new secret under
// the active key.
func (s *Service) UpdateCredential(ctx context.Context, id int64, u CredentialUpdate) error {
	patch := db.CredentialPatch{
		Name:        u.Name,
		Username:    u.Username,
		UsesKeyAuth: u.UsesKeyAuth,
		KeyFile:     u.KeyFile,
		Description: u.Description,
	}
	if u.Secret != nil {
		stored := ""
		if *u.Secret != "" {
			enc, err := s.codec.Encrypt(*u.Secret, "")
			if err != nil {
				return fmt.Errorf("failed to encrypt secret: %w", err)
			}
			stored = enc
		}
		patch.Secret = &stored
	}
	if u.KeyFile != nil && *u.KeyFile != "" {
		if err := s.inspectKeyFile(*u.KeyFile); err != nil {
			return fmt.Errorf("%w: key file %s: %w", ErrInvalidCredential, *u.KeyFile, err)
		}
	}
	ok, err := s.store.UpdateCredential(ctx, id, patch)
	if err != nil {
		return fmt.Errorf("failed to update credential %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("%w: %d", ErrCredentialNotFound, id)
	}
	return nil
}

// UpdateCredentialStatus records the outcome of a connection attempt on the
// credential and, when tagID names an existing association, on the
// association too. It reports false when the credential does not exist.
func (s *Service) UpdateCredentialStatus(ctx context.Context, credentialID int64, tagID *int64, success bool) (bool, error) {
	ok, err := s.store.RecordAttempt(ctx, credentialID, tagID, success, s.now())
	if err != nil {
		return false, fmt.Errorf("failed to record attempt for credential %d: %w", credentialID, err)
	}
	if !ok {
		logging.Warnf("credentials: status update for unknown credential %d", credentialID)
	}
	return ok, nil
}

// DeleteCredential removes the credential and its tag associations.
func (s *Service) DeleteCredential(ctx context.Context, id int64) (bool, error) {
	ok, err := s.store.DeleteCredential(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete credential %d: %w", id, err)
	}
	if ok {
		logging.Infof("credentials: deleted credential %d", id)
	}
	return ok, nil
}

// AssociateTag links a credential to a tag, updating the priority when the
// association already exists.
func (s *Service) AssociateTag(ctx context.Context, credentialID, tagID int64, priority float64) error {
	c, err := s.store.GetCredential(ctx, credentialID)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("%w: %d", ErrCredentialNotFound, credentialID)
	}
	return s.store.UpsertCredentialTag(ctx, credentialID, tagID, priority, s.now())
}

// DissociateTag removes an association. It reports whether one existed.
func (s *Service) DissociateTag(ctx context.Context, credentialID, tagID int64) (bool, error) {
	return s.store.DeleteCredentialTag(ctx, credentialID, tagID)
}

// GetCredentialsByTag returns the credentials associated with tagID ordered
// by priority, highest first, with secrets decrypted. A secret that cannot
// be decrypted is logged and left empty so the remaining candidates stay
// usable.
func (s *Service) GetCredentialsByTag(ctx context.Context, tagID int64) ([]model.TaggedCredential, error) {
	list, err := s.store.GetTagAssociations(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials for tag %d: %w", tagID, err)
	}
	for i := range list {
		c := &list[i].Credential
		if !c.HasSecret {
			continue
		}
		pt, err := s.codec.Decrypt(c.Secret)
		if err != nil {
			logging.Errorf("credentials: cannot decrypt secret of credential %d: %v", c.ID, err)
			c.Secret = ""
			continue
		}
		c.Secret = pt
	}
	return list, nil
}

// SmartCredentialsForTag returns the credentials for tagID ranked by the
// smart-selection score. A limit <= 0 returns all of them.
func (s *Service) SmartCredentialsForTag(ctx context.Context, tagID int64, limit int) ([]model.ScoredCredential, error) {
	list, err := s.GetCredentialsByTag(ctx, tagID)
	if err != nil {
		return nil, err
	}
	return selection.Rank(list, limit, s.now()), nil
}

// OptimizePriorities rewrites the priorities of tagID's associations from
// their usage history and returns the new values keyed by credential id.
// Associations without attempts keep their priority.
func (s *Service) OptimizePriorities(ctx context.Context, tagID int64) (map[int64]float64, error) {
	list, err := s.store.GetTagAssociations(ctx, tagID)
	if err != nil {
		return nil, fmt.Errorf("failed to load associations for tag %d: %w", tagID, err)
	}
	assocs := make([]model.CredentialTag, 0, len(list))
	for _, tc := range list {
		assocs = append(assocs, tc.Tag)
	}
	now := s.now()
	prios := selection.OptimizedPriorities(assocs, now)
	if len(prios) == 0 {
		return prios, nil
	}
	if err := s.store.SetTagPriorities(ctx, tagID, prios, now); err != nil {
		return nil, fmt.Errorf("failed to store priorities for tag %d: %w", tagID, err)
	}
	logging.Infof("credentials: optimized %d priorities for tag %d", len(prios), tagID)
	return prios, nil
}
