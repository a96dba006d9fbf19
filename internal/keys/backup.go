// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package keys

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/toeirei/credvault/internal/crypto/aead"
	"github.com/toeirei/credvault/internal/logging"
	"github.com/toeirei/credvault/internal/model"
	"github.com/toeirei/credvault/internal/security"
)

const (
	// BackupFormat tags the outer JSON of a key backup.
	BackupFormat  = "key_backup"
	BackupVersion = 1
	// BackupKDFIterations is the PBKDF2 work factor for backup passwords.
	BackupKDFIterations = 100_000
)

// backupSalt is fixed so a backup can be opened with nothing but the password.
var backupSalt = []byte("credvault/key-backup/v1")

var (
	// ErrInvalidBackupPassword means the backup did not authenticate under the
	// password-derived key: wrong password or corrupted ciphertext.
	ErrInvalidBackupPassword = errors.New("invalid backup password or corrupted backup")
	// ErrInvalidBackupFormat means the blob is not a key backup at all.
	ErrInvalidBackupFormat = errors.New("invalid key backup format")
	// ErrEmptyPassword is returned when a backup password is empty.
	ErrEmptyPassword = errors.New("backup password must not be empty")
)

type backupBlob struct {
	Format        string `json:"format"`
	Version       int    `json:"version"`
	EncryptedData string `json:"encrypted_data"`
}

type backupPayload struct {
	Keys        map[string]string             `json:"keys"`
	Metadata    map[string]model.KeyMetadata `json:"metadata"`
	ActiveKeyID string                        `json:"active_key_id,omitempty"`
	CreatedAt   time.Time                     `json:"created_at"`
}

// ExportBackup serializes one key (keyID non-empty) or all keys and encrypts
// the result with a key derived from password.
func (r *Registry) ExportBackup(password, keyID string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return nil, ErrNotLoaded
	}

	var ids []string
	if keyID != "" {
		if _, ok := r.meta[keyID]; !ok {
			return nil, fmt.Errorf("keys: backup %s: %w", keyID, ErrKeyNotFound)
		}
		ids = []string{keyID}
	} else {
		for id := range r.meta {
			ids = append(ids, id)
		}
		sort.Strings(ids)
	}

	p := backupPayload{
		Keys:      make(map[string]string, len(ids)),
		Metadata:  make(map[string]model.KeyMetadata, len(ids)),
		CreatedAt: r.now().UTC(),
	}
	for _, id := range ids {
		k, ok := r.material[id]
		if !ok {
			if keyID != "" {
				return nil, fmt.Errorf("keys: backup %s: material missing: %w", id, ErrKeyNotFound)
			}
			logging.Warnf("keys: skipping key %s in backup, material missing", id)
			continue
		}
		p.Keys[id] = base64.StdEncoding.EncodeToString(k)
		p.Metadata[id] = r.meta[id]
		if id == r.activeID {
			p.ActiveKeyID = id
		}
	}

	plain, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("keys: encode backup: %w", err)
	}
	defer security.Wipe(plain)

	dk := aead.DeriveKey([]byte(password), backupSalt, BackupKDFIterations)
	defer security.Wipe(dk)
	ct, err := aead.Seal(dk, plain)
	if err != nil {
		return nil, fmt.Errorf("keys: encrypt backup: %w", err)
	}

	out, err := json.MarshalIndent(backupBlob{
		Format:        BackupFormat,
		Version:       BackupVersion,
		EncryptedData: base64.StdEncoding.EncodeToString(ct),
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("keys: encode backup: %w", err)
	}
	logging.Infof("keys: exported %d key(s) to backup", len(p.Keys))
	return out, nil
}

// ImportBackup decrypts blob with password and stores every key it contains
// as an imported, inactive key. Keys whose material is already present are
// skipped. The backup's active key is activated only if no key is active here.
// It returns the ids actually imported, sorted.
func (r *Registry) ImportBackup(blob []byte, password string) ([]string, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	var b backupBlob
	if err := json.Unmarshal(blob, &b); err != nil {
		return nil, fmt.Errorf("keys: %w: %v", ErrInvalidBackupFormat, err)
	}
	if b.Format != BackupFormat {
		return nil, fmt.Errorf("keys: %w: format %q", ErrInvalidBackupFormat, b.Format)
	}
	if b.Version > BackupVersion {
		return nil, fmt.Errorf("keys: %w: unsupported version %d", ErrInvalidBackupFormat, b.Version)
	}
	ct, err := base64.StdEncoding.DecodeString(b.EncryptedData)
	if err != nil {
		return nil, fmt.Errorf("keys: %w: %v", ErrInvalidBackupFormat, err)
	}

	dk := aead.DeriveKey([]byte(password), backupSalt, BackupKDFIterations)
	defer security.Wipe(dk)
	plain, err := aead.Open(dk, ct)
	switch {
	case errors.Is(err, aead.ErrAuthenticationFailed):
		return nil, ErrInvalidBackupPassword
	case err != nil:
		return nil, fmt.Errorf("keys: %w: %v", ErrInvalidBackupFormat, err)
	}
	defer security.Wipe(plain)

	var p backupPayload
	if err := json.Unmarshal(plain, &p); err != nil {
		return nil, fmt.Errorf("keys: %w: %v", ErrInvalidBackupFormat, err)
	}

	decoded := make(map[string]security.Secret, len(p.Keys))
	for id, enc := range p.Keys {
		k, err := decodeKey(enc)
		if err != nil {
			return nil, fmt.Errorf("keys: %w: key %s: %v", ErrInvalidBackupFormat, id, err)
		}
		decoded[id] = k
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return nil, ErrNotLoaded
	}

	ids := make([]string, 0, len(decoded))
	for id := range decoded {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := r.now().UTC()
	prevActive := r.activeID
	var imported []string
	rollback := func() {
		for _, id := range imported {
			delete(r.material, id)
			delete(r.meta, id)
			_ = os.Remove(r.keyPath(id))
		}
		r.activeID = prevActive
		for id, m := range r.meta {
			m.Active = id == prevActive
			r.meta[id] = m
		}
	}
	for _, id := range ids {
		if _, exists := r.material[id]; exists {
			logging.Infof("keys: key %s already present, not importing", id)
			continue
		}
		if err := r.writeKeyFile(id, decoded[id]); err != nil {
			rollback()
			return nil, err
		}
		m := p.Metadata[id]
		created := m.CreatedAt
		if created.IsZero() {
			created = now
		}
		importedAt := now
		r.meta[id] = model.KeyMetadata{
			ID:          id,
			CreatedAt:   created,
			Source:      model.KeySourceImported,
			Active:      false,
			Description: m.Description,
			ImportedAt:  &importedAt,
		}
		r.material[id] = decoded[id]
		imported = append(imported, id)
	}

	if r.activeID == "" && p.ActiveKeyID != "" {
		if err := r.activateLocked(p.ActiveKeyID); err != nil {
			logging.Warnf("keys: could not activate backup's active key %s: %v", p.ActiveKeyID, err)
		}
	}
	if err := r.persistLocked(); err != nil {
		rollback()
		return nil, err
	}
	logging.Infof("keys: imported %d key(s) from backup", len(imported))
	return imported, nil
}
