// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package keys owns the encryption keys that protect stored credentials:
// their material, their metadata and which one is active. Keys are never
// deleted, only superseded, so every envelope ever written stays decryptable.
package keys

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/toeirei/credvault/internal/crypto/aead"
	"github.com/toeirei/credvault/internal/logging"
	"github.com/toeirei/credvault/internal/model"
	"github.com/toeirei/credvault/internal/security"
)

const (
	// DefaultRotationInterval is the maximum age of the active key before
	// RotateKeys replaces it.
	DefaultRotationInterval = 90 * 24 * time.Hour
	// DefaultEnvVar names the environment variable that may carry a base64
	// encoded key.
	DefaultEnvVar = "CREDVAULT_ENCRYPTION_KEY"
	// EnvironmentKeyID is the id under which the environment key is registered.
	EnvironmentKeyID = "env_default"

	metadataFileName = "keys.json"
	keyFileSuffix    = ".key"
	fileMode         = 0o600
	dirMode          = 0o700
)

var (
	// ErrKeyNotFound is returned when an operation names an unknown key id.
	ErrKeyNotFound = errors.New("encryption key not found")
	// ErrNotLoaded is returned when the registry is used before Load.
	ErrNotLoaded = errors.New("key registry not loaded")
)

// Options configures a Registry.
type Options struct {
	// Dir holds the metadata file and one file per key.
	Dir string
	// RotationInterval defaults to DefaultRotationInterval.
	RotationInterval time.Duration
	// EnvVar is the environment variable checked for an externally provided
	// key. Empty disables the lookup.
	EnvVar string
	// Now and Getenv default to time.Now and os.Getenv.
	Now    func() time.Time
	Getenv func(string) string
}

// Registry manages key material and metadata. A single mutex guards all
// state and every metadata write, which always rewrites the whole file.
type Registry struct {
	mu       sync.Mutex
	dir      string
	interval time.Duration
	envVar   string
	now      func() time.Time
	getenv   func(string) string

	loaded      bool
	meta        map[string]model.KeyMetadata
	material    map[string]security.Secret
	activeID    string
	reencryptor Reencryptor
}

// New constructs a Registry. Call Load before using it and Close when done.
func New(opts Options) *Registry {
	r := &Registry{
		dir:      opts.Dir,
		interval: opts.RotationInterval,
		envVar:   opts.EnvVar,
		now:      opts.Now,
		getenv:   opts.Getenv,
		meta:     map[string]model.KeyMetadata{},
		material: map[string]security.Secret{},
	}
	if r.interval <= 0 {
		r.interval = DefaultRotationInterval
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.getenv == nil {
		r.getenv = os.Getenv
	}
	return r
}

// Load reads the metadata file and every key file, then registers the
// environment key when one is configured. A missing directory is created.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.dir == "" {
		return fmt.Errorf("keys: no key directory configured")
	}
	if err := os.MkdirAll(r.dir, dirMode); err != nil {
		return fmt.Errorf("keys: create key directory %s: %w", r.dir, err)
	}
	restrictPermissions(r.dir, dirMode)

	r.meta = map[string]model.KeyMetadata{}
	r.material = map[string]security.Secret{}
	r.activeID = ""

	data, err := os.ReadFile(r.metadataPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		logging.Debugf("keys: no metadata file in %s, starting empty", r.dir)
	case err != nil:
		return fmt.Errorf("keys: read metadata: %w", err)
	default:
		var f model.KeyMetadataFile
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("keys: parse metadata: %w", err)
		}
		for id, m := range f.Keys {
			m.ID = id
			r.meta[id] = m
		}
		r.activeID = f.ActiveKeyID
	}

	for id, m := range r.meta {
		if m.Source == model.KeySourceEnvironment {
			continue
		}
		k, err := r.readKeyFile(id)
		if err != nil {
			logging.Warnf("keys: key %s is unusable: %v", id, err)
			continue
		}
		r.material[id] = k
	}

	changed := false
	if r.activeID != "" && r.activeID != EnvironmentKeyID {
		changed = r.clearUnusableActiveLocked()
	}
	if r.loadEnvironmentKeyLocked() {
		changed = true
	}
	if r.activeID != "" && r.clearUnusableActiveLocked() {
		changed = true
	}
	for id, m := range r.meta {
		want := id == r.activeID
		if m.Active != want {
			m.Active = want
			r.meta[id] = m
			changed = true
		}
	}

	r.loaded = true
	if changed {
		return r.persistLocked()
	}
	return nil
}

// clearUnusableActiveLocked drops the active pointer when the active key has
// no metadata or no material, so encryption fails with a clear message
// instead of naming a key that cannot be used.
func (r *Registry) clearUnusableActiveLocked() bool {
	if _, ok := r.meta[r.activeID]; !ok {
		logging.Warnf("keys: active key %s has no metadata, clearing active pointer", r.activeID)
		r.activeID = ""
		return true
	}
	if _, ok := r.material[r.activeID]; !ok {
		logging.Warnf("keys: active key %s has no usable material, clearing active pointer; activate or rotate to another key", r.activeID)
		r.activeID = ""
		return true
	}
	return false
}

// loadEnvironmentKeyLocked registers the key from the environment, if any.
// It reports whether metadata changed.
func (r *Registry) loadEnvironmentKeyLocked() bool {
	if r.envVar == "" {
		return false
	}
	raw := strings.TrimSpace(r.getenv(r.envVar))
	if raw == "" {
		return false
	}
	k, err := decodeKey(raw)
	if err != nil {
		logging.Warnf("keys: ignoring %s: %v", r.envVar, err)
		return false
	}
	r.material[EnvironmentKeyID] = k
	changed := false
	if _, ok := r.meta[EnvironmentKeyID]; !ok {
		r.meta[EnvironmentKeyID] = model.KeyMetadata{
			ID:          EnvironmentKeyID,
			CreatedAt:   r.now().UTC(),
			Source:      model.KeySourceEnvironment,
			Description: "provided via " + r.envVar,
		}
		changed = true
	}
	if r.activeID == "" {
		r.activeID = EnvironmentKeyID
		changed = true
	}
	return changed
}

// Close flushes metadata and wipes key material from memory.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return nil
	}
	err := r.persistLocked()
	for id, k := range r.material {
		k.Zero()
		delete(r.material, id)
	}
	r.loaded = false
	return err
}

// CreateKey generates a new inactive key and persists it.
func (r *Registry) CreateKey(description string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return "", ErrNotLoaded
	}
	id, err := r.createKeyLocked(description)
	if err != nil {
		return "", err
	}
	if err := r.persistLocked(); err != nil {
		return "", err
	}
	logging.Infof("keys: created key %s", id)
	return id, nil
}

func (r *Registry) createKeyLocked(description string) (string, error) {
	k, err := aead.NewKey()
	if err != nil {
		return "", fmt.Errorf("keys: generate key: %w", err)
	}
	now := r.now().UTC()
	id := newKeyID(now)
	if err := r.writeKeyFile(id, k); err != nil {
		return "", err
	}
	r.material[id] = security.Secret(k)
	r.meta[id] = model.KeyMetadata{
		ID:          id,
		CreatedAt:   now,
		Source:      model.KeySourceGenerated,
		Description: description,
	}
	return id, nil
}

// ActivateKey makes id the only active key. Activating the already active key
// is a no-op apart from re-persisting.
func (r *Registry) ActivateKey(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.loaded {
		return ErrNotLoaded
	}
	if err := r.activateLocked(id); err != nil {
		return err
	}
	if err := r.persistLocked(); err != nil {
		return err
	}
	logging.Infof("keys: activated key %s", id)
	return nil
}

func (r *Registry) activateLocked(id string) error {
	if _, ok := r.meta[id]; !ok {
		return fmt.Errorf("keys: activate %s: %w", id, ErrKeyNotFound)
	}
	if _, ok := r.material[id]; !ok {
		return fmt.Errorf("keys: activate %s: material missing: %w", id, ErrKeyNotFound)
	}
	for kid, m := range r.meta {
		m.Active = kid == id
		r.meta[kid] = m
	}
	r.activeID = id
	return nil
}

// ActiveKeyID returns the active key id or "".
func (r *Registry) ActiveKeyID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeID
}

// DefaultKeyID returns the key used for legacy values without an envelope:
// the environment key when present, otherwise the active key.
func (r *Registry) DefaultKeyID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.material[EnvironmentKeyID]; ok {
		return EnvironmentKeyID
	}
	return r.activeID
}

// HasKeys reports whether any usable key material is loaded.
func (r *Registry) HasKeys() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.material) > 0
}

// KeyMaterial returns a copy of the material for id.
func (r *Registry) KeyMaterial(id string) (security.Secret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.material[id]
	if !ok {
		return nil, fmt.Errorf("keys: %s: %w", id, ErrKeyNotFound)
	}
	return security.FromBytes(k), nil
}

// KeyInfo returns the metadata for id.
func (r *Registry) KeyInfo(id string) (model.KeyMetadata, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meta[id]
	return m, ok
}

// ListKeys returns all key metadata ordered by creation time.
func (r *Registry) ListKeys() []model.KeyMetadata {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.KeyMetadata, 0, len(r.meta))
	for _, m := range r.meta {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// persistLocked rewrites the metadata file in full.
func (r *Registry) persistLocked() error {
	f := model.KeyMetadataFile{
		Keys:        make(map[string]model.KeyMetadata, len(r.meta)),
		ActiveKeyID: r.activeID,
		LastUpdated: r.now().UTC(),
	}
	for id, m := range r.meta {
		f.Keys[id] = m
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("keys: encode metadata: %w", err)
	}
	if err := writeFileAtomic(r.metadataPath(), data, fileMode); err != nil {
		return fmt.Errorf("keys: write metadata: %w", err)
	}
	return nil
}

func (r *Registry) metadataPath() string {
	return filepath.Join(r.dir, metadataFileName)
}

func (r *Registry) keyPath(id string) string {
	return filepath.Join(r.dir, id+keyFileSuffix)
}

func (r *Registry) writeKeyFile(id string, k []byte) error {
	enc := []byte(base64.StdEncoding.EncodeToString(k))
	if err := writeFileAtomic(r.keyPath(id), enc, fileMode); err != nil {
		return fmt.Errorf("keys: write key %s: %w", id, err)
	}
	return nil
}

func (r *Registry) readKeyFile(id string) (security.Secret, error) {
	data, err := os.ReadFile(r.keyPath(id))
	if err != nil {
		return nil, err
	}
	return decodeKey(string(data))
}

func decodeKey(s string) (security.Secret, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != aead.KeySize {
		return nil, fmt.Errorf("decode key: %w: got %d bytes", aead.ErrInvalidKeySize, len(raw))
	}
	return security.Secret(raw), nil
}

// newKeyID builds ids like key_20261019120000_1a2b3c4d.
func newKeyID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("key_%s_%s", now.Format("20060102150405"), suffix)
}
