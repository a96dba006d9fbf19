// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package keys

import (
	"context"
	"fmt"
	"time"

	"github.com/toeirei/credvault/internal/logging"
	"github.com/toeirei/credvault/internal/model"
)

// Reencryptor moves every stored secret onto a new key. It is implemented by
// the batch re-encryption coordinator.
type Reencryptor interface {
	ReencryptAll(ctx context.Context, newKeyID string) (*model.ReencryptStats, error)
}

// RotationResult describes what RotateKeys did. Rotated is false when the
// active key was not old enough yet.
type RotationResult struct {
	Rotated       bool
	NewKeyID      string
	PreviousKeyID string
	// NextRotation is when the active key becomes eligible, set when no
	// rotation happened.
	NextRotation time.Time
	// Reencrypt holds the coordinator's statistics; ReencryptErr is set when
	// the run stopped early. Neither makes the rotation itself fail.
	Reencrypt    *model.ReencryptStats
	ReencryptErr error
}

// AttachReencryptor sets the component RotateKeys hands new keys to.
func (r *Registry) AttachReencryptor(re Reencryptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reencryptor = re
}

// RotationInterval returns the configured maximum key age.
func (r *Registry) RotationInterval() time.Duration {
	return r.interval
}

// RotationDue reports whether the active key has reached the rotation
// interval, and how long remains when it has not.
func (r *Registry) RotationDue() (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rotationDueLocked(r.now())
}

func (r *Registry) rotationDueLocked(now time.Time) (bool, time.Duration) {
	active, ok := r.meta[r.activeID]
	if r.activeID == "" || !ok {
		return true, 0
	}
	age := active.Age(now)
	if age >= r.interval {
		return true, 0
	}
	return false, r.interval - age
}

// RotateKeys creates and activates a new key when forced or when the active
// key is at least RotationInterval old, then re-encrypts all secrets under it.
// Re-encryption runs after the registry lock is released because the
// coordinator reads keys through the registry.
func (r *Registry) RotateKeys(ctx context.Context, force bool) (*RotationResult, error) {
	r.mu.Lock()
	if !r.loaded {
		r.mu.Unlock()
		return nil, ErrNotLoaded
	}
	now := r.now()
	if due, remaining := r.rotationDueLocked(now); !force && !due {
		res := &RotationResult{PreviousKeyID: r.activeID, NextRotation: now.Add(remaining)}
		r.mu.Unlock()
		logging.Debugf("keys: rotation not needed, active key %s eligible in %s", res.PreviousKeyID, remaining.Round(time.Minute))
		return res, nil
	}

	previous := r.activeID
	id, err := r.createKeyLocked(fmt.Sprintf("rotated from %s", previousOrNone(previous)))
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if err := r.activateLocked(id); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	if err := r.persistLocked(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	re := r.reencryptor
	r.mu.Unlock()

	logging.Infof("keys: rotated active key %s -> %s", previousOrNone(previous), id)
	res := &RotationResult{Rotated: true, NewKeyID: id, PreviousKeyID: previous}
	if re == nil {
		logging.Warnf("keys: no re-encryptor attached, existing secrets stay on their current keys")
		return res, nil
	}
	stats, err := re.ReencryptAll(ctx, id)
	res.Reencrypt = stats
	if err != nil {
		res.ReencryptErr = err
		logging.Warnf("keys: re-encryption after rotation stopped early: %v", err)
	}
	if stats != nil && stats.Failed > 0 {
		logging.Warnf("keys: %d of %d secrets could not be re-encrypted under %s", stats.Failed, stats.Total, id)
	}
	return res, nil
}

func previousOrNone(id string) string {
	if id == "" {
		return "none"
	}
	return id
}
