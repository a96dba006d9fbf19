// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package reencrypt moves every stored secret onto a new key in batches. Each
// batch commits or rolls back as a unit; a failed batch does not stop the run.
package reencrypt

import (
	"context"
	"errors"
	"fmt"

	"github.com/toeirei/credvault/internal/db"
	"github.com/toeirei/credvault/internal/keys"
	"github.com/toeirei/credvault/internal/logging"
	"github.com/toeirei/credvault/internal/model"
	"github.com/toeirei/credvault/internal/security"
)

const (
	// DefaultBatchSize is used when Options.BatchSize is not positive.
	DefaultBatchSize = 100
	// MaxErrors is how many error messages a run keeps.
	MaxErrors = 20
)

// ProgressFunc is called after every batch.
type ProgressFunc func(processed, total, success, failed int)

// Options tunes a run.
type Options struct {
	BatchSize int
	Progress  ProgressFunc
}

// Codec decrypts a stored secret with the key it names and encrypts it
// again under a given key. *envelope.Codec implements it.
type Codec interface {
	Encrypt(plaintext, keyID string) (string, error)
	Decrypt(stored string) (string, error)
}

// KeySource confirms the target key exists. *keys.Registry implements it.
type KeySource interface {
	KeyMaterial(id string) (security.Secret, error)
}

// Coordinator runs re-encryption against a db.Store.
type Coordinator struct {
	store db.Store
	codec Codec
	keys  KeySource
	opts  Options
}

var _ keys.Reencryptor = (*Coordinator)(nil)

// New returns a Coordinator. opts are used by ReencryptAll.
func New(store db.Store, codec Codec, keySource KeySource, opts Options) *Coordinator {
	return &Coordinator{store: store, codec: codec, keys: keySource, opts: opts}
}

// ReencryptAll re-encrypts every secret under newKeyID with the options given
// to New.
func (c *Coordinator) ReencryptAll(ctx context.Context, newKeyID string) (*model.ReencryptStats, error) {
	return c.Run(ctx, newKeyID, c.opts)
}

// Run re-encrypts every secret under newKeyID, one transaction per batch, in
// ascending id order. Rows that fail roll back their whole batch and are
// counted in Failed. The returned error is only set when the run could not
// start or ended early (load failure, cancellation); the stats gathered so
// far are returned either way.
func (c *Coordinator) Run(ctx context.Context, newKeyID string, opts Options) (*model.ReencryptStats, error) {
	stats := &model.ReencryptStats{}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	key, err := c.keys.KeyMaterial(newKeyID)
	if err != nil {
		if errors.Is(err, keys.ErrKeyNotFound) {
			return stats, err
		}
		return stats, fmt.Errorf("%w: %s: %v", keys.ErrKeyNotFound, newKeyID, err)
	}
	key.Zero()

	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	total, err := c.store.CountSecrets(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to count secrets: %w", err)
	}
	stats.Total = total
	logging.Infof("reencrypt: %d secret(s) to move to key %s in batches of %d", total, newKeyID, batchSize)

	errs := &errorLog{}
	defer func() { stats.Errors = errs.list() }()

	var lastID int64
	for {
		if err := ctx.Err(); err != nil {
			logging.Warnf("reencrypt: cancelled after %d batch(es)", stats.Batches)
			return stats, err
		}

		res, err := c.store.ProcessSecretBatch(ctx, lastID, batchSize, func(rows []db.SecretRow) ([]db.SecretRow, error) {
			out := make([]db.SecretRow, 0, len(rows))
			for _, r := range rows {
				pt, err := c.codec.Decrypt(r.Secret)
				if err != nil {
					return nil, fmt.Errorf("credential %d: decrypt: %w", r.ID, err)
				}
				enc, err := c.codec.Encrypt(pt, newKeyID)
				if err != nil {
					return nil, fmt.Errorf("credential %d: encrypt: %w", r.ID, err)
				}
				out = append(out, db.SecretRow{ID: r.ID, Secret: enc})
			}
			return out, nil
		})

		if err != nil && (res.Loaded == 0 || errors.Is(err, db.ErrBatchLoad)) {
			errs.add(fmt.Sprintf("batch after id %d: %v", lastID, err))
			logging.Errorf("reencrypt: cannot load batch after id %d: %v", lastID, err)
			return stats, fmt.Errorf("reencrypt stopped after id %d: %w", lastID, err)
		}
		if res.Loaded == 0 {
			break
		}

		stats.Batches++
		if err != nil {
			stats.Rollbacks++
			stats.Failed += res.Loaded
			errs.add(fmt.Sprintf("batch %d (ids %d-%d): %v", stats.Batches, lastID+1, res.LastID, err))
			logging.Warnf("reencrypt: batch %d rolled back: %v", stats.Batches, err)
		} else {
			stats.Success += res.Loaded
			logging.Debugf("reencrypt: batch %d committed (%d rows)", stats.Batches, res.Loaded)
		}
		lastID = res.LastID

		if opts.Progress != nil {
			opts.Progress(stats.Success+stats.Failed, stats.Total, stats.Success, stats.Failed)
		}
		if res.Loaded < batchSize {
			break
		}
	}

	logging.Infof("reencrypt: done, %d succeeded, %d failed, %d rollback(s)", stats.Success, stats.Failed, stats.Rollbacks)
	return stats, nil
}

// errorLog keeps the first MaxErrors messages and counts the rest.
type errorLog struct {
	msgs    []string
	dropped int
}

func (l *errorLog) add(msg string) {
	if len(l.msgs) < MaxErrors {
		l.msgs = append(l.msgs, msg)
		return
	}
	l.dropped++
}

func (l *errorLog) list() []string {
	if l.dropped == 0 {
		return l.msgs
	}
	return append(l.msgs, fmt.Sprintf("...and %d more", l.dropped))
}
