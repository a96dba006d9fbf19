// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package app wires the key registry, storage, codec, credential store and
// re-encryption coordinator together. Open is the single init point and
// Close the single teardown point; nothing here is global.
package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/toeirei/credvault/internal/config"
	"github.com/toeirei/credvault/internal/credentials"
	"github.com/toeirei/credvault/internal/db"
	"github.com/toeirei/credvault/internal/envelope"
	"github.com/toeirei/credvault/internal/keys"
	"github.com/toeirei/credvault/internal/logging"
	"github.com/toeirei/credvault/internal/reencrypt"
)

const day = 24 * time.Hour

// App holds the constructed components.
type App struct {
	Keys        *keys.Registry
	Store       db.Store
	Codec       *envelope.Codec
	Credentials *credentials.Service
	Reencrypt   *reencrypt.Coordinator
}

// Options overrides parts of the wiring, mainly for tests.
type Options struct {
	Now    func() time.Time
	Getenv func(string) string
}

// Open loads key metadata, opens the database and builds the services.
func Open(cfg config.Config, opts Options) (*App, error) {
	reg := keys.New(keys.Options{
		Dir:              cfg.Keys.Dir,
		RotationInterval: time.Duration(cfg.Keys.RotationIntervalDays) * day,
		EnvVar:           cfg.Keys.EnvVar,
		Now:              opts.Now,
		Getenv:           opts.Getenv,
	})
	if err := reg.Load(); err != nil {
		return nil, fmt.Errorf("failed to load keys from %s: %w", cfg.Keys.Dir, err)
	}

	store, err := db.NewStoreFromDSN(cfg.Database.Type, cfg.Database.Dsn)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	codec := envelope.NewCodec(reg)
	svc := credentials.New(store, codec, credentials.Options{
		Now:            opts.Now,
		MinAttempts:    cfg.Stats.MinAttempts,
		MinTagAttempts: cfg.Stats.MinTagAttempts,
		ActiveWindow:   time.Duration(cfg.Stats.ActiveWindowDays) * day,
	})
	coord := reencrypt.New(store, codec, reg, reencrypt.Options{BatchSize: cfg.Reencrypt.BatchSize})
	reg.AttachReencryptor(coord)

	if !reg.HasKeys() {
		logging.Warnf("no encryption keys configured, secrets will be stored unencrypted until a key is created and activated")
	}
	return &App{Keys: reg, Store: store, Codec: codec, Credentials: svc, Reencrypt: coord}, nil
}

// Close flushes key metadata and closes the database.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	return errors.Join(a.Keys.Close(), a.Store.Close())
}
