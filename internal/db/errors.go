// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIntegrityViolation covers uniqueness, foreign-key and not-null
	// violations reported by the database.
	ErrIntegrityViolation = errors.New("integrity violation")
	// ErrDuplicate is the uniqueness flavour of ErrIntegrityViolation.
	ErrDuplicate = fmt.Errorf("duplicate record: %w", ErrIntegrityViolation)
)

// MapDBError maps driver constraint errors onto the package sentinels. The
// mapping is string based so no driver package types leak into callers.
func MapDBError(err error) error {
	if err == nil {
		return nil
	}
	le := strings.ToLower(err.Error())
	switch {
	// MySQL 1062, Postgres 23505, SQLite "UNIQUE constraint failed"
	case strings.Contains(le, "duplicate") || strings.Contains(le, "unique") ||
		strings.Contains(le, "23505") || strings.Contains(le, "1062"):
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	// MySQL 1451/1452, Postgres 23503, SQLite "FOREIGN KEY constraint failed"
	case strings.Contains(le, "foreign key") || strings.Contains(le, "23503") ||
		strings.Contains(le, "1452") || strings.Contains(le, "1451"):
		return fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
	// MySQL 1048, Postgres 23502, SQLite "NOT NULL constraint failed"
	case strings.Contains(le, "not null") || strings.Contains(le, "23502") || strings.Contains(le, "1048"):
		return fmt.Errorf("%w: %v", ErrIntegrityViolation, err)
	}
	return err
}
