// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"

	"github.com/toeirei/credvault/internal/credentials"
	"github.com/toeirei/credvault/internal/db"
	"github.com/toeirei/credvault/internal/envelope"
	"github.com/toeirei/credvault/internal/i18n"
	"github.com/toeirei/credvault/internal/keys"
	"github.com/toeirei/credvault/internal/sshkey"
)

// userError turns a core error into a translated message. The original error
// is kept in the chain so errors.Is still works for callers and tests.
func userError(err error) error {
	if err == nil {
		return nil
	}
	var id string
	switch {
	case errors.Is(err, keys.ErrKeyNotFound):
		id = "error.key_not_found"
	case errors.Is(err, keys.ErrInvalidBackupPassword):
		id = "error.backup_password"
	case errors.Is(err, keys.ErrInvalidBackupFormat):
		id = "error.backup_format"
	case errors.Is(err, envelope.ErrDecryptionKeyNotFound):
		id = "error.decryption_key_missing"
	case errors.Is(err, envelope.ErrAuthenticationFailed):
		id = "error.authentication_failed"
	case errors.Is(err, envelope.ErrMalformedCiphertext):
		id = "error.malformed_ciphertext"
	case errors.Is(err, credentials.ErrCredentialNotFound):
		id = "error.credential_not_found"
	case errors.Is(err, sshkey.ErrPassphraseRequired):
		id = "error.passphrase_required"
	case errors.Is(err, credentials.ErrInvalidCredential):
		id = "error.invalid_credential"
	case errors.Is(err, db.ErrDuplicate):
		id = "error.duplicate"
	case errors.Is(err, db.ErrIntegrityViolation):
		id = "error.integrity"
	default:
		return err
	}
	return &translatedError{msg: i18n.T(id, err), err: err}
}

type translatedError struct {
	msg string
	err error
}

func (e *translatedError) Error() string { return e.msg }
func (e *translatedError) Unwrap() error { return e.err }
