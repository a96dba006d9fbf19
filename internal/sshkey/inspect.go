// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sshkey checks private key files referenced by key-auth credentials.
// The key itself is never stored; only its path is.
package sshkey

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/ssh"
)

// MaxKeyFileSize bounds how much of a key file is read.
const MaxKeyFileSize = 64 << 10

var (
	// ErrPassphraseRequired is returned for encrypted keys when no
	// passphrase was supplied.
	ErrPassphraseRequired = errors.New("private key is passphrase protected")
	// ErrKeyFileTooLarge is returned for files larger than MaxKeyFileSize.
	ErrKeyFileTooLarge = errors.New("private key file too large")
)

// KeyFileInfo describes a parsed private key.
type KeyFileInfo struct {
	Path        string
	Algorithm   string
	Fingerprint string
	Encrypted   bool
}

// InspectPrivateKeyFile reads and parses the private key at path. Encrypted
// keys are parsed with passphrase; without one ErrPassphraseRequired is
// returned.
func InspectPrivateKeyFile(path string, passphrase []byte) (KeyFileInfo, error) {
	info := KeyFileInfo{Path: path}

	f, err := os.Open(path)
	if err != nil {
		return info, fmt.Errorf("failed to open key file: %w", err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, MaxKeyFileSize+1))
	if err != nil {
		return info, fmt.Errorf("failed to read key file: %w", err)
	}
	if len(data) > MaxKeyFileSize {
		return info, ErrKeyFileTooLarge
	}

	return inspect(info, data, passphrase)
}

func inspect(info KeyFileInfo, data, passphrase []byte) (KeyFileInfo, error) {
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if !errors.As(err, &missing) {
			return info, fmt.Errorf("failed to parse private key: %w", err)
		}
		info.Encrypted = true
		if len(passphrase) == 0 {
			return info, ErrPassphraseRequired
		}
		signer, err = ssh.ParsePrivateKeyWithPassphrase(data, passphrase)
		if err != nil {
			return info, fmt.Errorf("failed to decrypt private key: %w", err)
		}
	}

	pub := signer.PublicKey()
	info.Algorithm = pub.Type()
	info.Fingerprint = ssh.FingerprintSHA256(pub)
	return info, nil
}
