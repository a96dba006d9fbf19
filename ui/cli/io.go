// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"github.com/toeirei/credvault/internal/i18n"
)

// zstdMagic is the frame header of a Zstandard stream.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// writeBackupFile writes blob to path with mode 0600, zstd-compressed when
// path ends in .zst.
func writeBackupFile(path string, blob []byte) error {
	data := blob
	if strings.HasSuffix(path, ".zst") {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("could not create zstd writer: %w", err)
		}
		data = enc.EncodeAll(blob, nil)
		_ = enc.Close()
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(path, 0o600)
}

// readBackupFile reads a backup and transparently decompresses zstd input.
func readBackupFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("could not create zstd reader: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("could not decompress %s: %w", path, err)
	}
	return out, nil
}

// password returns flagValue when set, otherwise prompts without echo. With
// confirm the password is asked twice. Prompting requires a terminal.
func (s *session) password(cmd *cobra.Command, flagValue string, confirm bool) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if !s.isTerminal() {
		return "", errors.New(i18n.T("error.password_required"))
	}
	errOut := cmd.ErrOrStderr()
	fmt.Fprint(errOut, i18n.T("prompt.password"))
	pw, err := s.readPassword()
	fmt.Fprintln(errOut)
	if err != nil {
		return "", err
	}
	if confirm {
		fmt.Fprint(errOut, i18n.T("prompt.password_confirm"))
		again, err := s.readPassword()
		fmt.Fprintln(errOut)
		if err != nil {
			return "", err
		}
		if !bytes.Equal(pw, again) {
			return "", errors.New(i18n.T("error.password_mismatch"))
		}
	}
	if len(pw) == 0 {
		return "", errors.New(i18n.T("error.password_required"))
	}
	return string(pw), nil
}

// promptForConfirmation prints prompt and reads a lower-cased answer line.
func (s *session) promptForConfirmation(cmd *cobra.Command, prompt string) string {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	answer, _ := bufio.NewReader(s.stdin).ReadString('\n')
	return strings.TrimSpace(strings.ToLower(answer))
}

// readSecretInput reads a secret from a prompt without echo on terminals, or
// a single line from stdin otherwise.
func (s *session) readSecretInput(cmd *cobra.Command) (string, error) {
	if s.isTerminal() {
		fmt.Fprint(cmd.ErrOrStderr(), i18n.T("prompt.secret"))
		b, err := s.readPassword()
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(b), err
	}
	line, err := bufio.NewReader(s.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
