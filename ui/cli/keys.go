// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/toeirei/credvault/internal/i18n"
	"github.com/toeirei/credvault/internal/model"
)

const timeLayout = "2006-01-02 15:04:05"

// newKeyCmd is the root command for encryption key management.
func newKeyCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage encryption keys (create, rotate, list, info, backup, restore, activate)",
		Long: `The 'key' command group manages the AES-256 keys that protect stored secrets:
  - Create and activate keys
  - Rotate the active key and re-encrypt every secret
  - List keys and show details
  - Back up keys to a password-protected file and restore them`,
	}
	cmd.AddCommand(
		newKeyCreateCmd(s),
		newKeyRotateCmd(s),
		newKeyListCmd(s),
		newKeyInfoCmd(s),
		newKeyBackupCmd(s),
		newKeyRestoreCmd(s),
		newKeyActivateCmd(s),
	)
	return cmd
}

func newKeyCreateCmd(s *session) *cobra.Command {
	var description string
	var activate bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a new, inactive key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := s.app.Keys.CreateKey(description)
			if err != nil {
				return userError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("key.created", id))
			if activate {
				if err := s.app.Keys.ActivateKey(id); err != nil {
					return userError(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("key.activated", id))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description stored with the key")
	cmd.Flags().BoolVar(&activate, "activate", false, "Activate the key right away")
	return cmd
}

func newKeyRotateCmd(s *session) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Rotate the active key if it is due, and re-encrypt all secrets",
		Long: `Creates and activates a new key when the active key has reached the rotation
interval (or with --force), then re-encrypts every stored secret under it in
batches. Failed batches are rolled back and reported; they keep their old key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := s.app.Keys.RotateKeys(cmd.Context(), force)
			if err != nil {
				return userError(err)
			}
			out := cmd.OutOrStdout()
			if !res.Rotated {
				fmt.Fprintln(out, i18n.T("key.rotation_not_needed", res.PreviousKeyID, res.NextRotation.Format(timeLayout)))
				return nil
			}
			fmt.Fprintln(out, i18n.T("key.rotated", res.NewKeyID))
			if res.Reencrypt != nil {
				printReencryptStats(cmd, res.Reencrypt)
			}
			if res.ReencryptErr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), i18n.T("reencrypt.stopped", userError(res.ReencryptErr)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Rotate even if the active key is not due yet")
	return cmd
}

func newKeyListCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list := s.app.Keys.ListKeys()
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("key.none"))
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSOURCE\tACTIVE\tCREATED\tDESCRIPTION")
			for _, k := range list {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", k.ID, k.Source, yesNo(k.Active), k.CreatedAt.Local().Format(timeLayout), k.Description)
			}
			return w.Flush()
		},
	}
}

func newKeyInfoCmd(s *session) *cobra.Command {
	var keyID string
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show details of a key (defaults to the active key)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id := keyID
			if id == "" {
				id = s.app.Keys.ActiveKeyID()
			}
			if id == "" {
				return errors.New(i18n.T("key.no_active"))
			}
			k, ok := s.app.Keys.KeyInfo(id)
			if !ok {
				return errors.New(i18n.T("error.key_not_found", id))
			}
			printKeyInfo(cmd, s, k)
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyID, "key", "k", "", "Key id")
	return cmd
}

func printKeyInfo(cmd *cobra.Command, s *session, k model.KeyMetadata) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%s\n", k.ID)
	fmt.Fprintf(w, "Source:\t%s\n", k.Source)
	fmt.Fprintf(w, "Active:\t%t\n", k.Active)
	fmt.Fprintf(w, "Created:\t%s\n", k.CreatedAt.Local().Format(timeLayout))
	fmt.Fprintf(w, "Age:\t%s\n", k.Age(time.Now()).Round(time.Minute))
	if k.Description != "" {
		fmt.Fprintf(w, "Description:\t%s\n", k.Description)
	}
	if k.ImportedAt != nil {
		fmt.Fprintf(w, "Imported:\t%s\n", k.ImportedAt.Local().Format(timeLayout))
	}
	if k.Active {
		due, remaining := s.app.Keys.RotationDue()
		fmt.Fprintf(w, "Rotation interval:\t%s\n", s.app.Keys.RotationInterval())
		if due {
			fmt.Fprintf(w, "Rotation:\t%s\n", i18n.T("key.rotation_due"))
		} else {
			fmt.Fprintf(w, "Rotation:\t%s\n", i18n.T("key.rotation_in", remaining.Round(time.Hour)))
		}
	}
	_ = w.Flush()
}

func newKeyBackupCmd(s *session) *cobra.Command {
	var output, keyID, password string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a password-encrypted backup of one or all keys",
		Long: `Exports key material and metadata into a file encrypted with a key derived
from the password (PBKDF2-SHA256, AES-256-GCM). Files ending in .zst are
additionally compressed with Zstandard.

Examples:
  credvault key backup -o keys-backup.json.zst
  credvault key backup -o one-key.json -k key_20260301120000_1a2b3c4d`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = fmt.Sprintf("credvault-keys-%s.json.zst", time.Now().Format("2006-01-02"))
			}
			pw, err := s.password(cmd, password, true)
			if err != nil {
				return err
			}
			blob, err := s.app.Keys.ExportBackup(pw, keyID)
			if err != nil {
				return userError(err)
			}
			if err := writeBackupFile(output, blob); err != nil {
				return errors.New(i18n.T("backup.write_failed", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("backup.written", output))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Backup file (.zst enables compression)")
	cmd.Flags().StringVarP(&keyID, "key", "k", "", "Back up only this key")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Backup password (prompted when omitted)")
	return cmd
}

func newKeyRestoreCmd(s *session) *cobra.Command {
	var input, password string
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Import keys from a backup file",
		Long: `Imports the keys of a backup as inactive, imported keys. Keys already present
are skipped. The backup's active key is activated only when no key is active.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return errors.New(i18n.T("restore.input_required"))
			}
			blob, err := readBackupFile(input)
			if err != nil {
				return errors.New(i18n.T("restore.read_failed", err))
			}
			pw, err := s.password(cmd, password, false)
			if err != nil {
				return err
			}
			ids, err := s.app.Keys.ImportBackup(blob, pw)
			if err != nil {
				return userError(err)
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, i18n.T("restore.nothing_imported"))
				return nil
			}
			fmt.Fprintln(out, i18n.T("restore.imported", len(ids), strings.Join(ids, ", ")))
			if active := s.app.Keys.ActiveKeyID(); active != "" {
				fmt.Fprintln(out, i18n.T("key.active_is", active))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "Backup file to import")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Backup password (prompted when omitted)")
	return cmd
}

func newKeyActivateCmd(s *session) *cobra.Command {
	var keyID string
	cmd := &cobra.Command{
		Use:   "activate",
		Short: "Make a key the active encryption key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if keyID == "" {
				return errors.New(i18n.T("key.id_required"))
			}
			if err := s.app.Keys.ActivateKey(keyID); err != nil {
				return userError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("key.activated", keyID))
			return nil
		},
	}
	cmd.Flags().StringVarP(&keyID, "key", "k", "", "Key id")
	return cmd
}

func printReencryptStats(cmd *cobra.Command, st *model.ReencryptStats) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, i18n.T("reencrypt.summary", st.Success, st.Total, st.Failed, st.Batches, st.Rollbacks))
	for _, e := range st.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", e)
	}
}
