// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/toeirei/credvault/internal/credentials"
	"github.com/toeirei/credvault/internal/i18n"
	"github.com/toeirei/credvault/internal/model"
	"github.com/toeirei/credvault/internal/reencrypt"
)

// newCredentialCmd is the root command for credential management.
func newCredentialCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credential",
		Aliases: []string{"cred"},
		Short:   "Manage stored credentials and their tag associations",
	}
	cmd.AddCommand(
		newCredAddCmd(s),
		newCredGetCmd(s),
		newCredListCmd(s),
		newCredDeleteCmd(s),
		newCredTagCmd(s),
		newCredUntagCmd(s),
		newCredByTagCmd(s),
		newCredSmartCmd(s),
		newCredReportCmd(s),
		newCredStatsCmd(s),
		newCredOptimizeCmd(s),
		newCredReencryptCmd(s),
	)
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New(i18n.T("error.invalid_id", arg))
	}
	return id, nil
}

// parseTagFlag parses "tag" or "tag:priority".
func parseTagFlag(v string) (credentials.TagPriority, error) {
	idPart, prioPart, hasPrio := strings.Cut(v, ":")
	id, err := parseID(idPart)
	if err != nil {
		return credentials.TagPriority{}, err
	}
	tp := credentials.TagPriority{TagID: id}
	if hasPrio {
		p, err := strconv.ParseFloat(prioPart, 64)
		if err != nil {
			return tp, errors.New(i18n.T("error.invalid_priority", prioPart))
		}
		tp.Priority = p
	}
	return tp, nil
}

func newCredAddCmd(s *session) *cobra.Command {
	var (
		name, username, secret, keyFile, description string
		readSecret, keyAuth                          bool
		tags                                         []string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a credential",
		Long: `Adds a credential. The secret is encrypted with the active key before it is
stored. Use --secret-stdin to read it from a prompt (or stdin) instead of the
command line.

Example:
  credvault credential add --name core-sw --username admin --secret-stdin --tag 3:80`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nc := credentials.NewCredential{
				Name:        name,
				Username:    username,
				UsesKeyAuth: keyAuth || keyFile != "",
				KeyFile:     keyFile,
				Description: description,
			}
			switch {
			case readSecret:
				v, err := s.readSecretInput(cmd)
				if err != nil {
					return err
				}
				nc.Secret = &v
			case cmd.Flags().Changed("secret"):
				nc.Secret = &secret
			}
			for _, t := range tags {
				tp, err := parseTagFlag(t)
				if err != nil {
					return err
				}
				nc.Tags = append(nc.Tags, tp)
			}
			id, err := s.app.Credentials.AddCredential(cmd.Context(), nc)
			if err != nil {
				return userError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("credential.added", name, id))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Unique credential name")
	cmd.Flags().StringVar(&username, "username", "", "Login user name")
	cmd.Flags().StringVar(&secret, "secret", "", "Secret (visible in shell history; prefer --secret-stdin)")
	cmd.Flags().BoolVar(&readSecret, "secret-stdin", false, "Read the secret from a prompt or stdin")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "Private key file for key authentication")
	cmd.Flags().BoolVar(&keyAuth, "key-auth", false, "Credential uses key authentication")
	cmd.Flags().StringVar(&description, "description", "", "Free-form description")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag association as <tag-id>[:priority], repeatable")
	return cmd
}

func newCredGetCmd(s *session) *cobra.Command {
	var showSecret bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show a credential",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := s.app.Credentials.GetCredential(cmd.Context(), id)
			if err != nil {
				return userError(err)
			}
			if c == nil {
				return errors.New(i18n.T("error.credential_not_found", id))
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "ID:\t%d\n", c.ID)
			fmt.Fprintf(w, "Name:\t%s\n", c.Name)
			fmt.Fprintf(w, "Username:\t%s\n", c.Username)
			switch {
			case !c.HasSecret:
				fmt.Fprintf(w, "Secret:\t-\n")
			case showSecret:
				fmt.Fprintf(w, "Secret:\t%s\n", c.Secret)
			default:
				fmt.Fprintf(w, "Secret:\t********\n")
			}
			fmt.Fprintf(w, "Key auth:\t%t\n", c.UsesKeyAuth)
			if c.KeyFile != "" {
				fmt.Fprintf(w, "Key file:\t%s\n", c.KeyFile)
			}
			if c.Description != "" {
				fmt.Fprintf(w, "Description:\t%s\n", c.Description)
			}
			fmt.Fprintf(w, "Attempts:\t%d (%.0f%% success)\n", c.Attempts(), c.SuccessRate()*100)
			fmt.Fprintf(w, "Last used:\t%s\n", formatTime(c.LastUsed))
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&showSecret, "show-secret", false, "Print the decrypted secret")
	return cmd
}

func newCredListCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List credentials (secrets are never shown)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := s.app.Credentials.ListCredentials(cmd.Context())
			if err != nil {
				return userError(err)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("credential.none"))
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tUSERNAME\tSECRET\tKEY AUTH\tSUCCESS\tFAILURE\tLAST USED")
			for _, c := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
					c.ID, c.Name, c.Username, yesNo(c.HasSecret), yesNo(c.UsesKeyAuth), c.SuccessCount, c.FailureCount, formatTime(c.LastUsed))
			}
			return w.Flush()
		},
	}
}

func newCredDeleteCmd(s *session) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a credential and its tag associations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if !yes && s.isTerminal() {
				if ans := s.promptForConfirmation(cmd, i18n.T("credential.confirm_delete", id)); ans != "y" && ans != "yes" {
					fmt.Fprintln(cmd.OutOrStdout(), i18n.T("aborted"))
					return nil
				}
			}
			ok, err := s.app.Credentials.DeleteCredential(cmd.Context(), id)
			if err != nil {
				return userError(err)
			}
			if !ok {
				return errors.New(i18n.T("error.credential_not_found", id))
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("credential.deleted", id))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newCredTagCmd(s *session) *cobra.Command {
	var priority float64
	cmd := &cobra.Command{
		Use:   "tag <credential-id> <tag-id>",
		Short: "Associate a credential with a tag, or change the association's priority",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			credID, err := parseID(args[0])
			if err != nil {
				return err
			}
			tagID, err := parseID(args[1])
			if err != nil {
				return err
			}
			if err := s.app.Credentials.AssociateTag(cmd.Context(), credID, tagID, priority); err != nil {
				return userError(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("credential.tagged", credID, tagID, priority))
			return nil
		},
	}
	cmd.Flags().Float64Var(&priority, "priority", 0, "Association priority (higher is tried first)")
	return cmd
}

func newCredUntagCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "untag <credential-id> <tag-id>",
		Short: "Remove a tag association",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			credID, err := parseID(args[0])
			if err != nil {
				return err
			}
			tagID, err := parseID(args[1])
			if err != nil {
				return err
			}
			ok, err := s.app.Credentials.DissociateTag(cmd.Context(), credID, tagID)
			if err != nil {
				return userError(err)
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("credential.not_tagged", credID, tagID))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("credential.untagged", credID, tagID))
			return nil
		},
	}
}

func newCredByTagCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "by-tag <tag-id>",
		Short: "List the credentials of a tag in priority order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tagID, err := parseID(args[0])
			if err != nil {
				return err
			}
			list, err := s.app.Credentials.GetCredentialsByTag(cmd.Context(), tagID)
			if err != nil {
				return userError(err)
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("credential.none_for_tag", tagID))
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tUSERNAME\tPRIORITY\tSUCCESS\tFAILURE\tLAST SUCCESS")
			for _, tc := range list {
				fmt.Fprintf(w, "%d\t%s\t%s\t%g\t%d\t%d\t%s\n",
					tc.Credential.ID, tc.Credential.Name, tc.Credential.Username, tc.Tag.Priority,
					tc.Tag.SuccessCount, tc.Tag.FailureCount, formatTime(tc.Tag.LastSuccess))
			}
			return w.Flush()
		},
	}
}

func newCredSmartCmd(s *session) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "smart <tag-id>",
		Short: "Rank the credentials of a tag by success history, priority and recency",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tagID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ranked, err := s.app.Credentials.SmartCredentialsForTag(cmd.Context(), tagID, limit)
			if err != nil {
				return userError(err)
			}
			if len(ranked) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("credential.none_for_tag", tagID))
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tID\tNAME\tSCORE\tSUCCESS\tPRIORITY\tRECENCY")
			for i, sc := range ranked {
				fmt.Fprintf(w, "%d\t%d\t%s\t%.3f\t%.2f\t%.2f\t%.2f\n",
					i+1, sc.Credential.ID, sc.Credential.Name, sc.Score, sc.SuccessScore, sc.PriorityScore, sc.RecencyScore)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (0 for all)")
	return cmd
}

func newCredReportCmd(s *session) *cobra.Command {
	var tag int64
	cmd := &cobra.Command{
		Use:       "report <credential-id> <success|failure>",
		Short:     "Record the outcome of a connection attempt",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"success", "failure"},
		RunE: func(cmd *cobra.Command, args []string) error {
			credID, err := parseID(args[0])
			if err != nil {
				return err
			}
			var success bool
			switch strings.ToLower(args[1]) {
			case "success", "ok":
				success = true
			case "failure", "fail":
			default:
				return errors.New(i18n.T("error.invalid_outcome", args[1]))
			}
			var tagID *int64
			if cmd.Flags().Changed("tag") {
				tagID = &tag
			}
			ok, err := s.app.Credentials.UpdateCredentialStatus(cmd.Context(), credID, tagID, success)
			if err != nil {
				return userError(err)
			}
			if !ok {
				return errors.New(i18n.T("error.credential_not_found", credID))
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("credential.reported", credID))
			return nil
		},
	}
	cmd.Flags().Int64Var(&tag, "tag", 0, "Tag the attempt was made for")
	return cmd
}

func newCredStatsCmd(s *session) *cobra.Command {
	var tag int64
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show usage statistics, globally or for one tag",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				v         any
				total     int
				active    int
				rate      float64
				top, wrst []model.Performer
			)
			if cmd.Flags().Changed("tag") {
				st, err := s.app.Credentials.GetTagCredentialStats(cmd.Context(), tag)
				if err != nil {
					return userError(err)
				}
				v, total, active, rate, top, wrst = st, st.Total, st.Active, st.SuccessRate, st.TopPerformers, st.WorstPerformers
			} else {
				st, err := s.app.Credentials.GetCredentialStats(cmd.Context())
				if err != nil {
					return userError(err)
				}
				v, total, active, rate, top, wrst = st, st.Total, st.Active, st.SuccessRate, st.TopPerformers, st.WorstPerformers
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}
			fmt.Fprintln(out, i18n.T("stats.summary", total, active, rate*100))
			printPerformers(cmd, i18n.T("stats.top"), top)
			printPerformers(cmd, i18n.T("stats.worst"), wrst)
			return nil
		},
	}
	cmd.Flags().Int64Var(&tag, "tag", 0, "Limit statistics to one tag")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func printPerformers(cmd *cobra.Command, title string, list []model.Performer) {
	if len(list) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, title)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, p := range list {
		fmt.Fprintf(w, "  %d\t%s\t%d\t%.0f%%\n", p.CredentialID, p.Name, p.Attempts, p.SuccessRate*100)
	}
	_ = w.Flush()
}

func newCredOptimizeCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "optimize <tag-id>",
		Short: "Reassign the priorities of a tag's credentials from their history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tagID, err := parseID(args[0])
			if err != nil {
				return err
			}
			prios, err := s.app.Credentials.OptimizePriorities(cmd.Context(), tagID)
			if err != nil {
				return userError(err)
			}
			if len(prios) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), i18n.T("optimize.nothing", tagID))
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("optimize.done", len(prios), tagID))
			return nil
		},
	}
}

func newCredReencryptCmd(s *session) *cobra.Command {
	var keyID string
	var batchSize int
	cmd := &cobra.Command{
		Use:   "reencrypt",
		Short: "Re-encrypt every stored secret under a key (default: the active key)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			target := keyID
			if target == "" {
				target = s.app.Keys.ActiveKeyID()
			}
			if target == "" {
				return errors.New(i18n.T("key.no_active"))
			}
			size := batchSize
			if size <= 0 {
				size = s.cfg.Reencrypt.BatchSize
			}
			errOut := cmd.ErrOrStderr()
			stats, err := s.app.Reencrypt.Run(cmd.Context(), target, reencrypt.Options{
				BatchSize: size,
				Progress: func(processed, total, success, failed int) {
					fmt.Fprintf(errOut, "  %d/%d (%d ok, %d failed)\n", processed, total, success, failed)
				},
			})
			if stats != nil {
				printReencryptStats(cmd, stats)
			}
			return userError(err)
		},
	}
	cmd.Flags().StringVarP(&keyID, "key", "k", "", "Target key id")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Rows per transaction (default from config)")
	return cmd
}
