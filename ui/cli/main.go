// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime/debug"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/toeirei/credvault/buildvars"
	"github.com/toeirei/credvault/internal/app"
	"github.com/toeirei/credvault/internal/config"
	"github.com/toeirei/credvault/internal/db"
	"github.com/toeirei/credvault/internal/i18n"
	"github.com/toeirei/credvault/internal/logging"
	"golang.org/x/term"
)

// session carries the state of one CLI invocation. It replaces package-level
// globals so commands can be executed repeatedly in tests.
type session struct {
	cfgFile string
	verbose bool

	cfg config.Config
	app *app.App

	openApp      func(config.Config) (*app.App, error)
	stdin        io.Reader
	isTerminal   func() bool
	readPassword func() ([]byte, error)
}

func newSession() *session {
	return &session{
		openApp: func(c config.Config) (*app.App, error) { return app.Open(c, app.Options{}) },
		stdin:   os.Stdin,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
		readPassword: func() ([]byte, error) {
			return term.ReadPassword(int(os.Stdin.Fd()))
		},
	}
}

// setup loads configuration and opens the application.
func (s *session) setup(cmd *cobra.Command, args []string) error {
	if err := s.loadConfig(cmd, args); err != nil {
		return err
	}
	a, err := s.openApp(s.cfg)
	if err != nil {
		return errors.New(i18n.T("error.init", err))
	}
	s.app = a
	return nil
}

// loadConfig resolves the configuration and initializes logging and i18n.
func (s *session) loadConfig(cmd *cobra.Command, _ []string) error {
	path, err := configPathFromCli(cmd)
	if err != nil {
		return err
	}

	defaults := config.Defaults()
	s.cfg, err = config.LoadConfig[config.Config](cmd, defaults, path)
	if errors.As(err, &viper.ConfigFileNotFoundError{}) {
		logging.Debugf("no config file found, using defaults (run 'credvault config init' to write one)")
	} else if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// Empty values in a config file fall back to the defaults.
	if s.cfg.Database.Type == "" {
		s.cfg.Database.Type = defaults["database.type"].(string)
	}
	if s.cfg.Database.Dsn == "" {
		s.cfg.Database.Dsn = defaults["database.dsn"].(string)
	}
	if s.cfg.Keys.Dir == "" {
		s.cfg.Keys.Dir = defaults["keys.dir"].(string)
	}
	if s.cfg.Language == "" {
		s.cfg.Language = defaults["language"].(string)
	}

	logging.SetLevel(s.cfg.Log.Level)
	if s.verbose {
		logging.SetLevel("debug")
		db.SetDebug(true)
	}
	i18n.Init(s.cfg.Language)
	return nil
}

func (s *session) close() {
	if s.app == nil {
		return
	}
	if err := s.app.Close(); err != nil {
		logging.Errorf("error during shutdown: %v", err)
	}
	s.app = nil
}

func configPathFromCli(cmd *cobra.Command) (*string, error) {
	if !cmd.Flags().Changed("config") {
		return nil, nil
	}
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, fmt.Errorf("could not read --config flag: %w", err)
	}
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file specified via --config flag not found or is not accessible: %w", err)
	}
	return &path, nil
}

// Execute runs the CLI. The caller maps a non-nil error to exit status 1.
func Execute() error {
	s := newSession()
	defer s.close()
	return newRootCmd(s).Execute()
}

// NewRootCmd returns a fresh command tree.
func NewRootCmd() *cobra.Command {
	return newRootCmd(newSession())
}

func newRootCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credvault",
		Short: "credvault stores device credentials encrypted and manages their keys.",
		Long: `credvault keeps the credentials used to log into network devices in a
database, encrypted with AES-256-GCM under rotating keys. Credentials are
associated with tags; for every tag they are ranked by priority and by how
well they worked in the past.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: s.setup,
	}
	cmd.Version = compositeVersion()

	cmd.PersistentFlags().BoolVarP(&s.verbose, "verbose", "v", false, "Enable debug logging (including DB logs)")
	cmd.PersistentFlags().StringVar(&s.cfgFile, "config", "", "config file")
	cmd.PersistentFlags().String("language", "en", `CLI language ("en", "de")`)
	cmd.PersistentFlags().String("database.type", "sqlite", "Database type (sqlite, postgres, mysql)")
	cmd.PersistentFlags().String("database.dsn", "./credvault.db", "Database connection string (DSN)")
	cmd.PersistentFlags().String("keys.dir", "./keys", "Directory holding key material and keys.json")
	cmd.PersistentFlags().String("log.level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		newKeyCmd(s),
		newCredentialCmd(s),
		newDBMaintainCmd(s),
		newConfigCmd(s),
		newVersionCmd(),
	)
	return cmd
}

// skipSetup is used by commands that need neither config nor database.
func skipSetup(*cobra.Command, []string) error { return nil }

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:               "version",
		Short:             "Print version",
		PersistentPreRunE: skipSetup,
		Run: func(cmd *cobra.Command, args []string) {
			v, c, d := resolveBuildVersion(nil)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version: %s\n", v)
			fmt.Fprintf(out, "commit: %s\n", c)
			if d != "" {
				fmt.Fprintf(out, "built: %s\n", d)
			}
		},
	}
}

func newDBMaintainCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "db-maintain",
		Short: "Run database maintenance (VACUUM/OPTIMIZE) for the configured DB",
		Long:  `Runs engine-specific maintenance tasks (VACUUM, OPTIMIZE TABLE, PRAGMA optimize).`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := s.app.Store.Maintain(cmd.Context()); err != nil {
				return errors.New(i18n.T("db.maintain_failed", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("db.maintain_success"))
			return nil
		},
	}
}

func newConfigCmd(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:               "config",
		Short:             "Inspect or write the configuration file",
		PersistentPreRunE: s.loadConfig,
	}
	var system bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the effective configuration to the user (or system) config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.WriteConfigFile(&s.cfg, system)
			if err != nil {
				return errors.New(i18n.T("config.write_failed", err))
			}
			fmt.Fprintln(cmd.OutOrStdout(), i18n.T("config.written", path))
			return nil
		},
	}
	initCmd.Flags().BoolVar(&system, "system", false, "Write the system-wide config file instead")
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := yaml.Marshal(s.cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func compositeVersion() string {
	v, c, d := resolveBuildVersion(nil)
	out := v
	if c != "" && c != "dev" {
		out += " (" + c + ")"
	}
	if d != "" {
		out += " built: " + d
	}
	return out
}

// resolveBuildVersion computes the best-available version, commit and build
// date. If info is nil the runtime build info is read.
func resolveBuildVersion(info *debug.BuildInfo) (versionOut, commitOut, dateOut string) {
	resolvedVersion := buildvars.VersionOrDefault("dev")
	resolvedCommit := buildvars.CommitOrDefault("dev")
	resolvedDate := buildvars.BuildDate

	if info == nil {
		if local, ok := debug.ReadBuildInfo(); ok {
			info = local
		}
	}
	if info != nil {
		if resolvedVersion == "dev" && info.Main.Version != "" && info.Main.Version != "(devel)" {
			resolvedVersion = info.Main.Version
		}
		for _, st := range info.Settings {
			switch st.Key {
			case "vcs.revision":
				if st.Value != "" && resolvedCommit == "dev" {
					resolvedCommit = st.Value
				}
			case "vcs.time":
				if st.Value != "" && resolvedDate == "" {
					resolvedDate = st.Value
				}
			}
		}
	}

	if resolvedVersion == "dev" && resolvedCommit != "dev" && resolvedCommit != "" {
		resolvedVersion = resolvedCommit
	}
	return resolvedVersion, resolvedCommit, resolvedDate
}
