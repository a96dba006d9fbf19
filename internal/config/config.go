// Copyright (c) 2026 credvault Team
// credvault - encrypted credential store with key lifecycle management
// This source code is licensed under the MIT license found in the LICENSE file.

// Package config loads credvault settings from defaults, credvault.yaml,
// CREDVAULT_* environment variables and command line flags, in increasing
// order of precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	configName = "credvault"
	envPrefix  = "credvault"
)

// Config is the application configuration.
type Config struct {
	Database  Database  `mapstructure:"database" yaml:"database"`
	Keys      Keys      `mapstructure:"keys" yaml:"keys"`
	Reencrypt Reencrypt `mapstructure:"reencrypt" yaml:"reencrypt"`
	Stats     Stats     `mapstructure:"stats" yaml:"stats"`
	Language  string    `mapstructure:"language" yaml:"language"`
	Log       Log       `mapstructure:"log" yaml:"log"`
}

// Database selects the SQL engine and its connection string.
type Database struct {
	Type string `mapstructure:"type" yaml:"type"`
	Dsn  string `mapstructure:"dsn" yaml:"dsn"`
}

// Keys configures the key registry.
type Keys struct {
	Dir                  string `mapstructure:"dir" yaml:"dir"`
	RotationIntervalDays int    `mapstructure:"rotation_interval_days" yaml:"rotation_interval_days"`
	EnvVar               string `mapstructure:"env_var" yaml:"env_var"`
}

// Reencrypt configures batch re-encryption.
type Reencrypt struct {
	BatchSize int `mapstructure:"batch_size" yaml:"batch_size"`
}

// Stats configures the usage statistics.
type Stats struct {
	MinAttempts      int `mapstructure:"min_attempts" yaml:"min_attempts"`
	MinTagAttempts   int `mapstructure:"min_tag_attempts" yaml:"min_tag_attempts"`
	ActiveWindowDays int `mapstructure:"active_window_days" yaml:"active_window_days"`
}

// Log configures the logger.
type Log struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Defaults returns the flat viper defaults.
func Defaults() map[string]any {
	return map[string]any{
		"database.type":               "sqlite",
		"database.dsn":                "./credvault.db",
		"keys.dir":                    "./keys",
		"keys.rotation_interval_days": 90,
		"keys.env_var":                "CREDVAULT_ENCRYPTION_KEY",
		"reencrypt.batch_size":        100,
		"stats.min_attempts":          10,
		"stats.min_tag_attempts":      5,
		"stats.active_window_days":    30,
		"language":                    "en",
		"log.level":                   "info",
	}
}

// GetConfigPath returns the path of the user (or system-wide) config file.
func GetConfigPath(system bool) (string, error) {
	var configDir string
	if system {
		switch runtime.GOOS {
		case "windows":
			configDir = filepath.Join(os.Getenv("ProgramData"), "credvault")
		default:
			configDir = "/etc/credvault"
		}
	} else {
		dir, err := os.UserConfigDir()
		if err != nil {
			return "", fmt.Errorf("could not get user config directory: %w", err)
		}
		configDir = filepath.Join(dir, "credvault")
	}
	return filepath.Join(configDir, configName+".yaml"), nil
}

// LoadConfig resolves T from defaults, the first credvault.yaml found (or
// explicitPath), the environment and the flags of cmd. A missing config file
// is reported as viper.ConfigFileNotFoundError together with the resolved
// values so callers can continue on defaults.
func LoadConfig[T any](cmd *cobra.Command, defaults map[string]any, explicitPath *string) (T, error) {
	var c T
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if explicitPath != nil {
		v.SetConfigFile(*explicitPath)
	}
	if userConfigPath, err := GetConfigPath(false); err == nil {
		v.AddConfigPath(filepath.Dir(userConfigPath))
	}
	if systemConfigPath, err := GetConfigPath(true); err == nil {
		v.AddConfigPath(filepath.Dir(systemConfigPath))
	}
	v.AddConfigPath(".")

	var notFound error
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return c, err
		}
		notFound = err
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return c, err
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	return c, notFound
}

// WriteConfigFile writes c as YAML to the user (or system-wide) config path
// with mode 0600 and returns the path.
func WriteConfigFile[T any](c *T, system bool) (string, error) {
	path, err := GetConfigPath(system)
	if err != nil {
		return "", err
	}
	return path, WriteConfigFileTo(c, path)
}

// WriteConfigFileTo writes c as YAML to path with mode 0600.
func WriteConfigFileTo[T any](c *T, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", configDir, err)
	}
	return os.WriteFile(path, data, 0o600)
}
