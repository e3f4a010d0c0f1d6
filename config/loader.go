// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoaderOptions configures the configuration loader.
type LoaderOptions struct {
	// ConfigDir is the directory containing config files (default: ./config).
	ConfigDir string
	// Environment overrides automatic environment detection.
	Environment string
	// SkipEnvSubstitution disables ${VAR} substitution.
	SkipEnvSubstitution bool
	// SkipValidation disables configuration validation.
	SkipValidation bool
}

// DefaultLoaderOptions returns default loader options.
func DefaultLoaderOptions() LoaderOptions {
	return LoaderOptions{
		ConfigDir: "config",
	}
}

// Load loads configuration with automatic environment detection. It first
// loads a .env file from the working directory, if present, so that
// SubstituteEnvVarsInConfig and the overrides below see those values too.
func Load(opts ...LoaderOptions) (*Config, error) {
	_ = godotenv.Load()

	options := DefaultLoaderOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	env := options.Environment
	if env == "" {
		env = GetEnvironment()
	}

	envConfigPath := filepath.Join(options.ConfigDir, fmt.Sprintf("%s.yaml", env))
	cfg, err := loadConfigFile(envConfigPath)
	if err != nil {
		defaultConfigPath := filepath.Join(options.ConfigDir, "default.yaml")
		cfg, err = loadConfigFile(defaultConfigPath)
		if err != nil {
			configPath := filepath.Join(options.ConfigDir, "config.yaml")
			cfg, err = loadConfigFile(configPath)
			if err != nil {
				cfg = &Config{Environment: env}
				setDefaults(cfg)
			}
		}
	}

	if cfg.Environment == "" {
		cfg.Environment = env
	}

	if !options.SkipEnvSubstitution {
		SubstituteEnvVarsInConfig(cfg)
	}

	applyEnvironmentOverrides(cfg)

	if !options.SkipValidation {
		for _, issue := range Validate(cfg) {
			if issue.Level == "error" {
				return nil, fmt.Errorf("config: validation failed: %s - %s", issue.Field, issue.Message)
			}
		}
	}

	return cfg, nil
}

func loadConfigFile(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}
	return LoadFromFile(path)
}

// applyEnvironmentOverrides lets HELIX_* environment variables win over
// whatever a config file set, highest priority last.
func applyEnvironmentOverrides(cfg *Config) {
	if v := os.Getenv("HELIX_RELAY_URL"); v != "" {
		cfg.RelayURL = v
	}
	if v := os.Getenv("HELIX_IDENTIFIER"); v != "" {
		cfg.Identifier = v
	}
	if v := os.Getenv("HELIX_LOG_LEVEL"); v != "" && cfg.Logging != nil {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("HELIX_LOG_FORMAT"); v != "" && cfg.Logging != nil {
		cfg.Logging.Format = v
	}
	if os.Getenv("HELIX_DEBUG") == "true" {
		cfg.Debug = true
	}
	if os.Getenv("HELIX_DEBUG") == "false" {
		cfg.Debug = false
	}
}

// LoadForEnvironment loads configuration for a specific environment.
func LoadForEnvironment(environment string) (*Config, error) {
	return Load(LoaderOptions{ConfigDir: "config", Environment: environment})
}

// MustLoad loads configuration or panics on error.
func MustLoad(opts ...LoaderOptions) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}
