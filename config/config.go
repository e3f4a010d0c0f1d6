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

// Package config loads the client's relay/session/transfer parameters from
// a YAML file, environment variables, or built-in defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything a running client needs: which relay to dial, how
// it identifies itself, and the timers and limits that govern handshakes,
// session liveness, and file transfer.
type Config struct {
	Environment string `yaml:"environment" json:"environment"`

	// RelayURL is the websocket endpoint of the relay server.
	RelayURL string `yaml:"relay_url" json:"relay_url"`
	// Identifier is this client's self-chosen peer identifier, exchanged
	// in session requests.
	Identifier string `yaml:"identifier" json:"identifier"`

	RequestTimeout    time.Duration `yaml:"request_timeout" json:"request_timeout"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout" json:"handshake_timeout"`
	PeerTypingTimeout time.Duration `yaml:"peer_typing_timeout" json:"peer_typing_timeout"`

	MaxFileBytes   int64 `yaml:"max_file_bytes" json:"max_file_bytes"`
	ChunkBytes     int   `yaml:"chunk_bytes" json:"chunk_bytes"`
	InflightWindow int   `yaml:"inflight_window" json:"inflight_window"`

	Debug   bool           `yaml:"debug" json:"debug"`
	Logging *LoggingConfig `yaml:"logging" json:"logging"`
}

// LoggingConfig controls the internal/logger output.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format"` // json, console
	Output string `yaml:"output" json:"output"` // stdout, stderr, file path
}

// Default values for every timer and limit, per the handshake and transfer
// invariants: a request the peer never answers must eventually time out,
// and a transfer must not grow without bound.
const (
	DefaultRequestTimeout    = 60 * time.Second
	DefaultHandshakeTimeout  = 30 * time.Second
	DefaultPeerTypingTimeout = 5 * time.Second
	DefaultMaxFileBytes      = 100 * 1024 * 1024
	DefaultChunkBytes        = 64 * 1024
	DefaultInflightWindow    = 8
)

// LoadFromFile reads and parses a YAML (or, failing that, JSON) config file,
// then applies defaults for any field left unset.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse file (tried YAML and JSON): %w", err)
		}
	}

	setDefaults(cfg)
	return cfg, nil
}

// SaveToFile writes cfg to path, choosing JSON or YAML by file extension.
func SaveToFile(cfg *Config, path string) error {
	var data []byte
	var err error

	if len(path) > 5 && path[len(path)-5:] == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write file: %w", err)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.PeerTypingTimeout == 0 {
		cfg.PeerTypingTimeout = DefaultPeerTypingTimeout
	}
	if cfg.MaxFileBytes == 0 {
		cfg.MaxFileBytes = DefaultMaxFileBytes
	}
	if cfg.ChunkBytes == 0 {
		cfg.ChunkBytes = DefaultChunkBytes
	}
	if cfg.InflightWindow == 0 {
		cfg.InflightWindow = DefaultInflightWindow
	}
	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}

// ValidationIssue is a single configuration problem found by Validate.
// Level "error" must block startup; "warn" is surfaced but non-fatal.
type ValidationIssue struct {
	Field   string
	Message string
	Level   string
}

// Validate checks cfg for the minimum a client needs to run.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	if cfg.RelayURL == "" {
		issues = append(issues, ValidationIssue{Field: "relay_url", Message: "relay_url is required", Level: "error"})
	}
	if cfg.Identifier == "" {
		issues = append(issues, ValidationIssue{Field: "identifier", Message: "identifier is required", Level: "error"})
	}
	if cfg.ChunkBytes <= 0 {
		issues = append(issues, ValidationIssue{Field: "chunk_bytes", Message: "chunk_bytes must be positive", Level: "error"})
	}
	if cfg.MaxFileBytes > 0 && int64(cfg.ChunkBytes) > cfg.MaxFileBytes {
		issues = append(issues, ValidationIssue{Field: "chunk_bytes", Message: "chunk_bytes exceeds max_file_bytes", Level: "warn"})
	}
	if cfg.InflightWindow <= 0 {
		issues = append(issues, ValidationIssue{Field: "inflight_window", Message: "inflight_window must be positive", Level: "error"})
	}

	return issues
}
