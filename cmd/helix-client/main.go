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

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/helix-chat/helix-core/config"
)

var (
	relayURLFlag   string
	identifierFlag string
	configPath     string
)

var rootCmd = &cobra.Command{
	Use:   "helix-client",
	Short: "HeliX CLI - peer-to-peer end-to-end encrypted ephemeral chat",
	Long: `HeliX is a peer-to-peer, end-to-end encrypted ephemeral chat client.

It registers an identifier with a relay, negotiates an ephemeral ECDH
handshake with a peer, verifies the shared secret out of band via a
short authentication string, and then exchanges AES-GCM encrypted
messages and files for the lifetime of the session. Nothing is
persisted once a session ends.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML/JSON config file")
	rootCmd.PersistentFlags().StringVar(&relayURLFlag, "relay", "", "relay websocket URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&identifierFlag, "identifier", "", "self identifier (overrides config)")

	rootCmd.AddCommand(chatCmd)
}

// loadConfig resolves the effective configuration from --config (if set),
// environment-detected config files, and the --relay/--identifier flag
// overrides, in that priority order.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFromFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if relayURLFlag != "" {
		cfg.RelayURL = relayURLFlag
	}
	if identifierFlag != "" {
		cfg.Identifier = identifierFlag
	}
	return cfg, nil
}

// readLine prompts on stdout and reads one line from stdin, trimming the
// trailing newline.
func readLine(r *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
