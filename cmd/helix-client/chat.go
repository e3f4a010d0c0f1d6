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
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/helix-chat/helix-core/internal/logger"
	"github.com/helix-chat/helix-core/internal/metrics"
	"github.com/helix-chat/helix-core/session"
	"github.com/helix-chat/helix-core/transfer"
	"github.com/helix-chat/helix-core/transport/relayws"
)

var metricsAddr string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Connect to a relay and start an interactive HeliX session",
	Long: `chat registers the configured identifier with the relay, then
reads commands from stdin to start and drive peer sessions: accepting
or declining requests, confirming the SAS comparison out of band,
exchanging messages, and sending files.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090); empty disables")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Identifier == "" {
		return fmt.Errorf("identifier is required (set --identifier or config identifier)")
	}
	if cfg.RelayURL == "" {
		return fmt.Errorf("relay URL is required (set --relay or config relay_url)")
	}

	log := logger.GetDefaultLogger()
	log.Info("starting helix-client", logger.String("identifier", cfg.Identifier), logger.String("relay", cfg.RelayURL))

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				log.Warn("metrics server stopped", logger.Error(err))
			}
		}()
	}

	sink := &terminalSink{}
	timeouts := session.Timeouts{
		Request:    cfg.RequestTimeout,
		Handshake:  cfg.HandshakeTimeout,
		PeerTyping: cfg.PeerTypingTimeout,
	}
	store := transfer.NewMemoryStore()

	mgr := session.NewManager(cfg.Identifier, nil, sink, timeouts, store, cfg.MaxFileBytes, cfg.ChunkBytes)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	conn, err := relayws.Dial(ctx, cfg.RelayURL, 30*time.Second, 10*time.Second, mgr.HandleFrame, log)
	cancel()
	if err != nil {
		return fmt.Errorf("connect to relay: %w", err)
	}
	defer conn.Close()

	mgr.SetTransport(conn)
	if err := mgr.Register(); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	fmt.Println("connected. type /help for commands.")
	return runREPL(mgr)
}

func runREPL(mgr *session.Manager) error {
	reader := bufio.NewReader(os.Stdin)
	for {
		line, err := readLine(reader, "> ")
		if err != nil {
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if err := handleCommand(mgr, line); err != nil {
			fmt.Printf("error: %v\n", err)
		}
	}
}

func handleCommand(mgr *session.Manager, line string) error {
	fields := strings.SplitN(line, " ", 3)
	cmd := fields[0]

	switch cmd {
	case "/help":
		printHelp()
		return nil
	case "/quit", "/exit":
		os.Exit(0)
	case "/connect":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /connect <peer>")
		}
		return mgr.StartSession(fields[1])
	case "/accept":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /accept <peer>")
		}
		return mgr.AcceptSession(fields[1])
	case "/deny":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /deny <peer>")
		}
		return mgr.DenySession(fields[1])
	case "/confirm":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /confirm <peer>")
		}
		return mgr.ConfirmSAS(fields[1])
	case "/sasdeny":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /sasdeny <peer>")
		}
		return mgr.DenySAS(fields[1])
	case "/sascancel":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /sascancel <peer>")
		}
		return mgr.CancelSAS(fields[1])
	case "/send":
		if len(fields) < 3 {
			return fmt.Errorf("usage: /send <peer> <text>")
		}
		return mgr.SendMessage(fields[1], fields[2], false)
	case "/me":
		if len(fields) < 3 {
			return fmt.Errorf("usage: /me <peer> <text>")
		}
		return mgr.SendMessage(fields[1], fields[2], true)
	case "/end":
		if len(fields) < 2 {
			return fmt.Errorf("usage: /end <peer>")
		}
		return mgr.EndSession(fields[1])
	case "/sendfile":
		if len(fields) < 3 {
			return fmt.Errorf("usage: /sendfile <peer> <path>")
		}
		data, err := os.ReadFile(fields[2])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		return mgr.OfferTransfer(fields[1], filepath.Base(fields[2]), "application/octet-stream", data)
	default:
		return fmt.Errorf("unknown command %q (try /help)", cmd)
	}
	return nil
}

func printHelp() {
	fmt.Println(`commands:
  /connect <peer>           start a session with peer
  /accept <peer>            accept a pending inbound request
  /deny <peer>               decline a pending inbound request
  /confirm <peer>            confirm the displayed SAS phrase matches
  /sasdeny <peer>            the SAS phrase does NOT match; abort
  /sascancel <peer>          cancel while waiting on the peer's confirmation
  /send <peer> <text>        send an encrypted chat message
  /me <peer> <text>          send an action-style message
  /sendfile <peer> <path>    offer a file for transfer
  /end <peer>                end an active session
  /quit                      exit`)
}
