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
	"fmt"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

var (
	peerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	meStyle     = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("213"))
	systemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	infoStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	typingStyle = lipgloss.NewStyle().Faint(true)
)

// terminalSink renders session events to stdout. It implements
// presentation.Sink.
type terminalSink struct {
	mu sync.Mutex
}

func (s *terminalSink) DisplayMessage(peerID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\r%s: %s\n> ", peerStyle.Render(peerID), text)
}

func (s *terminalSink) DisplayMeAction(peerID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\r%s\n> ", meStyle.Render(fmt.Sprintf("* %s %s", peerID, text)))
}

func (s *terminalSink) DisplaySystemMessage(peerID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\r%s\n> ", systemStyle.Render("[system] "+text))
}

func (s *terminalSink) ShowInfo(peerID, info string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\r%s\n> ", infoStyle.Render(fmt.Sprintf("[%s] %s", peerID, info)))
}

func (s *terminalSink) ShowTyping(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\r%s\n> ", typingStyle.Render(peerID+" is typing..."))
}

func (s *terminalSink) HideTyping(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Print("\r> ")
}

func (s *terminalSink) SessionActive(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Printf("\r%s\n> ", systemStyle.Render(fmt.Sprintf("[system] session with %s is now active", peerID)))
}

func (s *terminalSink) Reset(peerID, reason string, notify bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if notify {
		fmt.Printf("\r%s\n> ", systemStyle.Render(fmt.Sprintf("[system] session with %s ended: %s", peerID, reason)))
	}
}
