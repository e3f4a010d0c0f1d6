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

// Package action defines the typed result every session handler returns.
// Handlers never throw; the manager pattern-matches on Kind and performs
// the corresponding I/O or presentation call.
package action

import "github.com/helix-chat/helix-core/wire"

// Kind identifies which variant of Action is populated.
type Kind int

const (
	None Kind = iota
	Send
	DisplayMessage
	DisplayMeAction
	DisplaySystemMessage
	ShowInfo
	ShowTyping
	HideTyping
	SessionActive
	Reset
)

// Action is the typed result of every session state machine step. Exactly
// one Kind is relevant per value; the other fields are zero. Followup
// chains a second action to apply right after this one, for the rare
// handler that both sends a frame and needs to tell the presentation layer
// something in response to the same inbound frame (e.g. completing the
// handshake sends Type 7 and also reveals the SAS value).
type Action struct {
	Kind Kind

	// Send
	FrameType wire.Type
	Payload   any

	// DisplayMessage / DisplayMeAction / DisplaySystemMessage
	Text string

	// ShowInfo
	Info string

	// Reset
	Reason string
	Notify bool

	Followup *Action
}

// None is a no-op action: nothing to send, nothing to display.
func NewNone() Action { return Action{Kind: None} }

// NewSend builds a Send action for an outbound frame.
func NewSend(t wire.Type, payload any) Action {
	return Action{Kind: Send, FrameType: t, Payload: payload}
}

// NewDisplayMessage builds a DisplayMessage action for peer chat text.
func NewDisplayMessage(text string) Action {
	return Action{Kind: DisplayMessage, Text: text}
}

// NewDisplayMeAction builds a DisplayMeAction action for an /me-style message.
func NewDisplayMeAction(text string) Action {
	return Action{Kind: DisplayMeAction, Text: text}
}

// NewDisplaySystemMessage builds a DisplaySystemMessage action, used for
// non-fatal local notices (e.g. a tamper/decrypt failure that doesn't
// terminate the session).
func NewDisplaySystemMessage(text string) Action {
	return Action{Kind: DisplaySystemMessage, Text: text}
}

// NewShowInfo builds a ShowInfo action.
func NewShowInfo(info string) Action {
	return Action{Kind: ShowInfo, Info: info}
}

// NewShowTyping builds a ShowTyping action.
func NewShowTyping() Action { return Action{Kind: ShowTyping} }

// NewHideTyping builds a HideTyping action.
func NewHideTyping() Action { return Action{Kind: HideTyping} }

// NewSessionActive builds a SessionActive action, emitted the instant both
// SAS confirmations land.
func NewSessionActive() Action { return Action{Kind: SessionActive} }

// NewReset builds a Reset action carrying the human-readable reason and
// whether the presentation layer should notify the user.
func NewReset(reason string, notify bool) Action {
	return Action{Kind: Reset, Reason: reason, Notify: notify}
}

// Then attaches next as this action's Followup and returns the receiver,
// for chaining a second effect onto a single inbound frame's result.
func (a Action) Then(next Action) Action {
	a.Followup = &next
	return a
}
