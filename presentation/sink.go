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

// Package presentation defines the Sink interface the session Manager
// drives as it applies actions. A front end (terminal UI, future GUI)
// implements Sink; the Manager never assumes anything about how a peer's
// conversation is rendered.
package presentation

// Sink receives per-peer presentation events as the Manager applies the
// Action returned by each session state transition.
type Sink interface {
	// DisplayMessage renders an incoming plaintext chat line from peerID.
	DisplayMessage(peerID, text string)

	// DisplayMeAction renders an incoming /me-style action line.
	DisplayMeAction(peerID, text string)

	// DisplaySystemMessage renders a local, non-fatal notice (tamper
	// detection, transfer errors) attributed to no one.
	DisplaySystemMessage(peerID, text string)

	// ShowInfo surfaces an informational string to the user: the SAS
	// phrase to compare, or a file-transfer status update.
	ShowInfo(peerID, info string)

	// ShowTyping and HideTyping toggle the peer's typing indicator.
	ShowTyping(peerID string)
	HideTyping(peerID string)

	// SessionActive fires once SAS verification completes both ways.
	SessionActive(peerID string)

	// Reset fires when a session is torn down. notify distinguishes a
	// user-visible event (peer declined, timeout, tamper) from a quiet
	// local teardown (the local user ended the session themselves).
	Reset(peerID, reason string, notify bool)
}
