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

// Package session implements the per-peer HeliX state machine: ephemeral
// ECDH handshake, challenge/response key confirmation, SAS verification
// gating, encrypted messaging, typing indicators, and the file-transfer
// sub-state-machine — plus the Manager that registers an identifier with
// the relay and routes inbound frames to the right peer session.
package session

import "time"

// State is a session's position in the handshake/SAS/active lifecycle.
type State int

const (
	StateInitiating State = iota
	StateRequestReceived
	// StateAwaitingAccept exists for parity with the full state
	// enumeration but is never a resting state of this implementation:
	// Initiate transitions straight from StateInitiating to
	// StateInitiatingSession because the outbound Type 1 send has no
	// suspension point of its own.
	StateAwaitingAccept
	StateAwaitingChallenge
	StateInitiatingSession
	StateDerivingKeyInitiator
	StateDerivingKeyResponder
	StateKeyDerivedInitiator
	StateReceivedInitiatorKey
	StateReceivedChallenge
	StateAwaitingFinalConfirmation
	StateHandshakeComplete
	StateSASPendingLocal
	StateSASPendingRemote
	StateActive
	StateDenied
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateInitiating:
		return "INITIATING"
	case StateRequestReceived:
		return "REQUEST_RECEIVED"
	case StateAwaitingAccept:
		return "AWAITING_ACCEPT"
	case StateAwaitingChallenge:
		return "AWAITING_CHALLENGE"
	case StateInitiatingSession:
		return "INITIATING_SESSION"
	case StateDerivingKeyInitiator:
		return "DERIVING_KEY_INITIATOR"
	case StateDerivingKeyResponder:
		return "DERIVING_KEY_RESPONDER"
	case StateKeyDerivedInitiator:
		return "KEY_DERIVED_INITIATOR"
	case StateReceivedInitiatorKey:
		return "RECEIVED_INITIATOR_KEY"
	case StateReceivedChallenge:
		return "RECEIVED_CHALLENGE"
	case StateAwaitingFinalConfirmation:
		return "AWAITING_FINAL_CONFIRMATION"
	case StateHandshakeComplete:
		return "HANDSHAKE_COMPLETE"
	case StateSASPendingLocal:
		return "SAS_PENDING_LOCAL"
	case StateSASPendingRemote:
		return "SAS_PENDING_REMOTE"
	case StateActive:
		return "ACTIVE"
	case StateDenied:
		return "DENIED"
	case StateEnded:
		return "ENDED"
	default:
		return "UNKNOWN"
	}
}

// Role identifies which end of the handshake a Session plays.
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

// challengeKind tags the challengeReceived tagged union.
type challengeKind int

const (
	challengeNone challengeKind = iota
	challengeBuffered
)

// challengeReceived is the initiator-side buffering slot for a Type 5
// challenge that arrives before HKDF derivation has completed.
type challengeReceived struct {
	kind       challengeKind
	iv         []byte
	ciphertext []byte
}

// SASState is the two-sided confirmation tuple gating entry to ACTIVE.
type SASState struct {
	LocalConfirmed  bool
	RemoteConfirmed bool
	Value           string
}

// MessageKind classifies a Message record for presentation rendering.
type MessageKind int

const (
	MessageOwn MessageKind = iota
	MessagePeer
	MessageSystem
	MessageMeAction
)

// Message is a single chat line, kept in RAM only and cleared on reset.
type Message struct {
	Sender string
	Text   string
	Kind   MessageKind
}

// Timeouts holds the three session timer durations (§4.3).
type Timeouts struct {
	Request    time.Duration
	Handshake  time.Duration
	PeerTyping time.Duration
}

// DefaultTimeouts returns the spec's default timer values.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Request:    60 * time.Second,
		Handshake:  30 * time.Second,
		PeerTyping: 5 * time.Second,
	}
}

// ChallengeByteLength is the fixed length of the responder's random
// challenge (§9, Open Question resolved at 32 bytes).
const ChallengeByteLength = 32
