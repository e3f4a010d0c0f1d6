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

package session

import (
	"crypto/ecdh"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/helix-chat/helix-core/action"
	"github.com/helix-chat/helix-core/crypto"
	"github.com/helix-chat/helix-core/sas"
	"github.com/helix-chat/helix-core/transfer"
	"github.com/helix-chat/helix-core/wire"
)

// messageBody is the canonical JSON shape of a Type 8 plaintext (§4.3).
type messageBody struct {
	IsAction bool   `json:"isAction"`
	Text     string `json:"text"`
}

// Session is the per-peer handshake, SAS, messaging, and file-transfer
// state machine. It is a plain struct guarded by its own mutex; the
// Manager serializes outbound frames and owns the transport, but never
// reaches into a Session's fields directly.
type Session struct {
	mu sync.Mutex

	PeerID string
	Role   Role
	state  State

	ownPriv *ecdh.PrivateKey
	ownPub  *ecdh.PublicKey
	peerPub *ecdh.PublicKey
	aesKey  []byte

	challengeSent []byte
	challengeRecv challengeReceived

	sas SASState

	Messages []Message

	transfers    map[string]*transfer.Transfer
	store        transfer.Store
	maxFileBytes int64
	chunkBytes   int

	CreatedAt time.Time
	timeouts  Timeouts
}

// NewInitiator creates a session that will send the initial Type 1
// request. Its ephemeral keypair is generated up front so Type 4 can be
// emitted without waiting on derivation (§4.3, key derivation ordering).
func NewInitiator(peerID string, timeouts Timeouts, store transfer.Store, maxFileBytes int64, chunkBytes int) (*Session, error) {
	priv, pub, err := crypto.GenerateECDH()
	if err != nil {
		return nil, fmt.Errorf("session: generate keypair: %w", err)
	}
	return &Session{
		PeerID:       peerID,
		Role:         RoleInitiator,
		state:        StateInitiating,
		ownPriv:      priv,
		ownPub:       pub,
		transfers:    make(map[string]*transfer.Transfer),
		store:        store,
		maxFileBytes: maxFileBytes,
		chunkBytes:   chunkBytes,
		CreatedAt:    time.Now(),
		timeouts:     timeouts,
	}, nil
}

// NewResponder creates a session in REQUEST_RECEIVED, for an inbound Type
// 1 with no prior session for that peer. Its own keypair is generated
// lazily, in Accept.
func NewResponder(peerID string, timeouts Timeouts, store transfer.Store, maxFileBytes int64, chunkBytes int) *Session {
	return &Session{
		PeerID:       peerID,
		Role:         RoleResponder,
		state:        StateRequestReceived,
		transfers:    make(map[string]*transfer.Transfer),
		store:        store,
		maxFileBytes: maxFileBytes,
		chunkBytes:   chunkBytes,
		CreatedAt:    time.Now(),
		timeouts:     timeouts,
	}
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SASValue returns the computed SAS string, or "" before it exists.
func (s *Session) SASValue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sas.Value
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func unb64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }

// resetLocked wipes all secrets and transfer state (I6) and transitions to
// ENDED. Caller must hold s.mu.
func (s *Session) resetLocked(reason string, notify bool) (action.Action, error) {
	s.ownPriv = nil
	s.ownPub = nil
	s.peerPub = nil
	for i := range s.aesKey {
		s.aesKey[i] = 0
	}
	s.aesKey = nil
	s.challengeSent = nil
	s.challengeRecv = challengeReceived{}
	s.sas = SASState{}
	s.Messages = nil
	for id := range s.transfers {
		if s.store != nil {
			s.store.Delete(id)
		}
		delete(s.transfers, id)
	}
	s.state = StateEnded
	return action.NewReset(reason, notify), nil
}

func (s *Session) protocolErrorLocked(reason string) (action.Action, error) {
	return s.resetLocked(reason, true)
}

// ProtocolError resets the session with a protocol-violation reason. Used
// by the Manager when a frame fails envelope/payload validation before it
// can be decoded into a typed handler call.
func (s *Session) ProtocolError(reason string) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.protocolErrorLocked(reason)
}

func (s *Session) deriveKeyLocked() error {
	shared, err := crypto.DeriveShared(s.ownPriv, s.peerPub)
	if err != nil {
		return err
	}
	key, err := crypto.DeriveSessionKey(shared)
	if err != nil {
		return err
	}
	s.aesKey = key
	return nil
}

func (s *Session) enterSASPhaseLocked() (action.Action, error) {
	ownSPKI, err := crypto.ExportSPKI(s.ownPub)
	if err != nil {
		return action.NewNone(), err
	}
	peerSPKI, err := crypto.ExportSPKI(s.peerPub)
	if err != nil {
		return action.NewNone(), err
	}
	s.sas.Value = sas.Derive(ownSPKI, peerSPKI)
	s.state = StateSASPendingLocal
	return action.NewShowInfo(s.sas.Value), nil
}

// --- Handshake: initiator side ---

// Initiate emits the Type 1 session request.
func (s *Session) Initiate() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitiating {
		return action.NewNone(), fmt.Errorf("session: Initiate called in state %s", s.state)
	}
	s.state = StateInitiatingSession
	return action.NewSend(wire.TypeSessionRequest, wire.SessionRequestPayload{Recipient: s.PeerID}), nil
}

// HandleSessionAccept processes Type 2: imports R's public key and emits
// Type 4 immediately (no ciphertext, so no need to await derivation).
func (s *Session) HandleSessionAccept(p wire.SessionAcceptPayload) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitiatingSession {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected SESSION_ACCEPT in state %s", s.state))
	}
	der, err := unb64(p.PublicKey)
	if err != nil {
		return s.protocolErrorLocked("malformed public key")
	}
	peerPub, err := crypto.ImportSPKI(der)
	if err != nil {
		return s.protocolErrorLocked("invalid public key")
	}
	s.peerPub = peerPub
	s.state = StateDerivingKeyInitiator

	ownSPKI, err := crypto.ExportSPKI(s.ownPub)
	if err != nil {
		return action.NewNone(), err
	}
	return action.NewSend(wire.TypePublicKeyResponse, wire.PublicKeyResponsePayload{PublicKey: b64(ownSPKI)}), nil
}

// HandleSessionDeny processes Type 3.
func (s *Session) HandleSessionDeny() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitiatingSession {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected SESSION_DENY in state %s", s.state))
	}
	return s.resetLocked("Peer declined session request", true)
}

// CompleteDerivationInitiator finishes the HKDF derivation started by
// HandleSessionAccept. It is a distinct call from HandleSessionAccept so
// tests (and a genuinely asynchronous transport) can exercise the
// out-of-order challenge buffering window between the two.
func (s *Session) CompleteDerivationInitiator() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDerivingKeyInitiator {
		return action.NewNone(), fmt.Errorf("session: CompleteDerivationInitiator called in state %s", s.state)
	}
	if err := s.deriveKeyLocked(); err != nil {
		return s.resetLocked("Key derivation failed", true)
	}
	s.state = StateKeyDerivedInitiator
	if s.challengeRecv.kind == challengeBuffered {
		iv, ct := s.challengeRecv.iv, s.challengeRecv.ciphertext
		s.challengeRecv = challengeReceived{}
		return s.respondToChallengeLocked(iv, ct)
	}
	return action.NewNone(), nil
}

func (s *Session) respondToChallengeLocked(iv, ct []byte) (action.Action, error) {
	pt, err := crypto.Open(s.aesKey, iv, ct)
	if err != nil {
		return s.resetLocked("security check failed", true)
	}
	respIV, err := crypto.RandomBytes(crypto.NonceSize)
	if err != nil {
		return action.NewNone(), err
	}
	respCT, err := crypto.Seal(s.aesKey, respIV, pt)
	if err != nil {
		return action.NewNone(), err
	}
	s.state = StateReceivedChallenge
	return action.NewSend(wire.TypeKeyConfirmResponse, wire.KeyConfirmResponsePayload{
		IV:                b64(respIV),
		EncryptedResponse: b64(respCT),
	}), nil
}

// HandleKeyConfirmChallenge processes Type 5 (initiator side). If
// derivation is still in progress the challenge is buffered; it is
// consumed by CompleteDerivationInitiator once the key is ready.
func (s *Session) HandleKeyConfirmChallenge(p wire.KeyConfirmChallengePayload) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	iv, err := unb64(p.IV)
	if err != nil {
		return s.protocolErrorLocked("malformed iv")
	}
	ct, err := unb64(p.EncryptedChallenge)
	if err != nil {
		return s.protocolErrorLocked("malformed challenge")
	}

	switch s.state {
	case StateKeyDerivedInitiator:
		return s.respondToChallengeLocked(iv, ct)
	case StateDerivingKeyInitiator:
		s.challengeRecv = challengeReceived{kind: challengeBuffered, iv: iv, ciphertext: ct}
		return action.NewNone(), nil
	default:
		return s.protocolErrorLocked(fmt.Sprintf("unexpected KEY_CONFIRM_CHALLENGE in state %s", s.state))
	}
}

// HandleSessionEstablished processes Type 7 (initiator side) and enters
// the SAS verification phase.
func (s *Session) HandleSessionEstablished() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateReceivedChallenge {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected SESSION_ESTABLISHED in state %s", s.state))
	}
	return s.enterSASPhaseLocked()
}

// --- Handshake: responder side ---

// Accept processes the local user's decision to accept a pending request,
// generating the responder's ephemeral keypair and emitting Type 2.
func (s *Session) Accept() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRequestReceived {
		return action.NewNone(), fmt.Errorf("session: Accept called in state %s", s.state)
	}
	priv, pub, err := crypto.GenerateECDH()
	if err != nil {
		return action.NewNone(), err
	}
	s.ownPriv = priv
	s.ownPub = pub
	spki, err := crypto.ExportSPKI(pub)
	if err != nil {
		return action.NewNone(), err
	}
	s.state = StateAwaitingChallenge
	return action.NewSend(wire.TypeSessionAccept, wire.SessionAcceptPayload{PublicKey: b64(spki)}), nil
}

// Deny processes the local user's decision to decline a pending request.
func (s *Session) Deny() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRequestReceived {
		return action.NewNone(), fmt.Errorf("session: Deny called in state %s", s.state)
	}
	s.state = StateDenied
	return action.NewSend(wire.TypeSessionDeny, wire.SessionDenyPayload{}), nil
}

// HandlePublicKeyResponse processes Type 4 (responder side): imports I's
// public key. The responder's next frame (Type 5) carries ciphertext, so
// derivation must complete — via CompleteDerivationResponder — before it
// can be sent.
func (s *Session) HandlePublicKeyResponse(p wire.PublicKeyResponsePayload) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingChallenge {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected PUBLIC_KEY_RESPONSE in state %s", s.state))
	}
	der, err := unb64(p.PublicKey)
	if err != nil {
		return s.protocolErrorLocked("malformed public key")
	}
	peerPub, err := crypto.ImportSPKI(der)
	if err != nil {
		return s.protocolErrorLocked("invalid public key")
	}
	s.peerPub = peerPub
	// StateReceivedInitiatorKey is not a resting state here: the responder's
	// next frame carries ciphertext, so derivation starts immediately.
	s.state = StateDerivingKeyResponder
	return action.NewNone(), nil
}

// CompleteDerivationResponder finishes the HKDF derivation started by
// HandlePublicKeyResponse, generates the 32-byte challenge, and emits
// Type 5.
func (s *Session) CompleteDerivationResponder() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDerivingKeyResponder {
		return action.NewNone(), fmt.Errorf("session: CompleteDerivationResponder called in state %s", s.state)
	}
	if err := s.deriveKeyLocked(); err != nil {
		return s.resetLocked("Key derivation failed", true)
	}
	challenge, err := crypto.RandomBytes(ChallengeByteLength)
	if err != nil {
		return action.NewNone(), err
	}
	iv, err := crypto.RandomBytes(crypto.NonceSize)
	if err != nil {
		return action.NewNone(), err
	}
	ct, err := crypto.Seal(s.aesKey, iv, challenge)
	if err != nil {
		return action.NewNone(), err
	}
	s.challengeSent = challenge
	s.state = StateAwaitingFinalConfirmation
	return action.NewSend(wire.TypeKeyConfirmChallenge, wire.KeyConfirmChallengePayload{
		IV:                 b64(iv),
		EncryptedChallenge: b64(ct),
	}), nil
}

// HandleKeyConfirmResponse processes Type 6 (responder side): verifies
// the echoed challenge in constant time (I3), then emits Type 7 and
// enters the SAS phase as a single chained action.
func (s *Session) HandleKeyConfirmResponse(p wire.KeyConfirmResponsePayload) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingFinalConfirmation {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected KEY_CONFIRM_RESPONSE in state %s", s.state))
	}
	iv, err := unb64(p.IV)
	if err != nil {
		return s.protocolErrorLocked("malformed iv")
	}
	ct, err := unb64(p.EncryptedResponse)
	if err != nil {
		return s.protocolErrorLocked("malformed response")
	}

	sentChallenge := s.challengeSent
	s.challengeSent = nil // single-use: cleared immediately regardless of outcome (I3)

	pt, openErr := crypto.Open(s.aesKey, iv, ct)
	if openErr != nil || subtle.ConstantTimeCompare(pt, sentChallenge) != 1 {
		return s.resetLocked("Challenge response verification failed", true)
	}

	s.state = StateHandshakeComplete
	sasAction, err := s.enterSASPhaseLocked()
	if err != nil {
		return action.NewNone(), err
	}
	return action.NewSend(wire.TypeSessionEstablished, wire.SessionEstablishedPayload{}).Then(sasAction), nil
}

// --- SAS verification ---

// ConfirmSAS processes the local user confirming the displayed SAS value.
func (s *Session) ConfirmSAS() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSASPendingLocal && s.state != StateSASPendingRemote {
		return action.NewNone(), fmt.Errorf("session: ConfirmSAS called in state %s", s.state)
	}
	s.sas.LocalConfirmed = true
	confirm := action.NewSend(wire.TypeSASConfirm, wire.SASConfirmPayload{PeerID: s.PeerID})
	if s.sas.RemoteConfirmed {
		s.state = StateActive
		return confirm.Then(action.NewSessionActive()), nil
	}
	s.state = StateSASPendingRemote
	return confirm, nil
}

// DenySAS processes the local user rejecting the SAS comparison.
func (s *Session) DenySAS() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSASPendingLocal && s.state != StateSASPendingRemote {
		return action.NewNone(), fmt.Errorf("session: DenySAS called in state %s", s.state)
	}
	deny := action.NewSend(wire.TypeSASDeny, wire.SASDenyPayload{PeerID: s.PeerID})
	reset, _ := s.resetLocked("Peer aborted verification", true)
	return deny.Then(reset), nil
}

// CancelSAS processes the local user cancelling while awaiting the peer's
// confirmation (local already confirmed, remote has not).
func (s *Session) CancelSAS() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSASPendingRemote {
		return action.NewNone(), fmt.Errorf("session: CancelSAS called in state %s", s.state)
	}
	deny := action.NewSend(wire.TypeSASDeny, wire.SASDenyPayload{PeerID: s.PeerID})
	reset, _ := s.resetLocked("Verification cancelled", true)
	return deny.Then(reset), nil
}

// HandleSASConfirm processes a peer's SAS_CONFIRM frame.
func (s *Session) HandleSASConfirm() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSASPendingLocal && s.state != StateSASPendingRemote {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected SAS_CONFIRM in state %s", s.state))
	}
	s.sas.RemoteConfirmed = true
	if s.sas.LocalConfirmed {
		s.state = StateActive
		return action.NewSessionActive(), nil
	}
	return action.NewNone(), nil
}

// HandleSASDeny processes a peer's SAS_DENY frame.
func (s *Session) HandleSASDeny() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSASPendingLocal && s.state != StateSASPendingRemote {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected SAS_DENY in state %s", s.state))
	}
	return s.resetLocked("Peer aborted verification", true)
}

// --- Messaging ---

// SendMessage encrypts and emits a Type 8 chat message. Fails closed if
// the session is not ACTIVE (I2).
func (s *Session) SendMessage(text string, isAction bool) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return action.NewNone(), fmt.Errorf("session: cannot send message in state %s", s.state)
	}
	body, err := json.Marshal(messageBody{IsAction: isAction, Text: text})
	if err != nil {
		return action.NewNone(), err
	}
	iv, err := crypto.RandomBytes(crypto.NonceSize)
	if err != nil {
		return action.NewNone(), err
	}
	ct, err := crypto.Seal(s.aesKey, iv, body)
	if err != nil {
		return action.NewNone(), err
	}
	kind := MessageOwn
	if isAction {
		kind = MessageMeAction
	}
	s.Messages = append(s.Messages, Message{Sender: "self", Text: text, Kind: kind})
	return action.NewSend(wire.TypeEncryptedMessage, wire.EncryptedMessagePayload{IV: b64(iv), Data: b64(ct)}), nil
}

// HandleEncryptedMessage processes Type 8. A decrypt failure is a tamper
// signal, not a protocol error: the session stays ACTIVE and the
// presentation layer is told locally (scenario 5).
func (s *Session) HandleEncryptedMessage(p wire.EncryptedMessagePayload) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected ENCRYPTED_MESSAGE in state %s", s.state))
	}
	iv, err := unb64(p.IV)
	if err != nil {
		return s.protocolErrorLocked("malformed iv")
	}
	ct, err := unb64(p.Data)
	if err != nil {
		return s.protocolErrorLocked("malformed data")
	}
	pt, err := crypto.Open(s.aesKey, iv, ct)
	if err != nil {
		return action.NewDisplaySystemMessage("Failed to decrypt message from peer"), nil
	}

	var body messageBody
	text, isAction := string(pt), false
	if err := json.Unmarshal(pt, &body); err == nil {
		text, isAction = body.Text, body.IsAction
	}
	kind := MessagePeer
	if isAction {
		kind = MessageMeAction
	}
	s.Messages = append(s.Messages, Message{Sender: s.PeerID, Text: text, Kind: kind})
	if isAction {
		return action.NewDisplayMeAction(text), nil
	}
	return action.NewDisplayMessage(text), nil
}

// End processes the local user ending an ACTIVE session, sending Type 9.
func (s *Session) End() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return action.NewNone(), fmt.Errorf("session: cannot end session in state %s", s.state)
	}
	reset, _ := s.resetLocked("Session ended", false)
	return action.NewSend(wire.TypeSessionEnd, wire.SessionEndPayload{}).Then(reset), nil
}

// HandleSessionEnd processes Type 9.
func (s *Session) HandleSessionEnd() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resetLocked("Peer ended the session", true)
}

// --- Typing indicator ---

func (s *Session) SendTypingStart() (action.Action, error) { return s.sendTyping(wire.TypeTypingStart) }
func (s *Session) SendTypingStop() (action.Action, error)  { return s.sendTyping(wire.TypeTypingStop) }

func (s *Session) sendTyping(t wire.Type) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return action.NewNone(), nil
	}
	var payload any
	if t == wire.TypeTypingStart {
		payload = wire.TypingStartPayload{}
	} else {
		payload = wire.TypingStopPayload{}
	}
	return action.NewSend(t, payload), nil
}

// HandleTypingStart processes Type 10. Pre-ACTIVE, it is silently dropped
// rather than treated as a protocol error (§4.3).
func (s *Session) HandleTypingStart() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return action.NewNone(), nil
	}
	return action.NewShowTyping(), nil
}

// HandleTypingStop processes Type 11.
func (s *Session) HandleTypingStop() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return action.NewNone(), nil
	}
	return action.NewHideTyping(), nil
}

// PeerTypingTimedOut fires when T_typ elapses without a refreshing Type
// 10; the Manager owns the actual timer.
func (s *Session) PeerTypingTimedOut() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return action.NewNone(), nil
	}
	return action.NewHideTyping(), nil
}

// --- Timers ---

// RequestTimedOut fires when T_req elapses with no Type 2/3 reply.
func (s *Session) RequestTimedOut() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInitiatingSession {
		return action.NewNone(), nil
	}
	return s.resetLocked("Request timed out", true)
}

// HandshakeTimedOut fires when T_hs elapses before HANDSHAKE_COMPLETE.
func (s *Session) HandshakeTimedOut() (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateHandshakeComplete, StateSASPendingLocal, StateSASPendingRemote, StateActive, StateDenied, StateEnded:
		return action.NewNone(), nil
	default:
		return s.resetLocked("Handshake timed out", true)
	}
}

// --- File transfer (§4.5), gated on ACTIVE ---

// OfferTransfer starts a sender-side transfer, emitting Type 12.
func (s *Session) OfferTransfer(fileName, mimeType string, data []byte) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return action.NewNone(), fmt.Errorf("session: cannot offer transfer in state %s", s.state)
	}
	id := uuid.NewString()
	tr, err := transfer.NewOutbound(id, fileName, mimeType, data, s.chunkBytes, s.maxFileBytes)
	if err != nil {
		return action.NewDisplaySystemMessage(fmt.Sprintf("cannot send %s: %s", fileName, err)), nil
	}
	s.transfers[id] = tr
	return action.NewSend(wire.TypeTransferRequest, wire.TransferRequestPayload{
		TransferID: id, FileName: fileName, FileSize: tr.FileSize, MimeType: mimeType,
	}), nil
}

// HandleTransferRequest processes Type 12 (receiver side).
func (s *Session) HandleTransferRequest(p wire.TransferRequestPayload) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected TRANSFER_REQUEST in state %s", s.state))
	}
	tr, err := transfer.NewInbound(p.TransferID, p.FileName, p.MimeType, p.FileSize, s.maxFileBytes)
	if err != nil {
		return action.NewSend(wire.TypeTransferError, wire.TransferErrorPayload{TransferID: p.TransferID, Reason: "file exceeds maximum size"}), nil
	}
	s.transfers[p.TransferID] = tr
	return action.NewShowInfo(fmt.Sprintf("incoming file %s (%s)", p.FileName, humanize.Bytes(uint64(p.FileSize)))), nil
}

// AcceptTransfer processes the local user accepting an inbound offer.
func (s *Session) AcceptTransfer(transferID string) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.transfers[transferID]
	if !ok || tr.Role != transfer.RoleReceiver || tr.Status != transfer.StatusOffered {
		return action.NewNone(), fmt.Errorf("session: no pending inbound transfer %s", transferID)
	}
	tr.Status = transfer.StatusAccepted
	return action.NewSend(wire.TypeTransferAccept, wire.TransferAcceptPayload{TransferID: transferID}), nil
}

// RejectTransfer processes the local user declining an inbound offer.
func (s *Session) RejectTransfer(transferID, reason string) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.transfers[transferID]
	if !ok || tr.Role != transfer.RoleReceiver {
		return action.NewNone(), fmt.Errorf("session: no pending inbound transfer %s", transferID)
	}
	tr.Status = transfer.StatusRejected
	delete(s.transfers, transferID)
	if s.store != nil {
		s.store.Delete(transferID)
	}
	return action.NewSend(wire.TypeTransferReject, wire.TransferRejectPayload{TransferID: transferID, Reason: reason}), nil
}

// HandleTransferAccept processes Type 13 (sender side) and sends the
// first chunk.
func (s *Session) HandleTransferAccept(p wire.TransferAcceptPayload) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected TRANSFER_ACCEPT in state %s", s.state))
	}
	tr, ok := s.transfers[p.TransferID]
	if !ok || tr.Role != transfer.RoleSender {
		return action.NewSend(wire.TypeTransferError, wire.TransferErrorPayload{TransferID: p.TransferID, Reason: "unknown transfer"}), nil
	}
	tr.Status = transfer.StatusTransferring
	return s.sendNextChunkLocked(tr)
}

func (s *Session) sendNextChunkLocked(tr *transfer.Transfer) (action.Action, error) {
	chunk, idx, ok := tr.NextChunk()
	if !ok {
		total := transfer.TotalChunks(tr.FileSize, s.chunkBytes)
		tr.Status = transfer.StatusComplete
		delete(s.transfers, tr.ID)
		return action.NewSend(wire.TypeTransferComplete, wire.TransferCompletePayload{TransferID: tr.ID, TotalChunks: total}), nil
	}
	iv, err := crypto.RandomBytes(crypto.NonceSize)
	if err != nil {
		return action.NewNone(), err
	}
	ct, err := crypto.Seal(s.aesKey, iv, chunk)
	if err != nil {
		return action.NewNone(), err
	}
	return action.NewSend(wire.TypeTransferChunk, wire.TransferChunkPayload{
		TransferID: tr.ID, ChunkIndex: idx, IV: b64(iv), Data: b64(ct),
	}), nil
}

// ContinueTransfer sends the next chunk of an in-progress outbound
// transfer. The Manager's pumpTransfer calls this each time the transport
// reports it is writable again, pacing by transport readiness rather than an
// ACK protocol (§9).
func (s *Session) ContinueTransfer(transferID string) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.transfers[transferID]
	if !ok || tr.Role != transfer.RoleSender {
		return action.NewNone(), fmt.Errorf("session: no active outbound transfer %s", transferID)
	}
	return s.sendNextChunkLocked(tr)
}

// HandleTransferReject processes Type 14 (sender side).
func (s *Session) HandleTransferReject(p wire.TransferRejectPayload) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected TRANSFER_REJECT in state %s", s.state))
	}
	tr, ok := s.transfers[p.TransferID]
	if !ok {
		return action.NewNone(), nil
	}
	tr.Status = transfer.StatusRejected
	delete(s.transfers, p.TransferID)
	return action.NewDisplaySystemMessage(fmt.Sprintf("peer declined file transfer: %s", p.Reason)), nil
}

// HandleTransferChunk processes Type 15 (receiver side): decrypts,
// checks ordering (B3), and streams the plaintext to the chunk store.
func (s *Session) HandleTransferChunk(p wire.TransferChunkPayload) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected TRANSFER_CHUNK in state %s", s.state))
	}
	tr, ok := s.transfers[p.TransferID]
	if !ok || tr.Role != transfer.RoleReceiver {
		return action.NewSend(wire.TypeTransferError, wire.TransferErrorPayload{TransferID: p.TransferID, Reason: "unknown transfer"}), nil
	}
	iv, err := unb64(p.IV)
	if err != nil {
		return s.abortTransferLocked(tr, "malformed iv"), nil
	}
	ct, err := unb64(p.Data)
	if err != nil {
		return s.abortTransferLocked(tr, "malformed data"), nil
	}
	pt, err := crypto.Open(s.aesKey, iv, ct)
	if err != nil {
		return s.abortTransferLocked(tr, "decryption failed"), nil
	}
	if err := tr.AcceptChunk(p.ChunkIndex, len(pt)); err != nil {
		return s.abortTransferLocked(tr, err.Error()), nil
	}
	if s.store != nil {
		if err := s.store.Put(tr.ID, p.ChunkIndex, pt); err != nil {
			return s.abortTransferLocked(tr, "store error"), nil
		}
	}
	return action.NewNone(), nil
}

func (s *Session) abortTransferLocked(tr *transfer.Transfer, reason string) action.Action {
	tr.Status = transfer.StatusErrored
	delete(s.transfers, tr.ID)
	if s.store != nil {
		s.store.Delete(tr.ID)
	}
	errFrame := action.NewSend(wire.TypeTransferError, wire.TransferErrorPayload{TransferID: tr.ID, Reason: reason})
	return errFrame.Then(action.NewDisplaySystemMessage("file transfer failed: " + reason))
}

// HandleTransferComplete processes Type 16 (receiver side): checks the
// declared chunk count and requests reassembly from the store.
func (s *Session) HandleTransferComplete(p wire.TransferCompletePayload) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected TRANSFER_COMPLETE in state %s", s.state))
	}
	tr, ok := s.transfers[p.TransferID]
	if !ok || tr.Role != transfer.RoleReceiver {
		return action.NewSend(wire.TypeTransferError, wire.TransferErrorPayload{TransferID: p.TransferID, Reason: "unknown transfer"}), nil
	}
	if err := tr.CheckComplete(p.TotalChunks); err != nil {
		return s.abortTransferLocked(tr, err.Error()), nil
	}
	tr.Status = transfer.StatusComplete
	var assembled []byte
	if s.store != nil {
		var err error
		assembled, err = s.store.Assemble(tr.ID)
		if err != nil {
			return s.abortTransferLocked(tr, "reassembly failed"), nil
		}
		s.store.Delete(tr.ID)
	}
	delete(s.transfers, tr.ID)
	return action.NewShowInfo(fmt.Sprintf("file transfer complete: %s (%s)", tr.FileName, humanize.Bytes(uint64(len(assembled))))), nil
}

// HandleTransferError processes Type 17 (either direction).
func (s *Session) HandleTransferError(p wire.TransferErrorPayload) (action.Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return s.protocolErrorLocked(fmt.Sprintf("unexpected TRANSFER_ERROR in state %s", s.state))
	}
	if tr, ok := s.transfers[p.TransferID]; ok {
		tr.Status = transfer.StatusErrored
		delete(s.transfers, p.TransferID)
		if s.store != nil {
			s.store.Delete(p.TransferID)
		}
	}
	return action.NewDisplaySystemMessage(fmt.Sprintf("file transfer error: %s", p.Reason)), nil
}
