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
	"fmt"
	"sync"
	"time"

	"github.com/helix-chat/helix-core/action"
	"github.com/helix-chat/helix-core/internal/logger"
	"github.com/helix-chat/helix-core/internal/metrics"
	"github.com/helix-chat/helix-core/presentation"
	"github.com/helix-chat/helix-core/transfer"
	"github.com/helix-chat/helix-core/wire"
)

// Transport is the one thing the Manager asks of the network layer: hand
// it a marshalled frame. A single Transport instance is shared across all
// peer sessions; ordering/backpressure is its concern, not the Manager's.
type Transport interface {
	Send(data []byte) error
}

// peerTimers holds the Manager-owned timers for one peer. Session never
// holds a reference to the Manager or starts a timer itself (§9); the
// Manager arms/cancels these at the transition points that matter and
// routes their firing back through the normal dispatch/apply path.
type peerTimers struct {
	request   *time.Timer
	handshake *time.Timer
	typing    *time.Timer
}

func (t *peerTimers) stopAll() {
	if t.request != nil {
		t.request.Stop()
	}
	if t.handshake != nil {
		t.handshake.Stop()
	}
	if t.typing != nil {
		t.typing.Stop()
	}
}

// Manager registers a local identifier with the relay and owns the set of
// per-peer Sessions, dispatching inbound frames to the right one and
// applying each resulting Action (send a frame, tell the presentation
// layer something, or tear the session down).
type Manager struct {
	mu sync.Mutex

	identifier string
	transport  Transport
	sink       presentation.Sink

	sessions map[string]*Session
	timers   map[string]*peerTimers

	timeouts     Timeouts
	store        transfer.Store
	maxFileBytes int64
	chunkBytes   int

	registered bool
}

// NewManager builds a Manager for the given local identifier. store may
// be nil, in which case inbound transfer chunks are still validated for
// ordering but never persisted.
func NewManager(identifier string, transport Transport, sink presentation.Sink, timeouts Timeouts, store transfer.Store, maxFileBytes int64, chunkBytes int) *Manager {
	return &Manager{
		identifier:   identifier,
		transport:    transport,
		sink:         sink,
		sessions:     make(map[string]*Session),
		timers:       make(map[string]*peerTimers),
		timeouts:     timeouts,
		store:        store,
		maxFileBytes: maxFileBytes,
		chunkBytes:   chunkBytes,
	}
}

// SetTransport assigns the Transport used for all subsequent outbound
// frames. It exists so a Manager can be constructed before its transport
// has finished connecting.
func (m *Manager) SetTransport(t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transport = t
}

// Register sends the Type 0 registration frame for the local identifier.
func (m *Manager) Register() error {
	raw, err := wire.Marshal(wire.TypeRegister, wire.RegisterPayload{Identifier: m.identifier})
	if err != nil {
		return err
	}
	return m.transport.Send(raw)
}

// HandleRegisterResult processes the relay's reply to Type 0.
func (m *Manager) HandleRegisterResult(status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if status != "OK" {
		herr := logger.NewHelixError(logger.ErrCodeTransportFailure, "relay registration failed", nil).WithDetails("status", status)
		logger.ErrorMsg("registration failed", logger.String("identifier", m.identifier), logger.Error(herr))
		return herr
	}
	m.registered = true
	return nil
}

func (m *Manager) timersFor(peerID string) *peerTimers {
	t, ok := m.timers[peerID]
	if !ok {
		t = &peerTimers{}
		m.timers[peerID] = t
	}
	return t
}

// StartSession creates a new initiator Session for peerID and emits its
// Type 1 request. Caller must already hold no conflicting session for
// peerID.
func (m *Manager) StartSession(peerID string) error {
	m.mu.Lock()
	if _, exists := m.sessions[peerID]; exists {
		m.mu.Unlock()
		return fmt.Errorf("session: already have a session with %s", peerID)
	}
	sess, err := NewInitiator(peerID, m.timeouts, m.store, m.maxFileBytes, m.chunkBytes)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.sessions[peerID] = sess
	m.mu.Unlock()

	metrics.HandshakesStarted.WithLabelValues("initiator").Inc()
	act, err := sess.Initiate()
	if err != nil {
		return err
	}
	m.armRequestTimer(peerID)
	return m.apply(peerID, act)
}

// sessionFor returns the Session registered for peerID, or an error if
// none exists.
func (m *Manager) sessionFor(peerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[peerID]
	if !ok {
		return nil, fmt.Errorf("session: no session with %s", peerID)
	}
	return sess, nil
}

// dispatchLocal runs a local-user-driven Session method and applies its
// resulting action, the same way StartSession and stepSession do for
// outbound and inbound triggers respectively.
func (m *Manager) dispatchLocal(peerID string, step func(*Session) (action.Action, error)) error {
	sess, err := m.sessionFor(peerID)
	if err != nil {
		return err
	}
	act, err := step(sess)
	if err != nil {
		return err
	}
	return m.apply(peerID, act)
}

// AcceptSession processes the local user accepting a pending inbound
// request and arms the handshake timer for the responder side.
func (m *Manager) AcceptSession(peerID string) error {
	sess, err := m.sessionFor(peerID)
	if err != nil {
		return err
	}
	act, err := sess.Accept()
	if err != nil {
		return err
	}
	m.cancelRequestTimer(peerID)
	m.armHandshakeTimer(peerID)
	return m.apply(peerID, act)
}

// DenySession processes the local user declining a pending inbound request.
func (m *Manager) DenySession(peerID string) error {
	return m.dispatchLocal(peerID, func(s *Session) (action.Action, error) {
		m.cancelRequestTimer(peerID)
		return s.Deny()
	})
}

// ConfirmSAS processes the local user confirming the displayed SAS value.
func (m *Manager) ConfirmSAS(peerID string) error {
	return m.dispatchLocal(peerID, (*Session).ConfirmSAS)
}

// DenySAS processes the local user rejecting the SAS comparison.
func (m *Manager) DenySAS(peerID string) error {
	return m.dispatchLocal(peerID, (*Session).DenySAS)
}

// CancelSAS processes the local user cancelling while awaiting the peer's
// confirmation.
func (m *Manager) CancelSAS(peerID string) error {
	return m.dispatchLocal(peerID, (*Session).CancelSAS)
}

// SendMessage encrypts and sends a chat message to peerID.
func (m *Manager) SendMessage(peerID, text string, isAction bool) error {
	return m.dispatchLocal(peerID, func(s *Session) (action.Action, error) {
		return s.SendMessage(text, isAction)
	})
}

// SendTypingStart and SendTypingStop notify peerID of local typing state.
func (m *Manager) SendTypingStart(peerID string) error {
	return m.dispatchLocal(peerID, (*Session).SendTypingStart)
}

func (m *Manager) SendTypingStop(peerID string) error {
	return m.dispatchLocal(peerID, (*Session).SendTypingStop)
}

// EndSession processes the local user ending an ACTIVE session.
func (m *Manager) EndSession(peerID string) error {
	return m.dispatchLocal(peerID, (*Session).End)
}

// OfferTransfer starts a sender-side file transfer to peerID.
func (m *Manager) OfferTransfer(peerID, fileName, mimeType string, data []byte) error {
	return m.dispatchLocal(peerID, func(s *Session) (action.Action, error) {
		return s.OfferTransfer(fileName, mimeType, data)
	})
}

// AcceptTransfer accepts an inbound file offer from peerID.
func (m *Manager) AcceptTransfer(peerID, transferID string) error {
	return m.dispatchLocal(peerID, func(s *Session) (action.Action, error) {
		return s.AcceptTransfer(transferID)
	})
}

// RejectTransfer declines an inbound file offer from peerID.
func (m *Manager) RejectTransfer(peerID, transferID, reason string) error {
	return m.dispatchLocal(peerID, func(s *Session) (action.Action, error) {
		return s.RejectTransfer(transferID, reason)
	})
}

// HandleFrame parses an inbound relay frame and routes it to the right
// session, creating a new responder session on an unsolicited Type 1.
func (m *Manager) HandleFrame(raw []byte) error {
	env, err := wire.ParseEnvelope(raw)
	if err != nil {
		return err
	}

	if env.Type == wire.TypeRegister {
		var p wire.RegisterResultPayload
		if err := wire.Decode(env, &p); err != nil {
			return err
		}
		return m.HandleRegisterResult(p.Status)
	}

	peerID := env.SenderID
	m.mu.Lock()
	sess, ok := m.sessions[peerID]
	if !ok {
		if env.Type != wire.TypeSessionRequest {
			m.mu.Unlock()
			return fmt.Errorf("session: frame type %d for unknown peer %s", env.Type, peerID)
		}
		sess = NewResponder(peerID, m.timeouts, m.store, m.maxFileBytes, m.chunkBytes)
		m.sessions[peerID] = sess
		m.mu.Unlock()
		metrics.HandshakesStarted.WithLabelValues("responder").Inc()
		m.armRequestTimer(peerID)
		m.sink.ShowInfo(peerID, "incoming session request")
		return nil
	}
	m.mu.Unlock()

	act, err := m.stepSession(sess, env)
	if err != nil {
		return err
	}
	return m.apply(peerID, act)
}

// stepSession decodes env.Payload for its frame type and calls the
// matching Session handler, interleaving the timer transitions that are
// the Manager's responsibility.
func (m *Manager) stepSession(sess *Session, env wire.Envelope) (action.Action, error) {
	switch env.Type {
	case wire.TypeSessionAccept:
		var p wire.SessionAcceptPayload
		if err := wire.Decode(env, &p); err != nil {
			return sess.ProtocolError("malformed SESSION_ACCEPT")
		}
		m.cancelRequestTimer(sess.PeerID)
		act, err := sess.HandleSessionAccept(p)
		if err != nil {
			return act, err
		}
		m.armHandshakeTimer(sess.PeerID)
		derived, err := sess.CompleteDerivationInitiator()
		if err != nil {
			return act, err
		}
		return attachFollowup(act, derived), nil

	case wire.TypeSessionDeny:
		m.cancelRequestTimer(sess.PeerID)
		return sess.HandleSessionDeny()

	case wire.TypePublicKeyResponse:
		var p wire.PublicKeyResponsePayload
		if err := wire.Decode(env, &p); err != nil {
			return sess.ProtocolError("malformed PUBLIC_KEY_RESPONSE")
		}
		act, err := sess.HandlePublicKeyResponse(p)
		if err != nil {
			return act, err
		}
		m.armHandshakeTimer(sess.PeerID)
		derived, err := sess.CompleteDerivationResponder()
		if err != nil {
			return act, err
		}
		return attachFollowup(act, derived), nil

	case wire.TypeKeyConfirmChallenge:
		var p wire.KeyConfirmChallengePayload
		if err := wire.Decode(env, &p); err != nil {
			return sess.ProtocolError("malformed KEY_CONFIRM_CHALLENGE")
		}
		return sess.HandleKeyConfirmChallenge(p)

	case wire.TypeKeyConfirmResponse:
		var p wire.KeyConfirmResponsePayload
		if err := wire.Decode(env, &p); err != nil {
			return sess.ProtocolError("malformed KEY_CONFIRM_RESPONSE")
		}
		act, err := sess.HandleKeyConfirmResponse(p)
		if sess.State() == StateSASPendingLocal {
			m.cancelHandshakeTimer(sess.PeerID)
		}
		return act, err

	case wire.TypeSessionEstablished:
		act, err := sess.HandleSessionEstablished()
		m.cancelHandshakeTimer(sess.PeerID)
		return act, err

	case wire.TypeSASConfirm:
		return sess.HandleSASConfirm()

	case wire.TypeSASDeny:
		return sess.HandleSASDeny()

	case wire.TypeEncryptedMessage:
		var p wire.EncryptedMessagePayload
		if err := wire.Decode(env, &p); err != nil {
			return sess.ProtocolError("malformed ENCRYPTED_MESSAGE")
		}
		return sess.HandleEncryptedMessage(p)

	case wire.TypeSessionEnd:
		return sess.HandleSessionEnd()

	case wire.TypeTypingStart:
		return sess.HandleTypingStart()

	case wire.TypeTypingStop:
		return sess.HandleTypingStop()

	case wire.TypeTransferRequest:
		var p wire.TransferRequestPayload
		if err := wire.Decode(env, &p); err != nil {
			return sess.ProtocolError("malformed TRANSFER_REQUEST")
		}
		metrics.TransfersStarted.WithLabelValues("receiver").Inc()
		return sess.HandleTransferRequest(p)

	case wire.TypeTransferAccept:
		var p wire.TransferAcceptPayload
		if err := wire.Decode(env, &p); err != nil {
			return m.transferAbort(sess.PeerID, p.TransferID, "malformed TRANSFER_ACCEPT"), nil
		}
		return sess.HandleTransferAccept(p)

	case wire.TypeTransferReject:
		var p wire.TransferRejectPayload
		if err := wire.Decode(env, &p); err != nil {
			return m.transferAbort(sess.PeerID, p.TransferID, "malformed TRANSFER_REJECT"), nil
		}
		return sess.HandleTransferReject(p)

	case wire.TypeTransferChunk:
		var p wire.TransferChunkPayload
		if err := wire.Decode(env, &p); err != nil {
			return m.transferAbort(sess.PeerID, p.TransferID, "malformed TRANSFER_CHUNK"), nil
		}
		metrics.TransferChunks.WithLabelValues("received").Inc()
		return sess.HandleTransferChunk(p)

	case wire.TypeTransferComplete:
		var p wire.TransferCompletePayload
		if err := wire.Decode(env, &p); err != nil {
			return m.transferAbort(sess.PeerID, p.TransferID, "malformed TRANSFER_COMPLETE"), nil
		}
		return sess.HandleTransferComplete(p)

	case wire.TypeTransferError:
		var p wire.TransferErrorPayload
		if err := wire.Decode(env, &p); err != nil {
			return m.transferAbort(sess.PeerID, p.TransferID, "malformed TRANSFER_ERROR"), nil
		}
		return sess.HandleTransferError(p)

	default:
		return sess.ProtocolError(fmt.Sprintf("unknown frame type %d", env.Type))
	}
}

// transferAbort builds the Type 17 reply for a file-transfer frame that
// failed to decode or validate. Unlike a handshake/data-frame violation,
// a bad transfer frame only aborts that transfer (§4.6, §7.6) — the
// enclosing session stays ACTIVE, so this never calls sess.ProtocolError.
func (m *Manager) transferAbort(peerID, transferID, reason string) action.Action {
	logger.Warn("file transfer aborted",
		logger.String("peer_id", peerID),
		logger.String("transfer_id", transferID),
		logger.Error(logger.NewHelixError(logger.ErrCodeTransferAborted, reason, nil)),
	)
	return action.NewSend(wire.TypeTransferError, wire.TransferErrorPayload{TransferID: transferID, Reason: reason})
}

// writablePacer is implemented by transports (relayws.Conn) that can
// report write readiness. pumpTransfer paces outbound chunks against it
// instead of an application-level ACK/windowing protocol (§9).
type writablePacer interface {
	Writable() <-chan struct{}
}

// pumpTransfer waits for the transport to become writable again and sends
// the next chunk of an in-progress outbound transfer, if any remains. It
// re-arms itself via apply's Send case, so one call per chunk keeps the
// whole transfer moving; it falls silent once ContinueTransfer reports the
// transfer is no longer an active outbound one (completed or aborted).
func (m *Manager) pumpTransfer(peerID, transferID string) {
	pacer, ok := m.transport.(writablePacer)
	if !ok {
		return
	}
	<-pacer.Writable()

	m.mu.Lock()
	sess, ok := m.sessions[peerID]
	m.mu.Unlock()
	if !ok {
		return
	}

	act, err := sess.ContinueTransfer(transferID)
	if err != nil {
		return
	}
	if err := m.apply(peerID, act); err != nil {
		logger.Warn("transfer chunk send failed",
			logger.String("peer_id", peerID),
			logger.String("transfer_id", transferID),
			logger.Error(err),
		)
	}
}

// attachFollowup walks to the deepest existing Followup link of act and
// attaches next there, preserving whatever chain act already carries.
func attachFollowup(act action.Action, next action.Action) action.Action {
	cur := &act
	for cur.Followup != nil {
		cur = cur.Followup
	}
	cur.Followup = &next
	return act
}

// apply walks an Action's Followup chain and performs each one's side
// effect: marshalling and sending a frame, calling the presentation Sink,
// incrementing metrics, or tearing the session down.
func (m *Manager) apply(peerID string, act action.Action) error {
	for cur := &act; cur != nil; cur = cur.Followup {
		switch cur.Kind {
		case action.None:
			// no-op

		case action.Send:
			raw, err := wire.Marshal(cur.FrameType, cur.Payload)
			if err != nil {
				return err
			}
			if err := m.transport.Send(raw); err != nil {
				return err
			}
			if cur.FrameType == wire.TypeTransferChunk {
				metrics.TransferChunks.WithLabelValues("sent").Inc()
				if p, ok := cur.Payload.(wire.TransferChunkPayload); ok {
					go m.pumpTransfer(peerID, p.TransferID)
				}
			}

		case action.DisplayMessage:
			m.sink.DisplayMessage(peerID, cur.Text)

		case action.DisplayMeAction:
			m.sink.DisplayMeAction(peerID, cur.Text)

		case action.DisplaySystemMessage:
			m.sink.DisplaySystemMessage(peerID, cur.Text)

		case action.ShowInfo:
			m.sink.ShowInfo(peerID, cur.Info)

		case action.ShowTyping:
			m.sink.ShowTyping(peerID)
			m.armTypingTimer(peerID)

		case action.HideTyping:
			m.cancelTypingTimer(peerID)
			m.sink.HideTyping(peerID)

		case action.SessionActive:
			metrics.HandshakesCompleted.WithLabelValues(m.roleLabel(peerID)).Inc()
			metrics.SASOutcomes.WithLabelValues("confirmed").Inc()
			metrics.SessionsActive.Inc()
			m.sink.SessionActive(peerID)

		case action.Reset:
			m.teardown(peerID, cur.Reason, cur.Notify)
		}
	}
	return nil
}

func (m *Manager) roleLabel(peerID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sess, ok := m.sessions[peerID]; ok && sess.Role == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

func (m *Manager) teardown(peerID, reason string, notify bool) {
	m.mu.Lock()
	if t, ok := m.timers[peerID]; ok {
		t.stopAll()
		delete(m.timers, peerID)
	}
	delete(m.sessions, peerID)
	m.mu.Unlock()

	logger.Warn("session reset",
		logger.String("peer_id", peerID),
		logger.Error(logger.NewHelixError(logger.ErrCodeProtocolViolation, reason, nil)),
	)
	metrics.SessionsEnded.WithLabelValues(reason).Inc()
	metrics.HandshakesReset.WithLabelValues(reason).Inc()
	m.sink.Reset(peerID, reason, notify)
}

// --- Timer management ---

func (m *Manager) armRequestTimer(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.timersFor(peerID)
	if t.request != nil {
		t.request.Stop()
	}
	t.request = time.AfterFunc(m.timeouts.Request, func() { m.onRequestTimeout(peerID) })
}

func (m *Manager) cancelRequestTimer(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[peerID]; ok && t.request != nil {
		t.request.Stop()
		t.request = nil
	}
}

func (m *Manager) armHandshakeTimer(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.timersFor(peerID)
	if t.handshake != nil {
		t.handshake.Stop()
	}
	t.handshake = time.AfterFunc(m.timeouts.Handshake, func() { m.onHandshakeTimeout(peerID) })
}

func (m *Manager) cancelHandshakeTimer(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[peerID]; ok && t.handshake != nil {
		t.handshake.Stop()
		t.handshake = nil
	}
}

func (m *Manager) armTypingTimer(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.timersFor(peerID)
	if t.typing != nil {
		t.typing.Stop()
	}
	t.typing = time.AfterFunc(m.timeouts.PeerTyping, func() { m.onTypingTimeout(peerID) })
}

func (m *Manager) cancelTypingTimer(peerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.timers[peerID]; ok && t.typing != nil {
		t.typing.Stop()
		t.typing = nil
	}
}

func (m *Manager) onRequestTimeout(peerID string) {
	m.mu.Lock()
	sess, ok := m.sessions[peerID]
	m.mu.Unlock()
	if !ok {
		return
	}
	logger.Warn("session request timed out",
		logger.String("peer_id", peerID),
		logger.Error(logger.NewHelixError(logger.ErrCodeHandshakeTimeout, "no SESSION_ACCEPT/SESSION_DENY before request timeout", nil)),
	)
	act, err := sess.RequestTimedOut()
	if err != nil {
		return
	}
	m.apply(peerID, act)
}

func (m *Manager) onHandshakeTimeout(peerID string) {
	m.mu.Lock()
	sess, ok := m.sessions[peerID]
	m.mu.Unlock()
	if !ok {
		return
	}
	logger.Warn("handshake timed out",
		logger.String("peer_id", peerID),
		logger.Error(logger.NewHelixError(logger.ErrCodeHandshakeTimeout, "handshake did not reach SESSION_ESTABLISHED before timeout", nil)),
	)
	act, err := sess.HandshakeTimedOut()
	if err != nil {
		return
	}
	m.apply(peerID, act)
}

func (m *Manager) onTypingTimeout(peerID string) {
	m.mu.Lock()
	sess, ok := m.sessions[peerID]
	m.mu.Unlock()
	if !ok {
		return
	}
	act, err := sess.PeerTypingTimedOut()
	if err != nil {
		return
	}
	m.apply(peerID, act)
}
