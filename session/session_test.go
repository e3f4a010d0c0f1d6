package session

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/helix-chat/helix-core/action"
	"github.com/helix-chat/helix-core/crypto"
	"github.com/helix-chat/helix-core/transfer"
	"github.com/helix-chat/helix-core/wire"
)

func TestFullHandshakeHappyPath(t *testing.T) {
	store := transfer.NewMemoryStore()
	i, err := NewInitiator("bob", DefaultTimeouts(), store, 1<<20, 1<<16)
	require.NoError(t, err)
	r := NewResponder("alice", DefaultTimeouts(), store, 1<<20, 1<<16)

	reqAct, err := i.Initiate()
	require.NoError(t, err)
	require.Equal(t, wire.TypeSessionRequest, reqAct.FrameType)

	acceptAct, err := r.Accept()
	require.NoError(t, err)
	require.Equal(t, StateAwaitingChallenge, r.State())

	pubKeyRespAct, err := i.HandleSessionAccept(acceptAct.Payload.(wire.SessionAcceptPayload))
	require.NoError(t, err)
	require.Equal(t, StateDerivingKeyInitiator, i.State())
	require.Equal(t, wire.TypePublicKeyResponse, pubKeyRespAct.FrameType)

	noneAct, err := i.CompleteDerivationInitiator()
	require.NoError(t, err)
	require.Equal(t, action.None, noneAct.Kind)
	require.Equal(t, StateKeyDerivedInitiator, i.State())

	noneAct2, err := r.HandlePublicKeyResponse(pubKeyRespAct.Payload.(wire.PublicKeyResponsePayload))
	require.NoError(t, err)
	require.Equal(t, action.None, noneAct2.Kind)
	require.Equal(t, StateDerivingKeyResponder, r.State())

	challengeAct, err := r.CompleteDerivationResponder()
	require.NoError(t, err)
	require.Equal(t, wire.TypeKeyConfirmChallenge, challengeAct.FrameType)
	require.Equal(t, StateAwaitingFinalConfirmation, r.State())

	respAct, err := i.HandleKeyConfirmChallenge(challengeAct.Payload.(wire.KeyConfirmChallengePayload))
	require.NoError(t, err)
	require.Equal(t, wire.TypeKeyConfirmResponse, respAct.FrameType)
	require.Equal(t, StateReceivedChallenge, i.State())

	establishedAct, err := r.HandleKeyConfirmResponse(respAct.Payload.(wire.KeyConfirmResponsePayload))
	require.NoError(t, err)
	require.Equal(t, wire.TypeSessionEstablished, establishedAct.FrameType)
	require.NotNil(t, establishedAct.Followup)
	require.Equal(t, action.ShowInfo, establishedAct.Followup.Kind)
	require.Equal(t, StateSASPendingLocal, r.State())

	sasAct, err := i.HandleSessionEstablished()
	require.NoError(t, err)
	require.Equal(t, action.ShowInfo, sasAct.Kind)
	require.Equal(t, StateSASPendingLocal, i.State())

	require.Equal(t, r.SASValue(), i.SASValue())
	require.NotEmpty(t, i.SASValue())

	// both confirm
	iConfirm, err := i.ConfirmSAS()
	require.NoError(t, err)
	require.Equal(t, StateSASPendingRemote, i.State())

	rConfirm, err := r.ConfirmSAS()
	require.NoError(t, err)
	require.Equal(t, StateSASPendingRemote, r.State())

	_, err = r.HandleSASConfirm()
	require.NoError(t, err)
	require.Equal(t, StateActive, r.State())
	_ = iConfirm

	act, err := i.HandleSASConfirm()
	require.NoError(t, err)
	require.Equal(t, action.SessionActive, act.Kind)
	require.Equal(t, StateActive, i.State())
	_ = rConfirm

	// chat round trip
	sendAct, err := i.SendMessage("hi there", false)
	require.NoError(t, err)
	require.Equal(t, wire.TypeEncryptedMessage, sendAct.FrameType)

	displayAct, err := r.HandleEncryptedMessage(sendAct.Payload.(wire.EncryptedMessagePayload))
	require.NoError(t, err)
	require.Equal(t, action.DisplayMessage, displayAct.Kind)
	require.Equal(t, "hi there", displayAct.Text)
}

func TestSASDenyResetsBothSides(t *testing.T) {
	store := transfer.NewMemoryStore()
	i, _ := NewInitiator("bob", DefaultTimeouts(), store, 1<<20, 1<<16)
	i.state = StateSASPendingLocal
	i.sas.Value = "123 456"

	act, err := i.DenySAS()
	require.NoError(t, err)
	require.Equal(t, wire.TypeSASDeny, act.FrameType)
	require.NotNil(t, act.Followup)
	require.Equal(t, action.Reset, act.Followup.Kind)
	require.Equal(t, StateEnded, i.State())
	require.Empty(t, i.Messages)
}

func TestOutOfOrderChallengeIsBufferedThenAppliedOnDerivationComplete(t *testing.T) {
	store := transfer.NewMemoryStore()
	i, err := NewInitiator("bob", DefaultTimeouts(), store, 1<<20, 1<<16)
	require.NoError(t, err)
	r := NewResponder("alice", DefaultTimeouts(), store, 1<<20, 1<<16)

	_, err = i.Initiate()
	require.NoError(t, err)
	acceptAct, err := r.Accept()
	require.NoError(t, err)
	pubKeyRespAct, err := i.HandleSessionAccept(acceptAct.Payload.(wire.SessionAcceptPayload))
	require.NoError(t, err)
	require.Equal(t, StateDerivingKeyInitiator, i.State())

	_, err = r.HandlePublicKeyResponse(pubKeyRespAct.Payload.(wire.PublicKeyResponsePayload))
	require.NoError(t, err)
	challengeAct, err := r.CompleteDerivationResponder()
	require.NoError(t, err)

	// Challenge arrives at the initiator BEFORE its own derivation finishes.
	bufferedAct, err := i.HandleKeyConfirmChallenge(challengeAct.Payload.(wire.KeyConfirmChallengePayload))
	require.NoError(t, err)
	require.Equal(t, action.None, bufferedAct.Kind)
	require.Equal(t, StateDerivingKeyInitiator, i.State())
	require.Equal(t, challengeBuffered, i.challengeRecv.kind)

	respAct, err := i.CompleteDerivationInitiator()
	require.NoError(t, err)
	require.Equal(t, wire.TypeKeyConfirmResponse, respAct.FrameType)
	require.Equal(t, StateReceivedChallenge, i.State())
	require.Equal(t, challengeNone, i.challengeRecv.kind)
}

func TestChallengeResponseMismatchResetsSession(t *testing.T) {
	store := transfer.NewMemoryStore()
	r := NewResponder("alice", DefaultTimeouts(), store, 1<<20, 1<<16)
	r.state = StateAwaitingFinalConfirmation
	key, err := crypto.RandomBytes(crypto.KeySize)
	require.NoError(t, err)
	r.aesKey = key
	r.challengeSent, err = crypto.RandomBytes(ChallengeByteLength)
	require.NoError(t, err)

	iv, err := crypto.RandomBytes(crypto.NonceSize)
	require.NoError(t, err)
	wrong, err := crypto.RandomBytes(ChallengeByteLength)
	require.NoError(t, err)
	ct, err := crypto.Seal(key, iv, wrong)
	require.NoError(t, err)

	act, err := r.HandleKeyConfirmResponse(wire.KeyConfirmResponsePayload{
		IV: b64(iv), EncryptedResponse: b64(ct),
	})
	require.NoError(t, err)
	require.Equal(t, action.Reset, act.Kind)
	require.Equal(t, StateEnded, r.State())
	require.Nil(t, r.challengeSent)
}

func TestTamperedMessageStaysActiveAndShowsSystemNotice(t *testing.T) {
	store := transfer.NewMemoryStore()
	r := NewResponder("alice", DefaultTimeouts(), store, 1<<20, 1<<16)
	r.state = StateActive
	key, err := crypto.RandomBytes(crypto.KeySize)
	require.NoError(t, err)
	r.aesKey = key

	act, err := r.HandleEncryptedMessage(wire.EncryptedMessagePayload{
		IV:   b64(make([]byte, crypto.NonceSize)),
		Data: b64([]byte("not valid ciphertext")),
	})
	require.NoError(t, err)
	require.Equal(t, action.DisplaySystemMessage, act.Kind)
	require.Equal(t, StateActive, r.State())
}

func TestFileTransferRoundTrip(t *testing.T) {
	senderStore := transfer.NewMemoryStore()
	receiverStore := transfer.NewMemoryStore()
	sender := NewResponder("alice", DefaultTimeouts(), senderStore, 1<<20, 8)
	receiver := NewResponder("bob", DefaultTimeouts(), receiverStore, 1<<20, 8)
	key, err := crypto.RandomBytes(crypto.KeySize)
	require.NoError(t, err)
	sender.aesKey = key
	receiver.aesKey = key
	sender.state = StateActive
	receiver.state = StateActive

	data := []byte("hello, this is file content!!")
	offerAct, err := sender.OfferTransfer("note.txt", "text/plain", data)
	require.NoError(t, err)
	reqPayload := offerAct.Payload.(wire.TransferRequestPayload)

	infoAct, err := receiver.HandleTransferRequest(reqPayload)
	require.NoError(t, err)
	require.Equal(t, action.ShowInfo, infoAct.Kind)

	acceptAct, err := receiver.AcceptTransfer(reqPayload.TransferID)
	require.NoError(t, err)
	acceptPayload := acceptAct.Payload.(wire.TransferAcceptPayload)

	chunkAct, err := sender.HandleTransferAccept(acceptPayload)
	require.NoError(t, err)

	for chunkAct.Kind == action.Send && chunkAct.FrameType == wire.TypeTransferChunk {
		chunkPayload := chunkAct.Payload.(wire.TransferChunkPayload)
		_, err := receiver.HandleTransferChunk(chunkPayload)
		require.NoError(t, err)
		chunkAct, err = sender.ContinueTransfer(reqPayload.TransferID)
		require.NoError(t, err)
	}
	require.Equal(t, wire.TypeTransferComplete, chunkAct.FrameType)
	completePayload := chunkAct.Payload.(wire.TransferCompletePayload)

	doneAct, err := receiver.HandleTransferComplete(completePayload)
	require.NoError(t, err)
	require.Equal(t, action.ShowInfo, doneAct.Kind)

	assembled, err := receiverStore.Assemble(reqPayload.TransferID)
	require.Error(t, err) // deleted after successful assembly
	require.Nil(t, assembled)
}

func TestOfferTransferRejectsOversizedFile(t *testing.T) {
	store := transfer.NewMemoryStore()
	sender := NewResponder("alice", DefaultTimeouts(), store, 10, 8)
	sender.state = StateActive
	sender.aesKey = make([]byte, crypto.KeySize)

	act, err := sender.OfferTransfer("big.bin", "application/octet-stream", make([]byte, 11))
	require.NoError(t, err)
	require.Equal(t, action.DisplaySystemMessage, act.Kind)
}

func TestTransferFramesBeforeActiveResetTheSession(t *testing.T) {
	cases := []struct {
		name string
		run  func(*Session) (action.Action, error)
	}{
		{"accept", func(s *Session) (action.Action, error) {
			return s.HandleTransferAccept(wire.TransferAcceptPayload{TransferID: "t1"})
		}},
		{"reject", func(s *Session) (action.Action, error) {
			return s.HandleTransferReject(wire.TransferRejectPayload{TransferID: "t1"})
		}},
		{"chunk", func(s *Session) (action.Action, error) {
			return s.HandleTransferChunk(wire.TransferChunkPayload{TransferID: "t1", ChunkIndex: 0})
		}},
		{"complete", func(s *Session) (action.Action, error) {
			return s.HandleTransferComplete(wire.TransferCompletePayload{TransferID: "t1"})
		}},
		{"error", func(s *Session) (action.Action, error) {
			return s.HandleTransferError(wire.TransferErrorPayload{TransferID: "t1", Reason: "boom"})
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := transfer.NewMemoryStore()
			r := NewResponder("alice", DefaultTimeouts(), store, 1<<20, 1<<16)
			r.state = StateHandshakeComplete

			act, err := tc.run(r)
			require.NoError(t, err)
			require.Equal(t, action.Reset, act.Kind)
			require.Equal(t, StateEnded, r.State())
		})
	}
}

func TestSendMessageFailsClosedWhenNotActive(t *testing.T) {
	store := transfer.NewMemoryStore()
	i, err := NewInitiator("bob", DefaultTimeouts(), store, 1<<20, 1<<16)
	require.NoError(t, err)

	_, err = i.SendMessage("hi", false)
	require.Error(t, err)
}

func TestRequestTimeoutResetsOnlyInInitiatingSessionState(t *testing.T) {
	store := transfer.NewMemoryStore()
	i, err := NewInitiator("bob", DefaultTimeouts(), store, 1<<20, 1<<16)
	require.NoError(t, err)
	_, err = i.Initiate()
	require.NoError(t, err)

	act, err := i.RequestTimedOut()
	require.NoError(t, err)
	require.Equal(t, action.Reset, act.Kind)
	require.Equal(t, StateEnded, i.State())
}
