package action

import (
	"testing"

	"github.com/helix-chat/helix-core/wire"
	"github.com/stretchr/testify/require"
)

func TestNewSendCarriesFrameAndPayload(t *testing.T) {
	a := NewSend(wire.TypeSessionRequest, wire.SessionRequestPayload{Recipient: "bob"})
	require.Equal(t, Send, a.Kind)
	require.Equal(t, wire.TypeSessionRequest, a.FrameType)
	require.Equal(t, wire.SessionRequestPayload{Recipient: "bob"}, a.Payload)
}

func TestNewResetCarriesReasonAndNotify(t *testing.T) {
	a := NewReset("Request timed out", true)
	require.Equal(t, Reset, a.Kind)
	require.Equal(t, "Request timed out", a.Reason)
	require.True(t, a.Notify)
}

func TestNewNoneIsZeroKind(t *testing.T) {
	require.Equal(t, None, NewNone().Kind)
}

func TestThenChainsFollowup(t *testing.T) {
	a := NewSend(wire.TypeSessionEstablished, wire.SessionEstablishedPayload{}).Then(NewShowInfo("123 456"))
	require.NotNil(t, a.Followup)
	require.Equal(t, ShowInfo, a.Followup.Kind)
	require.Equal(t, "123 456", a.Followup.Info)
}
