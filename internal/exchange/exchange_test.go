package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janm-relay/pinger/crypto/keys"
	"github.com/janm-relay/pinger/internal/envelope"
	"github.com/janm-relay/pinger/internal/wire"
)

func TestOutgoingHappyPath(t *testing.T) {
	out := NewOutgoing()
	in := NewIncoming()

	info := envelope.PingInfo{Timestamp: 0x1234567890, Latitude: 1.2, Longitude: 3.4, Altitude: 5.6, ErrorMeters: 7.8}

	req, err := out.Start(732, info)
	require.NoError(t, err)
	assert.Equal(t, OutgoingAwaitingDecision, out.State())
	assert.Equal(t, wire.TagPingRequest, req.Msg.Msg)

	ok := in.HandlePingRequest(410, *req.Msg.Key)
	require.True(t, ok)
	assert.Equal(t, IncomingDeciding, in.State())

	accept, err := in.Accept()
	require.NoError(t, err)
	assert.Equal(t, IncomingAwaitingPing, in.State())
	assert.Equal(t, wire.TagAcceptPing, accept.Msg.Msg)

	action, err := out.HandleDown(732, accept.Msg)
	require.NoError(t, err)
	require.NotNil(t, action.Send)
	assert.Equal(t, wire.TagPing, action.Send.Msg.Msg)
	assert.Equal(t, OutgoingAwaitingAck, out.State())

	pingAction, err := in.HandleDown(410, action.Send.Msg)
	require.NoError(t, err)
	require.NotNil(t, pingAction.Info)
	assert.Equal(t, info, *pingAction.Info)
	require.NotNil(t, pingAction.Ack)
	assert.Equal(t, wire.TagPingAck, pingAction.Ack.Msg.Msg)
	assert.Equal(t, IncomingAbsent, in.State())

	finalAction, err := out.HandleDown(732, pingAction.Ack.Msg)
	require.NoError(t, err)
	assert.True(t, finalAction.Done)
	assert.Equal(t, OutgoingNone, out.State())
}

func TestOutgoingRejection(t *testing.T) {
	out := NewOutgoing()
	_, err := out.Start(732, envelope.PingInfo{})
	require.NoError(t, err)

	action, err := out.HandleDown(732, wire.RejectPing())
	require.NoError(t, err)
	assert.True(t, action.Done)
	assert.Equal(t, OutgoingNone, out.State())
}

func TestOutgoingNoSuchIDResetsState(t *testing.T) {
	out := NewOutgoing()
	_, err := out.Start(732, envelope.PingInfo{})
	require.NoError(t, err)

	consumed := out.HandleNoSuchID(732)
	assert.True(t, consumed)
	assert.Equal(t, OutgoingNone, out.State())
}

func TestOutgoingNoSuchIDIgnoredForOtherPeer(t *testing.T) {
	out := NewOutgoing()
	_, err := out.Start(732, envelope.PingInfo{})
	require.NoError(t, err)

	consumed := out.HandleNoSuchID(999)
	assert.False(t, consumed)
	assert.Equal(t, OutgoingAwaitingDecision, out.State())
}

func TestOutgoingUnexpectedSenderDiscarded(t *testing.T) {
	out := NewOutgoing()
	_, err := out.Start(732, envelope.PingInfo{})
	require.NoError(t, err)

	action, err := out.HandleDown(999, wire.RejectPing())
	require.NoError(t, err)
	assert.True(t, action.Unexpected)
	assert.Equal(t, OutgoingAwaitingDecision, out.State())
}

func TestOutgoingStartTwiceFails(t *testing.T) {
	out := NewOutgoing()
	_, err := out.Start(732, envelope.PingInfo{})
	require.NoError(t, err)

	_, err = out.Start(410, envelope.PingInfo{})
	assert.Error(t, err)
}

func TestIncomingRejection(t *testing.T) {
	in := NewIncoming()
	key := testPublicKey(t)

	ok := in.HandlePingRequest(410, key)
	require.True(t, ok)

	msg, err := in.Reject()
	require.NoError(t, err)
	assert.Equal(t, wire.TagRejectPing, msg.Msg.Msg)
	assert.Equal(t, wire.Id(410), msg.To)
	assert.Equal(t, IncomingAbsent, in.State())
}

func TestIncomingDecryptFailureResetsState(t *testing.T) {
	in := NewIncoming()
	key := testPublicKey(t)

	require.True(t, in.HandlePingRequest(410, key))
	_, err := in.Accept()
	require.NoError(t, err)

	var badEnvelope envelope.EncryptedPingInfo
	_, err = in.HandleDown(410, wire.Ping(badEnvelope))
	assert.Error(t, err)
	assert.Equal(t, IncomingAbsent, in.State())
}

func TestIncomingUnexpectedMessageIgnored(t *testing.T) {
	in := NewIncoming()
	action, err := in.HandleDown(410, wire.RejectPing())
	require.NoError(t, err)
	assert.True(t, action.Unexpected)
	assert.Equal(t, IncomingAbsent, in.State())
}

func TestIncomingSecondPingRequestRejected(t *testing.T) {
	in := NewIncoming()
	key := testPublicKey(t)

	require.True(t, in.HandlePingRequest(410, key))
	ok := in.HandlePingRequest(732, key)
	assert.False(t, ok)
	assert.Equal(t, wire.Id(410), in.Peer())
}

func testPublicKey(t *testing.T) keys.PublicKey {
	t.Helper()
	secret, err := keys.GenerateEphemeralSecret()
	require.NoError(t, err)
	return secret.PublicKey()
}
