package wire

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janm-relay/pinger/crypto/keys"
	"github.com/janm-relay/pinger/internal/envelope"
)

func testKey(t *testing.T) keys.PublicKey {
	t.Helper()
	secret, err := keys.GenerateEphemeralSecret()
	require.NoError(t, err)
	return secret.PublicKey()
}

func testEnvelope(t *testing.T) envelope.EncryptedPingInfo {
	t.Helper()
	secret, err := keys.GenerateEphemeralSecret()
	require.NoError(t, err)
	peer, err := keys.GenerateEphemeralSecret()
	require.NoError(t, err)
	shared, err := secret.DiffieHellman(peer.PublicKey())
	require.NoError(t, err)
	enc, err := envelope.PingInfo{Timestamp: 1}.Encrypt(shared)
	require.NoError(t, err)
	return enc
}

// TestDownstreamKnownAnswers reproduces the byte-exact serializations of the
// relay's known-answer test vectors: field order matters, not just content.
func TestDownstreamKnownAnswers(t *testing.T) {
	t.Run("Connected", func(t *testing.T) {
		data, err := json.Marshal(DownFromServer(Connected(42)))
		require.NoError(t, err)
		assert.JSONEq(t, `{"msg":"connected","id":42}`, string(data))
		assert.Equal(t, `{"msg":"connected","id":42}`, string(data))
	})

	t.Run("NoSuchId", func(t *testing.T) {
		data, err := json.Marshal(DownFromServer(NoSuchID(42)))
		require.NoError(t, err)
		assert.Equal(t, `{"msg":"no_such_id","id":42}`, string(data))
	})

	t.Run("Error", func(t *testing.T) {
		data, err := json.Marshal(DownFromServer(ServerError("error details")))
		require.NoError(t, err)
		assert.Equal(t, `{"msg":"error","details":"error details"}`, string(data))
	})

	t.Run("PingAckFromClient", func(t *testing.T) {
		data, err := json.Marshal(DownFromClient(42, PingAck()))
		require.NoError(t, err)
		assert.Equal(t, `{"from":42,"msg":"ping_ack"}`, string(data))
	})

	t.Run("RejectPingFromClient", func(t *testing.T) {
		data, err := json.Marshal(DownFromClient(42, RejectPing()))
		require.NoError(t, err)
		assert.Equal(t, `{"from":42,"msg":"reject_ping"}`, string(data))
	})
}

func TestUpstreamKnownAnswer(t *testing.T) {
	data, err := json.Marshal(ClientUpMessage{To: 42, Msg: PingAck()})
	require.NoError(t, err)
	assert.Equal(t, `{"to":42,"msg":"ping_ack"}`, string(data))
}

func TestFieldOrderForKeyedVariants(t *testing.T) {
	key := testKey(t)

	t.Run("PingRequestFromClient", func(t *testing.T) {
		data, err := json.Marshal(DownFromClient(42, PingRequest(key)))
		require.NoError(t, err)
		s := string(data)
		assert.True(t, strings.HasPrefix(s, `{"from":42,"msg":"ping_request","key":"`))
		assert.True(t, strings.HasSuffix(s, `"}`))
	})

	t.Run("AcceptPingUp", func(t *testing.T) {
		data, err := json.Marshal(ClientUpMessage{To: 42, Msg: AcceptPing(key)})
		require.NoError(t, err)
		s := string(data)
		assert.True(t, strings.HasPrefix(s, `{"to":42,"msg":"accept_ping","key":"`))
	})
}

func TestFieldOrderForPing(t *testing.T) {
	enc := testEnvelope(t)

	data, err := json.Marshal(DownFromClient(42, Ping(enc)))
	require.NoError(t, err)
	s := string(data)
	assert.True(t, strings.HasPrefix(s, `{"from":42,"msg":"ping","info":"`))
}

func TestClientUpMessageRoundTrip(t *testing.T) {
	key := testKey(t)
	original := ClientUpMessage{To: 732, Msg: PingRequest(key)}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded ClientUpMessage
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.To, decoded.To)
	assert.Equal(t, original.Msg.Msg, decoded.Msg.Msg)
	assert.Equal(t, original.Msg.Key.Bytes(), decoded.Msg.Key.Bytes())
}

func TestClientUpMessageMalformedJSON(t *testing.T) {
	var msg ClientUpMessage
	err := json.Unmarshal([]byte(`not json`), &msg)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestClientUpMessageUnknownTag(t *testing.T) {
	var msg ClientUpMessage
	err := json.Unmarshal([]byte(`{"to":42,"msg":"bogus"}`), &msg)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestClientUpMessageMismatchedFieldsRejected(t *testing.T) {
	var msg ClientUpMessage
	// ping_request without a key must fail validation.
	err := json.Unmarshal([]byte(`{"to":42,"msg":"ping_request"}`), &msg)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestClientDownMessageDisambiguation(t *testing.T) {
	t.Run("WithFromIsClientOriginated", func(t *testing.T) {
		var down ClientDownMessage
		require.NoError(t, json.Unmarshal([]byte(`{"from":10,"msg":"ping_ack"}`), &down))
		require.NotNil(t, down.From)
		assert.Equal(t, Id(10), *down.From)
		assert.Equal(t, TagPingAck, down.Client.Msg)
	})

	t.Run("WithoutFromIsServerOriginated", func(t *testing.T) {
		var down ClientDownMessage
		require.NoError(t, json.Unmarshal([]byte(`{"msg":"connected","id":410}`), &down))
		assert.Nil(t, down.From)
		require.NotNil(t, down.Server.ID)
		assert.Equal(t, Id(410), *down.Server.ID)
		assert.Equal(t, TagConnected, down.Server.Msg)
	})

	t.Run("ServerErrorMissingDetailsRejected", func(t *testing.T) {
		var down ClientDownMessage
		err := json.Unmarshal([]byte(`{"msg":"error"}`), &down)
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("UnknownServerTagRejected", func(t *testing.T) {
		var down ClientDownMessage
		err := json.Unmarshal([]byte(`{"msg":"bogus"}`), &down)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}

func TestClientClientMessageValidate(t *testing.T) {
	key := testKey(t)

	t.Run("PingRequestRequiresKey", func(t *testing.T) {
		assert.Error(t, ClientClientMessage{Msg: TagPingRequest}.Validate())
	})

	t.Run("PingRequestRejectsInfo", func(t *testing.T) {
		enc := testEnvelope(t)
		assert.Error(t, ClientClientMessage{Msg: TagPingRequest, Key: &key, Info: &enc}.Validate())
	})

	t.Run("RejectPingRejectsFields", func(t *testing.T) {
		assert.Error(t, ClientClientMessage{Msg: TagRejectPing, Key: &key}.Validate())
	})

	t.Run("UnknownTagRejected", func(t *testing.T) {
		err := ClientClientMessage{Msg: Tag("bogus")}.Validate()
		assert.True(t, errors.Is(err, ErrUnknownTag))
	})

	t.Run("ValidVariantsAccepted", func(t *testing.T) {
		assert.NoError(t, ClientClientMessage{Msg: TagPingRequest, Key: &key}.Validate())
		assert.NoError(t, ClientClientMessage{Msg: TagRejectPing}.Validate())
		assert.NoError(t, ClientClientMessage{Msg: TagPingAck}.Validate())
	})
}

func TestIdValid(t *testing.T) {
	assert.False(t, Id(9).Valid())
	assert.True(t, Id(10).Valid())
	assert.True(t, Id(999).Valid())
	assert.False(t, Id(1000).Valid())
	assert.Equal(t, "410", Id(410).String())
}
