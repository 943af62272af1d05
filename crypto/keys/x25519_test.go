package keys

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEphemeralSecret(t *testing.T) {
	t.Run("GenerateAndPublicKey", func(t *testing.T) {
		secret, err := GenerateEphemeralSecret()
		require.NoError(t, err)
		require.NotNil(t, secret)

		pub := secret.PublicKey()
		assert.False(t, pub.IsZero())
		assert.Len(t, pub.Bytes(), PublicKeySize)
	})

	t.Run("DiffieHellmanAgreement", func(t *testing.T) {
		a, err := GenerateEphemeralSecret()
		require.NoError(t, err)
		b, err := GenerateEphemeralSecret()
		require.NoError(t, err)

		sharedA, err := a.DiffieHellman(b.PublicKey())
		require.NoError(t, err)
		sharedB, err := b.DiffieHellman(a.PublicKey())
		require.NoError(t, err)

		assert.Equal(t, sharedA, sharedB)
	})

	t.Run("SharedKeyIsRawECDHOutputWithNoKDFApplied", func(t *testing.T) {
		a, err := GenerateEphemeralSecret()
		require.NoError(t, err)
		b, err := GenerateEphemeralSecret()
		require.NoError(t, err)

		raw, err := a.priv.ECDH(b.priv.PublicKey())
		require.NoError(t, err)

		shared, err := a.DiffieHellman(b.PublicKey())
		require.NoError(t, err)

		assert.Equal(t, raw, shared.Bytes())
	})

	t.Run("DifferentPeersProduceDifferentKeys", func(t *testing.T) {
		a, err := GenerateEphemeralSecret()
		require.NoError(t, err)
		b, err := GenerateEphemeralSecret()
		require.NoError(t, err)
		c, err := GenerateEphemeralSecret()
		require.NoError(t, err)

		sharedAB, err := a.DiffieHellman(b.PublicKey())
		require.NoError(t, err)
		sharedAC, err := a.DiffieHellman(c.PublicKey())
		require.NoError(t, err)

		assert.NotEqual(t, sharedAB, sharedAC)
	})

	t.Run("EmptyPeerPublicKeyRejected", func(t *testing.T) {
		a, err := GenerateEphemeralSecret()
		require.NoError(t, err)

		_, err = a.DiffieHellman(PublicKey{})
		assert.Error(t, err)
	})
}

func TestPublicKeyFromBytes(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		secret, err := GenerateEphemeralSecret()
		require.NoError(t, err)

		pub, err := PublicKeyFromBytes(secret.PublicKey().Bytes())
		require.NoError(t, err)
		assert.Equal(t, secret.PublicKey().Bytes(), pub.Bytes())
	})

	t.Run("WrongLength", func(t *testing.T) {
		_, err := PublicKeyFromBytes([]byte{1, 2, 3})
		assert.Error(t, err)
	})
}

func TestPublicKeyJSON(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		secret, err := GenerateEphemeralSecret()
		require.NoError(t, err)
		pub := secret.PublicKey()

		data, err := json.Marshal(pub)
		require.NoError(t, err)

		var s string
		require.NoError(t, json.Unmarshal(data, &s))
		assert.Len(t, s, 43)

		var decoded PublicKey
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, pub.Bytes(), decoded.Bytes())
	})

	t.Run("MarshalEmptyFails", func(t *testing.T) {
		_, err := json.Marshal(PublicKey{})
		assert.Error(t, err)
	})

	t.Run("UnmarshalInvalidBase64Fails", func(t *testing.T) {
		var pub PublicKey
		err := json.Unmarshal([]byte(`"not-valid-base64!!"`), &pub)
		assert.Error(t, err)
	})

	t.Run("UnmarshalWrongLengthFails", func(t *testing.T) {
		var pub PublicKey
		err := json.Unmarshal([]byte(`"dG9vc2hvcnQ"`), &pub)
		assert.Error(t, err)
	})
}
