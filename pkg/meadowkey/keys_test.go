package meadowkey

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamespaceSignAndVerify(t *testing.T) {
	key, err := GenerateNamespaceKey()
	require.NoError(t, err)

	sig := key.Sign([]byte("hello"))
	require.NoError(t, key.Public.Verify([]byte("hello"), sig))
}

func TestNamespaceVerifyRejectsTampered(t *testing.T) {
	key, err := GenerateNamespaceKey()
	require.NoError(t, err)

	sig := key.Sign([]byte("hello"))
	err = key.Public.Verify([]byte("goodbye"), sig)
	assert.ErrorIs(t, err, ErrSignature)
}

func TestUserSignAndVerify(t *testing.T) {
	key, err := GenerateUserKey()
	require.NoError(t, err)

	sig := key.Sign([]byte("entry bytes"))
	require.NoError(t, key.Public.Verify([]byte("entry bytes"), sig))
}

func TestDIDKeyRoundTrip(t *testing.T) {
	key, err := GenerateUserKey()
	require.NoError(t, err)

	did := DIDKey(key.Public)
	decoded, err := DecodeDIDKey(did)
	require.NoError(t, err)
	assert.Equal(t, [PublicKeySize]byte(key.Public), decoded)
}

func TestDecodeDIDKeyInvalidFormat(t *testing.T) {
	_, err := DecodeDIDKey("not-a-did")
	assert.Error(t, err)
}

func TestDecodeDIDKeyWrongLength(t *testing.T) {
	_, err := DecodeDIDKey("did:key:z2TiF")
	assert.Error(t, err)
}
