package meadowcap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

func TestMarshalUnmarshalCommunalCapability(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := CommunalCapability{Mode: AccessRead, NamespaceKey: ns.Public, UserKey: user.Public}

	buf, err := MarshalCapability(cap)
	require.NoError(t, err)

	got, err := UnmarshalCapability(buf)
	require.NoError(t, err)
	assert.Equal(t, cap, got)
}

func TestMarshalUnmarshalOwnedCapability(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := NewOwnedCapability(ns, user.Public, AccessWrite)

	buf, err := MarshalCapability(cap)
	require.NoError(t, err)

	got, err := UnmarshalCapability(buf)
	require.NoError(t, err)
	assert.Equal(t, cap, got)
	assert.True(t, got.(OwnedCapability).IsValid())
}

func TestMarshalUnmarshalToken(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := NewOwnedCapability(ns, user.Public, AccessWrite)
	token := AuthorisationToken{Capability: cap, Signature: meadowkey.UserSignature{1, 2, 3}}

	buf, err := MarshalToken(token)
	require.NoError(t, err)

	got, err := UnmarshalToken(buf)
	require.NoError(t, err)
	assert.Equal(t, token, got)
}
