package meadowcap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meadowlark-sync/willow/pkg/entry"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

func testEntryFor(t *testing.T, subspace meadowkey.SubspaceId) entry.Entry {
	t.Helper()
	digest, err := entry.NewPayloadDigest([]byte{
		1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16,
		17, 18, 19, 20, 21, 22, 23, 24, 25, 26, 27, 28, 29, 30, 31, 32,
	})
	require.NoError(t, err)
	return entry.Entry{
		SubspaceID:    subspace,
		Path:          entry.Path{[]byte("a")},
		Timestamp:     10,
		PayloadLength: 7,
		PayloadDigest: digest,
	}
}

func TestCommunalCapabilityValidWithoutDelegations(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := CommunalCapability{Mode: AccessWrite, NamespaceKey: ns.Public, UserKey: user.Public}
	assert.True(t, cap.IsValid())
	assert.True(t, cap.GrantedArea().IncludesEntry(testEntryFor(t, user.Public)))
}

func TestCommunalCapabilityInvalidWithDelegations(t *testing.T) {
	cap := CommunalCapability{Delegations: []Delegation{{}}}
	assert.False(t, cap.IsValid())
}

func TestOwnedCapabilityValidity(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := NewOwnedCapability(ns, user.Public, AccessWrite)
	assert.True(t, cap.IsValid())

	cap.UserKey = meadowkey.UserPublicKey{9, 9, 9}
	assert.False(t, cap.IsValid(), "tampering with the receiver must invalidate the signature")
}

func TestOwnedCapabilityGrantsWholeNamespace(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := NewOwnedCapability(ns, user.Public, AccessWrite)
	other := meadowkey.SubspaceId{7}
	assert.True(t, cap.GrantedArea().IncludesEntry(testEntryFor(t, other)))
}

func TestAttachAuthorisationAndIsAuthorisedWrite(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := NewOwnedCapability(ns, user.Public, AccessWrite)
	e := testEntryFor(t, user.Public)

	ae, err := AttachAuthorisation(e, cap, user)
	require.NoError(t, err)
	assert.True(t, IsAuthorisedWrite(ae.Entry, ae.Token))
}

func TestAttachAuthorisationWrongSecretKey(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)
	other, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := NewOwnedCapability(ns, user.Public, AccessWrite)
	e := testEntryFor(t, user.Public)

	_, err = AttachAuthorisation(e, cap, other)
	assert.ErrorIs(t, err, ErrWrongSecretKeyForCapability)
}

func TestAttachAuthorisationReadOnlyCapabilityRejected(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := NewOwnedCapability(ns, user.Public, AccessRead)
	e := testEntryFor(t, user.Public)

	_, err = AttachAuthorisation(e, cap, user)
	assert.ErrorIs(t, err, ErrUnauthorised)
}

func TestTryFromPartsRejectsUnauthorised(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := NewOwnedCapability(ns, user.Public, AccessWrite)
	e := testEntryFor(t, user.Public)
	badToken := AuthorisationToken{Capability: cap, Signature: meadowkey.UserSignature{}}

	_, err = TryFromParts(e, badToken)
	assert.ErrorIs(t, err, ErrUnauthorised)
}

func TestTryFromPartsAcceptsAuthorised(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := NewOwnedCapability(ns, user.Public, AccessWrite)
	e := testEntryFor(t, user.Public)
	token := CreateToken(e, cap, user)

	ae, err := TryFromParts(e, token)
	require.NoError(t, err)
	assert.Equal(t, e, ae.Entry)
}

func TestValidate(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	cap := NewOwnedCapability(ns, user.Public, AccessWrite)
	assert.NoError(t, Validate(cap))

	cap.UserKey = meadowkey.UserPublicKey{1}
	assert.ErrorIs(t, Validate(cap), ErrInvalidCapability)
}
