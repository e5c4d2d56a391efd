// Package meadowkey provides the namespace and user key primitives that
// back Meadowcap capabilities: fixed-length Ed25519 public keys, detached
// signatures over arbitrary byte buffers, and the did:key-style encoding
// used to print a public key for logging or CLI output.
package meadowkey

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/mr-tron/base58"

	"github.com/meadowlark-sync/willow/errors"
)

// PublicKeySize is the fixed length of a NamespacePublicKey or UserPublicKey.
const PublicKeySize = ed25519.PublicKeySize

// SignatureSize is the fixed length of a NamespaceSignature or UserSignature.
const SignatureSize = ed25519.SignatureSize

// NamespacePublicKey identifies a namespace. Owned namespaces use it to sign
// initial authorisations; communal namespaces use it only as a grouping key.
type NamespacePublicKey [PublicKeySize]byte

// UserPublicKey identifies a user (a.k.a. subspace). It both names a
// subspace and receives capabilities.
type UserPublicKey [PublicKeySize]byte

// NamespaceSignature is a detached signature produced by a namespace secret key.
type NamespaceSignature [SignatureSize]byte

// UserSignature is a detached signature produced by a user secret key.
type UserSignature [SignatureSize]byte

// NamespaceId and UserId are the derived identifiers used throughout the
// data model; here they are simply the public key itself (an Ed25519
// public key already has the entropy and fixed length a derived hash would
// give it, so no additional hashing step is needed).
type (
	NamespaceId = NamespacePublicKey
	UserId      = UserPublicKey
	SubspaceId  = UserPublicKey
)

// NamespaceSecretKey signs on behalf of a namespace (owned namespaces only).
type NamespaceSecretKey struct {
	Public  NamespacePublicKey
	Private ed25519.PrivateKey
}

// UserSecretKey signs on behalf of a user — both to receive capabilities
// (signing the intersection handle during setup) and to author entries
// (signing the entry encoding for an AuthorisationToken).
type UserSecretKey struct {
	Public  UserPublicKey
	Private ed25519.PrivateKey
}

// GenerateNamespaceKey creates a fresh namespace keypair.
func GenerateNamespaceKey() (NamespaceSecretKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return NamespaceSecretKey{}, errors.Wrap(err, "failed to generate namespace key")
	}
	var out NamespacePublicKey
	copy(out[:], pub)
	return NamespaceSecretKey{Public: out, Private: priv}, nil
}

// GenerateUserKey creates a fresh user keypair.
func GenerateUserKey() (UserSecretKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return UserSecretKey{}, errors.Wrap(err, "failed to generate user key")
	}
	var out UserPublicKey
	copy(out[:], pub)
	return UserSecretKey{Public: out, Private: priv}, nil
}

// Sign produces a NamespaceSignature over buf.
func (k NamespaceSecretKey) Sign(buf []byte) NamespaceSignature {
	var sig NamespaceSignature
	copy(sig[:], ed25519.Sign(k.Private, buf))
	return sig
}

// Sign produces a UserSignature over buf.
func (k UserSecretKey) Sign(buf []byte) UserSignature {
	var sig UserSignature
	copy(sig[:], ed25519.Sign(k.Private, buf))
	return sig
}

// ErrSignature is returned by Verify on signature mismatch. Callers outside
// capability validation treat it as a plain error; inside Meadowcap
// validation a failed verify just makes the capability invalid, not an error.
var ErrSignature = errors.New("signature verification failed")

// Verify checks sig against buf under pub. Returns ErrSignature on mismatch.
func (pub NamespacePublicKey) Verify(buf []byte, sig NamespaceSignature) error {
	if !ed25519.Verify(pub[:], buf, sig[:]) {
		return ErrSignature
	}
	return nil
}

// Verify checks sig against buf under pub. Returns ErrSignature on mismatch.
func (pub UserPublicKey) Verify(buf []byte, sig UserSignature) error {
	if !ed25519.Verify(pub[:], buf, sig[:]) {
		return ErrSignature
	}
	return nil
}

// multicodecEd25519Pub is the multicodec prefix for an Ed25519 public key,
// used by the did:key encoding (0xed01, varint-encoded as two bytes since
// the value fits in 7+7 bits).
var multicodecEd25519Pub = [2]byte{0xed, 0x01}

// DIDKey encodes a public key as a did:key:z... identifier: the multicodec
// prefix followed by the raw key, base58btc-encoded.
func DIDKey(pub [PublicKeySize]byte) string {
	buf := make([]byte, 2+PublicKeySize)
	buf[0], buf[1] = multicodecEd25519Pub[0], multicodecEd25519Pub[1]
	copy(buf[2:], pub[:])
	return "did:key:z" + base58.Encode(buf)
}

// DecodeDIDKey reverses DIDKey, extracting the raw 32-byte public key.
func DecodeDIDKey(did string) ([PublicKeySize]byte, error) {
	var out [PublicKeySize]byte
	const prefix = "did:key:z"
	if len(did) < len(prefix) || did[:len(prefix)] != prefix {
		return out, errors.Newf("invalid did:key format: %s", did)
	}

	decoded, err := base58.Decode(did[len(prefix):])
	if err != nil {
		return out, errors.Wrapf(err, "failed to base58-decode did:key %s", did)
	}

	if len(decoded) != 2+PublicKeySize {
		return out, errors.Newf("unexpected decoded length %d for did:key %s (expected %d)", len(decoded), did, 2+PublicKeySize)
	}
	if decoded[0] != multicodecEd25519Pub[0] || decoded[1] != multicodecEd25519Pub[1] {
		return out, errors.Newf("unexpected multicodec prefix [%x %x] for did:key %s", decoded[0], decoded[1], did)
	}

	copy(out[:], decoded[2:])
	return out, nil
}
