// Package meadowcap implements the capability model: signed, optionally
// delegated grants that authorize reads or writes in a namespace or
// subspace. Every entry that crosses the wire during reconciliation must
// carry a capability-backed AuthorisationToken that validates against it.
package meadowcap

import (
	"github.com/meadowlark-sync/willow/errors"
	"github.com/meadowlark-sync/willow/pkg/area"
	"github.com/meadowlark-sync/willow/pkg/entry"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

// AccessMode is what a capability grants: read or write.
type AccessMode byte

const (
	// AccessRead grants read access. Signable byte: 0x02.
	AccessRead AccessMode = 0x02
	// AccessWrite grants write access. Signable byte: 0x03.
	AccessWrite AccessMode = 0x03
)

// Delegation is reserved for future use. The data shape exists so the wire
// encoding is stable, but any non-empty delegation chain makes its owning
// capability invalid.
type Delegation struct {
	User      meadowkey.UserPublicKey
	Signature meadowkey.UserSignature
}

// Capability is the common interface both the Communal and Owned variants
// satisfy.
type Capability interface {
	AccessMode() AccessMode
	Receiver() meadowkey.UserPublicKey
	GrantedNamespace() meadowkey.NamespacePublicKey
	GrantedArea() area.Area
	IsValid() bool
}

// CommunalCapability grants access over the subspace of UserKey in a
// communal namespace — one where users own their own subspace without
// needing the namespace key to authorise them.
type CommunalCapability struct {
	Mode         AccessMode
	NamespaceKey meadowkey.NamespacePublicKey
	UserKey      meadowkey.UserPublicKey
	Delegations  []Delegation
}

func (c CommunalCapability) AccessMode() AccessMode                        { return c.Mode }
func (c CommunalCapability) Receiver() meadowkey.UserPublicKey             { return c.UserKey }
func (c CommunalCapability) GrantedNamespace() meadowkey.NamespacePublicKey { return c.NamespaceKey }

// GrantedArea for a communal capability is exactly the receiver's subspace.
func (c CommunalCapability) GrantedArea() area.Area {
	return area.Subspace(c.UserKey)
}

// IsValid holds without delegations; a non-empty delegation vector is
// currently always invalid (see Delegation).
func (c CommunalCapability) IsValid() bool {
	return len(c.Delegations) == 0
}

// OwnedCapability grants access over the entire namespace, authorised by
// the namespace key's signature over the receiver's public key.
type OwnedCapability struct {
	Mode                 AccessMode
	NamespaceKey         meadowkey.NamespacePublicKey
	UserKey              meadowkey.UserPublicKey
	InitialAuthorisation meadowkey.NamespaceSignature
	Delegations          []Delegation
}

func (c OwnedCapability) AccessMode() AccessMode                        { return c.Mode }
func (c OwnedCapability) Receiver() meadowkey.UserPublicKey             { return c.UserKey }
func (c OwnedCapability) GrantedNamespace() meadowkey.NamespacePublicKey { return c.NamespaceKey }

// GrantedArea for an owned capability is the whole namespace.
func (c OwnedCapability) GrantedArea() area.Area {
	return area.Full()
}

// signableInitialAuthorisation is the byte string the namespace key signs
// to authorise a receiver for mode: the mode's signable byte (0x02 Read,
// 0x03 Write) followed by the receiver's encoded public key.
func signableInitialAuthorisation(mode AccessMode, receiver meadowkey.UserPublicKey) []byte {
	buf := make([]byte, 1+meadowkey.PublicKeySize)
	buf[0] = byte(mode)
	copy(buf[1:], receiver[:])
	return buf
}

// IsValid holds for zero delegations iff NamespaceKey verifies
// InitialAuthorisation over signable(Mode, UserKey).
func (c OwnedCapability) IsValid() bool {
	if len(c.Delegations) != 0 {
		return false
	}
	signable := signableInitialAuthorisation(c.Mode, c.UserKey)
	return c.NamespaceKey.Verify(signable, c.InitialAuthorisation) == nil
}

// NewOwnedCapability signs a fresh OwnedCapability authorising receiver for
// mode under namespaceKey.
func NewOwnedCapability(namespaceKey meadowkey.NamespaceSecretKey, receiver meadowkey.UserPublicKey, mode AccessMode) OwnedCapability {
	signable := signableInitialAuthorisation(mode, receiver)
	return OwnedCapability{
		Mode:                 mode,
		NamespaceKey:         namespaceKey.Public,
		UserKey:              receiver,
		InitialAuthorisation: namespaceKey.Sign(signable),
	}
}

// Validate returns an InvalidCapability error if the capability fails its
// own validity predicate; otherwise nil.
func Validate(c Capability) error {
	if !c.IsValid() {
		return errors.WithStack(ErrInvalidCapability)
	}
	return nil
}

// AuthorisationToken is the (capability, signature) pair attached to an
// entry: the static half (the capability, referenced by handle on the
// wire) and the dynamic half (the receiver's signature over the entry
// encoding).
type AuthorisationToken struct {
	Capability Capability
	Signature  meadowkey.UserSignature
}

// CreateToken signs entry's canonical encoding with secretKey and packages
// it with capability into an AuthorisationToken.
func CreateToken(e entry.Entry, capability Capability, secretKey meadowkey.UserSecretKey) AuthorisationToken {
	return AuthorisationToken{
		Capability: capability,
		Signature:  secretKey.Sign(e.Encode()),
	}
}

// IsAuthorisedWrite implements the four-step check from §4.D:
//  1. the capability is valid
//  2. its access mode is Write
//  3. its granted area includes the entry
//  4. the receiver's public key verifies the token's signature over the
//     entry's canonical encoding
//
// Any failure yields false; verification failure here is not itself an
// error, only a reason the entry is unauthorised.
func IsAuthorisedWrite(e entry.Entry, token AuthorisationToken) bool {
	if token.Capability == nil {
		return false
	}
	if !token.Capability.IsValid() {
		return false
	}
	if token.Capability.AccessMode() != AccessWrite {
		return false
	}
	if !token.Capability.GrantedArea().IncludesEntry(e) {
		return false
	}
	return token.Capability.Receiver().Verify(e.Encode(), token.Signature) == nil
}

// AuthorisedEntry pairs an Entry with the AuthorisationToken that
// authorises it. The invariant IsAuthorisedWrite(Entry, Token) == true
// holds for every value constructed via TryFromParts.
type AuthorisedEntry struct {
	Entry entry.Entry
	Token AuthorisationToken
}

// ErrUnauthorised is returned by TryFromParts when the token does not
// authorise the entry.
var ErrUnauthorised = errors.New("entry is not authorised by the given token")

// ErrInvalidCapability is returned by Validate/AttachAuthorisation when a
// capability fails its own validity predicate.
var ErrInvalidCapability = errors.New("capability is not valid")

// TryFromParts checks IsAuthorisedWrite and, on success, constructs an
// AuthorisedEntry; otherwise returns ErrUnauthorised.
func TryFromParts(e entry.Entry, token AuthorisationToken) (AuthorisedEntry, error) {
	if !IsAuthorisedWrite(e, token) {
		return AuthorisedEntry{}, errors.WithStack(ErrUnauthorised)
	}
	return AuthorisedEntry{Entry: e, Token: token}, nil
}

// FromPartsUnchecked constructs an AuthorisedEntry without checking
// IsAuthorisedWrite, for callers that have already performed the check
// elsewhere (e.g. entries freshly read back out of a store that only ever
// ingests through TryFromParts/AttachAuthorisation).
func FromPartsUnchecked(e entry.Entry, token AuthorisationToken) AuthorisedEntry {
	return AuthorisedEntry{Entry: e, Token: token}
}

// AttachAuthorisation performs the three structural checks (Write, area,
// receiver key — everything IsAuthorisedWrite checks except the signature,
// since AttachAuthorisation itself produces the signature) and returns an
// AuthorisedEntry, or ErrInvalidCapability/ErrUnauthorised/
// ErrWrongSecretKeyForCapability on failure.
func AttachAuthorisation(e entry.Entry, capability Capability, secretKey meadowkey.UserSecretKey) (AuthorisedEntry, error) {
	if !capability.IsValid() {
		return AuthorisedEntry{}, errors.WithStack(ErrInvalidCapability)
	}
	if capability.AccessMode() != AccessWrite {
		return AuthorisedEntry{}, errors.Wrap(ErrUnauthorised, "capability does not grant write access")
	}
	if !capability.GrantedArea().IncludesEntry(e) {
		return AuthorisedEntry{}, errors.Wrap(ErrUnauthorised, "capability's granted area does not include entry")
	}
	if capability.Receiver() != secretKey.Public {
		return AuthorisedEntry{}, errors.Wrap(ErrWrongSecretKeyForCapability, "secret key does not match capability receiver")
	}

	token := CreateToken(e, capability, secretKey)
	return AuthorisedEntry{Entry: e, Token: token}, nil
}

// ErrWrongSecretKeyForCapability is returned when a secret key presented at
// setup time does not match the capability's receiver.
var ErrWrongSecretKeyForCapability = errors.New("secret key does not match capability receiver")
