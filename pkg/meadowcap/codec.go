package meadowcap

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/meadowlark-sync/willow/errors"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

// variant tags which concrete Capability implementation a wire payload
// holds, since Capability is an interface and CBOR has no native notion of
// Go interface types.
type variant byte

const (
	variantCommunal variant = iota + 1
	variantOwned
)

// wireCapability is the CBOR-serialisable shadow of Capability, shared by
// anything that needs to put a Capability on the wire or in a BLOB column:
// pkg/wire's message codec and pkg/store's SQLite backing.
type wireCapability struct {
	Variant              variant
	Mode                 AccessMode
	NamespaceKey         meadowkey.NamespacePublicKey
	UserKey              meadowkey.UserPublicKey
	InitialAuthorisation meadowkey.NamespaceSignature
	Delegations          []Delegation
}

// MarshalCapability encodes c to its canonical CBOR form.
func MarshalCapability(c Capability) ([]byte, error) {
	w, err := capabilityToWire(c)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(w)
}

// UnmarshalCapability reverses MarshalCapability.
func UnmarshalCapability(buf []byte) (Capability, error) {
	var w wireCapability
	if err := cbor.Unmarshal(buf, &w); err != nil {
		return nil, errors.Wrap(err, "failed to decode capability")
	}
	return w.toCapability()
}

// wireToken is the CBOR-serialisable shadow of AuthorisationToken.
type wireToken struct {
	Capability wireCapability
	Signature  meadowkey.UserSignature
}

// capabilityToWire converts c to its CBOR shadow without a round trip
// through bytes.
func capabilityToWire(c Capability) (wireCapability, error) {
	switch v := c.(type) {
	case CommunalCapability:
		return wireCapability{Variant: variantCommunal, Mode: v.Mode, NamespaceKey: v.NamespaceKey, UserKey: v.UserKey, Delegations: v.Delegations}, nil
	case OwnedCapability:
		return wireCapability{Variant: variantOwned, Mode: v.Mode, NamespaceKey: v.NamespaceKey, UserKey: v.UserKey, InitialAuthorisation: v.InitialAuthorisation, Delegations: v.Delegations}, nil
	default:
		return wireCapability{}, errors.Newf("unsupported capability type %T", c)
	}
}

func (w wireCapability) toCapability() (Capability, error) {
	switch w.Variant {
	case variantCommunal:
		return CommunalCapability{Mode: w.Mode, NamespaceKey: w.NamespaceKey, UserKey: w.UserKey, Delegations: w.Delegations}, nil
	case variantOwned:
		return OwnedCapability{Mode: w.Mode, NamespaceKey: w.NamespaceKey, UserKey: w.UserKey, InitialAuthorisation: w.InitialAuthorisation, Delegations: w.Delegations}, nil
	default:
		return nil, errors.Newf("unknown capability variant %d", w.Variant)
	}
}

// MarshalToken encodes t to its canonical CBOR form.
func MarshalToken(t AuthorisationToken) ([]byte, error) {
	w, err := capabilityToWire(t.Capability)
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(wireToken{Capability: w, Signature: t.Signature})
}

// UnmarshalToken reverses MarshalToken.
func UnmarshalToken(buf []byte) (AuthorisationToken, error) {
	var w wireToken
	if err := cbor.Unmarshal(buf, &w); err != nil {
		return AuthorisationToken{}, errors.Wrap(err, "failed to decode authorisation token")
	}
	cap, err := w.Capability.toCapability()
	if err != nil {
		return AuthorisationToken{}, err
	}
	return AuthorisationToken{Capability: cap, Signature: w.Signature}, nil
}
