// Package wire defines the framed messages exchanged on a session's two
// logical channels, and the CBOR codec used to encode/decode them.
package wire

import (
	"github.com/meadowlark-sync/willow/internal/fingerprint"
	"github.com/meadowlark-sync/willow/pkg/area"
	"github.com/meadowlark-sync/willow/pkg/entry"
	"github.com/meadowlark-sync/willow/pkg/meadowcap"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
	"github.com/meadowlark-sync/willow/pkg/resource"
)

// NonceSize is the fixed length of the commitment-scheme nonce.
const NonceSize = 32

// Nonce is the secret value a peer reveals during the commitment handshake.
type Nonce [NonceSize]byte

// Commitment is hash(nonce); sent up front, before the nonce itself.
type Commitment [32]byte

// AreaOfInterest names an Area plus the result-size limits a peer is
// willing to sync for it; the zero value for both limits means "no limit".
type AreaOfInterest struct {
	Area     area.Area
	MaxCount uint64
	MaxSize  uint64
}

// LengthyEntry pairs an Entry with how much of its payload the sender
// currently has available, letting a receiver distinguish "fully present"
// from "partially transferred so far" without a separate message.
type LengthyEntry struct {
	Entry     entry.Entry
	Available uint64
}

// Kind identifies which message variant, Control or Reconciliation, a frame
// carries.
type Kind byte

const (
	KindCommitmentReveal Kind = iota + 1
	KindSetupBindReadCapability
	KindSetupBindAreaOfInterest
	KindSetupBindStaticToken
	KindControlFreeHandle
	KindReconciliationSendFingerprint
	KindReconciliationAnnounceEntries
	KindReconciliationSendEntry
)

// CommitmentReveal is the first Control message either peer sends: the
// nonce it committed to before the session began.
type CommitmentReveal struct {
	Nonce Nonce
}

// SetupBindReadCapability binds a capability to a fresh handle on the
// sender's side and proves the sender holds the matching secret by signing
// the intersection handle it was issued against.
type SetupBindReadCapability struct {
	Capability        meadowcap.Capability
	IntersectionHandle resource.Handle
	Signature         meadowkey.UserSignature
}

// SetupBindAreaOfInterest binds an area of interest, authorised by a
// previously-bound capability handle.
type SetupBindAreaOfInterest struct {
	AreaOfInterest   AreaOfInterest
	AuthorisationRef resource.Handle
}

// SetupBindStaticToken binds the static (capability) half of an
// authorisation token so later ReconciliationSendEntry messages can
// reference it by handle instead of repeating it.
type SetupBindStaticToken struct {
	StaticToken meadowcap.AuthorisationToken
}

// ControlFreeHandle signals a handle is no longer needed. Reserved: treated
// as a no-op by the control driver.
type ControlFreeHandle struct {
	Handle resource.Handle
	Kind   resource.Kind
}

// ReconciliationSendFingerprint carries the sender's fingerprint for range,
// addressed by the AOI handle pair it was computed under.
//
// IsFinalReplyForRange is the range this message is the last word on, or nil
// when it is not a final reply — modeled as a typed pointer rather than a
// bool-plus-separate-range so the "which range" information a final reply
// always carries in practice is never silently dropped.
type ReconciliationSendFingerprint struct {
	Range                 area.ThreeDRange
	Fingerprint           fingerprint.Fingerprint
	SenderHandle          resource.Handle
	ReceiverHandle        resource.Handle
	IsFinalReplyForRange  *area.ThreeDRange
}

// ReconciliationAnnounceEntries precedes a run of ReconciliationSendEntry
// messages, announcing how many entries the sender is about to send for
// range and whether it expects an answering announcement in return.
type ReconciliationAnnounceEntries struct {
	Range                area.ThreeDRange
	Count                uint64
	WantResponse         bool
	WillSort             bool
	SenderHandle         resource.Handle
	ReceiverHandle       resource.Handle
	IsFinalReplyForRange *area.ThreeDRange
}

// ReconciliationSendEntry transfers one entry plus the authorisation needed
// to ingest it: a handle to the previously-bound static (capability) token
// and the dynamic (signature) token carried inline.
type ReconciliationSendEntry struct {
	Entry             LengthyEntry
	StaticTokenHandle resource.Handle
	DynamicToken      meadowkey.UserSignature
}
