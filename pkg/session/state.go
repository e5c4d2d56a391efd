package session

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/meadowlark-sync/willow/errors"
	"github.com/meadowlark-sync/willow/pkg/area"
	"github.com/meadowlark-sync/willow/pkg/meadowcap"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
	"github.com/meadowlark-sync/willow/pkg/resource"
	"github.com/meadowlark-sync/willow/pkg/wire"
)

// Role distinguishes which end of the pairwise handshake a session plays.
// The two roles are symmetric in every respect except who speaks first in
// the commitment scheme and, as a tie-break, who initiates reconciliation
// over a freshly-paired area of interest (§4.G).
type Role int

const (
	RoleAlfie Role = iota // initiates the connection
	RoleBetty             // accepts the connection
)

// AOIPair is a pairing of our area-of-interest handle with the peer's,
// formed once both sides have bound an AOI whose granted areas overlap.
type AOIPair struct {
	Ours   resource.Handle
	Theirs resource.Handle
}

// State is the per-session bookkeeping described in §4.G: the resource
// tables each side binds into, the commitment/reveal sub-state, and the
// pending-range/pending-entry counters the reconciliation driver consults
// to know when a range exchange or an announced run of entries is done.
//
// All resource tables key on a marshaled-bytes string rather than the
// domain value itself: Capability is an interface whose concrete types
// carry a Delegations slice, and AreaOfInterest carries a path-component
// slice, so neither is safe as a Go map key or comparable generic argument
// (resource.Map requires the stored value itself be comparable;
// resource.KeyedMap decouples the dedup key from the stored value for
// exactly this case).
type State struct {
	// mu guards every field below except the resource tables, which are
	// independently mutex-guarded inside resource.KeyedMap. Unlike the
	// single-threaded cooperative scheduler spec.md describes, the control
	// and reconciliation drivers here run as two goroutines (see
	// driver.go), so the bookkeeping a cooperative scheduler would leave
	// unsynchronised needs its own lock.
	mu sync.Mutex

	role Role

	ourNonce        wire.Nonce
	ourRevealed     bool
	theirCommitment wire.Commitment
	theirRevealed   bool
	theirNonce      wire.Nonce

	ourCapabilities   *resource.KeyedMap[string, meadowcap.Capability]
	theirCapabilities *resource.KeyedMap[string, meadowcap.Capability]

	ourAOIs   *resource.KeyedMap[string, wire.AreaOfInterest]
	theirAOIs *resource.KeyedMap[string, wire.AreaOfInterest]

	ourStaticTokens   *resource.KeyedMap[string, meadowcap.AuthorisationToken]
	theirStaticTokens *resource.KeyedMap[string, meadowcap.AuthorisationToken]

	// aoiCapability/theirAOICapability remember which capability handle
	// authorised each AOI handle, ours and theirs respectively, so
	// RangeIsAuthorised (§4.G range_is_authorised) can check containment
	// without threading the capability through every call site.
	aoiCapability      map[resource.Handle]resource.Handle
	theirAOICapability map[resource.Handle]resource.Handle

	// pairs records AOI pairs formed as both sides' bindings arrived, in
	// the order they were formed; the reconciliation driver consumes these
	// FIFO to decide what to reconcile next (§4.H). A single outstanding
	// pair per session covers every scenario in practice; nothing prevents
	// more being queued.
	pairs []AOIPair

	// pairedOurs/pairedTheirs prevent the same AOI handle from being paired
	// a second time once it has already started a reconciliation.
	pairedOurs   map[resource.Handle]bool
	pairedTheirs map[resource.Handle]bool

	// pendingRanges tracks every range exchange we are still waiting on a
	// final reply for, keyed by (AOI pair, range): a mismatched range can
	// split into several subranges reconciled concurrently under the same
	// pair, so a single handle is not a fine-grained enough key.
	pendingRanges map[string]struct{}

	// pendingEntries counts down the entries still expected for the
	// announce-entries run currently in flight on our side, if any.
	pendingEntries *uint64

	// pairReady is signalled (non-blocking, best-effort) whenever a new AOI
	// pair is queued, waking a reconciliation driver blocked waiting for
	// either a channel message or new pairing work (§5's
	// Yield::StartReconciliation).
	pairReady chan struct{}
}

// NewState creates session bookkeeping for a freshly-opened session. Our
// commitment scheme nonce is generated immediately so CommitmentReveal can
// be sent as the very first Control message; theirCommitment is whatever
// was learned out of band during connection setup (out of scope here, see
// SPEC_FULL.md).
func NewState(role Role, theirCommitment wire.Commitment) (*State, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	return NewStateWithNonce(role, nonce, theirCommitment), nil
}

// NewStateWithNonce is NewState with the caller supplying ourNonce instead
// of generating one. Connection setup (see pkg/transport) needs to
// announce our commitment to the peer before the session proper starts, so
// it must pick the nonce itself, ahead of constructing this State, in
// order to compute Commitment(nonce) for that announcement and still have
// CommitmentReveal later reveal the very same nonce.
func NewStateWithNonce(role Role, nonce wire.Nonce, theirCommitment wire.Commitment) *State {
	return &State{
		role:              role,
		ourNonce:          nonce,
		theirCommitment:   theirCommitment,
		ourCapabilities:   resource.NewKeyedMap[string, meadowcap.Capability](resource.KindCapability),
		theirCapabilities: resource.NewKeyedMap[string, meadowcap.Capability](resource.KindCapability),
		ourAOIs:           resource.NewKeyedMap[string, wire.AreaOfInterest](resource.KindAreaOfInterest),
		theirAOIs:         resource.NewKeyedMap[string, wire.AreaOfInterest](resource.KindAreaOfInterest),
		ourStaticTokens:   resource.NewKeyedMap[string, meadowcap.AuthorisationToken](resource.KindStaticToken),
		theirStaticTokens: resource.NewKeyedMap[string, meadowcap.AuthorisationToken](resource.KindStaticToken),
		aoiCapability:      make(map[resource.Handle]resource.Handle),
		theirAOICapability: make(map[resource.Handle]resource.Handle),
		pendingRanges:      make(map[string]struct{}),
		pairedOurs:         make(map[resource.Handle]bool),
		pairedTheirs:       make(map[resource.Handle]bool),
		pairReady:          make(chan struct{}, 1),
	}
}

// PairReady returns the channel signalled whenever a new AOI pair becomes
// available via NextPair.
func (s *State) PairReady() <-chan struct{} {
	return s.pairReady
}

func (s *State) notifyPairReady() {
	select {
	case s.pairReady <- struct{}{}:
	default:
	}
}

// Role reports which handshake role this state was created with.
func (s *State) Role() Role { return s.role }

// OurNonce returns the nonce this side committed to.
func (s *State) OurNonce() wire.Nonce { return s.ourNonce }

// CommitmentReveal builds the CommitmentReveal message this side sends,
// and marks our nonce as revealed. Returns ErrAlreadyRevealed if called
// twice.
func (s *State) CommitmentReveal() (wire.CommitmentReveal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ourRevealed {
		return wire.CommitmentReveal{}, errors.WithStack(ErrAlreadyRevealed)
	}
	s.ourRevealed = true
	return wire.CommitmentReveal{Nonce: s.ourNonce}, nil
}

// OnCommitmentReveal validates the peer's revealed nonce against the
// commitment it announced during connection setup and records their nonce.
func (s *State) OnCommitmentReveal(msg wire.CommitmentReveal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.theirRevealed {
		return errors.WithStack(ErrAlreadyReceivedReveal)
	}
	if Commitment(msg.Nonce) != s.theirCommitment {
		return errors.WithStack(ErrCommitmentMismatch)
	}
	s.theirRevealed = true
	s.theirNonce = msg.Nonce
	return nil
}

// capabilityKey is the dedup key for a capability: its canonical CBOR
// encoding. Two capabilities that encode identically are, by construction,
// the same grant.
func capabilityKey(c meadowcap.Capability) (string, error) {
	b, err := meadowcap.MarshalCapability(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func staticTokenKey(t meadowcap.AuthorisationToken) (string, error) {
	b, err := meadowcap.MarshalToken(t)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// aoiKey is the dedup key for an area of interest: a length-prefixed
// encoding of every field, mirroring entry.Entry.Encode's approach to
// giving a slice-bearing struct a stable comparable byte key.
func aoiKey(aoi wire.AreaOfInterest) string {
	var buf []byte
	appendBool := func(b bool) {
		if b {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	}
	appendUint64 := func(v uint64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}

	appendBool(aoi.Area.AnySubspace)
	buf = append(buf, aoi.Area.Subspace[:]...)

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(aoi.Area.PathPrefix)))
	buf = append(buf, countBuf[:]...)
	for _, component := range aoi.Area.PathPrefix {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(component)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, component...)
	}

	appendUint64(aoi.Area.Times.Start)
	appendUint64(aoi.Area.Times.End)
	appendUint64(aoi.MaxCount)
	appendUint64(aoi.MaxSize)

	return string(buf)
}

// BindAndSignCapability binds capability into our table (reusing its handle
// if it is already bound) and signs intersectionHandle with secretKey, proving to the
// peer that we hold the capability's matching secret (§4.G
// bind_and_sign_capability). Returns the SetupBindReadCapability message to
// send and the handle we bound it under.
func BindAndSignCapability(s *State, secretKey meadowkey.UserSecretKey, intersectionHandle resource.Handle, capability meadowcap.Capability) (wire.SetupBindReadCapability, resource.Handle, error) {
	if err := meadowcap.Validate(capability); err != nil {
		return wire.SetupBindReadCapability{}, resource.Handle{}, err
	}
	key, err := capabilityKey(capability)
	if err != nil {
		return wire.SetupBindReadCapability{}, resource.Handle{}, err
	}
	handle, _ := s.ourCapabilities.BindIfNew(key, capability)

	var handleBytes [8]byte
	binary.BigEndian.PutUint64(handleBytes[:], intersectionHandle.Value)
	sig := secretKey.Sign(handleBytes[:])

	return wire.SetupBindReadCapability{
		Capability:         capability,
		IntersectionHandle: intersectionHandle,
		Signature:          sig,
	}, handle, nil
}

// OnSetupBindReadCapability validates and binds a capability the peer
// announced into their table.
func (s *State) OnSetupBindReadCapability(msg wire.SetupBindReadCapability) (resource.Handle, error) {
	if err := meadowcap.Validate(msg.Capability); err != nil {
		return resource.Handle{}, err
	}
	var handleBytes [8]byte
	binary.BigEndian.PutUint64(handleBytes[:], msg.IntersectionHandle.Value)
	if err := msg.Capability.Receiver().Verify(handleBytes[:], msg.Signature); err != nil {
		return resource.Handle{}, errors.Wrap(err, "capability signature does not verify over intersection handle")
	}

	key, err := capabilityKey(msg.Capability)
	if err != nil {
		return resource.Handle{}, err
	}
	handle, _ := s.theirCapabilities.BindIfNew(key, msg.Capability)
	return handle, nil
}

// OnSetupBindStaticToken records a static authorisation token the peer
// bound, for later reference by handle in ReconciliationSendEntry.
func (s *State) OnSetupBindStaticToken(msg wire.SetupBindStaticToken) (resource.Handle, error) {
	key, err := staticTokenKey(msg.StaticToken)
	if err != nil {
		return resource.Handle{}, err
	}
	handle, _ := s.theirStaticTokens.BindIfNew(key, msg.StaticToken)
	return handle, nil
}

// BindOurStaticToken interns token into our own table (idempotent), for
// use as the StaticTokenHandle of a ReconciliationSendEntry we are about
// to emit. Returns isNew so the caller knows whether a SetupBindStaticToken
// must be sent first.
func (s *State) BindOurStaticToken(token meadowcap.AuthorisationToken) (resource.Handle, bool, error) {
	key, err := staticTokenKey(token)
	if err != nil {
		return resource.Handle{}, false, err
	}
	handle, isNew := s.ourStaticTokens.BindIfNew(key, token)
	return handle, isNew, nil
}

// BindOurAreaOfInterest interns our own area of interest, recording which
// capability handle authorises it, and returns the SetupBindAreaOfInterest
// message to send plus any newly-formed pairing with a matching AOI the
// peer already bound.
func (s *State) BindOurAreaOfInterest(aoi wire.AreaOfInterest, authorisationRef resource.Handle) (wire.SetupBindAreaOfInterest, resource.Handle, *AOIPair) {
	key := aoiKey(aoi)
	handle, isNew := s.ourAOIs.BindIfNew(key, aoi)

	s.mu.Lock()
	if isNew {
		s.aoiCapability[handle] = authorisationRef
	}
	s.mu.Unlock()

	msg := wire.SetupBindAreaOfInterest{AreaOfInterest: aoi, AuthorisationRef: authorisationRef}

	pair := s.tryPairWithTheirAOIs(handle, aoi)
	return msg, handle, pair
}

// OnSetupBindAreaOfInterest binds an area of interest the peer announced
// and checks it against the capability it cites, returning any pairing
// formed with an AOI we have already bound ourselves.
func (s *State) OnSetupBindAreaOfInterest(msg wire.SetupBindAreaOfInterest) (resource.Handle, *AOIPair, error) {
	capability, err := s.theirCapabilities.TryGet(msg.AuthorisationRef)
	if err != nil {
		return resource.Handle{}, nil, err
	}
	if !capability.GrantedArea().IncludesArea(msg.AreaOfInterest.Area) {
		return resource.Handle{}, nil, errors.WithStack(ErrAreaOfInterestDoesNotOverlap)
	}

	key := aoiKey(msg.AreaOfInterest)
	handle, isNew := s.theirAOIs.BindIfNew(key, msg.AreaOfInterest)

	s.mu.Lock()
	if isNew {
		s.theirAOICapability[handle] = msg.AuthorisationRef
	}
	s.mu.Unlock()

	pair := s.tryPairWithOurAOIs(handle, msg.AreaOfInterest)
	return handle, pair, nil
}

// tryPairWithTheirAOIs looks for an AOI the peer already bound whose area
// overlaps ours, forming at most one new pair per call (§4.G: pairing is a
// one-shot event the first time both halves exist, not re-checked
// afterward).
func (s *State) tryPairWithTheirAOIs(ourHandle resource.Handle, ours wire.AreaOfInterest) *AOIPair {
	s.mu.Lock()
	if s.pairedOurs[ourHandle] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var found *resource.Handle
	s.theirAOIs.Range(func(h resource.Handle, theirs wire.AreaOfInterest) bool {
		s.mu.Lock()
		paired := s.pairedTheirs[h]
		s.mu.Unlock()
		if paired {
			return true
		}
		if _, ok := ours.Area.Intersection(theirs.Area); ok {
			handle := h
			found = &handle
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pairedOurs[ourHandle] || s.pairedTheirs[*found] {
		return nil
	}
	pair := AOIPair{Ours: ourHandle, Theirs: *found}
	s.pairedOurs[ourHandle] = true
	s.pairedTheirs[*found] = true
	s.pairs = append(s.pairs, pair)
	s.notifyPairReady()
	return &pair
}

func (s *State) tryPairWithOurAOIs(theirHandle resource.Handle, theirs wire.AreaOfInterest) *AOIPair {
	s.mu.Lock()
	if s.pairedTheirs[theirHandle] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	var found *resource.Handle
	s.ourAOIs.Range(func(h resource.Handle, ours wire.AreaOfInterest) bool {
		s.mu.Lock()
		paired := s.pairedOurs[h]
		s.mu.Unlock()
		if paired {
			return true
		}
		if _, ok := ours.Area.Intersection(theirs.Area); ok {
			handle := h
			found = &handle
			return false
		}
		return true
	})
	if found == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pairedTheirs[theirHandle] || s.pairedOurs[*found] {
		return nil
	}
	pair := AOIPair{Ours: *found, Theirs: theirHandle}
	s.pairedOurs[*found] = true
	s.pairedTheirs[theirHandle] = true
	s.pairs = append(s.pairs, pair)
	s.notifyPairReady()
	return &pair
}

// NextPair pops the next formed AOI pair the reconciliation driver should
// start working on, in FIFO order.
func (s *State) NextPair() (AOIPair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pairs) == 0 {
		return AOIPair{}, false
	}
	pair := s.pairs[0]
	s.pairs = s.pairs[1:]
	return pair, true
}

// rangeKey is the dedup key for one in-flight range exchange within an AOI
// pair: the pair's two handles plus the range's content, encoded the same
// way aoiKey encodes an Area.
func rangeKey(pair AOIPair, r area.ThreeDRange) string {
	var buf []byte
	appendUint64 := func(v uint64) {
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], v)
		buf = append(buf, b[:]...)
	}
	appendUint64(pair.Ours.Value)
	appendUint64(pair.Theirs.Value)

	if r.AnySubspace {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, r.Subspace[:]...)

	var countBuf [4]byte
	binary.BigEndian.PutUint32(countBuf[:], uint32(len(r.PathPrefix)))
	buf = append(buf, countBuf[:]...)
	for _, component := range r.PathPrefix {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(component)))
		buf = append(buf, lenBuf[:]...)
		buf = append(buf, component...)
	}

	appendUint64(r.Times.Start)
	appendUint64(r.Times.End)

	return string(buf)
}

// RememberPendingRange records that we are waiting on a final reply for r
// within pair, so a later IsFinalReplyForRange can be matched back to it.
func (s *State) RememberPendingRange(pair AOIPair, r area.ThreeDRange) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingRanges[rangeKey(pair, r)] = struct{}{}
}

// ClearPendingRangeIfSome removes the pending entry for r within pair, if
// any, reporting whether one was found (§4.G clear_pending_range_if_some).
func (s *State) ClearPendingRangeIfSome(pair AOIPair, r area.ThreeDRange) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rangeKey(pair, r)
	if _, ok := s.pendingRanges[key]; ok {
		delete(s.pendingRanges, key)
		return true
	}
	return false
}

// StartPendingEntries records how many ReconciliationSendEntry messages we
// expect for the announce-entries run now in flight.
func (s *State) StartPendingEntries(count uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingEntries = &count
}

// PendingEntriesOpen reports whether an announce-entries run is currently
// in flight (§4.H: nested announcements are rejected).
func (s *State) PendingEntriesOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingEntries != nil
}

// OnSendEntry decrements the pending-entries counter by one (§4.G
// on_send_entry), returning the remaining count. ErrPendingEntriesNotPositive
// if no run is in flight or the counter has already reached zero.
func (s *State) OnSendEntry() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pendingEntries == nil || *s.pendingEntries == 0 {
		return 0, errors.WithStack(ErrPendingEntriesNotPositive)
	}
	*s.pendingEntries--
	remaining := *s.pendingEntries
	if remaining == 0 {
		s.pendingEntries = nil
	}
	return remaining, nil
}

// ReconciliationIsComplete reports whether every pending range and pending
// entry run has been accounted for (§4.G reconciliation_is_complete): the
// point at which each side's reconciliation driver closes its outbound
// Reconciliation half. Queued AOI pairs do not count.
func (s *State) ReconciliationIsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingRanges) == 0 && s.pendingEntries == nil
}

// RangeIsAuthorised implements §4.G range_is_authorised: both AOIs'
// capabilities must cover r and agree on the granted namespace.
func (s *State) RangeIsAuthorised(pair AOIPair, r area.Area) (meadowkey.NamespaceId, error) {
	s.mu.Lock()
	ourCapHandle, ok := s.aoiCapability[pair.Ours]
	s.mu.Unlock()
	if !ok {
		return meadowkey.NamespaceId{}, errors.WithStack(resource.ErrMissingResource)
	}
	s.mu.Lock()
	theirCapHandle, ok := s.theirAOICapability[pair.Theirs]
	s.mu.Unlock()
	if !ok {
		return meadowkey.NamespaceId{}, errors.WithStack(resource.ErrMissingResource)
	}

	ourCap, err := s.ourCapabilities.TryGet(ourCapHandle)
	if err != nil {
		return meadowkey.NamespaceId{}, err
	}
	theirCap, err := s.theirCapabilities.TryGet(theirCapHandle)
	if err != nil {
		return meadowkey.NamespaceId{}, err
	}

	if !ourCap.GrantedArea().IncludesArea(r) || !theirCap.GrantedArea().IncludesArea(r) {
		return meadowkey.NamespaceId{}, errors.WithStack(meadowcap.ErrUnauthorised)
	}
	if ourCap.GrantedNamespace() != theirCap.GrantedNamespace() {
		return meadowkey.NamespaceId{}, errors.WithStack(ErrNamespaceMismatch)
	}
	return ourCap.GrantedNamespace(), nil
}

// OurAreaOfInterest returns the bound AreaOfInterest for a handle we hold
// on our own side.
func (s *State) OurAreaOfInterest(handle resource.Handle) (wire.AreaOfInterest, error) {
	return s.ourAOIs.TryGet(handle)
}

// TheirAreaOfInterest returns the bound Area for an AOI handle the peer
// bound.
func (s *State) TheirAreaOfInterest(handle resource.Handle) (wire.AreaOfInterest, error) {
	return s.theirAOIs.TryGet(handle)
}

// WaitForTheirStaticToken blocks until the peer has bound handle as a
// static token (it may arrive on the Control channel after the
// ReconciliationSendEntry that references it), implementing the
// demand-driven wait over resource.KeyedMap's WaitFor.
func (s *State) WaitForTheirStaticToken(ctx context.Context, handle resource.Handle) (meadowcap.AuthorisationToken, error) {
	return s.theirStaticTokens.WaitFor(ctx, handle)
}
