// Control and reconciliation drivers (§4.H, §4.I): the two coroutines a
// real session runs concurrently over one State. spec.md models them as a
// single-threaded cooperative scheduler switching between two generators;
// here they run as ordinary goroutines over channel.Channel's blocking
// Send/Recv, coordinated through State's mutex and its pairReady signal
// instead of an explicit Yield enum.
package session

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/meadowlark-sync/willow/errors"
	"github.com/meadowlark-sync/willow/logger"
	"github.com/meadowlark-sync/willow/pkg/area"
	"github.com/meadowlark-sync/willow/pkg/channel"
	"github.com/meadowlark-sync/willow/pkg/meadowcap"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
	"github.com/meadowlark-sync/willow/pkg/resource"
	"github.com/meadowlark-sync/willow/pkg/store"
	"github.com/meadowlark-sync/willow/pkg/wire"
)

// SetupAreaOfInterest pairs an area of interest this side offers with the
// index, into Setup.Capabilities, of the capability that authorises it.
type SetupAreaOfInterest struct {
	AreaOfInterest wire.AreaOfInterest
	Capability     int
}

// Setup is what one side of a session brings to the table: the user key it
// signs capability bindings with, the capabilities it holds, and the areas
// of interest it wants to sync, each tied to the capability authorising it.
type Setup struct {
	SecretKey       meadowkey.UserSecretKey
	Capabilities    []meadowcap.Capability
	AreasOfInterest []SetupAreaOfInterest
}

// RunSession drives one side of a session to completion: the control driver
// performs the commitment handshake and announces setup's capabilities and
// areas of interest, while the reconciliation driver reconciles every AOI
// pair that forms as a result, on either side. Returns once both drivers
// have finished, or the first error either encounters.
func RunSession(ctx context.Context, s *State, chans channel.Session, st store.Store, cfg store.SyncConfig, setup Setup) error {
	sessionID := uuid.New().String()
	logger.Debugw("session starting", "session_id", sessionID, "role", s.Role())

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return RunControlDriver(ctx, s, chans, setup)
	})
	g.Go(func() error {
		err := RunReconciliationDriver(ctx, s, chans, st, cfg)
		// Our half of reconciliation is done; closing Control lets the
		// peer's control driver exit once it has drained what's buffered,
		// symmetric with the reconciliation driver closing its own half
		// below.
		chans.Control.Outbound.Close()
		return err
	})

	err := g.Wait()
	if err != nil {
		logger.Debugw("session ended", "session_id", sessionID, "error", err)
	} else {
		logger.Debugw("session ended", "session_id", sessionID)
	}
	return err
}

func sendFrame(ctx context.Context, ch *channel.Channel, kind wire.Kind, msg any) error {
	frame, err := wire.Encode(kind, msg)
	if err != nil {
		return err
	}
	return ch.Send(ctx, frame)
}

// RunControlDriver implements §4.I: reveal our commitment, bind and
// announce our capabilities and areas of interest, then service whatever
// the peer announces in turn until the Control channel closes.
func RunControlDriver(ctx context.Context, s *State, chans channel.Session, setup Setup) error {
	reveal, err := s.CommitmentReveal()
	if err != nil {
		return err
	}
	if err := sendFrame(ctx, chans.Control.Outbound, wire.KindCommitmentReveal, reveal); err != nil {
		return err
	}

	capHandles := make([]resource.Handle, len(setup.Capabilities))
	for i, capability := range setup.Capabilities {
		// The private area intersection handle is not implemented; every
		// capability is signed against the sentinel zero handle (§9 Open
		// Question, see DESIGN.md).
		msg, handle, err := BindAndSignCapability(s, setup.SecretKey, resource.Handle{}, capability)
		if err != nil {
			return err
		}
		capHandles[i] = handle
		if err := sendFrame(ctx, chans.Control.Outbound, wire.KindSetupBindReadCapability, msg); err != nil {
			return err
		}
	}

	for _, aoi := range setup.AreasOfInterest {
		authRef := capHandles[aoi.Capability]
		msg, _, _ := s.BindOurAreaOfInterest(aoi.AreaOfInterest, authRef)
		if err := sendFrame(ctx, chans.Control.Outbound, wire.KindSetupBindAreaOfInterest, msg); err != nil {
			return err
		}
	}

	for {
		frame, err := chans.Control.Inbound.Recv(ctx)
		if err != nil {
			if errors.Is(err, channel.ErrClosed) {
				return nil
			}
			return err
		}

		kind, msg, err := wire.DecodeFrame(frame)
		if err != nil {
			return err
		}

		switch kind {
		case wire.KindCommitmentReveal:
			if err := s.OnCommitmentReveal(msg.(wire.CommitmentReveal)); err != nil {
				return err
			}
		case wire.KindSetupBindReadCapability:
			if _, err := s.OnSetupBindReadCapability(msg.(wire.SetupBindReadCapability)); err != nil {
				return err
			}
		case wire.KindSetupBindStaticToken:
			if _, err := s.OnSetupBindStaticToken(msg.(wire.SetupBindStaticToken)); err != nil {
				return err
			}
		case wire.KindSetupBindAreaOfInterest:
			if _, _, err := s.OnSetupBindAreaOfInterest(msg.(wire.SetupBindAreaOfInterest)); err != nil {
				return err
			}
		case wire.KindControlFreeHandle:
			// Reserved: handle release is a no-op.
		default:
			return errors.WithStack(ErrUnsupportedMessage)
		}
	}
}

// RunReconciliationDriver implements §4.H. Alfie initiates reconciliation
// the moment a new AOI pair forms; both sides react identically to whatever
// arrives afterward, so a single function serves either role.
func RunReconciliationDriver(ctx context.Context, s *State, chans channel.Session, st store.Store, cfg store.SyncConfig) error {
	frames := make(chan []byte)
	recvDone := make(chan error, 1)

	go func() {
		for {
			frame, err := chans.Reconciliation.Inbound.Recv(ctx)
			if err != nil {
				recvDone <- err
				return
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	closeIfComplete := func() {
		if s.ReconciliationIsComplete() {
			chans.Reconciliation.Outbound.Close()
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-s.PairReady():
			if s.Role() != RoleAlfie {
				continue
			}
			for {
				pair, ok := s.NextPair()
				if !ok {
					break
				}
				if err := initiateReconciliation(ctx, s, chans, st, pair); err != nil {
					return err
				}
			}
			closeIfComplete()

		case err := <-recvDone:
			if errors.Is(err, channel.ErrClosed) {
				return nil
			}
			return err

		case frame := <-frames:
			kind, msg, err := wire.DecodeFrame(frame)
			if err != nil {
				return err
			}
			if err := handleReconciliationFrame(ctx, s, chans, st, cfg, kind, msg); err != nil {
				return err
			}
			closeIfComplete()
		}
	}
}

// initiateReconciliation starts reconciling a freshly-formed AOI pair:
// intersect the two granted areas, fingerprint the resulting range, and
// send it to the peer as the opening move.
func initiateReconciliation(ctx context.Context, s *State, chans channel.Session, st store.Store, pair AOIPair) error {
	ourAOI, err := s.OurAreaOfInterest(pair.Ours)
	if err != nil {
		return err
	}
	theirAOI, err := s.TheirAreaOfInterest(pair.Theirs)
	if err != nil {
		return err
	}

	intersection, ok := ourAOI.Area.Intersection(theirAOI.Area)
	if !ok {
		return errors.WithStack(ErrAreaOfInterestDoesNotOverlap)
	}

	namespace, err := s.RangeIsAuthorised(pair, intersection)
	if err != nil {
		return err
	}

	r := intersection.IntoRange()
	fp, err := st.Fingerprint(ctx, namespace, r)
	if err != nil {
		return err
	}

	s.RememberPendingRange(pair, r)
	msg := wire.ReconciliationSendFingerprint{
		Range:          r,
		Fingerprint:    fp,
		SenderHandle:   pair.Ours,
		ReceiverHandle: pair.Theirs,
	}
	return sendFrame(ctx, chans.Reconciliation.Outbound, wire.KindReconciliationSendFingerprint, msg)
}

func handleReconciliationFrame(ctx context.Context, s *State, chans channel.Session, st store.Store, cfg store.SyncConfig, kind wire.Kind, msg any) error {
	switch kind {
	case wire.KindReconciliationSendFingerprint:
		return handleSendFingerprint(ctx, s, chans, st, cfg, msg.(wire.ReconciliationSendFingerprint))
	case wire.KindReconciliationAnnounceEntries:
		return handleAnnounceEntries(ctx, s, chans, st, msg.(wire.ReconciliationAnnounceEntries))
	case wire.KindReconciliationSendEntry:
		return handleSendEntry(ctx, s, st, msg.(wire.ReconciliationSendEntry))
	default:
		return errors.WithStack(ErrUnsupportedMessage)
	}
}

// handleSendFingerprint is the heart of range-based set reconciliation
// (§4.H): equal fingerprints end the range with an empty announcement;
// an empty peer fingerprint against our non-empty range sends everything
// we have; anything else asks the store to split the range and recurses
// per subrange action.
func handleSendFingerprint(ctx context.Context, s *State, chans channel.Session, st store.Store, cfg store.SyncConfig, msg wire.ReconciliationSendFingerprint) error {
	pair := AOIPair{Ours: msg.ReceiverHandle, Theirs: msg.SenderHandle}
	if msg.IsFinalReplyForRange != nil {
		s.ClearPendingRangeIfSome(pair, *msg.IsFinalReplyForRange)
	}

	namespace, err := s.RangeIsAuthorised(pair, area.Area(msg.Range))
	if err != nil {
		return err
	}

	ourFP, err := st.Fingerprint(ctx, namespace, msg.Range)
	if err != nil {
		return err
	}

	switch {
	case ourFP == msg.Fingerprint:
		final := msg.Range
		announce := wire.ReconciliationAnnounceEntries{
			Range: msg.Range, Count: 0, WantResponse: false, WillSort: false,
			SenderHandle: pair.Ours, ReceiverHandle: pair.Theirs, IsFinalReplyForRange: &final,
		}
		return sendFrame(ctx, chans.Reconciliation.Outbound, wire.KindReconciliationAnnounceEntries, announce)

	case msg.Fingerprint.Empty() && !ourFP.Empty():
		final := msg.Range
		return announceAndSendEntries(ctx, s, chans, st, namespace, msg.Range, pair, &final, true)

	default:
		subranges, err := st.SplitRange(ctx, namespace, msg.Range, cfg)
		if err != nil {
			return err
		}
		for i, sub := range subranges {
			var final *area.ThreeDRange
			if i == len(subranges)-1 {
				r := msg.Range
				final = &r
			}
			switch sub.Action {
			case store.SplitSendEntries:
				if err := announceAndSendEntries(ctx, s, chans, st, namespace, sub.Range, pair, final, true); err != nil {
					return err
				}
			case store.SplitSendFingerprint:
				subFP, err := st.Fingerprint(ctx, namespace, sub.Range)
				if err != nil {
					return err
				}
				s.RememberPendingRange(pair, sub.Range)
				fmsg := wire.ReconciliationSendFingerprint{
					Range: sub.Range, Fingerprint: subFP,
					SenderHandle: pair.Ours, ReceiverHandle: pair.Theirs,
					IsFinalReplyForRange: final,
				}
				if err := sendFrame(ctx, chans.Reconciliation.Outbound, wire.KindReconciliationSendFingerprint, fmsg); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// handleAnnounceEntries validates authorisation for an incoming announced
// run, opens a pending-entries counter if any entries are promised, and
// answers in kind when the sender asked for a response (§4.H).
func handleAnnounceEntries(ctx context.Context, s *State, chans channel.Session, st store.Store, msg wire.ReconciliationAnnounceEntries) error {
	pair := AOIPair{Ours: msg.ReceiverHandle, Theirs: msg.SenderHandle}
	if msg.IsFinalReplyForRange != nil {
		s.ClearPendingRangeIfSome(pair, *msg.IsFinalReplyForRange)
	}

	namespace, err := s.RangeIsAuthorised(pair, area.Area(msg.Range))
	if err != nil {
		return err
	}

	if msg.Count > 0 {
		if s.PendingEntriesOpen() {
			return errors.WithStack(ErrInvalidMessageInCurrentState)
		}
		s.StartPendingEntries(msg.Count)
	}

	if msg.WantResponse {
		final := msg.Range
		return announceAndSendEntries(ctx, s, chans, st, namespace, msg.Range, pair, &final, false)
	}
	return nil
}

// handleSendEntry ingests one transferred entry, suspending on
// WaitForTheirStaticToken if its static half has not yet arrived on the
// Control channel (§4.E's demand-driven wait, poll_get_eventually).
func handleSendEntry(ctx context.Context, s *State, st store.Store, msg wire.ReconciliationSendEntry) error {
	token, err := s.WaitForTheirStaticToken(ctx, msg.StaticTokenHandle)
	if err != nil {
		return err
	}

	authToken := meadowcap.AuthorisationToken{Capability: token.Capability, Signature: msg.DynamicToken}
	ae, err := meadowcap.TryFromParts(msg.Entry.Entry, authToken)
	if err != nil {
		return err
	}

	if err := st.IngestEntry(ctx, ae.Entry.NamespaceID, ae); err != nil {
		return err
	}

	_, err = s.OnSendEntry()
	return err
}

// announceAndSendEntries announces a range's entry count, then streams the
// entries themselves, binding each one's static token (and announcing the
// binding on Control) the first time that token is sent. wantResponse asks
// the peer to announce its own matching range back (Case 2 and the
// SplitSendEntries sub-case of Case 3, per §4.H): the range stays pending
// on our side until that reply arrives, so it is remembered here exactly
// when wantResponse is set.
func announceAndSendEntries(ctx context.Context, s *State, chans channel.Session, st store.Store, namespace meadowkey.NamespaceId, r area.ThreeDRange, pair AOIPair, finalRange *area.ThreeDRange, wantResponse bool) error {
	count, err := st.Count(ctx, namespace, r)
	if err != nil {
		return err
	}
	if wantResponse {
		s.RememberPendingRange(pair, r)
	}
	announce := wire.ReconciliationAnnounceEntries{
		Range: r, Count: count, WantResponse: wantResponse, WillSort: false,
		SenderHandle: pair.Ours, ReceiverHandle: pair.Theirs, IsFinalReplyForRange: finalRange,
	}
	if err := sendFrame(ctx, chans.Reconciliation.Outbound, wire.KindReconciliationAnnounceEntries, announce); err != nil {
		return err
	}

	entries, err := st.GetEntriesWithAuthorisation(ctx, namespace, r)
	if err != nil {
		return err
	}
	for _, ae := range entries {
		handle, isNew, err := s.BindOurStaticToken(ae.Token)
		if err != nil {
			return err
		}
		if isNew {
			bind := wire.SetupBindStaticToken{StaticToken: ae.Token}
			if err := sendFrame(ctx, chans.Control.Outbound, wire.KindSetupBindStaticToken, bind); err != nil {
				return err
			}
		}

		entryMsg := wire.ReconciliationSendEntry{
			Entry:             wire.LengthyEntry{Entry: ae.Entry, Available: ae.Entry.PayloadLength},
			StaticTokenHandle: handle,
			DynamicToken:      ae.Token.Signature,
		}
		if err := sendFrame(ctx, chans.Reconciliation.Outbound, wire.KindReconciliationSendEntry, entryMsg); err != nil {
			return err
		}
	}
	return nil
}
