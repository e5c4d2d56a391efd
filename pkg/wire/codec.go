package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/meadowlark-sync/willow/errors"
	"github.com/meadowlark-sync/willow/pkg/meadowcap"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
	"github.com/meadowlark-sync/willow/pkg/resource"
)

// maxFrameSize bounds a single decoded frame to guard against a malicious
// or corrupt length prefix requesting an unbounded allocation.
const maxFrameSize = 16 << 20

// ErrFrameTooLarge is returned by Decode when a frame's declared length
// exceeds maxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// ErrUnknownKind is returned by Decode when a frame's kind byte does not
// match any known message variant.
var ErrUnknownKind = errors.New("unknown message kind")

var cborMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// wireSetupBindReadCapability shadows SetupBindReadCapability: Capability is
// an interface, so it travels as its own pre-encoded CBOR bytes rather than
// a field CBOR can marshal directly.
type wireSetupBindReadCapability struct {
	Capability         []byte
	IntersectionHandle resource.Handle
	Signature          meadowkey.UserSignature
}

// wireSetupBindStaticToken shadows SetupBindStaticToken.
type wireSetupBindStaticToken struct {
	StaticToken []byte
}

// Encode serialises msg (one of the wire.* message structs) into a
// length-prefixed CBOR frame: a Kind byte, a big-endian uint32 payload
// length, then the CBOR payload itself.
func Encode(kind Kind, msg any) ([]byte, error) {
	payload, err := marshalPayload(kind, msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal wire message payload")
	}

	frame := make([]byte, 1+4+len(payload))
	frame[0] = byte(kind)
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(payload)))
	copy(frame[5:], payload)
	return frame, nil
}

func marshalPayload(kind Kind, msg any) ([]byte, error) {
	switch kind {
	case KindSetupBindReadCapability:
		m, ok := msg.(SetupBindReadCapability)
		if !ok {
			return nil, errors.Newf("expected SetupBindReadCapability, got %T", msg)
		}
		capBytes, err := meadowcap.MarshalCapability(m.Capability)
		if err != nil {
			return nil, err
		}
		return cborMode.Marshal(wireSetupBindReadCapability{
			Capability:         capBytes,
			IntersectionHandle: m.IntersectionHandle,
			Signature:          m.Signature,
		})
	case KindSetupBindStaticToken:
		m, ok := msg.(SetupBindStaticToken)
		if !ok {
			return nil, errors.Newf("expected SetupBindStaticToken, got %T", msg)
		}
		tokenBytes, err := meadowcap.MarshalToken(m.StaticToken)
		if err != nil {
			return nil, err
		}
		return cborMode.Marshal(wireSetupBindStaticToken{StaticToken: tokenBytes})
	default:
		return cborMode.Marshal(msg)
	}
}

// Decode reads one length-prefixed frame from r and returns its Kind plus
// the decoded message as `any` (a concrete wire.* struct the caller type
// asserts on Kind).
func Decode(r io.Reader) (Kind, any, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, errors.Wrap(err, "failed to read frame header")
	}
	kind := Kind(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxFrameSize {
		return 0, nil, errors.WithStack(ErrFrameTooLarge)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, errors.Wrap(err, "failed to read frame payload")
	}

	msg, err := unmarshalPayload(kind, payload)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to unmarshal wire message payload")
	}
	return kind, msg, nil
}

// DecodeFrame decodes a single complete frame already held in memory, as
// delivered whole by one pkg/channel.Channel.Recv — the channel transport
// never splits or concatenates frames, so there is always exactly one here.
func DecodeFrame(frame []byte) (Kind, any, error) {
	kind, msg, err := Decode(bytes.NewReader(frame))
	if err != nil {
		return 0, nil, err
	}
	return kind, msg, nil
}

func unmarshalPayload(kind Kind, payload []byte) (any, error) {
	switch kind {
	case KindCommitmentReveal:
		var m CommitmentReveal
		err := cbor.Unmarshal(payload, &m)
		return m, err
	case KindSetupBindReadCapability:
		var w wireSetupBindReadCapability
		if err := cbor.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		cap, err := meadowcap.UnmarshalCapability(w.Capability)
		if err != nil {
			return nil, err
		}
		return SetupBindReadCapability{
			Capability:         cap,
			IntersectionHandle: w.IntersectionHandle,
			Signature:          w.Signature,
		}, nil
	case KindSetupBindAreaOfInterest:
		var m SetupBindAreaOfInterest
		err := cbor.Unmarshal(payload, &m)
		return m, err
	case KindSetupBindStaticToken:
		var w wireSetupBindStaticToken
		if err := cbor.Unmarshal(payload, &w); err != nil {
			return nil, err
		}
		token, err := meadowcap.UnmarshalToken(w.StaticToken)
		if err != nil {
			return nil, err
		}
		return SetupBindStaticToken{StaticToken: token}, nil
	case KindControlFreeHandle:
		var m ControlFreeHandle
		err := cbor.Unmarshal(payload, &m)
		return m, err
	case KindReconciliationSendFingerprint:
		var m ReconciliationSendFingerprint
		err := cbor.Unmarshal(payload, &m)
		return m, err
	case KindReconciliationAnnounceEntries:
		var m ReconciliationAnnounceEntries
		err := cbor.Unmarshal(payload, &m)
		return m, err
	case KindReconciliationSendEntry:
		var m ReconciliationSendEntry
		err := cbor.Unmarshal(payload, &m)
		return m, err
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "kind byte %d", kind)
	}
}
