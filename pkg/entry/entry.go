// Package entry implements the canonical Entry record: the unit of data
// Willow reconciles. An Entry never carries its payload — only enough
// metadata (subspace, path, timestamp, length, content digest) to decide
// which of two conflicting entries wins and to let an out-of-band transfer
// fetch the payload by digest.
package entry

import (
	"bytes"
	"encoding/binary"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"github.com/meadowlark-sync/willow/errors"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

// Path is a sequence of path components (each an arbitrary byte string),
// matching Willow's path model of a list of components rather than a flat
// byte string — needed so prefix-based Area matching (pkg/area) can compare
// component-by-component instead of doing a byte-prefix match that could
// split a component in half.
type Path [][]byte

// Equal reports whether p and other have identical components.
func (p Path) Equal(other Path) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if !bytes.Equal(p[i], other[i]) {
			return false
		}
	}
	return true
}

// HasPrefix reports whether p starts with all of prefix's components.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if !bytes.Equal(p[i], prefix[i]) {
			return false
		}
	}
	return true
}

// PayloadDigest addresses an entry's payload content. Modeled as a CIDv1
// (raw codec, sha2-256 multihash) rather than a bare digest so the
// out-of-scope content-resolution collaborator can resolve/link it
// directly without a side conversion.
type PayloadDigest struct {
	cid.Cid
}

// NewPayloadDigest wraps a raw 32-byte sha2-256 digest as a CIDv1.
func NewPayloadDigest(sha256Digest []byte) (PayloadDigest, error) {
	mhash, err := mh.Encode(sha256Digest, mh.SHA2_256)
	if err != nil {
		return PayloadDigest{}, errors.Wrap(err, "failed to encode payload digest multihash")
	}
	return PayloadDigest{Cid: cid.NewCidV1(cid.Raw, mhash)}, nil
}

// DecodePayloadDigest parses the full CID-encoded byte form (as produced by
// PayloadDigest.Bytes(), the same representation Encode embeds) back into a
// PayloadDigest. Used where a digest is persisted or transmitted in its
// already-encoded CID form rather than as a raw sha2-256 digest.
func DecodePayloadDigest(cidBytes []byte) (PayloadDigest, error) {
	parsed, err := cid.Cast(cidBytes)
	if err != nil {
		return PayloadDigest{}, errors.Wrap(err, "failed to parse payload digest cid")
	}
	return PayloadDigest{Cid: parsed}, nil
}

// DecodePayloadDigestString parses a digest's multibase text form (as
// produced by PayloadDigest.String(), used for TEXT storage columns) back
// into a PayloadDigest.
func DecodePayloadDigestString(s string) (PayloadDigest, error) {
	parsed, err := cid.Decode(s)
	if err != nil {
		return PayloadDigest{}, errors.Wrap(err, "failed to parse payload digest cid string")
	}
	return PayloadDigest{Cid: parsed}, nil
}

// Entry is totally ordered by (subspace, path, timestamp, digest); see
// Less for the canonical comparator used to resolve conflicting writes.
type Entry struct {
	NamespaceID   meadowkey.NamespaceId
	SubspaceID    meadowkey.SubspaceId
	Path          Path
	Timestamp     uint64 // microseconds since Unix epoch
	PayloadLength uint64
	PayloadDigest PayloadDigest
}

// Less implements the canonical total order: (subspace, path, timestamp, digest).
func (e Entry) Less(other Entry) bool {
	if c := bytes.Compare(e.SubspaceID[:], other.SubspaceID[:]); c != 0 {
		return c < 0
	}
	if c := comparePaths(e.Path, other.Path); c != 0 {
		return c < 0
	}
	if e.Timestamp != other.Timestamp {
		return e.Timestamp < other.Timestamp
	}
	return bytes.Compare(e.PayloadDigest.Bytes(), other.PayloadDigest.Bytes()) < 0
}

func comparePaths(a, b Path) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := bytes.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// Wins reports whether e should be retained over other when both entries
// share the same (subspace, path): later timestamp wins, ties broken by
// larger digest, final ties by larger payload length. The loser is deleted.
func (e Entry) Wins(other Entry) bool {
	if e.Timestamp != other.Timestamp {
		return e.Timestamp > other.Timestamp
	}
	if c := bytes.Compare(e.PayloadDigest.Bytes(), other.PayloadDigest.Bytes()); c != 0 {
		return c > 0
	}
	return e.PayloadLength > other.PayloadLength
}

// SameSubspacePath reports whether e and other address the same
// (subspace, path) pair and are therefore in conflict.
func (e Entry) SameSubspacePath(other Entry) bool {
	return e.SubspaceID == other.SubspaceID && e.Path.Equal(other.Path)
}

// Encode produces the canonical byte encoding used as the signing input for
// an AuthorisationToken: fixed-length fields back to back, with the path
// length-prefixed component by component so no two distinct paths can ever
// encode to the same bytes.
func (e Entry) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(e.NamespaceID[:])
	buf.Write(e.SubspaceID[:])

	var pathCount [4]byte
	binary.BigEndian.PutUint32(pathCount[:], uint32(len(e.Path)))
	buf.Write(pathCount[:])
	for _, component := range e.Path {
		var compLen [4]byte
		binary.BigEndian.PutUint32(compLen[:], uint32(len(component)))
		buf.Write(compLen[:])
		buf.Write(component)
	}

	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], e.Timestamp)
	buf.Write(ts[:])

	var length [8]byte
	binary.BigEndian.PutUint64(length[:], e.PayloadLength)
	buf.Write(length[:])

	digestBytes := e.PayloadDigest.Bytes()
	var digestLen [4]byte
	binary.BigEndian.PutUint32(digestLen[:], uint32(len(digestBytes)))
	buf.Write(digestLen[:])
	buf.Write(digestBytes)

	return buf.Bytes()
}

// Decode parses the bytes produced by Encode back into an Entry.
func Decode(buf []byte) (Entry, error) {
	r := bytes.NewReader(buf)
	var e Entry

	if _, err := r.Read(e.NamespaceID[:]); err != nil {
		return Entry{}, errors.Wrap(err, "failed to decode namespace id")
	}
	if _, err := r.Read(e.SubspaceID[:]); err != nil {
		return Entry{}, errors.Wrap(err, "failed to decode subspace id")
	}

	var pathCount uint32
	if err := binary.Read(r, binary.BigEndian, &pathCount); err != nil {
		return Entry{}, errors.Wrap(err, "failed to decode path component count")
	}
	e.Path = make(Path, 0, pathCount)
	for i := uint32(0); i < pathCount; i++ {
		var compLen uint32
		if err := binary.Read(r, binary.BigEndian, &compLen); err != nil {
			return Entry{}, errors.Wrap(err, "failed to decode path component length")
		}
		component := make([]byte, compLen)
		if _, err := r.Read(component); err != nil {
			return Entry{}, errors.Wrap(err, "failed to decode path component")
		}
		e.Path = append(e.Path, component)
	}

	if err := binary.Read(r, binary.BigEndian, &e.Timestamp); err != nil {
		return Entry{}, errors.Wrap(err, "failed to decode timestamp")
	}
	if err := binary.Read(r, binary.BigEndian, &e.PayloadLength); err != nil {
		return Entry{}, errors.Wrap(err, "failed to decode payload length")
	}

	var digestLen uint32
	if err := binary.Read(r, binary.BigEndian, &digestLen); err != nil {
		return Entry{}, errors.Wrap(err, "failed to decode payload digest length")
	}
	digestBytes := make([]byte, digestLen)
	if _, err := r.Read(digestBytes); err != nil {
		return Entry{}, errors.Wrap(err, "failed to decode payload digest")
	}
	digest, err := DecodePayloadDigest(digestBytes)
	if err != nil {
		return Entry{}, err
	}
	e.PayloadDigest = digest

	return e, nil
}
