package entry

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(t *testing.T, _ byte, path Path, ts uint64, payload string) Entry {
	t.Helper()
	digest, err := NewPayloadDigest(sha256Sum(payload))
	require.NoError(t, err)
	return Entry{
		Path:          path,
		Timestamp:     ts,
		PayloadLength: uint64(len(payload)),
		PayloadDigest: digest,
	}
}

func sha256Sum(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := testEntry(t, 0, Path{[]byte("a"), []byte("b")}, 10, "payload")

	decoded, err := Decode(e.Encode())
	require.NoError(t, err)

	assert.Equal(t, e.NamespaceID, decoded.NamespaceID)
	assert.Equal(t, e.SubspaceID, decoded.SubspaceID)
	assert.True(t, e.Path.Equal(decoded.Path))
	assert.Equal(t, e.Timestamp, decoded.Timestamp)
	assert.Equal(t, e.PayloadLength, decoded.PayloadLength)
	assert.True(t, e.PayloadDigest.Equals(decoded.PayloadDigest.Cid))
}

func TestWinsByTimestamp(t *testing.T) {
	older := testEntry(t, 0, Path{[]byte("a")}, 10, "x")
	newer := testEntry(t, 0, Path{[]byte("a")}, 20, "x")
	assert.True(t, newer.Wins(older))
	assert.False(t, older.Wins(newer))
}

func TestWinsByDigestOnTimestampTie(t *testing.T) {
	e1 := testEntry(t, 0, Path{[]byte("a")}, 10, "aaa")
	e2 := testEntry(t, 0, Path{[]byte("a")}, 10, "zzz")

	if e1.PayloadDigest.Bytes()[0] > e2.PayloadDigest.Bytes()[0] {
		e1, e2 = e2, e1
	}
	assert.True(t, e2.Wins(e1))
}

func TestWinsByLengthOnFinalTie(t *testing.T) {
	// Construct two entries sharing a timestamp and digest but differing
	// in declared payload length (the only remaining tiebreaker).
	digest, err := NewPayloadDigest(sha256Sum("same"))
	require.NoError(t, err)
	short := Entry{Path: Path{[]byte("a")}, Timestamp: 1, PayloadLength: 4, PayloadDigest: digest}
	long := Entry{Path: Path{[]byte("a")}, Timestamp: 1, PayloadLength: 10, PayloadDigest: digest}
	assert.True(t, long.Wins(short))
}

func TestSameSubspacePath(t *testing.T) {
	e1 := testEntry(t, 0, Path{[]byte("a"), []byte("b")}, 1, "x")
	e2 := testEntry(t, 0, Path{[]byte("a"), []byte("b")}, 2, "y")
	e3 := testEntry(t, 0, Path{[]byte("a"), []byte("c")}, 2, "y")

	assert.True(t, e1.SameSubspacePath(e2))
	assert.False(t, e1.SameSubspacePath(e3))
}

func TestPathHasPrefix(t *testing.T) {
	p := Path{[]byte("a"), []byte("b"), []byte("c")}
	assert.True(t, p.HasPrefix(Path{[]byte("a"), []byte("b")}))
	assert.False(t, p.HasPrefix(Path{[]byte("a"), []byte("x")}))
	assert.False(t, p.HasPrefix(Path{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}))
}

func TestLessOrdersByPathWhenSubspaceMatches(t *testing.T) {
	a := testEntry(t, 0, Path{[]byte("a")}, 1, "x")
	b := testEntry(t, 0, Path{[]byte("b")}, 1, "x")
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
}
