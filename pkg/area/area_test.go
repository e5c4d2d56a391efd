package area

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meadowlark-sync/willow/pkg/entry"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

func mkEntry(subspace meadowkey.SubspaceId, path entry.Path, ts uint64) entry.Entry {
	return entry.Entry{SubspaceID: subspace, Path: path, Timestamp: ts}
}

func TestFullIncludesAnything(t *testing.T) {
	full := Full()
	e := mkEntry(meadowkey.SubspaceId{1}, entry.Path{[]byte("x")}, 100)
	assert.True(t, full.IncludesEntry(e))
}

func TestSubspaceAreaRejectsOtherSubspace(t *testing.T) {
	u1 := meadowkey.SubspaceId{1}
	u2 := meadowkey.SubspaceId{2}
	a := Subspace(u1)

	assert.True(t, a.IncludesEntry(mkEntry(u1, entry.Path{}, 1)))
	assert.False(t, a.IncludesEntry(mkEntry(u2, entry.Path{}, 1)))
}

func TestIncludesAreaSubset(t *testing.T) {
	u1 := meadowkey.SubspaceId{1}
	outer := Subspace(u1)
	inner := Area{Subspace: u1, PathPrefix: entry.Path{[]byte("a")}, Times: TimeRange{0, 10}}

	assert.True(t, outer.IncludesArea(inner))
	assert.False(t, inner.IncludesArea(outer))
}

func TestIntersectionDisjointSubspace(t *testing.T) {
	u1 := meadowkey.SubspaceId{1}
	u2 := meadowkey.SubspaceId{2}
	a := Subspace(u1)
	b := Subspace(u2)

	_, ok := a.Intersection(b)
	assert.False(t, ok)
}

func TestIntersectionAnySubspaceWithSpecific(t *testing.T) {
	u1 := meadowkey.SubspaceId{1}
	a := Full()
	b := Subspace(u1)

	got, ok := a.Intersection(b)
	require.True(t, ok)
	assert.False(t, got.AnySubspace)
	assert.Equal(t, u1, got.Subspace)
}

func TestIntersectionDisjointPathPrefix(t *testing.T) {
	a := Area{AnySubspace: true, PathPrefix: entry.Path{[]byte("a")}, Times: TimeRange{0, TimeEnd}}
	b := Area{AnySubspace: true, PathPrefix: entry.Path{[]byte("b")}, Times: TimeRange{0, TimeEnd}}

	_, ok := a.Intersection(b)
	assert.False(t, ok)
}

func TestIntersectionNestedPathPrefix(t *testing.T) {
	a := Area{AnySubspace: true, PathPrefix: entry.Path{[]byte("a")}, Times: TimeRange{0, TimeEnd}}
	b := Area{AnySubspace: true, PathPrefix: entry.Path{[]byte("a"), []byte("b")}, Times: TimeRange{0, TimeEnd}}

	got, ok := a.Intersection(b)
	require.True(t, ok)
	assert.True(t, got.PathPrefix.Equal(b.PathPrefix))
}

func TestIntersectionTimeRange(t *testing.T) {
	a := Area{AnySubspace: true, Times: TimeRange{0, 100}}
	b := Area{AnySubspace: true, Times: TimeRange{50, 200}}

	got, ok := a.Intersection(b)
	require.True(t, ok)
	assert.Equal(t, TimeRange{50, 100}, got.Times)
}

func TestIntersectionDisjointTimeRange(t *testing.T) {
	a := Area{AnySubspace: true, Times: TimeRange{0, 10}}
	b := Area{AnySubspace: true, Times: TimeRange{20, 30}}

	_, ok := a.Intersection(b)
	assert.False(t, ok)
}

func TestIntoRangeIncludes(t *testing.T) {
	u1 := meadowkey.SubspaceId{1}
	r := Subspace(u1).IntoRange()
	assert.True(t, r.Includes(mkEntry(u1, entry.Path{}, 5)))
}
