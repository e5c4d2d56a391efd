// Package area implements the geometric regions reconciliation operates
// over: a 3-axis Area (subspace, path prefix, time interval) and its
// half-open ThreeDRange projection.
package area

import (
	"math"

	"github.com/meadowlark-sync/willow/pkg/entry"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

// TimeEnd is the sentinel meaning "open end" for a time range/interval.
const TimeEnd = math.MaxUint64

// SubspaceAny is the sentinel subspace meaning "any subspace", distinct
// from any real UserPublicKey because it is the all-zero value and a real
// Ed25519 public key is never all zero in practice; Area.AnySubspace tracks
// this explicitly rather than relying on the sentinel value alone.
var SubspaceAny meadowkey.SubspaceId

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start uint64
	End   uint64 // TimeEnd for "open"
}

// Includes reports whether ts falls in [Start, End).
func (t TimeRange) Includes(ts uint64) bool {
	return ts >= t.Start && ts < t.End
}

// Intersect returns the overlap of t and other, or (zero, false) if disjoint.
func (t TimeRange) Intersect(other TimeRange) (TimeRange, bool) {
	start := t.Start
	if other.Start > start {
		start = other.Start
	}
	end := t.End
	if other.End < end {
		end = other.End
	}
	if start >= end {
		return TimeRange{}, false
	}
	return TimeRange{Start: start, End: end}, true
}

// Area is a 3-axis region: a subspace (single or any), a path prefix, and a
// time interval.
type Area struct {
	AnySubspace bool
	Subspace    meadowkey.SubspaceId // ignored if AnySubspace
	PathPrefix  entry.Path
	Times       TimeRange
}

// Full returns the area covering every subspace, every path, all time.
func Full() Area {
	return Area{
		AnySubspace: true,
		PathPrefix:  entry.Path{},
		Times:       TimeRange{Start: 0, End: TimeEnd},
	}
}

// Subspace returns the area covering exactly one subspace's entire path
// and time space.
func Subspace(id meadowkey.SubspaceId) Area {
	return Area{
		AnySubspace: false,
		Subspace:    id,
		PathPrefix:  entry.Path{},
		Times:       TimeRange{Start: 0, End: TimeEnd},
	}
}

// IncludesEntry reports whether e falls within a.
func (a Area) IncludesEntry(e entry.Entry) bool {
	if !a.AnySubspace && a.Subspace != e.SubspaceID {
		return false
	}
	if !e.Path.HasPrefix(a.PathPrefix) {
		return false
	}
	return a.Times.Includes(e.Timestamp)
}

// IncludesArea reports whether every entry matching other also matches a;
// i.e. other is a subset of a.
func (a Area) IncludesArea(other Area) bool {
	if !a.AnySubspace {
		if other.AnySubspace || a.Subspace != other.Subspace {
			return false
		}
	}
	if !other.PathPrefix.HasPrefix(a.PathPrefix) {
		return false
	}
	return a.Times.Start <= other.Times.Start && other.Times.End <= a.Times.End
}

// Intersection returns the component-wise intersection of a and other, or
// (zero, false) when any axis is disjoint.
func (a Area) Intersection(other Area) (Area, bool) {
	var anySubspace bool
	var subspace meadowkey.SubspaceId

	switch {
	case a.AnySubspace && other.AnySubspace:
		anySubspace = true
	case a.AnySubspace:
		subspace = other.Subspace
	case other.AnySubspace:
		subspace = a.Subspace
	default:
		if a.Subspace != other.Subspace {
			return Area{}, false
		}
		subspace = a.Subspace
	}

	prefix, ok := longestCommonExtension(a.PathPrefix, other.PathPrefix)
	if !ok {
		return Area{}, false
	}

	times, ok := a.Times.Intersect(other.Times)
	if !ok {
		return Area{}, false
	}

	return Area{
		AnySubspace: anySubspace,
		Subspace:    subspace,
		PathPrefix:  prefix,
		Times:       times,
	}, true
}

// longestCommonExtension returns whichever of p, q is the longer path,
// provided the shorter is a prefix of the longer (path prefixes intersect
// iff one extends the other); otherwise the two prefixes select disjoint
// entry sets.
func longestCommonExtension(p, q entry.Path) (entry.Path, bool) {
	if p.HasPrefix(q) {
		return p, true
	}
	if q.HasPrefix(p) {
		return q, true
	}
	return nil, false
}

// ThreeDRange is the half-open product of a subspace range, path range, and
// time range used during reconciliation.
type ThreeDRange struct {
	AnySubspace bool
	Subspace    meadowkey.SubspaceId
	PathPrefix  entry.Path
	Times       TimeRange
}

// IntoRange projects a onto its ThreeDRange. Path-prefix areas have no
// native range form, so the range carries the prefix and matching is done
// the same way IncludesEntry does it (prefix match, not byte-range match).
func (a Area) IntoRange() ThreeDRange {
	return ThreeDRange{
		AnySubspace: a.AnySubspace,
		Subspace:    a.Subspace,
		PathPrefix:  a.PathPrefix,
		Times:       a.Times,
	}
}

// Includes reports whether e falls within r.
func (r ThreeDRange) Includes(e entry.Entry) bool {
	return Area(r).IncludesEntry(e)
}
