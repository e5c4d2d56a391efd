package store

import (
	"context"

	"github.com/meadowlark-sync/willow/pkg/area"
)

// countFunc counts entries in r; implementations close over their own
// storage (in-memory slice scan, or a SQL COUNT(*) query).
type countFunc func(ctx context.Context, r area.ThreeDRange) (uint64, error)

// splitRecursive implements split_range generically over any backing store
// that can answer "how many entries are in this range": bisect the time
// axis until a subrange is small enough to send directly, narrow enough
// that fingerprinting it wouldn't pay for itself, or the depth budget runs
// out, in which case it is emitted as-is (oversized, but bounded splitting
// must terminate somewhere).
func splitRecursive(ctx context.Context, r area.ThreeDRange, depth uint32, cfg SyncConfig, count countFunc) ([]Subrange, error) {
	n, err := count(ctx, r)
	if err != nil {
		return nil, err
	}

	width := rangeTimeWidth(r)
	if n <= cfg.MaxEntriesPerAnnounce || width <= cfg.MinFingerprintRange || depth >= cfg.MaxSplitDepth {
		action := SplitSendEntries
		if n > cfg.MaxEntriesPerAnnounce && width > cfg.MinFingerprintRange {
			action = SplitSendFingerprint
		}
		return []Subrange{{Range: r, Action: action}}, nil
	}

	left, right, ok := bisectTime(r)
	if !ok {
		// Range can't be narrowed further (single-instant range); stop here.
		return []Subrange{{Range: r, Action: SplitSendFingerprint}}, nil
	}

	leftSubs, err := splitRecursive(ctx, left, depth+1, cfg, count)
	if err != nil {
		return nil, err
	}
	rightSubs, err := splitRecursive(ctx, right, depth+1, cfg, count)
	if err != nil {
		return nil, err
	}
	return append(leftSubs, rightSubs...), nil
}

func rangeTimeWidth(r area.ThreeDRange) uint64 {
	if r.Times.End <= r.Times.Start {
		return 0
	}
	return r.Times.End - r.Times.Start
}

// bisectTime splits r's time axis at its midpoint into two half-open
// subranges. Returns ok=false if the range spans fewer than two timestamps
// and cannot be split further.
func bisectTime(r area.ThreeDRange) (left, right area.ThreeDRange, ok bool) {
	start, end := r.Times.Start, r.Times.End
	if end-start < 2 {
		return area.ThreeDRange{}, area.ThreeDRange{}, false
	}
	mid := start + (end-start)/2

	left = r
	left.Times = area.TimeRange{Start: start, End: mid}
	right = r
	right.Times = area.TimeRange{Start: mid, End: end}
	return left, right, true
}
