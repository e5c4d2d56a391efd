// Package store defines the read and write interfaces the reconciliation
// driver consumes, plus the tuning knobs (SyncConfig) that decide when a
// mismatched range is subdivided further versus sent entry-by-entry.
//
// Grounded on the teacher's sync.SyncTree interface (pkg.go.dev/.../sync):
// same shape of "abstract the divergence-detection data structure behind an
// interface, return plain slices/maps rather than a streaming iterator type"
// that the teacher's Diff/GroupHashes methods use.
package store

import (
	"context"

	"github.com/meadowlark-sync/willow/errors"
	"github.com/meadowlark-sync/willow/internal/fingerprint"
	"github.com/meadowlark-sync/willow/pkg/area"
	"github.com/meadowlark-sync/willow/pkg/meadowcap"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

// SyncConfig tunes split_range's decision between subdividing a mismatched
// range further and simply sending its entries.
type SyncConfig struct {
	// MaxEntriesPerAnnounce: a range with at most this many entries is sent
	// as entries rather than split further.
	MaxEntriesPerAnnounce uint64
	// MaxSplitDepth bounds recursive splitting regardless of entry count.
	MaxSplitDepth uint32
	// MinFingerprintRange: a range no wider than this (by time span) is
	// always sent as entries, since a fingerprint exchange over it would
	// cost more round trips than it saves.
	MinFingerprintRange uint64
}

// DefaultSyncConfig returns reasonable defaults for a single session.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxEntriesPerAnnounce: 64,
		MaxSplitDepth:         16,
		MinFingerprintRange:   1,
	}
}

// SplitAction says what a subrange produced by split_range should do next.
type SplitAction int

const (
	// SplitSendEntries: the subrange is small enough to announce and send
	// entries for directly.
	SplitSendEntries SplitAction = iota
	// SplitSendFingerprint: the subrange is still large; send its
	// fingerprint and let the peer recurse if it mismatches too.
	SplitSendFingerprint
)

// Subrange pairs a ThreeDRange produced by splitting with the action the
// reconciliation driver should take for it.
type Subrange struct {
	Range  area.ThreeDRange
	Action SplitAction
}

// ErrNamespaceMismatch is returned when an operation mixes ranges or
// entries belonging to different namespaces.
var ErrNamespaceMismatch = errors.New("range and namespace belong to different stores")

// ReadonlyStore is the read side of a namespace's store: fingerprinting,
// counting, and enumerating a range, reachable without a writer lock.
type ReadonlyStore interface {
	// Fingerprint folds every entry in range into one Fingerprint.
	Fingerprint(ctx context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange) (fingerprint.Fingerprint, error)
	// Count returns the number of entries in range.
	Count(ctx context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange) (uint64, error)
	// GetEntriesWithAuthorisation returns every authorised entry in range.
	GetEntriesWithAuthorisation(ctx context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange) ([]meadowcap.AuthorisedEntry, error)
	// SplitRange recursively subdivides r per cfg, returning leaf subranges
	// each tagged with what the reconciliation driver should do with it.
	SplitRange(ctx context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange, cfg SyncConfig) ([]Subrange, error)
}

// Store is the writer side: idempotent ingestion that resolves conflicts
// via entry.Wins.
type Store interface {
	ReadonlyStore
	// IngestEntry applies the conflict-resolution ordering against any
	// existing entry at the same (subspace, path), replacing it if ae wins
	// and leaving the existing one in place (and reporting no error)
	// otherwise. Ingestion is idempotent: ingesting the same entry twice is
	// a no-op the second time.
	IngestEntry(ctx context.Context, namespace meadowkey.NamespaceId, ae meadowcap.AuthorisedEntry) error
}
