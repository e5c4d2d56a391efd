package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meadowlark-sync/willow/pkg/area"
	"github.com/meadowlark-sync/willow/pkg/entry"
	"github.com/meadowlark-sync/willow/pkg/meadowcap"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

func mustDigest(t *testing.T, b byte) entry.PayloadDigest {
	t.Helper()
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = b
	}
	d, err := entry.NewPayloadDigest(raw)
	require.NoError(t, err)
	return d
}

func authorisedEntry(t *testing.T, ns meadowkey.NamespaceSecretKey, user meadowkey.UserSecretKey, path entry.Path, ts uint64, digestByte byte) meadowcap.AuthorisedEntry {
	t.Helper()
	cap := meadowcap.NewOwnedCapability(ns, user.Public, meadowcap.AccessWrite)
	e := entry.Entry{
		NamespaceID:   ns.Public,
		SubspaceID:    user.Public,
		Path:          path,
		Timestamp:     ts,
		PayloadLength: 4,
		PayloadDigest: mustDigest(t, digestByte),
	}
	ae, err := meadowcap.AttachAuthorisation(e, cap, user)
	require.NoError(t, err)
	return ae
}

func TestMemoryIngestAndGetEntries(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	m := NewMemory()
	ctx := context.Background()
	ae := authorisedEntry(t, ns, user, entry.Path{[]byte("a")}, 10, 1)

	require.NoError(t, m.IngestEntry(ctx, ns.Public, ae))

	got, err := m.GetEntriesWithAuthorisation(ctx, ns.Public, area.Full().IntoRange())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ae.Entry, got[0].Entry)
}

func TestMemoryIngestResolvesConflictByWins(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	m := NewMemory()
	ctx := context.Background()

	older := authorisedEntry(t, ns, user, entry.Path{[]byte("a")}, 10, 1)
	newer := authorisedEntry(t, ns, user, entry.Path{[]byte("a")}, 20, 1)

	require.NoError(t, m.IngestEntry(ctx, ns.Public, older))
	require.NoError(t, m.IngestEntry(ctx, ns.Public, newer))

	got, err := m.GetEntriesWithAuthorisation(ctx, ns.Public, area.Full().IntoRange())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(20), got[0].Entry.Timestamp)
}

func TestMemoryIngestIsIdempotent(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	m := NewMemory()
	ctx := context.Background()
	ae := authorisedEntry(t, ns, user, entry.Path{[]byte("a")}, 10, 1)

	require.NoError(t, m.IngestEntry(ctx, ns.Public, ae))
	require.NoError(t, m.IngestEntry(ctx, ns.Public, ae))

	count, err := m.Count(ctx, ns.Public, area.Full().IntoRange())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestMemoryFingerprintEmptyRangeIsZero(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)

	m := NewMemory()
	fp, err := m.Fingerprint(context.Background(), ns.Public, area.Full().IntoRange())
	require.NoError(t, err)
	assert.True(t, fp.Empty())
}

func TestMemoryFingerprintMatchesAcrossIdenticalStores(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	a, b := NewMemory(), NewMemory()
	ctx := context.Background()
	ae := authorisedEntry(t, ns, user, entry.Path{[]byte("a")}, 10, 1)

	require.NoError(t, a.IngestEntry(ctx, ns.Public, ae))
	require.NoError(t, b.IngestEntry(ctx, ns.Public, ae))

	fpA, err := a.Fingerprint(ctx, ns.Public, area.Full().IntoRange())
	require.NoError(t, err)
	fpB, err := b.Fingerprint(ctx, ns.Public, area.Full().IntoRange())
	require.NoError(t, err)
	assert.Equal(t, fpA, fpB)
}

func TestMemorySplitRangeSendsEntriesUnderThreshold(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.IngestEntry(ctx, ns.Public, authorisedEntry(t, ns, user, entry.Path{[]byte("a")}, 10, 1)))

	subs, err := m.SplitRange(ctx, ns.Public, area.Full().IntoRange(), DefaultSyncConfig())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, SplitSendEntries, subs[0].Action)
}

func TestMemorySplitRangeSubdividesOverThreshold(t *testing.T) {
	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	m := NewMemory()
	ctx := context.Background()
	cfg := SyncConfig{MaxEntriesPerAnnounce: 2, MaxSplitDepth: 8, MinFingerprintRange: 1}

	for i := uint64(0); i < 10; i++ {
		path := entry.Path{[]byte{byte(i)}}
		require.NoError(t, m.IngestEntry(ctx, ns.Public, authorisedEntry(t, ns, user, path, i, byte(i))))
	}

	subs, err := m.SplitRange(ctx, ns.Public, area.ThreeDRange{AnySubspace: true, Times: area.TimeRange{Start: 0, End: 10}}, cfg)
	require.NoError(t, err)
	assert.Greater(t, len(subs), 1)

	var total uint64
	for _, s := range subs {
		n, err := m.Count(ctx, ns.Public, s.Range)
		require.NoError(t, err)
		total += n
	}
	assert.Equal(t, uint64(10), total)
}
