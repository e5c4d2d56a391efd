package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbtesting "github.com/meadowlark-sync/willow/internal/testing"
	"github.com/meadowlark-sync/willow/pkg/area"
	"github.com/meadowlark-sync/willow/pkg/entry"
	"github.com/meadowlark-sync/willow/pkg/meadowcap"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

// These tests exercise SQLite against the real sqlite3 driver with the
// embedded migrations applied, complementing sqlite_test.go's sqlmock-based
// query-shape assertions with an end-to-end round trip.

func TestSQLiteIngestThenGetEntriesWithAuthorisationRoundTrips(t *testing.T) {
	conn := dbtesting.CreateTestDB(t)
	s := NewSQLite(conn)

	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	digest, err := entry.NewPayloadDigest(bytes.Repeat([]byte{7}, 32))
	require.NoError(t, err)
	e := entry.Entry{
		NamespaceID:   ns.Public,
		SubspaceID:    user.Public,
		Path:          entry.Path{[]byte("a"), []byte("b")},
		Timestamp:     100,
		PayloadLength: 5,
		PayloadDigest: digest,
	}
	cap := meadowcap.NewOwnedCapability(ns, user.Public, meadowcap.AccessWrite)
	ae, err := meadowcap.AttachAuthorisation(e, cap, user)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.IngestEntry(ctx, ns.Public, ae))

	full := area.Full().IntoRange()
	got, err := s.GetEntriesWithAuthorisation(ctx, ns.Public, full)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.Path, got[0].Entry.Path)
	assert.Equal(t, e.Timestamp, got[0].Entry.Timestamp)

	count, err := s.Count(ctx, ns.Public, full)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}

func TestSQLiteIngestEntryIsIdempotentAgainstRealDriver(t *testing.T) {
	conn := dbtesting.CreateTestDB(t)
	s := NewSQLite(conn)

	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)

	digest, err := entry.NewPayloadDigest(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)
	e := entry.Entry{
		NamespaceID:   ns.Public,
		SubspaceID:    user.Public,
		Path:          entry.Path{[]byte("x")},
		Timestamp:     42,
		PayloadLength: 3,
		PayloadDigest: digest,
	}
	cap := meadowcap.NewOwnedCapability(ns, user.Public, meadowcap.AccessWrite)
	ae, err := meadowcap.AttachAuthorisation(e, cap, user)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.IngestEntry(ctx, ns.Public, ae))
	require.NoError(t, s.IngestEntry(ctx, ns.Public, ae))

	count, err := s.Count(ctx, ns.Public, area.Full().IntoRange())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), count)
}
