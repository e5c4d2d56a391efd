package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meadowlark-sync/willow/pkg/area"
	"github.com/meadowlark-sync/willow/pkg/entry"
	"github.com/meadowlark-sync/willow/pkg/meadowcap"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

func sqliteTestEntry(t *testing.T, ns meadowkey.NamespaceSecretKey, user meadowkey.UserSecretKey) (entry.Entry, meadowcap.AuthorisedEntry) {
	t.Helper()
	digest, err := entry.NewPayloadDigest(bytes.Repeat([]byte{3}, 32))
	require.NoError(t, err)

	e := entry.Entry{
		NamespaceID:   ns.Public,
		SubspaceID:    user.Public,
		Path:          entry.Path{[]byte("a")},
		Timestamp:     10,
		PayloadLength: 5,
		PayloadDigest: digest,
	}
	cap := meadowcap.NewOwnedCapability(ns, user.Public, meadowcap.AccessWrite)
	ae, err := meadowcap.AttachAuthorisation(e, cap, user)
	require.NoError(t, err)
	return e, ae
}

func TestSQLiteIngestEntryInsertsWhenNoConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)
	_, ae := sqliteTestEntry(t, ns, user)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT timestamp, payload_digest, payload_length FROM entries`).
		WithArgs(meadowkey.DIDKey(ns.Public), meadowkey.DIDKey(user.Public), encodePath(ae.Entry.Path)).
		WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectExec(`INSERT INTO entries`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	s := NewSQLite(db)
	require.NoError(t, s.IngestEntry(context.Background(), ns.Public, ae))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteIngestEntrySkipsWhenExistingWins(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)
	_, ae := sqliteTestEntry(t, ns, user)

	newerDigest, err := entry.NewPayloadDigest(bytes.Repeat([]byte{9}, 32))
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT timestamp, payload_digest, payload_length FROM entries`).
		WillReturnRows(sqlmock.NewRows([]string{"timestamp", "payload_digest", "payload_length"}).
			AddRow(uint64(999), newerDigest.String(), uint64(5)))
	mock.ExpectCommit()

	s := NewSQLite(db)
	require.NoError(t, s.IngestEntry(context.Background(), ns.Public, ae))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteQueryRangeDecodesRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)
	user, err := meadowkey.GenerateUserKey()
	require.NoError(t, err)
	e, ae := sqliteTestEntry(t, ns, user)

	capBytes, err := meadowcap.MarshalCapability(ae.Token.Capability)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT subspace_id, path, timestamp, payload_length, payload_digest, capability, signature`).
		WillReturnRows(sqlmock.NewRows([]string{"subspace_id", "path", "timestamp", "payload_length", "payload_digest", "capability", "signature"}).
			AddRow(meadowkey.DIDKey(user.Public), encodePath(e.Path), e.Timestamp, e.PayloadLength, e.PayloadDigest.String(), capBytes, ae.Token.Signature[:]))

	s := NewSQLite(db)
	got, err := s.GetEntriesWithAuthorisation(context.Background(), ns.Public, area.Full().IntoRange())
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.Timestamp, got[0].Entry.Timestamp)
	assert.True(t, e.Path.Equal(got[0].Entry.Path))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteCountUsesQueryRange(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT subspace_id, path, timestamp, payload_length, payload_digest, capability, signature`).
		WillReturnRows(sqlmock.NewRows([]string{"subspace_id", "path", "timestamp", "payload_length", "payload_digest", "capability", "signature"}))

	ns, err := meadowkey.GenerateNamespaceKey()
	require.NoError(t, err)

	s := NewSQLite(db)
	n, err := s.Count(context.Background(), ns.Public, area.Full().IntoRange())
	require.NoError(t, err)
	assert.Equal(t, uint64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
