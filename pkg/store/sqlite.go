package store

import (
	"context"
	"database/sql"

	"github.com/meadowlark-sync/willow/errors"
	"github.com/meadowlark-sync/willow/internal/fingerprint"
	"github.com/meadowlark-sync/willow/pkg/area"
	"github.com/meadowlark-sync/willow/pkg/entry"
	"github.com/meadowlark-sync/willow/pkg/meadowcap"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

// SQLite is the durable ReadonlyStore/Store implementation backed by the
// `entries` table (see db/sqlite/migrations). Grounded on the teacher's
// database/sql query style in db/connection.go: plain driver-agnostic SQL,
// no ORM.
type SQLite struct {
	db *sql.DB
}

// NewSQLite wraps an already-migrated *sql.DB.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db}
}

func (s *SQLite) queryRange(ctx context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange) ([]meadowcap.AuthorisedEntry, error) {
	end := r.Times.End
	if end > 1<<63-1 {
		// database/sql rejects uint64 arguments with the high bit set, as the
		// open end area.TimeEnd has; r.Includes below still filters each row.
		end = 1<<63 - 1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT subspace_id, path, timestamp, payload_length, payload_digest, capability, signature
		   FROM entries
		  WHERE namespace_id = ? AND timestamp >= ? AND timestamp < ?`,
		meadowkey.DIDKey(namespace), r.Times.Start, end,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query entries in range")
	}
	defer rows.Close()

	var out []meadowcap.AuthorisedEntry
	for rows.Next() {
		var (
			subspaceDID string
			pathBytes   []byte
			ts          uint64
			payloadLen  uint64
			digestStr   string
			capBytes    []byte
			sigBytes    []byte
		)
		if err := rows.Scan(&subspaceDID, &pathBytes, &ts, &payloadLen, &digestStr, &capBytes, &sigBytes); err != nil {
			return nil, errors.Wrap(err, "failed to scan entry row")
		}

		ae, err := rowToAuthorisedEntry(namespace, subspaceDID, pathBytes, ts, payloadLen, digestStr, capBytes, sigBytes)
		if err != nil {
			return nil, err
		}
		if r.Includes(ae.Entry) {
			out = append(out, ae)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate entry rows")
	}
	return out, nil
}

func rowToAuthorisedEntry(namespace meadowkey.NamespaceId, subspaceDID string, pathBytes []byte, ts, payloadLen uint64, digestStr string, capBytes, sigBytes []byte) (meadowcap.AuthorisedEntry, error) {
	subspace, err := meadowkey.DecodeDIDKey(subspaceDID)
	if err != nil {
		return meadowcap.AuthorisedEntry{}, errors.Wrap(err, "failed to decode subspace did:key")
	}

	path, err := decodePath(pathBytes)
	if err != nil {
		return meadowcap.AuthorisedEntry{}, err
	}

	digest, err := entry.DecodePayloadDigestString(digestStr)
	if err != nil {
		return meadowcap.AuthorisedEntry{}, errors.Wrap(err, "failed to decode payload digest")
	}

	cap, err := meadowcap.UnmarshalCapability(capBytes)
	if err != nil {
		return meadowcap.AuthorisedEntry{}, err
	}
	var sig meadowkey.UserSignature
	copy(sig[:], sigBytes)

	e := entry.Entry{
		NamespaceID:   namespace,
		SubspaceID:    subspace,
		Path:          path,
		Timestamp:     ts,
		PayloadLength: payloadLen,
		PayloadDigest: digest,
	}
	return meadowcap.FromPartsUnchecked(e, meadowcap.AuthorisationToken{Capability: cap, Signature: sig}), nil
}

// encodePath/decodePath give the `path` BLOB column a stable, order-free
// encoding of entry.Path's component list (length-prefixed components,
// matching entry.Encode's approach to the same problem).
func encodePath(p entry.Path) []byte {
	var buf []byte
	for _, c := range p {
		buf = append(buf, byte(len(c)))
		buf = append(buf, c...)
	}
	return buf
}

func decodePath(buf []byte) (entry.Path, error) {
	var path entry.Path
	for len(buf) > 0 {
		n := int(buf[0])
		buf = buf[1:]
		if n > len(buf) {
			return nil, errors.New("corrupt path encoding: component length exceeds remaining bytes")
		}
		path = append(path, buf[:n])
		buf = buf[n:]
	}
	return path, nil
}

// Fingerprint folds every entry in range into one Fingerprint.
func (s *SQLite) Fingerprint(ctx context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange) (fingerprint.Fingerprint, error) {
	entries, err := s.queryRange(ctx, namespace, r)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	var acc fingerprint.Accumulator
	for _, ae := range entries {
		acc.Add(fingerprint.OfEntry(namespace[:], ae.Entry.Encode()))
	}
	return acc.Fingerprint(), nil
}

// Count returns the number of entries in range.
func (s *SQLite) Count(ctx context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange) (uint64, error) {
	entries, err := s.queryRange(ctx, namespace, r)
	if err != nil {
		return 0, err
	}
	return uint64(len(entries)), nil
}

// GetEntriesWithAuthorisation returns every authorised entry in range.
func (s *SQLite) GetEntriesWithAuthorisation(ctx context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange) ([]meadowcap.AuthorisedEntry, error) {
	return s.queryRange(ctx, namespace, r)
}

// SplitRange recursively subdivides r per cfg.
func (s *SQLite) SplitRange(ctx context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange, cfg SyncConfig) ([]Subrange, error) {
	count := func(ctx context.Context, sub area.ThreeDRange) (uint64, error) {
		return s.Count(ctx, namespace, sub)
	}
	return splitRecursive(ctx, r, 0, cfg, count)
}

// IngestEntry applies entry.Wins conflict resolution via an upsert: the
// incoming row replaces any existing row at the same (namespace, subspace,
// path) only if it wins; a losing or identical row is a no-op.
func (s *SQLite) IngestEntry(ctx context.Context, namespace meadowkey.NamespaceId, ae meadowcap.AuthorisedEntry) error {
	e := ae.Entry

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin ingest transaction")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT timestamp, payload_digest, payload_length FROM entries
		  WHERE namespace_id = ? AND subspace_id = ? AND path = ?`,
		meadowkey.DIDKey(namespace), meadowkey.DIDKey(e.SubspaceID), encodePath(e.Path),
	)

	var existingTS, existingLen uint64
	var existingDigest string
	switch err := row.Scan(&existingTS, &existingDigest, &existingLen); err {
	case sql.ErrNoRows:
		// No conflict; fall through to insert.
	case nil:
		existingDigestBytes, decodeErr := entry.DecodePayloadDigestString(existingDigest)
		if decodeErr != nil {
			return errors.Wrap(decodeErr, "failed to decode existing payload digest")
		}
		existing := entry.Entry{Timestamp: existingTS, PayloadDigest: existingDigestBytes, PayloadLength: existingLen}
		if !e.Wins(existing) {
			return tx.Commit()
		}
	default:
		return errors.Wrap(err, "failed to check existing entry for conflict resolution")
	}

	capBytes, err := meadowcap.MarshalCapability(ae.Token.Capability)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO entries (namespace_id, subspace_id, path, timestamp, payload_length, payload_digest, capability, signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (namespace_id, subspace_id, path) DO UPDATE SET
		   timestamp = excluded.timestamp,
		   payload_length = excluded.payload_length,
		   payload_digest = excluded.payload_digest,
		   capability = excluded.capability,
		   signature = excluded.signature`,
		meadowkey.DIDKey(namespace), meadowkey.DIDKey(e.SubspaceID), encodePath(e.Path),
		e.Timestamp, e.PayloadLength, e.PayloadDigest.String(), capBytes, ae.Token.Signature[:],
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert entry")
	}

	return tx.Commit()
}
