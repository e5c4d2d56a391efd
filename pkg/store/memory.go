package store

import (
	"context"
	"sync"

	"github.com/meadowlark-sync/willow/internal/fingerprint"
	"github.com/meadowlark-sync/willow/pkg/area"
	"github.com/meadowlark-sync/willow/pkg/entry"
	"github.com/meadowlark-sync/willow/pkg/meadowcap"
	"github.com/meadowlark-sync/willow/pkg/meadowkey"
)

// conflictKey identifies the (subspace, path) slot a stored entry occupies;
// at most one AuthorisedEntry per key survives ingestion.
type conflictKey struct {
	subspace meadowkey.SubspaceId
	path     string
}

func keyFor(e entry.Entry) conflictKey {
	return conflictKey{subspace: e.SubspaceID, path: pathKey(e.Path)}
}

func pathKey(p entry.Path) string {
	var b []byte
	for _, c := range p {
		b = append(b, byte(len(c)))
		b = append(b, c...)
	}
	return string(b)
}

// Memory is an in-memory ReadonlyStore/Store implementation, namespace-keyed
// and guarded by a single mutex — adequate for tests and single-process
// demos; pkg/store/sqlite.go is the durable counterpart.
type Memory struct {
	mu         sync.RWMutex
	namespaces map[meadowkey.NamespaceId]map[conflictKey]meadowcap.AuthorisedEntry
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{namespaces: make(map[meadowkey.NamespaceId]map[conflictKey]meadowcap.AuthorisedEntry)}
}

func (m *Memory) entriesInRange(namespace meadowkey.NamespaceId, r area.ThreeDRange) []meadowcap.AuthorisedEntry {
	var out []meadowcap.AuthorisedEntry
	for _, ae := range m.namespaces[namespace] {
		if r.Includes(ae.Entry) {
			out = append(out, ae)
		}
	}
	return out
}

// Fingerprint folds every entry in range into one Fingerprint.
func (m *Memory) Fingerprint(_ context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange) (fingerprint.Fingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var acc fingerprint.Accumulator
	for _, ae := range m.entriesInRange(namespace, r) {
		acc.Add(fingerprint.OfEntry(namespace[:], ae.Entry.Encode()))
	}
	return acc.Fingerprint(), nil
}

// Count returns the number of entries in range.
func (m *Memory) Count(_ context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return uint64(len(m.entriesInRange(namespace, r))), nil
}

// GetEntriesWithAuthorisation returns every authorised entry in range.
func (m *Memory) GetEntriesWithAuthorisation(_ context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange) ([]meadowcap.AuthorisedEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.entriesInRange(namespace, r), nil
}

// SplitRange recursively subdivides r per cfg.
func (m *Memory) SplitRange(ctx context.Context, namespace meadowkey.NamespaceId, r area.ThreeDRange, cfg SyncConfig) ([]Subrange, error) {
	count := func(ctx context.Context, sub area.ThreeDRange) (uint64, error) {
		return m.Count(ctx, namespace, sub)
	}
	return splitRecursive(ctx, r, 0, cfg, count)
}

// IngestEntry resolves conflicts via entry.Wins and is a no-op if an
// identical entry is already present at the same (subspace, path).
func (m *Memory) IngestEntry(_ context.Context, namespace meadowkey.NamespaceId, ae meadowcap.AuthorisedEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[conflictKey]meadowcap.AuthorisedEntry)
		m.namespaces[namespace] = ns
	}

	key := keyFor(ae.Entry)
	existing, present := ns[key]
	if present && !ae.Entry.Wins(existing.Entry) {
		return nil
	}
	ns[key] = ae
	return nil
}
