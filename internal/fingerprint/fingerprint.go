// Package fingerprint computes the XOR-homomorphic range fingerprints that
// let two peers compare the contents of a range without exchanging it.
//
// Grounded on the teacher's sync.Tree group-hash scheme (BLAKE3-hash each
// leaf, fold sorted leaf hashes into a group hash, fold group hashes into a
// root) but generalized from "insert once, recompute" to "fold
// incrementally as entries are streamed from a store range query": each
// entry contributes an independent per-entry digest, and digests combine
// with XOR rather than by concatenation-then-hash. XOR folding makes the
// accumulator commutative and invertible (removing an entry subtracts its
// digest back out), which a Merkle tree's root hash is not — exactly the
// property a range-splitting reconciliation protocol needs.
package fingerprint

import (
	"lukechampine.com/blake3"
)

// Size is the fixed length of a Fingerprint in bytes.
const Size = 32

// Fingerprint is a set-homomorphic digest of the entries in a range. Two
// ranges with equal fingerprints contain equal entries with overwhelming
// probability; an empty range has the zero fingerprint.
type Fingerprint [Size]byte

// Empty reports whether f is the zero fingerprint (an empty range).
func (f Fingerprint) Empty() bool {
	return f == Fingerprint{}
}

// XOR returns the fold of f and g.
func (f Fingerprint) XOR(g Fingerprint) Fingerprint {
	var out Fingerprint
	for i := range out {
		out[i] = f[i] ^ g[i]
	}
	return out
}

// domain namespaces the BLAKE3 keyed hash so a fingerprint digest can never
// collide with a hash computed for an unrelated purpose elsewhere in the
// wire format.
var domain = blake3.Sum256([]byte("willow-fingerprint-entry-digest-v1"))

// OfEntry digests a single entry's canonical encoding into the accumulator
// space. Namespace-scoping the key means two different namespaces never
// produce comparable digests even over byte-identical entry encodings.
func OfEntry(namespaceID, canonicalEncoding []byte) Fingerprint {
	key := blake3.Sum256(append(append([]byte{}, domain[:]...), namespaceID...))
	h := blake3.New(Size, key[:])
	h.Write(canonicalEncoding)
	var out Fingerprint
	copy(out[:], h.Sum(nil))
	return out
}

// Accumulator folds a stream of per-entry fingerprints into one range
// fingerprint via XOR. The zero value is the empty range's fingerprint.
type Accumulator struct {
	value Fingerprint
}

// Add folds f into the accumulator.
func (a *Accumulator) Add(f Fingerprint) {
	a.value = a.value.XOR(f)
}

// Fingerprint returns the accumulated fingerprint so far.
func (a *Accumulator) Fingerprint() Fingerprint {
	return a.value
}
