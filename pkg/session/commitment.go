// Commitment scheme detail: the reveal a peer sends on the Control channel
// must hash (via BLAKE3) to a commitment the two sides already agreed on
// during connection setup (out of scope for this core). on_commitment_reveal
// checks hash(nonce) == commitment rather than accepting any reveal.
package session

import (
	"crypto/rand"

	"lukechampine.com/blake3"

	"github.com/meadowlark-sync/willow/errors"
	"github.com/meadowlark-sync/willow/pkg/wire"
)

// Commitment is hash(nonce), computed the same way on both ends so a
// revealed nonce can be checked against a commitment learned beforehand.
func Commitment(nonce wire.Nonce) wire.Commitment {
	return wire.Commitment(blake3.Sum256(nonce[:]))
}

// newNonce generates a fresh random nonce for a session's commitment.
func newNonce() (wire.Nonce, error) {
	var n wire.Nonce
	if _, err := rand.Read(n[:]); err != nil {
		return wire.Nonce{}, errors.Wrap(err, "failed to generate commitment nonce")
	}
	return n, nil
}

// NewNonce is newNonce, exported for callers (the `willow serve` and
// `willow sync` commands) that need to pick a nonce before constructing a
// State via NewStateWithNonce.
func NewNonce() (wire.Nonce, error) {
	return newNonce()
}
