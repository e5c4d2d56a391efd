package session

import "github.com/meadowlark-sync/willow/errors"

// Error kinds the session core raises (§7). Any of these terminates the
// driver that raised it, which closes its channels; the peer observes the
// closure as its own ChannelClosed.
var (
	ErrAreaOfInterestDoesNotOverlap = errors.New("area of interest intersection is empty")
	ErrInvalidMessageInCurrentState = errors.New("message is not valid in the session's current state")
	ErrUnsupportedMessage           = errors.New("message is not supported on this channel or is an unknown variant")
	ErrAlreadyRevealed              = errors.New("commitment already revealed")
	ErrAlreadyReceivedReveal        = errors.New("peer's commitment reveal already received")
	ErrCommitmentMismatch           = errors.New("revealed nonce does not hash to the earlier commitment")
	ErrNoPendingRangeForHandle      = errors.New("no pending range recorded for handle")
	ErrPendingEntriesNotPositive    = errors.New("on_send_entry called with no positive pending_entries counter")
	ErrNamespaceMismatch            = errors.New("paired areas of interest are authorised under different namespaces")
)
