// Package channel implements the bounded in-memory logical channels a
// session's two drivers communicate over: a Control channel carrying setup
// and handshake messages, and a Reconciliation channel carrying fingerprint
// exchange and entry transfer messages.
package channel

import (
	"context"
	"sync"

	"github.com/meadowlark-sync/willow/errors"
)

// Logical names the fixed pair of channels a session multiplexes.
type Logical int

const (
	Control Logical = iota
	Reconciliation
)

func (l Logical) String() string {
	switch l {
	case Control:
		return "control"
	case Reconciliation:
		return "reconciliation"
	default:
		return "unknown"
	}
}

// SendOutcome is the result of a non-blocking send attempt.
type SendOutcome int

const (
	SendOK SendOutcome = iota
	SendBufferFull
	SendClosed
)

// RecvOutcome is the result of a non-blocking receive attempt.
type RecvOutcome int

const (
	RecvItem RecvOutcome = iota
	RecvBufferEmpty
	RecvClosed
)

// ErrClosed is returned by the blocking Send/Recv once a channel has been
// closed.
var ErrClosed = errors.New("channel is closed")

// Channel is a bounded, single-producer/single-consumer queue of opaque
// byte-string messages (the encoded wire frames), with both a blocking and
// a non-blocking API. The non-blocking API mirrors the cooperative driver's
// need to try an operation and, on BufferFull/BufferEmpty, yield back to the
// scheduler instead of parking a goroutine.
type Channel struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    [][]byte
	cap    int
	closed bool
}

// New creates a Channel with the given buffer capacity.
func New(capacity int) *Channel {
	c := &Channel{buf: make([][]byte, 0, capacity), cap: capacity}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// TrySend attempts a non-blocking enqueue.
func (c *Channel) TrySend(msg []byte) SendOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return SendClosed
	}
	if len(c.buf) >= c.cap {
		return SendBufferFull
	}
	c.buf = append(c.buf, msg)
	c.cond.Broadcast()
	return SendOK
}

// TryRecv attempts a non-blocking dequeue.
func (c *Channel) TryRecv() ([]byte, RecvOutcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.buf) > 0 {
		msg := c.buf[0]
		c.buf = c.buf[1:]
		c.cond.Broadcast()
		return msg, RecvItem
	}
	if c.closed {
		return nil, RecvClosed
	}
	return nil, RecvBufferEmpty
}

// Send blocks until msg is enqueued, the channel closes, or ctx is done.
func (c *Channel) Send(ctx context.Context, msg []byte) error {
	for {
		switch c.TrySend(msg) {
		case SendOK:
			return nil
		case SendClosed:
			return errors.WithStack(ErrClosed)
		case SendBufferFull:
			if err := c.waitOrContext(ctx); err != nil {
				return err
			}
		}
	}
}

// Recv blocks until a message is available, the channel closes with an
// empty buffer, or ctx is done.
func (c *Channel) Recv(ctx context.Context) ([]byte, error) {
	for {
		msg, outcome := c.TryRecv()
		switch outcome {
		case RecvItem:
			return msg, nil
		case RecvClosed:
			return nil, errors.WithStack(ErrClosed)
		case RecvBufferEmpty:
			if err := c.waitOrContext(ctx); err != nil {
				return nil, err
			}
		}
	}
}

// waitOrContext blocks on c.cond until signalled, or returns ctx.Err() if
// ctx completes first.
func (c *Channel) waitOrContext(ctx context.Context) error {
	woken := make(chan struct{})
	go func() {
		c.mu.Lock()
		c.cond.Wait()
		c.mu.Unlock()
		close(woken)
	}()

	select {
	case <-woken:
		return nil
	case <-ctx.Done():
		// Wake the waiting goroutine so it doesn't leak; it will simply
		// re-check and exit since nothing else references it.
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
		<-woken
		return ctx.Err()
	}
}

// Close marks the channel closed. Idempotent: closing an already-closed
// channel is a no-op. Buffered messages remain readable via Recv/TryRecv
// until drained; only then does Recv report ErrClosed.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cond.Broadcast()
}

// IsClosed reports whether Close has been called.
func (c *Channel) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Pair is the bidirectional pipe of two Channels (inbound/outbound from one
// side's perspective) for one Logical.
type Pair struct {
	Outbound *Channel
	Inbound  *Channel
}

// NewPair wires two fresh Channels of the given capacity into a Pair whose
// Outbound is the peer's Inbound and vice versa.
func NewPair(capacity int) (local, remote Pair) {
	aToB := New(capacity)
	bToA := New(capacity)
	return Pair{Outbound: aToB, Inbound: bToA}, Pair{Outbound: bToA, Inbound: aToB}
}

// Session bundles the two logical channel pairs (Control, Reconciliation)
// one side of a session holds.
type Session struct {
	Control        Pair
	Reconciliation Pair
}

// NewSessionPair builds the two Session endpoints that together form a
// complete in-process session transport, each logical channel capacity
// provided independently.
func NewSessionPair(controlCapacity, reconciliationCapacity int) (local, remote Session) {
	lc, rc := NewPair(controlCapacity)
	lr, rr := NewPair(reconciliationCapacity)
	return Session{Control: lc, Reconciliation: lr}, Session{Control: rc, Reconciliation: rr}
}

// Close closes both logical channels' outbound sides. Each side closes only
// the direction it writes; the peer observes ErrClosed once it has drained
// what's buffered.
func (s Session) Close() {
	s.Control.Outbound.Close()
	s.Reconciliation.Outbound.Close()
}
