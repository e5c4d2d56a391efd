package channel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrySendAndRecv(t *testing.T) {
	c := New(2)

	assert.Equal(t, SendOK, c.TrySend([]byte("a")))
	assert.Equal(t, SendOK, c.TrySend([]byte("b")))
	assert.Equal(t, SendBufferFull, c.TrySend([]byte("c")))

	msg, outcome := c.TryRecv()
	require.Equal(t, RecvItem, outcome)
	assert.Equal(t, []byte("a"), msg)
}

func TestTryRecvEmpty(t *testing.T) {
	c := New(1)
	_, outcome := c.TryRecv()
	assert.Equal(t, RecvBufferEmpty, outcome)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := New(1)
	c.Close()
	c.Close()
	assert.True(t, c.IsClosed())
	assert.Equal(t, SendClosed, c.TrySend([]byte("x")))
}

func TestCloseDrainsBufferedBeforeReportingClosed(t *testing.T) {
	c := New(2)
	require.Equal(t, SendOK, c.TrySend([]byte("a")))
	c.Close()

	msg, outcome := c.TryRecv()
	require.Equal(t, RecvItem, outcome)
	assert.Equal(t, []byte("a"), msg)

	_, outcome = c.TryRecv()
	assert.Equal(t, RecvClosed, outcome)
}

func TestSendBlocksUntilRoomFreed(t *testing.T) {
	c := New(1)
	require.Equal(t, SendOK, c.TrySend([]byte("first")))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.Send(ctx, []byte("second"))
	}()

	time.Sleep(20 * time.Millisecond)
	_, _ = c.TryRecv()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send did not unblock once buffer had room")
	}
}

func TestRecvBlocksUntilMessageArrives(t *testing.T) {
	c := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan []byte, 1)
	go func() {
		msg, err := c.Recv(ctx)
		require.NoError(t, err)
		done <- msg
	}()

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, SendOK, c.TrySend([]byte("hello")))

	select {
	case msg := <-done:
		assert.Equal(t, []byte("hello"), msg)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock once a message arrived")
	}
}

func TestRecvReturnsErrClosedOnDrainedClose(t *testing.T) {
	c := New(1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.Recv(ctx)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Recv did not unblock on Close")
	}
}

func TestSendRespectsContextCancellation(t *testing.T) {
	c := New(1)
	require.Equal(t, SendOK, c.TrySend([]byte("fills it")))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := c.Send(ctx, []byte("never fits"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewSessionPairWiresOppositeDirections(t *testing.T) {
	local, remote := NewSessionPair(4, 4)

	require.Equal(t, SendOK, local.Control.Outbound.TrySend([]byte("ping")))
	msg, outcome := remote.Control.Inbound.TryRecv()
	require.Equal(t, RecvItem, outcome)
	assert.Equal(t, []byte("ping"), msg)

	require.Equal(t, SendOK, remote.Reconciliation.Outbound.TrySend([]byte("pong")))
	msg, outcome = local.Reconciliation.Inbound.TryRecv()
	require.Equal(t, RecvItem, outcome)
	assert.Equal(t, []byte("pong"), msg)
}
