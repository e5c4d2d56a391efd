package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindAssignsMonotonicHandles(t *testing.T) {
	m := NewMap[string](KindCapability)

	h1 := m.Bind("a")
	h2 := m.Bind("b")

	assert.Equal(t, uint64(1), h1.Value)
	assert.Equal(t, uint64(2), h2.Value)
	assert.Equal(t, KindCapability, h1.Kind)
}

func TestBindAlwaysFresh(t *testing.T) {
	m := NewMap[string](KindAreaOfInterest)

	h1 := m.Bind("a")
	h2 := m.Bind("a")

	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 2, m.Len())
}

func TestBindIfNewReusesHandle(t *testing.T) {
	m := NewMap[string](KindStaticToken)

	h1, isNew1 := m.BindIfNew("a")
	h2, isNew2 := m.BindIfNew("a")

	assert.True(t, isNew1)
	assert.False(t, isNew2)
	assert.Equal(t, h1, h2)
	assert.Equal(t, 1, m.Len())
}

func TestGetAndTryGet(t *testing.T) {
	m := NewMap[string](KindCapability)
	h := m.Bind("hello")

	v, ok := m.Get(h)
	assert.True(t, ok)
	assert.Equal(t, "hello", v)

	v, err := m.TryGet(h)
	require.NoError(t, err)
	assert.Equal(t, "hello", v)
}

func TestTryGetMissingHandle(t *testing.T) {
	m := NewMap[string](KindCapability)

	_, err := m.TryGet(Handle{Kind: KindCapability, Value: 99})
	assert.ErrorIs(t, err, ErrMissingResource)
}

func TestWaitForAlreadyBound(t *testing.T) {
	m := NewMap[string](KindCapability)
	h := m.Bind("already here")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	v, err := m.WaitFor(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, "already here", v)
}

func TestWaitForBlocksUntilBind(t *testing.T) {
	m := NewMap[string](KindCapability)
	handle := Handle{Kind: KindCapability, Value: 1}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	done := make(chan struct{})
	var got string
	var waitErr error
	go func() {
		got, waitErr = m.WaitFor(ctx, handle)
		close(done)
	}()

	m.Bind("value one")

	select {
	case <-done:
		require.NoError(t, waitErr)
		assert.Equal(t, "value one", got)
	case <-time.After(time.Second):
		t.Fatal("WaitFor did not wake after Bind")
	}
}

func TestWaitForContextCancelled(t *testing.T) {
	m := NewMap[string](KindCapability)
	handle := Handle{Kind: KindCapability, Value: 1}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.WaitFor(ctx, handle)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestZeroHandleIsSentinel(t *testing.T) {
	var h Handle
	assert.True(t, h.IsZero())
}

func TestInternTableReusesHandleForEqualValue(t *testing.T) {
	tbl := NewInternTable[string](KindStaticToken)

	h1, isNew1 := tbl.Intern("token-a")
	h2, isNew2 := tbl.Intern("token-a")
	h3, isNew3 := tbl.Intern("token-b")

	assert.True(t, isNew1)
	assert.False(t, isNew2)
	assert.True(t, isNew3)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
}
