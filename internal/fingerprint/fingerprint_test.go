package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmptyIsZero(t *testing.T) {
	var acc Accumulator
	assert.True(t, acc.Fingerprint().Empty())
}

func TestXORIsCommutativeAndSelfCancelling(t *testing.T) {
	a := OfEntry([]byte("ns"), []byte("entry-a"))
	b := OfEntry([]byte("ns"), []byte("entry-b"))

	var acc1, acc2 Accumulator
	acc1.Add(a)
	acc1.Add(b)
	acc2.Add(b)
	acc2.Add(a)
	assert.Equal(t, acc1.Fingerprint(), acc2.Fingerprint())

	acc1.Add(a)
	acc1.Add(b)
	assert.True(t, acc1.Fingerprint().Empty(), "adding the same two digests twice cancels out")
}

func TestOfEntryIsNamespaceScoped(t *testing.T) {
	a := OfEntry([]byte("ns1"), []byte("entry"))
	b := OfEntry([]byte("ns2"), []byte("entry"))
	assert.NotEqual(t, a, b)
}

func TestOfEntryDeterministic(t *testing.T) {
	a := OfEntry([]byte("ns"), []byte("entry"))
	b := OfEntry([]byte("ns"), []byte("entry"))
	assert.Equal(t, a, b)
}
