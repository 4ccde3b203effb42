package fieldbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistryIDsNeverReused(t *testing.T) {
	r := NewHandleRegistry()

	a := r.Put(KindDomain, "a")
	b := r.Put(KindDomain, "b")
	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)

	r.Clear()
	assert.Equal(t, 0, r.Len(KindDomain))

	// A stale id can never alias a handle created after the clear
	c := r.Put(KindDomain, "c")
	assert.Equal(t, 2, c)
	_, ok := r.Get(KindDomain, a)
	assert.False(t, ok)
}

func TestRegistryKindsArePartitioned(t *testing.T) {
	r := NewHandleRegistry()

	d := r.Put(KindDomain, "domain")
	s := r.Put(KindSlaveConfig, "config")
	assert.Equal(t, 0, d)
	assert.Equal(t, 0, s)

	h, ok := r.Get(KindDomain, 0)
	assert.True(t, ok)
	assert.Equal(t, "domain", h)

	h, ok = r.Get(KindSlaveConfig, 0)
	assert.True(t, ok)
	assert.Equal(t, "config", h)
}

func TestRegistryOrderAndRemove(t *testing.T) {
	r := NewHandleRegistry()
	for _, v := range []string{"a", "b", "c"} {
		r.Put(KindDomain, v)
	}

	assert.Equal(t, []int{0, 1, 2}, r.IDs(KindDomain))

	assert.True(t, r.Remove(KindDomain, 1))
	assert.False(t, r.Remove(KindDomain, 1))
	assert.Equal(t, []int{0, 2}, r.IDs(KindDomain))
	assert.Equal(t, 2, r.Len(KindDomain))
}
