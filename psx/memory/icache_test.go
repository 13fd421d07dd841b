package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestICacheStoreThenLookup(t *testing.T) {
	c := NewICache()

	_, ok := c.Lookup(0x1000)
	require.False(t, ok, "a fresh cache answers nothing")

	c.Store(0x1000, 0xDEADBEEF)
	v, ok := c.Lookup(0x1000)
	require.True(t, ok)
	require.Equal(t, uint32(0xDEADBEEF), v)
}

func TestICacheTagMismatchMisses(t *testing.T) {
	c := NewICache()
	c.Store(0x1000, 0x1111_1111)

	// Same line index (bits 11:2), different tag (bits 31:12).
	_, ok := c.Lookup(0x1000 + 0x1000)
	require.False(t, ok)
}

func TestICacheInvalidateRequiresMatchingTag(t *testing.T) {
	c := NewICache()
	c.Store(0x1000, 0x2222_2222)

	c.Invalidate(0x1000 + 0x1000) // same line, wrong tag: no-op
	_, ok := c.Lookup(0x1000)
	require.True(t, ok)

	c.Invalidate(0x1000)
	_, ok = c.Lookup(0x1000)
	require.False(t, ok)
}

func TestICacheInvalidateRange(t *testing.T) {
	c := NewICache()
	for a := uint32(0x2000); a < 0x2020; a += 4 {
		c.Store(a, a)
	}

	c.InvalidateRange(0x2008, 0x2010)

	_, ok := c.Lookup(0x2004)
	require.True(t, ok)
	_, ok = c.Lookup(0x2008)
	require.False(t, ok)
	_, ok = c.Lookup(0x200C)
	require.False(t, ok)
	_, ok = c.Lookup(0x2010)
	require.True(t, ok, "the range end is exclusive")
}

func TestICacheClear(t *testing.T) {
	c := NewICache()
	c.Store(0x3000, 1)
	c.Store(0x3004, 2)
	c.Clear()

	_, ok := c.Lookup(0x3000)
	require.False(t, ok)
	_, ok = c.Lookup(0x3004)
	require.False(t, ok)
}
