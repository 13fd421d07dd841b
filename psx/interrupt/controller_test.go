package interrupt

import (
	"testing"

	"github.com/nullstep/psxgo/psx/addr"
	"github.com/stretchr/testify/require"
)

func TestRequestAndMask(t *testing.T) {
	c := New()
	c.Request(addr.VBLANK)
	require.False(t, c.IsPending(), "unmasked interrupt must not be reported pending")

	c.WriteMask(uint16(addr.VBLANK))
	require.True(t, c.IsPending())
	require.Equal(t, uint16(addr.VBLANK), c.Pending())
}

func TestWriteStatusClearsOnZeroBits(t *testing.T) {
	c := New()
	c.Request(addr.VBLANK | addr.GPU)
	c.WriteMask(uint16(addr.VBLANK | addr.GPU))

	// Writing 1 to VBLANK bit keeps it, 0 to GPU bit clears it.
	c.WriteStatus(uint16(addr.VBLANK))
	require.Equal(t, uint16(addr.VBLANK), c.ReadStatus())
	require.True(t, c.IsPending())

	c.WriteStatus(0)
	require.Equal(t, uint16(0), c.ReadStatus())
	require.False(t, c.IsPending())
}
