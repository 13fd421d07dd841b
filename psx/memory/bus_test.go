package memory

import (
	"testing"

	"github.com/nullstep/psxgo/psx/addr"
	"github.com/stretchr/testify/require"
)

type stubDevice struct {
	lastOffset uint32
	lastWidth  int
	lastValue  uint32
	readValue  uint32
}

func (s *stubDevice) ReadIO(offset uint32, width int) uint32 {
	s.lastOffset, s.lastWidth = offset, width
	return s.readValue
}

func (s *stubDevice) WriteIO(offset uint32, width int, value uint32) {
	s.lastOffset, s.lastWidth, s.lastValue = offset, width, value
}

func TestRAMRoundTripThroughKUSEGAndKSEG0(t *testing.T) {
	b := New(nil)
	require.NoError(t, b.Write32(0x0000_1000, 0xCAFEBABE))

	v, err := b.Read32(0x8000_1000) // KSEG0 alias
	require.NoError(t, err)
	require.Equal(t, uint32(0xCAFEBABE), v)
}

func TestUnalignedAccessIsABusError(t *testing.T) {
	b := New(nil)
	_, err := b.Read32(0x0000_1001)
	require.Error(t, err)
	var berr *BusError
	require.ErrorAs(t, err, &berr)
	require.Equal(t, "unaligned", berr.Kind)
}

func TestIODispatchRoutesToGPU(t *testing.T) {
	b := New(nil)
	dev := &stubDevice{readValue: 0x1234}
	b.GPU = dev

	require.NoError(t, b.Write32(addr.GP0, 0xAABBCCDD))
	require.Equal(t, uint32(0), dev.lastOffset)
	require.Equal(t, uint32(0xAABBCCDD), dev.lastValue)

	v, err := b.Read32(addr.GP1)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1234), v)
}

func TestWriteQueuesIcacheCoherence(t *testing.T) {
	b := New(nil)
	ic := NewICache()
	ic.Store(0x0000_2000, 0xDEADBEEF)

	require.NoError(t, b.Write32(0x0000_2000, 0x1111_1111))
	b.DrainCoherence(ic)

	_, ok := ic.Lookup(0x0000_2000)
	require.False(t, ok, "a RAM write must invalidate the icache line it touches")
}

func TestExpansion1HeaderWindowReadsZero(t *testing.T) {
	b := New(nil)
	v, err := b.Read8(addr.Expansion1)
	require.NoError(t, err)
	require.Equal(t, uint8(0), v)
}
