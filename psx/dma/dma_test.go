package dma

import (
	"testing"

	"github.com/nullstep/psxgo/psx/addr"
	"github.com/nullstep/psxgo/psx/interrupt"
	"github.com/nullstep/psxgo/psx/memory"
	"github.com/stretchr/testify/require"
)

func newTestController(t *testing.T) (*Controller, *memory.Bus) {
	t.Helper()
	bus := memory.New(nil)
	irq := interrupt.New()
	return New(bus, irq, nil), bus
}

func read32(bus *memory.Bus, a uint32) uint32 {
	v, _ := bus.Read32(a)
	return v
}

func TestOTCBuildsOrderingTable(t *testing.T) {
	c, bus := newTestController(t)

	c.WriteIO(0x60, 32, 0x1000)       // MADR for channel 6 (OTC)
	c.WriteIO(0x64, 32, 8)            // BCR: 8 entries
	c.WriteIO(0x68, 32, 0x1100_0000) // CHCR: enable + trigger

	require.Equal(t, uint32(0x000FFC), read32(bus, 0x1000))
	require.Equal(t, uint32(0x000FF8), read32(bus, 0x0FFC))
	require.Equal(t, uint32(0x00FF_FFFF), read32(bus, 0x0FE4))
}

func TestChannelEnableClearsAfterTransfer(t *testing.T) {
	c, _ := newTestController(t)
	c.WriteIO(0x60, 32, 0x1000)
	c.WriteIO(0x64, 32, 4)
	c.WriteIO(0x68, 32, 0x1100_0000)

	chcr := c.ReadIO(0x68, 32)
	require.Equal(t, uint32(0), chcr&chcrEnable)
	require.Equal(t, uint32(0), chcr&chcrTrigger)
}

func TestDICRMasterFlagFollowsForceOrEnableAndFlag(t *testing.T) {
	c, _ := newTestController(t)

	c.writeDICR(1 << 15) // force bit alone
	require.NotEqual(t, uint32(0), c.computeDICR()&0x8000_0000)

	c2, _ := newTestController(t)
	c2.dicr = (1 << 16) // channel 0 IRQ-enable, no flag yet
	require.Equal(t, uint32(0), c2.computeDICR()&0x8000_0000)
	c2.dicr |= 1 << 24 // channel 0 flag now set
	require.NotEqual(t, uint32(0), c2.computeDICR()&0x8000_0000)
}

func TestDICRTransitionRaisesDMAInterrupt(t *testing.T) {
	c, _ := newTestController(t)
	c.dicr = 1 << 16 // channel 0 IRQ enabled, no flag yet

	c.WriteIO(0x04, 32, 4)           // channel 0 BCR: 4 words
	c.WriteIO(0x08, 32, 0x1100_0000) // channel 0 CHCR: enable + trigger

	require.NotZero(t, c.irq.ReadStatus()&uint16(addr.DMA),
		"completion with the channel's DICR enable set must pulse the DMA line")
}

func TestWriteDICRClearsOnlySelectedFlags(t *testing.T) {
	c, _ := newTestController(t)
	c.dicr = (1 << 24) | (1 << 26) // channel 0 and 2 flags set

	c.writeDICR(1 << 24) // acknowledge channel 0 only
	require.Zero(t, c.dicr&(1<<24))
	require.NotZero(t, c.dicr&(1<<26), "unacknowledged flags must survive a DICR write")
}

func TestRunTransferDecrementModeWalksBackward(t *testing.T) {
	c, bus := newTestController(t)
	for i := uint32(0); i < 8; i++ {
		_ = bus.Write32(0x2000+i*4, 0xAAAA0000+i)
	}

	gpu := &recordingEndpoint{}
	c.SetEndpoint(addr.DMAGPU, gpu)

	c.WriteIO(0x20, 32, 0x2000+7*4) // MADR: last word, decrementing
	c.WriteIO(0x24, 32, 8)          // BCR: 8 words
	c.WriteIO(0x28, 32, 0x1100_0003) // direction=toDevice, decrement, enable+trigger

	require.Equal(t, 8, len(gpu.written))
	require.Equal(t, uint32(0xAAAA0007), gpu.written[0])
	require.Equal(t, uint32(0xAAAA0000), gpu.written[7])
}

type recordingEndpoint struct {
	written []uint32
}

func (r *recordingEndpoint) DMARead() uint32 { return 0 }
func (r *recordingEndpoint) DMAWrite(word uint32) {
	r.written = append(r.written, word)
}
