package cpu

import (
	"testing"

	"github.com/nullstep/psxgo/psx/addr"
	"github.com/nullstep/psxgo/psx/interrupt"
	"github.com/nullstep/psxgo/psx/memory"
	"github.com/stretchr/testify/require"
)

// newTestCPU wires a bus/icache/interrupt-controller triple with a BIOS
// image the test can fill with raw instruction words.
func newTestCPU(t *testing.T) (*CPU, *memory.Bus) {
	t.Helper()
	bus := memory.New(nil)
	require.NoError(t, bus.LoadBIOS(make([]byte, addr.BIOSSize)))
	ic := memory.NewICache()
	irq := interrupt.New()
	return New(bus, ic, irq, nil), bus
}

func biosWord(bus *memory.Bus, offset uint32, word uint32) {
	bus.BIOS[offset] = byte(word)
	bus.BIOS[offset+1] = byte(word >> 8)
	bus.BIOS[offset+2] = byte(word >> 16)
	bus.BIOS[offset+3] = byte(word >> 24)
}

func TestStepAdvancesPCPastDelaySlot(t *testing.T) {
	c, bus := newTestCPU(t)
	biosWord(bus, 0, 0) // NOP at BIOS offset 0 == vaddr 0xBFC0_0000

	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, uint32(0xBFC0_0004), c.PC())
	require.Equal(t, uint32(0xBFC0_0008), c.NextPC())
}

func TestUnconditionalJumpTakesDelaySlot(t *testing.T) {
	c, bus := newTestCPU(t)
	// J to 0xBFC0_1000, then a NOP in the delay slot, then a marker ORI.
	biosWord(bus, 0, (0x02<<26)|((0xBFC0_1000>>2)&0x03FF_FFFF))
	biosWord(bus, 4, 0)
	biosWord(bus, 0x1000, (0x0D<<26)|(8<<16)|0x1234) // ORI r8, r0, 0x1234

	_, err := c.Step() // executes J, schedules branch
	require.NoError(t, err)
	_, err = c.Step() // executes delay slot NOP, PC becomes branch target
	require.NoError(t, err)
	require.Equal(t, uint32(0xBFC0_1000), c.PC())

	_, err = c.Step() // executes ORI at the branch target
	require.NoError(t, err)
	require.Equal(t, uint32(0x1234), c.Reg(8))
}

func TestLoadDelaySlotCommitsOneStepLater(t *testing.T) {
	c, bus := newTestCPU(t)
	// LW r8, 0(r0); ADDIU r9, r0, 1 -- r8 must still read as 0 here.
	biosWord(bus, 0, (0x23<<26)|(8<<16))
	biosWord(bus, 4, (0x09<<26)|(9<<16)|1)
	bus.RAM[0], bus.RAM[1], bus.RAM[2], bus.RAM[3] = 0xEF, 0xBE, 0xAD, 0xDE

	_, err := c.Step() // issues the load
	require.NoError(t, err)
	require.Equal(t, uint32(0), c.Reg(8), "load result must not be visible in the same step")

	_, err = c.Step() // load commits now, alongside ADDIU
	require.NoError(t, err)
	require.Equal(t, uint32(0xDEADBEEF), c.Reg(8))
	require.Equal(t, uint32(1), c.Reg(9))
}

func TestAddOverflowRaisesException(t *testing.T) {
	c, bus := newTestCPU(t)
	// LUI r1, 0x8000 (INT32_MIN); ADD r2, r1, r1 -- overflows.
	biosWord(bus, 0, (0x0F<<26)|(1<<16)|0x8000)
	biosWord(bus, 4, (1<<21)|(1<<16)|(2<<11)|0x20)

	_, err := c.Step()
	require.NoError(t, err)
	_, err = c.Step()
	require.NoError(t, err)

	require.Equal(t, uint32(0x8000_0080), c.PC())
	cause := (c.COP0(13) >> 2) & 0x3F
	require.Equal(t, uint32(ExcOverflow), cause)
}

// TestNestedExceptionsRFERestoresSR pins the three-level KU/IE stack
// rotation: two exceptions followed by two RFEs must restore the original
// interrupt-enable state exactly.
func TestNestedExceptionsRFERestoresSR(t *testing.T) {
	c, _ := newTestCPU(t)
	c.cop0[cop0SR] = 0x01 // IEc set, user stack otherwise clear

	original := c.cop0[cop0SR] & 0x3 // current KUc/IEc pair
	c.raiseException(ExcSyscall, 0x8000_1000, false, 0)
	c.raiseException(ExcSyscall, 0x8000_2000, false, 0)
	require.Equal(t, uint32(0), c.cop0[cop0SR]&srIEc, "interrupts disabled inside the handler")

	c.rfe()
	require.Equal(t, uint32(0), c.cop0[cop0SR]&srIEc, "one level up is still inside the outer handler")
	c.rfe()
	require.Equal(t, original, c.cop0[cop0SR]&0x3)
}

func TestInterruptSetsCausePendingBits(t *testing.T) {
	c, bus := newTestCPU(t)
	biosWord(bus, 0, 0)
	c.cop0[cop0SR] = srIEc
	c.irq.Request(addr.VBLANK)
	c.irq.WriteIO(0x4, 16, uint32(addr.VBLANK)) // unmask

	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, uint32(0x8000_0080), c.PC())
	require.Equal(t, uint32(ExcInterrupt), (c.COP0(13)>>2)&0x3F)
	require.Equal(t, uint32(addr.VBLANK), (c.COP0(13)>>8)&0xFF)
}

func TestIsolatedCacheStoreInvalidatesLineNotRAM(t *testing.T) {
	c, bus := newTestCPU(t)
	// ORI r1, r0, 0x2000; SW r0, 0(r1) -- with IsC set, RAM is untouched.
	biosWord(bus, 0, (0x0D<<26)|(1<<16)|0x2000)
	biosWord(bus, 4, (0x2B<<26)|(1<<21))
	bus.RAM[0x2000] = 0xAB
	c.icache.Store(0x2000, 0x1234_5678)
	c.cop0[cop0SR] |= srIsC

	_, err := c.Step()
	require.NoError(t, err)
	_, err = c.Step()
	require.NoError(t, err)

	require.Equal(t, byte(0xAB), bus.RAM[0x2000], "isolated store must not reach RAM")
	_, ok := c.icache.Lookup(0x2000)
	require.False(t, ok, "isolated store must invalidate the icache line")
}

func TestReservedInstructionFaults(t *testing.T) {
	c, bus := newTestCPU(t)
	biosWord(bus, 0, 0x3F<<26) // opcode 0x3F is unassigned

	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, uint32(0x8000_0080), c.PC())
	cause := (c.COP0(13) >> 2) & 0x3F
	require.Equal(t, uint32(ExcRI), cause)
}
