// Package integration runs cross-component smoke tests: hand-assembled
// MIPS programs side-loaded through the PSX-EXE loader, executed by the
// real CPU against the real bus, with assertions on the devices they
// drive. Mirrors the teacher repo's test/integration layout, with tiny
// embedded programs standing in for its external test ROMs.
package integration

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullstep/psxgo/psx/addr"
	"github.com/nullstep/psxgo/psx/loader"
	"github.com/nullstep/psxgo/psx/system"
)

const loadBase = 0x8001_0000

// asm collects hand-encoded MIPS words for a test program.
type asm struct {
	words []uint32
}

func (a *asm) emit(w uint32)      { a.words = append(a.words, w) }
func (a *asm) nop()               { a.emit(0) }
func (a *asm) lui(rt, imm uint32) { a.emit((0x0F << 26) | (rt << 16) | (imm & 0xFFFF)) }
func (a *asm) ori(rt, rs, imm uint32) {
	a.emit((0x0D << 26) | (rs << 21) | (rt << 16) | (imm & 0xFFFF))
}
func (a *asm) sw(rt, rs, offset uint32) {
	a.emit((0x2B << 26) | (rs << 21) | (rt << 16) | (offset & 0xFFFF))
}

// halt emits an infinite branch-to-self with a delay-slot nop.
func (a *asm) halt() {
	a.emit(0x1000_FFFF) // beq $0, $0, -1
	a.nop()
}

// li loads a full 32-bit immediate into rt.
func (a *asm) li(rt, value uint32) {
	a.lui(rt, value>>16)
	a.ori(rt, rt, value&0xFFFF)
}

func (a *asm) bytes() []byte {
	out := make([]byte, len(a.words)*4)
	for i, w := range a.words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// buildEXE wraps a program in a PSX-EXE image entered at loadBase.
func buildEXE(t *testing.T, program *asm) *loader.Executable {
	t.Helper()
	data := program.bytes()
	raw := make([]byte, 2048+len(data))
	copy(raw, "PS-X EXE")
	binary.LittleEndian.PutUint32(raw[0x10:], loadBase)           // PC
	binary.LittleEndian.PutUint32(raw[0x18:], loadBase)           // load address
	binary.LittleEndian.PutUint32(raw[0x1C:], uint32(len(data)))  // load size
	binary.LittleEndian.PutUint32(raw[0x30:], 0x801F_FF00)        // stack base
	copy(raw[0x800:], data)

	exe, err := loader.ParseEXE(raw)
	require.NoError(t, err)
	return exe
}

func newSystem(t *testing.T, program *asm) *system.System {
	t.Helper()
	s := system.New(nil)
	require.NoError(t, s.LoadBIOS(make([]byte, addr.BIOSSize)))
	s.LoadEXE(buildEXE(t, program))
	return s
}

func TestEXEStoreReachesRAM(t *testing.T) {
	var p asm
	p.li(9, 0xABCD_1234)
	p.sw(9, 0, 0x100) // sw $9, 0x100($0)
	p.halt()

	s := newSystem(t, &p)
	require.NoError(t, s.RunInstructions(8))

	v, err := s.Bus.Read32(0x100)
	require.NoError(t, err)
	require.Equal(t, uint32(0xABCD_1234), v)
}

// TestEXEDrivesGPUFillRect walks a full CPU -> bus -> GP0 FIFO ->
// rasterizer path: the program writes a three-word fill-rectangle command
// to GP0 and the framebuffer must show it.
func TestEXEDrivesGPUFillRect(t *testing.T) {
	var p asm
	p.li(8, 0x1F80_1810) // GP0
	p.li(9, 0x02FF_FFFF) // fill rect, white
	p.sw(9, 8, 0)
	p.sw(0, 8, 0)        // xy = (0,0)
	p.li(9, 0x0001_0010) // wh = 16x1
	p.sw(9, 8, 0)
	p.halt()

	s := newSystem(t, &p)
	require.NoError(t, s.RunInstructions(16))

	vram := s.GPU.VRAM()
	require.Equal(t, uint16(0x7FFF), vram[0])
	require.Equal(t, uint16(0x7FFF), vram[15])
	require.Equal(t, uint16(0x0000), vram[16])
}

// TestEXEDrivesDMAOTC programs DMA channel 6 through CPU stores and
// expects the ordering table in RAM, per the spec's OTC scenario.
func TestEXEDrivesDMAOTC(t *testing.T) {
	var p asm
	p.li(8, 0x1F80_10E0) // channel 6 MADR
	p.li(9, 0x1000)
	p.sw(9, 8, 0)
	p.li(9, 8) // BCR: 8 entries
	p.sw(9, 8, 4)
	p.li(9, 0x1100_0000) // CHCR: enable + trigger
	p.sw(9, 8, 8)
	p.halt()

	s := newSystem(t, &p)
	require.NoError(t, s.RunInstructions(16))

	read := func(a uint32) uint32 {
		v, err := s.Bus.Read32(a)
		require.NoError(t, err)
		return v
	}
	require.Equal(t, uint32(0x000FFC), read(0x1000))
	require.Equal(t, uint32(0x000FF8), read(0x0FFC))
	require.Equal(t, uint32(0x00FF_FFFF), read(0x0FE4))
}

func TestFrameLoopFiresVBlankWhileEXESpins(t *testing.T) {
	var p asm
	p.halt()

	s := newSystem(t, &p)
	s.Interrupt.WriteMask(uint16(addr.VBLANK))
	require.NoError(t, s.RunFrame())
	require.True(t, s.Interrupt.IsPending())
}
