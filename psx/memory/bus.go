// Package memory implements the PlayStation memory bus: address decode,
// segment translation, RAM/BIOS/scratchpad storage, routing of I/O
// accesses to device registers, and the icache coherence queues the
// System drains between CPU steps. Grounded on the teacher's MMU
// (jeebie/memory/mem.go), generalized from the Game Boy's 16-bit flat
// space to the PSX's 32-bit segmented one.
package memory

import (
	"fmt"
	"log/slog"

	"github.com/nullstep/psxgo/psx/addr"
)

// IODevice is any component whose registers are routed through the bus.
// offset is the address relative to the device's base; width is 8, 16 or
// 32.
type IODevice interface {
	ReadIO(offset uint32, width int) uint32
	WriteIO(offset uint32, width int, value uint32)
}

// BusError is returned for accesses the hardware would fault on.
type BusError struct {
	Addr  uint32
	Width int
	Kind  string // "unaligned", "unmapped", "readonly"
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus error: %s access to 0x%08X (width %d)", e.Kind, e.Addr, e.Width)
}

// Bus owns RAM/BIOS/scratchpad storage and routes I/O to devices. Per the
// design notes, it holds no device *state* of its own -- only references
// handed to it by System, which owns every device behind a single point
// of mutability.
type Bus struct {
	RAM        []byte
	BIOS       []byte
	Scratchpad []byte

	Controllers IODevice
	Interrupt   IODevice
	DMA         IODevice
	Timers      IODevice
	CDROM       IODevice
	GPU         IODevice
	SPU         IODevice

	prefillQueue         [][2]uint32
	invalidateQueue       []uint32
	rangeInvalidateQueue [][2]uint32

	cacheControl uint32

	log *slog.Logger
}

// New returns a bus with zeroed RAM/scratchpad and no BIOS loaded yet.
func New(log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{
		RAM:        make([]byte, addr.RAMSize),
		BIOS:       make([]byte, addr.BIOSSize),
		Scratchpad: make([]byte, addr.ScratchpadSize),
		log:        log,
	}
}

// LoadBIOS copies a 512 KB BIOS image into ROM.
func (b *Bus) LoadBIOS(data []byte) error {
	if len(data) != int(addr.BIOSSize) {
		return fmt.Errorf("bios image must be exactly %d bytes, got %d", addr.BIOSSize, len(data))
	}
	copy(b.BIOS, data)
	return nil
}

// inKseg1 reports whether a virtual address lies in the uncached KSEG1
// segment (0xA000_0000-0xBFFF_FFFF), which always bypasses the icache.
func inKseg1(vaddr uint32) bool {
	return vaddr>>29 == 0x5
}

// Read32 performs a 32-bit data load. The cache-control word at
// 0xFFFE_0130 reads back its stored value; every other address is masked
// to its physical counterpart. Data loads never consult the icache (PSX
// has no D-cache); instruction fetch goes through FetchInstruction and the
// CPU decides icache consultation itself.
func (b *Bus) Read32(vaddr uint32) (uint32, error) {
	if vaddr&3 != 0 {
		return 0, &BusError{vaddr, 32, "unaligned"}
	}
	if vaddr == addr.CacheControl {
		return b.cacheControl, nil
	}
	return b.read(addr.Mask(vaddr), 32)
}

func (b *Bus) Read16(vaddr uint32) (uint16, error) {
	if vaddr&1 != 0 {
		return 0, &BusError{vaddr, 16, "unaligned"}
	}
	v, err := b.read(addr.Mask(vaddr), 16)
	return uint16(v), err
}

func (b *Bus) Read8(vaddr uint32) (uint8, error) {
	v, err := b.read(addr.Mask(vaddr), 8)
	return uint8(v), err
}

func (b *Bus) Write32(vaddr uint32, value uint32) error {
	if vaddr&3 != 0 {
		return &BusError{vaddr, 32, "unaligned"}
	}
	if vaddr == addr.CacheControl {
		b.cacheControl = value
		return nil
	}
	return b.write(addr.Mask(vaddr), 32, value)
}

func (b *Bus) Write16(vaddr uint32, value uint16) error {
	if vaddr&1 != 0 {
		return &BusError{vaddr, 16, "unaligned"}
	}
	return b.write(addr.Mask(vaddr), 16, uint32(value))
}

func (b *Bus) Write8(vaddr uint32, value uint8) error {
	return b.write(addr.Mask(vaddr), 8, uint32(value))
}

// FetchInstruction fetches a 32-bit instruction word through the same
// physical decode as a data load (RAM, BIOS, scratchpad, I/O registers,
// open bus), without Read32's cache-control special case.
func (b *Bus) FetchInstruction(vaddr uint32) (uint32, error) {
	if vaddr&3 != 0 {
		return 0, &BusError{vaddr, 32, "unaligned"}
	}
	return b.read(addr.Mask(vaddr), 32)
}

func (b *Bus) read(phys uint32, width int) (uint32, error) {
	switch {
	case phys < addr.RAMSize:
		return readBytes(b.RAM, phys&addr.RAMMask, width), nil
	case phys >= addr.ScratchpadStart && phys < addr.ScratchpadEnd:
		return readBytes(b.Scratchpad, phys-addr.ScratchpadStart, width), nil
	case phys >= addr.IOStart && phys < addr.IOEnd:
		return b.readIO(phys, width), nil
	case phys >= addr.BIOSStart && phys < addr.BIOSEnd:
		return readBytes(b.BIOS, phys-addr.BIOSStart, width), nil
	case phys >= addr.Expansion1 && phys < addr.Expansion1E:
		// ROM header window reads as 0, open bus otherwise (per spec 3).
		if phys-addr.Expansion1 < 0x80 {
			return 0, nil
		}
		return openBus(width), nil
	case phys >= addr.Expansion3 && phys < addr.Expansion3E:
		return openBus(width), nil
	default:
		return openBus(width), nil
	}
}

func openBus(width int) uint32 {
	switch width {
	case 8:
		return 0xFF
	case 16:
		return 0xFFFF
	default:
		return 0xFFFF_FFFF
	}
}

func (b *Bus) write(phys uint32, width int, value uint32) error {
	switch {
	case phys < addr.RAMSize:
		a := phys & addr.RAMMask
		writeBytes(b.RAM, a, width, value)
		b.queueCoherence(a)
		return nil
	case phys >= addr.ScratchpadStart && phys < addr.ScratchpadEnd:
		writeBytes(b.Scratchpad, phys-addr.ScratchpadStart, width, value)
		return nil
	case phys >= addr.IOStart && phys < addr.IOEnd:
		b.writeIO(phys, width, value)
		return nil
	case phys >= addr.BIOSStart && phys < addr.BIOSEnd:
		// BIOS is read-only: writes are silently ignored.
		return nil
	default:
		// Unmapped / expansion writes are ignored, per spec 3.
		return nil
	}
}

// queueCoherence records that a RAM write at the cached and uncached alias
// of this address must be reflected in the icache. The bus always queues
// an invalidate (rather than distinguishing a "code copy window" prefill
// path): any store invalidates both aliases, which upholds the testable
// coherence invariant (spec.md section 8, property 3) without depending on
// an unspecified heuristic window.
func (b *Bus) queueCoherence(ramAddr uint32) {
	b.invalidateQueue = append(b.invalidateQueue, ramAddr, ramAddr|0x8000_0000)
}

// QueueRangeInvalidate is used by the bulk-write path (e.g. DMA block
// transfers into RAM) to invalidate a whole range in one queued entry.
func (b *Bus) QueueRangeInvalidate(start, end uint32) {
	b.rangeInvalidateQueue = append(b.rangeInvalidateQueue, [2]uint32{start, end})
}

// DrainCoherence empties the prefill/invalidate/range-invalidate queues and
// applies them to the icache. Called by System between CPU steps.
func (b *Bus) DrainCoherence(ic *ICache) {
	for _, a := range b.invalidateQueue {
		ic.Invalidate(a)
	}
	b.invalidateQueue = b.invalidateQueue[:0]

	for _, pair := range b.prefillQueue {
		ic.Store(pair[0], pair[1])
	}
	b.prefillQueue = b.prefillQueue[:0]

	for _, r := range b.rangeInvalidateQueue {
		ic.InvalidateRange(r[0], r[1])
	}
	b.rangeInvalidateQueue = b.rangeInvalidateQueue[:0]
}

func readBytes(buf []byte, a uint32, width int) uint32 {
	switch width {
	case 8:
		return uint32(buf[a])
	case 16:
		return uint32(buf[a]) | uint32(buf[a+1])<<8
	default:
		return uint32(buf[a]) | uint32(buf[a+1])<<8 | uint32(buf[a+2])<<16 | uint32(buf[a+3])<<24
	}
}

func writeBytes(buf []byte, a uint32, width int, value uint32) {
	switch width {
	case 8:
		buf[a] = byte(value)
	case 16:
		buf[a] = byte(value)
		buf[a+1] = byte(value >> 8)
	default:
		buf[a] = byte(value)
		buf[a+1] = byte(value >> 8)
		buf[a+2] = byte(value >> 16)
		buf[a+3] = byte(value >> 24)
	}
}

func (b *Bus) readIO(phys uint32, width int) uint32 {
	dev, base := b.deviceFor(phys)
	if dev == nil {
		return openBus(width)
	}
	return dev.ReadIO(phys-base, width)
}

func (b *Bus) writeIO(phys uint32, width int, value uint32) {
	dev, base := b.deviceFor(phys)
	if dev == nil {
		return
	}
	dev.WriteIO(phys-base, width, value)
}

func (b *Bus) deviceFor(phys uint32) (IODevice, uint32) {
	switch {
	case phys >= addr.IOControllerStart && phys < addr.IOControllerEnd:
		return b.Controllers, addr.IOControllerStart
	case phys >= addr.I_STAT && phys < addr.DMAStart:
		return b.Interrupt, addr.I_STAT
	case phys >= addr.DMAStart && phys < addr.DMAEnd:
		return b.DMA, addr.DMAStart
	case phys >= addr.TimerStart && phys < addr.TimerEnd:
		return b.Timers, addr.TimerStart
	case phys >= addr.CDROMStart && phys < addr.CDROMEnd:
		return b.CDROM, addr.CDROMStart
	case phys == addr.GP0 || phys == addr.GP0+1 || phys == addr.GP0+2 || phys == addr.GP0+3,
		phys >= addr.GP1 && phys < addr.GP1+4:
		return b.GPU, addr.GP0
	case phys >= addr.SPUStart && phys < addr.SPUEnd:
		return b.SPU, addr.SPUStart
	case phys >= addr.MemControlStart && phys < addr.MemControlEnd:
		return nil, 0 // accepted, ignored
	default:
		return nil, 0
	}
}
