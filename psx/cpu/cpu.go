// Package cpu implements a MIPS R3000A interpreter: the fetch-execute
// cycle with branch and load delay slots, the COP0 exception pipeline,
// and dispatch into the COP2 (GTE) sidecar. Grounded on the teacher's
// Z80 interpreter shape (jeebie/cpu/*.go: a register file, an opcode
// dispatch table, flag helpers) generalized to the MIPS pipeline this
// spec requires -- the teacher's single CPU struct holding register
// state plus a `*memory.MMU` becomes this CPU holding 32 GPRs plus a
// `*memory.Bus` and `*memory.ICache`.
package cpu

import (
	"log/slog"

	"github.com/nullstep/psxgo/psx/addr"
	"github.com/nullstep/psxgo/psx/interrupt"
	"github.com/nullstep/psxgo/psx/memory"
)

// Exception codes, CAUSE register bits 2-6.
const (
	ExcInterrupt = 0x00
	ExcAdEL      = 0x04
	ExcAdES      = 0x05
	ExcSyscall   = 0x08
	ExcBreak     = 0x09
	ExcRI        = 0x0A // reserved instruction
	ExcCpU       = 0x0B // coprocessor unusable
	ExcOverflow  = 0x0C
)

// COP0 register indices actually modeled by this spec.
const (
	cop0BadVaddr = 8
	cop0SR       = 12
	cop0Cause    = 13
	cop0EPC      = 14
	cop0PRID     = 15
)

const (
	srIEc = 1 << 0
	srKUc = 1 << 1
	srIsC = 1 << 16
	srBEV = 1 << 22
)

const resetPC = 0xBFC0_0000

type pendingLoad struct {
	reg   uint32
	value uint32
	valid bool
}

// CPU holds MIPS R3000A architectural state.
type CPU struct {
	regs    [32]uint32
	outRegs [32]uint32
	hi, lo  uint32

	pc, nextPC    uint32
	inBranchDelay bool // true if the instruction at pc (not yet fetched) is itself in a delay slot

	load pendingLoad

	cop0 [32]uint32
	gte  *GTE

	cycles uint64

	bus    *memory.Bus
	icache *memory.ICache
	irq    *interrupt.Controller

	log *slog.Logger
}

// New returns a CPU reset to the BIOS entry point.
func New(bus *memory.Bus, icache *memory.ICache, irq *interrupt.Controller, log *slog.Logger) *CPU {
	if log == nil {
		log = slog.Default()
	}
	c := &CPU{
		bus:    bus,
		icache: icache,
		irq:    irq,
		gte:    NewGTE(),
		log:    log,
	}
	c.Reset()
	return c
}

// Reset restores the CPU to its post-power-on state.
func (c *CPU) Reset() {
	for i := range c.regs {
		c.regs[i] = 0
	}
	c.hi, c.lo = 0, 0
	c.pc = resetPC
	c.nextPC = resetPC + 4
	c.inBranchDelay = false
	c.load = pendingLoad{}
	for i := range c.cop0 {
		c.cop0[i] = 0
	}
	c.cop0[cop0PRID] = 0x0000_0002
	// BEV is left clear so exceptions vector through 0x8000_0080, the RAM
	// handler base the BIOS installs.
	c.cop0[cop0SR] = 0
	c.cycles = 0
}

func (c *CPU) PC() uint32       { return c.pc }
func (c *CPU) NextPC() uint32   { return c.nextPC }
func (c *CPU) Cycles() uint64   { return c.cycles }
func (c *CPU) HI() uint32       { return c.hi }
func (c *CPU) LO() uint32       { return c.lo }
func (c *CPU) Reg(i uint32) uint32 { return c.reg(i) }
func (c *CPU) COP0(i uint32) uint32 { return c.cop0[i] }
func (c *CPU) SetReg(i uint32, v uint32) {
	if i != 0 {
		c.regs[i] = v
		c.outRegs[i] = v
	}
}
func (c *CPU) SetPC(v uint32) {
	c.pc = v
	c.nextPC = v + 4
}

func (c *CPU) reg(i uint32) uint32 {
	return c.regs[i]
}

// setReg stages a register write into outRegs, which is committed at the
// end of Step. Register 0 is hardwired to zero and never written.
func (c *CPU) setReg(i uint32, v uint32) {
	if i != 0 {
		c.outRegs[i] = v
	}
}

// srInterruptsEnabled reports IEc, the current interrupt-enable bit.
func (c *CPU) srInterruptsEnabled() bool {
	return c.cop0[cop0SR]&srIEc != 0
}

// Step executes exactly one instruction slot (or one interrupt dispatch)
// and returns the number of cycles it cost.
func (c *CPU) Step() (int, error) {
	if c.irq.IsPending() && c.srInterruptsEnabled() {
		c.cop0[cop0Cause] = c.causeWithIP()
		c.raiseException(ExcInterrupt, c.pc, c.inBranchDelay, 0)
		c.cycles++
		return 1, nil
	}

	instrPC := c.pc
	wasDelaySlot := c.inBranchDelay

	word, err := c.fetch(instrPC)
	if err != nil {
		if _, ok := err.(*memory.BusError); ok {
			c.cop0[cop0BadVaddr] = instrPC
			c.raiseException(ExcAdEL, instrPC, wasDelaySlot, 0)
			c.cycles++
			return 1, nil
		}
		return 0, err
	}

	c.pc = c.nextPC
	c.nextPC += 4
	c.inBranchDelay = false

	c.outRegs = c.regs
	if c.load.valid {
		c.setReg(c.load.reg, c.load.value)
	}
	c.load = pendingLoad{}

	c.execute(Instruction(word), instrPC, wasDelaySlot)

	c.regs = c.outRegs
	c.regs[0] = 0
	c.cycles++
	return 1, nil
}

// fetch reads a 32-bit instruction word, consulting the icache for
// cacheable segments (KUSEG/KSEG0) and bypassing it for KSEG1.
func (c *CPU) fetch(vaddr uint32) (uint32, error) {
	if vaddr&3 != 0 {
		return 0, &memory.BusError{Addr: vaddr, Width: 32, Kind: "unaligned"}
	}

	if vaddr>>29 == 0x5 { // KSEG1: always bypasses
		return c.bus.FetchInstruction(vaddr)
	}

	phys := addr.Mask(vaddr)
	if data, ok := c.icache.Lookup(phys); ok {
		return data, nil
	}
	data, err := c.bus.FetchInstruction(vaddr)
	if err != nil {
		return 0, err
	}
	c.icache.Store(phys, data)
	return data, nil
}

// scheduleLoad sets up the single-entry load-delay slot that commits at
// the start of the next Step.
func (c *CPU) scheduleLoad(reg uint32, value uint32) {
	if reg == 0 {
		return
	}
	c.load = pendingLoad{reg: reg, value: value, valid: true}
}

// raiseException implements spec.md section 4.3's exception dispatch.
func (c *CPU) raiseException(code uint32, pc uint32, inDelaySlot bool, copNum uint32) {
	handler := uint32(0x8000_0080)
	if c.cop0[cop0SR]&srBEV != 0 {
		handler = 0xBFC0_0180
	}

	epc := pc
	if inDelaySlot {
		epc -= 4
	}
	c.cop0[cop0EPC] = epc

	cause := c.cop0[cop0Cause]
	cause &^= 0x3F << 2
	cause |= (code & 0x3F) << 2
	cause &^= 0x3 << 28
	cause |= (copNum & 0x3) << 28
	if inDelaySlot {
		cause |= 1 << 31
	} else {
		cause &^= 1 << 31
	}
	c.cop0[cop0Cause] = cause

	sr := c.cop0[cop0SR]
	mode := sr & 0x3F
	sr = (sr &^ 0x3F) | ((mode << 2) & 0x3F)
	c.cop0[cop0SR] = sr

	c.pc = handler
	c.nextPC = handler + 4
	c.inBranchDelay = false
	c.load = pendingLoad{}
}

// causeWithIP overlays the live pending-interrupt lines onto CAUSE bits
// 8-15, which mirror status AND mask rather than holding latched state.
func (c *CPU) causeWithIP() uint32 {
	return (c.cop0[cop0Cause] &^ (0xFF << 8)) | uint32(c.irq.Pending()&0xFF)<<8
}

// rfe rotates the SR interrupt/mode stack right by two, restoring the
// previous execution context.
func (c *CPU) rfe() {
	sr := c.cop0[cop0SR]
	mode := sr & 0x3F
	newMode := (mode >> 2) | (mode & 0x30)
	c.cop0[cop0SR] = (sr &^ 0x3F) | newMode
}
