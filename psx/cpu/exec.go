package cpu

import (
	"github.com/nullstep/psxgo/psx/addr"
	"github.com/nullstep/psxgo/psx/memory"
)

// execute decodes and dispatches a single instruction word. instrPC is the
// address it was fetched from (for branch target math and exception EPC);
// inDelaySlot is whether instrPC sits in the delay slot of a prior branch.
func (c *CPU) execute(instr Instruction, instrPC uint32, inDelaySlot bool) {
	switch instr.Opcode() {
	case 0x00:
		c.execSpecial(instr, instrPC, inDelaySlot)
	case 0x01:
		c.execBcondZ(instr, instrPC, inDelaySlot)
	case 0x02: // J
		target := (c.nextPC & 0xF000_0000) | (instr.Target() << 2)
		c.branchTo(target)
	case 0x03: // JAL
		c.setReg(31, c.nextPC)
		target := (c.nextPC & 0xF000_0000) | (instr.Target() << 2)
		c.branchTo(target)
	case 0x04: // BEQ
		c.branchIf(instrPC, instr, c.reg(instr.Rs()) == c.reg(instr.Rt()))
	case 0x05: // BNE
		c.branchIf(instrPC, instr, c.reg(instr.Rs()) != c.reg(instr.Rt()))
	case 0x06: // BLEZ
		c.branchIf(instrPC, instr, int32(c.reg(instr.Rs())) <= 0)
	case 0x07: // BGTZ
		c.branchIf(instrPC, instr, int32(c.reg(instr.Rs())) > 0)
	case 0x08: // ADDI
		c.execAddI(instr, instrPC, inDelaySlot, true)
	case 0x09: // ADDIU
		c.execAddI(instr, instrPC, inDelaySlot, false)
	case 0x0A: // SLTI
		v := int32(c.reg(instr.Rs())) < int32(instr.ImmSE())
		c.setReg(instr.Rt(), boolToU32(v))
	case 0x0B: // SLTIU
		v := c.reg(instr.Rs()) < instr.ImmSE()
		c.setReg(instr.Rt(), boolToU32(v))
	case 0x0C: // ANDI
		c.setReg(instr.Rt(), c.reg(instr.Rs())&instr.Imm16())
	case 0x0D: // ORI
		c.setReg(instr.Rt(), c.reg(instr.Rs())|instr.Imm16())
	case 0x0E: // XORI
		c.setReg(instr.Rt(), c.reg(instr.Rs())^instr.Imm16())
	case 0x0F: // LUI
		c.setReg(instr.Rt(), instr.Imm16()<<16)
	case 0x10:
		c.execCop0(instr)
	case 0x12:
		c.execCop2(instr)
	case 0x20: // LB
		c.execLoad(instr, instrPC, inDelaySlot, 8, true)
	case 0x21: // LH
		c.execLoad(instr, instrPC, inDelaySlot, 16, true)
	case 0x22: // LWL
		c.execLWL(instr)
	case 0x23: // LW
		c.execLoad(instr, instrPC, inDelaySlot, 32, true)
	case 0x24: // LBU
		c.execLoad(instr, instrPC, inDelaySlot, 8, false)
	case 0x25: // LHU
		c.execLoad(instr, instrPC, inDelaySlot, 16, false)
	case 0x26: // LWR
		c.execLWR(instr)
	case 0x28: // SB
		c.execStore(instr, instrPC, inDelaySlot, 8)
	case 0x29: // SH
		c.execStore(instr, instrPC, inDelaySlot, 16)
	case 0x2A: // SWL
		c.execSWL(instr)
	case 0x2B: // SW
		c.execStore(instr, instrPC, inDelaySlot, 32)
	case 0x2E: // SWR
		c.execSWR(instr)
	case 0x11, 0x13: // COP1 / COP3 do not exist on this CPU
		c.raiseException(ExcCpU, instrPC, inDelaySlot, instr.Opcode()&0x3)
	case 0x32, 0x3A: // LWC2 / SWC2 (GTE data transfer)
		c.execGteTransfer(instr, instrPC, inDelaySlot, instr.Opcode() == 0x3A)
	default:
		c.raiseException(ExcRI, instrPC, inDelaySlot, 0)
	}
}

func boolToU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (c *CPU) branchTo(target uint32) {
	c.nextPC = target
	c.inBranchDelay = true
}

func (c *CPU) branchIf(instrPC uint32, instr Instruction, cond bool) {
	if cond {
		target := instrPC + 4 + (instr.ImmSE() << 2)
		c.branchTo(target)
	}
}

func (c *CPU) execBcondZ(instr Instruction, instrPC uint32, inDelaySlot bool) {
	rs := int32(c.reg(instr.Rs()))
	sub := instr.Rt()
	isGE := sub&0x01 != 0
	link := sub&0x1E == 0x10

	var cond bool
	if isGE {
		cond = rs >= 0
	} else {
		cond = rs < 0
	}

	if link {
		c.setReg(31, c.nextPC)
	}
	c.branchIf(instrPC, instr, cond)
}

func (c *CPU) execAddI(instr Instruction, instrPC uint32, inDelaySlot bool, checkOverflow bool) {
	a := int32(c.reg(instr.Rs()))
	b := int32(instr.ImmSE())
	result := a + b
	if checkOverflow && addOverflows(a, b, result) {
		c.raiseException(ExcOverflow, instrPC, inDelaySlot, 0)
		return
	}
	c.setReg(instr.Rt(), uint32(result))
}

func addOverflows(a, b, result int32) bool {
	return ((a ^ result) & (b ^ result)) < 0
}

func subOverflows(a, b, result int32) bool {
	return ((a ^ b) & (a ^ result)) < 0
}

func (c *CPU) loadAddress(instr Instruction) uint32 {
	return c.reg(instr.Rs()) + instr.ImmSE()
}

func (c *CPU) execLoad(instr Instruction, instrPC uint32, inDelaySlot bool, width int, signed bool) {
	vaddr := c.loadAddress(instr)
	var value uint32
	var err error
	switch width {
	case 8:
		var v uint8
		v, err = c.bus.Read8(vaddr)
		if signed {
			value = signExtend8(v)
		} else {
			value = uint32(v)
		}
	case 16:
		var v uint16
		v, err = c.bus.Read16(vaddr)
		if signed {
			value = signExtend16(v)
		} else {
			value = uint32(v)
		}
	default:
		value, err = c.bus.Read32(vaddr)
	}
	if err != nil {
		if _, ok := err.(*memory.BusError); ok {
			c.cop0[cop0BadVaddr] = vaddr
			c.raiseException(ExcAdEL, instrPC, inDelaySlot, 0)
			return
		}
		return
	}
	c.scheduleLoad(instr.Rt(), value)
}

func signExtend8(v uint8) uint32 {
	return uint32(int32(int8(v)))
}

func (c *CPU) execStore(instr Instruction, instrPC uint32, inDelaySlot bool, width int) {
	vaddr := c.loadAddress(instr)
	value := c.reg(instr.Rt())
	if c.cop0[cop0SR]&srIsC != 0 {
		// Isolated cache: stores hit the icache tag store instead of memory.
		// The BIOS flush routine relies on this to invalidate lines.
		c.icache.Invalidate(addr.Mask(vaddr))
		return
	}
	var err error
	switch width {
	case 8:
		err = c.bus.Write8(vaddr, uint8(value))
	case 16:
		err = c.bus.Write16(vaddr, uint16(value))
	default:
		err = c.bus.Write32(vaddr, value)
	}
	if err != nil {
		if _, ok := err.(*memory.BusError); ok {
			c.cop0[cop0BadVaddr] = vaddr
			c.raiseException(ExcAdES, instrPC, inDelaySlot, 0)
		}
	}
}

// execLWL/execLWR/execSWL/execSWR realize unaligned 32-bit access by
// masking within the naturally aligned word containing vaddr. The merge
// source is the register's committed value: any load pending from the
// previous instruction was already committed (or overridden) before
// execution began.
func (c *CPU) execLWL(instr Instruction) {
	vaddr := c.loadAddress(instr)
	aligned := vaddr &^ 3
	word, err := c.bus.Read32(aligned)
	if err != nil {
		return
	}
	cur := c.outRegs[instr.Rt()]
	shift := (vaddr & 3) * 8
	mask := uint32(0x00FF_FFFF) >> shift
	result := (cur & mask) | (word << (24 - shift))
	c.scheduleLoad(instr.Rt(), result)
}

func (c *CPU) execLWR(instr Instruction) {
	vaddr := c.loadAddress(instr)
	aligned := vaddr &^ 3
	word, err := c.bus.Read32(aligned)
	if err != nil {
		return
	}
	cur := c.outRegs[instr.Rt()]
	shift := (vaddr & 3) * 8
	mask := uint32(0xFFFF_FF00) << (24 - shift)
	result := (cur & mask) | (word >> shift)
	c.scheduleLoad(instr.Rt(), result)
}

func (c *CPU) execSWL(instr Instruction) {
	vaddr := c.loadAddress(instr)
	aligned := vaddr &^ 3
	word, err := c.bus.Read32(aligned)
	if err != nil {
		return
	}
	value := c.reg(instr.Rt())
	shift := (vaddr & 3) * 8
	mask := uint32(0xFFFF_FF00) << shift
	result := (word & mask) | (value >> (24 - shift))
	_ = c.bus.Write32(aligned, result)
}

func (c *CPU) execSWR(instr Instruction) {
	vaddr := c.loadAddress(instr)
	aligned := vaddr &^ 3
	word, err := c.bus.Read32(aligned)
	if err != nil {
		return
	}
	value := c.reg(instr.Rt())
	shift := (vaddr & 3) * 8
	mask := uint32(0x00FF_FFFF) >> (24 - shift)
	result := (word & mask) | (value << shift)
	_ = c.bus.Write32(aligned, result)
}
