package cpu

// execSpecial dispatches SPECIAL (opcode 0) instructions by their funct
// field: the register-register ALU ops, shifts, HI/LO moves, multiply and
// divide, and JR/JALR.
func (c *CPU) execSpecial(instr Instruction, instrPC uint32, inDelaySlot bool) {
	switch instr.Funct() {
	case 0x00: // SLL
		c.setReg(instr.Rd(), c.reg(instr.Rt())<<instr.Shamt())
	case 0x02: // SRL
		c.setReg(instr.Rd(), c.reg(instr.Rt())>>instr.Shamt())
	case 0x03: // SRA
		c.setReg(instr.Rd(), uint32(int32(c.reg(instr.Rt()))>>instr.Shamt()))
	case 0x04: // SLLV
		c.setReg(instr.Rd(), c.reg(instr.Rt())<<(c.reg(instr.Rs())&0x1F))
	case 0x06: // SRLV
		c.setReg(instr.Rd(), c.reg(instr.Rt())>>(c.reg(instr.Rs())&0x1F))
	case 0x07: // SRAV
		c.setReg(instr.Rd(), uint32(int32(c.reg(instr.Rt()))>>(c.reg(instr.Rs())&0x1F)))
	case 0x08: // JR
		c.branchTo(c.reg(instr.Rs()))
	case 0x09: // JALR
		target := c.reg(instr.Rs())
		c.setReg(instr.Rd(), c.nextPC)
		c.branchTo(target)
	case 0x0C: // SYSCALL
		c.raiseException(ExcSyscall, instrPC, inDelaySlot, 0)
	case 0x0D: // BREAK
		c.raiseException(ExcBreak, instrPC, inDelaySlot, 0)
	case 0x10: // MFHI
		c.setReg(instr.Rd(), c.hi)
	case 0x11: // MTHI
		c.hi = c.reg(instr.Rs())
	case 0x12: // MFLO
		c.setReg(instr.Rd(), c.lo)
	case 0x13: // MTLO
		c.lo = c.reg(instr.Rs())
	case 0x18: // MULT
		a := int64(int32(c.reg(instr.Rs())))
		b := int64(int32(c.reg(instr.Rt())))
		result := uint64(a * b)
		c.lo = uint32(result)
		c.hi = uint32(result >> 32)
	case 0x19: // MULTU
		result := uint64(c.reg(instr.Rs())) * uint64(c.reg(instr.Rt()))
		c.lo = uint32(result)
		c.hi = uint32(result >> 32)
	case 0x1A: // DIV
		c.execDiv(instr)
	case 0x1B: // DIVU
		c.execDivU(instr)
	case 0x20: // ADD
		a := int32(c.reg(instr.Rs()))
		b := int32(c.reg(instr.Rt()))
		result := a + b
		if addOverflows(a, b, result) {
			c.raiseException(ExcOverflow, instrPC, inDelaySlot, 0)
			return
		}
		c.setReg(instr.Rd(), uint32(result))
	case 0x21: // ADDU
		c.setReg(instr.Rd(), c.reg(instr.Rs())+c.reg(instr.Rt()))
	case 0x22: // SUB
		a := int32(c.reg(instr.Rs()))
		b := int32(c.reg(instr.Rt()))
		result := a - b
		if subOverflows(a, b, result) {
			c.raiseException(ExcOverflow, instrPC, inDelaySlot, 0)
			return
		}
		c.setReg(instr.Rd(), uint32(result))
	case 0x23: // SUBU
		c.setReg(instr.Rd(), c.reg(instr.Rs())-c.reg(instr.Rt()))
	case 0x24: // AND
		c.setReg(instr.Rd(), c.reg(instr.Rs())&c.reg(instr.Rt()))
	case 0x25: // OR
		c.setReg(instr.Rd(), c.reg(instr.Rs())|c.reg(instr.Rt()))
	case 0x26: // XOR
		c.setReg(instr.Rd(), c.reg(instr.Rs())^c.reg(instr.Rt()))
	case 0x27: // NOR
		c.setReg(instr.Rd(), ^(c.reg(instr.Rs()) | c.reg(instr.Rt())))
	case 0x2A: // SLT
		v := int32(c.reg(instr.Rs())) < int32(c.reg(instr.Rt()))
		c.setReg(instr.Rd(), boolToU32(v))
	case 0x2B: // SLTU
		v := c.reg(instr.Rs()) < c.reg(instr.Rt())
		c.setReg(instr.Rd(), boolToU32(v))
	default:
		c.raiseException(ExcRI, instrPC, inDelaySlot, 0)
	}
}

// execDiv implements signed divide with the MIPS-specified defined
// behavior on divide-by-zero and on the INT32_MIN / -1 overflow case,
// rather than faulting.
func (c *CPU) execDiv(instr Instruction) {
	n := int32(c.reg(instr.Rs()))
	d := int32(c.reg(instr.Rt()))

	switch {
	case d == 0:
		if n >= 0 {
			c.lo = 0xFFFF_FFFF
		} else {
			c.lo = 1
		}
		c.hi = uint32(n)
	case n == -2147483648 && d == -1:
		c.lo = 0x8000_0000
		c.hi = 0
	default:
		c.lo = uint32(n / d)
		c.hi = uint32(n % d)
	}
}

func (c *CPU) execDivU(instr Instruction) {
	n := c.reg(instr.Rs())
	d := c.reg(instr.Rt())
	if d == 0 {
		c.lo = 0xFFFF_FFFF
		c.hi = n
		return
	}
	c.lo = n / d
	c.hi = n % d
}
