package cpu

// execCop0 dispatches MFC0/MTC0/RFE. Only the register subset spec.md
// section 3 names (SR, CAUSE, EPC, PRID, plus BadVaddr for fault
// reporting) has defined semantics; other COP0 registers are a plain
// read/write scratch array.
func (c *CPU) execCop0(instr Instruction) {
	switch instr.CopOp() {
	case 0x00: // MFC0
		value := c.cop0[instr.Rd()]
		if instr.Rd() == cop0Cause {
			value = c.causeWithIP()
		}
		c.scheduleLoad(instr.Rt(), value)
	case 0x04: // MTC0
		c.cop0[instr.Rd()] = c.reg(instr.Rt())
	case 0x10: // RFE (and other COP0 funct-16 ops; only RFE is modeled)
		if instr.Funct() == 0x10 {
			c.rfe()
		}
	}
}
