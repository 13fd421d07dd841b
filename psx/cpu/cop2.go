package cpu

// execCop2 dispatches COP2 (GTE) instructions: MFC2/CFC2 read the data or
// control register file into a load-delayed GPR, MTC2/CTC2 write a GPR
// into the register file, and any instruction with bit 25 set is a GTE
// command word whose low 6 bits select the opcode (spec.md section 4.3).
func (c *CPU) execCop2(instr Instruction) {
	if uint32(instr)&(1<<25) != 0 {
		c.gte.Execute(uint32(instr) & 0x3F)
		return
	}
	switch instr.CopOp() {
	case 0x00: // MFC2
		c.scheduleLoad(instr.Rt(), c.gte.Data(instr.Rd()))
	case 0x02: // CFC2
		c.scheduleLoad(instr.Rt(), c.gte.Ctrl(instr.Rd()))
	case 0x04: // MTC2
		c.gte.SetData(instr.Rd(), c.reg(instr.Rt()))
	case 0x06: // CTC2
		c.gte.SetCtrl(instr.Rd(), c.reg(instr.Rt()))
	}
}

// execGteTransfer implements LWC2/SWC2: the memory-to-GTE-register and
// GTE-register-to-memory data moves. Unlike ordinary loads these target
// the GTE data file rather than a GPR, so they bypass the load-delay slot.
func (c *CPU) execGteTransfer(instr Instruction, instrPC uint32, inDelaySlot bool, isStore bool) {
	vaddr := c.loadAddress(instr)
	if isStore {
		if err := c.bus.Write32(vaddr, c.gte.Data(instr.Rt())); err != nil {
			c.cop0[cop0BadVaddr] = vaddr
			c.raiseException(ExcAdES, instrPC, inDelaySlot, 0)
		}
		return
	}
	value, err := c.bus.Read32(vaddr)
	if err != nil {
		c.cop0[cop0BadVaddr] = vaddr
		c.raiseException(ExcAdEL, instrPC, inDelaySlot, 0)
		return
	}
	c.gte.SetData(instr.Rt(), value)
}
