package x86

// operand is a decoded ModR/M byte plus the effective address it
// resolves to when mod selects a memory form.
// https://en.wikipedia.org/wiki/ModR/M
type operand struct {
	mod, reg, rm uint8
	ea           uint16 // 16-bit offset before segmentation
	seg          int    // segment register index the access uses
	isReg        bool   // mod == 3: rm names a register
}

// fetchOperand consumes the ModR/M byte and any displacement. The
// default segment is SS for the BP based forms and DS otherwise; an
// active override prefix replaces it.
func (c *CPU) fetchOperand() operand {
	b := c.fetch8()
	o := operand{mod: b >> 6, reg: (b >> 3) & 7, rm: b & 7}

	if o.mod == 3 {
		o.isReg = true
		return o
	}

	seg := DS
	var ea uint16
	switch o.rm {
	case 0:
		ea = c.reg[BX] + c.reg[SI]
	case 1:
		ea = c.reg[BX] + c.reg[DI]
	case 2:
		ea = c.reg[BP] + c.reg[SI]
		seg = SS
	case 3:
		ea = c.reg[BP] + c.reg[DI]
		seg = SS
	case 4:
		ea = c.reg[SI]
	case 5:
		ea = c.reg[DI]
	case 6:
		if o.mod == 0 {
			// direct 16-bit displacement, no base
			ea = c.fetch16()
		} else {
			ea = c.reg[BP]
			seg = SS
		}
	case 7:
		ea = c.reg[BX]
	}

	switch o.mod {
	case 1:
		ea += uint16(int16(int8(c.fetch8())))
	case 2:
		ea += c.fetch16()
	}

	if c.segOverride != SEG_NONE {
		seg = c.segOverride
	}

	o.ea = ea
	o.seg = seg

	return o
}

// addr folds the operand's segment:offset to a linear address.
// Callers must only use it on memory forms.
func (c *CPU) addr(o operand) uint32 {
	return Linear(c.sreg[o.seg], o.ea)
}

func (c *CPU) readRM8(o operand) uint8 {
	if o.isReg {
		return c.Reg8(int(o.rm))
	}

	return c.mem.Read8(c.addr(o))
}

func (c *CPU) writeRM8(o operand, v uint8) {
	if o.isReg {
		c.SetReg8(int(o.rm), v)
		return
	}
	c.mem.Write8(c.addr(o), v)
}

func (c *CPU) readRM16(o operand) uint16 {
	if o.isReg {
		return c.reg[o.rm]
	}

	return c.mem.Read16(c.addr(o))
}

func (c *CPU) writeRM16(o operand, v uint16) {
	if o.isReg {
		c.reg[o.rm] = v
		return
	}
	c.mem.Write16(c.addr(o), v)
}
