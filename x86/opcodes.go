package x86

import "errors"

// errBadEncoding flags a reg-field form the group decoders do not
// recognize; exec converts it to an OpcodeError at the right CS:IP.
var errBadEncoding = errors.New("undefined instruction form")

// ALU operation indexes as encoded in bits 5-3 of the 0x00-0x3F
// opcode block and in the reg field of the 0x80-0x83 immediate group.
const (
	aluADD = iota
	aluOR
	aluADC
	aluSBB
	aluAND
	aluSUB
	aluXOR
	aluCMP
)

// alu8 applies one ALU op to 8-bit operands, committing flags and
// returning the result. CMP returns a unchanged; callers skip the
// write-back for it.
func (c *CPU) alu8(op uint8, a, b uint8) uint8 {
	switch op {
	case aluADD:
		rw := uint16(a) + uint16(b)
		c.SetFlags(updateAdd8(c.flags, a, b, rw))
		return uint8(rw)
	case aluADC:
		rw := uint16(a) + uint16(b) + uint16(c.flags&FLAG_CF)
		c.SetFlags(updateAdd8(c.flags, a, b, rw))
		return uint8(rw)
	case aluSUB:
		rw := uint16(a) - uint16(b)
		c.SetFlags(updateSub8(c.flags, a, b, rw))
		return uint8(rw)
	case aluSBB:
		rw := uint16(a) - uint16(b) - uint16(c.flags&FLAG_CF)
		c.SetFlags(updateSub8(c.flags, a, b, rw))
		return uint8(rw)
	case aluCMP:
		rw := uint16(a) - uint16(b)
		c.SetFlags(updateSub8(c.flags, a, b, rw))
		return a
	case aluAND:
		r := a & b
		c.SetFlags(updateLogic8(c.flags, r))
		return r
	case aluOR:
		r := a | b
		c.SetFlags(updateLogic8(c.flags, r))
		return r
	case aluXOR:
		r := a ^ b
		c.SetFlags(updateLogic8(c.flags, r))
		return r
	}

	return a
}

func (c *CPU) alu16(op uint8, a, b uint16) uint16 {
	switch op {
	case aluADD:
		rw := uint32(a) + uint32(b)
		c.SetFlags(updateAdd16(c.flags, a, b, rw))
		return uint16(rw)
	case aluADC:
		rw := uint32(a) + uint32(b) + uint32(c.flags&FLAG_CF)
		c.SetFlags(updateAdd16(c.flags, a, b, rw))
		return uint16(rw)
	case aluSUB:
		rw := uint32(a) - uint32(b)
		c.SetFlags(updateSub16(c.flags, a, b, rw))
		return uint16(rw)
	case aluSBB:
		rw := uint32(a) - uint32(b) - uint32(c.flags&FLAG_CF)
		c.SetFlags(updateSub16(c.flags, a, b, rw))
		return uint16(rw)
	case aluCMP:
		rw := uint32(a) - uint32(b)
		c.SetFlags(updateSub16(c.flags, a, b, rw))
		return a
	case aluAND:
		r := a & b
		c.SetFlags(updateLogic16(c.flags, r))
		return r
	case aluOR:
		r := a | b
		c.SetFlags(updateLogic16(c.flags, r))
		return r
	case aluXOR:
		r := a ^ b
		c.SetFlags(updateLogic16(c.flags, r))
		return r
	}

	return a
}

// aluInst handles the regular 0x00-0x3D block: bits 5-3 pick the
// operation, bits 2-0 the operand form.
func (c *CPU) aluInst(op uint8) {
	kind := (op >> 3) & 7

	switch op & 7 {
	case 0: // r/m8, r8
		o := c.fetchOperand()
		r := c.alu8(kind, c.readRM8(o), c.Reg8(int(o.reg)))
		if kind != aluCMP {
			c.writeRM8(o, r)
		}
	case 1: // r/m16, r16
		o := c.fetchOperand()
		r := c.alu16(kind, c.readRM16(o), c.reg[o.reg])
		if kind != aluCMP {
			c.writeRM16(o, r)
		}
	case 2: // r8, r/m8
		o := c.fetchOperand()
		c.SetReg8(int(o.reg), c.alu8(kind, c.Reg8(int(o.reg)), c.readRM8(o)))
	case 3: // r16, r/m16
		o := c.fetchOperand()
		c.reg[o.reg] = c.alu16(kind, c.reg[o.reg], c.readRM16(o))
	case 4: // AL, imm8
		c.SetReg8(AL, c.alu8(kind, c.Reg8(AL), c.fetch8()))
	case 5: // AX, imm16
		c.reg[AX] = c.alu16(kind, c.reg[AX], c.fetch16())
	}
}

// inc8/dec8 and the 16-bit versions use the add/sub flag rules but
// preserve CF, which INC and DEC never touch.
func (c *CPU) inc8(v uint8) uint8 {
	cf := c.flags & FLAG_CF
	rw := uint16(v) + 1
	c.SetFlags(updateAdd8(c.flags, v, 1, rw)&^FLAG_CF | cf)

	return uint8(rw)
}

func (c *CPU) dec8(v uint8) uint8 {
	cf := c.flags & FLAG_CF
	rw := uint16(v) - 1
	c.SetFlags(updateSub8(c.flags, v, 1, rw)&^FLAG_CF | cf)

	return uint8(rw)
}

func (c *CPU) inc16(v uint16) uint16 {
	cf := c.flags & FLAG_CF
	rw := uint32(v) + 1
	c.SetFlags(updateAdd16(c.flags, v, 1, rw)&^FLAG_CF | cf)

	return uint16(rw)
}

func (c *CPU) dec16(v uint16) uint16 {
	cf := c.flags & FLAG_CF
	rw := uint32(v) - 1
	c.SetFlags(updateSub16(c.flags, v, 1, rw)&^FLAG_CF | cf)

	return uint16(rw)
}

// cond evaluates the Jcc condition for opcodes 0x70-0x7F. Conditions
// come in negated pairs; bit 0 inverts.
// https://www.felixcloutier.com/x86/jcc
func (c *CPU) cond(n uint8) bool {
	var r bool
	switch (n & 0xF) >> 1 {
	case 0: // O
		r = c.flags&FLAG_OF != 0
	case 1: // B/C
		r = c.flags&FLAG_CF != 0
	case 2: // E/Z
		r = c.flags&FLAG_ZF != 0
	case 3: // BE
		r = c.flags&(FLAG_CF|FLAG_ZF) != 0
	case 4: // S
		r = c.flags&FLAG_SF != 0
	case 5: // P
		r = c.flags&FLAG_PF != 0
	case 6: // L
		r = (c.flags&FLAG_SF != 0) != (c.flags&FLAG_OF != 0)
	case 7: // LE
		r = c.flags&FLAG_ZF != 0 ||
			(c.flags&FLAG_SF != 0) != (c.flags&FLAG_OF != 0)
	}
	if n&1 != 0 {
		r = !r
	}

	return r
}

func (c *CPU) jmpRel8(taken bool) {
	d := int8(c.fetch8())
	if taken {
		c.ip += uint16(int16(d))
	}
}

// exec dispatches a non-prefix opcode byte. atCS:atIP locate the
// byte for fault reporting.
func (c *CPU) exec(op uint8, atCS, atIP uint16) error {
	switch op {
	// ALU block: ADD/OR/ADC/SBB/AND/SUB/XOR/CMP in all six
	// regular operand forms.
	case 0x00, 0x01, 0x02, 0x03, 0x04, 0x05,
		0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D,
		0x10, 0x11, 0x12, 0x13, 0x14, 0x15,
		0x18, 0x19, 0x1A, 0x1B, 0x1C, 0x1D,
		0x20, 0x21, 0x22, 0x23, 0x24, 0x25,
		0x28, 0x29, 0x2A, 0x2B, 0x2C, 0x2D,
		0x30, 0x31, 0x32, 0x33, 0x34, 0x35,
		0x38, 0x39, 0x3A, 0x3B, 0x3C, 0x3D:
		c.aluInst(op)

	case 0x06, 0x0E, 0x16, 0x1E: // PUSH sreg
		c.push16(c.sreg[(op>>3)&3])
	case 0x07, 0x17, 0x1F: // POP sreg (POP CS does not exist)
		c.sreg[(op>>3)&3] = c.pop16()

	case 0x40, 0x41, 0x42, 0x43, 0x44, 0x45, 0x46, 0x47: // INC r16
		i := op & 7
		c.reg[i] = c.inc16(c.reg[i])
	case 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F: // DEC r16
		i := op & 7
		c.reg[i] = c.dec16(c.reg[i])

	case 0x50, 0x51, 0x52, 0x53, 0x54, 0x55, 0x56, 0x57: // PUSH r16
		c.push16(c.reg[op&7])
	case 0x58, 0x59, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F: // POP r16
		c.reg[op&7] = c.pop16()

	case 0x70, 0x71, 0x72, 0x73, 0x74, 0x75, 0x76, 0x77,
		0x78, 0x79, 0x7A, 0x7B, 0x7C, 0x7D, 0x7E, 0x7F: // Jcc rel8
		c.jmpRel8(c.cond(op & 0xF))

	case 0x80, 0x82: // ALU r/m8, imm8 (0x82 is an 8086 alias)
		o := c.fetchOperand()
		v := c.readRM8(o)
		r := c.alu8(o.reg, v, c.fetch8())
		if o.reg != aluCMP {
			c.writeRM8(o, r)
		}
	case 0x81: // ALU r/m16, imm16
		o := c.fetchOperand()
		v := c.readRM16(o)
		r := c.alu16(o.reg, v, c.fetch16())
		if o.reg != aluCMP {
			c.writeRM16(o, r)
		}
	case 0x83: // ALU r/m16, imm8 sign extended
		o := c.fetchOperand()
		v := c.readRM16(o)
		r := c.alu16(o.reg, v, uint16(int16(int8(c.fetch8()))))
		if o.reg != aluCMP {
			c.writeRM16(o, r)
		}

	case 0x84: // TEST r/m8, r8
		o := c.fetchOperand()
		c.SetFlags(updateLogic8(c.flags, c.readRM8(o)&c.Reg8(int(o.reg))))
	case 0x85: // TEST r/m16, r16
		o := c.fetchOperand()
		c.SetFlags(updateLogic16(c.flags, c.readRM16(o)&c.reg[o.reg]))

	case 0x86: // XCHG r/m8, r8
		o := c.fetchOperand()
		v := c.readRM8(o)
		c.writeRM8(o, c.Reg8(int(o.reg)))
		c.SetReg8(int(o.reg), v)
	case 0x87: // XCHG r/m16, r16
		o := c.fetchOperand()
		v := c.readRM16(o)
		c.writeRM16(o, c.reg[o.reg])
		c.reg[o.reg] = v

	case 0x88: // MOV r/m8, r8
		o := c.fetchOperand()
		c.writeRM8(o, c.Reg8(int(o.reg)))
	case 0x89: // MOV r/m16, r16
		o := c.fetchOperand()
		c.writeRM16(o, c.reg[o.reg])
	case 0x8A: // MOV r8, r/m8
		o := c.fetchOperand()
		c.SetReg8(int(o.reg), c.readRM8(o))
	case 0x8B: // MOV r16, r/m16
		o := c.fetchOperand()
		c.reg[o.reg] = c.readRM16(o)

	case 0x8C: // MOV r/m16, sreg
		o := c.fetchOperand()
		c.writeRM16(o, c.sreg[o.reg&3])
	case 0x8D: // LEA r16, m
		o := c.fetchOperand()
		if o.isReg {
			return &OpcodeError{op, atCS, atIP}
		}
		c.reg[o.reg] = o.ea
	case 0x8E: // MOV sreg, r/m16
		o := c.fetchOperand()
		if o.reg&3 == CS {
			return &OpcodeError{op, atCS, atIP}
		}
		c.sreg[o.reg&3] = c.readRM16(o)
	case 0x8F: // POP r/m16
		o := c.fetchOperand()
		if o.reg != 0 {
			return &OpcodeError{op, atCS, atIP}
		}
		c.writeRM16(o, c.pop16())

	case 0x90: // NOP (a.k.a. XCHG AX,AX)

	case 0x91, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97: // XCHG AX, r16
		i := op & 7
		c.reg[AX], c.reg[i] = c.reg[i], c.reg[AX]

	case 0x98: // CBW
		c.reg[AX] = uint16(int16(int8(c.Reg8(AL))))
	case 0x99: // CWD
		if c.reg[AX]&0x8000 != 0 {
			c.reg[DX] = 0xFFFF
		} else {
			c.reg[DX] = 0
		}

	case 0x9A: // CALL far ptr16:16
		off := c.fetch16()
		seg := c.fetch16()
		c.push16(c.sreg[CS])
		c.push16(c.ip)
		c.sreg[CS] = seg
		c.ip = off

	case 0x9B: // WAIT; no coprocessor, nothing to wait on

	case 0x9C: // PUSHF
		c.push16(c.flags)
	case 0x9D: // POPF
		c.SetFlags(c.pop16())
	case 0x9E: // SAHF
		c.SetFlags((c.flags &^ 0x00D5) | (uint16(c.Reg8(AH)) & 0x00D5))
	case 0x9F: // LAHF
		c.SetReg8(AH, uint8(c.flags)&0xD7)

	case 0xA0: // MOV AL, [moffs8]
		c.SetReg8(AL, c.mem.Read8(Linear(c.memSeg(DS), c.fetch16())))
	case 0xA1: // MOV AX, [moffs16]
		c.reg[AX] = c.mem.Read16(Linear(c.memSeg(DS), c.fetch16()))
	case 0xA2: // MOV [moffs8], AL
		c.mem.Write8(Linear(c.memSeg(DS), c.fetch16()), c.Reg8(AL))
	case 0xA3: // MOV [moffs16], AX
		c.mem.Write16(Linear(c.memSeg(DS), c.fetch16()), c.reg[AX])

	case 0xA4, 0xA5, 0xA6, 0xA7, 0xAA, 0xAB, 0xAC, 0xAD, 0xAE, 0xAF:
		c.stringInst(op)

	case 0xA8: // TEST AL, imm8
		c.SetFlags(updateLogic8(c.flags, c.Reg8(AL)&c.fetch8()))
	case 0xA9: // TEST AX, imm16
		c.SetFlags(updateLogic16(c.flags, c.reg[AX]&c.fetch16()))

	case 0xB0, 0xB1, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6, 0xB7: // MOV r8, imm8
		c.SetReg8(int(op&7), c.fetch8())
	case 0xB8, 0xB9, 0xBA, 0xBB, 0xBC, 0xBD, 0xBE, 0xBF: // MOV r16, imm16
		c.reg[op&7] = c.fetch16()

	case 0xC2: // RET imm16
		n := c.fetch16()
		c.ip = c.pop16()
		c.reg[SP] += n
	case 0xC3: // RET
		c.ip = c.pop16()

	case 0xC4: // LES r16, m16:16
		o := c.fetchOperand()
		if o.isReg {
			return &OpcodeError{op, atCS, atIP}
		}
		c.reg[o.reg] = c.mem.Read16(c.addr(o))
		c.sreg[ES] = c.mem.Read16(c.addr(o) + 2)
	case 0xC5: // LDS r16, m16:16
		o := c.fetchOperand()
		if o.isReg {
			return &OpcodeError{op, atCS, atIP}
		}
		c.reg[o.reg] = c.mem.Read16(c.addr(o))
		c.sreg[DS] = c.mem.Read16(c.addr(o) + 2)

	case 0xC6: // MOV r/m8, imm8
		o := c.fetchOperand()
		c.writeRM8(o, c.fetch8())
	case 0xC7: // MOV r/m16, imm16
		o := c.fetchOperand()
		c.writeRM16(o, c.fetch16())

	case 0xCA: // RETF imm16
		n := c.fetch16()
		c.ip = c.pop16()
		c.sreg[CS] = c.pop16()
		c.reg[SP] += n
	case 0xCB: // RETF
		c.ip = c.pop16()
		c.sreg[CS] = c.pop16()

	case 0xCC: // INT3
		return c.intN(3)
	case 0xCD: // INT imm8
		return c.intN(c.fetch8())
	case 0xCE: // INTO
		if c.flags&FLAG_OF != 0 {
			return c.intN(4)
		}
	case 0xCF: // IRET
		c.ip = c.pop16()
		c.sreg[CS] = c.pop16()
		c.SetFlags(c.pop16())

	case 0xD0, 0xD1, 0xD2, 0xD3: // shift/rotate group
		if err := c.shiftInst(op); err != nil {
			return &OpcodeError{op, atCS, atIP}
		}

	case 0xD7: // XLAT
		c.SetReg8(AL, c.mem.Read8(Linear(c.memSeg(DS), c.reg[BX]+uint16(c.Reg8(AL)))))

	case 0xE0: // LOOPNE rel8
		c.reg[CX]--
		c.jmpRel8(c.reg[CX] != 0 && c.flags&FLAG_ZF == 0)
	case 0xE1: // LOOPE rel8
		c.reg[CX]--
		c.jmpRel8(c.reg[CX] != 0 && c.flags&FLAG_ZF != 0)
	case 0xE2: // LOOP rel8
		c.reg[CX]--
		c.jmpRel8(c.reg[CX] != 0)
	case 0xE3: // JCXZ rel8
		c.jmpRel8(c.reg[CX] == 0)

	case 0xE8: // CALL rel16
		d := int16(c.fetch16())
		c.push16(c.ip)
		c.ip += uint16(d)
	case 0xE9: // JMP rel16
		d := int16(c.fetch16())
		c.ip += uint16(d)
	case 0xEA: // JMP far ptr16:16
		off := c.fetch16()
		c.sreg[CS] = c.fetch16()
		c.ip = off
	case 0xEB: // JMP rel8
		c.jmpRel8(true)

	case 0xF4: // HLT
		c.halted = true
		return ErrHalted

	case 0xF5: // CMC
		c.SetFlags(c.flags ^ FLAG_CF)

	case 0xF6, 0xF7:
		return c.mulDivInst(op, atCS, atIP)

	case 0xF8: // CLC
		c.SetFlag(FLAG_CF, false)
	case 0xF9: // STC
		c.SetFlag(FLAG_CF, true)
	case 0xFA: // CLI
		c.SetFlag(FLAG_IF, false)
	case 0xFB: // STI
		c.SetFlag(FLAG_IF, true)
	case 0xFC: // CLD
		c.SetFlag(FLAG_DF, false)
	case 0xFD: // STD
		c.SetFlag(FLAG_DF, true)

	case 0xFE: // INC/DEC r/m8
		o := c.fetchOperand()
		switch o.reg {
		case 0:
			c.writeRM8(o, c.inc8(c.readRM8(o)))
		case 1:
			c.writeRM8(o, c.dec8(c.readRM8(o)))
		default:
			return &OpcodeError{op, atCS, atIP}
		}

	case 0xFF: // INC/DEC/CALL/JMP/PUSH group
		o := c.fetchOperand()
		switch o.reg {
		case 0:
			c.writeRM16(o, c.inc16(c.readRM16(o)))
		case 1:
			c.writeRM16(o, c.dec16(c.readRM16(o)))
		case 2: // CALL near r/m16
			t := c.readRM16(o)
			c.push16(c.ip)
			c.ip = t
		case 3: // CALL far m16:16
			if o.isReg {
				return &OpcodeError{op, atCS, atIP}
			}
			off := c.mem.Read16(c.addr(o))
			seg := c.mem.Read16(c.addr(o) + 2)
			c.push16(c.sreg[CS])
			c.push16(c.ip)
			c.sreg[CS] = seg
			c.ip = off
		case 4: // JMP near r/m16
			c.ip = c.readRM16(o)
		case 5: // JMP far m16:16
			if o.isReg {
				return &OpcodeError{op, atCS, atIP}
			}
			off := c.mem.Read16(c.addr(o))
			c.sreg[CS] = c.mem.Read16(c.addr(o) + 2)
			c.ip = off
		case 6: // PUSH r/m16
			c.push16(c.readRM16(o))
		default:
			return &OpcodeError{op, atCS, atIP}
		}

	default:
		return &OpcodeError{op, atCS, atIP}
	}

	return nil
}

// stringInst runs MOVS/CMPS/STOS/LODS/SCAS, once or under a
// REP/REPE/REPNE prefix. The repeat forms run to completion inside a
// single step; DF picks the direction.
func (c *CPU) stringInst(op uint8) {
	wide := op&1 == 1
	delta := uint16(1)
	if wide {
		delta = 2
	}
	if c.flags&FLAG_DF != 0 {
		delta = -delta
	}

	srcSeg := c.memSeg(DS) // DS:SI side honors the override; ES:DI never does

	one := func() {
		switch op &^ 1 {
		case 0xA4: // MOVS
			if wide {
				c.mem.Write16(Linear(c.sreg[ES], c.reg[DI]), c.mem.Read16(Linear(srcSeg, c.reg[SI])))
			} else {
				c.mem.Write8(Linear(c.sreg[ES], c.reg[DI]), c.mem.Read8(Linear(srcSeg, c.reg[SI])))
			}
			c.reg[SI] += delta
			c.reg[DI] += delta
		case 0xA6: // CMPS
			if wide {
				a := c.mem.Read16(Linear(srcSeg, c.reg[SI]))
				b := c.mem.Read16(Linear(c.sreg[ES], c.reg[DI]))
				c.SetFlags(updateSub16(c.flags, a, b, uint32(a)-uint32(b)))
			} else {
				a := c.mem.Read8(Linear(srcSeg, c.reg[SI]))
				b := c.mem.Read8(Linear(c.sreg[ES], c.reg[DI]))
				c.SetFlags(updateSub8(c.flags, a, b, uint16(a)-uint16(b)))
			}
			c.reg[SI] += delta
			c.reg[DI] += delta
		case 0xAA: // STOS
			if wide {
				c.mem.Write16(Linear(c.sreg[ES], c.reg[DI]), c.reg[AX])
			} else {
				c.mem.Write8(Linear(c.sreg[ES], c.reg[DI]), c.Reg8(AL))
			}
			c.reg[DI] += delta
		case 0xAC: // LODS
			if wide {
				c.reg[AX] = c.mem.Read16(Linear(srcSeg, c.reg[SI]))
			} else {
				c.SetReg8(AL, c.mem.Read8(Linear(srcSeg, c.reg[SI])))
			}
			c.reg[SI] += delta
		case 0xAE: // SCAS
			if wide {
				b := c.mem.Read16(Linear(c.sreg[ES], c.reg[DI]))
				c.SetFlags(updateSub16(c.flags, c.reg[AX], b, uint32(c.reg[AX])-uint32(b)))
			} else {
				b := c.mem.Read8(Linear(c.sreg[ES], c.reg[DI]))
				c.SetFlags(updateSub8(c.flags, c.Reg8(AL), b, uint16(c.Reg8(AL))-uint16(b)))
			}
			c.reg[DI] += delta
		}
	}

	if !c.rep && !c.repne {
		one()
		return
	}

	// REP with CX=0 executes nothing. Only CMPS and SCAS consult
	// ZF for early termination.
	cmpLike := op&^1 == 0xA6 || op&^1 == 0xAE
	for c.reg[CX] != 0 {
		c.reg[CX]--
		one()
		if cmpLike {
			if c.repne && c.flags&FLAG_ZF != 0 {
				break
			}
			if c.rep && c.flags&FLAG_ZF == 0 {
				break
			}
		}
	}
}

// shiftInst handles the D0-D3 rotate/shift group. A non-nil error
// means the reg field named a form we do not decode.
func (c *CPU) shiftInst(op uint8) error {
	o := c.fetchOperand()
	count := uint8(1)
	if op&2 != 0 {
		count = c.Reg8(CL) & 0x1F
	}

	if op&1 == 0 {
		v, err := c.shift8(o.reg, c.readRM8(o), count)
		if err != nil {
			return err
		}
		c.writeRM8(o, v)
		return nil
	}

	v, err := c.shift16(o.reg, c.readRM16(o), count)
	if err != nil {
		return err
	}
	c.writeRM16(o, v)

	return nil
}

// shift8 applies one of ROL/ROR/RCL/RCR/SHL/SHR/SAR bit by bit. The
// rotates touch only CF and OF; the shifts also update ZF/SF/PF.
// OF is the single-shift definition, taken from the last iteration.
func (c *CPU) shift8(kind, v, count uint8) (uint8, error) {
	if count == 0 {
		return v, nil
	}

	f := c.flags
	for i := uint8(0); i < count; i++ {
		cf := f&FLAG_CF != 0
		f &^= FLAG_CF | FLAG_OF

		switch kind {
		case 0: // ROL
			msb := v&0x80 != 0
			v = v<<1 | v>>7
			if msb {
				f |= FLAG_CF
			}
			if msb != (v&0x80 != 0) {
				f |= FLAG_OF
			}
		case 1: // ROR
			lsb := v&1 != 0
			v = v>>1 | v<<7
			if lsb {
				f |= FLAG_CF
			}
			if (v&0x80 != 0) != (v&0x40 != 0) {
				f |= FLAG_OF
			}
		case 2: // RCL
			msb := v&0x80 != 0
			v <<= 1
			if cf {
				v |= 1
			}
			if msb {
				f |= FLAG_CF
			}
			if msb != (v&0x80 != 0) {
				f |= FLAG_OF
			}
		case 3: // RCR
			lsb := v&1 != 0
			v >>= 1
			if cf {
				v |= 0x80
			}
			if lsb {
				f |= FLAG_CF
			}
			if (v&0x80 != 0) != (v&0x40 != 0) {
				f |= FLAG_OF
			}
		case 4: // SHL
			msb := v&0x80 != 0
			v <<= 1
			if msb {
				f |= FLAG_CF
			}
			if msb != (v&0x80 != 0) {
				f |= FLAG_OF
			}
		case 5: // SHR
			msb := v&0x80 != 0
			if v&1 != 0 {
				f |= FLAG_CF
			}
			v >>= 1
			if msb {
				f |= FLAG_OF
			}
		case 7: // SAR
			if v&1 != 0 {
				f |= FLAG_CF
			}
			v = uint8(int8(v) >> 1)
		default: // reg field 6 is undefined
			return v, errBadEncoding
		}
	}

	if kind >= 4 {
		f = updateZS8(f, v)
	}
	c.SetFlags(f)

	return v, nil
}

func (c *CPU) shift16(kind uint8, v uint16, count uint8) (uint16, error) {
	if count == 0 {
		return v, nil
	}

	f := c.flags
	for i := uint8(0); i < count; i++ {
		cf := f&FLAG_CF != 0
		f &^= FLAG_CF | FLAG_OF

		switch kind {
		case 0: // ROL
			msb := v&0x8000 != 0
			v = v<<1 | v>>15
			if msb {
				f |= FLAG_CF
			}
			if msb != (v&0x8000 != 0) {
				f |= FLAG_OF
			}
		case 1: // ROR
			lsb := v&1 != 0
			v = v>>1 | v<<15
			if lsb {
				f |= FLAG_CF
			}
			if (v&0x8000 != 0) != (v&0x4000 != 0) {
				f |= FLAG_OF
			}
		case 2: // RCL
			msb := v&0x8000 != 0
			v <<= 1
			if cf {
				v |= 1
			}
			if msb {
				f |= FLAG_CF
			}
			if msb != (v&0x8000 != 0) {
				f |= FLAG_OF
			}
		case 3: // RCR
			lsb := v&1 != 0
			v >>= 1
			if cf {
				v |= 0x8000
			}
			if lsb {
				f |= FLAG_CF
			}
			if (v&0x8000 != 0) != (v&0x4000 != 0) {
				f |= FLAG_OF
			}
		case 4: // SHL
			msb := v&0x8000 != 0
			v <<= 1
			if msb {
				f |= FLAG_CF
			}
			if msb != (v&0x8000 != 0) {
				f |= FLAG_OF
			}
		case 5: // SHR
			msb := v&0x8000 != 0
			if v&1 != 0 {
				f |= FLAG_CF
			}
			v >>= 1
			if msb {
				f |= FLAG_OF
			}
		case 7: // SAR
			if v&1 != 0 {
				f |= FLAG_CF
			}
			v = uint16(int16(v) >> 1)
		default:
			return v, errBadEncoding
		}
	}

	if kind >= 4 {
		f = updateZS16(f, v)
	}
	c.SetFlags(f)

	return v, nil
}

// mulDivInst handles the F6/F7 group: TEST, NOT, NEG, MUL, IMUL,
// DIV, IDIV. The divide fault fires before any register is written.
func (c *CPU) mulDivInst(op uint8, atCS, atIP uint16) error {
	o := c.fetchOperand()
	wide := op&1 == 1

	if !wide {
		v := c.readRM8(o)
		switch o.reg {
		case 0, 1: // TEST r/m8, imm8
			c.SetFlags(updateLogic8(c.flags, v&c.fetch8()))
		case 2: // NOT
			c.writeRM8(o, ^v)
		case 3: // NEG
			rw := uint16(0) - uint16(v)
			c.SetFlags(updateSub8(c.flags, 0, v, rw))
			c.writeRM8(o, uint8(rw))
		case 4: // MUL
			r := uint16(c.Reg8(AL)) * uint16(v)
			c.reg[AX] = r
			c.SetFlag(FLAG_CF|FLAG_OF, r>>8 != 0)
		case 5: // IMUL
			r := int16(int8(c.Reg8(AL))) * int16(int8(v))
			c.reg[AX] = uint16(r)
			c.SetFlag(FLAG_CF|FLAG_OF, r != int16(int8(r)))
		case 6: // DIV
			if v == 0 {
				return ErrDivideByZero
			}
			q := c.reg[AX] / uint16(v)
			if q > 0xFF {
				return ErrDivideByZero
			}
			rem := c.reg[AX] % uint16(v)
			c.SetReg8(AL, uint8(q))
			c.SetReg8(AH, uint8(rem))
		case 7: // IDIV
			if v == 0 {
				return ErrDivideByZero
			}
			d := int16(c.reg[AX])
			dv := int16(int8(v))
			q := d / dv
			if q < -128 || q > 127 {
				return ErrDivideByZero
			}
			c.SetReg8(AL, uint8(int8(q)))
			c.SetReg8(AH, uint8(int8(d%dv)))
		}
		return nil
	}

	v := c.readRM16(o)
	switch o.reg {
	case 0, 1: // TEST r/m16, imm16
		c.SetFlags(updateLogic16(c.flags, v&c.fetch16()))
	case 2: // NOT
		c.writeRM16(o, ^v)
	case 3: // NEG
		rw := uint32(0) - uint32(v)
		c.SetFlags(updateSub16(c.flags, 0, v, rw))
		c.writeRM16(o, uint16(rw))
	case 4: // MUL
		r := uint32(c.reg[AX]) * uint32(v)
		c.reg[AX] = uint16(r)
		c.reg[DX] = uint16(r >> 16)
		c.SetFlag(FLAG_CF|FLAG_OF, r>>16 != 0)
	case 5: // IMUL
		r := int32(int16(c.reg[AX])) * int32(int16(v))
		c.reg[AX] = uint16(r)
		c.reg[DX] = uint16(uint32(r) >> 16)
		c.SetFlag(FLAG_CF|FLAG_OF, r != int32(int16(r)))
	case 6: // DIV
		if v == 0 {
			return ErrDivideByZero
		}
		d := uint32(c.reg[DX])<<16 | uint32(c.reg[AX])
		q := d / uint32(v)
		if q > 0xFFFF {
			return ErrDivideByZero
		}
		c.reg[AX] = uint16(q)
		c.reg[DX] = uint16(d % uint32(v))
	case 7: // IDIV
		if v == 0 {
			return ErrDivideByZero
		}
		d := int32(uint32(c.reg[DX])<<16 | uint32(c.reg[AX]))
		dv := int32(int16(v))
		q := d / dv
		if q < -32768 || q > 32767 {
			return ErrDivideByZero
		}
		c.reg[AX] = uint16(int16(q))
		c.reg[DX] = uint16(int16(d % dv))
	}

	return nil
}
