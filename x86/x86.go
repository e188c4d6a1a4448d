// Package x86 implements an Intel 8086 class real mode interpreter:
// fetch, prefix handling, ModR/M decode, instruction dispatch and the
// architectural flag behavior that goes with it.
// https://en.wikipedia.org/wiki/Intel_8086
package x86

import (
	"errors"
	"fmt"
	"strings"

	"vbox86/memory"
)

// 16-bit general purpose register indexes, the order the three-bit
// reg/rm fields use.
const (
	AX = iota
	CX
	DX
	BX
	SP
	BP
	SI
	DI
)

// 8-bit register view over the same file: index 0-3 selects the low
// byte of AX-BX, 4-7 the high byte.
const (
	AL = iota
	CL
	DL
	BL
	AH
	CH
	DH
	BH
)

// Segment register indexes as encoded in the two-bit sreg field.
const (
	ES = iota
	CS
	SS
	DS
)

// SEG_NONE marks "no segment override active".
const SEG_NONE = -1

// Reset state per the BIOS boot convention: execution starts at
// 0000:7C00 with the stack just under the top of the first segment.
const (
	RESET_IP = 0x7C00
	RESET_SP = 0xFFFE
)

const IVT_BASE = 0x00000

// ErrHalted is returned by Step once the CPU has executed HLT (or a
// service halted the machine). It is a terminal state, not a failure.
var ErrHalted = errors.New("cpu halted")

// ErrDivideByZero is the #DE fault from DIV/IDIV, raised before any
// architectural side effect of the instruction.
var ErrDivideByZero = errors.New("divide by zero")

// OpcodeError reports a first opcode byte we do not decode, along
// with the CS:IP it was fetched from.
type OpcodeError struct {
	Op     uint8
	CS, IP uint16
}

func (e *OpcodeError) Error() string {
	return fmt.Sprintf("Unknown opcode 0x%02X at CS:IP=%04X:%04X", e.Op, e.CS, e.IP)
}

// InterruptHandler is the hook the VM installs so the BIOS can
// intercept software interrupts before the IVT is consulted. Handle
// returns true when it serviced the vector; false falls through to
// the resident handler in guest memory.
type InterruptHandler interface {
	Handle(c *CPU, vector uint8) bool
}

// CPU is the full architectural state plus the transient decode state
// that prefixes accumulate for the next instruction.
type CPU struct {
	reg   [8]uint16 // AX..DI by index
	sreg  [4]uint16 // ES, CS, SS, DS
	ip    uint16
	flags uint16

	mem     *memory.Memory
	handler InterruptHandler

	// decode state, reset before every instruction
	segOverride int
	rep, repne  bool
	lock        bool

	halted     bool
	intPending bool
	pendingInt uint8
	cycles     uint64
}

func New(mem *memory.Memory) *CPU {
	c := &CPU{mem: mem}
	c.Reset()

	return c
}

// SetInterruptHandler installs the BIOS intercept. Passing nil makes
// every INT go through the IVT.
func (c *CPU) SetInterruptHandler(h InterruptHandler) {
	c.handler = h
}

// Reset puts the CPU in its power-on state: registers cleared, stack
// at the top of segment zero, execution at 0000:7C00, only the
// reserved flag bit set.
func (c *CPU) Reset() {
	c.reg = [8]uint16{}
	c.sreg = [4]uint16{}
	c.reg[SP] = RESET_SP
	c.ip = RESET_IP
	c.flags = FLAG_RESERVED
	c.halted = false
	c.intPending = false
	c.segOverride = SEG_NONE
	c.rep, c.repne, c.lock = false, false, false
}

// Register file accessors. The BIOS and the monitor go through these;
// nothing outside the package touches the arrays.

func (c *CPU) Reg16(i int) uint16 { return c.reg[i&7] }

func (c *CPU) SetReg16(i int, v uint16) { c.reg[i&7] = v }

// Reg8 reads the byte overlay: AL..BL are the low halves of AX..BX,
// AH..BH the high halves.
func (c *CPU) Reg8(i int) uint8 {
	i &= 7
	if i < 4 {
		return uint8(c.reg[i])
	}

	return uint8(c.reg[i-4] >> 8)
}

// SetReg8 writes one byte half without disturbing the other: a store
// to AH must never clobber AL.
func (c *CPU) SetReg8(i int, v uint8) {
	i &= 7
	if i < 4 {
		c.reg[i] = (c.reg[i] & 0xFF00) | uint16(v)
		return
	}
	c.reg[i-4] = (c.reg[i-4] & 0x00FF) | uint16(v)<<8
}

func (c *CPU) Seg(i int) uint16 { return c.sreg[i&3] }

func (c *CPU) SetSeg(i int, v uint16) { c.sreg[i&3] = v }

func (c *CPU) IP() uint16 { return c.ip }

func (c *CPU) SetIP(v uint16) { c.ip = v }

func (c *CPU) Flags() uint16 { return c.flags }

// SetFlags commits a FLAGS value, forcing the reserved bit back on.
func (c *CPU) SetFlags(v uint16) { c.flags = v | FLAG_RESERVED }

func (c *CPU) Flag(mask uint16) bool { return c.flags&mask != 0 }

func (c *CPU) SetFlag(mask uint16, on bool) {
	if on {
		c.SetFlags(c.flags | mask)
		return
	}
	c.SetFlags(c.flags &^ mask)
}

// Halt makes the halted state sticky; the next Step returns
// ErrHalted. HLT and DOS program termination both land here.
func (c *CPU) Halt() { c.halted = true }

func (c *CPU) Halted() bool { return c.halted }

func (c *CPU) Cycles() uint64 { return c.cycles }

// Interrupt requests delivery of vector n before a following
// instruction. It is only taken when IF is set.
func (c *CPU) Interrupt(n uint8) {
	c.intPending = true
	c.pendingInt = n
}

// Linear folds a segment:offset pair to a 20-bit flat address.
func Linear(seg, off uint16) uint32 {
	return (uint32(seg)<<4 + uint32(off)) & memory.ADDR_MASK
}

// memSeg resolves the segment an implicit-DS memory access uses,
// honoring an active override prefix.
func (c *CPU) memSeg(def int) uint16 {
	if c.segOverride != SEG_NONE {
		return c.sreg[c.segOverride]
	}

	return c.sreg[def]
}

// fetch8 reads the next code byte at CS:IP and advances IP, which
// wraps at 16 bits.
func (c *CPU) fetch8() uint8 {
	b := c.mem.Read8(Linear(c.sreg[CS], c.ip))
	c.ip++

	return b
}

func (c *CPU) fetch16() uint16 {
	lsb := uint16(c.fetch8())
	msb := uint16(c.fetch8())

	return (msb << 8) | lsb
}

// push16 decrements SP by 2 then stores at SS:SP, low byte first.
func (c *CPU) push16(v uint16) {
	c.reg[SP] -= 2
	c.mem.Write16(Linear(c.sreg[SS], c.reg[SP]), v)
}

// pop16 reads at SS:SP then increments SP.
func (c *CPU) pop16() uint16 {
	v := c.mem.Read16(Linear(c.sreg[SS], c.reg[SP]))
	c.reg[SP] += 2

	return v
}

// Step executes one instruction. It returns nil while the machine is
// running, ErrHalted once it stops, and a fault error
// (OpcodeError, ErrDivideByZero) that terminates the run otherwise.
func (c *CPU) Step() error {
	if c.halted {
		return ErrHalted
	}

	if c.intPending && c.flags&FLAG_IF != 0 {
		c.intPending = false
		if err := c.intN(c.pendingInt); err != nil {
			return err
		}
	}

	c.cycles++
	c.segOverride = SEG_NONE
	c.rep, c.repne, c.lock = false, false, false

	// Consume the prefix chain; atCS:atIP tracks the byte being
	// decoded so faults report the opcode, not a prefix.
	atCS, atIP := c.sreg[CS], c.ip
	op := c.fetch8()
	for {
		switch op {
		case 0x26:
			c.segOverride = ES
		case 0x2E:
			c.segOverride = CS
		case 0x36:
			c.segOverride = SS
		case 0x3E:
			c.segOverride = DS
		case 0xF0:
			c.lock = true // recognized, ignored
		case 0xF2:
			c.repne = true
		case 0xF3:
			c.rep = true
		default:
			return c.exec(op, atCS, atIP)
		}
		atCS, atIP = c.sreg[CS], c.ip
		op = c.fetch8()
	}
}

// intN runs the software interrupt sequence for vector n. When an
// installed handler services the vector directly, stack and FLAGS
// are left exactly as an INT+IRET round trip through a resident
// handler would have, with the service's register and flag results
// applied on top.
func (c *CPU) intN(n uint8) error {
	if c.handler != nil && c.handler.Handle(c, n) {
		if c.halted {
			return ErrHalted
		}
		return nil
	}

	c.push16(c.flags)
	c.push16(c.sreg[CS])
	c.push16(c.ip)
	c.flags &^= FLAG_IF | FLAG_TF

	vec := IVT_BASE + uint32(n)*4
	c.ip = c.mem.Read16(vec)
	c.sreg[CS] = c.mem.Read16(vec + 2)

	return nil
}

var flagNames = []struct {
	mask uint16
	ch   byte
}{
	{FLAG_OF, 'O'},
	{FLAG_DF, 'D'},
	{FLAG_IF, 'I'},
	{FLAG_TF, 'T'},
	{FLAG_SF, 'S'},
	{FLAG_ZF, 'Z'},
	{FLAG_AF, 'A'},
	{FLAG_PF, 'P'},
	{FLAG_CF, 'C'},
}

func flagString(f uint16) string {
	var sb strings.Builder

	for _, fl := range flagNames {
		if f&fl.mask != 0 {
			sb.WriteByte(fl.ch)
		} else {
			sb.WriteByte('.')
		}
	}

	return sb.String()
}

func (c *CPU) String() string {
	return fmt.Sprintf("AX=%04X BX=%04X CX=%04X DX=%04X SI=%04X DI=%04X BP=%04X SP=%04X ES=%04X CS=%04X SS=%04X DS=%04X IP=%04X FL=%s",
		c.reg[AX], c.reg[BX], c.reg[CX], c.reg[DX], c.reg[SI], c.reg[DI], c.reg[BP], c.reg[SP],
		c.sreg[ES], c.sreg[CS], c.sreg[SS], c.sreg[DS], c.ip, flagString(c.flags))
}
