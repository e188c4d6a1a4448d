// Package bios implements the resident services a real mode guest
// expects: INT 10h video, INT 13h disk, INT 16h keyboard and the
// small INT 21h DOS subset. It owns the cursor, video mode and
// keyboard buffer state, and mutates CPU registers and guest memory
// the way the ROM BIOS does.
package bios

import (
	"log/slog"

	"vbox86/memory"
	"vbox86/x86"
)

const (
	TEXT_BASE = 0xB8000 // 80x25 text buffer, two bytes per cell
	COLS      = 80
	ROWS      = 25
	PAGE_SIZE = 0x1000 // text pages are 4k apart

	DEFAULT_MODE = 0x03 // 80x25 16-color text
	DEFAULT_ATTR = 0x07 // light gray on black
)

// BIOS Data Area locations the services mirror into guest RAM.
// https://stanislavs.org/helppc/bios_data_area.html
const (
	BDA_SHIFT_FLAGS = 0x417
	BDA_VIDEO_MODE  = 0x449
	BDA_COLUMNS     = 0x44A
	BDA_CURSOR_POS  = 0x450 // two bytes (col, row) per page
	BDA_ACTIVE_PAGE = 0x462
)

// Every IVT entry installed at reset points at a resident IRET in
// the ROM segment, the classic F000:FF53 dummy handler. A vector
// that no longer points there has been hooked by the guest and is
// left to the resident handler.
const (
	ROM_BASE = 0xF0000
	ROM_SIZE = 0x10000
	STUB_SEG = 0xF000
	STUB_OFF = 0xFF53
)

// Fake 1.44MB floppy geometry reported by INT 13h AH=08h.
const (
	DISK_CYLINDERS  = 80
	DISK_HEADS      = 2
	DISK_SECTORS    = 18
	DISK_DRIVE_TYPE = 0x04
)

const KEY_BUF_SIZE = 16 // bytes; pairs of (ascii, scancode)

type BIOS struct {
	cpu *x86.CPU
	mem *memory.Memory

	mode                   uint8
	cursorX, cursorY       uint8
	cursorStart, cursorEnd uint8
	page                   uint8
	attr                   uint8

	keys       [KEY_BUF_SIZE]uint8
	head, tail int
	shift      uint8
}

func New(cpu *x86.CPU, mem *memory.Memory) *BIOS {
	b := &BIOS{cpu: cpu, mem: mem}
	b.Reset()

	return b
}

// Reset clears the service state, installs the IVT stub and write
// protects the ROM segment.
func (b *BIOS) Reset() {
	b.mode = DEFAULT_MODE
	b.attr = DEFAULT_ATTR
	b.cursorX, b.cursorY = 0, 0
	b.cursorStart, b.cursorEnd = 0x06, 0x07
	b.page = 0
	b.head, b.tail = 0, 0
	b.shift = 0

	// The ROM pages may already be protected from a previous
	// reset; unlock them while the stub is (re)written.
	b.mem.SetReadOnly(ROM_BASE, ROM_SIZE, false)
	b.mem.Write8(x86.Linear(STUB_SEG, STUB_OFF), 0xCF) // IRET
	for v := uint32(0); v < 256; v++ {
		b.mem.Write16(x86.IVT_BASE+v*4, STUB_OFF)
		b.mem.Write16(x86.IVT_BASE+v*4+2, STUB_SEG)
	}
	b.mem.SetReadOnly(ROM_BASE, ROM_SIZE, true)

	b.syncBDA()
}

// Handle services a software interrupt. Returning false hands the
// vector back to the CPU for a normal IVT dispatch, which happens
// both for vectors we never service and for ones the guest has
// hooked away from the reset-time stub.
func (b *BIOS) Handle(_ *x86.CPU, vector uint8) bool {
	if b.revectored(vector) {
		return false
	}

	switch vector {
	case 0x10:
		b.videoService()
	case 0x13:
		b.diskService()
	case 0x16:
		b.keyService()
	case 0x21:
		b.dosService()
	default:
		return false
	}

	return true
}

func (b *BIOS) revectored(v uint8) bool {
	vec := x86.IVT_BASE + uint32(v)*4

	return b.mem.Read16(vec) != STUB_OFF || b.mem.Read16(vec+2) != STUB_SEG
}

// diskService answers INT 13h. There is no disk image behind it:
// every known function reports success, and AH=08h hands back the
// geometry of a 1.44MB floppy.
func (b *BIOS) diskService() {
	cpu := b.cpu

	switch ah := cpu.Reg8(x86.AH); ah {
	case 0x00, 0x01, 0x02, 0x03, 0x04:
		// reset/status/read/write/verify: report success. For
		// the transfer functions AL already holds the sector
		// count, which doubles as "sectors transferred".
		cpu.SetReg8(x86.AH, 0)
		cpu.SetFlag(x86.FLAG_CF, false)
	case 0x08:
		cpu.SetReg8(x86.CH, DISK_CYLINDERS-1)
		cpu.SetReg8(x86.CL, DISK_SECTORS)
		cpu.SetReg8(x86.DH, DISK_HEADS-1)
		cpu.SetReg8(x86.DL, 1) // one drive
		cpu.SetReg8(x86.BL, DISK_DRIVE_TYPE)
		cpu.SetReg8(x86.AH, 0)
		cpu.SetFlag(x86.FLAG_CF, false)
	default:
		slog.Debug("bios: unhandled disk function", "ah", ah)
		cpu.SetReg8(x86.AH, 0x01)
		cpu.SetFlag(x86.FLAG_CF, true)
	}
}

// dosService answers the INT 21h subset a teaching guest uses.
func (b *BIOS) dosService() {
	cpu := b.cpu

	switch ah := cpu.Reg8(x86.AH); ah {
	case 0x00, 0x4C: // terminate program
		cpu.Halt()
	case 0x01: // read character with echo
		ascii, _, ok := b.dequeue()
		cpu.SetReg8(x86.AL, ascii)
		if ok {
			b.teletype(ascii)
			b.syncBDA()
		}
	case 0x02: // write character in DL
		b.teletype(cpu.Reg8(x86.DL))
		cpu.SetReg8(x86.AL, cpu.Reg8(x86.DL))
		b.syncBDA()
	case 0x08: // read character, no echo
		ascii, _, _ := b.dequeue()
		cpu.SetReg8(x86.AL, ascii)
	case 0x09: // write $-terminated string at DS:DX
		off := cpu.Reg16(x86.DX)
		for i := 0; i < 0x10000; i++ {
			ch := b.mem.Read8(x86.Linear(cpu.Seg(x86.DS), off+uint16(i)))
			if ch == '$' {
				break
			}
			b.teletype(ch)
		}
		cpu.SetReg8(x86.AL, '$')
		b.syncBDA()
	case 0x0B: // input status
		if b.Empty() {
			cpu.SetReg8(x86.AL, 0x00)
		} else {
			cpu.SetReg8(x86.AL, 0xFF)
		}
	default:
		slog.Debug("bios: unhandled dos function", "ah", ah)
		cpu.SetFlag(x86.FLAG_CF, true)
	}
}

// syncBDA mirrors the service state into the BIOS Data Area so
// guests that peek at it instead of calling the services still see
// sensible values.
func (b *BIOS) syncBDA() {
	b.mem.Write8(BDA_SHIFT_FLAGS, b.shift)
	b.mem.Write8(BDA_VIDEO_MODE, b.mode)
	b.mem.Write16(BDA_COLUMNS, COLS)
	b.mem.Write8(BDA_ACTIVE_PAGE, b.page)
	b.mem.Write8(BDA_CURSOR_POS+uint32(b.page)*2, b.cursorX)
	b.mem.Write8(BDA_CURSOR_POS+uint32(b.page)*2+1, b.cursorY)
}
