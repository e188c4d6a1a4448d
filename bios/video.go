package bios

import (
	"log/slog"

	"vbox86/x86"
)

// pageBase returns the linear address of the active text page.
func (b *BIOS) pageBase() uint32 {
	return TEXT_BASE + uint32(b.page)*PAGE_SIZE
}

// cell returns the linear address of a character cell on the active
// page.
func (b *BIOS) cell(x, y uint8) uint32 {
	return b.pageBase() + (uint32(y)*COLS+uint32(x))*2
}

func (b *BIOS) putChar(x, y, ch, attr uint8) {
	addr := b.cell(x, y)
	b.mem.Write8(addr, ch)
	b.mem.Write8(addr+1, attr)
}

// videoService answers INT 10h, dispatching on AH.
// https://stanislavs.org/helppc/int_10.html
func (b *BIOS) videoService() {
	cpu := b.cpu

	switch ah := cpu.Reg8(x86.AH); ah {
	case 0x00: // set video mode and clear the screen
		b.mode = cpu.Reg8(x86.AL)
		b.cursorX, b.cursorY = 0, 0
		b.clearRect(0, 0, ROWS-1, COLS-1, b.attr)
	case 0x01: // set cursor shape
		b.cursorStart = cpu.Reg8(x86.CH)
		b.cursorEnd = cpu.Reg8(x86.CL)
	case 0x02: // set cursor position
		b.cursorY = min(cpu.Reg8(x86.DH), ROWS-1)
		b.cursorX = min(cpu.Reg8(x86.DL), COLS-1)
	case 0x03: // get cursor position and shape
		cpu.SetReg8(x86.DH, b.cursorY)
		cpu.SetReg8(x86.DL, b.cursorX)
		cpu.SetReg8(x86.CH, b.cursorStart)
		cpu.SetReg8(x86.CL, b.cursorEnd)
	case 0x05: // select active page
		b.page = cpu.Reg8(x86.AL)
	case 0x06: // scroll window up
		b.scrollUp(cpu.Reg8(x86.AL), cpu.Reg8(x86.BH),
			cpu.Reg8(x86.CH), cpu.Reg8(x86.CL), cpu.Reg8(x86.DH), cpu.Reg8(x86.DL))
	case 0x07: // scroll window down; any count clears the window here
		b.clearRect(cpu.Reg8(x86.CH), cpu.Reg8(x86.CL),
			min(cpu.Reg8(x86.DH), ROWS-1), min(cpu.Reg8(x86.DL), COLS-1), cpu.Reg8(x86.BH))
	case 0x08: // read character and attribute at cursor
		addr := b.cell(b.cursorX, b.cursorY)
		cpu.SetReg8(x86.AL, b.mem.Read8(addr))
		cpu.SetReg8(x86.AH, b.mem.Read8(addr+1))
	case 0x09: // write char+attr N times, cursor stays
		ch, attr := cpu.Reg8(x86.AL), cpu.Reg8(x86.BL)
		x, y := b.cursorX, b.cursorY
		for n := cpu.Reg16(x86.CX); n > 0; n-- {
			b.putChar(x, y, ch, attr)
			if x++; x >= COLS {
				x = 0
				if y++; y >= ROWS {
					break
				}
			}
		}
	case 0x0A: // write char N times preserving the attribute
		ch := cpu.Reg8(x86.AL)
		x, y := b.cursorX, b.cursorY
		for n := cpu.Reg16(x86.CX); n > 0; n-- {
			b.mem.Write8(b.cell(x, y), ch)
			if x++; x >= COLS {
				x = 0
				if y++; y >= ROWS {
					break
				}
			}
		}
	case 0x0E: // teletype output
		b.teletype(cpu.Reg8(x86.AL))
	case 0x0F: // get video mode
		cpu.SetReg8(x86.AL, b.mode)
		cpu.SetReg8(x86.AH, COLS)
		cpu.SetReg8(x86.BH, b.page)
	default:
		slog.Debug("bios: unhandled video function", "ah", ah)
	}

	b.syncBDA()
}

// teletype writes one character at the cursor with the control-byte
// handling of INT 10h AH=0Eh: backspace, tab, line feed, carriage
// return, bell; everything else prints and advances, wrapping at the
// right edge and scrolling at the bottom.
func (b *BIOS) teletype(ch uint8) {
	switch ch {
	case 0x07: // bell; nothing to ring
	case 0x08: // backspace moves left, does not erase
		if b.cursorX > 0 {
			b.cursorX--
		}
	case 0x09: // tab to the next multiple of 8
		b.cursorX = (b.cursorX/8 + 1) * 8
		if b.cursorX >= COLS {
			b.cursorX = 0
			b.lineFeed()
		}
	case 0x0A:
		b.lineFeed()
	case 0x0D:
		b.cursorX = 0
	default:
		b.putChar(b.cursorX, b.cursorY, ch, b.attr)
		if b.cursorX++; b.cursorX >= COLS {
			b.cursorX = 0
			if b.cursorY++; b.cursorY >= ROWS {
				b.cursorY = ROWS - 1
				b.scrollUp(1, b.attr, 0, 0, ROWS-1, COLS-1)
			}
		}
	}
}

// lineFeed moves the cursor down one row, clamping at the bottom.
func (b *BIOS) lineFeed() {
	if b.cursorY < ROWS-1 {
		b.cursorY++
	}
}

// scrollUp shifts the (top,left)-(bottom,right) window up by lines,
// filling exposed rows with space + attr. lines of zero clears the
// whole window, matching the AH=06h convention.
func (b *BIOS) scrollUp(lines, attr, top, left, bottom, right uint8) {
	bottom = min(bottom, ROWS-1)
	right = min(right, COLS-1)
	if top > bottom || left > right {
		return
	}

	height := bottom - top + 1
	if lines == 0 || lines >= height {
		b.clearRect(top, left, bottom, right, attr)
		return
	}

	for y := top; y+lines <= bottom; y++ {
		for x := left; x <= right; x++ {
			src := b.cell(x, y+lines)
			b.putChar(x, y, b.mem.Read8(src), b.mem.Read8(src+1))
		}
	}
	b.clearRect(bottom-lines+1, left, bottom, right, attr)
}

func (b *BIOS) clearRect(top, left, bottom, right, attr uint8) {
	for y := top; y <= bottom && y < ROWS; y++ {
		for x := left; x <= right && x < COLS; x++ {
			b.putChar(x, y, ' ', attr)
		}
	}
}

func min(a, b uint8) uint8 {
	if a < b {
		return a
	}

	return b
}
