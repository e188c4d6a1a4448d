package bios

import (
	"testing"

	"vbox86/x86"
)

// service invokes INT 10h directly with the given register setup.
func service(b *BIOS, setup func(cpu *x86.CPU)) {
	setup(b.cpu)
	b.videoService()
}

func TestSetModeClearsScreen(t *testing.T) {
	_, mem, b := newMachine()
	mem.Write8(TEXT_BASE, 'x')
	mem.Write8(TEXT_BASE+1, 0x1F)

	service(b, func(cpu *x86.CPU) {
		cpu.SetReg8(x86.AH, 0x00)
		cpu.SetReg8(x86.AL, 0x03)
	})

	for i := uint32(0); i < ROWS*COLS; i++ {
		if ch := mem.Read8(TEXT_BASE + i*2); ch != ' ' {
			t.Fatalf("cell %d char = 0x%02x, wanted space", i, ch)
		}
		if at := mem.Read8(TEXT_BASE + i*2 + 1); at != DEFAULT_ATTR {
			t.Fatalf("cell %d attr = 0x%02x, wanted 0x%02x", i, at, DEFAULT_ATTR)
		}
	}
}

func TestCursorPositionClamped(t *testing.T) {
	cases := []struct {
		row, col     uint8
		wantY, wantX uint8
	}{
		{0, 0, 0, 0},
		{12, 40, 12, 40},
		{30, 90, 24, 79}, // clamped to the screen
	}

	for i, tc := range cases {
		_, _, b := newMachine()
		service(b, func(cpu *x86.CPU) {
			cpu.SetReg8(x86.AH, 0x02)
			cpu.SetReg8(x86.DH, tc.row)
			cpu.SetReg8(x86.DL, tc.col)
		})
		if b.cursorY != tc.wantY || b.cursorX != tc.wantX {
			t.Errorf("%d: cursor = (%d,%d), wanted (%d,%d)", i, b.cursorY, b.cursorX, tc.wantY, tc.wantX)
		}
	}
}

func TestGetCursorRoundTrip(t *testing.T) {
	cpu, _, b := newMachine()

	service(b, func(cpu *x86.CPU) {
		cpu.SetReg8(x86.AH, 0x02)
		cpu.SetReg8(x86.DH, 5)
		cpu.SetReg8(x86.DL, 10)
	})
	service(b, func(cpu *x86.CPU) {
		cpu.SetReg8(x86.AH, 0x03)
	})

	if cpu.Reg8(x86.DH) != 5 || cpu.Reg8(x86.DL) != 10 {
		t.Errorf("DX = (%d,%d), wanted (5,10)", cpu.Reg8(x86.DH), cpu.Reg8(x86.DL))
	}
	if cpu.Reg8(x86.CH) != b.cursorStart || cpu.Reg8(x86.CL) != b.cursorEnd {
		t.Errorf("CX shape = 0x%02x%02x, wanted 0x%02x%02x",
			cpu.Reg8(x86.CH), cpu.Reg8(x86.CL), b.cursorStart, b.cursorEnd)
	}
}

func TestScrollUp(t *testing.T) {
	_, mem, b := newMachine()

	// Three tagged rows, then scroll rows 0-2 up one line.
	for y := uint8(0); y < 3; y++ {
		b.putChar(0, y, '0'+y, 0x07)
	}
	service(b, func(cpu *x86.CPU) {
		cpu.SetReg8(x86.AH, 0x06)
		cpu.SetReg8(x86.AL, 1)
		cpu.SetReg8(x86.BH, 0x1E)
		cpu.SetReg8(x86.CH, 0) // top left (0,0)
		cpu.SetReg8(x86.CL, 0)
		cpu.SetReg8(x86.DH, 2) // bottom right (2,79)
		cpu.SetReg8(x86.DL, 79)
	})

	if got := mem.Read8(TEXT_BASE); got != '1' {
		t.Errorf("row 0 = 0x%02x, wanted '1'", got)
	}
	if got := mem.Read8(TEXT_BASE + 1*COLS*2); got != '2' {
		t.Errorf("row 1 = 0x%02x, wanted '2'", got)
	}
	// Row 2 is the newly exposed line: space with the fill attr.
	if ch, at := mem.Read8(TEXT_BASE+2*COLS*2), mem.Read8(TEXT_BASE+2*COLS*2+1); ch != ' ' || at != 0x1E {
		t.Errorf("row 2 = 0x%02x/0x%02x, wanted space/0x1e", ch, at)
	}
}

func TestScrollZeroClearsWindow(t *testing.T) {
	_, mem, b := newMachine()
	b.putChar(5, 5, 'x', 0x07)

	service(b, func(cpu *x86.CPU) {
		cpu.SetReg8(x86.AH, 0x06)
		cpu.SetReg8(x86.AL, 0)
		cpu.SetReg8(x86.BH, 0x20)
		cpu.SetReg8(x86.CH, 5)
		cpu.SetReg8(x86.CL, 5)
		cpu.SetReg8(x86.DH, 6)
		cpu.SetReg8(x86.DL, 6)
	})

	if ch := mem.Read8(b.cell(5, 5)); ch != ' ' {
		t.Errorf("cell (5,5) = 0x%02x, wanted space", ch)
	}
	// Outside the window is untouched.
	if ch := mem.Read8(b.cell(7, 7)); ch == ' ' && mem.Read8(b.cell(7, 7)+1) == 0x20 {
		t.Errorf("clear leaked outside the window")
	}
}

func TestWriteCharAttrKeepsCursor(t *testing.T) {
	_, mem, b := newMachine()

	service(b, func(cpu *x86.CPU) {
		cpu.SetReg8(x86.AH, 0x09)
		cpu.SetReg8(x86.AL, '*')
		cpu.SetReg8(x86.BL, 0x4E)
		cpu.SetReg16(x86.CX, 3)
	})

	for i := uint32(0); i < 3; i++ {
		if ch, at := mem.Read8(TEXT_BASE+i*2), mem.Read8(TEXT_BASE+i*2+1); ch != '*' || at != 0x4E {
			t.Errorf("cell %d = 0x%02x/0x%02x, wanted '*'/0x4e", i, ch, at)
		}
	}
	if b.cursorX != 0 || b.cursorY != 0 {
		t.Errorf("cursor moved to (%d,%d)", b.cursorY, b.cursorX)
	}
}

func TestWriteCharPreservesAttr(t *testing.T) {
	_, mem, b := newMachine()
	b.putChar(0, 0, 'a', 0x2F)

	service(b, func(cpu *x86.CPU) {
		cpu.SetReg8(x86.AH, 0x0A)
		cpu.SetReg8(x86.AL, 'b')
		cpu.SetReg16(x86.CX, 1)
	})

	if ch, at := mem.Read8(TEXT_BASE), mem.Read8(TEXT_BASE+1); ch != 'b' || at != 0x2F {
		t.Errorf("cell = 0x%02x/0x%02x, wanted 'b'/0x2f", ch, at)
	}
}

func TestReadCharAtCursor(t *testing.T) {
	cpu, _, b := newMachine()
	b.putChar(0, 0, 'q', 0x71)

	service(b, func(cpu *x86.CPU) {
		cpu.SetReg8(x86.AH, 0x08)
	})

	if cpu.Reg8(x86.AL) != 'q' || cpu.Reg8(x86.AH) != 0x71 {
		t.Errorf("AX = 0x%04x, wanted AH=0x71 AL='q'", cpu.Reg16(x86.AX))
	}
}

func TestTeletypeControlBytes(t *testing.T) {
	cases := []struct {
		name  string
		bytes []uint8
		wantX uint8
		wantY uint8
	}{
		{"backspace", []uint8{'a', 'b', 0x08}, 1, 0},
		{"backspace at col 0", []uint8{0x08}, 0, 0},
		{"tab", []uint8{'a', 0x09}, 8, 0},
		{"tab from a stop", []uint8{0x09, 0x09}, 16, 0},
		{"carriage return", []uint8{'a', 'b', 0x0D}, 0, 0},
		{"line feed", []uint8{0x0A}, 0, 1},
		{"crlf", []uint8{'a', 0x0D, 0x0A}, 0, 1},
		{"bell", []uint8{0x07}, 0, 0},
	}

	for _, tc := range cases {
		_, _, b := newMachine()
		for _, ch := range tc.bytes {
			b.teletype(ch)
		}
		if b.cursorX != tc.wantX || b.cursorY != tc.wantY {
			t.Errorf("%s: cursor = (%d,%d), wanted (%d,%d)", tc.name, b.cursorY, b.cursorX, tc.wantY, tc.wantX)
		}
	}
}

func TestTeletypeWrapsAndScrolls(t *testing.T) {
	_, mem, b := newMachine()

	// Fill past the last cell; the screen must scroll one row and
	// leave the cursor on the bottom line.
	for i := 0; i < ROWS*COLS+1; i++ {
		b.teletype('.')
	}

	if b.cursorY != ROWS-1 {
		t.Errorf("cursorY = %d, wanted %d", b.cursorY, ROWS-1)
	}
	if b.cursorX != 1 {
		t.Errorf("cursorX = %d, wanted 1", b.cursorX)
	}
	// The bottom row was freshly filled: one dot then spaces.
	if ch := mem.Read8(b.cell(0, ROWS-1)); ch != '.' {
		t.Errorf("bottom row [0] = 0x%02x, wanted '.'", ch)
	}
	if ch := mem.Read8(b.cell(1, ROWS-1)); ch != ' ' {
		t.Errorf("bottom row [1] = 0x%02x, wanted space", ch)
	}
}

func TestGetMode(t *testing.T) {
	cpu, _, b := newMachine()

	service(b, func(cpu *x86.CPU) {
		cpu.SetReg8(x86.AH, 0x0F)
	})

	if cpu.Reg8(x86.AL) != DEFAULT_MODE || cpu.Reg8(x86.AH) != COLS || cpu.Reg8(x86.BH) != 0 {
		t.Errorf("AL=0x%02x AH=%d BH=%d, wanted 0x03 80 0", cpu.Reg8(x86.AL), cpu.Reg8(x86.AH), cpu.Reg8(x86.BH))
	}
}
