// Package display projects the 80x25 text buffer at 0xB8000 onto a
// host surface and feeds host key events back into the machine. Two
// backends are provided: an ebiten window and an ANSI terminal. Both
// copy cell data out of guest memory each frame and hold no reference
// into it across frames; the terminal keeps its copy of the previous
// frame's cells to find the rows that changed.
package display

import "image/color"

const (
	COLS = 80
	ROWS = 25

	TEXT_BASE = 0xB8000
	TEXT_SIZE = COLS * ROWS * 2

	GLYPH_W = 8
	GLYPH_H = 16

	SCREEN_W = COLS * GLYPH_W // 640
	SCREEN_H = ROWS * GLYPH_H // 400
)

// Sink is the capability the machine hands a surface for pushing
// input: key pairs go into the BIOS ring buffer, modifier state into
// its shift snapshot.
type Sink interface {
	Inject(scancode, ascii uint8)
	SetShiftFlags(flags uint8)
}

// Machine is the surface's handle on the emulation: RunFrame
// executes one frame's worth of instructions and returns a non-nil
// error when the run is over.
type Machine interface {
	RunFrame() error
}

// Surface is a running front end; Run drives the machine until it
// stops or the user quits, returning the machine's terminal error.
type Surface interface {
	Run() error
}

// Shift-flag bits in the IBM layout the BIOS snapshot uses.
const (
	SHIFT_RIGHT = 1 << 0
	SHIFT_LEFT  = 1 << 1
	SHIFT_CTRL  = 1 << 2
	SHIFT_ALT   = 1 << 3
)

// Palette holds the 16 CGA colors in attribute order.
// https://en.wikipedia.org/wiki/Color_Graphics_Adapter#Color_palette
var Palette = [16]color.RGBA{
	{0x00, 0x00, 0x00, 0xFF}, // black
	{0x00, 0x00, 0xAA, 0xFF}, // blue
	{0x00, 0xAA, 0x00, 0xFF}, // green
	{0x00, 0xAA, 0xAA, 0xFF}, // cyan
	{0xAA, 0x00, 0x00, 0xFF}, // red
	{0xAA, 0x00, 0xAA, 0xFF}, // magenta
	{0xAA, 0x55, 0x00, 0xFF}, // brown
	{0xAA, 0xAA, 0xAA, 0xFF}, // light gray
	{0x55, 0x55, 0x55, 0xFF}, // dark gray
	{0x55, 0x55, 0xFF, 0xFF}, // light blue
	{0x55, 0xFF, 0x55, 0xFF}, // light green
	{0x55, 0xFF, 0xFF, 0xFF}, // light cyan
	{0xFF, 0x55, 0x55, 0xFF}, // light red
	{0xFF, 0x55, 0xFF, 0xFF}, // light magenta
	{0xFF, 0xFF, 0x55, 0xFF}, // yellow
	{0xFF, 0xFF, 0xFF, 0xFF}, // white
}

// Colors decodes a text attribute byte: low nibble foreground, high
// nibble background. Bit 7 is treated as background intensity rather
// than blink.
func Colors(attr uint8) (fg, bg color.RGBA) {
	fg = Palette[attr&0x0F]
	bg = Palette[(attr>>4)&0x0F]

	return fg, bg
}
