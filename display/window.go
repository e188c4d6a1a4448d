package display

import (
	"errors"
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"vbox86/memory"
)

// Window renders the text buffer into an ebiten window and injects
// key presses into the machine. It implements ebiten.Game; Update
// drives the emulation one frame at a time, so the whole VM stays on
// ebiten's single game loop thread.
type Window struct {
	mach Machine
	mem  *memory.Memory
	sink Sink

	pressed []ebiten.Key // scratch for inpututil
	err     error        // the machine's terminal error
}

func NewWindow(mach Machine, mem *memory.Memory, sink Sink, title string, scale int) (*Window, error) {
	if scale < 1 {
		return nil, fmt.Errorf("display: window scale must be >= 1, got %d", scale)
	}

	ebiten.SetWindowSize(SCREEN_W*scale, SCREEN_H*scale)
	ebiten.SetWindowTitle(title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	return &Window{mach: mach, mem: mem, sink: sink}, nil
}

// Run blocks until the machine stops or the window is closed, and
// returns the machine's terminal error (nil if the user quit first).
func (w *Window) Run() error {
	if err := ebiten.RunGame(w); err != nil && !errors.Is(err, ebiten.Termination) {
		return fmt.Errorf("display: %w", err)
	}

	return w.err
}

// Layout reports the constant logical resolution; ebiten scales it
// to whatever size the window has.
func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	return SCREEN_W, SCREEN_H
}

// Update polls input and runs one frame of the machine. Part of the
// ebiten.Game interface, called at 60Hz.
func (w *Window) Update() error {
	w.pollKeys()

	if err := w.mach.RunFrame(); err != nil {
		w.err = err
		return ebiten.Termination
	}

	return nil
}

func (w *Window) pollKeys() {
	shift := ebiten.IsKeyPressed(ebiten.KeyShiftLeft) || ebiten.IsKeyPressed(ebiten.KeyShiftRight)

	var flags uint8
	if ebiten.IsKeyPressed(ebiten.KeyShiftRight) {
		flags |= SHIFT_RIGHT
	}
	if ebiten.IsKeyPressed(ebiten.KeyShiftLeft) {
		flags |= SHIFT_LEFT
	}
	if ebiten.IsKeyPressed(ebiten.KeyControlLeft) || ebiten.IsKeyPressed(ebiten.KeyControlRight) {
		flags |= SHIFT_CTRL
	}
	if ebiten.IsKeyPressed(ebiten.KeyAltLeft) || ebiten.IsKeyPressed(ebiten.KeyAltRight) {
		flags |= SHIFT_ALT
	}
	w.sink.SetShiftFlags(flags)

	w.pressed = inpututil.AppendJustPressedKeys(w.pressed[:0])
	for _, k := range w.pressed {
		scancode, ascii, ok := translate(k, shift)
		if !ok {
			continue
		}
		if flags&SHIFT_CTRL != 0 && ascii >= 'a' && ascii <= 'z' {
			ascii = ascii - 'a' + 1 // ^A..^Z
		}
		w.sink.Inject(scancode, ascii)
	}
}

// Draw paints every cell of the text buffer. The cell data is copied
// out of guest memory first; nothing aliases RAM once the walk is
// done. Part of the ebiten.Game interface.
func (w *Window) Draw(screen *ebiten.Image) {
	cells := w.mem.Dump(TEXT_BASE, TEXT_SIZE)

	for cy := 0; cy < ROWS; cy++ {
		for cx := 0; cx < COLS; cx++ {
			ch := cells[(cy*COLS+cx)*2]
			fg, bg := Colors(cells[(cy*COLS+cx)*2+1])

			for row := 0; row < GLYPH_H; row++ {
				bits := glyphRow(ch, row)
				for col := 0; col < GLYPH_W; col++ {
					c := bg
					if bits&(0x80>>col) != 0 {
						c = fg
					}
					screen.Set(cx*GLYPH_W+col, cy*GLYPH_H+row, c)
				}
			}
		}
	}
}
