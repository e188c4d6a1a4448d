package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"vbox86/memory"
)

// Terminal renders the text buffer to the controlling terminal with
// ANSI escapes and feeds raw-mode stdin bytes back as key pairs.
// Ctrl-C quits.
type Terminal struct {
	mach Machine
	mem  *memory.Memory
	sink Sink

	out  io.Writer
	prev []uint8 // last frame's cells, for dirty-row detection
}

func NewTerminal(mach Machine, mem *memory.Memory, sink Sink) (*Terminal, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, fmt.Errorf("display: stdin is not a terminal")
	}

	return &Terminal{mach: mach, mem: mem, sink: sink, out: os.Stdout}, nil
}

// Run switches the terminal to raw mode and alternates machine
// frames with repaints until the machine stops or Ctrl-C arrives.
func (t *Terminal) Run() error {
	old, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return fmt.Errorf("display: raw mode: %w", err)
	}
	defer func() {
		term.Restore(int(os.Stdin.Fd()), old)
		fmt.Fprint(t.out, "\x1b[0m\x1b[?25h\n")
	}()

	// A reader goroutine feeds the frame loop; stdin reads block
	// and the emulation must not.
	keys := make(chan uint8, 64)
	go func() {
		buf := make([]uint8, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				close(keys)
				return
			}
			keys <- buf[0]
		}
	}()

	fmt.Fprint(t.out, "\x1b[2J\x1b[?25l") // clear, hide cursor

	tick := time.NewTicker(time.Second / 60)
	defer tick.Stop()

	for range tick.C {
		for drained := false; !drained; {
			select {
			case ch, ok := <-keys:
				if !ok || ch == 0x03 { // EOF or Ctrl-C
					return nil
				}
				t.injectByte(ch)
			default:
				drained = true
			}
		}

		if err := t.mach.RunFrame(); err != nil {
			t.render()
			return err
		}
		t.render()
	}

	return nil
}

// injectByte translates one terminal input byte into a BIOS key
// pair. Raw mode delivers CR for enter and DEL for backspace.
func (t *Terminal) injectByte(ch uint8) {
	switch ch {
	case 0x7F:
		ch = 0x08
	case 0x0A:
		ch = 0x0D
	}
	t.sink.Inject(scancodeFor(ch), ch)
}

// ansiColor maps a CGA color index to the matching terminal color,
// using the bright range for the intense half of the palette.
func ansiColor(idx uint8, background bool) int {
	// CGA order is BGR, ANSI order is RGB.
	rgb := []int{0, 4, 2, 6, 1, 5, 3, 7}

	c := 30 + rgb[idx&7]
	if idx&8 != 0 {
		c += 60
	}
	if background {
		c += 10
	}

	return c
}

// render repaints rows whose cells changed since the last frame.
func (t *Terminal) render() {
	cells := t.mem.Dump(TEXT_BASE, TEXT_SIZE)
	defer func() { t.prev = cells }()

	var sb strings.Builder
	for y := 0; y < ROWS; y++ {
		row := cells[y*COLS*2 : (y+1)*COLS*2]
		if t.prev != nil && equalRow(row, t.prev[y*COLS*2:(y+1)*COLS*2]) {
			continue
		}

		sb.Reset()
		fmt.Fprintf(&sb, "\x1b[%d;1H", y+1)
		lastAttr := uint8(0xFF)
		for x := 0; x < COLS; x++ {
			ch, attr := row[x*2], row[x*2+1]
			if attr != lastAttr {
				fmt.Fprintf(&sb, "\x1b[0;%d;%dm", ansiColor(attr&0x0F, false), ansiColor(attr>>4, true))
				lastAttr = attr
			}
			if ch < 0x20 || ch >= 0x7F {
				ch = ' '
			}
			sb.WriteByte(ch)
		}
		fmt.Fprint(t.out, sb.String())
	}
}

func equalRow(a, b []uint8) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
