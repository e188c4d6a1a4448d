package bios

import (
	"log/slog"

	"vbox86/x86"
)

// The keyboard buffer is a small ring of (ascii, scancode) pairs.
// The display's event poll produces into it through Inject; the
// INT 16h and INT 21h services consume. Head and tail advance by two
// so a pair is always contiguous.

// Inject appends one key pair, silently dropping it when the buffer
// is full.
func (b *BIOS) Inject(scancode, ascii uint8) {
	next := (b.tail + 2) % KEY_BUF_SIZE
	if next == b.head {
		return
	}
	b.keys[b.tail] = ascii
	b.keys[b.tail+1] = scancode
	b.tail = next
}

// SetShiftFlags replaces the shift-state snapshot (IBM layout: bit 0
// right shift, bit 1 left shift, bit 2 ctrl, bit 3 alt, ...).
func (b *BIOS) SetShiftFlags(flags uint8) {
	b.shift = flags
	b.mem.Write8(BDA_SHIFT_FLAGS, flags)
}

// Empty reports whether no key pair is waiting.
func (b *BIOS) Empty() bool {
	return b.head == b.tail
}

func (b *BIOS) dequeue() (ascii, scancode uint8, ok bool) {
	if b.Empty() {
		return 0, 0, false
	}
	ascii = b.keys[b.head]
	scancode = b.keys[b.head+1]
	b.head = (b.head + 2) % KEY_BUF_SIZE

	return ascii, scancode, true
}

func (b *BIOS) peek() (ascii, scancode uint8, ok bool) {
	if b.Empty() {
		return 0, 0, false
	}

	return b.keys[b.head], b.keys[b.head+1], true
}

// keyService answers INT 16h. Reads never block: an empty buffer
// returns zero for the consuming functions and sets ZF for the
// peeking ones.
func (b *BIOS) keyService() {
	cpu := b.cpu

	switch ah := cpu.Reg8(x86.AH); ah {
	case 0x00, 0x10: // read key
		ascii, scancode, _ := b.dequeue()
		cpu.SetReg16(x86.AX, uint16(scancode)<<8|uint16(ascii))
	case 0x01, 0x11: // peek
		ascii, scancode, ok := b.peek()
		cpu.SetFlag(x86.FLAG_ZF, !ok)
		if ok {
			cpu.SetReg16(x86.AX, uint16(scancode)<<8|uint16(ascii))
		}
	case 0x02, 0x12: // shift flags
		cpu.SetReg8(x86.AL, b.shift)
	default:
		slog.Debug("bios: unhandled keyboard function", "ah", ah)
	}
}
