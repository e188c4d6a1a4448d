package bios

import (
	"testing"

	"vbox86/x86"
)

func TestKeyboardEchoRoundTrip(t *testing.T) {
	// Peek (AH=01h), then consume (AH=00h), then peek again.
	cpu, _, b := newMachine(
		0xB4, 0x01, 0xCD, 0x16, // MOV AH,1; INT 16h
		0xB4, 0x00, 0xCD, 0x16, // MOV AH,0; INT 16h
		0xB4, 0x01, 0xCD, 0x16, // MOV AH,1; INT 16h
		0xF4,
	)
	b.Inject(0x1E, 'a')

	// Peek: buffer keeps the pair, ZF clear, AX holds it.
	if err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	if err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	if cpu.Flag(x86.FLAG_ZF) {
		t.Fatalf("ZF set after peek with a key waiting")
	}
	if got := cpu.Reg16(x86.AX); got != 0x1E61 {
		t.Fatalf("peek AX = 0x%04x, wanted 0x1e61", got)
	}

	// Consume: same pair, buffer drains.
	if err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	if err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	if got := cpu.Reg16(x86.AX); got != 0x1E61 {
		t.Fatalf("read AX = 0x%04x, wanted 0x1e61", got)
	}
	if !b.Empty() {
		t.Fatalf("buffer not empty after read")
	}

	// Second peek: empty buffer sets ZF.
	if err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	if err := cpu.Step(); err != nil {
		t.Fatal(err)
	}
	if !cpu.Flag(x86.FLAG_ZF) {
		t.Errorf("ZF clear after peek on an empty buffer")
	}
}

func TestReadFromEmptyBufferReturnsZero(t *testing.T) {
	cpu, _, _ := newMachine(0xB4, 0x00, 0xCD, 0x16, 0xF4)
	cpu.SetReg16(x86.AX, 0xFFFF)
	runToHalt(t, cpu)

	if got := cpu.Reg16(x86.AX); got != 0 {
		t.Errorf("AX = 0x%04x, wanted 0 from an empty buffer", got)
	}
}

func TestRingBufferOrderAndOverflow(t *testing.T) {
	_, _, b := newMachine()

	// Capacity is KEY_BUF_SIZE/2 - 1 pairs; extras are dropped.
	for i := 0; i < 10; i++ {
		b.Inject(uint8(i+1), 'a'+uint8(i))
	}

	want := KEY_BUF_SIZE/2 - 1
	for i := 0; i < want; i++ {
		ascii, scancode, ok := b.dequeue()
		if !ok {
			t.Fatalf("pair %d missing", i)
		}
		if ascii != 'a'+uint8(i) || scancode != uint8(i+1) {
			t.Errorf("pair %d = (0x%02x, 0x%02x), wanted (0x%02x, 0x%02x)",
				i, ascii, scancode, 'a'+uint8(i), i+1)
		}
	}
	if !b.Empty() {
		t.Errorf("buffer should be empty after %d pairs", want)
	}
}

func TestRingBufferWraps(t *testing.T) {
	_, _, b := newMachine()

	// Cycle more pairs through than the ring holds to cross the
	// wrap point.
	for i := 0; i < 40; i++ {
		b.Inject(0x10, uint8(i))
		ascii, _, ok := b.dequeue()
		if !ok || ascii != uint8(i) {
			t.Fatalf("cycle %d: got (0x%02x, %v)", i, ascii, ok)
		}
	}
}

func TestShiftFlags(t *testing.T) {
	cpu, mem, b := newMachine(0xB4, 0x02, 0xCD, 0x16, 0xF4)
	b.SetShiftFlags(0x05) // right shift + ctrl
	runToHalt(t, cpu)

	if got := cpu.Reg8(x86.AL); got != 0x05 {
		t.Errorf("AL = 0x%02x, wanted 0x05", got)
	}
	if got := mem.Read8(BDA_SHIFT_FLAGS); got != 0x05 {
		t.Errorf("BDA shift byte = 0x%02x, wanted 0x05", got)
	}
}

func TestDosReadEchoesThroughTeletype(t *testing.T) {
	cpu, mem, b := newMachine(0xB4, 0x01, 0xCD, 0x21, 0xF4)
	b.Inject(0x1E, 'a')
	runToHalt(t, cpu)

	if got := cpu.Reg8(x86.AL); got != 'a' {
		t.Errorf("AL = 0x%02x, wanted 'a'", got)
	}
	if got := mem.Read8(TEXT_BASE); got != 'a' {
		t.Errorf("echo missing: text[0] = 0x%02x, wanted 'a'", got)
	}
}
