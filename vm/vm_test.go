package vm

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"vbox86/bios"
	"vbox86/memory"
	"vbox86/x86"
)

// runToEnd steps the machine until a terminal condition and returns
// it.
func runToEnd(t *testing.T, v *VM) error {
	t.Helper()
	for i := 0; i < 100000; i++ {
		if err := v.Step(); err != nil {
			return err
		}
	}
	t.Fatalf("no terminal state after 100000 steps")

	return nil
}

func load(v *VM, code ...uint8) {
	v.Mem.Load(LOAD_ADDR, code)
}

func TestTeletypeHiEndToEnd(t *testing.T) {
	// MOV AH,0Eh; MOV AL,'H'; INT 10h; MOV AL,'i'; INT 10h; HLT
	v := New()
	load(v, 0xB4, 0x0E, 0xB0, 0x48, 0xCD, 0x10, 0xB0, 0x69, 0xCD, 0x10, 0xF4)

	if err := runToEnd(t, v); !errors.Is(err, x86.ErrHalted) {
		t.Fatalf("terminal state = %v, wanted ErrHalted", err)
	}

	want := []uint8{'H', 0x07, 'i', 0x07}
	for i, w := range want {
		if got := v.Mem.Read8(bios.TEXT_BASE + uint32(i)); got != w {
			t.Errorf("text[%d] = 0x%02x, wanted 0x%02x", i, got, w)
		}
	}
}

func TestKeyboardEchoEndToEnd(t *testing.T) {
	// Inject a key the way the display does, then peek and consume
	// through INT 16h.
	v := New()
	load(v,
		0xB4, 0x01, 0xCD, 0x16, // peek
		0xB4, 0x00, 0xCD, 0x16, // consume
		0xF4,
	)
	v.BIOS.Inject(0x1E, 'a')

	if err := runToEnd(t, v); !errors.Is(err, x86.ErrHalted) {
		t.Fatalf("terminal state = %v", err)
	}
	if got := v.CPU.Reg16(x86.AX); got != 0x1E61 {
		t.Errorf("AX = 0x%04x, wanted 0x1e61", got)
	}
	if !v.BIOS.Empty() {
		t.Errorf("keyboard buffer not drained")
	}
}

func TestBootSectorJump(t *testing.T) {
	v := New()
	load(v, 0xEB, 0xFE) // jmp $

	if err := v.Step(); err != nil {
		t.Fatal(err)
	}
	if got := v.CPU.IP(); got != LOAD_ADDR {
		t.Errorf("IP = 0x%04x, wanted 0x%04x", got, LOAD_ADDR)
	}
}

func TestInvalidOpcodeSurfacesLocation(t *testing.T) {
	v := New()
	load(v, 0x63) // ARPL: protected mode only, not decoded

	err := runToEnd(t, v)
	var oe *x86.OpcodeError
	if !errors.As(err, &oe) {
		t.Fatalf("terminal state = %v, wanted OpcodeError", err)
	}
	if got, want := oe.Error(), "Unknown opcode 0x63 at CS:IP=0000:7C00"; got != want {
		t.Errorf("message = %q, wanted %q", got, want)
	}
}

func TestRunHeadless(t *testing.T) {
	v := New()
	load(v, 0xF4)

	if err := v.Run(); !errors.Is(err, x86.ErrHalted) {
		t.Errorf("Run = %v, wanted ErrHalted", err)
	}
}

func TestRunFrameStopsOnHalt(t *testing.T) {
	v := New()
	load(v, 0x90, 0x90, 0xF4)

	if err := v.RunFrame(); !errors.Is(err, x86.ErrHalted) {
		t.Errorf("RunFrame = %v, wanted ErrHalted", err)
	}
}

func TestLoadBinary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "boot.bin")
	if err := os.WriteFile(path, []uint8{0xEB, 0xFE}, 0o644); err != nil {
		t.Fatal(err)
	}

	v := New()
	if err := v.LoadBinary(path, LOAD_ADDR); err != nil {
		t.Fatal(err)
	}
	if got := v.Mem.Read16(LOAD_ADDR); got != 0xFEEB {
		t.Errorf("loaded word = 0x%04x, wanted 0xfeeb", got)
	}
}

func TestLoadBinaryMissingFile(t *testing.T) {
	v := New()

	err := v.LoadBinary(filepath.Join(t.TempDir(), "nope.bin"), LOAD_ADDR)
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadBinary = %v, wanted ErrNotExist", err)
	}
}

func TestLoadBinaryTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.bin")
	if err := os.WriteFile(path, make([]uint8, 0x200), 0o644); err != nil {
		t.Fatal(err)
	}

	v := New()
	err := v.LoadBinary(path, memory.MEM_SIZE-0x100)
	if !errors.Is(err, ErrImageTooLarge) {
		t.Errorf("LoadBinary = %v, wanted ErrImageTooLarge", err)
	}
}

func TestDosExitEndToEnd(t *testing.T) {
	// MOV AX,4C00h; INT 21h is the normal DOS exit path.
	v := New()
	load(v, 0xB8, 0x00, 0x4C, 0xCD, 0x21)

	if err := runToEnd(t, v); !errors.Is(err, x86.ErrHalted) {
		t.Errorf("terminal state = %v, wanted ErrHalted", err)
	}
	if !v.CPU.Halted() {
		t.Errorf("CPU not halted after DOS exit")
	}
}

func TestAddSubFlagScenarios(t *testing.T) {
	// ADD AL,1 with AL=0x7F then SUB behavior is covered in the
	// x86 package; here just check the end-to-end wiring leaves
	// flags observable through the VM.
	v := New()
	load(v, 0x04, 0x01, 0xF4) // ADD AL,1; HLT
	v.CPU.SetReg8(x86.AL, 0x7F)

	if err := runToEnd(t, v); !errors.Is(err, x86.ErrHalted) {
		t.Fatal(err)
	}
	if !v.CPU.Flag(x86.FLAG_OF) || v.CPU.Flag(x86.FLAG_CF) {
		t.Errorf("flags = 0x%04x, wanted OF set, CF clear", v.CPU.Flags())
	}
}
