// Package vm wires the machine together: memory, CPU, BIOS and an
// optional display surface, plus the run loop and the flat binary
// loader.
package vm

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"vbox86/bios"
	"vbox86/display"
	"vbox86/memory"
	"vbox86/x86"
)

// LOAD_ADDR is the boot-sector convention: binaries land at linear
// 0x7C00, which is also where a reset CPU starts fetching.
const LOAD_ADDR = 0x7C00

// STEPS_PER_FRAME is how many instructions run between display
// frames. At 60 frames/s this paces the guest around a few MIPS,
// plenty for the era of software this machine runs.
const STEPS_PER_FRAME = 50000

// ErrImageTooLarge is returned by LoadBinary when the file does not
// fit below the 1MB line at the requested address.
var ErrImageTooLarge = errors.New("image does not fit in memory")

type VM struct {
	Mem  *memory.Memory
	CPU  *x86.CPU
	BIOS *bios.BIOS

	surface display.Surface
	trace   bool
	log     *slog.Logger
}

// New builds a machine with every component wired: the CPU gets the
// BIOS as its interrupt intercept, the BIOS gets the CPU and memory.
// No display is attached; the machine runs headless until one is.
func New() *VM {
	mem := memory.New()
	cpu := x86.New(mem)
	b := bios.New(cpu, mem)
	cpu.SetInterruptHandler(b)

	return &VM{Mem: mem, CPU: cpu, BIOS: b, log: slog.Default()}
}

// SetTrace enables per-instruction state logging at Debug level.
func (v *VM) SetTrace(on bool) { v.trace = on }

// AttachWindow connects an ebiten window surface at the given
// integer scale.
func (v *VM) AttachWindow(title string, scale int) error {
	w, err := display.NewWindow(v, v.Mem, v.BIOS, title, scale)
	if err != nil {
		return err
	}
	v.surface = w

	return nil
}

// AttachTerminal connects the ANSI terminal surface.
func (v *VM) AttachTerminal() error {
	t, err := display.NewTerminal(v, v.Mem, v.BIOS)
	if err != nil {
		return err
	}
	v.surface = t

	return nil
}

// LoadBinary copies a raw image file into guest memory at addr. No
// header parsing: every byte of the file lands verbatim.
func (v *VM) LoadBinary(path string, addr uint32) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("vm: couldn't load image: %w", err)
	}
	if uint64(addr)+uint64(len(data)) > memory.MEM_SIZE {
		return fmt.Errorf("vm: %q is %d bytes at 0x%05X: %w", path, len(data), addr, ErrImageTooLarge)
	}

	v.Mem.Load(addr, data)
	v.log.Info("image loaded", "path", path, "bytes", len(data), "addr", fmt.Sprintf("0x%05X", addr))

	return nil
}

// Step executes one instruction, logging the pre-instruction state
// when tracing.
func (v *VM) Step() error {
	if v.trace {
		v.log.Debug("step", "cpu", v.CPU.String())
	}

	return v.CPU.Step()
}

// RunFrame executes one display frame's worth of instructions. It
// satisfies the display.Machine interface; surfaces call it between
// input polls and repaints.
func (v *VM) RunFrame() error {
	for i := 0; i < STEPS_PER_FRAME; i++ {
		if err := v.Step(); err != nil {
			return err
		}
	}

	return nil
}

// Run drives the machine to its terminal state. With a surface
// attached the surface owns the loop; headless it just steps. The
// returned error is x86.ErrHalted for a normal halt, nil if the user
// closed the surface first, and the fault otherwise.
func (v *VM) Run() error {
	v.log.Info("machine running", "entry", fmt.Sprintf("%04X:%04X", v.CPU.Seg(x86.CS), v.CPU.IP()))

	var err error
	if v.surface != nil {
		err = v.surface.Run()
	} else {
		for err == nil {
			err = v.Step()
		}
	}

	if errors.Is(err, x86.ErrHalted) {
		v.log.Info("machine halted", "cycles", v.CPU.Cycles())
	} else if err != nil {
		v.log.Error("machine stopped", "err", err, "cycles", v.CPU.Cycles())
	}

	return err
}
