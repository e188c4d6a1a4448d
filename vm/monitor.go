package vm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"vbox86/x86"
)

const monitorHelp = `commands:
  r             show registers
  s [n]         step n instructions (default 1)
  c             continue until halt, fault or breakpoint
  b <addr>      set a breakpoint at a linear hex address
  d             delete all breakpoints
  m <lo> <hi>   dump memory between linear hex addresses
  q             quit the monitor`

// Monitor runs the interactive debugger on the controlling terminal.
// It owns the machine until the user quits; a halt or fault is
// reported and the prompt stays open.
func (v *VM) Monitor() error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	breaks := make(map[uint32]struct{})

	fmt.Println("vbox86 monitor; 'h' for help")
	fmt.Println(v.CPU)

	for {
		in, err := line.Prompt("vbox> ")
		if err != nil { // Ctrl-C or EOF
			return nil
		}
		line.AppendHistory(in)

		fields := strings.Fields(in)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "h", "help":
			fmt.Println(monitorHelp)
		case "r":
			fmt.Println(v.CPU)
		case "s":
			n := 1
			if len(fields) > 1 {
				if n, err = strconv.Atoi(fields[1]); err != nil || n < 1 {
					fmt.Println("usage: s [n]")
					continue
				}
			}
			for i := 0; i < n; i++ {
				if v.reportStep() {
					break
				}
			}
			fmt.Println(v.CPU)
		case "c":
			for {
				if v.reportStep() {
					break
				}
				at := x86.Linear(v.CPU.Seg(x86.CS), v.CPU.IP())
				if _, ok := breaks[at]; ok {
					fmt.Printf("breakpoint at 0x%05X\n", at)
					break
				}
			}
			fmt.Println(v.CPU)
		case "b":
			if len(fields) != 2 {
				fmt.Println("usage: b <addr>")
				continue
			}
			addr, err := parseAddr(fields[1])
			if err != nil {
				fmt.Println(err)
				continue
			}
			breaks[addr] = struct{}{}
		case "d":
			breaks = make(map[uint32]struct{})
		case "m":
			if len(fields) != 3 {
				fmt.Println("usage: m <lo> <hi>")
				continue
			}
			lo, err1 := parseAddr(fields[1])
			hi, err2 := parseAddr(fields[2])
			if err1 != nil || err2 != nil || hi < lo {
				fmt.Println("usage: m <lo> <hi> (hex, lo <= hi)")
				continue
			}
			v.dump(lo, hi)
		case "q":
			return nil
		default:
			fmt.Printf("unknown command %q; 'h' for help\n", fields[0])
		}
	}
}

// reportStep steps once and prints any terminal condition, returning
// true when the run is over.
func (v *VM) reportStep() bool {
	err := v.Step()
	if err == nil {
		return false
	}
	if errors.Is(err, x86.ErrHalted) {
		fmt.Println("machine halted")
	} else {
		fmt.Println(err)
	}

	return true
}

func parseAddr(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	a, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", s)
	}

	return uint32(a), nil
}

// dump prints a classic 16-bytes-per-row hex+ascii listing.
func (v *VM) dump(lo, hi uint32) {
	for base := lo &^ 0xF; base <= hi; base += 16 {
		var hex, ascii strings.Builder
		for i := uint32(0); i < 16; i++ {
			a := base + i
			if a < lo || a > hi {
				hex.WriteString("   ")
				ascii.WriteByte(' ')
				continue
			}
			b := v.Mem.Read8(a)
			fmt.Fprintf(&hex, "%02x ", b)
			if b >= 0x20 && b < 0x7F {
				ascii.WriteByte(b)
			} else {
				ascii.WriteByte('.')
			}
		}
		fmt.Printf("%05x  %s %s\n", base, hex.String(), ascii.String())
	}
}
