// Command vbox86 runs a real mode boot-sector style binary in an
// emulated 8086 PC with a text-mode display.
//
// usage: vbox86 [flags] image.bin
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	getopt "github.com/pborman/getopt/v2"

	"vbox86/memory"
	"vbox86/vm"
	"vbox86/x86"
)

func main() {
	optScale := getopt.IntLong("scale", 's', 2, "Window scale factor")
	optOrg := getopt.StringLong("org", 'o', "0x7C00", "Load and entry linear address (hex)")
	optTerm := getopt.BoolLong("term", 't', "Render to the terminal instead of a window")
	optHeadless := getopt.BoolLong("headless", 'H', "Run without a display")
	optMonitor := getopt.BoolLong("monitor", 'm', "Start in the interactive monitor")
	optTrace := getopt.BoolLong("trace", 'd', "Log every executed instruction")
	optLog := getopt.StringLong("log", 'l', "", "Log file (default stderr)")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.SetParameters("image.bin")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	args := getopt.Args()
	if len(args) != 1 {
		getopt.Usage()
		os.Exit(2)
	}

	level := new(slog.LevelVar)
	if *optTrace {
		level.Set(slog.LevelDebug)
	}
	logOut := os.Stderr
	if *optLog != "" {
		f, err := os.Create(*optLog)
		if err != nil {
			fmt.Fprintf(os.Stderr, "can't open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level})))

	org, err := parseOrg(*optOrg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	machine := vm.New()
	machine.SetTrace(*optTrace)
	if err := machine.LoadBinary(args[0], org); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Entry follows the load address: segment on the 64k slice the
	// image landed in, offset within it.
	machine.CPU.SetSeg(x86.CS, uint16(org>>4)&0xF000)
	machine.CPU.SetIP(uint16(org & 0xFFFF))

	if *optMonitor {
		if err := machine.Monitor(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if !*optHeadless {
		var err error
		if *optTerm {
			err = machine.AttachTerminal()
		} else {
			err = machine.AttachWindow("vbox86", *optScale)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	}

	err = machine.Run()
	if err == nil || errors.Is(err, x86.ErrHalted) {
		os.Exit(0)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func parseOrg(s string) (uint32, error) {
	a, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 32)
	if err != nil || a >= memory.MEM_SIZE {
		return 0, fmt.Errorf("bad load address %q: want a hex linear address below 0x100000", s)
	}

	return uint32(a), nil
}
