package main

import (
	"flag"
	"fmt"
	"os"

	"memprobe/disass"
	"memprobe/proc"
)

func main() {
	pid := flag.Int("p", 0, "attach to process id at startup")
	arch := flag.Int("arch", 64, "disassembler mode (32 or 64)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	probe := &TypeProbe{}

	dec, err := disass.NewX86(*arch)
	if err != nil {
		LogError("%v - disassembly disabled", err)
		probe.dis = disass.New(nil)
	} else {
		probe.dis = disass.New(dec)
	}

	if *pid != 0 {
		if err := probe.attach(*pid); err != nil {
			fmt.Fprintf(os.Stderr, "Error attaching pid %d: %s\n", *pid, err)
			os.Exit(1)
		}
	}

	probe.Interactive()

	if probe.hdl != nil {
		probe.hdl.Close()
	}
}

func (probe *TypeProbe) attach(pid int) error {
	hdl, err := proc.Open(pid, proc.AccessRead)
	if err != nil {
		return err
	}

	if probe.hdl != nil {
		probe.hdl.Close()
	}
	probe.hdl = hdl
	probe.ses = nil
	probe.snap = nil
	probe.comm = commOf(pid)

	Printf("attached to PID:%d (%s)\n", pid, probe.comm)
	return nil
}
