package main

import (
	"errors"
	"fmt"
)

func (probe *TypeProbe) cmdDump(a interface{}) error {
	args, ok := a.([]string)
	if !ok || len(args) < 3 {
		return errors.New("invalid arguments")
	}
	hdl, err := probe.target()
	if err != nil {
		return err
	}

	addr, err := parseAddr(args[2])
	if err != nil {
		return err
	}
	n := uint64(64)
	if args[3] != "" {
		if n, err = parseAddr(args[3]); err != nil {
			return err
		}
	}

	data, err := hdl.Read(addr, int(n))
	if err != nil {
		return err
	}
	if len(data) < int(n) {
		Printf("%spartial read: %d of %d byte(s)%s\n", ColorYellow, len(data), int(n), ColorReset)
	}

	for i := 0; i < len(data); i += 16 {
		fmt.Printf("%016x: ", addr+uint64(i))

		for j := 0; j < 16; j++ {
			if i+j < len(data) {
				fmt.Printf("%02x ", data[i+j])
			} else {
				fmt.Printf("   ")
			}
		}

		fmt.Printf(" |")

		for j := 0; j < 16 && i+j < len(data); j++ {
			b := data[i+j]
			if b >= 32 && b <= 126 {
				fmt.Printf("%c", b)
			} else {
				fmt.Printf(".")
			}
		}

		fmt.Printf("|\n")
	}

	return nil
}
