package main

import (
	"fmt"
	"io"

	"github.com/chzyer/readline"
)

func (probe *TypeProbe) Interactive() {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            "[memprobe]$ ",
		HistoryFile:       "/tmp/memprobe_history.txt",
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		panic(err)
	}
	defer rl.Close()

	prev := ""

	for {
		if probe.hdl != nil && probe.hdl.Alive() {
			rl.SetPrompt(fmt.Sprintf("[%smemprobe%s:%s%d %s%s]$ ",
				ColorCyan, ColorReset, ColorCyan, probe.hdl.Pid(), probe.comm, ColorReset))
		} else {
			rl.SetPrompt("[memprobe]$ ")
		}

		req, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			continue
		}

		if req == "" {
			if prev == "" {
				continue
			}
			req = prev
		}

		if req == "q" || req == "exit" || req == "quit" {
			break
		}

		prev = req

		if err := probe.cmdExec(req); err != nil {
			LogError(err.Error())
		}
	}
}
