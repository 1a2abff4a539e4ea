package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
)

// The process identity source for the core: attach only ever sees pids
// that came out of this listing (or that the user typed explicitly).

type procEntry struct {
	pid  int
	comm string
}

func listProcesses() ([]procEntry, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}

	var out []procEntry
	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil {
			continue
		}
		out = append(out, procEntry{pid: pid, comm: commOf(pid)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].pid < out[j].pid })
	return out, nil
}

func commOf(pid int) string {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid))
	if err != nil {
		return "?"
	}
	return strings.TrimSpace(string(data))
}

func pickProcess() (int, error) {
	procs, err := listProcesses()
	if err != nil {
		return 0, err
	}
	if len(procs) == 0 {
		return 0, errors.New("no processes visible")
	}

	items := make([]string, len(procs))
	for i, p := range procs {
		items[i] = fmt.Sprintf("%6d  %s", p.pid, p.comm)
	}

	sel := promptui.Select{
		Label: "Attach to process",
		Items: items,
		Size:  16,
		Searcher: func(input string, index int) bool {
			return strings.Contains(items[index], input)
		},
		StartInSearchMode: true,
	}

	idx, _, err := sel.Run()
	if err != nil {
		return 0, err
	}
	return procs[idx].pid, nil
}
