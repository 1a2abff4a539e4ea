package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"strconv"
	"strings"

	"memprobe/analyze"
	"memprobe/codec"
	"memprobe/disass"
	"memprobe/proc"
	"memprobe/scan"
	"memprobe/snapshot"
)

type TypeProbe struct {
	hdl  *proc.Handle
	ses  *scan.Session
	snap *snapshot.Snapshot
	dis  *disass.Adapter
	comm string
}

type cmdHandler struct {
	regex *regexp.Regexp
	fn    func(*TypeProbe, interface{}) error
}

var compiledCmds = []cmdHandler{
	{regexp.MustCompile(`^\s*(attach|at)(?:\s+(\d+))?\s*$`), (*TypeProbe).cmdAttach},
	{regexp.MustCompile(`^\s*(detach)\s*$`), (*TypeProbe).cmdDetach},
	{regexp.MustCompile(`^\s*(ps)\s*$`), (*TypeProbe).cmdPs},
	{regexp.MustCompile(`^\s*(vmmap|maps)(?:\s+([rwx]+))?\s*$`), (*TypeProbe).cmdVmmap},
	{regexp.MustCompile(`^\s*(modules|mod)\s*$`), (*TypeProbe).cmdModules},
	{regexp.MustCompile(`^\s*(db|xxd)\s+(\S+)(?:\s+(\S+))?\s*$`), (*TypeProbe).cmdDump},
	{regexp.MustCompile(`^\s*(scan)\s+(\S+)\s+(.+)$`), (*TypeProbe).cmdScan},
	{regexp.MustCompile(`^\s*(range)\s+(\S+)\s+(\S+)\s+(\S+)\s*$`), (*TypeProbe).cmdRange},
	{regexp.MustCompile(`^\s*(next)\s+(eq|equals)\s+(.+)$`), (*TypeProbe).cmdNextEq},
	{regexp.MustCompile(`^\s*(next)\s+(between)\s+(\S+)\s+(\S+)\s*$`), (*TypeProbe).cmdNextBetween},
	{regexp.MustCompile(`^\s*(next)\s+(changed|same|inc|dec)\s*$`), (*TypeProbe).cmdNextSimple},
	{regexp.MustCompile(`^\s*(results|res)(?:\s+(\d+))?\s*$`), (*TypeProbe).cmdResults},
	{regexp.MustCompile(`^\s*(aob)\s+(.+)$`), (*TypeProbe).cmdAob},
	{regexp.MustCompile(`^\s*(chain)\s+(\S+)((?:\s+\S+)*)\s*$`), (*TypeProbe).cmdChain},
	{regexp.MustCompile(`^\s*(ptrscan)\s+(\S+)\s+(\S+)\s*$`), (*TypeProbe).cmdPtrScan},
	{regexp.MustCompile(`^\s*(refs)\s+(\S+)\s*$`), (*TypeProbe).cmdRefs},
	{regexp.MustCompile(`^\s*(funcs|prologues)\s*$`), (*TypeProbe).cmdFuncs},
	{regexp.MustCompile(`^\s*(snap)\s+(\S+)\s+(\S+)\s*$`), (*TypeProbe).cmdSnap},
	{regexp.MustCompile(`^\s*(sdiff|diff)\s*$`), (*TypeProbe).cmdSdiff},
	{regexp.MustCompile(`^\s*(disass|dis)\s+(\S+)(?:\s+(\S+))?\s*$`), (*TypeProbe).cmdDisass},
	{regexp.MustCompile(`^\s*(strings|str)\s+(\S+)\s+(\S+)\s*$`), (*TypeProbe).cmdStrings},
	{regexp.MustCompile(`^\s*(struct)\s+(\S+)\s+(\S+)\s*$`), (*TypeProbe).cmdStruct},
	{regexp.MustCompile(`^\s*(help|h|\?)\s*$`), (*TypeProbe).cmdHelp},
}

func (probe *TypeProbe) cmdExec(req string) error {
	for _, handler := range compiledCmds {
		if m := handler.regex.FindStringSubmatch(req); m != nil {
			return handler.fn(probe, m)
		}
	}
	return errors.New("unknown command (try help)")
}

func (probe *TypeProbe) target() (*proc.Handle, error) {
	if probe.hdl == nil {
		return nil, errors.New("not attached (use attach <pid>)")
	}
	if !probe.hdl.Alive() {
		return nil, proc.ErrHandleStale
	}
	return probe.hdl, nil
}

// cmdCtx is cancelled by ^C so a multi-gigabyte scan can bail out between
// regions instead of running to completion.
func cmdCtx() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func parseAddr(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q", s)
	}
	return v, nil
}

func parseValue(kind codec.Kind, s string) (codec.Value, error) {
	switch kind {
	case codec.Text:
		return codec.TextVal(strings.Trim(s, `"`)), nil
	case codec.Float32, codec.Float64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return codec.Value{}, fmt.Errorf("bad %v value %q", kind, s)
		}
		return codec.FloatVal(kind, f), nil
	case codec.Int8, codec.Int16, codec.Int32, codec.Int64:
		n, err := strconv.ParseInt(s, 0, kind.Size()*8)
		if err != nil {
			return codec.Value{}, fmt.Errorf("bad %v value %q", kind, s)
		}
		return codec.IntVal(kind, n), nil
	}
	n, err := strconv.ParseUint(s, 0, kind.Size()*8)
	if err != nil {
		return codec.Value{}, fmt.Errorf("bad %v value %q", kind, s)
	}
	return codec.UintVal(kind, n), nil
}

func (probe *TypeProbe) cmdAttach(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
		return errors.New("invalid arguments")
	}

	if args[2] == "" {
		pid, err := pickProcess()
		if err != nil {
			return err
		}
		return probe.attach(pid)
	}

	pid, err := strconv.Atoi(args[2])
	if err != nil {
		return err
	}
	return probe.attach(pid)
}

func (probe *TypeProbe) cmdDetach(interface{}) error {
	if probe.hdl == nil {
		return errors.New("not attached")
	}
	pid := probe.hdl.Pid()
	if err := probe.hdl.Close(); err != nil {
		return err
	}
	probe.hdl = nil
	probe.ses = nil
	probe.snap = nil
	Printf("detached from PID:%d\n", pid)
	return nil
}

func (probe *TypeProbe) cmdPs(interface{}) error {
	procs, err := listProcesses()
	if err != nil {
		return err
	}
	for _, p := range procs {
		Printf("%d\t%s\n", p.pid, p.comm)
	}
	return nil
}

func (probe *TypeProbe) cmdVmmap(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
		return errors.New("invalid arguments")
	}
	hdl, err := probe.target()
	if err != nil {
		return err
	}

	var keep proc.Filter
	if args[2] != "" {
		want := args[2]
		keep = func(r proc.Region) bool {
			return (!strings.ContainsRune(want, 'r') || r.Prot&proc.ProtRead != 0) &&
				(!strings.ContainsRune(want, 'w') || r.Prot&proc.ProtWrite != 0) &&
				(!strings.ContainsRune(want, 'x') || r.Prot&proc.ProtExec != 0)
		}
	}

	regs, err := hdl.Regions(keep)
	if err != nil {
		return err
	}

	hLine("vmmap")
	for _, r := range regs {
		Printf("0x%016x-0x%016x %s %8s %s\n", r.Base, r.End(), r.Prot, r.Kind, r.Path)
	}
	return nil
}

func (probe *TypeProbe) cmdModules(interface{}) error {
	hdl, err := probe.target()
	if err != nil {
		return err
	}
	mods, err := hdl.Modules()
	if err != nil {
		return err
	}
	hLine("modules")
	for _, m := range mods {
		Printf("0x%016x %8x %s\n", m.Base, m.Size, m.Path)
	}
	return nil
}

func (probe *TypeProbe) cmdScan(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
		return errors.New("invalid arguments")
	}
	hdl, err := probe.target()
	if err != nil {
		return err
	}

	kind, err := codec.ParseKind(args[2])
	if err != nil {
		return err
	}
	val, err := parseValue(kind, strings.TrimSpace(args[3]))
	if err != nil {
		return err
	}

	ctx, stop := cmdCtx()
	defer stop()

	probe.ses = scan.NewSession(hdl, kind, scan.Options{})
	res, err := probe.ses.First(ctx, val)
	if err != nil {
		probe.ses = nil
		return err
	}
	return probe.showResults(res, 16)
}

func (probe *TypeProbe) cmdRange(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
		return errors.New("invalid arguments")
	}
	hdl, err := probe.target()
	if err != nil {
		return err
	}

	kind, err := codec.ParseKind(args[2])
	if err != nil {
		return err
	}
	min, err := parseValue(kind, args[3])
	if err != nil {
		return err
	}
	max, err := parseValue(kind, args[4])
	if err != nil {
		return err
	}

	ctx, stop := cmdCtx()
	defer stop()

	probe.ses = scan.NewSession(hdl, kind, scan.Options{})
	res, err := probe.ses.Range(ctx, min, max)
	if err != nil {
		probe.ses = nil
		return err
	}
	return probe.showResults(res, 16)
}

func (probe *TypeProbe) next(pred scan.Predicate) error {
	if probe.ses == nil {
		return scan.ErrNoPriorScan
	}
	if _, err := probe.target(); err != nil {
		return err
	}

	ctx, stop := cmdCtx()
	defer stop()

	res, err := probe.ses.Next(ctx, pred)
	if err != nil {
		return err
	}
	return probe.showResults(res, 16)
}

func (probe *TypeProbe) cmdNextEq(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
		return errors.New("invalid arguments")
	}
	if probe.ses == nil {
		return scan.ErrNoPriorScan
	}
	val, err := parseValue(probe.ses.Kind(), strings.TrimSpace(args[3]))
	if err != nil {
		return err
	}
	return probe.next(scan.Equals(val))
}

func (probe *TypeProbe) cmdNextBetween(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
		return errors.New("invalid arguments")
	}
	if probe.ses == nil {
		return scan.ErrNoPriorScan
	}
	min, err := parseValue(probe.ses.Kind(), args[3])
	if err != nil {
		return err
	}
	max, err := parseValue(probe.ses.Kind(), args[4])
	if err != nil {
		return err
	}
	return probe.next(scan.Between(min, max))
}

func (probe *TypeProbe) cmdNextSimple(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
		return errors.New("invalid arguments")
	}
	switch args[2] {
	case "changed":
		return probe.next(scan.Changed())
	case "same":
		return probe.next(scan.Unchanged())
	case "inc":
		return probe.next(scan.Increased())
	case "dec":
		return probe.next(scan.Decreased())
	}
	return errors.New("unknown predicate")
}

func (probe *TypeProbe) cmdResults(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
		return errors.New("invalid arguments")
	}
	if probe.ses == nil || probe.ses.Results() == nil {
		return scan.ErrNoPriorScan
	}
	n := 16
	if args[2] != "" {
		n, _ = strconv.Atoi(args[2])
	}
	return probe.showResults(probe.ses.Results(), n)
}

func (probe *TypeProbe) showResults(res *scan.Results, limit int) error {
	Printf("%d hit(s)\n", len(res.Matches))
	if res.Capped {
		Printf("%sresult cap reached - scan stopped early%s\n", ColorYellow, ColorReset)
	}
	for i, m := range res.Matches {
		if i >= limit {
			Printf("... %d more (results <n>)\n", len(res.Matches)-limit)
			break
		}
		Printf("0x%016x = %s\n", m.Addr, m.Value.String())
	}
	return nil
}

func (probe *TypeProbe) cmdAob(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
		return errors.New("invalid arguments")
	}
	hdl, err := probe.target()
	if err != nil {
		return err
	}

	pat, err := scan.ParsePattern(args[2])
	if err != nil {
		return err
	}

	ctx, stop := cmdCtx()
	defer stop()

	addrs, capped, err := scan.FindPattern(ctx, hdl, pat, scan.Options{})
	if err != nil {
		return err
	}

	Printf("pattern %s: %d hit(s)\n", pat.String(), len(addrs))
	if capped {
		Printf("%sresult cap reached%s\n", ColorYellow, ColorReset)
	}
	for i, addr := range addrs {
		if i >= 16 {
			Printf("... %d more\n", len(addrs)-16)
			break
		}
		Printf("0x%016x\n", addr)
	}
	return nil
}

func (probe *TypeProbe) cmdChain(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
		return errors.New("invalid arguments")
	}
	hdl, err := probe.target()
	if err != nil {
		return err
	}

	base, err := parseAddr(args[2])
	if err != nil {
		return err
	}
	var offsets []uint64
	for _, tok := range strings.Fields(args[3]) {
		off, err := parseAddr(tok)
		if err != nil {
			return err
		}
		offsets = append(offsets, off)
	}

	final, err := analyze.ResolveChain(hdl, base, offsets)
	if err != nil {
		return err
	}

	Printf("chain resolves to 0x%016x\n", final)
	if data, err := hdl.Read(final, 8); err == nil && len(data) > 0 {
		Printf("  -> % x\n", data)
	}
	return nil
}

func (probe *TypeProbe) cmdPtrScan(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
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
	size, err := parseAddr(args[3])
	if err != nil {
		return err
	}

	ps, err := analyze.FindPointers(hdl, addr, int(size))
	if err != nil {
		return err
	}

	Printf("%d pointer slot(s)\n", len(ps.Hits))
	for i, h := range ps.Hits {
		if i >= 32 {
			Printf("... %d more\n", len(ps.Hits)-32)
			break
		}
		Printf("+0x%x -> 0x%016x\n", h.Offset, h.Value)
	}
	for _, c := range ps.Clusters {
		Printf("%svtable-like cluster%s at +0x%x (%d slots)\n", ColorPurple, ColorReset, c.Offset, c.Count)
	}
	return nil
}

func (probe *TypeProbe) cmdRefs(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
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

	ctx, stop := cmdCtx()
	defer stop()

	refs, capped, err := analyze.FindReferences(ctx, hdl, addr, scan.Options{})
	if err != nil {
		return err
	}

	Printf("%d reference(s) to 0x%016x\n", len(refs), addr)
	if capped {
		Printf("%sresult cap reached%s\n", ColorYellow, ColorReset)
	}
	for i, r := range refs {
		if i >= 16 {
			Printf("... %d more\n", len(refs)-16)
			break
		}
		Printf("0x%016x\n", r)
	}
	return nil
}

func (probe *TypeProbe) cmdFuncs(interface{}) error {
	hdl, err := probe.target()
	if err != nil {
		return err
	}

	ctx, stop := cmdCtx()
	defer stop()

	hits, capped, err := analyze.FindPrologues(ctx, hdl, scan.Options{})
	if err != nil {
		return err
	}

	Printf("%d probable function entr(ies)\n", len(hits))
	if capped {
		Printf("%sresult cap reached%s\n", ColorYellow, ColorReset)
	}
	for i, h := range hits {
		if i >= 32 {
			Printf("... %d more\n", len(hits)-32)
			break
		}
		Printf("0x%016x  [%s]\n", h.Addr, h.Pattern)
	}
	return nil
}

func (probe *TypeProbe) cmdSnap(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
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
	size, err := parseAddr(args[3])
	if err != nil {
		return err
	}

	snap, err := snapshot.Capture(hdl, addr, int(size))
	if err != nil {
		return err
	}
	probe.snap = snap

	Printf("snapshot: %d byte(s) at 0x%016x\n", snap.Size(), snap.Addr)
	if snap.Size() < int(size) {
		Printf("%spartial capture (requested %d)%s\n", ColorYellow, int(size), ColorReset)
	}
	return nil
}

func (probe *TypeProbe) cmdSdiff(interface{}) error {
	if probe.snap == nil {
		return errors.New("no snapshot (use snap <addr> <size>)")
	}
	hdl, err := probe.target()
	if err != nil {
		return err
	}

	d, err := probe.snap.Diff(hdl)
	if err != nil {
		return err
	}

	if d.Resized {
		Printf("%ssize changed: captured %d, now %d - diffing common prefix%s\n",
			ColorYellow, probe.snap.Size(), d.NewSize, ColorReset)
	}
	Printf("%d changed run(s)\n", len(d.Changes))
	for i, c := range d.Changes {
		if i >= 32 {
			Printf("... %d more\n", len(d.Changes)-32)
			break
		}
		Printf("+0x%x: % x -> % x\n", c.Offset, c.Old, c.New)
	}
	return nil
}

func (probe *TypeProbe) cmdDisass(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
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
	n := uint64(32)
	if args[3] != "" {
		if n, err = parseAddr(args[3]); err != nil {
			return err
		}
	}

	insts, err := probe.dis.Disassemble(hdl, addr, int(n))
	if err != nil {
		return err
	}

	for _, inst := range insts {
		line := inst.String()
		if inst.Flow != disass.FlowOther {
			line += fmt.Sprintf("  %s; %s%s", ColorPurple, inst.Flow, ColorReset)
		}
		fmt.Println(line)
	}
	if len(insts) == 0 {
		Printf("no instructions decoded at 0x%016x\n", addr)
	}
	return nil
}

func (probe *TypeProbe) cmdStrings(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
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
	size, err := parseAddr(args[3])
	if err != nil {
		return err
	}

	buf, err := hdl.Read(addr, int(size))
	if err != nil {
		return err
	}

	hits := analyze.FindStrings(buf, addr, 4)
	Printf("%d string(s)\n", len(hits))
	for _, h := range hits {
		Printf("0x%016x [%v] %s\n", h.Addr, h.Enc, h.Text)
	}
	return nil
}

func (probe *TypeProbe) cmdStruct(a interface{}) error {
	args, ok := a.([]string)
	if !ok {
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
	size, err := parseAddr(args[3])
	if err != nil {
		return err
	}

	info, err := analyze.InspectStruct(hdl, addr, int(size))
	if err != nil {
		return err
	}

	hLine(fmt.Sprintf("struct @ 0x%x", info.Base))
	for _, f := range info.Fields {
		Printf("+0x%x %8s = %s (%.0f%%)\n", f.Offset, f.Type, f.Value, f.Confidence*100)
	}
	return nil
}

func (probe *TypeProbe) cmdHelp(interface{}) error {
	Printf(`commands:
  attach [pid] | detach | ps
  vmmap [rwx] | modules
  db <addr> [n]
  scan <type> <value>      types: int8..int64 uint8..uint64 float double text
  range <type> <min> <max>
  next eq <v> | next between <min> <max> | next changed|same|inc|dec
  results [n]
  aob <pattern>            e.g. aob 48 8B ?? ?? C3
  chain <base> [off...]
  ptrscan <addr> <size> | refs <addr> | funcs
  snap <addr> <size> | sdiff
  disass <addr> [n]
  strings <addr> <size> | struct <addr> <size>
`)
	return nil
}
