package analyze

import (
	"context"
	"encoding/binary"

	"memprobe/proc"
	"memprobe/scan"
)

// FindReferences scans the filtered regions for slots whose pointer-width
// contents equal target. It is an exact 8-byte scan riding the pattern
// machinery; only pointer-aligned hits are kept, since a misaligned
// coincidence is noise, not a reference.
func FindReferences(ctx context.Context, tgt scan.Target, target uint64, opt scan.Options) ([]uint64, bool, error) {
	needle := make([]byte, pointerSize)
	binary.LittleEndian.PutUint64(needle, target)

	addrs, capped, err := scan.FindPattern(ctx, tgt, scan.Exact(needle), opt)
	if err != nil {
		return nil, false, err
	}

	out := addrs[:0]
	for _, a := range addrs {
		if a%pointerSize == 0 {
			out = append(out, a)
		}
	}
	return out, capped, nil
}

// PrologueHit is a probable function entry found by byte signature.
type PrologueHit struct {
	Addr    uint64
	Pattern string
}

// Common x86/x64 prologue signatures, most specific first.
var prologues = []string{
	"55 48 89 E5",    // push rbp; mov rbp, rsp
	"48 89 5C 24 ??", // mov [rsp+x], rbx
	"48 83 EC ??",    // sub rsp, x
	"55 8B EC",       // push ebp; mov ebp, esp
	"40 53",          // push rbx
}

// FindPrologues sweeps executable regions for known function prologue
// patterns. Confidence is what it is — a prologue byte sequence can occur
// mid-function too.
func FindPrologues(ctx context.Context, tgt scan.Target, opt scan.Options) ([]PrologueHit, bool, error) {
	if opt.Filter == nil {
		opt.Filter = proc.Executable
	}

	var out []PrologueHit
	capped := false
	for _, sig := range prologues {
		pat, err := scan.ParsePattern(sig)
		if err != nil {
			return nil, false, err
		}
		addrs, c, err := scan.FindPattern(ctx, tgt, pat, opt)
		if err != nil {
			return nil, false, err
		}
		capped = capped || c
		for _, a := range addrs {
			out = append(out, PrologueHit{Addr: a, Pattern: sig})
		}
	}
	return out, capped, nil
}
