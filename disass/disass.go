// Package disass turns raw target bytes into instruction listings through
// a pluggable decoder capability. Whether a decoder exists is decided
// once, when the adapter is built — not re-checked per call.
package disass

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// ErrUnavailable means the adapter was built without a decoder. Distinct
// from a successful call that decoded zero instructions.
var ErrUnavailable = errors.New("instruction decoder unavailable")

// Flow classifies an instruction's effect on control flow.
type Flow uint8

const (
	FlowOther Flow = iota
	FlowCall
	FlowJump   // unconditional
	FlowBranch // conditional
	FlowReturn
)

func (f Flow) String() string {
	switch f {
	case FlowCall:
		return "call"
	case FlowJump:
		return "jump"
	case FlowBranch:
		return "branch"
	case FlowReturn:
		return "return"
	}
	return "other"
}

// Inst is one decoded instruction.
type Inst struct {
	Addr     uint64
	Raw      []byte
	Mnemonic string
	Args     string
	Len      int
	Flow     Flow
}

func (i Inst) String() string {
	if i.Args == "" {
		return fmt.Sprintf("0x%016x: %s", i.Addr, i.Mnemonic)
	}
	return fmt.Sprintf("0x%016x: %s %s", i.Addr, i.Mnemonic, i.Args)
}

// Decoder decodes the instruction at the front of b, located at pc.
type Decoder interface {
	Decode(b []byte, pc uint64) (Inst, error)
}

// X86 decodes 32- or 64-bit x86 through golang.org/x/arch.
type X86 struct {
	Mode int // 32 or 64
}

func NewX86(mode int) (*X86, error) {
	if mode != 32 && mode != 64 {
		return nil, fmt.Errorf("unsupported x86 mode %d", mode)
	}
	return &X86{Mode: mode}, nil
}

func (d *X86) Decode(b []byte, pc uint64) (Inst, error) {
	raw, err := x86asm.Decode(b, d.Mode)
	if err != nil {
		return Inst{}, err
	}

	text := x86asm.IntelSyntax(raw, pc, nil)
	mnemonic, args := text, ""
	if sp := strings.IndexByte(text, ' '); sp > 0 {
		mnemonic, args = text[:sp], text[sp+1:]
	}

	return Inst{
		Addr:     pc,
		Raw:      append([]byte(nil), b[:raw.Len]...),
		Mnemonic: mnemonic,
		Args:     args,
		Len:      raw.Len,
		Flow:     classify(raw.Op),
	}, nil
}

func classify(op x86asm.Op) Flow {
	switch op {
	case x86asm.CALL, x86asm.LCALL, x86asm.SYSCALL, x86asm.SYSENTER, x86asm.INT:
		return FlowCall
	case x86asm.JMP, x86asm.LJMP:
		return FlowJump
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JE, x86asm.JNE,
		x86asm.JG, x86asm.JGE, x86asm.JL, x86asm.JLE, x86asm.JO, x86asm.JNO,
		x86asm.JP, x86asm.JNP, x86asm.JS, x86asm.JNS,
		x86asm.JCXZ, x86asm.JECXZ, x86asm.JRCXZ,
		x86asm.LOOP, x86asm.LOOPE, x86asm.LOOPNE:
		return FlowBranch
	case x86asm.RET, x86asm.LRET, x86asm.IRET, x86asm.IRETD, x86asm.IRETQ:
		return FlowReturn
	}
	return FlowOther
}

// Reader is the read capability the adapter borrows.
type Reader interface {
	Read(addr uint64, n int) ([]byte, error)
}

// Adapter exposes disassembly over a target. Built with New(nil) it is
// the unavailable variant: every call fails with ErrUnavailable.
type Adapter struct {
	dec Decoder
}

func New(dec Decoder) *Adapter { return &Adapter{dec: dec} }

func (a *Adapter) Available() bool { return a.dec != nil }

// Disassemble reads n bytes at addr once and decodes instruction by
// instruction. Decoding stops at the first undecodable opcode or when the
// buffer runs out; a truncated listing is a valid result, expected near
// the end of a code region. Total decoded length never exceeds n.
func (a *Adapter) Disassemble(tgt Reader, addr uint64, n int) ([]Inst, error) {
	if a.dec == nil {
		return nil, ErrUnavailable
	}

	buf, err := tgt.Read(addr, n)
	if err != nil {
		return nil, err
	}

	var out []Inst
	for off := 0; off < len(buf); {
		inst, err := a.dec.Decode(buf[off:], addr+uint64(off))
		if err != nil || inst.Len <= 0 {
			break
		}
		out = append(out, inst)
		off += inst.Len
	}
	return out, nil
}
