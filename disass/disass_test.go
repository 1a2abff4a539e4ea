package disass

import (
	"bytes"
	"errors"
	"testing"

	"memprobe/proc"
)

type fakeMem struct {
	base uint64
	data []byte
}

func (f *fakeMem) Read(addr uint64, n int) ([]byte, error) {
	end := f.base + uint64(len(f.data))
	if addr < f.base || addr >= end {
		return nil, proc.ErrReadFailure
	}
	off := int(addr - f.base)
	if avail := len(f.data) - off; n > avail {
		n = avail
	}
	out := make([]byte, n)
	copy(out, f.data[off:off+n])
	return out, nil
}

func newX86(t *testing.T, mode int) *X86 {
	t.Helper()
	d, err := NewX86(mode)
	if err != nil {
		t.Fatalf("NewX86(%d): %v", mode, err)
	}
	return d
}

func TestNewX86Modes(t *testing.T) {
	for _, mode := range []int{32, 64} {
		if _, err := NewX86(mode); err != nil {
			t.Errorf("mode %d rejected: %v", mode, err)
		}
	}
	for _, mode := range []int{0, 16, 65} {
		if _, err := NewX86(mode); err == nil {
			t.Errorf("mode %d accepted", mode)
		}
	}
}

func TestDisassembleStopsAtBadOpcode(t *testing.T) {
	code := []byte{
		0xb8, 0x01, 0x00, 0x00, 0x00, // mov eax, 0x1
		0xb9, 0x02, 0x00, 0x00, 0x00, // mov ecx, 0x2
		0x0f, // truncated two-byte opcode
	}
	mem := &fakeMem{base: 0x401000, data: code}
	a := New(newX86(t, 64))

	insts, err := a.Disassemble(mem, 0x401000, len(code))
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	if len(insts) != 2 {
		t.Fatalf("got %d instructions, want 2: %v", len(insts), insts)
	}

	total := 0
	for i, inst := range insts {
		if inst.Mnemonic != "mov" {
			t.Fatalf("inst %d mnemonic %q, want mov", i, inst.Mnemonic)
		}
		if inst.Len != 5 || len(inst.Raw) != 5 {
			t.Fatalf("inst %d length %d/%d, want 5", i, inst.Len, len(inst.Raw))
		}
		total += inst.Len
	}
	if total > len(code) {
		t.Fatalf("decoded %d bytes from a %d byte buffer", total, len(code))
	}
	if insts[0].Addr != 0x401000 || insts[1].Addr != 0x401005 {
		t.Fatalf("addresses %#x/%#x", insts[0].Addr, insts[1].Addr)
	}
	if !bytes.Equal(insts[0].Raw, code[:5]) {
		t.Fatalf("raw bytes % x", insts[0].Raw)
	}
}

func TestDisassembleUnavailable(t *testing.T) {
	a := New(nil)
	if a.Available() {
		t.Fatal("nil decoder reported available")
	}

	mem := &fakeMem{base: 0x1000, data: []byte{0x90}}
	_, err := a.Disassemble(mem, 0x1000, 1)
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
}

func TestDisassembleEmptyIsNotUnavailable(t *testing.T) {
	// A buffer of garbage decodes zero instructions; that is a valid
	// result, not a capability failure.
	mem := &fakeMem{base: 0x1000, data: []byte{0x0f}}
	a := New(newX86(t, 64))

	insts, err := a.Disassemble(mem, 0x1000, 1)
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	if len(insts) != 0 {
		t.Fatalf("got %d instructions from garbage", len(insts))
	}
}

func TestDisassembleReadError(t *testing.T) {
	a := New(newX86(t, 64))
	mem := &fakeMem{base: 0x1000, data: []byte{0x90}}
	if _, err := a.Disassemble(mem, 0xdead0000, 16); !errors.Is(err, proc.ErrReadFailure) {
		t.Fatalf("got %v, want read failure", err)
	}
}

func TestFlowClassification(t *testing.T) {
	cases := []struct {
		name string
		code []byte
		want Flow
	}{
		{"nop", []byte{0x90}, FlowOther},
		{"ret", []byte{0xc3}, FlowReturn},
		{"call rel32", []byte{0xe8, 0x00, 0x00, 0x00, 0x00}, FlowCall},
		{"jmp short", []byte{0xeb, 0x00}, FlowJump},
		{"je short", []byte{0x74, 0x00}, FlowBranch},
		{"jne short", []byte{0x75, 0x00}, FlowBranch},
		{"syscall", []byte{0x0f, 0x05}, FlowCall},
	}

	d := newX86(t, 64)
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			inst, err := d.Decode(c.code, 0x1000)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if inst.Flow != c.want {
				t.Fatalf("flow %v, want %v", inst.Flow, c.want)
			}
		})
	}
}

func TestDecode32BitMode(t *testing.T) {
	// push ebp; mov ebp, esp
	code := []byte{0x55, 0x8b, 0xec}
	mem := &fakeMem{base: 0x8048000, data: code}
	a := New(newX86(t, 32))

	insts, err := a.Disassemble(mem, 0x8048000, len(code))
	if err != nil {
		t.Fatalf("disassemble: %v", err)
	}
	if len(insts) != 2 {
		t.Fatalf("got %d instructions, want 2", len(insts))
	}
	if insts[0].Mnemonic != "push" || insts[1].Mnemonic != "mov" {
		t.Fatalf("mnemonics %q, %q", insts[0].Mnemonic, insts[1].Mnemonic)
	}
}
