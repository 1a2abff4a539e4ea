package snapshot

import (
	"bytes"
	"errors"
	"testing"

	"memprobe/proc"
)

// fakeMem serves reads from one mutable buffer with partial-read
// semantics at its end.
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

func TestCaptureThenDiffNoChange(t *testing.T) {
	mem := &fakeMem{base: 0x1000, data: []byte{1, 2, 3, 4, 5, 6, 7, 8}}

	snap, err := Capture(mem, 0x1000, 8)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if snap.Size() != 8 || snap.Addr != 0x1000 {
		t.Fatalf("snapshot %+v", snap)
	}

	d, err := snap.Diff(mem)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(d.Changes) != 0 || d.Resized {
		t.Fatalf("unchanged memory produced %+v", d)
	}
}

func TestDiffCoalescesRuns(t *testing.T) {
	mem := &fakeMem{base: 0x1000, data: make([]byte, 16)}
	snap, err := Capture(mem, 0x1000, 16)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	mem.data[3] = 0xAA
	mem.data[4] = 0xBB
	mem.data[5] = 0xCC
	mem.data[9] = 0x11

	d, err := snap.Diff(mem)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(d.Changes) != 2 {
		t.Fatalf("got %d changes, want 2: %+v", len(d.Changes), d.Changes)
	}

	c := d.Changes[0]
	if c.Offset != 3 || !bytes.Equal(c.Old, []byte{0, 0, 0}) || !bytes.Equal(c.New, []byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("first run wrong: %+v", c)
	}
	c = d.Changes[1]
	if c.Offset != 9 || !bytes.Equal(c.New, []byte{0x11}) {
		t.Fatalf("second run wrong: %+v", c)
	}
}

func TestDiffCopiesBytes(t *testing.T) {
	mem := &fakeMem{base: 0x1000, data: []byte{1, 2, 3, 4}}
	snap, err := Capture(mem, 0x1000, 4)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	mem.data[0] = 9
	d, err := snap.Diff(mem)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	// Later mutation of the target must not reach into a reported change.
	mem.data[0] = 7
	if d.Changes[0].New[0] != 9 {
		t.Fatal("change aliases live target memory")
	}
	if snap.Data[0] != 1 {
		t.Fatal("snapshot mutated after capture")
	}
}

func TestDiffResized(t *testing.T) {
	mem := &fakeMem{base: 0x1000, data: make([]byte, 16)}
	snap, err := Capture(mem, 0x1000, 16)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}

	mem.data = mem.data[:8] // tail of the range went away
	mem.data[2] = 0x55

	d, err := snap.Diff(mem)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if !d.Resized || d.NewSize != 8 {
		t.Fatalf("resize not reported: %+v", d)
	}
	if len(d.Changes) != 1 || d.Changes[0].Offset != 2 {
		t.Fatalf("prefix diff wrong: %+v", d.Changes)
	}
}

func TestCapturePartial(t *testing.T) {
	mem := &fakeMem{base: 0x1000, data: make([]byte, 10)}
	snap, err := Capture(mem, 0x1004, 32)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if snap.Size() != 6 {
		t.Fatalf("size %d, want the 6 available bytes", snap.Size())
	}
}

func TestCaptureErrors(t *testing.T) {
	mem := &fakeMem{base: 0x1000, data: make([]byte, 4)}

	if _, err := Capture(mem, 0x1000, 0); err == nil {
		t.Fatal("zero size should fail")
	}
	if _, err := Capture(mem, 0xdead, 4); !errors.Is(err, proc.ErrReadFailure) {
		t.Fatalf("unmapped capture: got %v", err)
	}
}
