// Package snapshot captures immutable byte baselines of a memory range
// and diffs them against the target's current contents.
package snapshot

import (
	"fmt"
	"time"

	"memprobe/proc"
)

// Reader is the one thing this package needs from a handle.
type Reader interface {
	Read(addr uint64, n int) ([]byte, error)
}

// Snapshot is a captured copy of target memory. Data is never mutated
// after capture; Size() is the size actually transferred, which may be
// less than requested when the range crossed an unmapped boundary.
type Snapshot struct {
	Addr  uint64
	Data  []byte
	Taken time.Time
}

func (s *Snapshot) Size() int { return len(s.Data) }

// Capture reads size bytes at addr once. A short read captures what came
// back; transferring nothing at all is the caller's error to see.
func Capture(tgt Reader, addr uint64, size int) (*Snapshot, error) {
	if size <= 0 {
		return nil, fmt.Errorf("capture 0x%x: size %d", addr, size)
	}
	data, err := tgt.Read(addr, size)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("capture 0x%x: %w", addr, proc.ErrReadFailure)
	}
	return &Snapshot{Addr: addr, Data: data, Taken: time.Now()}, nil
}

// Change is one maximal contiguous run of bytes that differ between the
// snapshot and the current contents.
type Change struct {
	Offset uint64
	Old    []byte
	New    []byte
}

// Diff re-reads the snapshot's range and reports the differing runs. If
// the re-read comes back a different length, only the common prefix is
// compared and Resized is set; that is data, not an error — the target
// mutates underneath us by design.
type Diff struct {
	Changes []Change
	Resized bool
	NewSize int
}

func (s *Snapshot) Diff(tgt Reader) (*Diff, error) {
	cur, err := tgt.Read(s.Addr, len(s.Data))
	if err != nil {
		return nil, err
	}

	d := &Diff{NewSize: len(cur), Resized: len(cur) != len(s.Data)}

	n := len(s.Data)
	if len(cur) < n {
		n = len(cur)
	}

	for i := 0; i < n; {
		if s.Data[i] == cur[i] {
			i++
			continue
		}
		j := i + 1
		for j < n && s.Data[j] != cur[j] {
			j++
		}
		d.Changes = append(d.Changes, Change{
			Offset: uint64(i),
			Old:    append([]byte(nil), s.Data[i:j]...),
			New:    append([]byte(nil), cur[i:j]...),
		})
		i = j
	}

	return d, nil
}
