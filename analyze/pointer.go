// Package analyze resolves pointer chains and pokes at memory looking for
// structure: pointer-dense slots, probable fields, strings, function
// prologues.
package analyze

import (
	"encoding/binary"
	"fmt"
)

const pointerSize = 8 // fixed 64-bit little-endian target

// Reader is the minimal read capability a resolution needs.
type Reader interface {
	Read(addr uint64, n int) ([]byte, error)
}

// ChainError reports where a pointer chain died. Step 0 is the initial
// dereference of the base address; step i is the dereference after adding
// offsets[i-1].
type ChainError struct {
	Step int
	Addr uint64
	Err  error
}

func (e *ChainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pointer chain: step %d at 0x%x: %v", e.Step, e.Addr, e.Err)
	}
	return fmt.Sprintf("pointer chain: step %d at 0x%x: null pointer", e.Step, e.Addr)
}

func (e *ChainError) Unwrap() error { return e.Err }

// ResolveChain walks base -> offsets to a final data address. The pointer
// at base is read first; each offset but the last is added to the current
// pointer and dereferenced; the final offset is added and NOT
// dereferenced — it names the data, not another pointer. A null or
// unreadable intermediate fails the whole chain with the failing step; no
// guessing. Deterministic for a fixed memory state.
func ResolveChain(tgt Reader, base uint64, offsets []uint64) (uint64, error) {
	cur, err := readPointer(tgt, base)
	if err != nil {
		return 0, &ChainError{Step: 0, Addr: base, Err: err}
	}
	if cur == 0 {
		return 0, &ChainError{Step: 0, Addr: base}
	}

	for i, off := range offsets {
		if i == len(offsets)-1 {
			return cur + off, nil
		}
		next, err := readPointer(tgt, cur+off)
		if err != nil {
			return 0, &ChainError{Step: i + 1, Addr: cur + off, Err: err}
		}
		if next == 0 {
			return 0, &ChainError{Step: i + 1, Addr: cur + off}
		}
		cur = next
	}

	return cur, nil
}

func readPointer(tgt Reader, addr uint64) (uint64, error) {
	b, err := tgt.Read(addr, pointerSize)
	if err != nil {
		return 0, err
	}
	if len(b) < pointerSize {
		return 0, fmt.Errorf("short read at 0x%x", addr)
	}
	return binary.LittleEndian.Uint64(b), nil
}
