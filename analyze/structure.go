package analyze

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"memprobe/scan"
)

// PointerHit is an aligned slot whose value lands inside a mapped region.
type PointerHit struct {
	Offset uint64
	Value  uint64
}

// Cluster marks a run of >= vtableRun consecutive pointer slots — likely
// a vtable or function-pointer array. Heuristic annotation, no guarantee.
type Cluster struct {
	Offset uint64
	Count  int
}

const vtableRun = 4

type PointerScan struct {
	Hits     []PointerHit
	Clusters []Cluster
}

// FindPointers reads size bytes at addr and reports every pointer-aligned
// slot holding a candidate pointer, cross-checked against the current
// region catalog. A short read just narrows the window.
func FindPointers(tgt scan.Target, addr uint64, size int) (*PointerScan, error) {
	regions, err := tgt.Regions(nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Base < regions[j].Base })
	mapped := func(v uint64) bool {
		i := sort.Search(len(regions), func(i int) bool { return regions[i].End() > v })
		return i < len(regions) && regions[i].Contains(v)
	}

	data, err := tgt.Read(addr, size)
	if err != nil {
		return nil, err
	}

	ps := &PointerScan{}
	run := 0
	for off := 0; off+pointerSize <= len(data); off += pointerSize {
		v := binary.LittleEndian.Uint64(data[off:])
		if v != 0 && mapped(v) {
			ps.Hits = append(ps.Hits, PointerHit{Offset: uint64(off), Value: v})
			run++
			continue
		}
		if run >= vtableRun {
			ps.Clusters = append(ps.Clusters, Cluster{
				Offset: uint64(off - run*pointerSize),
				Count:  run,
			})
		}
		run = 0
	}
	if run >= vtableRun {
		ps.Clusters = append(ps.Clusters, Cluster{
			Offset: uint64(len(data)/pointerSize*pointerSize - run*pointerSize),
			Count:  run,
		})
	}

	return ps, nil
}

// Field is one inferred slot of a structure, with a confidence in [0,1].
type Field struct {
	Offset     uint64
	Size       int
	Type       string
	Value      string
	Confidence float64
}

type StructInfo struct {
	Base   uint64
	Size   int
	Fields []Field
}

// InspectStruct guesses a field layout for size bytes at addr: pointers
// first (validated against the live catalog), then integers, floats and
// inline strings, falling back to raw bytes. The output is a reading aid,
// not a type recovery.
func InspectStruct(tgt scan.Target, addr uint64, size int) (*StructInfo, error) {
	regions, err := tgt.Regions(nil)
	if err != nil {
		return nil, err
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].Base < regions[j].Base })
	mapped := func(v uint64) bool {
		i := sort.Search(len(regions), func(i int) bool { return regions[i].End() > v })
		return i < len(regions) && regions[i].Contains(v)
	}

	data, err := tgt.Read(addr, size)
	if err != nil {
		return nil, err
	}

	info := &StructInfo{Base: addr, Size: len(data)}
	for off := 0; off < len(data); {
		f := inferField(data, off, mapped)
		info.Fields = append(info.Fields, f)
		off += f.Size
	}
	return info, nil
}

func inferField(data []byte, off int, mapped func(uint64) bool) Field {
	rem := len(data) - off

	if rem >= 8 && off%8 == 0 {
		v := binary.LittleEndian.Uint64(data[off:])
		switch {
		case v == 0:
			return Field{Offset: uint64(off), Size: 8, Type: "ptr64", Value: "null", Confidence: 0.5}
		case mapped(v):
			return Field{Offset: uint64(off), Size: 8, Type: "ptr64", Value: fmt.Sprintf("0x%x", v), Confidence: 0.9}
		}
	}

	if s, n := asciiRun(data[off:], 3); n > 0 {
		return Field{Offset: uint64(off), Size: n, Type: "string", Value: s, Confidence: 0.6}
	}

	if rem >= 4 {
		if f := math.Float32frombits(binary.LittleEndian.Uint32(data[off:])); !math.IsNaN(float64(f)) &&
			f != 0 && math.Abs(float64(f)) >= 1e-4 && math.Abs(float64(f)) < 1e6 {
			return Field{Offset: uint64(off), Size: 4, Type: "float32", Value: fmt.Sprintf("%g", f), Confidence: 0.5}
		}
		v := int32(binary.LittleEndian.Uint32(data[off:]))
		conf := 0.3
		if v >= 0 && v <= 1000 {
			conf = 0.6
		}
		return Field{Offset: uint64(off), Size: 4, Type: "int32", Value: fmt.Sprintf("%d", v), Confidence: conf}
	}

	if rem >= 2 {
		v := binary.LittleEndian.Uint16(data[off:])
		return Field{Offset: uint64(off), Size: 2, Type: "uint16", Value: fmt.Sprintf("%d", v), Confidence: 0.3}
	}

	return Field{Offset: uint64(off), Size: 1, Type: "uint8", Value: fmt.Sprintf("%d", data[off]), Confidence: 0.1}
}

// asciiRun returns the printable run at the front of b if it is at least
// min bytes long and NUL-terminated within the slice.
func asciiRun(b []byte, min int) (string, int) {
	i := 0
	for i < len(b) && b[i] >= 0x20 && b[i] <= 0x7e {
		i++
	}
	if i >= min && i < len(b) && b[i] == 0 {
		return string(b[:i]), i + 1
	}
	return "", 0
}
