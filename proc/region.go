package proc

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type Prot uint8

const (
	ProtRead Prot = 1 << iota
	ProtWrite
	ProtExec
	ProtShared
)

func (p Prot) String() string {
	b := []byte("---p")
	if p&ProtRead != 0 {
		b[0] = 'r'
	}
	if p&ProtWrite != 0 {
		b[1] = 'w'
	}
	if p&ProtExec != 0 {
		b[2] = 'x'
	}
	if p&ProtShared != 0 {
		b[3] = 's'
	}
	return string(b)
}

type State uint8

const (
	StateFree State = iota
	StateReserved
	StateCommitted
)

func (s State) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateReserved:
		return "reserved"
	case StateCommitted:
		return "committed"
	}
	return "unknown"
}

type Kind uint8

const (
	KindPrivate Kind = iota
	KindMapped
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindPrivate:
		return "private"
	case KindMapped:
		return "mapped"
	case KindImage:
		return "image"
	}
	return "unknown"
}

// Region is one contiguous mapping of the target's address space, as the
// kernel reported it at enumeration time. The layout can change under us
// between calls, so regions are never cached across operations.
type Region struct {
	Base   uint64
	Size   uint64
	Prot   Prot
	State  State
	Kind   Kind
	Offset uint64
	Path   string
}

func (r Region) End() uint64 { return r.Base + r.Size }

func (r Region) Contains(addr uint64) bool {
	return addr >= r.Base && addr < r.End()
}

// Filter decides whether a region is handed to the caller. Filtering
// happens at the source so scans never touch no-access pages.
type Filter func(Region) bool

func Readable(r Region) bool   { return r.Prot&ProtRead != 0 }
func Writable(r Region) bool   { return r.Prot&ProtWrite != 0 }
func Executable(r Region) bool { return r.Prot&ProtExec != 0 }

var mapsLine = regexp.MustCompile(`^([0-9a-f]+)-([0-9a-f]+)\s+([rwxps-]+)\s+([0-9a-f]+)\s+([0-9a-f]+:[0-9a-f]+)\s+(\d+)(?:\s+(.*))?$`)

// Regions enumerates the target's current mappings, low address first,
// keeping only those keep accepts (nil keeps everything). The maps file is
// re-read on every call so the result reflects the layout right now, not
// the layout at attach time.
func (h *Handle) Regions(keep Filter) ([]Region, error) {
	if h.fd < 0 {
		return nil, ErrClosed
	}

	f, err := os.Open(fmt.Sprintf("/proc/%d/maps", h.pid))
	if err != nil {
		if !h.Alive() {
			return nil, fmt.Errorf("pid %d: %w", h.pid, ErrHandleStale)
		}
		return nil, openError(h.pid, err)
	}
	defer f.Close()

	return parseRegions(f, keep)
}

func parseRegions(r io.Reader, keep Filter) ([]Region, error) {
	var out []Region

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		match := mapsLine.FindStringSubmatch(scanner.Text())
		if len(match) < 7 {
			continue
		}
		start, _ := strconv.ParseUint(match[1], 16, 64)
		end, _ := strconv.ParseUint(match[2], 16, 64)
		offset, _ := strconv.ParseUint(match[4], 16, 64)
		path := ""
		if len(match) > 7 {
			path = strings.TrimSpace(match[7])
		}

		reg := Region{
			Base:   start,
			Size:   end - start,
			Prot:   parseProt(match[3]),
			State:  StateCommitted,
			Kind:   classify(match[3], path),
			Offset: offset,
			Path:   path,
		}
		if keep == nil || keep(reg) {
			out = append(out, reg)
		}
	}

	return out, scanner.Err()
}

func parseProt(s string) Prot {
	var p Prot
	if strings.ContainsRune(s, 'r') {
		p |= ProtRead
	}
	if strings.ContainsRune(s, 'w') {
		p |= ProtWrite
	}
	if strings.ContainsRune(s, 'x') {
		p |= ProtExec
	}
	if strings.ContainsRune(s, 's') {
		p |= ProtShared
	}
	return p
}

func classify(prot, path string) Kind {
	switch {
	case strings.HasPrefix(path, "/"):
		return KindImage
	case path == "" || path == "[heap]" || strings.HasPrefix(path, "[stack"):
		if strings.ContainsRune(prot, 's') {
			return KindMapped
		}
		return KindPrivate
	}
	return KindMapped
}

// Query returns the mapping containing addr, or nil when addr is outside
// every mapped region.
func (h *Handle) Query(addr uint64) (*Region, error) {
	regs, err := h.Regions(nil)
	if err != nil {
		return nil, err
	}
	for i := range regs {
		if regs[i].Contains(addr) {
			return &regs[i], nil
		}
	}
	return nil, nil
}

// Module is a file-backed image grouped over its mappings.
type Module struct {
	Path string
	Base uint64
	Size uint64
}

// Modules lists the loaded images of the target: every KindImage mapping
// collapsed per file, spanning from its lowest to its highest mapped byte.
func (h *Handle) Modules() ([]Module, error) {
	regs, err := h.Regions(func(r Region) bool { return r.Kind == KindImage })
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]*Module)
	for _, r := range regs {
		m, ok := byPath[r.Path]
		if !ok {
			byPath[r.Path] = &Module{Path: r.Path, Base: r.Base, Size: r.Size}
			continue
		}
		if r.Base < m.Base {
			m.Base = r.Base
		}
		if r.End() > m.Base+m.Size {
			m.Size = r.End() - m.Base
		}
	}

	out := make([]Module, 0, len(byPath))
	for _, m := range byPath {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Base < out[j].Base })
	return out, nil
}
