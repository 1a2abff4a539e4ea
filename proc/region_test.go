package proc

import (
	"strings"
	"testing"
)

const sampleMaps = `00400000-00452000 r-xp 00000000 08:02 1234       /usr/bin/target
00651000-00652000 rw-p 00051000 08:02 1234       /usr/bin/target
00e03000-00e24000 rw-p 00000000 00:00 0          [heap]
7f8a10000000-7f8a10021000 rw-s 00000000 00:05 99 /dev/shm/ring
7f8a2c000000-7f8a2c200000 r--p 00000000 08:02 42 /usr/lib/libc.so.6
7ffc7a000000-7ffc7a021000 rw-p 00000000 00:00 0  [stack]
7ffc7a1f0000-7ffc7a1f4000 r--p 00000000 00:00 0  [vvar]
ffffffffff600000-ffffffffff601000 --xp 00000000 00:00 0 [vsyscall]
`

func TestParseRegions(t *testing.T) {
	regs, err := parseRegions(strings.NewReader(sampleMaps), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(regs) != 8 {
		t.Fatalf("got %d regions, want 8", len(regs))
	}

	r := regs[0]
	if r.Base != 0x400000 || r.Size != 0x52000 {
		t.Fatalf("first region bounds: %+v", r)
	}
	if r.Prot != ProtRead|ProtExec {
		t.Fatalf("first region prot %v", r.Prot)
	}
	if r.Kind != KindImage || r.Path != "/usr/bin/target" {
		t.Fatalf("first region kind/path: %+v", r)
	}

	heap := regs[2]
	if heap.Path != "[heap]" || heap.Kind != KindPrivate {
		t.Fatalf("heap region: %+v", heap)
	}

	shm := regs[3]
	if shm.Prot&ProtShared == 0 || shm.Kind != KindImage {
		t.Fatalf("shared mapping: %+v", shm)
	}
	if shm.End() != 0x7f8a10021000 {
		t.Fatalf("End() = %#x", shm.End())
	}

	libc := regs[4]
	if libc.Offset != 0 || libc.Path != "/usr/lib/libc.so.6" {
		t.Fatalf("libc region: %+v", libc)
	}
	if regs[1].Offset != 0x51000 {
		t.Fatalf("file offset not parsed: %+v", regs[1])
	}
}

func TestParseRegionsFilter(t *testing.T) {
	regs, err := parseRegions(strings.NewReader(sampleMaps), Executable)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("got %d executable regions, want 2", len(regs))
	}
	for _, r := range regs {
		if r.Prot&ProtExec == 0 {
			t.Fatalf("filter let through %+v", r)
		}
	}
}

func TestParseRegionsGarbage(t *testing.T) {
	regs, err := parseRegions(strings.NewReader("not a maps line\n\n"), nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(regs) != 0 {
		t.Fatalf("garbage produced regions: %+v", regs)
	}
}

func TestProtString(t *testing.T) {
	cases := map[Prot]string{
		ProtRead:                        "r--p",
		ProtRead | ProtWrite:            "rw-p",
		ProtRead | ProtExec:             "r-xp",
		ProtRead | ProtWrite | ProtExec: "rwxp",
		ProtRead | ProtShared:           "r--s",
		0:                               "---p",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("Prot(%b).String() = %q, want %q", p, got, want)
		}
	}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		prot, path string
		want       Kind
	}{
		{"r-xp", "/usr/bin/x", KindImage},
		{"rw-p", "", KindPrivate},
		{"rw-p", "[heap]", KindPrivate},
		{"rw-p", "[stack]", KindPrivate},
		{"rw-s", "", KindMapped},
		{"rw-p", "[vdso]", KindMapped},
	}
	for _, c := range cases {
		if got := classify(c.prot, c.path); got != c.want {
			t.Errorf("classify(%q, %q) = %v, want %v", c.prot, c.path, got, c.want)
		}
	}
}

func TestRegionContains(t *testing.T) {
	r := Region{Base: 0x1000, Size: 0x1000}
	for addr, want := range map[uint64]bool{
		0xfff:  false,
		0x1000: true,
		0x1fff: true,
		0x2000: false,
	} {
		if got := r.Contains(addr); got != want {
			t.Errorf("Contains(%#x) = %v, want %v", addr, got, want)
		}
	}
}
