package analyze

import (
	"sort"
	"unicode/utf16"

	"memprobe/codec"
)

// StringHit is a printable run found in a buffer.
type StringHit struct {
	Addr uint64
	Enc  codec.Encoding
	Text string
}

// FindStrings reports ASCII and UTF-16LE runs of at least minLen
// characters in buf, addressed relative to base, ordered by address.
func FindStrings(buf []byte, base uint64, minLen int) []StringHit {
	if minLen < 1 {
		minLen = 4
	}

	var out []StringHit

	for i := 0; i < len(buf); {
		j := i
		for j < len(buf) && printable(buf[j]) {
			j++
		}
		if j-i >= minLen {
			out = append(out, StringHit{Addr: base + uint64(i), Enc: codec.EncASCII, Text: string(buf[i:j])})
		}
		if j == i {
			j++
		}
		i = j
	}

	for i := 0; i+1 < len(buf); {
		j := i
		var units []uint16
		for j+1 < len(buf) && printable(buf[j]) && buf[j+1] == 0 {
			units = append(units, uint16(buf[j]))
			j += 2
		}
		if len(units) >= minLen {
			out = append(out, StringHit{Addr: base + uint64(i), Enc: codec.EncUTF16LE, Text: string(utf16.Decode(units))})
		}
		if j == i {
			j += 2
		}
		i = j
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Addr < out[j].Addr })
	return out
}

func printable(b byte) bool { return b >= 0x20 && b <= 0x7e }
