package scan

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Pattern is a masked byte pattern: Mask[i] == 0xFF means Bytes[i] must
// match, 0x00 means the position is a wildcard.
type Pattern struct {
	Bytes []byte
	Mask  []byte
}

func (p Pattern) Len() int { return len(p.Bytes) }

func (p Pattern) String() string {
	var sb strings.Builder
	for i, b := range p.Bytes {
		if i > 0 {
			sb.WriteByte(' ')
		}
		if p.Mask[i] == 0 {
			sb.WriteString("??")
		} else {
			fmt.Fprintf(&sb, "%02X", b)
		}
	}
	return sb.String()
}

// Exact wraps literal bytes as a fully masked pattern.
func Exact(b []byte) Pattern {
	return Pattern{Bytes: b, Mask: bytes.Repeat([]byte{0xFF}, len(b))}
}

// ParsePattern reads the usual AOB spelling: hex byte tokens with ?? (or
// ?) wildcards, e.g. "48 8B 05 ?? ?? ?? ??".
func ParsePattern(s string) (Pattern, error) {
	var p Pattern
	for _, tok := range strings.Fields(strings.ToUpper(s)) {
		if tok == "??" || tok == "?" {
			p.Bytes = append(p.Bytes, 0)
			p.Mask = append(p.Mask, 0)
			continue
		}
		v, err := strconv.ParseUint(tok, 16, 8)
		if err != nil {
			return Pattern{}, fmt.Errorf("bad pattern byte %q", tok)
		}
		p.Bytes = append(p.Bytes, byte(v))
		p.Mask = append(p.Mask, 0xFF)
	}
	if p.Len() == 0 {
		return Pattern{}, fmt.Errorf("empty pattern")
	}
	return p, nil
}

func (p Pattern) wild() bool {
	for _, m := range p.Mask {
		if m == 0 {
			return true
		}
	}
	return false
}

// MatchAt reports whether the pattern matches data at offset i. Every
// non-wildcard byte must be equal; wildcards absorb anything.
func (p Pattern) MatchAt(data []byte, i int) bool {
	if i < 0 || i+p.Len() > len(data) {
		return false
	}
	for j, m := range p.Mask {
		if m != 0 && data[i+j] != p.Bytes[j] {
			return false
		}
	}
	return true
}

// Find returns every offset in data where the pattern matches, in order,
// overlapping matches included.
func (p Pattern) Find(data []byte) []int {
	if p.Len() == 0 || len(data) < p.Len() {
		return nil
	}

	// Literal patterns ride bytes.Index instead of the byte-at-a-time
	// loop; wildcard patterns fall back to MatchAt.
	if !p.wild() {
		var out []int
		for off := 0; ; {
			i := bytes.Index(data[off:], p.Bytes)
			if i < 0 {
				return out
			}
			out = append(out, off+i)
			off += i + 1
			if off+p.Len() > len(data) {
				return out
			}
		}
	}

	var out []int
	for i := 0; i+p.Len() <= len(data); i++ {
		if p.MatchAt(data, i) {
			out = append(out, i)
		}
	}
	return out
}
