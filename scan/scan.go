// Package scan walks the filtered region catalog of a target looking for
// typed values, value ranges, and masked byte patterns, and narrows prior
// result sets with progressive rescans.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"memprobe/codec"
	"memprobe/proc"
)

var (
	ErrNoPriorScan  = errors.New("no prior scan to narrow")
	ErrKindMismatch = errors.New("value kind does not match session")
)

// Target is what the engine needs from a process handle. proc.Handle
// satisfies it; tests plug in an in-memory fake.
type Target interface {
	Read(addr uint64, n int) ([]byte, error)
	Regions(keep proc.Filter) ([]proc.Region, error)
}

// Options bound a scan. The zero value means: readable regions, 1 MiB
// chunks, at most 10000 results.
type Options struct {
	MaxResults int
	ChunkSize  int
	Filter     proc.Filter
}

const (
	defaultMaxResults = 10000
	defaultChunkSize  = 1 << 20
)

func (o Options) withDefaults() Options {
	if o.MaxResults <= 0 {
		o.MaxResults = defaultMaxResults
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = defaultChunkSize
	}
	if o.Filter == nil {
		o.Filter = proc.Readable
	}
	return o
}

// Match is one found location. Immutable; ordered by ascending address
// within a result set.
type Match struct {
	Addr  uint64
	Value codec.Value
	Size  int
}

// Results carries the matches plus whether the result cap cut the scan
// short. A capped scan is reported, never silently truncated.
type Results struct {
	Matches []Match
	Capped  bool
}

func (r *Results) Addrs() []uint64 {
	out := make([]uint64, len(r.Matches))
	for i, m := range r.Matches {
		out[i] = m.Addr
	}
	return out
}

// Session is one progressive scan: Idle until First or Range succeeds,
// then holding results that Next narrows. Sessions are single-caller;
// concurrent scans of the same target each get their own session.
type Session struct {
	tgt  Target
	kind codec.Kind
	opt  Options
	res  *Results
}

func NewSession(tgt Target, kind codec.Kind, opt Options) *Session {
	return &Session{tgt: tgt, kind: kind, opt: opt.withDefaults()}
}

func (s *Session) Kind() codec.Kind  { return s.kind }
func (s *Session) Results() *Results { return s.res }

// First scans every filtered region for v and replaces any prior result
// set. Text values are searched in every candidate encoding at once;
// matches record which encoding hit. Overlapping matches are all
// reported.
func (s *Session) First(ctx context.Context, v codec.Value) (*Results, error) {
	if v.Kind != s.kind {
		return nil, fmt.Errorf("%w: session %v, value %v", ErrKindMismatch, s.kind, v.Kind)
	}
	patterns, err := codec.Encode(v)
	if err != nil {
		return nil, err
	}

	maxLen := 0
	for _, p := range patterns {
		if len(p.Bytes) > maxLen {
			maxLen = len(p.Bytes)
		}
	}
	overlap := maxLen - 1

	res := &Results{}
	err = walkRegions(ctx, s.tgt, s.opt, overlap, func(base uint64, first bool, data []byte) bool {
		type hit struct {
			off int
			pi  int
		}
		var hits []hit
		for pi, p := range patterns {
			// A match wholly inside the chunk overlap was already
			// reported from the previous chunk.
			minOff := 0
			if !first {
				minOff = overlap - len(p.Bytes) + 1
			}
			for _, off := range Exact(p.Bytes).Find(data) {
				if off >= minOff {
					hits = append(hits, hit{off, pi})
				}
			}
		}
		sort.Slice(hits, func(i, j int) bool {
			if hits[i].off != hits[j].off {
				return hits[i].off < hits[j].off
			}
			return hits[i].pi < hits[j].pi
		})

		for _, h := range hits {
			if len(res.Matches) >= s.opt.MaxResults {
				res.Capped = true
				return false
			}
			p := patterns[h.pi]
			val := v
			val.Enc = p.Enc
			res.Matches = append(res.Matches, Match{
				Addr:  base + uint64(h.off),
				Value: val,
				Size:  len(p.Bytes),
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	s.res = res
	return res, nil
}

// Range is a first scan keeping locations where min <= value <= max.
// Numeric kinds only.
func (s *Session) Range(ctx context.Context, min, max codec.Value) (*Results, error) {
	if !s.kind.Numeric() {
		return nil, fmt.Errorf("%w: range scan needs a numeric kind", ErrKindMismatch)
	}
	if min.Kind != s.kind || max.Kind != s.kind {
		return nil, fmt.Errorf("%w: session %v, bounds %v/%v", ErrKindMismatch, s.kind, min.Kind, max.Kind)
	}

	width := s.kind.Size()
	res := &Results{}
	err := walkRegions(ctx, s.tgt, s.opt, width-1, func(base uint64, first bool, data []byte) bool {
		for off := 0; off+width <= len(data); off++ {
			v, err := codec.Decode(data[off:], s.kind, codec.EncNone)
			if err != nil {
				continue
			}
			lo, _ := codec.Compare(v, min)
			hi, _ := codec.Compare(v, max)
			if lo < 0 || hi > 0 {
				continue
			}
			if len(res.Matches) >= s.opt.MaxResults {
				res.Capped = true
				return false
			}
			res.Matches = append(res.Matches, Match{Addr: base + uint64(off), Value: v, Size: width})
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	s.res = res
	return res, nil
}

// Next re-reads only the previously found addresses and keeps those whose
// current value satisfies pred. Addresses that became unreadable are
// dropped; the result is always a subset of the prior address set.
func (s *Session) Next(ctx context.Context, pred Predicate) (*Results, error) {
	if s.res == nil {
		return nil, ErrNoPriorScan
	}

	res := &Results{}
	for i, m := range s.res.Matches {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		data, err := s.tgt.Read(m.Addr, m.Size)
		if err != nil || len(data) < m.Size {
			continue
		}

		var cur codec.Value
		if s.kind == codec.Text {
			cur, err = codec.DecodeFixed(data[:m.Size], m.Value.Enc)
		} else {
			cur, err = codec.Decode(data, s.kind, codec.EncNone)
		}
		if err != nil {
			continue
		}

		if pred(m.Value, cur) {
			res.Matches = append(res.Matches, Match{Addr: m.Addr, Value: cur, Size: m.Size})
		}
	}

	s.res = res
	return res, nil
}

// FindPattern scans the filtered regions for a masked wildcard pattern.
// Chunks overlap by len(pattern)-1 so matches straddling a chunk edge are
// still seen. Returns the hit addresses and whether the cap was reached.
func FindPattern(ctx context.Context, tgt Target, pat Pattern, opt Options) ([]uint64, bool, error) {
	if pat.Len() == 0 {
		return nil, false, fmt.Errorf("empty pattern")
	}
	opt = opt.withDefaults()

	var addrs []uint64
	capped := false
	err := walkRegions(ctx, tgt, opt, pat.Len()-1, func(base uint64, first bool, data []byte) bool {
		for _, off := range pat.Find(data) {
			if len(addrs) >= opt.MaxResults {
				capped = true
				return false
			}
			addrs = append(addrs, base+uint64(off))
		}
		return true
	})
	if err != nil {
		return nil, false, err
	}
	return addrs, capped, nil
}

// walkRegions feeds every filtered region to fn in overlapping chunks.
// Regions that fail to read mid-scan are skipped, not fatal; fn returning
// false stops the whole walk (cap reached). Cancellation is honored
// between regions so latency is bounded by one region's read.
func walkRegions(ctx context.Context, tgt Target, opt Options, overlap int, fn func(base uint64, first bool, data []byte) bool) error {
	regions, err := tgt.Regions(opt.Filter)
	if err != nil {
		return err
	}

	chunk := opt.ChunkSize
	if chunk <= overlap {
		chunk = overlap + opt.ChunkSize
	}
	step := uint64(chunk - overlap)

	for _, reg := range regions {
		if err := ctx.Err(); err != nil {
			return err
		}

		for off := uint64(0); off < reg.Size; off += step {
			n := chunk
			if rem := reg.Size - off; uint64(n) > rem {
				n = int(rem)
			}

			data, err := tgt.Read(reg.Base+off, n)
			if err != nil || len(data) == 0 {
				break // region went away or lost permissions; skip it
			}
			if !fn(reg.Base+off, off == 0, data) {
				return nil
			}
			if len(data) < n {
				break // unmapped tail
			}
		}
	}

	return nil
}
