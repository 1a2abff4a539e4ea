package scan

import "memprobe/codec"

// Predicate decides whether a previously found location survives a
// progressive rescan, given the value recorded last time and the value
// read now.
type Predicate func(prev, cur codec.Value) bool

func Equals(want codec.Value) Predicate {
	return func(_, cur codec.Value) bool { return codec.Equal(cur, want) }
}

func Changed() Predicate {
	return func(prev, cur codec.Value) bool { return !codec.Equal(prev, cur) }
}

func Unchanged() Predicate {
	return func(prev, cur codec.Value) bool { return codec.Equal(prev, cur) }
}

func Increased() Predicate {
	return func(prev, cur codec.Value) bool {
		c, err := codec.Compare(cur, prev)
		return err == nil && c > 0
	}
}

func Decreased() Predicate {
	return func(prev, cur codec.Value) bool {
		c, err := codec.Compare(cur, prev)
		return err == nil && c < 0
	}
}

func Between(min, max codec.Value) Predicate {
	return func(_, cur codec.Value) bool {
		lo, err := codec.Compare(cur, min)
		if err != nil {
			return false
		}
		hi, err := codec.Compare(cur, max)
		return err == nil && lo >= 0 && hi <= 0
	}
}
