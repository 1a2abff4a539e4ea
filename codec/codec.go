// Package codec converts between typed logical values and the raw
// little-endian byte patterns they occupy in target memory. The target
// architecture is fixed, so no byte-order knob is exposed.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

var (
	// ErrDecode means a byte slice could not be read back as the requested
	// kind: too short for the numeric width, or no terminator within
	// TerminatorCap for text.
	ErrDecode = errors.New("decode failed")

	ErrUnsupported = errors.New("unsupported kind")
)

// TerminatorCap bounds how far Decode looks for a text terminator.
const TerminatorCap = 256

type Kind uint8

const (
	Int8 Kind = iota
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Text
)

var kindNames = map[Kind]string{
	Int8: "int8", Int16: "int16", Int32: "int32", Int64: "int64",
	Uint8: "uint8", Uint16: "uint16", Uint32: "uint32", Uint64: "uint64",
	Float32: "float32", Float64: "float64", Text: "text",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind maps the CLI/tool-call spelling of a type to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if s == name {
			return k, nil
		}
	}
	switch s {
	case "float":
		return Float32, nil
	case "double":
		return Float64, nil
	case "string", "str":
		return Text, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupported, s)
}

// Size is the fixed byte width of a numeric kind; 0 for Text.
func (k Kind) Size() int {
	switch k {
	case Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	}
	return 0
}

func (k Kind) Numeric() bool { return k != Text }

func (k Kind) signed() bool {
	switch k {
	case Int8, Int16, Int32, Int64:
		return true
	}
	return false
}

type Encoding uint8

const (
	EncNone Encoding = iota
	EncASCII
	EncUTF8
	EncUTF16LE
)

func (e Encoding) String() string {
	switch e {
	case EncASCII:
		return "ascii"
	case EncUTF8:
		return "utf-8"
	case EncUTF16LE:
		return "utf-16le"
	}
	return "none"
}

// Value is the closed tagged variant passed through every codec and scan
// path. Exactly one of the payload fields is meaningful, picked by Kind.
type Value struct {
	Kind  Kind
	Int   int64
	Uint  uint64
	Float float64
	Text  string
	Enc   Encoding // encoding that produced or matched a Text value
}

func IntVal(k Kind, v int64) Value     { return Value{Kind: k, Int: v} }
func UintVal(k Kind, v uint64) Value   { return Value{Kind: k, Uint: v} }
func FloatVal(k Kind, v float64) Value { return Value{Kind: k, Float: v} }
func TextVal(s string) Value           { return Value{Kind: Text, Text: s} }

func (v Value) String() string {
	switch v.Kind {
	case Float32, Float64:
		return fmt.Sprintf("%g", v.Float)
	case Text:
		return fmt.Sprintf("%q(%s)", v.Text, v.Enc)
	default:
		if v.Kind.signed() {
			return fmt.Sprintf("%d", v.Int)
		}
		return fmt.Sprintf("%d", v.Uint)
	}
}

// Pattern is one candidate byte image of a value. Numerics have exactly
// one; text fans out per encoding because the scan cannot know which one
// the target uses, and results carry the encoding that matched.
type Pattern struct {
	Bytes []byte
	Enc   Encoding
}

func Encode(v Value) ([]Pattern, error) {
	if v.Kind == Text {
		return encodeText(v.Text)
	}

	b := make([]byte, v.Kind.Size())
	switch v.Kind {
	case Int8:
		b[0] = byte(v.Int)
	case Uint8:
		b[0] = byte(v.Uint)
	case Int16:
		binary.LittleEndian.PutUint16(b, uint16(v.Int))
	case Uint16:
		binary.LittleEndian.PutUint16(b, uint16(v.Uint))
	case Int32:
		binary.LittleEndian.PutUint32(b, uint32(v.Int))
	case Uint32:
		binary.LittleEndian.PutUint32(b, uint32(v.Uint))
	case Int64:
		binary.LittleEndian.PutUint64(b, uint64(v.Int))
	case Uint64:
		binary.LittleEndian.PutUint64(b, v.Uint)
	case Float32:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v.Float)))
	case Float64:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.Float))
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, v.Kind)
	}
	return []Pattern{{Bytes: b, Enc: EncNone}}, nil
}

func encodeText(s string) ([]Pattern, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty text", ErrUnsupported)
	}

	var out []Pattern

	ascii := true
	for _, r := range s {
		if r >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		out = append(out, Pattern{Bytes: []byte(s), Enc: EncASCII})
	} else {
		// Pure ASCII text encodes identically in UTF-8; only emit the
		// UTF-8 pattern when it actually differs.
		out = append(out, Pattern{Bytes: []byte(s), Enc: EncUTF8})
	}

	u := utf16.Encode([]rune(s))
	wide := make([]byte, len(u)*2)
	for i, c := range u {
		binary.LittleEndian.PutUint16(wide[i*2:], c)
	}
	out = append(out, Pattern{Bytes: wide, Enc: EncUTF16LE})

	return out, nil
}

// Decode reads one value of kind k from the front of b. Text decoding
// stops at the encoding's terminator and fails if none shows up within
// TerminatorCap bytes.
func Decode(b []byte, k Kind, enc Encoding) (Value, error) {
	if k == Text {
		return decodeText(b, enc)
	}

	if len(b) < k.Size() {
		return Value{}, fmt.Errorf("%v: need %d bytes, have %d: %w", k, k.Size(), len(b), ErrDecode)
	}

	v := Value{Kind: k}
	switch k {
	case Int8:
		v.Int = int64(int8(b[0]))
	case Uint8:
		v.Uint = uint64(b[0])
	case Int16:
		v.Int = int64(int16(binary.LittleEndian.Uint16(b)))
	case Uint16:
		v.Uint = uint64(binary.LittleEndian.Uint16(b))
	case Int32:
		v.Int = int64(int32(binary.LittleEndian.Uint32(b)))
	case Uint32:
		v.Uint = uint64(binary.LittleEndian.Uint32(b))
	case Int64:
		v.Int = int64(binary.LittleEndian.Uint64(b))
	case Uint64:
		v.Uint = binary.LittleEndian.Uint64(b)
	case Float32:
		v.Float = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float64:
		v.Float = math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return v, nil
}

func decodeText(b []byte, enc Encoding) (Value, error) {
	if len(b) > TerminatorCap {
		b = b[:TerminatorCap]
	}

	switch enc {
	case EncASCII, EncUTF8:
		end := bytes.IndexByte(b, 0)
		if end < 0 {
			return Value{}, fmt.Errorf("no terminator within %d bytes: %w", TerminatorCap, ErrDecode)
		}
		s := b[:end]
		if enc == EncUTF8 && !utf8.Valid(s) {
			return Value{}, fmt.Errorf("invalid utf-8: %w", ErrDecode)
		}
		return Value{Kind: Text, Text: string(s), Enc: enc}, nil

	case EncUTF16LE:
		var units []uint16
		for i := 0; i+1 < len(b); i += 2 {
			c := binary.LittleEndian.Uint16(b[i:])
			if c == 0 {
				return Value{Kind: Text, Text: string(utf16.Decode(units)), Enc: enc}, nil
			}
			units = append(units, c)
		}
		return Value{}, fmt.Errorf("no utf-16 terminator within %d bytes: %w", TerminatorCap, ErrDecode)
	}

	return Value{}, fmt.Errorf("%w: encoding %v", ErrUnsupported, enc)
}

// DecodeFixed interprets the whole slice as text in enc, no terminator
// required. Progressive scans use it to re-read a match of known length.
func DecodeFixed(b []byte, enc Encoding) (Value, error) {
	switch enc {
	case EncASCII, EncUTF8:
		if enc == EncUTF8 && !utf8.Valid(b) {
			return Value{}, fmt.Errorf("invalid utf-8: %w", ErrDecode)
		}
		return Value{Kind: Text, Text: string(b), Enc: enc}, nil
	case EncUTF16LE:
		if len(b)%2 != 0 {
			return Value{}, fmt.Errorf("odd utf-16 length %d: %w", len(b), ErrDecode)
		}
		units := make([]uint16, len(b)/2)
		for i := range units {
			units[i] = binary.LittleEndian.Uint16(b[i*2:])
		}
		return Value{Kind: Text, Text: string(utf16.Decode(units)), Enc: enc}, nil
	}
	return Value{}, fmt.Errorf("%w: encoding %v", ErrUnsupported, enc)
}

// Compare orders two numeric values of the same kind: -1, 0, or 1.
func Compare(a, b Value) (int, error) {
	if a.Kind != b.Kind {
		return 0, fmt.Errorf("%w: kind mismatch %v vs %v", ErrUnsupported, a.Kind, b.Kind)
	}
	switch {
	case a.Kind == Text:
		return 0, fmt.Errorf("%w: text is not ordered", ErrUnsupported)
	case a.Kind == Float32 || a.Kind == Float64:
		return cmp(a.Float, b.Float), nil
	case a.Kind.signed():
		return cmp(a.Int, b.Int), nil
	}
	return cmp(a.Uint, b.Uint), nil
}

// Equal reports value equality; Text compares the decoded string
// regardless of which encoding matched.
func Equal(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	if a.Kind == Text {
		return a.Text == b.Text
	}
	c, err := Compare(a, b)
	return err == nil && c == 0
}

func cmp[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
