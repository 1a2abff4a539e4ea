package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []Value{
		IntVal(Int8, -5),
		IntVal(Int8, 127),
		IntVal(Int16, -30000),
		IntVal(Int32, 1000),
		IntVal(Int32, -1),
		IntVal(Int64, -1234567890123),
		UintVal(Uint8, 0xff),
		UintVal(Uint16, 0xbeef),
		UintVal(Uint32, 0xdeadbeef),
		UintVal(Uint64, 0xdeadbeefcafebabe),
		FloatVal(Float32, 1.5),
		FloatVal(Float32, -0.25),
		FloatVal(Float64, 3.14159265358979),
	}
	for _, v := range cases {
		t.Run(v.Kind.String()+"/"+v.String(), func(t *testing.T) {
			pats, err := Encode(v)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(pats) != 1 {
				t.Fatalf("numeric value produced %d patterns", len(pats))
			}
			if len(pats[0].Bytes) != v.Kind.Size() {
				t.Fatalf("pattern length %d, want %d", len(pats[0].Bytes), v.Kind.Size())
			}
			got, err := Decode(pats[0].Bytes, v.Kind, EncNone)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !Equal(got, v) {
				t.Fatalf("round trip got %v want %v", got, v)
			}
		})
	}
}

func TestEncodeTextPatterns(t *testing.T) {
	t.Run("ascii", func(t *testing.T) {
		pats, err := Encode(TextVal("Hi"))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if len(pats) != 2 {
			t.Fatalf("got %d patterns, want ascii + utf-16le", len(pats))
		}
		if pats[0].Enc != EncASCII || !bytes.Equal(pats[0].Bytes, []byte("Hi")) {
			t.Fatalf("ascii pattern wrong: %v % x", pats[0].Enc, pats[0].Bytes)
		}
		if pats[1].Enc != EncUTF16LE || !bytes.Equal(pats[1].Bytes, []byte{'H', 0, 'i', 0}) {
			t.Fatalf("utf-16le pattern wrong: %v % x", pats[1].Enc, pats[1].Bytes)
		}
	})

	t.Run("non-ascii", func(t *testing.T) {
		pats, err := Encode(TextVal("héllo"))
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		if len(pats) != 2 {
			t.Fatalf("got %d patterns", len(pats))
		}
		if pats[0].Enc != EncUTF8 {
			t.Fatalf("first pattern enc %v, want utf-8", pats[0].Enc)
		}
		if pats[1].Enc != EncUTF16LE {
			t.Fatalf("second pattern enc %v, want utf-16le", pats[1].Enc)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := Encode(TextVal("")); err == nil {
			t.Fatal("expected error for empty text")
		}
	})
}

func TestDecodeText(t *testing.T) {
	t.Run("terminated ascii", func(t *testing.T) {
		v, err := Decode([]byte("abc\x00junk"), Text, EncASCII)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if v.Text != "abc" {
			t.Fatalf("got %q", v.Text)
		}
	})

	t.Run("terminated utf-16le", func(t *testing.T) {
		v, err := Decode([]byte{'a', 0, 'b', 0, 0, 0, 'x', 'x'}, Text, EncUTF16LE)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if v.Text != "ab" {
			t.Fatalf("got %q", v.Text)
		}
	})

	t.Run("no terminator within cap", func(t *testing.T) {
		buf := bytes.Repeat([]byte{'A'}, TerminatorCap+64)
		if _, err := Decode(buf, Text, EncASCII); !errors.Is(err, ErrDecode) {
			t.Fatalf("got %v, want ErrDecode", err)
		}
	})

	t.Run("terminator just past cap", func(t *testing.T) {
		buf := append(bytes.Repeat([]byte{'A'}, TerminatorCap), 0)
		if _, err := Decode(buf, Text, EncASCII); !errors.Is(err, ErrDecode) {
			t.Fatalf("got %v, want ErrDecode", err)
		}
	})
}

func TestDecodeShort(t *testing.T) {
	cases := []struct {
		kind Kind
		n    int
	}{
		{Int32, 3},
		{Int64, 7},
		{Float64, 4},
		{Uint16, 1},
	}
	for _, c := range cases {
		t.Run(c.kind.String(), func(t *testing.T) {
			_, err := Decode(make([]byte, c.n), c.kind, EncNone)
			if !errors.Is(err, ErrDecode) {
				t.Fatalf("got %v, want ErrDecode", err)
			}
		})
	}
}

func TestDecodeFixed(t *testing.T) {
	v, err := DecodeFixed([]byte{'h', 0, 'i', 0}, EncUTF16LE)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Text != "hi" {
		t.Fatalf("got %q", v.Text)
	}
	if _, err := DecodeFixed([]byte{'h', 0, 'i'}, EncUTF16LE); !errors.Is(err, ErrDecode) {
		t.Fatalf("odd length: got %v, want ErrDecode", err)
	}
}

func TestCompare(t *testing.T) {
	cases := []struct {
		a, b Value
		want int
	}{
		{IntVal(Int32, -5), IntVal(Int32, 3), -1},
		{IntVal(Int32, 3), IntVal(Int32, 3), 0},
		{UintVal(Uint64, 10), UintVal(Uint64, 2), 1},
		{FloatVal(Float32, 0.5), FloatVal(Float32, 1.5), -1},
	}
	for _, c := range cases {
		got, err := Compare(c.a, c.b)
		if err != nil {
			t.Fatalf("compare(%v, %v): %v", c.a, c.b, err)
		}
		if got != c.want {
			t.Fatalf("compare(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}

	if _, err := Compare(TextVal("a"), TextVal("b")); err == nil {
		t.Fatal("text comparison should fail")
	}
	if _, err := Compare(IntVal(Int32, 1), IntVal(Int64, 1)); err == nil {
		t.Fatal("kind mismatch should fail")
	}
}

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"int32":   Int32,
		"uint8":   Uint8,
		"float":   Float32,
		"double":  Float64,
		"float64": Float64,
		"string":  Text,
		"text":    Text,
	}
	for s, want := range cases {
		got, err := ParseKind(s)
		if err != nil {
			t.Fatalf("ParseKind(%q): %v", s, err)
		}
		if got != want {
			t.Fatalf("ParseKind(%q) = %v, want %v", s, got, want)
		}
	}
	if _, err := ParseKind("word"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
