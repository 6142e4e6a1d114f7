// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package mscompress

import (
	"bytes"
	"compress/flate"
	"testing"
)

// xcaStream hand-assembles an XPRESS block: a degenerate-but-valid
// Huffman table giving every one of the 512 symbols a 9-bit code (so the
// canonical code for a symbol is the symbol number itself), followed by
// the symbol bitstream packed MSB-first into little-endian 16-bit words.
func xcaStream(syms []int) []byte {
	table := bytes.Repeat([]byte{0x99}, 256)

	var bits []int
	for _, s := range syms {
		for i := 8; i >= 0; i-- {
			bits = append(bits, s>>i&1)
		}
	}
	for len(bits)%16 != 0 {
		bits = append(bits, 0)
	}
	out := table
	for i := 0; i < len(bits); i += 16 {
		var v uint16
		for j := range 16 {
			v = v<<1 | uint16(bits[i+j])
		}
		out = append(out, byte(v), byte(v>>8))
	}
	return out
}

func TestXpressLiterals(t *testing.T) {
	got, err := Decode(xcaStream([]int{'h', 'i', xcaEndMarker}))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hi" {
		t.Fatalf("got %q, want %q", got, "hi")
	}
}

func TestXpressMatch(t *testing.T) {
	// 'a', then a match of length 3+1 at distance 1, then end: "aaaaa"
	got, err := Decode(xcaStream([]int{'a', xcaEndMarker + 1, xcaEndMarker}))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "aaaaa" {
		t.Fatalf("got %q, want %q", got, "aaaaa")
	}
}

func TestXpressRejectsBogusMatch(t *testing.T) {
	// a match with no history must fail, not panic
	if _, err := Decode(xcaStream([]int{xcaEndMarker + 1, xcaEndMarker})); err == nil {
		t.Fatal("expected an error for a match before any output")
	}
}

func TestLZXUnsupported(t *testing.T) {
	if _, err := DecodeLZX([]byte{0, 1, 2, 3}, 16); err != ErrUnsupportedAlgorithm {
		t.Fatalf("DecodeLZX err = %v", err)
	}
}

func TestMSZIPRoundTrip(t *testing.T) {
	plain := []byte("microsoft cabinet blocks chain their dictionaries")
	var comp bytes.Buffer
	comp.WriteString("CK")
	fw, err := flate.NewWriter(&comp, 6)
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(plain)
	fw.Close()

	got, err := DecodeMSZIP(comp.Bytes(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("round trip mismatch: %q", got)
	}

	if _, err := DecodeMSZIP([]byte("XXjunk"), nil); err == nil {
		t.Fatal("accepted a block without the CK signature")
	}
}
