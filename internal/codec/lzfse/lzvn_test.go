// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package lzfse

import (
	"bytes"
	"testing"
)

func TestDecodeLZVNLiteralSmall(t *testing.T) {
	// literal-small opcode 0xe4: 4 literal bytes, then end-of-stream.
	src := []byte{0xe4, 'g', 'o', 'p', 'h', 0x06}
	got, err := DecodeLZVN(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("goph")) {
		t.Errorf("got %q", got)
	}
}

func TestDecodeLZVNMatchSmall(t *testing.T) {
	// literal "ab" (small literal 0xe2), then a small-distance match copying
	// "aba" (overlapping its own output): opcode byte encodes literal_size=0, match_size=3+0=3,
	// distance low 3 bits=0, plus a distance byte of 2.
	lit := []byte{0xe2, 'a', 'b'}
	match := []byte{0x00, 0x02} // distance small: literal=0, match=3, distance=2
	src := append(append([]byte{}, lit...), match...)
	src = append(src, 0x06) // end of stream
	got, err := DecodeLZVN(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("ababa")) {
		t.Errorf("got %q, want %q", got, "ababa")
	}
}

func TestDecodeLZVNInvalidOpcode(t *testing.T) {
	_, err := DecodeLZVN([]byte{0x70}, nil)
	if err == nil {
		t.Fatal("expected error for invalid opcode")
	}
}
