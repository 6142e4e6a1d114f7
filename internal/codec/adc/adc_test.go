// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package adc

import (
	"bytes"
	"testing"
)

func TestDecodeLiteral(t *testing.T) {
	// literal opcode: 0x80 | (4-1) = 0x83, then 4 literal bytes
	src := []byte{0x83, 'w', 'o', 'r', 'd'}
	got, err := Decode(src)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("word")) {
		t.Errorf("got %q", got)
	}
}

func TestDecodeSmallMatch(t *testing.T) {
	// literal "a", then a small match of size 3 copying the byte one back,
	// which overlaps its own output: "a" + "aaa" -> "aaaa".
	// small-match opcode: top 2 bits 00, size field = ((size-3)<<2)
	lit := []byte{0x80, 'a'} // literal opcode: 0x80 | (1-1) = 0x80, then "a"
	// small match: size=3 -> (size-3)=0 -> low6=0<<2=0, distance=0 -> opcode=0x00, distance byte=0x00
	match := []byte{0x00, 0x00}
	src := append(append([]byte{}, lit...), match...)
	got, err := Decode(src)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, []byte("aaaa")) {
		t.Errorf("got %q, want %q", got, "aaaa")
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{0x85, 'a', 'b'})
	if err == nil {
		t.Fatal("expected error for truncated literal")
	}
}
