// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package lz4x

import (
	"bytes"
	"strings"
	"testing"

	"github.com/pierrec/lz4/v4"
)

func compressBlock(t *testing.T, plain []byte) []byte {
	t.Helper()
	out := make([]byte, lz4.CompressBlockBound(len(plain)))
	n, err := lz4.CompressBlock(plain, out, make([]int, 64<<10))
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if n == 0 {
		t.Skip("lz4.CompressBlock declined to compress the test payload")
	}
	return out[:n]
}

func TestDecodePartialWholeBlock(t *testing.T) {
	plain := []byte(strings.Repeat("the quick brown fox jumps over the lazy dog ", 200))
	comp := compressBlock(t, plain)

	dst := make([]byte, len(plain))
	n, err := DecodePartial(comp, dst)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(plain) || !bytes.Equal(dst, plain) {
		t.Fatalf("round trip mismatch: n=%d want %d", n, len(plain))
	}
}

func TestDecodePartialStopsAtTarget(t *testing.T) {
	plain := []byte(strings.Repeat("abcdefgh", 1000))
	comp := compressBlock(t, plain)

	for _, want := range []int{1, 7, 100, len(plain) - 1} {
		dst := make([]byte, want)
		n, err := DecodePartial(comp, dst)
		if err != nil {
			t.Fatalf("decode prefix %d: %v", want, err)
		}
		if n != want || !bytes.Equal(dst, plain[:want]) {
			t.Fatalf("prefix %d mismatch: n=%d", want, n)
		}
	}
}

func TestDecodePartialToleratesTrailingGarbage(t *testing.T) {
	plain := []byte(strings.Repeat("squeamish ossifrage ", 400))
	comp := compressBlock(t, plain)
	padded := append(append([]byte{}, comp...), make([]byte, 37)...)

	dst := make([]byte, len(plain))
	n, err := DecodePartial(padded, dst)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if n != len(plain) || !bytes.Equal(dst, plain) {
		t.Fatalf("padded round trip mismatch: n=%d", n)
	}
}

func TestDecodePartialRejectsBadOffset(t *testing.T) {
	// literal "a", then a match at offset 9 with only 1 byte of history
	bad := []byte{0x11, 'a', 0x09, 0x00}
	dst := make([]byte, 16)
	if _, err := DecodePartial(bad, dst); err == nil {
		t.Fatal("expected corrupt-block error")
	}
}
