// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package lzfse

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestDecodeUncompressedBlock(t *testing.T) {
	payload := []byte("hello, lzfse")
	var buf bytes.Buffer
	writeMagic(&buf, magicUncompressed)
	var sz [4]byte
	binary.LittleEndian.PutUint32(sz[:], uint32(len(payload)))
	buf.Write(sz[:])
	buf.Write(payload)
	writeMagic(&buf, magicEnd)

	got, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %q, want %q", got, payload)
	}
}

func TestDecodeEmptyStreamEndsImmediately(t *testing.T) {
	var buf bytes.Buffer
	writeMagic(&buf, magicEnd)
	got, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("got %d bytes, want 0", len(got))
	}
}

func TestDecodeUnknownMagicErrors(t *testing.T) {
	var buf bytes.Buffer
	writeMagic(&buf, 0x12345678)
	_, err := Decode(buf.Bytes())
	if err == nil {
		t.Fatal("expected error for unrecognized block magic")
	}
}

func writeMagic(buf *bytes.Buffer, magic uint32) {
	var m [4]byte
	binary.LittleEndian.PutUint32(m[:], magic)
	buf.Write(m[:])
}
