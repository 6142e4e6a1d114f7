// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package usn

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"
)

func buildRecord(t *testing.T, name string, parentMFT uint64) []byte {
	t.Helper()
	nameU16 := utf16.Encode([]rune(name))
	nameBytes := make([]byte, len(nameU16)*2)
	for i, u := range nameU16 {
		binary.LittleEndian.PutUint16(nameBytes[i*2:], u)
	}

	size := headerSize + len(nameBytes)
	buf := make([]byte, size)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(size))
	binary.LittleEndian.PutUint16(buf[4:6], 2) // major
	binary.LittleEndian.PutUint16(buf[6:8], 0) // minor
	binary.LittleEndian.PutUint64(buf[8:16], 0x1234000000000005)
	binary.LittleEndian.PutUint64(buf[16:24], parentMFT)
	binary.LittleEndian.PutUint64(buf[24:32], 99)
	binary.LittleEndian.PutUint64(buf[32:40], 133000000000000000)
	binary.LittleEndian.PutUint32(buf[40:44], 0x2)
	binary.LittleEndian.PutUint32(buf[44:48], 0x1)
	binary.LittleEndian.PutUint32(buf[48:52], 0)
	binary.LittleEndian.PutUint32(buf[52:56], 0x20)
	binary.LittleEndian.PutUint16(buf[56:58], uint16(len(nameBytes)))
	binary.LittleEndian.PutUint16(buf[58:60], headerSize)
	copy(buf[headerSize:], nameBytes)
	return buf
}

func TestParseReportDoc(t *testing.T) {
	buf := buildRecord(t, "report.doc", 5)
	// The journal stores this record in 0x60 bytes: the 60-byte header,
	// the 20-byte name, then zero fill up to the stated size.
	buf = append(buf, make([]byte, 0x60-len(buf))...)
	binary.LittleEndian.PutUint32(buf[0:4], 0x60)
	rec, err := Parse(buf)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Size != 0x60 {
		t.Errorf("size = %#x, want 0x60", rec.Size)
	}
	if rec.Name != "report.doc" {
		t.Errorf("name = %q", rec.Name)
	}
	if rec.ParentFileReference.MFT() != 5 {
		t.Errorf("parent mft = %d, want 5", rec.ParentFileReference.MFT())
	}
}

func TestParseTruncatedName(t *testing.T) {
	buf := buildRecord(t, "hello.txt", 3)
	_, err := Parse(buf[:len(buf)-1])
	if err == nil {
		t.Fatal("expected error for truncated record")
	}
}

func TestParseBadMajorVersion(t *testing.T) {
	buf := buildRecord(t, "x", 1)
	binary.LittleEndian.PutUint16(buf[4:6], 3)
	_, err := Parse(buf)
	if err == nil {
		t.Fatal("expected error for unsupported major version")
	}
}
