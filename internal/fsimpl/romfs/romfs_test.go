// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package romfs

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

// putEntry writes one romfs file header (next/spec/size/checksum, name,
// data) at off and returns the offset immediately after it, 16-byte
// aligned, ready for the next entry. last marks the final entry in a
// directory's chain, whose next field terminates at 0 rather than
// pointing past the chain.
func putEntry(buf []byte, off int, nextType uint32, spec uint32, name string, data []byte, last bool) int {
	nameBytes := append([]byte(name), 0)
	for len(nameBytes)%16 != 0 {
		nameBytes = append(nameBytes, 0)
	}
	dataLen := align16(int64(len(data)))
	entryLen := headerSize + len(nameBytes) + int(dataLen)
	binary.BigEndian.PutUint32(buf[off+4:off+8], spec)
	binary.BigEndian.PutUint32(buf[off+8:off+12], uint32(len(data)))
	copy(buf[off+headerSize:], nameBytes)
	copy(buf[off+headerSize+len(nameBytes):], data)
	next := off + entryLen
	if last {
		next = 0
	}
	binary.BigEndian.PutUint32(buf[off:off+4], uint32(next)|nextType)
	return off + entryLen
}

func buildTestImage() ([]byte, []byte) {
	buf := make([]byte, 4096)
	copy(buf, magic)
	binary.BigEndian.PutUint32(buf[8:12], 0) // full size, unused by reader
	copy(buf[16:], "TESTVOL")                // volume name occupies one 16-byte slot, NUL-padded

	rootHdrOff := 32
	fileData := []byte("hello from romfs")
	// root directory header occupies 16 (fixed) + 16 (its own "." name slot).
	childOff := rootHdrOff + 16 + 16
	putEntry(buf, rootHdrOff, typeDir, uint32(childOff), ".", nil, true)
	putEntry(buf, childOff, typeReg, 0, "hello.txt", fileData, true)
	return buf, fileData
}

type memDisk struct{ data []byte }

func (d *memDisk) Name() string                  { return "mem" }
func (d *memDisk) Sectors() int64                { return int64(len(d.data)) >> 9 }
func (d *memDisk) Log2SectorSize() uint          { return 9 }
func (d *memDisk) Partition() *blockio.Partition { return nil }
func (d *memDisk) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func TestProbeDetectsMagic(t *testing.T) {
	data, _ := buildTestImage()
	d := &memDisk{data: data}
	if err := probe(d); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestReadFileUnderRoot(t *testing.T) {
	data, want := buildTestImage()
	d := &memDisk{data: data}
	f := format()

	rootPriv, err := f.OpenRoot(d)
	if err != nil {
		t.Fatalf("openroot: %v", err)
	}
	var entries []fsreg.DirEntryInfo
	for e, err := range f.IterateDir(d, rootPriv) {
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		entries = append(entries, e)
	}
	if len(entries) != 1 || entries[0].Name != "hello.txt" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	childPriv, err := f.OpenChild(d, rootPriv, entries[0])
	if err != nil {
		t.Fatalf("openchild: %v", err)
	}
	got := make([]byte, len(want))
	n, err := f.Read(nil, childPriv, got, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != len(want) || string(got) != string(want) {
		t.Fatalf("got %q want %q", got[:n], want)
	}
}
