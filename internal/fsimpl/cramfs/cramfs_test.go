// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package cramfs

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"testing"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

func zlibCompress(t *testing.T, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func putInode(b []byte, mode uint16, size uint32, offset uint32, namelenWords uint8) {
	word1 := uint32(mode) | uint32(namelenWords)<<24
	binary.LittleEndian.PutUint32(b[0:4], word1)
	binary.LittleEndian.PutUint32(b[4:8], size)
	binary.LittleEndian.PutUint32(b[8:12], offset<<6)
}

func buildTestImage(t *testing.T) ([]byte, []byte) {
	t.Helper()
	fileData := []byte("hello from cramfs, a compact read-only tree")
	compressed := zlibCompress(t, fileData)

	const root = rootInodeOff
	const rootDirSize = inodeSize + 12 // one child "hello.txt": 12-byte header + name padded to 12 bytes
	fileInodeOff := root + rootDirSize

	// file's block pointer table: one block, pointer table is 4 bytes
	// (one entry for the single block), stored right at fileInodeOff's
	// "offset" target, followed immediately by the compressed block.
	ptrTableOff := fileInodeOff + inodeSize + 12 // after file inode + name
	blockDataOff := ptrTableOff + 4
	blockEnd := blockDataOff + len(compressed)

	total := blockEnd + 16
	data := make([]byte, total)
	binary.LittleEndian.PutUint32(data[0:4], magic)
	copy(data[48:], "TESTVOL")

	putInode(data[root:], modeDir, uint32(rootDirSize), uint32(fileInodeOff)>>2, 0)

	nameBuf := []byte("hello.txt")
	putInode(data[fileInodeOff:], 0o100000, uint32(len(fileData)), uint32(ptrTableOff)>>2, uint8((len(nameBuf)+3)/4))
	copy(data[fileInodeOff+inodeSize:], nameBuf)

	binary.LittleEndian.PutUint32(data[ptrTableOff:], uint32(blockEnd))
	copy(data[blockDataOff:], compressed)

	return data, fileData
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
	data, _ := buildTestImage(t)
	d := &memDisk{data: data}
	if err := probe(d); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestReadCompressedFile(t *testing.T) {
	data, want := buildTestImage(t)
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
	buf := make([]byte, len(want))
	n, err := f.Read(nil, childPriv, buf, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != len(want) || string(buf) != string(want) {
		t.Fatalf("got %q want %q", buf[:n], want)
	}
}
