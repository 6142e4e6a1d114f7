// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package iso9660

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

func putDirRecord(buf []byte, off int, lba, length uint32, flags byte, name string) int {
	size := 33 + len(name)
	if size%2 != 0 {
		size++
	}
	b := buf[off : off+size]
	b[0] = byte(size)
	binary.LittleEndian.PutUint32(b[2:6], lba)
	binary.LittleEndian.PutUint32(b[10:14], length)
	b[25] = flags
	b[32] = byte(len(name))
	copy(b[33:], name)
	return off + size
}

func buildTestImage() []byte {
	const sectors = 20
	data := make([]byte, sectors*sectorSize)

	// root directory at LBA 17, one sector, containing a self-entry, a
	// subdirectory "DIR", and a file "HELLO.TXT;1".
	rootLBA := uint32(17)
	root := data[int(rootLBA)*sectorSize : int(rootLBA)*sectorSize+sectorSize]
	off := 0
	off = putDirRecord(root, off, rootLBA, sectorSize, modeDir, "\x00")
	off = putDirRecord(root, off, rootLBA, sectorSize, modeDir, "\x01")
	off = putDirRecord(root, off, 18, sectorSize, modeDir, "DIR")
	fileData := []byte("hello from iso9660")
	off = putDirRecord(root, off, 19, uint32(len(fileData)), 0, "HELLO.TXT;1")
	_ = off

	dirLBA := 18
	dirBuf := data[dirLBA*sectorSize : dirLBA*sectorSize+sectorSize]
	doff := 0
	doff = putDirRecord(dirBuf, doff, uint32(dirLBA), sectorSize, modeDir, "\x00")
	doff = putDirRecord(dirBuf, doff, uint32(dirLBA), sectorSize, modeDir, "\x01")
	_ = doff

	copy(data[19*sectorSize:], fileData)

	// primary volume descriptor
	pvd := data[pvdSector*sectorSize : pvdSector*sectorSize+sectorSize]
	pvd[0] = 1
	copy(pvd[1:6], "CD001")
	copy(pvd[40:], "TESTVOL")
	for i := len("TESTVOL"); i < 32; i++ {
		pvd[40+i] = ' '
	}
	putDirRecord(pvd[156:], 0, rootLBA, sectorSize, modeDir, "\x00")

	return data
}

type memDisk struct{ data []byte }

func (d *memDisk) Name() string                 { return "mem" }
func (d *memDisk) Sectors() int64               { return int64(len(d.data)) >> 9 }
func (d *memDisk) Log2SectorSize() uint         { return 9 }
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

func TestProbeDetectsPVD(t *testing.T) {
	d := &memDisk{data: buildTestImage()}
	if err := probe(d); err != nil {
		t.Fatalf("probe: %v", err)
	}
}

func TestListRootAndReadFile(t *testing.T) {
	d := &memDisk{data: buildTestImage()}
	f := format()

	rootPriv, err := f.OpenRoot(d)
	if err != nil {
		t.Fatalf("openroot: %v", err)
	}

	var entries []fsreg.DirEntryInfo
	for entry, err := range f.IterateDir(d, rootPriv) {
		if err != nil {
			t.Fatalf("iterate: %v", err)
		}
		entries = append(entries, entry)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	var fileEntry fsreg.DirEntryInfo
	for _, e := range entries {
		if !e.IsDir {
			fileEntry = e
		}
	}
	if fileEntry.Name == "" {
		t.Fatal("expected a file entry among root children")
	}

	childPriv, err := f.OpenChild(d, rootPriv, fileEntry)
	if err != nil {
		t.Fatalf("openchild: %v", err)
	}
	buf := make([]byte, fileEntry.Size)
	if _, err := f.Read(nil, childPriv, buf, 0); err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "hello from iso9660" {
		t.Fatalf("got %q", buf)
	}
}
