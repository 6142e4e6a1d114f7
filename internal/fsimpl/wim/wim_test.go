// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package wim

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

// buildWim lays out a minimal single-image WIM with uncompressed
// resources: header, file content, lookup table, and a boot metadata
// resource holding a root directory with one file.
func buildWim(t *testing.T) (img []byte, content []byte, mtime time.Time) {
	t.Helper()
	content = []byte("windows imaging payload")
	mtime = time.Date(2021, 3, 14, 15, 9, 26, 0, time.UTC)
	var hash [20]byte
	copy(hash[:], "0123456789abcdefghij")

	// FILETIME for the dirent
	epoch := time.Date(1601, 1, 1, 0, 0, 0, 0, time.UTC)
	filetime := uint64(mtime.Unix()-epoch.Unix()) * 10000000

	name := "cmd.txt"
	dirent := func(length uint64, attrs uint32, subdir uint64, withName bool) []byte {
		b := make([]byte, 102)
		binary.LittleEndian.PutUint64(b[0:8], length)
		binary.LittleEndian.PutUint32(b[8:12], attrs)
		binary.LittleEndian.PutUint64(b[16:24], subdir)
		binary.LittleEndian.PutUint64(b[56:64], filetime)
		copy(b[64:84], hash[:])
		if withName {
			binary.LittleEndian.PutUint16(b[100:102], uint16(2*len(name)))
			for _, c := range name {
				var u [2]byte
				binary.LittleEndian.PutUint16(u[:], uint16(c))
				b = append(b, u[:]...)
			}
		}
		return b
	}

	// metadata resource: security table, root dirent, child list
	var meta bytes.Buffer
	secTable := make([]byte, 8)
	binary.LittleEndian.PutUint32(secTable[0:4], 8) // its own length, already 8-aligned
	meta.Write(secTable)

	childOff := uint64(8 + 104) // after security table + root entry (rounded)
	root := dirent(104, attrDirectory, childOff, false)
	root = append(root, make([]byte, 104-len(root))...)
	meta.Write(root)

	child := dirent(0, 0, 0, true)
	binary.LittleEndian.PutUint64(child[0:8], uint64(len(child)))
	meta.Write(child)
	meta.Write(make([]byte, 8)) // end-of-directory

	// assemble the image
	const hdrLen = 208
	fileOff := int64(hdrLen)
	lookupOff := fileOff + int64(len(content))
	const lookupEntry = 24 + 2 + 4 + 20
	metaOff := lookupOff + lookupEntry

	img = make([]byte, metaOff+int64(meta.Len()))
	copy(img, "MSWIM\x00\x00\x00")
	// flags at 16:20 stay zero: no compression

	putResHdr := func(at int, off, length int64) {
		binary.LittleEndian.PutUint64(img[at:], uint64(length)) // zlen, no flags
		binary.LittleEndian.PutUint64(img[at+8:], uint64(off))
		binary.LittleEndian.PutUint64(img[at+16:], uint64(length))
	}
	putResHdr(48, lookupOff, lookupEntry) // lookup table
	putResHdr(96, metaOff, int64(meta.Len()))

	copy(img[fileOff:], content)
	putResHdr(int(lookupOff), fileOff, int64(len(content)))
	copy(img[lookupOff+30:], hash[:])

	copy(img[metaOff:], meta.Bytes())
	return img, content, mtime
}

func TestReadUncompressedWim(t *testing.T) {
	img, content, mtime := buildWim(t)
	d := &blockio.MemDisk{NameStr: "wim", Bytes: img, Log2Sector: 9}
	f := format()

	if err := f.Probe(d); err != nil {
		t.Fatalf("probe: %v", err)
	}

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
	if len(entries) != 1 || entries[0].Name != "cmd.txt" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if !entries[0].IsCaseInsensitive {
		t.Error("WIM names should compare case-insensitively")
	}
	if !entries[0].Mtime.Equal(mtime) {
		t.Errorf("mtime = %v, want %v", entries[0].Mtime, mtime)
	}

	priv, err := f.OpenChild(d, rootPriv, entries[0])
	if err != nil {
		t.Fatalf("openchild: %v", err)
	}
	buf := make([]byte, len(content))
	n, err := f.Read(nil, priv, buf, 0)
	if err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if n != len(content) || !bytes.Equal(buf, content) {
		t.Fatalf("got %q want %q", buf[:n], content)
	}

	// a read past the end returns no bytes
	if n, err := f.Read(nil, priv, buf, int64(len(content))); n != 0 || err != io.EOF {
		t.Fatalf("read at EOF: n=%d err=%v", n, err)
	}
}
