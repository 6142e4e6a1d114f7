// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package erofs

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
	"github.com/pierrec/lz4/v4"
)

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

func compressBlock(t *testing.T, plain []byte) []byte {
	t.Helper()
	out := make([]byte, lz4.CompressBlockBound(len(plain)))
	n, err := lz4.CompressBlock(plain, out, make([]int, 64<<10))
	if err != nil {
		t.Fatalf("lz4 compress: %v", err)
	}
	if n == 0 {
		t.Skip("lz4.CompressBlock declined to compress the test payload")
	}
	return out[:n]
}

// imageBuilder hand-places a minimal EROFS volume: superblock, a root
// directory inode at nid 0 whose single dirent names one regular file at
// nid 16, and the file inode itself. blkszLog2 is 12, metaBlkAddr 1, so
// nid 0 sits at byte 4096 and nid 16 at byte 4608 (32-byte iloc slots).
const (
	tMetaBase  = 4096
	tRootIloc  = tMetaBase
	tFileIloc  = tMetaBase + 16*32
	tZHeader   = tFileIloc + 32 // alignUp8(fileIloc + ownSize), xattrICount=0
	tFullIndex = tZHeader + 16  // header (8) + pad (8)
)

func newImage(total int, fileName string, fileSize uint64, fileLayout int) []byte {
	data := make([]byte, total)

	binary.LittleEndian.PutUint32(data[1024:1028], magic)
	data[1024+12] = 12                                      // blkszLog2
	binary.LittleEndian.PutUint16(data[1024+14:1024+16], 0) // rootNid
	binary.LittleEndian.PutUint64(data[1024+24:1024+32], 1700000000) // buildTime
	binary.LittleEndian.PutUint32(data[1024+40:1024+44], 1) // metaBlkAddr
	copy(data[1024+48:1024+64], "0123456789abcdef")         // uuid
	copy(data[1024+64:], "TESTVOL")

	// root inode: compact, FLAT_INLINE, dirents tail-packed after it
	binary.LittleEndian.PutUint16(data[tRootIloc:tRootIloc+2], uint16(datalayoutFlatInline<<1)|layoutCompact)
	binary.LittleEndian.PutUint16(data[tRootIloc+4:tRootIloc+6], 0o040755)
	dirContentSize := 12 + len(fileName)
	binary.LittleEndian.PutUint32(data[tRootIloc+8:tRootIloc+12], uint32(dirContentSize))

	rootDirOff := tRootIloc + 32
	binary.LittleEndian.PutUint64(data[rootDirOff:rootDirOff+8], 16)
	binary.LittleEndian.PutUint16(data[rootDirOff+8:rootDirOff+10], 12)
	data[rootDirOff+10] = ftRegFile
	copy(data[rootDirOff+12:], fileName)

	// file inode: compact
	binary.LittleEndian.PutUint16(data[tFileIloc:tFileIloc+2], uint16(fileLayout<<1)|layoutCompact)
	binary.LittleEndian.PutUint16(data[tFileIloc+4:tFileIloc+6], 0o100644)
	binary.LittleEndian.PutUint32(data[tFileIloc+8:tFileIloc+12], uint32(fileSize))

	return data
}

func openOnlyFile(t *testing.T, d blockio.Disk, wantName string, wantSize int64) *fileHandle {
	t.Helper()
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
	if len(entries) != 1 || entries[0].Name != wantName {
		t.Fatalf("unexpected entries: %+v", entries)
	}
	if entries[0].Size != wantSize {
		t.Fatalf("size = %d, want %d", entries[0].Size, wantSize)
	}
	childPriv, err := f.OpenChild(d, rootPriv, entries[0])
	if err != nil {
		t.Fatalf("openchild: %v", err)
	}
	return childPriv.(*fileHandle)
}

// A single inline-pcluster (tail-packed) LZ4 extent: the spec's
// "hello world" scenario.
func TestReadLZ4TailpackedFile(t *testing.T) {
	want := []byte("hello world")
	comp := compressBlock(t, want)

	idataOff := tFullIndex + 8
	data := newImage(idataOff+len(comp)+16, "hello.txt", uint64(len(want)), datalayoutCompressedFull)

	// z header: idata_size, advise=INLINE_PCLUSTER, lz4, clusterbits=0
	binary.LittleEndian.PutUint16(data[tZHeader+2:tZHeader+4], uint16(len(comp)))
	binary.LittleEndian.PutUint16(data[tZHeader+4:tZHeader+6], adviseInlinePCluster)

	// lcluster 0: HEAD1, clusterofs 0
	binary.LittleEndian.PutUint16(data[tFullIndex:tFullIndex+2], lclusterTypeHead1)
	copy(data[idataOff:], comp)

	d := &memDisk{data: data}
	if err := probe(d); err != nil {
		t.Fatalf("probe: %v", err)
	}
	fh := openOnlyFile(t, d, "hello.txt", int64(len(want)))

	buf := make([]byte, len(want))
	n, err := fh.pread(buf, 0)
	if err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if n != len(want) || !bytes.Equal(buf, want) {
		t.Fatalf("got %q want %q", buf[:n], want)
	}

	// reads at or past size return 0 bytes
	if n, err := fh.pread(buf, int64(len(want))); n != 0 || err != io.EOF {
		t.Fatalf("read at EOF: n=%d err=%v", n, err)
	}
}

// An extent spanning two lclusters via a NONHEAD lookback entry, decoded
// from a single one-block pcluster, exercising the back-to-front read
// loop and partial LZ4 decoding.
func TestReadLZ4LookbackExtent(t *testing.T) {
	want := []byte(strings.Repeat("all work and no play makes jack a dull boy\n", 120))[:5000]
	comp := compressBlock(t, want)
	if len(comp) > 4096 {
		t.Fatalf("test payload did not compress below one block: %d", len(comp))
	}

	data := newImage(3*4096, "big.bin", uint64(len(want)), datalayoutCompressedFull)

	// z header: advise=0, lz4, clusterbits=0 (lcluster = block = 4096)
	// lcluster 0: HEAD1, clusterofs=0, blkaddr=2
	binary.LittleEndian.PutUint16(data[tFullIndex:tFullIndex+2], lclusterTypeHead1)
	binary.LittleEndian.PutUint32(data[tFullIndex+4:tFullIndex+8], 2)
	// lcluster 1: NONHEAD, delta0=1 (lookback to the head)
	binary.LittleEndian.PutUint16(data[tFullIndex+8:tFullIndex+10], lclusterTypeNonHead)
	binary.LittleEndian.PutUint16(data[tFullIndex+12:tFullIndex+14], 1)

	copy(data[2*4096:], comp)

	d := &memDisk{data: data}
	fh := openOnlyFile(t, d, "big.bin", int64(len(want)))

	buf := make([]byte, len(want))
	if _, err := fh.pread(buf, 0); err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf, want) {
		t.Fatal("full read mismatch")
	}

	// a mid-file slice forces a nonzero decodedskip
	slice := make([]byte, 100)
	if _, err := fh.pread(slice, 4000); err != nil && err != io.EOF {
		t.Fatalf("read slice: %v", err)
	}
	if !bytes.Equal(slice, want[4000:4100]) {
		t.Fatal("sliced read mismatch")
	}
}

// The same two-lcluster extent stored as a COMPRESSED_COMPACT index:
// two 16-bit entries bit-packed with a shared 32-bit block address.
func TestReadLZ4CompactIndex(t *testing.T) {
	want := []byte(strings.Repeat("compact index entries share amortized slots ", 114))[:5000]
	comp := compressBlock(t, want)
	if len(comp) > 4096 {
		t.Fatalf("test payload did not compress below one block: %d", len(comp))
	}

	data := newImage(3*4096, "big.bin", uint64(len(want)), datalayoutCompressedCompact)

	// ebase = alignUp8(fileIloc+32) + 8 = tZHeader + 8; both lcns fall in
	// the initial 4-byte-amortized run, same 8-byte pack: two 16-bit
	// entries then the pack's base block address.
	ebase := tZHeader + 8
	word0 := uint16(lclusterTypeHead1 << 12)         // clusterofs 0
	word1 := uint16(lclusterTypeNonHead<<12 | 1)     // delta0 1
	binary.LittleEndian.PutUint16(data[ebase:ebase+2], word0)
	binary.LittleEndian.PutUint16(data[ebase+2:ebase+4], word1)
	// the head's decoded pblk is this word plus nblk (1 for the pack's
	// first head), so store the target block minus one
	binary.LittleEndian.PutUint32(data[ebase+4:ebase+8], 1)

	copy(data[2*4096:], comp)

	d := &memDisk{data: data}
	fh := openOnlyFile(t, d, "big.bin", int64(len(want)))

	buf := make([]byte, len(want))
	if _, err := fh.pread(buf, 0); err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf, want) {
		t.Fatal("full read mismatch")
	}
}

// Zero-padding feature: the compressed data sits right-aligned in its
// pcluster and the decoder skips the leading zeros.
func TestReadLZ4ZeroPadded(t *testing.T) {
	want := []byte(strings.Repeat("padding precedes the compressed stream here ", 114))[:5000]
	comp := compressBlock(t, want)
	if len(comp) >= 4096 {
		t.Fatalf("test payload did not compress below one block: %d", len(comp))
	}
	if comp[0] == 0 {
		t.Skip("compressed stream begins with a zero byte; margin scan would overrun")
	}

	data := newImage(3*4096, "big.bin", uint64(len(want)), datalayoutCompressedFull)
	binary.LittleEndian.PutUint32(data[1024+80:1024+84], featureZeroPadding)

	binary.LittleEndian.PutUint16(data[tFullIndex:tFullIndex+2], lclusterTypeHead1)
	binary.LittleEndian.PutUint32(data[tFullIndex+4:tFullIndex+8], 2)
	binary.LittleEndian.PutUint16(data[tFullIndex+8:tFullIndex+10], lclusterTypeNonHead)
	binary.LittleEndian.PutUint16(data[tFullIndex+12:tFullIndex+14], 1)

	copy(data[3*4096-len(comp):], comp) // right-aligned in block 2

	d := &memDisk{data: data}
	fh := openOnlyFile(t, d, "big.bin", int64(len(want)))

	buf := make([]byte, len(want))
	if _, err := fh.pread(buf, 0); err != nil && err != io.EOF {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(buf, want) {
		t.Fatal("zero-padded read mismatch")
	}
}

func TestLabelUUIDMtime(t *testing.T) {
	data := newImage(2*4096, "x", 0, datalayoutFlatPlain)
	d := &memDisk{data: data}
	f := format()

	label, err := f.Label(d)
	if err != nil || label != "TESTVOL" {
		t.Fatalf("label = %q, %v", label, err)
	}
	uuid, err := f.UUID(d)
	if err != nil || uuid != "30313233-3435-3637-3839-616263646566" {
		t.Fatalf("uuid = %q, %v", uuid, err)
	}
	mtime, err := f.Mtime(d)
	if err != nil || mtime.Unix() != 1700000000 {
		t.Fatalf("mtime = %v, %v", mtime, err)
	}
}

func TestRejectsUnknownIncompatFeature(t *testing.T) {
	data := newImage(2*4096, "x", 0, datalayoutFlatPlain)
	binary.LittleEndian.PutUint32(data[1024+80:1024+84], 0x8000)
	if _, err := readSuper(&memDisk{data: data}); err == nil {
		t.Fatal("expected unsupported-feature error")
	}
}
