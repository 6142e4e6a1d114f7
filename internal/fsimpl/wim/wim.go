// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package wim registers the Windows Imaging (WIM) archive module,
// following the published WIM file format (header, resource headers,
// chunked compressed resources, security table, directory entries with
// embedded SHA-1 stream references); chunk decompression uses internal/codec/mscompress's
// XPRESS decoder for WIM_HDR_COMPRESS_XPRESS images. LZX-compressed
// images (WIM_HDR_COMPRESS_LZX) probe and open successfully but reading
// a chunk reports mscompress.ErrUnsupportedAlgorithm, since mscompress
// does not implement LZX. Split (.swm) sets and image selection by
// numeric path prefix are not supported; the boot metadata resource is
// always used, matching the common single-image case.
package wim

import (
	"encoding/binary"
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/codec/mscompress"
	"github.com/arcfs/corefs/internal/decompressioncache"
	"github.com/arcfs/corefs/internal/filetimeconv"
	"github.com/arcfs/corefs/internal/fsreg"
	"golang.org/x/text/encoding/unicode"
)

const (
	chunkLen = 32768

	flagCompressXpress = 0x00020000
	flagCompressLZX    = 0x00040000

	attrDirectory = 0x00000010

	reshdrZlenMask  = 0x00ffffffffffffff
	reshdrCompressed = uint64(0x04) << 56
)

func probe(disk blockio.Disk) error {
	buf := make([]byte, 8)
	n, err := disk.ReadAt(buf, 0)
	if n < 8 {
		if err != nil {
			return err
		}
		return fsreg.ErrUnsupported
	}
	if string(buf[:6]) != "MSWIM\x00" {
		return fsreg.ErrUnsupported
	}
	return nil
}

type resourceHeader struct {
	zlenFlags uint64
	offset    uint64
	length    uint64
}

func (r resourceHeader) zlen() uint64       { return r.zlenFlags & reshdrZlenMask }
func (r resourceHeader) compressed() bool   { return r.zlenFlags&reshdrCompressed != 0 }

func readResourceHeader(b []byte) resourceHeader {
	return resourceHeader{
		zlenFlags: binary.LittleEndian.Uint64(b[0:8]),
		offset:    binary.LittleEndian.Uint64(b[8:16]),
		length:    binary.LittleEndian.Uint64(b[16:24]),
	}
}

type wimImage struct {
	disk     blockio.Disk
	flags    uint32
	bootMeta resourceHeader
	lookup   resourceHeader

	// decompressed-chunk caches, one per compressed resource touched
	// through this mount, keyed by the resource's file offset
	ras map[uint64]*decompressioncache.ReaderAt
}

func mount(disk blockio.Disk) (*wimImage, error) {
	hdr := make([]byte, 124)
	if _, err := disk.ReadAt(hdr, 0); err != nil {
		return nil, err
	}
	w := &wimImage{
		disk:  disk,
		flags: binary.LittleEndian.Uint32(hdr[16:20]),
		ras:   make(map[uint64]*decompressioncache.ReaderAt),
	}
	w.lookup = readResourceHeader(hdr[48:72])
	w.bootMeta = readResourceHeader(hdr[96:120])
	return w, nil
}

// resourceReaderAt returns the chunk-caching view of a compressed
// resource, so that sequential reads (and a directory scan's repeated
// small reads) decompress each 32 KiB chunk once rather than per read.
func (w *wimImage) resourceReaderAt(res resourceHeader) *decompressioncache.ReaderAt {
	if ra, ok := w.ras[res.offset]; ok {
		return ra
	}
	var step func(chunk uint64) decompressioncache.Stepper
	step = func(chunk uint64) decompressioncache.Stepper {
		return func() (decompressioncache.Stepper, []byte, error) {
			data, err := readChunk(w, res, chunk)
			if err != nil {
				return nil, nil, err
			}
			return step(chunk + 1), data, nil
		}
	}
	ra := decompressioncache.New(step(0), int64(res.length), fmt.Sprintf("wim@%d", res.offset))
	w.ras[res.offset] = ra
	return ra
}

// findStream locates the resource header for the content stream whose
// SHA-1 hash matches hash, by scanning the lookup table linearly.
func findStream(w *wimImage, hash [20]byte) (resourceHeader, error) {
	const entrySize = 24 + 2 + 4 + 20
	for off := int64(0); off+entrySize <= int64(w.lookup.length); off += entrySize {
		buf, err := readResource(w, w.lookup, off, entrySize)
		if err != nil {
			return resourceHeader{}, err
		}
		if string(buf[30:50]) == string(hash[:]) {
			return readResourceHeader(buf[0:24]), nil
		}
	}
	return resourceHeader{}, fsreg.ErrUnsupported
}

// chunkOffset returns the byte offset (relative to res.offset) at which
// chunk's compressed data begins, following the chunk-table convention:
// entry 0 is implicit (right after the table), later entries are stored
// as 32- or 64-bit cumulative offsets depending on resource size.
func chunkOffset(w *wimImage, res resourceHeader, chunk uint64) (int64, error) {
	if res.length == 0 {
		return 0, nil
	}
	chunks := (res.length + chunkLen - 1) / chunkLen
	offsetLen := int64(4)
	if res.length > 0xffffffff {
		offsetLen = 8
	}
	chunksLen := int64(chunks-1) * offsetLen
	if chunk == 0 {
		return chunksLen, nil
	}
	if chunk >= chunks {
		return int64(res.zlen()), nil
	}
	buf := make([]byte, offsetLen)
	if _, err := w.disk.ReadAt(buf, int64(res.offset)+int64(chunk-1)*offsetLen); err != nil {
		return 0, err
	}
	var off int64
	if offsetLen == 8 {
		off = int64(binary.LittleEndian.Uint64(buf))
	} else {
		off = int64(binary.LittleEndian.Uint32(buf))
	}
	return chunksLen + off, nil
}

func readChunk(w *wimImage, res resourceHeader, chunk uint64) ([]byte, error) {
	off, err := chunkOffset(w, res, chunk)
	if err != nil {
		return nil, err
	}
	nextOff, err := chunkOffset(w, res, chunk+1)
	if err != nil {
		return nil, err
	}
	length := nextOff - off

	chunks := (res.length + chunkLen - 1) / chunkLen
	expected := int64(chunkLen)
	if chunk >= chunks-1 {
		expected = int64(res.length) - int64(chunks-1)*chunkLen
	}

	raw := make([]byte, length)
	if _, err := w.disk.ReadAt(raw, int64(res.offset)+off); err != nil {
		return nil, err
	}
	if length == expected {
		return raw, nil
	}
	var out []byte
	if w.flags&flagCompressLZX != 0 {
		out, err = mscompress.DecodeLZX(raw, int(expected))
	} else {
		out, err = mscompress.Decode(raw)
	}
	if err != nil {
		return nil, err
	}
	if int64(len(out)) != expected {
		return nil, fsreg.ErrUnsupported
	}
	return out, nil
}

// readResource copies length bytes of res's logical content starting at
// offset into a freshly allocated slice, decompressing chunks on demand
// through the per-resource chunk cache.
func readResource(w *wimImage, res resourceHeader, offset int64, length int64) ([]byte, error) {
	out := make([]byte, length)
	if !res.compressed() {
		if _, err := w.disk.ReadAt(out, int64(res.offset)+offset); err != nil && err != io.EOF {
			return nil, err
		}
		return out, nil
	}
	if _, err := w.resourceReaderAt(res).ReadAt(out, offset); err != nil && err != io.EOF {
		return nil, err
	}
	return out, nil
}

type direntRaw struct {
	length     uint64
	attributes uint32
	subdir     uint64
	mtime      uint64
	hash       [20]byte
	name       string
}

func readDirent(w *wimImage, meta resourceHeader, offset int64) (direntRaw, bool, error) {
	lenBuf, err := readResource(w, meta, offset, 8)
	if err != nil {
		return direntRaw{}, false, err
	}
	length := binary.LittleEndian.Uint64(lenBuf)
	if length == 0 {
		return direntRaw{}, false, nil
	}
	fixed, err := readResource(w, meta, offset, 102)
	if err != nil {
		return direntRaw{}, false, err
	}
	nameLen := binary.LittleEndian.Uint16(fixed[100:102])
	var name string
	if nameLen >= 2 {
		nameBytes, err := readResource(w, meta, offset+102, int64(nameLen))
		if err != nil {
			return direntRaw{}, false, err
		}
		name = utf16leToString(nameBytes)
	}
	var hash [20]byte
	copy(hash[:], fixed[64:84])
	return direntRaw{
		length:     length,
		attributes: binary.LittleEndian.Uint32(fixed[8:12]),
		subdir:     binary.LittleEndian.Uint64(fixed[16:24]),
		mtime:      binary.LittleEndian.Uint64(fixed[56:64]),
		hash:       hash,
		name:       name,
	}, true, nil
}

func utf16leToString(b []byte) string {
	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	out, err := dec.Bytes(b)
	if err != nil {
		return string(b) // undecodable names stay visible, however mangled
	}
	return string(out)
}

type node struct {
	meta resourceHeader
	off  int64 // offset of first dirent, within the metadata resource
}

type fileHandle struct {
	w   *wimImage
	res resourceHeader
}

func buildRoot(disk blockio.Disk) (any, error) {
	w, err := mount(disk)
	if err != nil {
		return nil, err
	}
	// root's children start right after the security table, 8-byte
	// aligned; the security table's length is its first 4-byte field.
	secLenBuf, err := readResource(w, w.bootMeta, 0, 4)
	if err != nil {
		return nil, err
	}
	secLen := int64(binary.LittleEndian.Uint32(secLenBuf))
	rootOff := (secLen + 7) &^ 7
	rootEntry, ok, err := readDirent(w, w.bootMeta, rootOff)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fsreg.ErrUnsupported
	}
	return &node{meta: w.bootMeta, off: int64(rootEntry.subdir)}, nil
}

func iterateEntries(w *wimImage, n *node, yield func(direntRaw) bool) error {
	off := n.off
	for {
		e, ok, err := readDirent(w, n.meta, off)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if !yield(e) {
			return nil
		}
		off += int64(e.length)
	}
}

func iterateDir(disk blockio.Disk, private any) iter.Seq2[fsreg.DirEntryInfo, error] {
	n := private.(*node)
	w, err := mount(disk)
	return func(yield func(fsreg.DirEntryInfo, error) bool) {
		if err != nil {
			yield(fsreg.DirEntryInfo{}, err)
			return
		}
		werr := iterateEntries(w, n, func(e direntRaw) bool {
			d := fsreg.DirEntryInfo{
				Name:              e.name,
				IsDir:             e.attributes&attrDirectory != 0,
				IsCaseInsensitive: true,
				MtimeSet:          true,
				Mtime:             filetimeconv.ToTime(e.mtime),
			}
			return yield(d, nil)
		})
		if werr != nil {
			yield(fsreg.DirEntryInfo{}, werr)
		}
	}
}

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:       "wim",
		Probe:      probe,
		OpenRoot:   buildRoot,
		IterateDir: iterateDir,
		OpenChild: func(disk blockio.Disk, private any, entry fsreg.DirEntryInfo) (any, error) {
			n := private.(*node)
			w, err := mount(disk)
			if err != nil {
				return nil, err
			}
			var found direntRaw
			var hit bool
			if err := iterateEntries(w, n, func(e direntRaw) bool {
				if e.name == entry.Name {
					found, hit = e, true
					return false
				}
				return true
			}); err != nil {
				return nil, err
			}
			if !hit {
				return nil, fsreg.ErrUnsupported
			}
			if found.attributes&attrDirectory != 0 {
				return &node{meta: n.meta, off: int64(found.subdir)}, nil
			}
			res, err := findStream(w, found.hash)
			if err != nil {
				return nil, err
			}
			return &fileHandle{w: w, res: res}, nil
		},
		Read: func(_ *fsreg.Handle, private any, p []byte, off int64) (int, error) {
			fh, ok := private.(*fileHandle)
			if !ok || fh.res.length == 0 {
				return 0, fsreg.ErrUnsupported
			}
			if off >= int64(fh.res.length) {
				return 0, io.EOF
			}
			want := int64(len(p))
			if remain := int64(fh.res.length) - off; want > remain {
				want = remain
			}
			data, err := readResource(fh.w, fh.res, off, want)
			if err != nil {
				return 0, err
			}
			return copy(p, data), nil
		},
		Close: func(any) error { return nil },
		Readlink: func(blockio.Disk, any, fsreg.DirEntryInfo) (string, error) {
			return "", fsreg.ErrUnsupported
		},
		UUID: func(blockio.Disk) (string, error) {
			return "", fsreg.ErrUnsupported
		},
		Label: func(blockio.Disk) (string, error) {
			return "", fsreg.ErrUnsupported
		},
		Mtime: func(blockio.Disk) (time.Time, error) {
			return time.Time{}, fsreg.ErrUnsupported
		},
	}
}

func init() {
	fsreg.Register(format())
}
