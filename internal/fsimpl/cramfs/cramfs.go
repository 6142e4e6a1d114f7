// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package cramfs registers the cramfs filesystem module: a compact,
// read-only format (Linux kernel fs/cramfs) whose superblock and inode
// layout are small, fixed, and stable enough to implement directly from
// the well-known on-disk structure rather than from a retrieved reference
// reader (none turned up in the pack). Per-inode data is stored as a
// sequence of fixed-size zlib-compressed blocks with a block-pointer
// index at the inode's data offset; only that common layout is handled.
package cramfs

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"io"
	"iter"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

const (
	magic        = 0x28cd3d45
	blockSize    = 4096
	inodeSize    = 12
	rootInodeOff = 64 // offset of the root inode within the superblock block
)

func probe(disk blockio.Disk) error {
	head := make([]byte, 4)
	n, err := disk.ReadAt(head, 0)
	if n < 4 {
		if err != nil {
			return err
		}
		return fsreg.ErrUnsupported
	}
	if binary.LittleEndian.Uint32(head) != magic {
		return fsreg.ErrUnsupported
	}
	return nil
}

// inode mirrors struct cramfs_inode: mode/uid (4), size/gid (4), namelen/offset (4).
type inode struct {
	mode   uint16
	size   uint32
	offset uint32 // in 4-byte units, start of this entry's data or child directory
}

const modeTypeMask = 0o170000
const modeDir = 0o040000

func readInode(b []byte) inode {
	word1 := binary.LittleEndian.Uint32(b[0:4])
	word2 := binary.LittleEndian.Uint32(b[4:8])
	word3 := binary.LittleEndian.Uint32(b[8:12])
	return inode{
		mode:   uint16(word1 & 0xffff),
		size:   word2 & 0xffffff,
		offset: (word3 >> 6) & 0x3ffffff,
	}
}

type node struct {
	ino     inode
	namelen int
}

func buildRoot(disk blockio.Disk) (any, error) {
	b := make([]byte, inodeSize+4)
	if _, err := disk.ReadAt(b, rootInodeOff); err != nil {
		return nil, err
	}
	word1 := binary.LittleEndian.Uint32(b[0:4])
	namelen := int((word1 >> 24) & 0xff)
	return &node{ino: readInode(b), namelen: namelen}, nil
}

func iterateDir(disk blockio.Disk, private any) iter.Seq2[fsreg.DirEntryInfo, error] {
	n := private.(*node)
	return func(yield func(fsreg.DirEntryInfo, error) bool) {
		base := int64(n.ino.offset) * 4
		end := base + int64(n.ino.size)
		off := base
		for off < end {
			hdr := make([]byte, inodeSize)
			if _, err := disk.ReadAt(hdr, off); err != nil {
				yield(fsreg.DirEntryInfo{}, err)
				return
			}
			word1 := binary.LittleEndian.Uint32(hdr[0:4])
			namelen := int((word1 >> 24) & 0xff) * 4 // stored in 4-byte units
			nameBuf := make([]byte, namelen)
			if namelen > 0 {
				if _, err := disk.ReadAt(nameBuf, off+inodeSize); err != nil {
					yield(fsreg.DirEntryInfo{}, err)
					return
				}
			}
			name := string(bytes.TrimRight(nameBuf, "\x00"))
			child := readInode(hdr)
			d := fsreg.DirEntryInfo{
				Name:  name,
				IsDir: child.mode&modeTypeMask == modeDir,
				Size:  int64(child.size),
			}
			if !yield(d, nil) {
				return
			}
			off += inodeSize + int64(namelen)
		}
	}
}

type fileHandle struct {
	disk blockio.Disk
	ino  inode
}

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:       "cramfs",
		Probe:      probe,
		OpenRoot:   buildRoot,
		IterateDir: iterateDir,
		OpenChild: func(disk blockio.Disk, private any, entry fsreg.DirEntryInfo) (any, error) {
			n := private.(*node)
			base := int64(n.ino.offset) * 4
			end := base + int64(n.ino.size)
			off := base
			for off < end {
				hdr := make([]byte, inodeSize)
				if _, err := disk.ReadAt(hdr, off); err != nil {
					return nil, err
				}
				word1 := binary.LittleEndian.Uint32(hdr[0:4])
				namelen := int((word1 >> 24) & 0xff) * 4
				nameBuf := make([]byte, namelen)
				if namelen > 0 {
					if _, err := disk.ReadAt(nameBuf, off+inodeSize); err != nil {
						return nil, err
					}
				}
				name := string(bytes.TrimRight(nameBuf, "\x00"))
				child := readInode(hdr)
				if name == entry.Name {
					if child.mode&modeTypeMask == modeDir {
						return &node{ino: child, namelen: namelen}, nil
					}
					return &fileHandle{disk: disk, ino: child}, nil
				}
				off += inodeSize + int64(namelen)
			}
			return nil, fsreg.ErrUnsupported
		},
		// Read decompresses whichever 4096-byte block covers off, using
		// the per-file block-pointer table stored immediately before the
		// file's data (one uint32 per block, the absolute byte offset of
		// the end of that block's compressed run).
		Read: func(_ *fsreg.Handle, private any, p []byte, off int64) (int, error) {
			fh, ok := private.(*fileHandle)
			if !ok {
				return 0, fsreg.ErrUnsupported
			}
			if off >= int64(fh.ino.size) {
				return 0, io.EOF
			}
			blockIdx := off / blockSize
			numBlocks := (int64(fh.ino.size) + blockSize - 1) / blockSize
			ptrTable := int64(fh.ino.offset) * 4
			ptrs := make([]byte, 4*(blockIdx+1))
			if _, err := fh.disk.ReadAt(ptrs, ptrTable); err != nil {
				return 0, err
			}
			var prevEnd int64
			if blockIdx > 0 {
				prevEnd = int64(binary.LittleEndian.Uint32(ptrs[4*(blockIdx-1):]))
			} else {
				prevEnd = ptrTable + 4*numBlocks
			}
			blockEnd := int64(binary.LittleEndian.Uint32(ptrs[4*blockIdx:]))
			compressed := make([]byte, blockEnd-prevEnd)
			if _, err := fh.disk.ReadAt(compressed, prevEnd); err != nil {
				return 0, err
			}
			zr, err := zlib.NewReader(bytes.NewReader(compressed))
			if err != nil {
				return 0, err
			}
			defer zr.Close()
			raw, err := io.ReadAll(zr)
			if err != nil {
				return 0, err
			}
			blockStart := blockIdx * blockSize
			within := off - blockStart
			if within >= int64(len(raw)) {
				return 0, io.EOF
			}
			n := copy(p, raw[within:])
			return n, nil
		},
		Close: func(any) error { return nil },
		Readlink: func(blockio.Disk, any, fsreg.DirEntryInfo) (string, error) {
			return "", fsreg.ErrUnsupported
		},
		UUID: func(blockio.Disk) (string, error) {
			return "", fsreg.ErrUnsupported
		},
		Label: func(disk blockio.Disk) (string, error) {
			buf := make([]byte, 16)
			if _, err := disk.ReadAt(buf, 48); err != nil {
				return "", err
			}
			return string(bytes.TrimRight(buf, "\x00")), nil
		},
		Mtime: func(blockio.Disk) (time.Time, error) {
			return time.Time{}, fsreg.ErrUnsupported
		},
	}
}

func init() {
	fsreg.Register(format())
}
