// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package romfs registers the Linux romfs module. The format (magic,
// header, and 16-byte-aligned file-header chain) is small, fixed, and
// documented in the kernel's Documentation/filesystems/romfs.rst; no
// retrieved reference reader covered it, so it is implemented directly
// from that well-known layout, the same justification used for cramfs
// and the cpio reader.
package romfs

import (
	"bytes"
	"encoding/binary"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

const (
	magic      = "-rom1fs-"
	headerSize = 16 // fixed part: next (4), spec (4), size (4), checksum (4)
)

const (
	typeMask    = 0x07
	typeHardlink = 0
	typeDir      = 1
	typeReg      = 2
	typeSymlink  = 3
	execBit      = 0x08
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
	if string(buf) != magic {
		return fsreg.ErrUnsupported
	}
	return nil
}

// fileHeader is one romfs file entry: a 16-byte fixed part followed by a
// NUL-terminated name padded to a 16-byte boundary, then file data padded
// the same way. next's low bits carry the type and executable flag.
type fileHeader struct {
	next     uint32
	spec     uint32
	size     uint32
	nameOff  int64
	dataOff  int64
	fullSize int64 // header + name + data, 16-byte aligned
}

func readFileHeader(disk blockio.Disk, off int64) (fileHeader, string, error) {
	hdr := make([]byte, headerSize)
	if _, err := disk.ReadAt(hdr, off); err != nil {
		return fileHeader{}, "", err
	}
	fh := fileHeader{
		next: binary.BigEndian.Uint32(hdr[0:4]),
		spec: binary.BigEndian.Uint32(hdr[4:8]),
		size: binary.BigEndian.Uint32(hdr[8:12]),
	}
	fh.nameOff = off + headerSize
	// scan 16-byte chunks for the name's NUL terminator.
	name := make([]byte, 0, 32)
	chunk := make([]byte, 16)
	pos := fh.nameOff
	for {
		if _, err := disk.ReadAt(chunk, pos); err != nil && err != io.EOF {
			return fileHeader{}, "", err
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			name = append(name, chunk[:i]...)
			pos += 16
			break
		}
		name = append(name, chunk...)
		pos += 16
	}
	fh.dataOff = pos
	fh.fullSize = (fh.dataOff - off) + align16(int64(fh.size))
	return fh, string(name), nil
}

func align16(n int64) int64 { return (n + 15) &^ 15 }

type node struct {
	off int64 // offset of this entry's own file header (0 for root, synthetic)
}

type fileHandle struct {
	disk blockio.Disk
	fh   fileHeader
}

func buildRoot(disk blockio.Disk) (any, error) {
	hdr := make([]byte, 8)
	if _, err := disk.ReadAt(hdr, 8); err != nil {
		return nil, err
	}
	// volume name follows the same NUL-padded 16-byte convention starting
	// at offset 16; the root directory's own file header follows that.
	pos := int64(16)
	chunk := make([]byte, 16)
	for {
		if _, err := disk.ReadAt(chunk, pos); err != nil && err != io.EOF {
			return nil, err
		}
		pos += 16
		if bytes.IndexByte(chunk, 0) >= 0 {
			break
		}
	}
	return &node{off: pos}, nil
}

func iterateDir(disk blockio.Disk, private any) iter.Seq2[fsreg.DirEntryInfo, error] {
	n := private.(*node)
	return func(yield func(fsreg.DirEntryInfo, error) bool) {
		dirHdr, _, err := readFileHeader(disk, n.off)
		if err != nil {
			yield(fsreg.DirEntryInfo{}, err)
			return
		}
		// spec for a directory holds the offset of its first child.
		childOff := int64(dirHdr.spec)
		for childOff != 0 {
			fh, name, err := readFileHeader(disk, childOff)
			if err != nil {
				yield(fsreg.DirEntryInfo{}, err)
				return
			}
			if name != "." && name != ".." {
				d := fsreg.DirEntryInfo{
					Name:  name,
					IsDir: fh.next&typeMask == typeDir,
					Size:  int64(fh.size),
				}
				if !yield(d, nil) {
					return
				}
			}
			childOff = int64(fh.next &^ 0xf)
		}
	}
}

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:       "romfs",
		Probe:      probe,
		OpenRoot:   buildRoot,
		IterateDir: iterateDir,
		OpenChild: func(disk blockio.Disk, private any, entry fsreg.DirEntryInfo) (any, error) {
			n := private.(*node)
			dirHdr, _, err := readFileHeader(disk, n.off)
			if err != nil {
				return nil, err
			}
			childOff := int64(dirHdr.spec)
			for childOff != 0 {
				fh, name, err := readFileHeader(disk, childOff)
				if err != nil {
					return nil, err
				}
				if name == entry.Name {
					switch fh.next & typeMask {
					case typeDir:
						return &node{off: childOff}, nil
					default:
						return &fileHandle{disk: disk, fh: fh}, nil
					}
				}
				childOff = int64(fh.next &^ 0xf)
			}
			return nil, fsreg.ErrUnsupported
		},
		Read: func(_ *fsreg.Handle, private any, p []byte, off int64) (int, error) {
			fh, ok := private.(*fileHandle)
			if !ok {
				return 0, fsreg.ErrUnsupported
			}
			if off >= int64(fh.fh.size) {
				return 0, io.EOF
			}
			want := p
			if remain := int64(fh.fh.size) - off; int64(len(want)) > remain {
				want = want[:remain]
			}
			return fh.disk.ReadAt(want, fh.fh.dataOff+off)
		},
		Close: func(any) error { return nil },
		Readlink: func(disk blockio.Disk, private any, entry fsreg.DirEntryInfo) (string, error) {
			n, ok := private.(*node)
			if !ok {
				return "", fsreg.ErrUnsupported
			}
			dirHdr, _, err := readFileHeader(disk, n.off)
			if err != nil {
				return "", err
			}
			childOff := int64(dirHdr.spec)
			for childOff != 0 {
				fh, name, err := readFileHeader(disk, childOff)
				if err != nil {
					return "", err
				}
				if name == entry.Name && fh.next&typeMask == typeSymlink {
					target := make([]byte, fh.size)
					if _, err := disk.ReadAt(target, fh.dataOff); err != nil {
						return "", err
					}
					return strings.TrimRight(string(target), "\x00"), nil
				}
				childOff = int64(fh.next &^ 0xf)
			}
			return "", fsreg.ErrUnsupported
		},
		UUID: func(blockio.Disk) (string, error) {
			return "", fsreg.ErrUnsupported
		},
		Label: func(disk blockio.Disk) (string, error) {
			pos := int64(16)
			chunk := make([]byte, 16)
			name := make([]byte, 0, 16)
			for {
				if _, err := disk.ReadAt(chunk, pos); err != nil && err != io.EOF {
					return "", err
				}
				if i := bytes.IndexByte(chunk, 0); i >= 0 {
					name = append(name, chunk[:i]...)
					break
				}
				name = append(name, chunk...)
				pos += 16
			}
			return string(name), nil
		},
		Mtime: func(blockio.Disk) (time.Time, error) {
			return time.Time{}, fsreg.ErrUnsupported
		},
	}
}

func init() {
	fsreg.Register(format())
}
