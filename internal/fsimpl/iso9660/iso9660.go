// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package iso9660 registers the ISO 9660 (CD-ROM) filesystem module.
// Layout constants (directory record shape, primary volume descriptor
// field offsets) are grounded on a vendored qeedquan/iso9660 reader; this
// version is rewritten against a plain byte-addressable blockio.Disk
// instead of a sector.Reader, since directory extents are contiguous and
// an io.ReaderAt can span them in one call without the original's
// sector-wrap bookkeeping. Joliet and Rock Ridge extensions are not read;
// only the plain ISO 9660 names in the primary volume descriptor's tree.
package iso9660

import (
	"encoding/binary"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

const (
	sectorSize  = 2048
	pvdSector   = 16
	dirIdentLen = 5
)

func probe(disk blockio.Disk) error {
	buf := make([]byte, 6)
	n, err := disk.ReadAt(buf, pvdSector*sectorSize)
	if n < 6 {
		if err != nil {
			return err
		}
		return fsreg.ErrUnsupported
	}
	if buf[0] != 1 || string(buf[1:1+dirIdentLen]) != "CD001" {
		return fsreg.ErrUnsupported
	}
	return nil
}

type dirRecord struct {
	lba    uint32
	length uint32
	flags  uint8
	name   string
}

const modeDir = 1 << 1

func readDirRecord(b []byte) (dirRecord, int, bool) {
	if len(b) < 34 {
		return dirRecord{}, 0, false
	}
	size := int(b[0])
	if size == 0 {
		return dirRecord{}, 0, false
	}
	if size > len(b) {
		return dirRecord{}, 0, false
	}
	nameLen := int(b[32])
	var d dirRecord
	d.lba = binary.LittleEndian.Uint32(b[2:6])
	d.length = binary.LittleEndian.Uint32(b[10:14])
	d.flags = b[25]
	name := string(b[33 : 33+nameLen])
	switch name {
	case "\x00":
		name = "."
	case "\x01":
		name = ".."
	default:
		// ISO 9660 level-1 names carry a ";version" suffix; drop it.
		if i := strings.IndexByte(name, ';'); i >= 0 {
			name = name[:i]
		}
	}
	d.name = name
	return d, size, true
}

type node struct {
	lba, length uint32
}

// fileHandle carries its own disk reference since Format.Read receives
// only the Handle and its private state, not the disk — OpenChild is
// where that reference is captured.
type fileHandle struct {
	disk        blockio.Disk
	lba, length uint32
}

func buildRoot(disk blockio.Disk) (any, error) {
	pvd := make([]byte, 190)
	if _, err := disk.ReadAt(pvd, pvdSector*sectorSize); err != nil {
		return nil, err
	}
	root, _, ok := readDirRecord(pvd[156:])
	if !ok {
		return nil, fsreg.ErrUnsupported
	}
	return &node{lba: root.lba, length: root.length}, nil
}

func iterateDir(disk blockio.Disk, private any) iter.Seq2[fsreg.DirEntryInfo, error] {
	n := private.(*node)
	return func(yield func(fsreg.DirEntryInfo, error) bool) {
		buf := make([]byte, n.length)
		if _, err := disk.ReadAt(buf, int64(n.lba)*sectorSize); err != nil && err != io.EOF {
			yield(fsreg.DirEntryInfo{}, err)
			return
		}
		off := 0
		for off < len(buf) {
			rec, size, ok := readDirRecord(buf[off:])
			if !ok {
				break
			}
			off += size
			if rec.name == "." || rec.name == ".." {
				continue
			}
			d := fsreg.DirEntryInfo{
				Name:              rec.name,
				IsDir:             rec.flags&modeDir != 0,
				IsCaseInsensitive: true,
				Size:              int64(rec.length),
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:       "iso9660",
		Probe:      probe,
		OpenRoot:   buildRoot,
		IterateDir: iterateDir,
		OpenChild: func(disk blockio.Disk, private any, entry fsreg.DirEntryInfo) (any, error) {
			n := private.(*node)
			for rec, err := range iterateRaw(disk, n) {
				if err != nil {
					return nil, err
				}
				if rec.name == entry.Name {
					if rec.flags&modeDir != 0 {
						return &node{lba: rec.lba, length: rec.length}, nil
					}
					return &fileHandle{disk: disk, lba: rec.lba, length: rec.length}, nil
				}
			}
			return nil, fsreg.ErrUnsupported
		},
		Read: func(_ *fsreg.Handle, private any, p []byte, off int64) (int, error) {
			fh, ok := private.(*fileHandle)
			if !ok {
				return 0, fsreg.ErrUnsupported
			}
			if off >= int64(fh.length) {
				return 0, io.EOF
			}
			want := p
			if remain := int64(fh.length) - off; int64(len(want)) > remain {
				want = want[:remain]
			}
			return fh.disk.ReadAt(want, int64(fh.lba)*sectorSize+off)
		},
		Close: func(any) error { return nil },
		Readlink: func(blockio.Disk, any, fsreg.DirEntryInfo) (string, error) {
			return "", fsreg.ErrUnsupported
		},
		UUID: func(blockio.Disk) (string, error) {
			return "", fsreg.ErrUnsupported
		},
		Label: func(disk blockio.Disk) (string, error) {
			pvd := make([]byte, 72)
			if _, err := disk.ReadAt(pvd, pvdSector*sectorSize); err != nil {
				return "", err
			}
			return strings.TrimRight(string(pvd[40:72]), " "), nil
		},
		Mtime: func(blockio.Disk) (time.Time, error) {
			return time.Time{}, fsreg.ErrUnsupported
		},
	}
}

// iterateRaw re-reads a directory's records for OpenChild, which fsreg
// hands a disk but not the live dir buffer IterateDir built.
func iterateRaw(disk blockio.Disk, n *node) iter.Seq2[dirRecord, error] {
	return func(yield func(dirRecord, error) bool) {
		buf := make([]byte, n.length)
		if _, err := disk.ReadAt(buf, int64(n.lba)*sectorSize); err != nil && err != io.EOF {
			yield(dirRecord{}, err)
			return
		}
		off := 0
		for off < len(buf) {
			rec, size, ok := readDirRecord(buf[off:])
			if !ok {
				break
			}
			off += size
			if rec.name == "." || rec.name == ".." {
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func init() {
	fsreg.Register(format())
}
