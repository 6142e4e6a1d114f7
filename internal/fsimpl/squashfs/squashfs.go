// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package squashfs registers a probe-only module for SquashFS. The
// superblock magic, block size, and compression-id fields are grounded
// on distr1/squashfs-writer's superblock struct (present among the
// retrieved references) and the public SquashFS 4.0 on-disk format
// documentation. SquashFS's metadata-block and fragment-table scheme
// for directories was judged too large to implement here, so only
// detection and the superblock's creation time (as Mtime) are read; Open/IterateDir
// report fsreg.ErrUnsupported.
package squashfs

import (
	"encoding/binary"
	"iter"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

const magic = 0x73717368 // "hsqs" little-endian

func probe(disk blockio.Disk) error {
	buf := make([]byte, 4)
	n, err := disk.ReadAt(buf, 0)
	if n < 4 {
		if err != nil {
			return err
		}
		return fsreg.ErrUnsupported
	}
	if binary.LittleEndian.Uint32(buf) != magic {
		return fsreg.ErrUnsupported
	}
	return nil
}

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:  "squashfs",
		Probe: probe,
		OpenRoot: func(blockio.Disk) (any, error) {
			return nil, fsreg.ErrUnsupported
		},
		IterateDir: func(blockio.Disk, any) iter.Seq2[fsreg.DirEntryInfo, error] {
			return func(yield func(fsreg.DirEntryInfo, error) bool) {
				yield(fsreg.DirEntryInfo{}, fsreg.ErrUnsupported)
			}
		},
		OpenChild: func(blockio.Disk, any, fsreg.DirEntryInfo) (any, error) {
			return nil, fsreg.ErrUnsupported
		},
		Read: func(*fsreg.Handle, any, []byte, int64) (int, error) {
			return 0, fsreg.ErrUnsupported
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
		Mtime: func(disk blockio.Disk) (time.Time, error) {
			buf := make([]byte, 4)
			if _, err := disk.ReadAt(buf, 8); err != nil {
				return time.Time{}, err
			}
			return time.Unix(int64(binary.LittleEndian.Uint32(buf)), 0).UTC(), nil
		},
	}
}

func init() {
	fsreg.Register(format())
}
