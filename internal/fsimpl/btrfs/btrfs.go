// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package btrfs registers a probe-only module for Btrfs. The superblock
// magic ("_BHRfS_M" at byte offset 0x10040) and the label/UUID field
// offsets are grounded on btrfs-progs-ng's io4_fs.go and
// newbthenewbd-btrfs-rec's mount.go, both present among the retrieved
// references. Btrfs's B-tree-of-B-trees (chunk tree, root tree, fs
// tree) was judged too large to implement here, so only detection, the
// label, and the UUID are read; Open/IterateDir report
// fsreg.ErrUnsupported.
package btrfs

import (
	"bytes"
	"fmt"
	"iter"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

const (
	superblockOffset = 0x10000
	magicOffset      = 64
	magic            = "_BHRfS_M"
)

func probe(disk blockio.Disk) error {
	buf := make([]byte, 8)
	n, err := disk.ReadAt(buf, superblockOffset+magicOffset)
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

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:  "btrfs",
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
		UUID: func(disk blockio.Disk) (string, error) {
			buf := make([]byte, 16)
			if _, err := disk.ReadAt(buf, superblockOffset+32); err != nil {
				return "", err
			}
			return fmt.Sprintf("%x-%x-%x-%x-%x", buf[0:4], buf[4:6], buf[6:8], buf[8:10], buf[10:16]), nil
		},
		Label: func(disk blockio.Disk) (string, error) {
			buf := make([]byte, 256)
			if _, err := disk.ReadAt(buf, superblockOffset+12+125); err != nil {
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
