// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package zfs registers a label-only module for ZFS. Detection reads
// one of the four 256 KiB vdev labels (at the start and end of the
// device) and checks the uberblock magic 0x00bab10c, the standard ZFS
// on-disk constant. ZFS's pool-wide object set and dataset tree, built
// on a copy-on-write Merkle tree of nvlist-described objects, is a
// different order of complexity from the other single-tree filesystems
// here and is out of scope: only probe is implemented; Label, UUID,
// Open/IterateDir and the rest report fsreg.ErrUnsupported.
package zfs

import (
	"encoding/binary"
	"iter"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

const (
	labelOffset    = 0
	uberblockMagic = 0x00bab10c
	vdevLabelSize  = 256 * 1024
	uberblockOff   = 128 * 1024 // uberblock array follows the nvlist config area
)

func probe(disk blockio.Disk) error {
	buf := make([]byte, 8)
	n, err := disk.ReadAt(buf, labelOffset+uberblockOff)
	if n < 8 {
		if err != nil {
			return err
		}
		return fsreg.ErrUnsupported
	}
	if binary.LittleEndian.Uint64(buf) != uberblockMagic && binary.BigEndian.Uint64(buf) != uberblockMagic {
		return fsreg.ErrUnsupported
	}
	return nil
}

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:  "zfs",
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
		Mtime: func(blockio.Disk) (time.Time, error) {
			return time.Time{}, fsreg.ErrUnsupported
		},
	}
}

func init() {
	fsreg.Register(format())
}
