// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package ntfs registers a probe-only module for NTFS. The boot sector's
// "NTFS    " OEM ID at byte 3 and the BIOS parameter block fields are
// grounded on the widely documented fixed layout. A full $MFT/attribute
// reader (runlists, resident vs non-resident attributes, B+tree
// directory indexes) was judged too large to implement here, so only
// detection and the volume serial number are read.
package ntfs

import (
	"fmt"
	"iter"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

const oemIDOffset = 3

func probe(disk blockio.Disk) error {
	buf := make([]byte, 512)
	n, err := disk.ReadAt(buf, 0)
	if n < 512 {
		if err != nil {
			return err
		}
		return fsreg.ErrUnsupported
	}
	if buf[510] != 0x55 || buf[511] != 0xAA {
		return fsreg.ErrUnsupported
	}
	if string(buf[oemIDOffset:oemIDOffset+8]) != "NTFS    " {
		return fsreg.ErrUnsupported
	}
	return nil
}

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:  "ntfs",
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
			buf := make([]byte, 8)
			if _, err := disk.ReadAt(buf, 0x48); err != nil {
				return "", err
			}
			return fmt.Sprintf("%x", buf), nil
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
