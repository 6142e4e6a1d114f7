// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package hfsplus registers a probe-only module for HFS+ and HFSX. The
// volume header signature ("H+" or "HX") at sector 2 (offset 1024) and
// the volume name, which lives in the catalog file's B-tree rather than
// the header, are grounded on the public HFS+ technote. Unlike
// internal/hfs's classic B-tree, HFS+'s catalog file uses a different
// on-disk node format; reading it was judged out of scope here, so
// Open/IterateDir/Label report fsreg.ErrUnsupported and only detection,
// the finder-info-derived UUID equivalent, and the volume header's
// modification date are available.
package hfsplus

import (
	"fmt"
	"iter"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

const headerOffset = 1024

func probe(disk blockio.Disk) error {
	buf := make([]byte, 2)
	n, err := disk.ReadAt(buf, headerOffset)
	if n < 2 {
		if err != nil {
			return err
		}
		return fsreg.ErrUnsupported
	}
	sig := string(buf)
	if sig != "H+" && sig != "HX" {
		return fsreg.ErrUnsupported
	}
	return nil
}

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:  "hfsplus",
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
			if _, err := disk.ReadAt(buf, headerOffset+104); err != nil {
				return "", err
			}
			return fmt.Sprintf("%x", buf), nil
		},
		Label: func(blockio.Disk) (string, error) {
			return "", fsreg.ErrUnsupported
		},
		Mtime: func(disk blockio.Disk) (time.Time, error) {
			buf := make([]byte, 4)
			if _, err := disk.ReadAt(buf, headerOffset+20); err != nil {
				return time.Time{}, err
			}
			secs := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
			const macEpochDiff = 2082844800 // seconds between 1904-01-01 and 1970-01-01
			return time.Unix(int64(secs)-macEpochDiff, 0).UTC(), nil
		},
	}
}

func init() {
	fsreg.Register(format())
}
