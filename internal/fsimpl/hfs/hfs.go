// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package hfs registers the classic Macintosh Hierarchical File System
// module (not HFS+), wrapping the internal/hfs B-tree reader.
package hfs

import (
	"encoding/binary"
	"io"
	"io/fs"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsimpl/fsadapter"
	"github.com/arcfs/corefs/internal/fsreg"
	thfs "github.com/arcfs/corefs/internal/hfs"
)

// probe applies the boot-block heuristic: classic
// HFS has no reliable file extension, a magic number offset by 1KB, and a
// boot block that is either truly blank, disabled, or stamped with Larry
// Kenyon's initials. The "H+" HFS+ wrapper signature is explicitly
// excluded so hfsplus, registered earlier, owns that case.
func probe(disk blockio.Disk) error {
	boot := make([]byte, 16)
	if _, err := disk.ReadAt(boot, 0); err != nil {
		return err
	}
	blank := true
	for _, b := range boot {
		if b != 0 {
			blank = false
			break
		}
	}
	looksLikeBootBlock := blank ||
		(boot[0] == 'L' && boot[1] == 'K' && boot[2] == 0x60) ||
		(boot[0] == 0 && boot[1] == 0 && boot[2] == 0x60)
	if !looksLikeBootBlock {
		return fsreg.ErrUnsupported
	}

	mdb := make([]byte, 128)
	n, err := disk.ReadAt(mdb, 1024)
	if n != len(mdb) {
		if err != nil {
			return err
		}
		return fsreg.ErrUnsupported
	}
	if string(mdb[:2]) != "BD" || string(mdb[0x7c:0x7e]) == "H+" {
		return fsreg.ErrUnsupported
	}
	drAlBlkSiz := binary.BigEndian.Uint32(mdb[0x14:])
	if drAlBlkSiz == 0 || drAlBlkSiz%512 != 0 {
		return fsreg.ErrUnsupported
	}
	return nil
}

func build(r io.ReaderAt, _ int64) (fs.FS, error) {
	return thfs.New(r)
}

func init() {
	fsreg.Register(fsadapter.Wrap("hfs", probe, build))
}
