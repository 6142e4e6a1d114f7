// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package sit registers the legacy StuffIt (.sit) archive module,
// wrapping the internal/sit reader: StuffIt
// Classic, SIT5, and the Arsenic variant are all already handled there.
package sit

import (
	"io"
	"io/fs"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsimpl/fsadapter"
	"github.com/arcfs/corefs/internal/fsreg"
	tsit "github.com/arcfs/corefs/internal/sit"
)

func probe(disk blockio.Disk) error {
	head := make([]byte, 80)
	n, err := disk.ReadAt(head, 0)
	if n < 22 {
		if err != nil {
			return err
		}
		return fsreg.ErrUnsupported
	}
	if head[0] == 'S' && string(head[10:14]) == "rLau" {
		return nil
	}
	if n == 80 && string(head[0:16]) == "StuffIt (c)1997-" {
		return nil
	}
	return fsreg.ErrUnsupported
}

func build(r io.ReaderAt, _ int64) (fs.FS, error) {
	return tsit.New(r)
}

func init() {
	fsreg.Register(fsadapter.Wrap("sit", probe, build))
}
