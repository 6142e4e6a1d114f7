// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package tarcpio registers a single filesystem module covering both tar
// and cpio archives: two on-disk formats that differ only in header
// layout but converge on the same shape, a flat sequence of
// header-then-data records terminated by an end marker, so one probe and
// one build function can serve both.
package tarcpio

import (
	"io"
	"io/fs"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsimpl/fsadapter"
	"github.com/arcfs/corefs/internal/fsreg"
	ttar "github.com/arcfs/corefs/internal/tar"
)

const (
	ustarMagicOffset = 257
	ustarMagic       = "ustar"
)

func probe(disk blockio.Disk) error {
	head := make([]byte, ustarMagicOffset+5)
	n, err := disk.ReadAt(head, 0)
	if n >= 6 {
		switch string(head[:6]) {
		case cpioNewMagic, cpioCRCMagic:
			return nil
		}
	}
	if n >= len(head) && string(head[ustarMagicOffset:ustarMagicOffset+5]) == ustarMagic {
		return nil
	}
	if err != nil && err != io.EOF {
		return err
	}
	return fsreg.ErrUnsupported
}

func build(r io.ReaderAt, _ int64) (fs.FS, error) {
	magic := make([]byte, 6)
	if _, err := r.ReadAt(magic, 0); err != nil && err != io.EOF {
		return nil, err
	}
	switch string(magic) {
	case cpioNewMagic, cpioCRCMagic:
		return newCpio(r), nil
	default:
		return ttar.New(r), nil
	}
}

func init() {
	fsreg.Register(fsadapter.Wrap("tarcpio", probe, build))
}
