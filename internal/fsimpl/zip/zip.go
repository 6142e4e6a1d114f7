// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package zip registers the zip filesystem module, wrapping this module's
// own internal/zip reader (kept verbatim — it already does everything
// a zip module needs: AppleDouble awareness, checksum
// verification, random-access reads of stored/deflated entries).
package zip

import (
	"io"
	"io/fs"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsimpl/fsadapter"
	"github.com/arcfs/corefs/internal/fsreg"
	tzip "github.com/arcfs/corefs/internal/zip"
)

func probe(disk blockio.Disk) error {
	head := make([]byte, 4)
	if _, err := disk.ReadAt(head, 0); err != nil {
		return err
	}
	if string(head) == "PK\x03\x04" {
		return nil
	}
	// an empty archive's only record is the end-of-central-directory
	if string(head) == "PK\x05\x06" {
		return nil
	}
	return fsreg.ErrUnsupported
}

func build(r io.ReaderAt, size int64) (fs.FS, error) {
	return tzip.New(r, size)
}

func init() {
	fsreg.Register(fsadapter.Wrap("zip", probe, build))
}
