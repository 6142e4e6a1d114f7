// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package tarcpio

import (
	"fmt"
	"io"
	"io/fs"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/arcfs/corefs/internal/fskeleton"
)

// cpioNewMagic and cpioCRCMagic identify the "newc" format (the layout
// every modern cpio writer defaults to) and its checksummed sibling. The
// older binary and "odc" ASCII-octal formats are not handled.
const (
	cpioNewMagic = "070701"
	cpioCRCMagic = "070702"

	cpioHeaderLen = 110
	cpioTrailer   = "TRAILER!!!"

	modeTypeMask = 0o170000
	modeDir      = 0o040000
	modeSymlink  = 0o120000
)

type cpioHeader struct {
	mode     uint32
	mtime    int64
	filesize int64
	namesize uint32
}

func parseCpioHeader(block []byte) cpioHeader {
	field := func(i int) uint32 {
		v, _ := strconv.ParseUint(string(block[6+i*8:6+i*8+8]), 16, 32)
		return uint32(v)
	}
	return cpioHeader{
		mode:     field(1),
		mtime:    int64(field(5)),
		filesize: int64(field(6)),
		namesize: field(11),
	}
}

func align4(n int64) int64 { return (n + 3) &^ 3 }

// newCpio lazily parses a newc-format cpio archive into an fskeleton.FS,
// the same background-populate idiom the tar reader uses.
func newCpio(r io.ReaderAt) fs.FS {
	fsys := fskeleton.New()
	go populateCpio(fsys, r)
	return fsys
}

func populateCpio(fsys *fskeleton.FS, r io.ReaderAt) error {
	defer fsys.NoMore()

	off := int64(0)
	for {
		block := make([]byte, cpioHeaderLen)
		n, err := r.ReadAt(block, off)
		if n < cpioHeaderLen {
			if err == io.EOF {
				return nil
			}
			return err
		}
		magic := string(block[:6])
		if magic != cpioNewMagic && magic != cpioCRCMagic {
			return fmt.Errorf("tarcpio: unrecognized cpio header magic %q at offset %d", magic, off)
		}
		hdr := parseCpioHeader(block)

		nameOff := off + cpioHeaderLen
		nameBuf := make([]byte, hdr.namesize)
		if hdr.namesize > 0 {
			if _, err := r.ReadAt(nameBuf, nameOff); err != nil && err != io.EOF {
				return err
			}
		}
		name := strings.TrimRight(string(nameBuf), "\x00")

		dataOff := align4(nameOff + int64(hdr.namesize))
		nextOff := align4(dataOff + hdr.filesize)

		if name == cpioTrailer {
			return nil
		}

		cleanPath := strings.TrimLeft(path.Clean(name), "/")
		if cleanPath == "" || cleanPath == "." {
			off = nextOff
			continue
		}

		mtime := time.Unix(hdr.mtime, 0)
		perm := fs.FileMode(hdr.mode & 0o777)

		switch hdr.mode & modeTypeMask {
		case modeDir:
			fsys.Mkdir(cleanPath, off, perm, mtime)
		case modeSymlink:
			targetBuf := make([]byte, hdr.filesize)
			if _, err := r.ReadAt(targetBuf, dataOff); err != nil && err != io.EOF {
				return err
			}
			targ := path.Join(cleanPath, "..", string(targetBuf))
			if targ == ".." || strings.HasPrefix(targ, "../") {
				targ = ""
			}
			fsys.Symlink(cleanPath, off, targ, perm, mtime)
		default:
			fsys.CreateReaderAt(cleanPath, dataOff, io.NewSectionReader(r, dataOff, hdr.filesize), hdr.filesize, perm, mtime)
		}

		off = nextOff
	}
}
