// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fsadapter bridges an ordinary io/fs.FS-based archive reader
// (the zip, tar, sit, and classic-hfs packages, each already
// returning an fs.FS over an io.ReaderAt) into the fsreg.Format vtable, so
// those packages need no rewriting to join the core's dispatch surface.
//
// A wrapped fs.FS that also implements readLinkFS (internal/fskeleton
// does) gets real per-entry symlink support: IterateDir reports the
// fs.ModeSymlink bit off the entry's FileInfo, and Readlink calls through
// to the wrapped ReadLink. An fs.FS without that method simply never
// reports symlinks, which is accurate for formats with no such concept.
package fsadapter

import (
	"fmt"
	"io"
	"io/fs"
	"iter"
	gopath "path"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

type mountState struct {
	fsys fs.FS
	path string // "." for root, else fs.FS-relative and fs.ValidPath-clean
}

type fileState struct {
	f fs.File
}

// diskReaderAt exposes the whole of a Disk as a plain io.ReaderAt sized by
// its sector geometry, the form every wrapped archive reader's New/New2
// constructor expects.
type diskReaderAt struct {
	d    blockio.Disk
	size int64
}

func (r diskReaderAt) ReadAt(p []byte, off int64) (int, error) { return r.d.ReadAt(p, off) }

func sizeOf(d blockio.Disk) int64 {
	if bs, ok := d.(interface{ ByteSize() int64 }); ok {
		return bs.ByteSize()
	}
	return d.Sectors() << d.Log2SectorSize()
}

// readLinkFS is satisfied by internal/fskeleton.FS among others.
type readLinkFS interface {
	ReadLink(name string) (string, error)
}

// Wrap returns a fsreg.Format named name. probe performs the module's
// magic check; build parses the whole disk (as an io.ReaderAt) into an
// fs.FS, called once per mount from OpenRoot.
func Wrap(name string, probe func(disk blockio.Disk) error, build func(r io.ReaderAt, size int64) (fs.FS, error)) *fsreg.Format {
	return &fsreg.Format{
		Name:  name,
		Probe: probe,
		OpenRoot: func(disk blockio.Disk) (any, error) {
			fsys, err := build(diskReaderAt{disk, sizeOf(disk)}, sizeOf(disk))
			if err != nil {
				return nil, err
			}
			return &mountState{fsys: fsys, path: "."}, nil
		},
		IterateDir: func(_ blockio.Disk, private any) iter.Seq2[fsreg.DirEntryInfo, error] {
			ms := private.(*mountState)
			return func(yield func(fsreg.DirEntryInfo, error) bool) {
				entries, err := fs.ReadDir(ms.fsys, ms.path)
				if err != nil {
					yield(fsreg.DirEntryInfo{}, err)
					return
				}
				for _, e := range entries {
					info, err := e.Info()
					if err != nil {
						if !yield(fsreg.DirEntryInfo{}, err) {
							return
						}
						continue
					}
					var mtimeSet bool
					if !info.ModTime().IsZero() {
						mtimeSet = true
					}
					d := fsreg.DirEntryInfo{
						Name:      e.Name(),
						IsDir:     e.IsDir(),
						IsSymlink: info.Mode()&fs.ModeSymlink != 0,
						MtimeSet:  mtimeSet,
						Mtime:     info.ModTime(),
						Size:      info.Size(),
					}
					if !yield(d, nil) {
						return
					}
				}
			}
		},
		OpenChild: func(_ blockio.Disk, private any, entry fsreg.DirEntryInfo) (any, error) {
			ms := private.(*mountState)
			childPath := entry.Name
			if ms.path != "." {
				childPath = gopath.Join(ms.path, entry.Name)
			}
			if entry.IsDir {
				return &mountState{fsys: ms.fsys, path: childPath}, nil
			}
			f, err := ms.fsys.Open(childPath)
			if err != nil {
				return nil, err
			}
			return &fileState{f: f}, nil
		},
		Read: func(_ *fsreg.Handle, private any, p []byte, off int64) (int, error) {
			fst, ok := private.(*fileState)
			if !ok {
				return 0, fmt.Errorf("fsadapter: read called on a directory")
			}
			if ra, ok := fst.f.(io.ReaderAt); ok {
				return ra.ReadAt(p, off)
			}
			seeker, ok := fst.f.(io.Seeker)
			if !ok {
				return 0, fmt.Errorf("fsadapter: %w: underlying file supports neither ReadAt nor Seek", fsreg.ErrUnsupported)
			}
			if _, err := seeker.Seek(off, io.SeekStart); err != nil {
				return 0, err
			}
			return fst.f.Read(p)
		},
		Close: func(private any) error {
			if fst, ok := private.(*fileState); ok {
				return fst.f.Close()
			}
			return nil
		},
		Readlink: func(_ blockio.Disk, private any, entry fsreg.DirEntryInfo) (string, error) {
			ms := private.(*mountState)
			rl, ok := ms.fsys.(readLinkFS)
			if !ok {
				return "", fsreg.ErrUnsupported
			}
			childPath := entry.Name
			if ms.path != "." {
				childPath = gopath.Join(ms.path, entry.Name)
			}
			return rl.ReadLink(childPath)
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
