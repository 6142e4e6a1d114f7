// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package exfat registers the exFAT filesystem module. It mounts through
// the same github.com/soypat/fat library as fsimpl/fat — the library
// already distinguishes exFAT's boot sector and routes directory/file
// operations through its own exFAT code paths internally, so no separate
// dependency is needed, only a distinct probe (the "EXFAT   " OEM ID) and
// registration ahead of plain FAT per the dispatch order.
//
// Some exFAT-specific operations (documented as TODOs upstream, mostly
// around very large files and certain metadata fields) are narrower than
// FAT12/16/32 support in the same library; callers hitting one see
// whatever error soypat/fat itself returns.
package exfat

import (
	"io"
	"iter"
	gopath "path"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
	soypatfat "github.com/soypat/fat"
)

type blockDevice struct {
	d         blockio.Disk
	blockSize int
}

func (bd *blockDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	return bd.d.ReadAt(dst, startBlock*int64(bd.blockSize))
}
func (bd *blockDevice) WriteBlocks([]byte, int64) (int, error) { return 0, fsreg.ErrUnsupported }
func (bd *blockDevice) EraseBlocks(int64, int64) error         { return fsreg.ErrUnsupported }

type node struct {
	fsys *soypatfat.FS
	path string
}

type fileHandle struct {
	n    *node
	path string
	f    *soypatfat.File
	pos  int64
}

const oemIDOffset = 3

func probe(disk blockio.Disk) error {
	boot := make([]byte, 512)
	n, err := disk.ReadAt(boot, 0)
	if n < 512 {
		if err != nil {
			return err
		}
		return fsreg.ErrUnsupported
	}
	if boot[510] != 0x55 || boot[511] != 0xAA {
		return fsreg.ErrUnsupported
	}
	if string(boot[oemIDOffset:oemIDOffset+8]) != "EXFAT   " {
		return fsreg.ErrUnsupported
	}
	return nil
}

func mountSectorSize(disk blockio.Disk) int {
	// exFAT stores the sector-size shift (log2) at byte 108 of the boot
	// sector rather than a byte count as FAT12/16/32 does.
	boot := make([]byte, 109)
	if _, err := disk.ReadAt(boot, 0); err != nil {
		return 512
	}
	shift := boot[108]
	if shift == 0 || shift > 12 {
		return 512
	}
	return 1 << shift
}

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:  "exfat",
		Probe: probe,
		OpenRoot: func(disk blockio.Disk) (any, error) {
			ss := mountSectorSize(disk)
			fsys := &soypatfat.FS{}
			bd := &blockDevice{d: disk, blockSize: ss}
			if err := fsys.Mount(bd, ss, soypatfat.ModeRead); err != nil {
				return nil, err
			}
			return &node{fsys: fsys, path: "/"}, nil
		},
		IterateDir: func(_ blockio.Disk, private any) iter.Seq2[fsreg.DirEntryInfo, error] {
			n := private.(*node)
			return func(yield func(fsreg.DirEntryInfo, error) bool) {
				var dir soypatfat.Dir
				if err := n.fsys.OpenDir(&dir, n.path); err != nil {
					yield(fsreg.DirEntryInfo{}, err)
					return
				}
				err := dir.ForEachFile(func(fi *soypatfat.FileInfo) error {
					d := fsreg.DirEntryInfo{
						Name:     fi.Name(),
						IsDir:    fi.IsDir(),
						MtimeSet: true,
						Mtime:    fi.ModTime(),
						Size:     fi.Size(),
					}
					if !yield(d, nil) {
						return io.EOF
					}
					return nil
				})
				if err != nil && err != io.EOF {
					yield(fsreg.DirEntryInfo{}, err)
				}
			}
		},
		OpenChild: func(_ blockio.Disk, private any, entry fsreg.DirEntryInfo) (any, error) {
			n := private.(*node)
			childPath := gopath.Join(n.path, entry.Name)
			if entry.IsDir {
				return &node{fsys: n.fsys, path: childPath}, nil
			}
			return &fileHandle{n: n, path: childPath}, nil
		},
		Read: func(_ *fsreg.Handle, private any, p []byte, off int64) (int, error) {
			fh := private.(*fileHandle)
			if err := fh.ensure(off); err != nil {
				return 0, err
			}
			total := 0
			for total < len(p) {
				n, err := fh.f.Read(p[total:])
				total += n
				fh.pos += int64(n)
				if err != nil {
					return total, err
				}
				if n == 0 {
					break
				}
			}
			return total, nil
		},
		Close: func(private any) error {
			if fh, ok := private.(*fileHandle); ok && fh.f != nil {
				return fh.f.Close()
			}
			return nil
		},
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

func (fh *fileHandle) ensure(off int64) error {
	if fh.f == nil || off < fh.pos {
		if fh.f != nil {
			fh.f.Close()
		}
		fh.f = &soypatfat.File{}
		if err := fh.n.fsys.OpenFile(fh.f, fh.path, soypatfat.ModeRead); err != nil {
			return err
		}
		fh.pos = 0
	}
	var discard [4096]byte
	for fh.pos < off {
		want := off - fh.pos
		if want > int64(len(discard)) {
			want = int64(len(discard))
		}
		n, err := fh.f.Read(discard[:want])
		fh.pos += int64(n)
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	fsreg.Register(format())
}
