// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fat registers the FAT12/FAT16/FAT32 filesystem module, mounting
// every disk through github.com/soypat/fat — a small, dependency-free FatFs
// port that exposes Mount/OpenDir/OpenFile/Read over a block-device
// interface rather than io/fs.FS, so it is wired directly against
// fsreg.Format instead of through fsadapter.
package fat

import (
	"io"
	"iter"
	gopath "path"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
	soypatfat "github.com/soypat/fat"
)

// blockDevice adapts a blockio.Disk (byte-addressable) to the
// block-addressed interface soypat/fat mounts against.
type blockDevice struct {
	d         blockio.Disk
	blockSize int
}

func (bd *blockDevice) ReadBlocks(dst []byte, startBlock int64) (int, error) {
	return bd.d.ReadAt(dst, startBlock*int64(bd.blockSize))
}

func (bd *blockDevice) WriteBlocks([]byte, int64) (int, error) {
	return 0, fsreg.ErrUnsupported
}

func (bd *blockDevice) EraseBlocks(int64, int64) error {
	return fsreg.ErrUnsupported
}

// node is an open directory: the mounted volume plus its absolute,
// slash-separated path within it.
type node struct {
	fsys *soypatfat.FS
	path string
}

// fileHandle tracks the soypat/fat *File backing a regular file along with
// its current read position, since the library exposes only sequential
// Read with no Seek. A read that lands behind the current position
// reopens the file and discards forward to the target offset.
type fileHandle struct {
	n    *node
	path string
	f    *soypatfat.File
	pos  int64
}

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
	bytesPerSector := int(boot[11]) | int(boot[12])<<8
	sectorsPerCluster := boot[13]
	reservedSectors := int(boot[14]) | int(boot[15])<<8
	switch bytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return fsreg.ErrUnsupported
	}
	if sectorsPerCluster == 0 || reservedSectors == 0 {
		return fsreg.ErrUnsupported
	}
	return nil
}

func mountSectorSize(disk blockio.Disk) int {
	boot := make([]byte, 13)
	if _, err := disk.ReadAt(boot, 0); err != nil {
		return 512
	}
	bps := int(boot[11]) | int(boot[12])<<8
	if bps == 0 {
		return 512
	}
	return bps
}

func format() *fsreg.Format {
	return &fsreg.Format{
		Name:  "fat",
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
						Name:              fi.Name(),
						IsDir:             fi.IsDir(),
						IsCaseInsensitive: true,
						MtimeSet:          true,
						Mtime:             fi.ModTime(),
						Size:              fi.Size(),
					}
					if !yield(d, nil) {
						return io.EOF // only signal used to stop iteration early
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
