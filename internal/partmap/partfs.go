// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package partmap

import (
	"io"
	"io/fs"
	"strconv"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
)

// PartitionFile presents one recognized partition as a plain regular file,
// named by its 1-based Number, so the core's burrow mechanism can recurse
// into it exactly as it would any other file (an ISO image inside an MBR
// slot gets probed for a filesystem the same way a zip inside a directory
// does), the same role internal/apm.New's result plays for
// Apple Partition Map slots.
type PartitionFile struct {
	Disk blockio.Disk
	Off  int64 // start, in bytes
}

func (f *PartitionFile) ReadAt(p []byte, off int64) (int, error) { return f.Disk.ReadAt(p, off) }

// AsFS returns an fs.FS listing parts by 1-based number ("1", "2", ...),
// each a regular file over the partition's own byte range.
func AsFS(parts []*blockio.Partition, mkDisk func(*blockio.Partition) (blockio.Disk, error)) fs.FS {
	return &partFS{parts: parts, mkDisk: mkDisk}
}

type partFS struct {
	parts  []*blockio.Partition
	mkDisk func(*blockio.Partition) (blockio.Disk, error)
}

func (p *partFS) Open(name string) (fs.File, error) {
	if name == "." {
		return &partDir{p: p}, nil
	}
	n, err := strconv.Atoi(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	for _, part := range p.parts {
		if part.Number == n {
			d, err := p.mkDisk(part)
			if err != nil {
				return nil, err
			}
			return &partFile{name: name, d: d}, nil
		}
	}
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
}

type partDirEntry struct{ number int }

func (e partDirEntry) Name() string               { return strconv.Itoa(e.number) }
func (e partDirEntry) IsDir() bool                 { return false }
func (e partDirEntry) Type() fs.FileMode           { return 0 }
func (e partDirEntry) Info() (fs.FileInfo, error)  { return partInfo{e.number}, nil }

type partInfo struct{ number int }

func (i partInfo) Name() string       { return strconv.Itoa(i.number) }
func (i partInfo) Size() int64        { return 0 }
func (i partInfo) Mode() fs.FileMode  { return 0o444 }
func (i partInfo) ModTime() time.Time { return time.Time{} }
func (i partInfo) IsDir() bool        { return false }
func (i partInfo) Sys() any           { return nil }

type partDir struct {
	p    *partFS
	seek int
}

func (d *partDir) Stat() (fs.FileInfo, error) { return dirInfo{}, nil }

func (d *partDir) Close() error { return nil }
func (d *partDir) Read([]byte) (int, error)   { return 0, io.EOF }

func (d *partDir) ReadDir(n int) ([]fs.DirEntry, error) {
	remaining := len(d.p.parts) - d.seek
	if remaining == 0 && n > 0 {
		return nil, io.EOF
	}
	if n > 0 && remaining > n {
		remaining = n
	}
	out := make([]fs.DirEntry, remaining)
	for i := range out {
		out[i] = partDirEntry{d.p.parts[d.seek+i].Number}
	}
	d.seek += remaining
	return out, nil
}

type partFile struct {
	name string
	d    blockio.Disk
	seek int64
}

func (f *partFile) size() int64 { return f.d.Sectors() << f.d.Log2SectorSize() }

func (f *partFile) Stat() (fs.FileInfo, error) {
	return simpleInfo{name: f.name, size: f.size()}, nil
}
func (f *partFile) Close() error { return nil }
func (f *partFile) Read(p []byte) (int, error) {
	n, err := f.d.ReadAt(p, f.seek)
	f.seek += int64(n)
	return n, err
}
func (f *partFile) ReadAt(p []byte, off int64) (int, error) { return f.d.ReadAt(p, off) }

type dirInfo struct{}

func (dirInfo) Name() string       { return "." }
func (dirInfo) Size() int64        { return 0 }
func (dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o555 }
func (dirInfo) ModTime() time.Time { return time.Time{} }
func (dirInfo) IsDir() bool        { return true }
func (dirInfo) Sys() any           { return nil }

type simpleInfo struct {
	name string
	size int64
}

func (i simpleInfo) Name() string       { return i.name }
func (i simpleInfo) Size() int64        { return i.size }
func (i simpleInfo) Mode() fs.FileMode  { return 0o444 }
func (i simpleInfo) ModTime() time.Time { return time.Time{} }
func (i simpleInfo) IsDir() bool        { return false }
func (i simpleInfo) Sys() any           { return nil }
