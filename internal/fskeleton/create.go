// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fskeleton attempts to factor out the common and error-prone code in different [io/fs.FS] implementations.
// Notably, it is only useful for static filesystems where
// the whole directory tree and all metadata is known in advance.
//
// The Create* calls may race with readers: a lookup of a path that does
// not exist yet blocks until the filesystem is complete (NoMore), and a
// directory listing blocks until that directory can no longer grow, so a
// lazily-populated archive never serves a partial answer as if it were
// final.
package fskeleton

import (
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/arcfs/corefs/internal/internpath"
)

func New() *FS {
	fsys := &FS{lists: make(map[internpath.Path]uint32)}
	fsys.cond.L = &fsys.mu
	fsys.files = []f{{mode: typeImplicitDir}}
	fsys.lists[internpath.Path{}] = 0
	return fsys
}

// Mkdir creates a directory. Directories created implicitly (as the
// parent of some other entry) may be made explicit, once, this way; id is
// the iteration-order key reported by Walk and FileInfo.ID.
func (fsys *FS) Mkdir(name string, id int64, perm fs.FileMode, mtime time.Time) error {
	return fsys.add(name, id, typeDir|permsFromStdlib(perm), mtime, 0, nil)
}

// CreateReader creates a regular file whose content comes from a freshly
// opened sequential reader per Open call.
func (fsys *FS) CreateReader(name string, id int64, open func() (io.Reader, error), size int64, perm fs.FileMode, mtime time.Time) error {
	return fsys.add(name, id, typeRegular|permsFromStdlib(perm), mtime, size, open)
}

// CreateReadCloser is CreateReader for openers whose reader needs closing.
func (fsys *FS) CreateReadCloser(name string, id int64, open func() (io.ReadCloser, error), size int64, perm fs.FileMode, mtime time.Time) error {
	return fsys.add(name, id, typeRegular|permsFromStdlib(perm), mtime, size, open)
}

// CreateReaderAt creates a regular file with random access; the opened
// file additionally satisfies io.ReaderAt and io.Seeker.
func (fsys *FS) CreateReaderAt(name string, id int64, r io.ReaderAt, size int64, perm fs.FileMode, mtime time.Time) error {
	return fsys.add(name, id, typeRegular|permsFromStdlib(perm), mtime, size, r)
}

// CreateError creates a regular file whose reads fail with failure, for
// archive members that are listed but unreadable (an unsupported
// compression method, say) — the listing stays complete and the error
// surfaces only when someone actually wants the bytes.
func (fsys *FS) CreateError(name string, id int64, failure error, size int64, perm fs.FileMode, mtime time.Time) error {
	return fsys.add(name, id, typeRegular|permsFromStdlib(perm), mtime, size, failure)
}

// Symlink creates a symbolic link. target is root-relative and must
// satisfy fs.ValidPath; CleanLinkTarget converts a Unix-convention
// link-relative target into this form.
func (fsys *FS) Symlink(name string, id int64, target string, perm fs.FileMode, mtime time.Time) error {
	if !fs.ValidPath(target) {
		return fs.ErrInvalid
	}
	return fsys.add(name, id, typeLink|permsFromStdlib(perm), mtime, 0, internpath.New(target))
}

func (fsys *FS) add(name string, id int64, m mode, mtime time.Time, size int64, data any) error {
	if !fs.ValidPath(name) {
		return fs.ErrInvalid
	}
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	if fsys.done {
		return fs.ErrClosed
	}
	defer fsys.cond.Broadcast()

	if name == "." {
		// only Mkdir may make the root explicit
		if m.Type() != typeDir {
			return fs.ErrExist
		}
		root := &fsys.files[0]
		if root.mode.Type() != typeImplicitDir {
			return fs.ErrExist
		}
		root.mode = m | root.mode&dirComplete
		root.time = timeFromStdlib(mtime)
		root.id = id
		return nil
	}

	parent := uint32(0)
	key := internpath.Path{}
	comps := strings.Split(name, "/")
	for _, c := range comps[:len(comps)-1] {
		key = key.Join(c)
		if idx, ok := fsys.lists[key]; ok {
			if !fsys.files[idx].mode.IsDir() {
				return fs.ErrExist
			}
			parent = idx
		} else {
			parent = fsys.grow(parent, f{name: key, mode: typeImplicitDir})
		}
	}

	key = key.Join(comps[len(comps)-1])
	if idx, ok := fsys.lists[key]; ok {
		if m.Type() == typeDir && fsys.files[idx].mode.Type() == typeImplicitDir {
			ff := &fsys.files[idx]
			ff.mode = m | ff.mode&dirComplete
			ff.time = timeFromStdlib(mtime)
			ff.id = id
			return nil
		}
		return fs.ErrExist
	}

	nu := f{name: key, mode: m, time: timeFromStdlib(mtime), id: id, data: data}
	if m.Type() == typeRegular {
		if size == SizeUnknown {
			nu.mode |= bornSizeUnknown
		}
		nu.lastChild = packFileSize(size)
	}
	fsys.grow(parent, nu)
	return nil
}

// grow appends nu, indexes it, and links it onto parent's child chain.
func (fsys *FS) grow(parent uint32, nu f) uint32 {
	idx := uint32(len(fsys.files))
	fsys.files = append(fsys.files, nu)
	fsys.lists[nu.name] = idx
	p := &fsys.files[parent]
	if p.firstChild == 0 {
		p.firstChild, p.lastChild = idx, idx
	} else {
		fsys.files[p.lastChild].sibling = idx
		p.lastChild = idx
	}
	return idx
}

// NoMore declares the filesystem complete: every pending lookup and
// listing unblocks, and further Create* calls fail with fs.ErrClosed.
func (fsys *FS) NoMore() {
	fsys.mu.Lock()
	fsys.done = true
	fsys.cond.Broadcast()
	fsys.mu.Unlock()
}

// NoMoreChildren declares one directory complete without closing the
// whole filesystem, unblocking listings of it.
func (fsys *FS) NoMoreChildren(name string) error {
	if !fs.ValidPath(name) {
		return fs.ErrInvalid
	}
	fsys.mu.Lock()
	defer fsys.mu.Unlock()
	key, _ := internpath.TryMake(name)
	idx, ok := fsys.lists[key]
	if !ok {
		return fs.ErrNotExist
	}
	if !fsys.files[idx].mode.IsDir() {
		return fs.ErrInvalid
	}
	fsys.files[idx].mode |= dirComplete
	fsys.cond.Broadcast()
	return nil
}
