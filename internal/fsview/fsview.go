// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fsview bridges a mounted fsreg.Format back into an ordinary
// io/fs.FS, the direction fsimpl/fsadapter does not cover. corefs's path
// walker, glob, prefetch, and caching layers are all written against
// io/fs.FS (the idiom throughout path.go/open.go/stat.go);
// fsview is the seam that lets any of the nineteen fsimpl modules present
// itself the same way a burrowed zip or tar file already does.
package fsview

import (
	"io"
	"io/fs"
	gopath "path"
	"strings"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

// New mounts format on disk and returns it as an fs.FS. Mounting (OpenRoot)
// happens once, eagerly, since every caller immediately needs a root
// directory state to resolve against.
func New(disk blockio.Disk, format *fsreg.Format) (fs.FS, error) {
	root, err := format.OpenRoot(disk)
	if err != nil {
		return nil, err
	}
	return &mount{disk: disk, format: format, root: root}, nil
}

type mount struct {
	disk   blockio.Disk
	format *fsreg.Format
	root   any
}

// UUID, Label, Mtime pass straight through to the format; callers that
// need a disk-level detail unavailable from a plain fs.FS (the
// filesystem descriptor fields) type-assert back down to these.
func (m *mount) UUID() (string, error)          { return m.format.UUID(m.disk) }
func (m *mount) Label() (string, error)         { return m.format.Label(m.disk) }
func (m *mount) Mtime() (time.Time, error)      { return m.format.Mtime(m.disk) }
func (m *mount) FormatName() string             { return m.format.Name }

func (m *mount) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	dirPriv, entry, err := m.resolve(name, 0)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if entry.IsDir {
		// the root is its own private state; anything else is opened out
		// of its containing directory
		priv := dirPriv
		if entry.Name != "." {
			priv, err = m.format.OpenChild(m.disk, dirPriv, entry)
			if err != nil {
				return nil, &fs.PathError{Op: "open", Path: name, Err: err}
			}
		}
		return &dirFile{m: m, priv: priv, name: gopath.Base(name), entry: entry}, nil
	}
	f, err := m.format.OpenChild(m.disk, dirPriv, entry)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return &regFile{m: m, priv: f, name: gopath.Base(name), entry: entry}, nil
}

const maxSymlinkDepth = 8

// resolve walks name to its containing directory's private state plus the
// final entry's DirEntryInfo, stopping one component short so Open can
// distinguish "is a directory" from "file content handle" without opening
// twice. Symlinks are followed on every component, the final one
// included, bounded to maxSymlinkDepth hops across the whole walk; Open
// is never handed an unresolved symlink entry.
func (m *mount) resolve(name string, depth int) (any, fsreg.DirEntryInfo, error) {
	if name == "." {
		return m.root, fsreg.DirEntryInfo{IsDir: true, Name: "."}, nil
	}
	dir := gopath.Dir(name)
	base := gopath.Base(name)

	var dirPriv any
	if dir == "." {
		dirPriv = m.root
	} else {
		var dirEntry fsreg.DirEntryInfo
		var err error
		dirPriv, dirEntry, err = m.resolveDir(dir, depth)
		if err != nil {
			return nil, fsreg.DirEntryInfo{}, err
		}
		if !dirEntry.IsDir {
			return nil, fsreg.DirEntryInfo{}, fs.ErrNotExist
		}
	}

	entry, ok, err := findChild(m.disk, m.format, dirPriv, base)
	if err != nil {
		return nil, fsreg.DirEntryInfo{}, err
	}
	if !ok {
		return nil, fsreg.DirEntryInfo{}, fs.ErrNotExist
	}
	if entry.IsSymlink {
		if depth >= maxSymlinkDepth {
			return nil, fsreg.DirEntryInfo{}, fs.ErrInvalid
		}
		target, err := m.format.Readlink(m.disk, dirPriv, entry)
		if err != nil {
			return nil, fsreg.DirEntryInfo{}, err
		}
		return m.resolve(linkTarget(dir, target), depth+1)
	}
	return dirPriv, entry, nil
}

// resolveDir resolves name (known to denote a directory) all the way down
// to its own private state, following symlinks met along the way. depth
// counts symlink hops across the whole walk, recursion included, so a
// link cycle fails with fs.ErrInvalid at maxSymlinkDepth instead of
// recursing without bound.
func (m *mount) resolveDir(name string, depth int) (any, fsreg.DirEntryInfo, error) {
	priv := m.root
	info := fsreg.DirEntryInfo{IsDir: true}
	if name == "." {
		return priv, info, nil
	}
	walked := "."
	for _, comp := range splitPath(name) {
		entry, ok, err := findChild(m.disk, m.format, priv, comp)
		if err != nil {
			return nil, fsreg.DirEntryInfo{}, err
		}
		if !ok {
			return nil, fsreg.DirEntryInfo{}, fs.ErrNotExist
		}
		if entry.IsSymlink {
			if depth >= maxSymlinkDepth {
				return nil, fsreg.DirEntryInfo{}, fs.ErrInvalid
			}
			depth++
			target, err := m.format.Readlink(m.disk, priv, entry)
			if err != nil {
				return nil, fsreg.DirEntryInfo{}, err
			}
			tpath := linkTarget(walked, target)
			childPriv, childInfo, err := m.resolveDir(tpath, depth)
			if err != nil {
				return nil, fsreg.DirEntryInfo{}, err
			}
			if !childInfo.IsDir {
				return nil, fsreg.DirEntryInfo{}, fs.ErrInvalid
			}
			priv = childPriv
			walked = tpath
			continue
		}
		if !entry.IsDir {
			return nil, fsreg.DirEntryInfo{}, fs.ErrInvalid
		}
		child, err := m.format.OpenChild(m.disk, priv, entry)
		if err != nil {
			return nil, fsreg.DirEntryInfo{}, err
		}
		priv = child
		walked = gopath.Join(walked, comp)
	}
	return priv, info, nil
}

// linkTarget converts a symlink target read in directory dir (a
// root-relative path) into a root-relative path of its own; a target
// with a leading slash restarts from the filesystem root.
func linkTarget(dir, target string) string {
	if strings.HasPrefix(target, "/") {
		return gopath.Clean(strings.TrimPrefix(target, "/"))
	}
	return gopath.Join(dir, target)
}

// findChild scans dir's entries for name, honoring each entry's own
// case-sensitivity flag (the flag lives on the entry, not the
// filesystem, so one directory may mix both behaviors).
func findChild(disk blockio.Disk, f *fsreg.Format, dirPriv any, name string) (fsreg.DirEntryInfo, bool, error) {
	for e, err := range f.IterateDir(disk, dirPriv) {
		if err != nil {
			return fsreg.DirEntryInfo{}, false, err
		}
		if e.IsCaseInsensitive {
			if strings.EqualFold(e.Name, name) {
				return e, true, nil
			}
		} else if e.Name == name {
			return e, true, nil
		}
	}
	return fsreg.DirEntryInfo{}, false, nil
}

func splitPath(name string) []string {
	var out []string
	for name != "" {
		var comp string
		if i := strings.IndexByte(name, '/'); i >= 0 {
			comp, name = name[:i], name[i+1:]
		} else {
			comp, name = name, ""
		}
		if comp != "" {
			out = append(out, comp)
		}
	}
	return out
}

type fileInfo struct {
	entry fsreg.DirEntryInfo
}

func (fi fileInfo) Name() string { return fi.entry.Name }
func (fi fileInfo) Size() int64  { return fi.entry.Size }
func (fi fileInfo) Mode() fs.FileMode {
	mode := fs.FileMode(0o444)
	if fi.entry.IsDir {
		mode |= fs.ModeDir | 0o111
	}
	if fi.entry.IsSymlink {
		mode |= fs.ModeSymlink
	}
	return mode
}
func (fi fileInfo) ModTime() time.Time {
	if fi.entry.MtimeSet {
		return fi.entry.Mtime
	}
	return time.Time{}
}
func (fi fileInfo) IsDir() bool { return fi.entry.IsDir }
func (fi fileInfo) Sys() any    { return fi.entry }

type dirEntry struct{ entry fsreg.DirEntryInfo }

func (de dirEntry) Name() string { return de.entry.Name }
func (de dirEntry) IsDir() bool  { return de.entry.IsDir }
func (de dirEntry) Type() fs.FileMode {
	if de.entry.IsSymlink {
		return fs.ModeSymlink
	}
	if de.entry.IsDir {
		return fs.ModeDir
	}
	return 0
}
func (de dirEntry) Info() (fs.FileInfo, error) { return fileInfo{de.entry}, nil }

type dirFile struct {
	m      *mount
	priv   any
	name   string
	entry  fsreg.DirEntryInfo
	listed []fs.DirEntry
	seek   int
}

func (d *dirFile) Stat() (fs.FileInfo, error) { return fileInfo{d.entry}, nil }
func (d *dirFile) Read([]byte) (int, error)   { return 0, io.EOF }
func (d *dirFile) Close() error                { return nil }

func (d *dirFile) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.listed == nil {
		for e, err := range d.m.format.IterateDir(d.m.disk, d.priv) {
			if err != nil {
				return nil, err
			}
			d.listed = append(d.listed, dirEntry{e})
		}
	}
	remaining := len(d.listed) - d.seek
	if remaining == 0 && n > 0 {
		return nil, io.EOF
	}
	if n > 0 && remaining > n {
		remaining = n
	}
	out := make([]fs.DirEntry, remaining)
	copy(out, d.listed[d.seek:][:remaining])
	d.seek += remaining
	return out, nil
}

type regFile struct {
	m     *mount
	priv  any
	name  string
	entry fsreg.DirEntryInfo
	seek  int64
}

func (f *regFile) Stat() (fs.FileInfo, error) { return fileInfo{f.entry}, nil }
func (f *regFile) Close() error               { return f.m.format.Close(f.priv) }

func (f *regFile) Read(p []byte) (int, error) {
	n, err := f.m.format.Read(&fsreg.Handle{Format: f.m.format}, f.priv, p, f.seek)
	f.seek += int64(n)
	return n, err
}

func (f *regFile) ReadAt(p []byte, off int64) (int, error) {
	return f.m.format.Read(&fsreg.Handle{Format: f.m.format}, f.priv, p, off)
}
