// Copyright (c) Elliot Nunn
// Licensed under the MIT license

// Package fsreg implements the filesystem module registry (component D):
// a process-wide, append-only list of Format descriptors, and the shared
// path-walking helper that every exported mount operation drives.
package fsreg

import (
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
)

// DirEntryInfo is yielded by a Format's IterateDir, one per directory
// member; inode and
// mtime are carried as separate "set" flags since not every format knows
// either for every entry.
type DirEntryInfo struct {
	Name              string
	IsDir             bool
	IsSymlink         bool
	IsCaseInsensitive bool
	MtimeSet          bool
	Mtime             time.Time
	InodeSet          bool
	Inode             uint64
	Size              int64
}

// Handle is an opened file or directory within a mounted filesystem.
// private is the format module's own cursor/inode state; fsreg never
// inspects it.
type Handle struct {
	Format  *Format
	Size    int64
	Offset  int64
	private any
}

func (h *Handle) Read(p []byte) (int, error) {
	n, err := h.Format.Read(h, h.private, p, h.Offset)
	h.Offset += int64(n)
	return n, err
}

func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	return h.Format.Read(h, h.private, p, off)
}

func (h *Handle) Seek(offset int64, whence int) (int64, error) {
	var newOff int64
	switch whence {
	case io.SeekStart:
		newOff = offset
	case io.SeekCurrent:
		newOff = h.Offset + offset
	case io.SeekEnd:
		newOff = h.Size + offset
	default:
		return 0, fmt.Errorf("fsreg: bad whence %d", whence)
	}
	if newOff < 0 {
		return 0, fmt.Errorf("fsreg: negative seek offset")
	}
	h.Offset = newOff
	return newOff, nil
}

func (h *Handle) Close() error {
	return h.Format.Close(h.private)
}

// Private returns the module-private cursor state stashed by Open, for
// format implementations that need to recover it (e.g. IterateDir).
func (h *Handle) Private() any { return h.private }

// Format is the per-filesystem-module operation vtable. Every module sets
// every member except Open; a module lacking a concept (e.g. no symlinks,
// no UUID) returns (zero value, ErrUnsupported) rather than a nil function
// pointer, so the registry can be driven uniformly. No module in this
// repository sets Open and nothing calls it; paths are resolved through
// OpenRoot/IterateDir/OpenChild.
type Format struct {
	Name string

	// Probe performs the module's lightweight header check. A non-nil
	// error means "not this format"; Probe must not mutate disk.
	Probe func(disk blockio.Disk) error

	// Open resolves path (already relative to the filesystem root, slash
	// separated, fs.ValidPath-clean) to a Handle. Open itself does not
	// walk path components with symlink/case-fold semantics — that is
	// Walk's job, calling OpenRoot/IterateDir/Readlink directly.
	Open func(disk blockio.Disk, private any, path string) (*Handle, error)

	// OpenRoot returns module-private state for the filesystem root
	// directory, the starting point for Walk.
	OpenRoot func(disk blockio.Disk) (any, error)

	// Read satisfies both sequential and random-access reads against an
	// open Handle's private state.
	Read func(h *Handle, private any, p []byte, off int64) (int, error)

	Close func(private any) error

	// IterateDir lists the members of the directory named by private,
	// pull-style, for composability with range-over-func.
	IterateDir func(disk blockio.Disk, private any) iter.Seq2[DirEntryInfo, error]

	// OpenChild opens a single named child of directory-state private,
	// without yet knowing whether it is a file or a directory; Walk uses
	// this plus the entry's IsDir flag learned from IterateDir.
	OpenChild func(disk blockio.Disk, private any, entry DirEntryInfo) (any, error)

	// Readlink returns a symlink child's target, relative to its
	// containing directory, module-native separator already normalized
	// to "/".
	Readlink func(disk blockio.Disk, private any, entry DirEntryInfo) (string, error)

	UUID  func(disk blockio.Disk) (string, error)
	Label func(disk blockio.Disk) (string, error)
	Mtime func(disk blockio.Disk) (time.Time, error)
}

var registry []*Format

// Register appends f to the build-time registry. Called from format
// package init functions; registration order is probe order, so probe
// order is Go's package initialization order (by import path, each package
// after its own imports), whatever order the packages are imported in (the
// registry itself does not sort).
func Register(f *Format) {
	registry = append(registry, f)
}

// All returns the registry in registration order.
func All() []*Format {
	return registry
}

// Probe tries every registered Format against disk in registration order,
// returning the first match.
func Probe(disk blockio.Disk) (*Format, error) {
	for _, f := range registry {
		if err := f.Probe(disk); err == nil {
			return f, nil
		}
	}
	return nil, fmt.Errorf("fsreg: no registered format recognizes disk %q", disk.Name())
}

// ErrUnsupported is returned by a Format member whose underlying on-disk
// format has no equivalent concept (e.g. label on a format with no volume
// name), or whose implementation is deliberately out of scope.
var ErrUnsupported = fmt.Errorf("fsreg: operation not supported by this format")

const maxSymlinkDepth = 8

// Walk resolves a slash-separated path against a mounted filesystem,
// starting at its root: split by "/", match each
// component case-sensitively or case-insensitively per the directory's own
// entries, and follow symlinks (bounded to maxSymlinkDepth) relative to
// their containing directory.
func Walk(disk blockio.Disk, f *Format, path string) (private any, info DirEntryInfo, err error) {
	root, err := f.OpenRoot(disk)
	if err != nil {
		return nil, DirEntryInfo{}, fmt.Errorf("fsreg: open root: %w", err)
	}
	rootInfo := DirEntryInfo{IsDir: true}
	return walk(disk, f, root, rootInfo, path, 0)
}

func walk(disk blockio.Disk, f *Format, dir any, dirInfo DirEntryInfo, path string, depth int) (any, DirEntryInfo, error) {
	path = strings.Trim(path, "/")
	if path == "" || path == "." {
		return dir, dirInfo, nil
	}

	comp, rest, hasRest := strings.Cut(path, "/")
	switch comp {
	case ".":
		return walk(disk, f, dir, dirInfo, rest, depth)
	case "..":
		return nil, DirEntryInfo{}, fmt.Errorf("fsreg: %q: .. is not supported mid-path", path)
	}

	entry, ok, err := findChild(disk, f, dir, comp)
	if err != nil {
		return nil, DirEntryInfo{}, err
	}
	if !ok {
		return nil, DirEntryInfo{}, fmt.Errorf("fsreg: %q: %w", comp, io.ErrUnexpectedEOF)
	}

	if entry.IsSymlink {
		if depth >= maxSymlinkDepth {
			return nil, DirEntryInfo{}, fmt.Errorf("fsreg: %q: too many levels of symbolic links", comp)
		}
		target, err := f.Readlink(disk, dir, entry)
		if err != nil {
			return nil, DirEntryInfo{}, fmt.Errorf("fsreg: readlink %q: %w", comp, err)
		}
		// A symlink resolves relative to its containing directory; an
		// absolute target restarts from the filesystem root.
		var base any
		var baseInfo DirEntryInfo
		if strings.HasPrefix(target, "/") {
			base, err = f.OpenRoot(disk)
			if err != nil {
				return nil, DirEntryInfo{}, err
			}
			baseInfo = DirEntryInfo{IsDir: true}
		} else {
			base, baseInfo = dir, dirInfo
		}
		linked, linkedInfo, err := walk(disk, f, base, baseInfo, target, depth+1)
		if err != nil {
			return nil, DirEntryInfo{}, err
		}
		if !hasRest {
			return linked, linkedInfo, nil
		}
		if !linkedInfo.IsDir {
			return nil, DirEntryInfo{}, fmt.Errorf("fsreg: %q: not a directory", comp)
		}
		return walk(disk, f, linked, linkedInfo, rest, depth+1)
	}

	child, err := f.OpenChild(disk, dir, entry)
	if err != nil {
		return nil, DirEntryInfo{}, err
	}
	if !hasRest {
		return child, entry, nil
	}
	if !entry.IsDir {
		return nil, DirEntryInfo{}, fmt.Errorf("fsreg: %q: not a directory", comp)
	}
	return walk(disk, f, child, entry, rest, depth)
}

// findChild scans dir's entries for name, honoring each entry's own
// case-sensitivity flag (a directory may mix case-sensitive and
// case-insensitive children, e.g. a HFS+ volume's metadata vs. user files;
// the flag lives on the entry, not the filesystem).
func findChild(disk blockio.Disk, f *Format, dir any, name string) (DirEntryInfo, bool, error) {
	for entry, err := range f.IterateDir(disk, dir) {
		if err != nil {
			return DirEntryInfo{}, false, err
		}
		if entry.IsCaseInsensitive {
			if strings.EqualFold(entry.Name, name) {
				return entry, true, nil
			}
		} else if entry.Name == name {
			return entry, true, nil
		}
	}
	return DirEntryInfo{}, false, nil
}
