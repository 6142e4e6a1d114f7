// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fsview

import (
	"errors"
	"io"
	"io/fs"
	"iter"
	"testing"
	"time"

	"github.com/arcfs/corefs/internal/blockio"
	"github.com/arcfs/corefs/internal/fsreg"
)

// fakeNode is a minimal in-memory tree used to exercise the mount adapter
// without a real format module.
type fakeNode struct {
	name     string
	isDir    bool
	insens   bool
	symlink  string
	data     string
	children []*fakeNode
}

func entryFor(c *fakeNode) fsreg.DirEntryInfo {
	return fsreg.DirEntryInfo{
		Name:              c.name,
		IsDir:             c.isDir,
		IsSymlink:         c.symlink != "",
		IsCaseInsensitive: c.insens,
		Size:              int64(len(c.data)),
	}
}

func fakeMount(t *testing.T, root *fakeNode) fs.FS {
	t.Helper()
	format := &fsreg.Format{
		Name:     "fake",
		Probe:    func(blockio.Disk) error { return nil },
		OpenRoot: func(blockio.Disk) (any, error) { return root, nil },
		IterateDir: func(_ blockio.Disk, private any) iter.Seq2[fsreg.DirEntryInfo, error] {
			n := private.(*fakeNode)
			return func(yield func(fsreg.DirEntryInfo, error) bool) {
				for _, c := range n.children {
					if !yield(entryFor(c), nil) {
						return
					}
				}
			}
		},
		OpenChild: func(_ blockio.Disk, private any, entry fsreg.DirEntryInfo) (any, error) {
			n := private.(*fakeNode)
			for _, c := range n.children {
				if c.name == entry.Name {
					return c, nil
				}
			}
			return nil, fs.ErrNotExist
		},
		Read: func(_ *fsreg.Handle, private any, p []byte, off int64) (int, error) {
			n := private.(*fakeNode)
			if off >= int64(len(n.data)) {
				return 0, io.EOF
			}
			cnt := copy(p, n.data[off:])
			if cnt < len(p) {
				return cnt, io.EOF
			}
			return cnt, nil
		},
		Close: func(any) error { return nil },
		Readlink: func(_ blockio.Disk, private any, entry fsreg.DirEntryInfo) (string, error) {
			n := private.(*fakeNode)
			for _, c := range n.children {
				if c.name == entry.Name {
					return c.symlink, nil
				}
			}
			return "", fs.ErrNotExist
		},
		UUID:  func(blockio.Disk) (string, error) { return "", fsreg.ErrUnsupported },
		Label: func(blockio.Disk) (string, error) { return "", fsreg.ErrUnsupported },
		Mtime: func(blockio.Disk) (time.Time, error) { return time.Time{}, fsreg.ErrUnsupported },
	}
	disk := &blockio.MemDisk{NameStr: "fake", Bytes: make([]byte, 512), Log2Sector: 9}
	fsys, err := New(disk, format)
	if err != nil {
		t.Fatal(err)
	}
	return fsys
}

func testTree() *fakeNode {
	return &fakeNode{name: ".", isDir: true, children: []*fakeNode{
		{name: "file.txt", data: "plain contents"},
		{name: "MIXED.TXT", insens: true, data: "folded"},
		{name: "dir", isDir: true, children: []*fakeNode{
			{name: "inner.txt", data: "nested contents"},
			{name: "up", symlink: "../file.txt"},
		}},
		{name: "link", symlink: "file.txt"},
		{name: "link-abs", symlink: "/dir/inner.txt"},
		{name: "link-dir", symlink: "dir"},
		{name: "loop-a", symlink: "loop-b"},
		{name: "loop-b", symlink: "loop-a"},
	}}
}

// A symlink as the final path component must resolve to its target, not
// be handed to the format as if it were content.
func TestOpenSymlinkLeaf(t *testing.T) {
	fsys := fakeMount(t, testTree())

	for _, tc := range []struct{ name, want string }{
		{"link", "plain contents"},          // relative, at the root
		{"link-abs", "nested contents"},     // absolute, restarts at the root
		{"dir/up", "plain contents"},        // relative to its own directory
		{"link-dir/inner.txt", "nested contents"}, // symlinked directory mid-path
	} {
		data, err := fs.ReadFile(fsys, tc.name)
		if err != nil {
			t.Errorf("%s: %v", tc.name, err)
			continue
		}
		if string(data) != tc.want {
			t.Errorf("%s: got %q, want %q", tc.name, data, tc.want)
		}
	}
}

// A symlink cycle must fail at the depth bound, whether it is the leaf
// or an intermediate component — not recurse until the stack dies.
func TestSymlinkLoopBounded(t *testing.T) {
	fsys := fakeMount(t, testTree())

	if _, err := fsys.Open("loop-a"); !errors.Is(err, fs.ErrInvalid) {
		t.Errorf("leaf loop: err = %v, want fs.ErrInvalid", err)
	}
	if _, err := fsys.Open("loop-a/anything"); !errors.Is(err, fs.ErrInvalid) {
		t.Errorf("mid-path loop: err = %v, want fs.ErrInvalid", err)
	}
}

func TestCaseFoldPerEntry(t *testing.T) {
	fsys := fakeMount(t, testTree())

	data, err := fs.ReadFile(fsys, "mixed.txt")
	if err != nil || string(data) != "folded" {
		t.Errorf("case-insensitive entry: %q, %v", data, err)
	}
	if _, err := fsys.Open("FILE.TXT"); err == nil {
		t.Error("case-sensitive entry matched with the wrong case")
	}
}

// Opening a subdirectory must list that subdirectory's children, not its
// parent's.
func TestReadDirOfSubdirectory(t *testing.T) {
	fsys := fakeMount(t, testTree())

	list, err := fs.ReadDir(fsys, "dir")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Name() != "inner.txt" || list[1].Name() != "up" {
		names := make([]string, len(list))
		for i, e := range list {
			names[i] = e.Name()
		}
		t.Fatalf("listing of dir = %v, want [inner.txt up]", names)
	}
}
