// Copyright (c) Elliot Nunn
// Licensed under the MIT license

package fsreg

import (
	"errors"
	"io"
	"iter"
	"testing"

	"github.com/arcfs/corefs/internal/blockio"
)

// fakeNode is a minimal in-memory tree used to exercise Walk without a
// real format module.
type fakeNode struct {
	name     string
	isDir    bool
	symlink  string
	children []*fakeNode
	data     string
}

func fakeFormat() *Format {
	root := &fakeNode{
		name:  ".",
		isDir: true,
		children: []*fakeNode{
			{name: "FILE.TXT", data: "hello"},
			{name: "dir", isDir: true, children: []*fakeNode{
				{name: "inner.txt", data: "world"},
			}},
			{name: "link-to-inner", symlink: "dir/inner.txt"},
			{name: "link-abs", symlink: "/FILE.TXT"},
			{name: "link-loop-a", symlink: "link-loop-b"},
			{name: "link-loop-b", symlink: "link-loop-a"},
		},
	}
	return &Format{
		Name: "fake",
		Probe: func(blockio.Disk) error { return nil },
		OpenRoot: func(blockio.Disk) (any, error) { return root, nil },
		IterateDir: func(_ blockio.Disk, private any) iter.Seq2[DirEntryInfo, error] {
			n := private.(*fakeNode)
			return func(yield func(DirEntryInfo, error) bool) {
				for _, c := range n.children {
					info := DirEntryInfo{
						Name:              c.name,
						IsDir:             c.isDir,
						IsSymlink:         c.symlink != "",
						IsCaseInsensitive: c.name == "FILE.TXT", // exercise mixed case-fold per entry
					}
					if !yield(info, nil) {
						return
					}
				}
			}
		},
		OpenChild: func(_ blockio.Disk, private any, entry DirEntryInfo) (any, error) {
			n := private.(*fakeNode)
			for _, c := range n.children {
				if c.name == entry.Name {
					return c, nil
				}
			}
			return nil, errors.New("fsreg test: child vanished")
		},
		Readlink: func(_ blockio.Disk, private any, entry DirEntryInfo) (string, error) {
			n := private.(*fakeNode)
			for _, c := range n.children {
				if c.name == entry.Name {
					return c.symlink, nil
				}
			}
			return "", errors.New("fsreg test: child vanished")
		},
		Read: func(_ *Handle, private any, p []byte, off int64) (int, error) {
			n := private.(*fakeNode)
			if off >= int64(len(n.data)) {
				return 0, io.EOF
			}
			return copy(p, n.data[off:]), nil
		},
		Close: func(any) error { return nil },
	}
}

func TestWalkCaseInsensitiveMatch(t *testing.T) {
	f := fakeFormat()
	_, info, err := Walk(nil, f, "file.txt")
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if info.Name != "FILE.TXT" {
		t.Fatalf("got %q, want FILE.TXT", info.Name)
	}
}

func TestWalkCaseSensitiveMismatch(t *testing.T) {
	f := fakeFormat()
	_, _, err := Walk(nil, f, "DIR/INNER.TXT")
	if err == nil {
		t.Fatalf("expected case-sensitive mismatch to fail")
	}
}

func TestWalkNestedDirectory(t *testing.T) {
	f := fakeFormat()
	_, info, err := Walk(nil, f, "dir/inner.txt")
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if info.Name != "inner.txt" {
		t.Fatalf("got %q", info.Name)
	}
}

func TestWalkSymlinkRelative(t *testing.T) {
	f := fakeFormat()
	_, info, err := Walk(nil, f, "link-to-inner")
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if info.Name != "inner.txt" {
		t.Fatalf("got %q, want inner.txt", info.Name)
	}
}

func TestWalkSymlinkAbsolute(t *testing.T) {
	f := fakeFormat()
	_, info, err := Walk(nil, f, "link-abs")
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if info.Name != "FILE.TXT" {
		t.Fatalf("got %q, want FILE.TXT", info.Name)
	}
}

func TestWalkSymlinkLoopDetected(t *testing.T) {
	f := fakeFormat()
	_, _, err := Walk(nil, f, "link-loop-a")
	if err == nil {
		t.Fatalf("expected symlink loop to be detected")
	}
}

func TestWalkMissingComponent(t *testing.T) {
	f := fakeFormat()
	_, _, err := Walk(nil, f, "nope")
	if err == nil {
		t.Fatalf("expected missing component to fail")
	}
}

func TestProbeFindsRegisteredFormat(t *testing.T) {
	saved := registry
	defer func() { registry = saved }()
	registry = nil

	f := fakeFormat()
	Register(f)
	got, err := Probe(nil)
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if got != f {
		t.Fatalf("probe returned wrong format")
	}
}
